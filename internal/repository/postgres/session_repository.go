package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/account-ledger/internal/infrastructure/observability"
	"github.com/honeynil/account-ledger/internal/models"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (err error) {
	ctx, _, done := observability.TrackRepositoryCall(ctx, storeName, "CreateSession")
	defer func() { done(err) }()

	if session == nil {
		err = pkgerrors.ErrNilSession
		return err
	}
	id, err := uuid.Parse(session.UserID)
	if err != nil {
		err = fmt.Errorf("%w: %v", pkgerrors.ErrInvalidID, err)
		return err
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (user_id, token, created_at, expires_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		id.String(), session.Token, session.CreatedAt, session.ExpiresAt,
	).Scan(&session.ID)
	if err != nil {
		err = fmt.Errorf("failed to create session: %w", err)
		return err
	}
	return nil
}

func (r *SessionRepository) Find(ctx context.Context, userID, token string, now time.Time) (_ *models.Session, err error) {
	ctx, span, done := observability.TrackRepositoryCall(ctx, storeName, "FindSession")
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("user_id", userID))

	id, parseErr := uuid.Parse(userID)
	if parseErr != nil {
		return nil, pkgerrors.ErrSessionNotFound
	}

	var s models.Session
	err = r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token, created_at, expires_at FROM sessions
		WHERE user_id = $1 AND token = $2 AND expires_at > $3
		ORDER BY created_at DESC LIMIT 1`,
		id.String(), token, now,
	).Scan(&s.ID, &s.UserID, &s.Token, &s.CreatedAt, &s.ExpiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrSessionNotFound
	case err != nil:
		err = fmt.Errorf("failed to find session: %w", err)
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (_ int64, err error) {
	ctx, _, done := observability.TrackRepositoryCall(ctx, storeName, "DeleteExpiredSessions")
	defer func() { done(err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, before)
	if err != nil {
		err = fmt.Errorf("failed to delete expired sessions: %w", err)
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		err = fmt.Errorf("failed to count deleted sessions: %w", err)
		return 0, err
	}
	return n, nil
}
