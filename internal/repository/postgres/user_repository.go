package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/account-ledger/internal/infrastructure/observability"
	"github.com/honeynil/account-ledger/internal/models"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const uniqueViolation = "23505"

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateWithAccount(ctx context.Context, user *models.User, account *models.Account) (err error) {
	ctx, span, done := observability.TrackRepositoryCall(ctx, storeName, "CreateUserWithAccount")
	defer func() { done(err) }()

	if user == nil || account == nil {
		err = pkgerrors.ErrNilUser
		return err
	}
	if user.Username == "" || user.PasswordHash == "" {
		err = fmt.Errorf("%w: username and password hash are required", pkgerrors.ErrInvalidInput)
		return err
	}
	span.SetAttributes(attribute.String("username", user.Username))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("failed to begin transaction: %w", err)
		return err
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, created_at`,
		user.Username, user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			err = rollback(tx, "CreateWithAccount", pkgerrors.ErrUsernameExists)
			return err
		}
		err = rollback(tx, "CreateWithAccount", fmt.Errorf("failed to create user: %w", err))
		return err
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO accounts (user_id, amount) VALUES ($1, $2) RETURNING id, created_at`,
		user.ID, account.Amount,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		err = rollback(tx, "CreateWithAccount", fmt.Errorf("failed to create account: %w", err))
		return err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("failed to commit transaction: %w", err)
		return err
	}

	account.UserID = user.ID
	slog.Info("user created", "method", "CreateWithAccount", "user_id", user.ID, "account_id", account.ID)
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (_ *models.User, err error) {
	ctx, _, done := observability.TrackRepositoryCall(ctx, storeName, "GetUserByUsername")
	defer func() { done(err) }()

	if username == "" {
		err = pkgerrors.ErrUserNotFound
		return nil, err
	}

	var user models.User
	err = r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = pkgerrors.ErrUserNotFound
		return nil, err
	case err != nil:
		err = fmt.Errorf("failed to get user by username: %w", err)
		return nil, err
	}
	return &user, nil
}
