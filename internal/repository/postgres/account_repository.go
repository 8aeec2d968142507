package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/honeynil/account-ledger/internal/infrastructure/observability"
	"github.com/honeynil/account-ledger/internal/models"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const numericOutOfRange = "22003"

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID string) (_ *models.Account, err error) {
	ctx, span, done := observability.TrackRepositoryCall(ctx, storeName, "GetAccountByUserID")
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("user_id", userID))

	id, err := uuid.Parse(userID)
	if err != nil {
		err = fmt.Errorf("%w: %v", pkgerrors.ErrAccountNotFound, err)
		return nil, err
	}

	var account models.Account
	err = r.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount, created_at FROM accounts WHERE user_id = $1`,
		id.String(),
	).Scan(&account.ID, &account.UserID, &account.Amount, &account.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = pkgerrors.ErrAccountNotFound
		return nil, err
	case err != nil:
		err = fmt.Errorf("failed to get account: %w", err)
		return nil, err
	}
	return &account, nil
}

// Increment relies on the row lock taken by UPDATE; RETURNING reads the
// committed value of this statement, not a value computed by the caller.
func (r *AccountRepository) Increment(ctx context.Context, userID string, delta decimal.Decimal) (_ decimal.Decimal, err error) {
	ctx, span, done := observability.TrackRepositoryCall(ctx, storeName, "IncrementAccount")
	defer func() { done(err) }()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("delta", delta.String()),
	)

	id, err := uuid.Parse(userID)
	if err != nil {
		err = fmt.Errorf("%w: %v", pkgerrors.ErrAccountNotFound, err)
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err = r.db.QueryRowContext(ctx,
		`UPDATE accounts SET amount = amount + $1 WHERE user_id = $2 RETURNING amount`,
		delta, id.String(),
	).Scan(&balance)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = pkgerrors.ErrAccountNotFound
		return decimal.Zero, err
	case isPQCode(err, numericOutOfRange):
		err = fmt.Errorf("%w: %v", pkgerrors.ErrInvalidAmount, err)
		return decimal.Zero, err
	case err != nil:
		err = fmt.Errorf("failed to increment account: %w", err)
		return decimal.Zero, err
	}
	return balance, nil
}

func isPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
