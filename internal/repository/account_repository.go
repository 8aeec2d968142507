package repository

import (
	"context"

	"github.com/honeynil/account-ledger/internal/models"
	"github.com/shopspring/decimal"
)

type AccountRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Account, error)
	// Increment adds delta to the account balance atomically in the store and
	// returns the balance the store holds after the update.
	Increment(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error)
}
