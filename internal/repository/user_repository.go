package repository

import (
	"context"

	"github.com/honeynil/account-ledger/internal/models"
)

type UserRepository interface {
	// CreateWithAccount stores user and a zero-balance account for it as one
	// unit: either both exist afterwards or neither does. IDs and timestamps
	// are filled in on success.
	CreateWithAccount(ctx context.Context, user *models.User, account *models.Account) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}
