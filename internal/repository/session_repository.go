package repository

import (
	"context"
	"time"

	"github.com/honeynil/account-ledger/internal/models"
)

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	// Find returns the session matching userID and token that has not expired at now.
	Find(ctx context.Context, userID, token string, now time.Time) (*models.Session, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
