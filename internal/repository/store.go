package repository

import "context"

// Store bundles the repositories of one backing database.
type Store interface {
	Users() UserRepository
	Accounts() AccountRepository
	Sessions() SessionRepository
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
