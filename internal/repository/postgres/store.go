package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/honeynil/account-ledger/internal/repository"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

const storeName = "postgres"

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db       *sql.DB
	users    *UserRepository
	accounts *AccountRepository
	sessions *SessionRepository
}

var _ repository.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{
		db:       db,
		users:    NewUserRepository(db),
		accounts: NewAccountRepository(db),
		sessions: NewSessionRepository(db),
	}
}

func (s *Store) Users() repository.UserRepository       { return s.users }
func (s *Store) Accounts() repository.AccountRepository { return s.accounts }
func (s *Store) Sessions() repository.SessionRepository { return s.sessions }

func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	slog.Info("postgres migrations applied")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func rollback(tx *sql.Tx, method string, cause error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		slog.Error("rollback failed", "method", method, "error", rbErr)
		return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, cause)
	}
	return cause
}
