// Package memory is a process-local store for development and tests. All
// three repositories share one lock, which makes registration and balance
// increments atomic the same way the database stores are.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/account-ledger/internal/models"
	"github.com/honeynil/account-ledger/internal/repository"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu sync.RWMutex

	users      map[string]*models.User // by id
	byUsername map[string]string
	accounts   map[string]*models.Account // by user id
	sessions   map[string]*models.Session // by id
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      make(map[string]*models.User),
		byUsername: make(map[string]string),
		accounts:   make(map[string]*models.Account),
		sessions:   make(map[string]*models.Session),
	}
}

func (s *Store) Users() repository.UserRepository       { return users{s} }
func (s *Store) Accounts() repository.AccountRepository { return accounts{s} }
func (s *Store) Sessions() repository.SessionRepository { return sessions{s} }

func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error    { return nil }
func (s *Store) Close(context.Context) error   { return nil }

type users struct{ s *Store }

func (r users) CreateWithAccount(_ context.Context, user *models.User, account *models.Account) error {
	if user == nil || account == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Username == "" || user.PasswordHash == "" {
		return pkgerrors.ErrInvalidInput
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.byUsername[user.Username]; ok {
		return pkgerrors.ErrUsernameExists
	}

	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	account.ID = uuid.NewString()
	account.UserID = user.ID
	account.CreatedAt = now

	u, a := *user, *account
	r.s.users[u.ID] = &u
	r.s.byUsername[u.Username] = u.ID
	r.s.accounts[u.ID] = &a
	return nil
}

func (r users) GetByUsername(_ context.Context, username string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.byUsername[username]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	u := *r.s.users[id]
	return &u, nil
}

type accounts struct{ s *Store }

func (r accounts) GetByUserID(_ context.Context, userID string) (*models.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.accounts[userID]
	if !ok {
		return nil, pkgerrors.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r accounts) Increment(_ context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[userID]
	if !ok {
		return decimal.Zero, pkgerrors.ErrAccountNotFound
	}
	a.Amount = a.Amount.Add(delta)
	return a.Amount, nil
}

type sessions struct{ s *Store }

func (r sessions) Create(_ context.Context, session *models.Session) error {
	if session == nil {
		return pkgerrors.ErrNilSession
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[session.UserID]; !ok {
		return pkgerrors.ErrInvalidID
	}
	session.ID = uuid.NewString()
	cp := *session
	r.s.sessions[cp.ID] = &cp
	return nil
}

func (r sessions) Find(_ context.Context, userID, token string, now time.Time) (*models.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, s := range r.s.sessions {
		if s.UserID == userID && s.Token == token && !s.Expired(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pkgerrors.ErrSessionNotFound
}

func (r sessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, s := range r.s.sessions {
		if s.Expired(before) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}
