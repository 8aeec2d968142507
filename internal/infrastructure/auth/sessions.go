package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/account-ledger/internal/infrastructure/redis"
	"github.com/honeynil/account-ledger/internal/models"
	"github.com/honeynil/account-ledger/internal/repository"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
)

const DefaultSessionTTL = 24 * time.Hour

// SessionManager issues and validates login sessions. Sessions live in the
// store; valid (user id, token) pairs are additionally cached in Redis until
// they expire. The cache is optional and never authoritative for rejection.
type SessionManager struct {
	sessions repository.SessionRepository
	cache    redis.RedisClient
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

func NewSessionManager(sessions repository.SessionRepository, cache redis.RedisClient, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		sessions: sessions,
		cache:    cache,
		ttl:      ttl,
		now:      time.Now,
		generate: GenerateToken,
	}
}

func (m *SessionManager) Issue(ctx context.Context, userID string) (*models.Session, error) {
	token, err := m.generate()
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	session := &models.Session{
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	m.remember(ctx, session, now)
	return session, nil
}

// Validate succeeds iff an unexpired session binds token to userID.
func (m *SessionManager) Validate(ctx context.Context, userID, token string) error {
	if userID == "" || token == "" {
		return pkgerrors.ErrInvalidSession
	}
	now := m.now().UTC()

	if m.cache != nil {
		val, err := m.cache.Get(ctx, cacheKey(userID, token))
		switch {
		case err == nil:
			if exp, perr := time.Parse(time.RFC3339Nano, val); perr == nil && now.Before(exp) {
				return nil
			}
		case !errors.Is(err, redis.ErrKeyNotFound):
			slog.Warn("session cache lookup failed", "user_id", userID, "error", err)
		}
	}

	session, err := m.sessions.Find(ctx, userID, token, now)
	if errors.Is(err, pkgerrors.ErrSessionNotFound) {
		return pkgerrors.ErrInvalidSession
	}
	if err != nil {
		return fmt.Errorf("failed to validate session: %w", err)
	}

	m.remember(ctx, session, now)
	return nil
}

func (m *SessionManager) remember(ctx context.Context, s *models.Session, now time.Time) {
	if m.cache == nil {
		return
	}
	ttl := s.Remaining(now)
	if ttl <= 0 {
		return
	}
	if err := m.cache.Set(ctx, cacheKey(s.UserID, s.Token), s.ExpiresAt.UTC().Format(time.RFC3339Nano), ttl); err != nil {
		slog.Warn("failed to cache session", "user_id", s.UserID, "error", err)
	}
}

func cacheKey(userID, token string) string {
	return fmt.Sprintf("session:%s:%s", userID, token)
}
