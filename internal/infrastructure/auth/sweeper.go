package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/account-ledger/internal/infrastructure/observability"
	"github.com/honeynil/account-ledger/internal/repository"
	"github.com/robfig/cron/v3"
)

const DefaultSweepSchedule = "@every 10m"

// Sweeper periodically deletes expired sessions.
type Sweeper struct {
	sessions repository.SessionRepository
	cron     *cron.Cron
	now      func() time.Time
}

func NewSweeper(sessions repository.SessionRepository, schedule string) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	s := &Sweeper{
		sessions: sessions,
		cron:     cron.New(),
		now:      time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = s.Sweep(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	slog.Info("session sweeper started")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("session sweeper stopped")
}

func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		slog.Error("failed to sweep expired sessions", "error", err)
		return 0, err
	}
	observability.SessionsSwept.Add(float64(n))
	if n > 0 {
		slog.Info("expired sessions removed", "count", n)
	}
	return n, nil
}
