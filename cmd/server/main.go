package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/account-ledger/internal/api"
	"github.com/honeynil/account-ledger/internal/config"
	"github.com/honeynil/account-ledger/internal/handler"
	"github.com/honeynil/account-ledger/internal/infrastructure/auth"
	"github.com/honeynil/account-ledger/internal/infrastructure/kafka"
	"github.com/honeynil/account-ledger/internal/infrastructure/redis"
	"github.com/honeynil/account-ledger/internal/observability"
	"github.com/honeynil/account-ledger/internal/repository"
	"github.com/honeynil/account-ledger/internal/repository/memory"
	"github.com/honeynil/account-ledger/internal/repository/mongodb"
	"github.com/honeynil/account-ledger/internal/repository/postgres"
	service "github.com/honeynil/account-ledger/internal/services"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg.ServiceName, cfg.LogLevel, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate %s store: %w", cfg.StoreDriver, err)
	}

	var cache redis.RedisClient
	if cfg.RedisAddr != "" {
		client, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Warn("session cache disabled", "error", err)
		} else {
			cache = client
			defer client.Close()
		}
	}

	var producer kafka.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewProducer(cfg.KafkaBrokers)
		producer = p
		defer p.Close()
	} else {
		slog.Info("ledger events disabled, KAFKA_BROKER is empty")
	}

	sweeper, err := auth.NewSweeper(store.Sessions(), cfg.SweepSchedule)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	sessions := auth.NewSessionManager(store.Sessions(), cache, cfg.SessionTTL)
	svc := service.NewLedgerService(store.Users(), store.Accounts(), sessions, producer)
	health := func(r *http.Request) error { return store.Ping(r.Context()) }

	server := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           api.SetupRouter(handler.NewHandler(svc), health, cfg.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := mongodb.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(connectCtx); err != nil {
			store.Close(context.Background())
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close(context.Background())
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		slog.Warn("using in-memory store, data is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
