package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/honeynil/account-ledger/internal/config"
	"github.com/honeynil/account-ledger/internal/infrastructure/kafka"
	"github.com/honeynil/account-ledger/internal/models"
	"github.com/honeynil/account-ledger/internal/observability"
)

const groupID = "ledger-auditor"

func main() {
	if err := run(); err != nil {
		slog.Error("auditor exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg.ServiceName+"-auditor", cfg.LogLevel, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKER is required")
	}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, []string{kafka.TopicUsers, kafka.TopicTransactions}, groupID)
	defer consumer.Close()

	slog.Info("auditor started", "brokers", cfg.KafkaBrokers, "group_id", groupID)
	return consumer.Consume(ctx, audit)
}

func audit(_ context.Context, event models.LedgerEvent) error {
	attrs := []any{
		"event_type", string(event.Type),
		"user_id", event.UserID,
		"created_at", event.CreatedAt,
	}
	switch event.Type {
	case models.EventUserRegistered:
		attrs = append(attrs, "username", event.Username)
	case models.EventTransactionApplied:
		attrs = append(attrs, "amount", event.Amount, "balance", event.Balance)
	}
	slog.Info("ledger event", attrs...)
	return nil
}
