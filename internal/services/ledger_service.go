package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/honeynil/account-ledger/internal/infrastructure/auth"
	"github.com/honeynil/account-ledger/internal/infrastructure/kafka"
	"github.com/honeynil/account-ledger/internal/infrastructure/observability"
	"github.com/honeynil/account-ledger/internal/models"
	"github.com/honeynil/account-ledger/internal/repository"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
)

const tracerName = "ledger-service"

// Amount bounds match what a Decimal128 holds exactly, which NUMERIC also
// holds. The length cap keeps parsing and digit counting cheap.
const (
	maxAmountLength   = 64
	maxAmountDigits   = 34
	minAmountExponent = -6176
	maxAmountExponent = 6111
)

type LedgerService interface {
	CreateUser(ctx context.Context, username, password string) (string, error)
	CreateSession(ctx context.Context, username, password string) (*models.Session, error)
	GetBalance(ctx context.Context, userID, token string) (decimal.Decimal, error)
	ApplyTransaction(ctx context.Context, userID, token, amount string) (decimal.Decimal, error)
}

type ledgerService struct {
	userRepo    repository.UserRepository
	accountRepo repository.AccountRepository
	sessions    *auth.SessionManager
	producer    kafka.KafkaProducer
	now         func() time.Time
}

// NewLedgerService wires the service. producer may be nil, in which case no
// events are published.
func NewLedgerService(
	userRepo repository.UserRepository,
	accountRepo repository.AccountRepository,
	sessions *auth.SessionManager,
	producer kafka.KafkaProducer,
) *ledgerService {
	return &ledgerService{
		userRepo:    userRepo,
		accountRepo: accountRepo,
		sessions:    sessions,
		producer:    producer,
		now:         time.Now,
	}
}

func (s *ledgerService) CreateUser(ctx context.Context, username, password string) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "CreateUser")
	defer span.End()

	if username == "" || password == "" {
		span.SetStatus(codes.Error, "empty username or password")
		return "", pkgerrors.ErrInvalidInput
	}

	existingUser, err := s.userRepo.GetByUsername(ctx, username)
	if existingUser != nil {
		span.SetStatus(codes.Error, "username already exists")
		slog.Warn("username already exists",
			"username", username,
			"existing_id", existingUser.ID)
		return "", pkgerrors.ErrUsernameExists
	}
	if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user check failed")
		observability.Logger(ctx).Error("failed to check user existence",
			"username", username,
			"error", err)
		return "", fmt.Errorf("failed to check user existence: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		observability.Logger(ctx).Error("failed to hash password",
			"username", username,
			"error", err)
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	account := &models.Account{
		Amount:    decimal.Zero,
		CreatedAt: now,
	}

	if err := s.userRepo.CreateWithAccount(ctx, user, account); err != nil {
		if stderrors.Is(err, pkgerrors.ErrUsernameExists) {
			span.SetStatus(codes.Error, "username already exists")
			return "", err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "user creation failed")
		observability.Logger(ctx).Error("failed to create user",
			"username", username,
			"error", err)
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	s.publish(ctx, kafka.TopicUsers, models.LedgerEvent{
		Type:      models.EventUserRegistered,
		UserID:    user.ID,
		Username:  username,
		CreatedAt: now,
	})

	observability.Logger(ctx).Info("user registered successfully",
		"user_id", user.ID,
		"username", username)

	return user.ID, nil
}

func (s *ledgerService) CreateSession(ctx context.Context, username, password string) (*models.Session, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "CreateSession")
	defer span.End()

	if username == "" || password == "" {
		span.SetStatus(codes.Error, "empty username or password")
		return nil, pkgerrors.ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		span.SetStatus(codes.Error, "unknown user")
		slog.Info("login rejected", "username", username)
		return nil, pkgerrors.ErrInvalidCredentials
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		observability.Logger(ctx).Error("failed to load user", "username", username, "error", err)
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		span.SetStatus(codes.Error, "password mismatch")
		slog.Info("login rejected", "username", username)
		return nil, pkgerrors.ErrInvalidCredentials
	}

	session, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session issue failed")
		observability.Logger(ctx).Error("failed to issue session", "user_id", user.ID, "error", err)
		return nil, err
	}

	observability.Logger(ctx).Info("user logged in", "username", username, "user_id", user.ID)
	return session, nil
}

func (s *ledgerService) GetBalance(ctx context.Context, userID, token string) (decimal.Decimal, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "GetBalance")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if err := s.authorize(ctx, span, userID, token); err != nil {
		return decimal.Zero, err
	}

	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		if !stderrors.Is(err, pkgerrors.ErrAccountNotFound) {
			span.RecordError(err)
			observability.Logger(ctx).Error("failed to get account", "user_id", userID, "error", err)
		}
		span.SetStatus(codes.Error, "account lookup failed")
		return decimal.Zero, err
	}

	slog.Debug("balance fetched", "user_id", userID, "amount", account.Amount.String())
	return account.Amount, nil
}

func (s *ledgerService) ApplyTransaction(ctx context.Context, userID, token, amount string) (decimal.Decimal, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ApplyTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if err := s.authorize(ctx, span, userID, token); err != nil {
		return decimal.Zero, err
	}

	delta, err := parseAmount(amount)
	if err != nil {
		span.SetStatus(codes.Error, "invalid amount")
		return decimal.Zero, err
	}

	balance, err := s.accountRepo.Increment(ctx, userID, delta)
	if err != nil {
		if pkgerrors.KindOf(err) == pkgerrors.KindInternal {
			span.RecordError(err)
			observability.Logger(ctx).Error("failed to apply transaction",
				"user_id", userID,
				"amount", delta.String(),
				"error", err)
		}
		span.SetStatus(codes.Error, "increment failed")
		return decimal.Zero, err
	}

	s.publish(ctx, kafka.TopicTransactions, models.LedgerEvent{
		Type:      models.EventTransactionApplied,
		UserID:    userID,
		Amount:    delta.String(),
		Balance:   balance.String(),
		CreatedAt: s.now().UTC(),
	})

	observability.Logger(ctx).Info("transaction applied",
		"user_id", userID,
		"amount", delta.String(),
		"balance", balance.String())
	return balance, nil
}

// parseAmount rejects malformed and out-of-range amounts before anything
// formats them; String on a huge exponent expands it digit by digit.
func parseAmount(amount string) (decimal.Decimal, error) {
	if len(amount) > maxAmountLength {
		return decimal.Zero, pkgerrors.ErrInvalidAmount
	}
	delta, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, pkgerrors.ErrInvalidAmount
	}
	if exp := delta.Exponent(); exp < minAmountExponent || exp > maxAmountExponent {
		return decimal.Zero, pkgerrors.ErrInvalidAmount
	}
	if delta.NumDigits() > maxAmountDigits {
		return decimal.Zero, pkgerrors.ErrInvalidAmount
	}
	return delta, nil
}

func (s *ledgerService) authorize(ctx context.Context, span trace.Span, userID, token string) error {
	if err := s.sessions.Validate(ctx, userID, token); err != nil {
		span.SetStatus(codes.Error, "session rejected")
		if !stderrors.Is(err, pkgerrors.ErrInvalidSession) {
			observability.Logger(ctx).Error("session validation failed", "user_id", userID, "error", err)
		}
		return err
	}
	return nil
}

// publish is best effort; the state change has already been committed.
func (s *ledgerService) publish(ctx context.Context, topic string, event models.LedgerEvent) {
	if s.producer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal kafka event", "user_id", event.UserID, "error", err)
		return
	}
	if err := s.producer.Send(ctx, topic, event.UserID, payload); err != nil {
		observability.Logger(ctx).Warn("failed to publish ledger event",
			"topic", topic,
			"event_type", string(event.Type),
			"user_id", event.UserID,
			"error", err)
	}
}
