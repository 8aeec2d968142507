package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/honeynil/account-ledger/internal/infrastructure/auth"
	"github.com/honeynil/account-ledger/internal/infrastructure/kafka"
	kafkamocks "github.com/honeynil/account-ledger/internal/infrastructure/kafka/mocks"
	"github.com/honeynil/account-ledger/internal/models"
	repositorymocks "github.com/honeynil/account-ledger/internal/repository/mocks"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	userRepo    *repositorymocks.MockUserRepository
	accountRepo *repositorymocks.MockAccountRepository
	sessionRepo *repositorymocks.MockSessionRepository
	producer    *kafkamocks.MockKafkaProducer
	service     *ledgerService
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		userRepo:    repositorymocks.NewMockUserRepository(ctrl),
		accountRepo: repositorymocks.NewMockAccountRepository(ctrl),
		sessionRepo: repositorymocks.NewMockSessionRepository(ctrl),
		producer:    kafkamocks.NewMockKafkaProducer(ctrl),
	}
	sessions := auth.NewSessionManager(f.sessionRepo, nil, time.Hour)
	f.service = NewLedgerService(f.userRepo, f.accountRepo, sessions, f.producer)
	f.service.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) expectValidSession(userID, token string) {
	f.sessionRepo.EXPECT().Find(gomock.Any(), userID, token, gomock.Any()).
		Return(&models.Session{ID: "s1", UserID: userID, Token: token, ExpiresAt: time.Now().Add(time.Hour)}, nil)
}

func TestLedgerService_CreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("creates user with zero account and publishes event", func(t *testing.T) {
		f := newFixture(t)

		f.userRepo.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, pkgerrors.ErrUserNotFound)
		f.userRepo.EXPECT().CreateWithAccount(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, u *models.User, a *models.Account) error {
				assert.Equal(t, "alice", u.Username)
				assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("pw")))
				assert.True(t, a.Amount.IsZero())
				u.ID = "u1"
				return nil
			})
		f.producer.EXPECT().Send(gomock.Any(), kafka.TopicUsers, "u1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _, _ string, value []byte) error {
				var event models.LedgerEvent
				require.NoError(t, json.Unmarshal(value, &event))
				assert.Equal(t, models.EventUserRegistered, event.Type)
				assert.Equal(t, "alice", event.Username)
				assert.NotContains(t, string(value), "pw")
				return nil
			})

		id, err := f.service.CreateUser(ctx, "alice", "pw")
		require.NoError(t, err)
		assert.Equal(t, "u1", id)
	})

	t.Run("username exists", func(t *testing.T) {
		f := newFixture(t)
		f.userRepo.EXPECT().GetByUsername(gomock.Any(), "alice").Return(&models.User{ID: "u1", Username: "alice"}, nil)

		id, err := f.service.CreateUser(ctx, "alice", "other")
		assert.ErrorIs(t, err, pkgerrors.ErrUsernameExists)
		assert.Empty(t, id)
	})

	t.Run("concurrent duplicate caught by store", func(t *testing.T) {
		f := newFixture(t)
		f.userRepo.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, pkgerrors.ErrUserNotFound)
		f.userRepo.EXPECT().CreateWithAccount(gomock.Any(), gomock.Any(), gomock.Any()).Return(pkgerrors.ErrUsernameExists)

		_, err := f.service.CreateUser(ctx, "alice", "pw")
		assert.ErrorIs(t, err, pkgerrors.ErrUsernameExists)
	})

	t.Run("empty input", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.CreateUser(ctx, "", "pw")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		_, err = f.service.CreateUser(ctx, "alice", "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("lookup failure is internal", func(t *testing.T) {
		f := newFixture(t)
		f.userRepo.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, errors.New("connection reset"))

		_, err := f.service.CreateUser(ctx, "alice", "pw")
		assert.Error(t, err)
		assert.Equal(t, pkgerrors.KindInternal, pkgerrors.KindOf(err))
	})

	t.Run("publish failure does not fail registration", func(t *testing.T) {
		f := newFixture(t)
		f.userRepo.EXPECT().GetByUsername(gomock.Any(), "bob").Return(nil, pkgerrors.ErrUserNotFound)
		f.userRepo.EXPECT().CreateWithAccount(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, u *models.User, _ *models.Account) error {
				u.ID = "u2"
				return nil
			})
		f.producer.EXPECT().Send(gomock.Any(), kafka.TopicUsers, "u2", gomock.Any()).Return(errors.New("broker unavailable"))

		id, err := f.service.CreateUser(ctx, "bob", "pw")
		require.NoError(t, err)
		assert.Equal(t, "u2", id)
	})
}

func TestLedgerService_CreateSession(t *testing.T) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	alice := &models.User{ID: "u1", Username: "alice", PasswordHash: string(hash)}

	t.Run("issues six digit token", func(t *testing.T) {
		f := newFixture(t)
		f.userRepo.EXPECT().GetByUsername(gomock.Any(), "alice").Return(alice, nil)
		f.sessionRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		session, err := f.service.CreateSession(ctx, "alice", "pw")
		require.NoError(t, err)
		assert.Equal(t, "u1", session.UserID)
		assert.Regexp(t, `^[1-9][0-9]{5}$`, session.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newFixture(t)
		f.userRepo.EXPECT().GetByUsername(gomock.Any(), "alice").Return(alice, nil)

		session, err := f.service.CreateSession(ctx, "alice", "nope")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
		assert.Nil(t, session)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		f.userRepo.EXPECT().GetByUsername(gomock.Any(), "mallory").Return(nil, pkgerrors.ErrUserNotFound)

		_, err := f.service.CreateSession(ctx, "mallory", "pw")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	})

	t.Run("empty fields", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.CreateSession(ctx, "", "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	})
}

func TestLedgerService_GetBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored amount", func(t *testing.T) {
		f := newFixture(t)
		f.expectValidSession("u1", "482913")
		f.accountRepo.EXPECT().GetByUserID(gomock.Any(), "u1").
			Return(&models.Account{ID: "a1", UserID: "u1", Amount: decimal.NewFromInt(30)}, nil)

		amount, err := f.service.GetBalance(ctx, "u1", "482913")
		require.NoError(t, err)
		assert.True(t, amount.Equal(decimal.NewFromInt(30)))
	})

	t.Run("session gate", func(t *testing.T) {
		f := newFixture(t)
		f.sessionRepo.EXPECT().Find(gomock.Any(), "u1", "111111", gomock.Any()).Return(nil, pkgerrors.ErrSessionNotFound)

		_, err := f.service.GetBalance(ctx, "u1", "111111")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidSession)
	})

	t.Run("missing account", func(t *testing.T) {
		f := newFixture(t)
		f.expectValidSession("u1", "482913")
		f.accountRepo.EXPECT().GetByUserID(gomock.Any(), "u1").Return(nil, pkgerrors.ErrAccountNotFound)

		_, err := f.service.GetBalance(ctx, "u1", "482913")
		assert.ErrorIs(t, err, pkgerrors.ErrAccountNotFound)
	})
}

func TestLedgerService_ApplyTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("returns balance read back from store", func(t *testing.T) {
		f := newFixture(t)
		f.expectValidSession("u1", "482913")
		f.accountRepo.EXPECT().Increment(gomock.Any(), "u1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, delta decimal.Decimal) (decimal.Decimal, error) {
				assert.True(t, delta.Equal(decimal.NewFromInt(-20)))
				return decimal.NewFromInt(30), nil
			})
		f.producer.EXPECT().Send(gomock.Any(), kafka.TopicTransactions, "u1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _, _ string, value []byte) error {
				event, err := kafka.DecodeEvent(value)
				require.NoError(t, err)
				assert.Equal(t, "-20", event.Amount)
				assert.Equal(t, "30", event.Balance)
				return nil
			})

		balance, err := f.service.ApplyTransaction(ctx, "u1", "482913", "-20")
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(30)))
	})

	t.Run("invalid amount", func(t *testing.T) {
		f := newFixture(t)
		f.expectValidSession("u1", "482913")

		_, err := f.service.ApplyTransaction(ctx, "u1", "482913", "abc")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)
	})

	t.Run("out of range amounts rejected before increment", func(t *testing.T) {
		for _, amount := range []string{
			"1e10000000",
			"1e-10000000",
			"1e6112",
			"1e-6177",
			"12345678901234567890123456789012345",
			"0." + strings.Repeat("0", 70) + "1",
		} {
			f := newFixture(t)
			f.expectValidSession("u1", "482913")

			_, err := f.service.ApplyTransaction(ctx, "u1", "482913", amount)
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount, amount)
		}
	})

	t.Run("session checked before amount", func(t *testing.T) {
		f := newFixture(t)
		f.sessionRepo.EXPECT().Find(gomock.Any(), "u1", "000000", gomock.Any()).Return(nil, pkgerrors.ErrSessionNotFound)

		_, err := f.service.ApplyTransaction(ctx, "u1", "000000", "abc")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidSession)
	})

	t.Run("missing account", func(t *testing.T) {
		f := newFixture(t)
		f.expectValidSession("u1", "482913")
		f.accountRepo.EXPECT().Increment(gomock.Any(), "u1", gomock.Any()).Return(decimal.Zero, pkgerrors.ErrAccountNotFound)

		_, err := f.service.ApplyTransaction(ctx, "u1", "482913", "5")
		assert.ErrorIs(t, err, pkgerrors.ErrAccountNotFound)
	})

	t.Run("no producer configured", func(t *testing.T) {
		f := newFixture(t)
		f.service.producer = nil
		f.expectValidSession("u1", "482913")
		f.accountRepo.EXPECT().Increment(gomock.Any(), "u1", gomock.Any()).Return(decimal.NewFromInt(50), nil)

		balance, err := f.service.ApplyTransaction(ctx, "u1", "482913", "50")
		require.NoError(t, err)
		assert.Equal(t, "50", balance.String())
	})
}

func TestParseAmount(t *testing.T) {
	for _, amount := range []string{"50", "-20.5", "1e3", "1e6111", "1e-6176", "1234567890123456789012345678901234"} {
		d, err := parseAmount(amount)
		require.NoError(t, err, amount)
		assert.LessOrEqual(t, d.NumDigits(), maxAmountDigits)
	}

	for _, amount := range []string{"", "abc", "1e10000000", "-1e2147483647", "1e6112", "12345678901234567890123456789012345"} {
		_, err := parseAmount(amount)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount, amount)
	}
}
