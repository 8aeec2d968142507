package mongodb_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/honeynil/account-ledger/internal/models"
	"github.com/honeynil/account-ledger/internal/repository/mongodb"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func ns(mt *mtest.T, collection string) string {
	return fmt.Sprintf("%s.%s", mt.DB.Name(), collection)
}

func dec128(t *testing.T, s string) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(s)
	require.NoError(t, err)
	return v
}

func TestUserRepository_CreateWithAccount(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("success", func(mt *mtest.T) {
		repo := mongodb.NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		user := &models.User{Username: "alice", PasswordHash: "hash"}
		account := &models.Account{Amount: decimal.Zero}
		require.NoError(mt, repo.CreateWithAccount(ctx, user, account))

		assert.True(mt, primitive.IsValidObjectID(user.ID))
		assert.True(mt, primitive.IsValidObjectID(account.ID))
		assert.Equal(mt, user.ID, account.UserID)
		assert.False(mt, user.CreatedAt.IsZero())
	})

	mt.Run("duplicate username", func(mt *mtest.T) {
		repo := mongodb.NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: ledger.users index: username_1",
		}))

		err := repo.CreateWithAccount(ctx, &models.User{Username: "alice", PasswordHash: "hash"}, &models.Account{})
		assert.ErrorIs(mt, err, pkgerrors.ErrUsernameExists)
	})

	mt.Run("account insert failure removes user", func(mt *mtest.T) {
		repo := mongodb.NewUserRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad value"}),
			bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}},
		)

		user := &models.User{Username: "bob", PasswordHash: "hash"}
		err := repo.CreateWithAccount(ctx, user, &models.Account{})
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "mongo insert account")
		assert.NotContains(mt, err.Error(), "compensation failed")
		assert.Empty(mt, user.ID)

		started := mt.GetAllStartedEvents()
		require.Len(mt, started, 3)
		assert.Equal(mt, "delete", started[2].CommandName)
	})
}

func TestUserRepository_GetByUsername(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("found", func(mt *mtest.T) {
		repo := mongodb.NewUserRepository(mt.DB)
		oid := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "users"), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: oid},
			{Key: "username", Value: "alice"},
			{Key: "passwordHash", Value: "hash"},
			{Key: "createdAt", Value: time.Now()},
		}))

		user, err := repo.GetByUsername(ctx, "alice")
		require.NoError(mt, err)
		assert.Equal(mt, oid.Hex(), user.ID)
		assert.Equal(mt, "hash", user.PasswordHash)
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := mongodb.NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "users"), mtest.FirstBatch))

		user, err := repo.GetByUsername(ctx, "ghost")
		assert.Nil(mt, user)
		assert.ErrorIs(mt, err, pkgerrors.ErrUserNotFound)
	})
}

func TestAccountRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	userOID := primitive.NewObjectID()

	mt.Run("get by user id", func(mt *mtest.T) {
		repo := mongodb.NewAccountRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "accounts"), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "userId", Value: userOID},
			{Key: "amount", Value: dec128(t, "12.50")},
			{Key: "createdAt", Value: time.Now()},
		}))

		account, err := repo.GetByUserID(ctx, userOID.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, userOID.Hex(), account.UserID)
		assert.True(mt, decimal.RequireFromString("12.5").Equal(account.Amount))
	})

	mt.Run("legacy integer amount", func(mt *mtest.T) {
		repo := mongodb.NewAccountRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "accounts"), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "userId", Value: userOID},
			{Key: "amount", Value: int32(0)},
			{Key: "createdAt", Value: time.Now()},
		}))

		account, err := repo.GetByUserID(ctx, userOID.Hex())
		require.NoError(mt, err)
		assert.True(mt, account.Amount.IsZero())
	})

	mt.Run("missing account", func(mt *mtest.T) {
		repo := mongodb.NewAccountRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "accounts"), mtest.FirstBatch))

		_, err := repo.GetByUserID(ctx, userOID.Hex())
		assert.ErrorIs(mt, err, pkgerrors.ErrAccountNotFound)
	})

	mt.Run("malformed user id", func(mt *mtest.T) {
		repo := mongodb.NewAccountRepository(mt.DB)

		_, err := repo.GetByUserID(ctx, "not-an-object-id")
		assert.ErrorIs(mt, err, pkgerrors.ErrAccountNotFound)
		assert.Empty(mt, mt.GetAllStartedEvents())
	})

	mt.Run("increment returns server balance", func(mt *mtest.T) {
		repo := mongodb.NewAccountRepository(mt.DB)
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: bson.D{
				{Key: "_id", Value: primitive.NewObjectID()},
				{Key: "userId", Value: userOID},
				{Key: "amount", Value: dec128(t, "30")},
				{Key: "createdAt", Value: time.Now()},
			}},
		})

		balance, err := repo.Increment(ctx, userOID.Hex(), decimal.NewFromInt(-20))
		require.NoError(mt, err)
		assert.Equal(mt, "30", balance.String())

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "findAndModify", started.CommandName)
	})
}

func TestSessionRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	userOID := primitive.NewObjectID()
	now := time.Now().UTC().Truncate(time.Millisecond)

	mt.Run("create", func(mt *mtest.T) {
		repo := mongodb.NewSessionRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		s := &models.Session{UserID: userOID.Hex(), Token: "654321", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
		require.NoError(mt, repo.Create(ctx, s))
		assert.True(mt, primitive.IsValidObjectID(s.ID))
	})

	mt.Run("create with malformed user id", func(mt *mtest.T) {
		repo := mongodb.NewSessionRepository(mt.DB)
		err := repo.Create(ctx, &models.Session{UserID: "nope", Token: "654321"})
		assert.ErrorIs(mt, err, pkgerrors.ErrInvalidID)
	})

	mt.Run("find", func(mt *mtest.T) {
		repo := mongodb.NewSessionRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "sessions"), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "userId", Value: userOID},
			{Key: "token", Value: "654321"},
			{Key: "createdAt", Value: now},
			{Key: "expiresAt", Value: now.Add(time.Hour)},
		}))

		s, err := repo.Find(ctx, userOID.Hex(), "654321", now)
		require.NoError(mt, err)
		assert.Equal(mt, "654321", s.Token)
		assert.Equal(mt, userOID.Hex(), s.UserID)
	})

	mt.Run("find unknown token", func(mt *mtest.T) {
		repo := mongodb.NewSessionRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, "sessions"), mtest.FirstBatch))

		s, err := repo.Find(ctx, userOID.Hex(), "000000", now)
		assert.Nil(mt, s)
		assert.ErrorIs(mt, err, pkgerrors.ErrSessionNotFound)
	})

	mt.Run("delete expired", func(mt *mtest.T) {
		repo := mongodb.NewSessionRepository(mt.DB)
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 4}})

		n, err := repo.DeleteExpired(ctx, now)
		require.NoError(mt, err)
		assert.Equal(mt, int64(4), n)
	})
}

func TestDatabaseFromURI(t *testing.T) {
	assert.Equal(t, "bank", mongodb.DatabaseFromURI("mongodb://localhost:27017/bank"))
	assert.Equal(t, mongodb.DefaultDatabase, mongodb.DatabaseFromURI("mongodb://localhost:27017"))
	assert.Equal(t, mongodb.DefaultDatabase, mongodb.DatabaseFromURI("::not a uri::"))
}
