package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/account-ledger/internal/infrastructure/observability"
	"github.com/honeynil/account-ledger/internal/models"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/attribute"
)

type userDocument struct {
	ID           primitive.ObjectID `bson:"_id"`
	Username     string             `bson:"username"`
	PasswordHash string             `bson:"passwordHash"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

type UserRepository struct {
	users    *mongo.Collection
	accounts *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		users:    db.Collection(usersCollection),
		accounts: db.Collection(accountsCollection),
	}
}

// CreateWithAccount inserts the user, then its account. Multi-document
// transactions need a replica set, so a failed account insert is undone by
// deleting the user again.
func (r *UserRepository) CreateWithAccount(ctx context.Context, user *models.User, account *models.Account) (err error) {
	ctx, span, done := observability.TrackRepositoryCall(ctx, storeName, "CreateUserWithAccount")
	defer func() { done(err) }()

	if user == nil || account == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Username == "" || user.PasswordHash == "" {
		return fmt.Errorf("%w: username and password hash are required", pkgerrors.ErrInvalidInput)
	}
	span.SetAttributes(attribute.String("username", user.Username))

	amount, err := toDecimal128(account.Amount)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	userOID := primitive.NewObjectID()
	_, err = r.users.InsertOne(ctx, userDocument{
		ID:           userOID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return pkgerrors.ErrUsernameExists
	}
	if err != nil {
		return fmt.Errorf("mongo insert user: %w", err)
	}

	accountOID := primitive.NewObjectID()
	_, err = r.accounts.InsertOne(ctx, bson.D{
		{Key: "_id", Value: accountOID},
		{Key: "userId", Value: userOID},
		{Key: "amount", Value: amount},
		{Key: "createdAt", Value: now},
	})
	if err != nil {
		insertErr := fmt.Errorf("mongo insert account: %w", err)
		if _, delErr := r.users.DeleteOne(ctx, bson.M{"_id": userOID}); delErr != nil {
			slog.Error("failed to remove user after account insert failure",
				"user_id", userOID.Hex(), "error", delErr)
			return errors.Join(insertErr, fmt.Errorf("compensation failed: %w", delErr))
		}
		return insertErr
	}

	user.ID = userOID.Hex()
	user.CreatedAt = now
	account.ID = accountOID.Hex()
	account.UserID = user.ID
	account.CreatedAt = now
	slog.Info("user created", "method", "CreateWithAccount", "user_id", user.ID, "account_id", account.ID)
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (_ *models.User, err error) {
	ctx, _, done := observability.TrackRepositoryCall(ctx, storeName, "GetUserByUsername")
	defer func() { done(err) }()

	if username == "" {
		return nil, pkgerrors.ErrUserNotFound
	}

	var doc userDocument
	err = r.users.FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, pkgerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find user: %w", err)
	}
	return &models.User{
		ID:           doc.ID.Hex(),
		Username:     doc.Username,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
	}, nil
}
