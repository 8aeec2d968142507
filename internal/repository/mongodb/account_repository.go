package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/honeynil/account-ledger/internal/infrastructure/observability"
	"github.com/honeynil/account-ledger/internal/models"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
)

// accountDocument keeps amount raw: documents written by other clients may
// hold it as int32, int64 or double instead of Decimal128.
type accountDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	UserID    primitive.ObjectID `bson:"userId"`
	Amount    bson.RawValue      `bson:"amount"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d *accountDocument) model() (*models.Account, error) {
	amount, err := fromRaw(d.Amount)
	if err != nil {
		return nil, err
	}
	return &models.Account{
		ID:        d.ID.Hex(),
		UserID:    d.UserID.Hex(),
		Amount:    amount,
		CreatedAt: d.CreatedAt,
	}, nil
}

type AccountRepository struct {
	col *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{col: db.Collection(accountsCollection)}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID string) (_ *models.Account, err error) {
	ctx, span, done := observability.TrackRepositoryCall(ctx, storeName, "GetAccountByUserID")
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("user_id", userID))

	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrAccountNotFound, err)
	}

	var doc accountDocument
	err = r.col.FindOne(ctx, bson.M{"userId": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, pkgerrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find account: %w", err)
	}
	return doc.model()
}

// Increment applies $inc and returns the document as it is after the update,
// so the balance comes from the server rather than from local arithmetic.
func (r *AccountRepository) Increment(ctx context.Context, userID string, delta decimal.Decimal) (_ decimal.Decimal, err error) {
	ctx, span, done := observability.TrackRepositoryCall(ctx, storeName, "IncrementAccount")
	defer func() { done(err) }()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("delta", delta.String()),
	)

	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", pkgerrors.ErrAccountNotFound, err)
	}
	inc, err := toDecimal128(delta)
	if err != nil {
		return decimal.Zero, err
	}

	var doc accountDocument
	err = r.col.FindOneAndUpdate(ctx,
		bson.M{"userId": oid},
		bson.M{"$inc": bson.M{"amount": inc}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return decimal.Zero, pkgerrors.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("mongo increment account: %w", err)
	}

	account, err := doc.model()
	if err != nil {
		return decimal.Zero, err
	}
	return account.Amount, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidAmount, err)
	}
	return v, nil
}

func fromRaw(v bson.RawValue) (decimal.Decimal, error) {
	switch v.Type {
	case bsontype.Decimal128:
		return decimal.NewFromString(v.Decimal128().String())
	case bsontype.Double:
		return decimal.NewFromFloat(v.Double()), nil
	case bsontype.Int32:
		return decimal.NewFromInt32(v.Int32()), nil
	case bsontype.Int64:
		return decimal.NewFromInt(v.Int64()), nil
	case bsontype.Type(0), bsontype.Null:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %s", v.Type)
	}
}
