package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/honeynil/account-ledger/internal/infrastructure/observability"
	"github.com/honeynil/account-ledger/internal/models"
	pkgerrors "github.com/honeynil/account-ledger/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/attribute"
)

type sessionDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	UserID    primitive.ObjectID `bson:"userId"`
	Token     string             `bson:"token"`
	CreatedAt time.Time          `bson:"createdAt"`
	ExpiresAt time.Time          `bson:"expiresAt"`
}

type SessionRepository struct {
	col *mongo.Collection
}

func NewSessionRepository(db *mongo.Database) *SessionRepository {
	return &SessionRepository{col: db.Collection(sessionsCollection)}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (err error) {
	ctx, _, done := observability.TrackRepositoryCall(ctx, storeName, "CreateSession")
	defer func() { done(err) }()

	if session == nil {
		return pkgerrors.ErrNilSession
	}
	userOID, err := primitive.ObjectIDFromHex(session.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrInvalidID, err)
	}

	oid := primitive.NewObjectID()
	_, err = r.col.InsertOne(ctx, sessionDocument{
		ID:        oid,
		UserID:    userOID,
		Token:     session.Token,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("mongo insert session: %w", err)
	}
	session.ID = oid.Hex()
	return nil
}

func (r *SessionRepository) Find(ctx context.Context, userID, token string, now time.Time) (_ *models.Session, err error) {
	ctx, span, done := observability.TrackRepositoryCall(ctx, storeName, "FindSession")
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("user_id", userID))

	userOID, parseErr := primitive.ObjectIDFromHex(userID)
	if parseErr != nil {
		return nil, pkgerrors.ErrSessionNotFound
	}

	var doc sessionDocument
	err = r.col.FindOne(ctx, bson.M{
		"userId":    userOID,
		"token":     token,
		"expiresAt": bson.M{"$gt": now},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, pkgerrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find session: %w", err)
	}
	return &models.Session{
		ID:        doc.ID.Hex(),
		UserID:    doc.UserID.Hex(),
		Token:     doc.Token,
		CreatedAt: doc.CreatedAt,
		ExpiresAt: doc.ExpiresAt,
	}, nil
}

// DeleteExpired complements the TTL index, whose monitor only runs once a minute.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (_ int64, err error) {
	ctx, _, done := observability.TrackRepositoryCall(ctx, storeName, "DeleteExpiredSessions")
	defer func() { done(err) }()

	res, err := r.col.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": before}})
	if err != nil {
		return 0, fmt.Errorf("mongo delete expired sessions: %w", err)
	}
	return res.DeletedCount, nil
}
