package mongodb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/honeynil/account-ledger/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	storeName = "mongo"

	usersCollection    = "users"
	accountsCollection = "accounts"
	sessionsCollection = "sessions"

	// DefaultDatabase is used when the connection string names none.
	DefaultDatabase = "ledger"
)

type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	users    *UserRepository
	accounts *AccountRepository
	sessions *SessionRepository
}

var _ repository.Store = (*Store)(nil)

func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if database == "" {
		database = DatabaseFromURI(uri)
	}
	slog.Info("connected to MongoDB", "database", database)
	return New(client, client.Database(database)), nil
}

func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:   client,
		db:       db,
		users:    NewUserRepository(db),
		accounts: NewAccountRepository(db),
		sessions: NewSessionRepository(db),
	}
}

// DatabaseFromURI returns the database named in the path of uri, or
// DefaultDatabase.
func DatabaseFromURI(uri string) string {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil || cs.Database == "" {
		return DefaultDatabase
	}
	return cs.Database
}

func (s *Store) Users() repository.UserRepository       { return s.users }
func (s *Store) Accounts() repository.AccountRepository { return s.accounts }
func (s *Store) Sessions() repository.SessionRepository { return s.sessions }

// Migrate creates the indexes the repositories rely on: unique usernames,
// one account per user, session lookup, and TTL eviction of expired sessions.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		accountsCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		sessionsCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "token", Value: 1}}},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}
	for _, name := range []string{usersCollection, accountsCollection, sessionsCollection} {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexes[name]); err != nil {
			return fmt.Errorf("mongo indexes on %s: %w", name, err)
		}
	}
	slog.Info("mongo indexes ensured")
	return nil
}

func (s *Store) Database() *mongo.Database {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
