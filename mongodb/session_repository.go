package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/authserver/cache"
	"go.pilab.hu/authserver/domain"
)

// sessionDocument is keyed by the session id hash. The id is the cookie
// value, so it is never stored.
type sessionDocument struct {
	ID        string            `bson:"_id"`
	UserID    string            `bson:"user_id"`
	CreatedAt time.Time         `bson:"created_at"`
	ExpiresAt time.Time         `bson:"expires_at"`
	UserAgent string            `bson:"user_agent,omitempty"`
	IPAddress string            `bson:"ip_address,omitempty"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
}

// SessionRepository implements domain.SessionRepository using MongoDB.
type SessionRepository struct {
	collection *mongo.Collection
}

// NewSessionRepository creates a new SessionRepository.
// It also ensures that necessary indexes are created on the collection.
func NewSessionRepository(ctx context.Context, db *mongo.Database) *SessionRepository {
	repo := &SessionRepository{collection: db.Collection(SessionsCollection)}

	ensureIndexes(ctx, repo.collection, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index for automatic cleanup
		},
	})

	return repo
}

func (r *SessionRepository) Save(ctx context.Context, session *domain.Session) error {
	doc := sessionDocument{
		ID:        cache.HashToken(session.ID),
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt.UTC(),
		ExpiresAt: session.ExpiresAt.UTC(),
		UserAgent: session.UserAgent,
		IPAddress: session.IPAddress,
		Metadata:  session.Metadata,
	}

	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	var doc sessionDocument

	err := r.collection.FindOne(ctx, bson.M{"_id": cache.HashToken(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}

		return nil, fmt.Errorf("failed to retrieve session: %w", err)
	}

	return &domain.Session{
		ID:        id,
		UserID:    doc.UserID,
		CreatedAt: doc.CreatedAt,
		ExpiresAt: doc.ExpiresAt,
		UserAgent: doc.UserAgent,
		IPAddress: doc.IPAddress,
		Metadata:  doc.Metadata,
	}, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": cache.HashToken(id)}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}
