package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

const (
	UsersCollection    = "oauth_users"
	ClientsCollection  = "oauth_clients"
	CodesCollection    = "oauth_auth_codes"
	SessionsCollection = "oauth_user_sessions"

	connectTimeout = 10 * time.Second
	pingTimeout    = 2 * time.Second
)

// Connect opens an instrumented client and verifies it against the primary.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	log.Info().Str("database", dbName).Msg("Initializing MongoDB client")

	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectTimeout).
		SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := Ping(ctx, client); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB primary: %w", err)
	}

	log.Info().Msg("MongoDB client initialized successfully.")

	return client, client.Database(dbName), nil
}

// Ping checks the primary with a short timeout. Used by the health check.
func Ping(ctx context.Context, client *mongo.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	return client.Ping(pingCtx, readpref.Primary())
}

// Disconnect closes the client on shutdown.
func Disconnect(ctx context.Context, client *mongo.Client) {
	log.Info().Msg("Closing MongoDB connection.")

	if err := client.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("Error closing MongoDB connection")
	}
}

// ensureIndexes creates indexes and only warns on failure, since an existing
// index with different options is not fatal at startup.
func ensureIndexes(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) {
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		log.Warn().Err(err).Str("collection", coll.Name()).
			Msg("Error creating indexes (may already exist or options conflict)")

		return
	}

	log.Debug().Str("collection", coll.Name()).Msg("Indexes ensured.")
}
