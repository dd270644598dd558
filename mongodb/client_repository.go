package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/authserver/domain"
)

// ClientRepository reads registered OAuth clients. Registration happens
// elsewhere.
type ClientRepository struct {
	coll *mongo.Collection
}

func NewClientRepository(ctx context.Context, db *mongo.Database) *ClientRepository {
	repo := &ClientRepository{coll: db.Collection(ClientsCollection)}

	ensureIndexes(ctx, repo.coll, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "client_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})

	return repo
}

func (s *ClientRepository) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var cli domain.Client

	err := s.coll.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&cli)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrClientNotFound
		}

		return nil, fmt.Errorf("failed to retrieve client: %w", err)
	}

	return &cli, nil
}
