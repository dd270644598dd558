package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/authserver/domain"
	"go.pilab.hu/authserver/services"
)

// UserRepository implements domain.UserRepository. Passwords are always
// checked through the hasher, never compared directly.
type UserRepository struct {
	users  *mongo.Collection
	hasher services.PasswordHasher
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(ctx context.Context, db *mongo.Database, hasher services.PasswordHasher) *UserRepository {
	repo := &UserRepository{
		users:  db.Collection(UsersCollection),
		hasher: hasher,
	}

	ensureIndexes(ctx, repo.users, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(&options.Collation{Locale: "en", Strength: 2}), // Case-insensitive unique email
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	})

	return repo
}

// Create inserts a user, hashing password. It is used by tooling and tests;
// the server itself only reads users.
func (r *UserRepository) Create(ctx context.Context, user *domain.User, password string) error {
	hash, err := r.hasher.Hash(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	user.PasswordHash = hash
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("user with this email or username already exists: %w", err)
		}

		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// ValidateCredentials looks the identifier up as email or username.
func (r *UserRepository) ValidateCredentials(ctx context.Context, identifier, password string) (*domain.User, error) {
	user, err := r.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"email": identifier},
		bson.M{"username": identifier},
	}}, options.FindOne().SetCollation(&options.Collation{Locale: "en", Strength: 2}))
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := r.hasher.Verify(user.PasswordHash, password); err != nil {
		log.Debug().Str("user_id", user.ID).Msg("password verification failed")
		return nil, domain.ErrInvalidCredentials
	}

	return user, nil
}

func (r *UserRepository) findOne(
	ctx context.Context,
	filter bson.M,
	opts ...options.Lister[options.FindOneOptions],
) (*domain.User, error) {
	var user domain.User

	err := r.users.FindOne(ctx, filter, opts...).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}

	return &user, nil
}
