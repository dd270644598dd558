package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/authserver/cache"
	"go.pilab.hu/authserver/domain"
	"go.pilab.hu/authserver/internal/audit"
)

var ErrDuplicateCode = errors.New("authorization code already exists")

// codeDocument is keyed by the code hash; the raw code is never stored.
type codeDocument struct {
	ID                  string     `bson:"_id"`
	UserID              string     `bson:"user_id"`
	ClientID            string     `bson:"client_id"`
	RedirectURI         string     `bson:"redirect_uri"`
	CodeChallenge       string     `bson:"code_challenge"`
	CodeChallengeMethod string     `bson:"code_challenge_method"`
	Scope               string     `bson:"scope,omitempty"`
	State               string     `bson:"state,omitempty"`
	CreatedAt           time.Time  `bson:"created_at"`
	ExpiresAt           time.Time  `bson:"expires_at"`
	Used                bool       `bson:"used"`
	UsedAt              *time.Time `bson:"used_at,omitempty"`
}

// CodeRepository implements domain.CodeRepository.
type CodeRepository struct {
	codes *mongo.Collection
}

// NewCodeRepository creates the repository. Documents are removed by a TTL
// index retention after they expire.
func NewCodeRepository(ctx context.Context, db *mongo.Database, retention time.Duration) *CodeRepository {
	repo := &CodeRepository{codes: db.Collection(CodesCollection)}

	ensureIndexes(ctx, repo.codes, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention / time.Second)),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	})

	return repo
}

func (r *CodeRepository) Save(ctx context.Context, code *domain.AuthorizationCode) error {
	doc := codeDocument{
		ID:                  cache.HashToken(code.Code),
		UserID:              code.UserID,
		ClientID:            code.ClientID.String(),
		RedirectURI:         code.RedirectURI,
		CodeChallenge:       code.CodeChallenge.Value(),
		CodeChallengeMethod: string(code.CodeChallenge.Method()),
		Scope:               code.Scope,
		State:               code.State,
		CreatedAt:           code.CreatedAt.UTC(),
		ExpiresAt:           code.ExpiresAt.UTC(),
		Used:                code.Used,
	}

	if _, err := r.codes.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCode
		}

		log.Error().Err(err).Str("code_prefix", audit.CodePrefix(code.Code)).Msg("Error saving authorization code")

		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	return nil
}

func (r *CodeRepository) FindByCode(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	var doc codeDocument

	err := r.codes.FindOne(ctx, bson.M{"_id": cache.HashToken(code)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAuthCodeNotFound
		}

		return nil, fmt.Errorf("failed to retrieve authorization code: %w", err)
	}

	clientID, err := domain.NewClientID(doc.ClientID)
	if err != nil {
		return nil, fmt.Errorf("%w: client_id: %v", domain.ErrCorruptAuthCode, err) //nolint:errorlint
	}

	return &domain.AuthorizationCode{
		Code:          code,
		UserID:        doc.UserID,
		ClientID:      clientID,
		RedirectURI:   doc.RedirectURI,
		CodeChallenge: domain.RestoreCodeChallenge(doc.CodeChallenge, domain.CodeChallengeMethod(doc.CodeChallengeMethod)),
		Scope:         doc.Scope,
		State:         doc.State,
		CreatedAt:     doc.CreatedAt,
		ExpiresAt:     doc.ExpiresAt,
		Used:          doc.Used,
	}, nil
}

// MarkAsUsed is a conditional update on used=false. The server applies it
// atomically, so of two concurrent callers only one matches.
func (r *CodeRepository) MarkAsUsed(ctx context.Context, code string) error {
	id := cache.HashToken(code)

	result, err := r.codes.UpdateOne(ctx,
		bson.M{"_id": id, "used": false},
		bson.M{"$set": bson.M{"used": true, "used_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark authorization code as used: %w", err)
	}

	if result.MatchedCount == 1 {
		return nil
	}

	n, err := r.codes.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check authorization code: %w", err)
	}

	if n == 0 {
		return domain.ErrAuthCodeNotFound
	}

	return domain.ErrAuthCodeAlreadyUsed
}
