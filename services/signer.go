package services

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	serrors "go.pilab.hu/authserver/errors"
	"go.pilab.hu/authserver/internal/crypto"
)

const signingAlgorithm = "RS256"

// Verification failure messages.
const (
	MsgTokenExpired           = "token has expired"
	MsgTokenInvalidSignature  = "invalid token signature"
	MsgTokenAudienceMismatch  = "token audience mismatch"
	MsgTokenVerificationError = "token verification failed"
)

// TokenClaims is the access token payload.
//
//nolint:tagliatelle
type TokenClaims struct {
	Email    string   `json:"email,omitempty"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Scope    string   `json:"scope,omitempty"`
	ClientID string   `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

// SignerConfig configures a TokenSigner.
type SignerConfig struct {
	Issuer   string
	Audience []string
	Lifetime time.Duration
}

// TokenSigner issues and verifies RS256 access tokens with a single key pair.
type TokenSigner struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyID      string
	issuer     string
	audience   []string
	lifetime   time.Duration
	now        func() time.Time
}

// NewTokenSigner creates a new Signer instance
func NewTokenSigner(keys *crypto.KeyPair, cfg SignerConfig) *TokenSigner {
	return &TokenSigner{
		privateKey: keys.PrivateKey,
		publicKey:  keys.PublicKey,
		keyID:      keys.KeyID,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		lifetime:   cfg.Lifetime,
		now:        time.Now,
	}
}

// Lifetime is the configured access token lifetime.
func (s *TokenSigner) Lifetime() time.Duration { return s.lifetime }

// Sign stamps iss, aud, iat and exp onto claims and signs them. The caller
// supplies sub and the custom claims.
func (s *TokenSigner) Sign(claims TokenClaims) (string, error) {
	issuedAt := s.now().Truncate(time.Second)

	claims.Issuer = s.issuer
	claims.Audience = append(jwt.ClaimStrings(nil), s.audience...)
	claims.IssuedAt = jwt.NewNumericDate(issuedAt)
	claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(s.lifetime))

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify checks the signature, pinned to RS256, the issuer, expiry and, when
// expectedAudience is not empty, audience membership. Every failure is an
// invalid_token error that does not carry the library error.
func (s *TokenSigner) Verify(tokenString, expectedAudience string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingAlgorithm}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if expectedAudience != "" {
		opts = append(opts, jwt.WithAudience(expectedAudience))
	}

	claims := &TokenClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, mapVerifyError(err)
	}

	return claims, nil
}

// Decode parses the token without checking anything. It returns nil when the
// token cannot be parsed. Never use the result for authorization decisions.
func (s *TokenSigner) Decode(tokenString string) *TokenClaims {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil
	}

	return claims
}

func mapVerifyError(err error) *serrors.OAuth2Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return serrors.NewInvalidToken(MsgTokenExpired)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return serrors.NewInvalidToken(MsgTokenAudienceMismatch)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return serrors.NewInvalidToken(MsgTokenInvalidSignature)
	default:
		return serrors.NewInvalidToken(MsgTokenVerificationError)
	}
}
