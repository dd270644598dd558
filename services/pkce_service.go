package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"go.pilab.hu/authserver/domain"
)

// PKCEService checks a code verifier against the challenge stored with an
// authorization code.
type PKCEService struct{}

// NewPKCEService creates a new PKCE service instance
func NewPKCEService() *PKCEService {
	return &PKCEService{}
}

// Verify reports whether verifier satisfies challenge. Unknown methods
// return false. Comparisons are constant-time.
func (s *PKCEService) Verify(challenge domain.CodeChallenge, verifier string) bool {
	switch challenge.Method() {
	case domain.CodeChallengeMethodS256:
		return constantTimeEqual(S256Challenge(verifier), challenge.Value())
	case domain.CodeChallengeMethodPlain:
		return constantTimeEqual(verifier, challenge.Value())
	default:
		return false
	}
}

// S256Challenge returns base64url(sha256(verifier)) without padding.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
