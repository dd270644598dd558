package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCode(t *testing.T, createdAt time.Time) *AuthorizationCode {
	t.Helper()

	clientID, err := NewClientID("client-1")
	require.NoError(t, err)

	code, err := NewAuthorizationCode(AuthorizationCodeParams{
		Code:          "code-value",
		UserID:        "user-1",
		ClientID:      clientID,
		RedirectURI:   "https://app.example.com/callback",
		CodeChallenge: RestoreCodeChallenge("challenge", CodeChallengeMethodPlain),
		CreatedAt:     createdAt,
		TTL:           5 * time.Minute,
	})
	require.NoError(t, err)

	return code
}

func TestAuthorizationCode_ExpiryBoundary(t *testing.T) {
	createdAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	code := newTestCode(t, createdAt)

	assert.Equal(t, createdAt.Add(5*time.Minute), code.ExpiresAt)
	assert.False(t, code.IsExpiredAt(createdAt.Add(4*time.Minute+59*time.Second)))
	assert.False(t, code.IsExpiredAt(code.ExpiresAt))
	assert.True(t, code.IsExpiredAt(createdAt.Add(5*time.Minute+1*time.Second)))
}

func TestNewAuthorizationCode_RejectsNonPositiveTTL(t *testing.T) {
	for _, ttl := range []time.Duration{0, -time.Second} {
		_, err := NewAuthorizationCode(AuthorizationCodeParams{
			Code:      "c",
			UserID:    "u",
			CreatedAt: time.Now(),
			TTL:       ttl,
		})
		assert.Error(t, err)
	}
}

func TestNewAuthorizationCode_RequiresCodeAndUser(t *testing.T) {
	_, err := NewAuthorizationCode(AuthorizationCodeParams{UserID: "u", CreatedAt: time.Now(), TTL: time.Minute})
	assert.Error(t, err)

	_, err = NewAuthorizationCode(AuthorizationCodeParams{Code: "c", CreatedAt: time.Now(), TTL: time.Minute})
	assert.Error(t, err)
}

func TestAuthorizationCode_MarkAsUsedReturnsCopy(t *testing.T) {
	code := newTestCode(t, time.Now())
	require.True(t, code.IsValid())

	used := code.MarkAsUsed()

	assert.True(t, used.IsUsed())
	assert.False(t, used.IsValid())
	assert.False(t, code.IsUsed(), "receiver must not change")
	assert.Equal(t, code.Code, used.Code)
}

func TestAuthorizationCode_IsValidWhenExpired(t *testing.T) {
	code := newTestCode(t, time.Now().Add(-10*time.Minute))

	assert.True(t, code.IsExpired())
	assert.False(t, code.IsValid())
}

func TestAuthorizationCode_EffectiveScope(t *testing.T) {
	code := newTestCode(t, time.Now())
	assert.Equal(t, "read", code.EffectiveScope())

	code.Scope = "read write"
	assert.Equal(t, "read write", code.EffectiveScope())
}
