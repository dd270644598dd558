package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuth2Error_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		err    *OAuth2Error
		code   string
		status int
	}{
		{"invalid request", NewInvalidRequest("bad"), InvalidRequest, http.StatusBadRequest},
		{"invalid client", NewInvalidClient("bad"), InvalidClient, http.StatusUnauthorized},
		{"invalid code", NewInvalidAuthorizationCode(), InvalidGrant, http.StatusUnauthorized},
		{"expired code", NewExpiredAuthorizationCode(), InvalidGrant, http.StatusUnauthorized},
		{"unauthorized client", NewUnauthorizedClient("bad"), UnauthorizedClient, http.StatusUnauthorized},
		{"invalid token", NewInvalidToken("bad"), InvalidToken, http.StatusUnauthorized},
		{"login", NewUnauthorized(), Unauthorized, http.StatusUnauthorized},
		{"server", NewServerError("boom"), ServerError, http.StatusInternalServerError},
		{"grant type", NewUnsupportedGrantType(), UnsupportedGrantType, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
		})
	}
}

func TestOAuth2Error_ZeroStatusDefaultsToBadRequest(t *testing.T) {
	err := &OAuth2Error{Code: InvalidScope}
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
}

func TestAsOAuth2Error_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("exchange: %w", NewInvalidAuthorizationCode())

	oauthErr, ok := AsOAuth2Error(wrapped)
	require.True(t, ok)
	assert.Equal(t, DescInvalidAuthorizationCode, oauthErr.Description)
	assert.True(t, HasCode(wrapped, InvalidGrant))
	assert.False(t, HasCode(fmt.Errorf("plain"), InvalidGrant))
}
