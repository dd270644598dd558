package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth2Error represents a standardized OAuth 2.0 error
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`

	// Status is the HTTP status the error is rendered with.
	Status int `json:"-"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPStatus returns the status code for the error, falling back to 400.
func (e *OAuth2Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusBadRequest
	}

	return e.Status
}

// Standard OAuth2 error codes
const (
	InvalidRequest          = "invalid_request"
	UnauthorizedClient      = "unauthorized_client"
	AccessDenied            = "access_denied"
	UnsupportedGrantType    = "unsupported_grant_type"
	UnsupportedResponseType = "unsupported_response_type"
	InvalidScope            = "invalid_scope"
	InvalidClient           = "invalid_client"
	InvalidGrant            = "invalid_grant"
	InvalidToken            = "invalid_token"
	ServerError             = "server_error"
	TemporarilyUnavailable  = "temporarily_unavailable"

	// Unauthorized is returned by the login endpoint. It is not part of RFC 6749.
	Unauthorized = "unauthorized"
)

// Descriptions shared by callers that must stay indistinguishable.
const (
	DescInvalidAuthorizationCode = "invalid authorization code"
	DescExpiredAuthorizationCode = "authorization code has expired"
	DescInvalidCredentials       = "invalid credentials"
)

// Common error constructors
func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: description,
		Status:      http.StatusBadRequest,
	}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidClient,
		Description: description,
		Status:      http.StatusUnauthorized,
	}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidGrant,
		Description: description,
		Status:      http.StatusUnauthorized,
	}
}

// NewInvalidAuthorizationCode covers unknown, replayed, redirect-mismatched and
// PKCE-failed codes. All of them render identically.
func NewInvalidAuthorizationCode() *OAuth2Error {
	return NewInvalidGrant(DescInvalidAuthorizationCode)
}

func NewExpiredAuthorizationCode() *OAuth2Error {
	return NewInvalidGrant(DescExpiredAuthorizationCode)
}

func NewInvalidToken(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidToken,
		Description: description,
		Status:      http.StatusUnauthorized,
	}
}

// NewUnauthorized is used by the login path for both bad credentials and
// inactive accounts.
func NewUnauthorized() *OAuth2Error {
	return &OAuth2Error{
		Code:        Unauthorized,
		Description: DescInvalidCredentials,
		Status:      http.StatusUnauthorized,
	}
}

// NewAuthenticationRequired is returned when an authorization request arrives
// without a live session.
func NewAuthenticationRequired() *OAuth2Error {
	return &OAuth2Error{
		Code:        Unauthorized,
		Description: "authentication required",
		Status:      http.StatusUnauthorized,
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        ServerError,
		Description: description,
		Status:      http.StatusInternalServerError,
	}
}

// PKCE specific errors
func NewPKCERequired() *OAuth2Error {
	return NewInvalidRequest("PKCE is required for this client")
}

func NewInvalidPKCE(description string) *OAuth2Error {
	return NewInvalidRequest(fmt.Sprintf("PKCE validation failed: %s", description))
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidScope,
		Description: description,
		Status:      http.StatusBadRequest,
	}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        UnauthorizedClient,
		Description: description,
		Status:      http.StatusUnauthorized,
	}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
		Status:      http.StatusBadRequest,
	}
}

func NewUnsupportedResponseType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedResponseType,
		Description: "only response_type=code is supported",
		Status:      http.StatusBadRequest,
	}
}

// AsOAuth2Error unwraps err into an *OAuth2Error if the chain contains one.
func AsOAuth2Error(err error) (*OAuth2Error, bool) {
	var oauthErr *OAuth2Error
	if errors.As(err, &oauthErr) {
		return oauthErr, true
	}

	return nil, false
}

// HasCode reports whether err is an OAuth2Error with the given code.
func HasCode(err error, code string) bool {
	oauthErr, ok := AsOAuth2Error(err)
	return ok && oauthErr.Code == code
}
