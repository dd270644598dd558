package api

import "strings"

// Endpoint paths served by the authorization server.
const (
	PathLogin     = "/login"
	PathLogout    = "/logout"
	PathAuthorize = "/oauth2/authorize"
	PathToken     = "/oauth2/token"
	PathJWKS      = "/.well-known/jwks.json"
	PathMetadata  = "/.well-known/oauth-authorization-server"
)

// LoginForm is accepted as JSON or form data.
//
//nolint:tagliatelle
type LoginForm struct {
	Identifier string `json:"identifier"  form:"identifier"`
	Password   string `json:"password"    form:"password"`
	RememberMe bool   `json:"remember_me" form:"remember_me"`
}

// AuthorizeQuery binds the query of an authorization request.
//
//nolint:tagliatelle
type AuthorizeQuery struct {
	ClientID            string `query:"client_id"`
	RedirectURI         string `query:"redirect_uri"`
	ResponseType        string `query:"response_type"`
	CodeChallenge       string `query:"code_challenge"`
	CodeChallengeMethod string `query:"code_challenge_method"`
	Scope               string `query:"scope"`
	State               string `query:"state"`
}

// TokenForm binds an application/x-www-form-urlencoded token request.
//
//nolint:tagliatelle
type TokenForm struct {
	GrantType    string `form:"grant_type"`
	Code         string `form:"code"`
	ClientID     string `form:"client_id"`
	RedirectURI  string `form:"redirect_uri"`
	CodeVerifier string `form:"code_verifier"`
}

// AuthorizationServerMetadata is the RFC 8414 discovery document.
//
//nolint:tagliatelle
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JwksURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
}

// NewAuthorizationServerMetadata derives the endpoint URLs from issuer.
func NewAuthorizationServerMetadata(issuer string) *AuthorizationServerMetadata {
	base := strings.TrimSuffix(issuer, "/")

	return &AuthorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             base + PathAuthorize,
		TokenEndpoint:                     base + PathToken,
		JwksURI:                           base + PathJWKS,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code"},
		CodeChallengeMethodsSupported:     []string{"S256", "plain"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		ScopesSupported:                   []string{"read"},
	}
}
