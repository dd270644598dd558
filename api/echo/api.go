//nolint:varnamelen
package echoapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/authserver/api"
	"go.pilab.hu/authserver/domain"
	serrors "go.pilab.hu/authserver/errors"
	"go.pilab.hu/authserver/services"
)

// CookieConfig controls the session cookie set at login.
type CookieConfig struct {
	Name   string
	Secure bool
}

// OAuth2API struct to hold dependencies.
type OAuth2API struct {
	login    *services.LoginService
	codes    *services.AuthCodeService
	exchange *services.TokenExchangeService
	jwks     *services.JWKSService
	metadata *api.AuthorizationServerMetadata
	cookie   CookieConfig
}

// NewOAuth2API initializes the OAuth2 API.
func NewOAuth2API(
	login *services.LoginService,
	codes *services.AuthCodeService,
	exchange *services.TokenExchangeService,
	jwks *services.JWKSService,
	metadata *api.AuthorizationServerMetadata,
	cookie CookieConfig,
) *OAuth2API {
	if cookie.Name == "" {
		cookie.Name = "session_id"
	}

	return &OAuth2API{
		login:    login,
		codes:    codes,
		exchange: exchange,
		jwks:     jwks,
		metadata: metadata,
		cookie:   cookie,
	}
}

// RegisterRoutes registers the OAuth2 routes.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.POST(api.PathLogin, oa.LoginHandler)
	e.POST(api.PathLogout, oa.LogoutHandler)

	e.GET(api.PathAuthorize, oa.AuthorizeHandler)
	e.POST(api.PathToken, oa.TokenHandler)

	e.GET(api.PathJWKS, oa.JWKSHandler)
	e.GET(api.PathMetadata, oa.MetadataHandler)
}

// LoginHandler authenticates the resource owner and sets the session cookie.
func (oa *OAuth2API) LoginHandler(c echo.Context) error {
	var form api.LoginForm
	if err := c.Bind(&form); err != nil {
		return writeError(c, serrors.NewInvalidRequest("malformed login request"))
	}

	result, err := oa.login.Login(c.Request().Context(), services.LoginRequest{
		Identifier: form.Identifier,
		Password:   form.Password,
		RememberMe: form.RememberMe,
		UserAgent:  c.Request().UserAgent(),
		IPAddress:  c.RealIP(),
	})
	if err != nil {
		return writeError(c, err)
	}

	c.SetCookie(oa.sessionCookie(result.SessionID, result.ExpiresAt))

	return c.JSON(http.StatusOK, result)
}

// LogoutHandler deletes the current session, if any, and clears the cookie.
func (oa *OAuth2API) LogoutHandler(c echo.Context) error {
	if cookie, err := c.Cookie(oa.cookie.Name); err == nil {
		if err := oa.login.Logout(c.Request().Context(), cookie.Value); err != nil {
			return writeError(c, err)
		}
	}

	c.SetCookie(oa.sessionCookie("", time.Unix(0, 0)))

	return c.NoContent(http.StatusNoContent)
}

// AuthorizeHandler issues a code for the session in the cookie and
// redirects to the client with code and state.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	var query api.AuthorizeQuery
	if err := c.Bind(&query); err != nil {
		return writeError(c, serrors.NewInvalidRequest("malformed authorization request"))
	}

	ctx := c.Request().Context()

	// A missing or stale session is passed as nil so the issuer reports it.
	var session *domain.Session
	if cookie, err := c.Cookie(oa.cookie.Name); err == nil {
		session, err = oa.login.Session(ctx, cookie.Value)
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return writeError(c, err)
		}
	}

	resp, err := oa.codes.Issue(ctx, services.AuthorizeRequest{
		ClientID:            query.ClientID,
		RedirectURI:         query.RedirectURI,
		ResponseType:        query.ResponseType,
		CodeChallenge:       query.CodeChallenge,
		CodeChallengeMethod: query.CodeChallengeMethod,
		Scope:               query.Scope,
		State:               query.State,
	}, session)
	if err != nil {
		return writeError(c, err)
	}

	redirectURL, err := resp.RedirectURL()
	if err != nil {
		return writeError(c, serrors.NewInvalidRequest("invalid redirect_uri"))
	}

	return c.Redirect(http.StatusFound, redirectURL)
}

// TokenHandler redeems an authorization code. Only the authorization_code
// grant is supported.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	var form api.TokenForm
	if err := c.Bind(&form); err != nil {
		return writeError(c, serrors.NewInvalidRequest("malformed token request"))
	}

	if form.GrantType != services.GrantTypeAuthorizationCode {
		return writeError(c, serrors.NewUnsupportedGrantType())
	}

	resp, err := oa.exchange.Exchange(c.Request().Context(), services.TokenRequest{
		Code:         form.Code,
		ClientID:     form.ClientID,
		RedirectURI:  form.RedirectURI,
		CodeVerifier: form.CodeVerifier,
	})
	if err != nil {
		return writeError(c, err)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().Header().Set("Pragma", "no-cache")

	return c.JSON(http.StatusOK, resp)
}

func (oa *OAuth2API) JWKSHandler(c echo.Context) error {
	jwks, err := oa.jwks.GetJWKS()
	if err != nil {
		log.Error().Err(err).Msg("Failed to build JWKS")
		return writeError(c, serrors.NewServerError("key set unavailable"))
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=3600")

	return c.JSON(http.StatusOK, jwks)
}

func (oa *OAuth2API) MetadataHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, oa.metadata)
}

func (oa *OAuth2API) sessionCookie(value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     oa.cookie.Name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   oa.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	}

	return cookie
}

// writeError renders OAuth2 errors with their status. Anything else is
// logged and hidden behind a server_error.
func writeError(c echo.Context, err error) error {
	oauthErr, ok := serrors.AsOAuth2Error(err)
	if !ok {
		log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
		oauthErr = serrors.NewServerError("internal server error")
	}

	return c.JSON(oauthErr.HTTPStatus(), oauthErr)
}
