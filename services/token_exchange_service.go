package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go.pilab.hu/authserver/domain"
	serrors "go.pilab.hu/authserver/errors"
	"go.pilab.hu/authserver/internal/audit"
	"go.pilab.hu/authserver/internal/metrics"
	"go.pilab.hu/authserver/log"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	TokenTypeBearer            = "bearer"

	descInactiveUser = "user account is inactive"
)

// AccessTokenSigner signs access token claims.
type AccessTokenSigner interface {
	Sign(claims TokenClaims) (string, error)
	Lifetime() time.Duration
}

// TokenRequest is an authorization_code grant request.
type TokenRequest struct {
	Code         string
	ClientID     string
	RedirectURI  string
	CodeVerifier string
}

// TokenResponse is the successful token endpoint body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

type ExchangeConfig struct {
	// RejectInactiveUsers aborts the exchange for inactive accounts. When
	// false the token is issued and a warning is logged.
	RejectInactiveUsers bool
}

// TokenExchangeService redeems authorization codes for access tokens.
type TokenExchangeService struct {
	codes  domain.CodeRepository
	users  domain.UserRepository
	pkce   *PKCEService
	signer AccessTokenSigner
	cfg    ExchangeConfig
	logger log.Logger
	now    func() time.Time
}

func NewTokenExchangeService(
	codes domain.CodeRepository,
	users domain.UserRepository,
	pkce *PKCEService,
	signer AccessTokenSigner,
	cfg ExchangeConfig,
	logger log.Logger,
) *TokenExchangeService {
	return &TokenExchangeService{
		codes:  codes,
		users:  users,
		pkce:   pkce,
		signer: signer,
		cfg:    cfg,
		logger: log.ForComponent(logger, "token_exchange"),
		now:    time.Now,
	}
}

// Exchange redeems req.Code. OAuth errors raised by the checks are returned
// as is; anything else is logged and replaced by a generic invalid_token.
func (s *TokenExchangeService) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	resp, err := s.exchange(ctx, req)
	if err == nil {
		metrics.TokenExchangesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
		return resp, nil
	}

	oauthErr, ok := serrors.AsOAuth2Error(err)
	if !ok {
		s.logger.Error(ctx, "token exchange failed", err, map[string]interface{}{
			"client_id":   req.ClientID,
			"code_prefix": audit.CodePrefix(req.Code),
		})

		oauthErr = serrors.NewInvalidToken("token exchange failed")
	}

	metrics.TokenExchangesTotal.WithLabelValues(oauthErr.Code).Inc()

	return nil, oauthErr
}

func (s *TokenExchangeService) exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.Code == "" || req.ClientID == "" || req.RedirectURI == "" {
		return nil, serrors.NewInvalidRequest("code, client_id and redirect_uri are required")
	}

	code, err := s.codes.FindByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, domain.ErrAuthCodeNotFound) {
			return nil, serrors.NewInvalidAuthorizationCode()
		}

		return nil, err
	}

	fields := map[string]interface{}{
		"code_prefix": audit.CodePrefix(code.Code),
		"client_id":   req.ClientID,
		"user_id":     code.UserID,
	}

	if code.IsExpiredAt(s.now()) {
		return nil, serrors.NewExpiredAuthorizationCode()
	}

	if code.IsUsed() {
		s.replay(ctx, code, fields)
		return nil, serrors.NewInvalidAuthorizationCode()
	}

	if code.ClientID.String() != req.ClientID {
		s.logger.Warn(ctx, "client_id does not match authorization code", fields)
		audit.Log("token_exchange", audit.ActionClientMismatch, code.UserID, req.ClientID,
			"code="+audit.CodePrefix(code.Code), false, nil)

		return nil, serrors.NewInvalidClient("client_id does not match authorization code")
	}

	if code.RedirectURI != req.RedirectURI {
		s.logger.Warn(ctx, "redirect_uri does not match authorization code", fields)
		audit.Log("token_exchange", audit.ActionRedirectMismatch, code.UserID, req.ClientID,
			"code="+audit.CodePrefix(code.Code), false, nil)

		return nil, serrors.NewInvalidAuthorizationCode()
	}

	// Format is checked only here so unknown and replayed codes report the
	// invalid-code error whatever verifier came with them.
	verifier, err := domain.NewCodeVerifier(req.CodeVerifier)
	if err != nil {
		return nil, err
	}

	if !s.pkce.Verify(code.CodeChallenge, verifier.Value()) {
		s.logger.Warn(ctx, "PKCE verification failed", fields)
		audit.Log("token_exchange", audit.ActionPKCEFailure, code.UserID, req.ClientID,
			"code="+audit.CodePrefix(code.Code), false, nil)

		return nil, serrors.NewInvalidAuthorizationCode()
	}

	user, err := s.users.FindByID(ctx, code.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Error(ctx, "authorization code refers to a missing user", err, fields)
			return nil, serrors.NewServerError("unable to complete token exchange")
		}

		return nil, err
	}

	if !user.IsActive() {
		if s.cfg.RejectInactiveUsers {
			s.logger.Warn(ctx, "token exchange refused for inactive user", fields)
			return nil, serrors.NewInvalidGrant(descInactiveUser)
		}

		s.logger.Warn(ctx, "issuing token for inactive user", fields)
		audit.Log("token_exchange", audit.ActionInactiveUserToken, user.ID, req.ClientID, "", true, nil)
	}

	if err := s.codes.MarkAsUsed(ctx, code.Code); err != nil {
		if errors.Is(err, domain.ErrAuthCodeAlreadyUsed) {
			s.replay(ctx, code, fields)
			return nil, serrors.NewInvalidAuthorizationCode()
		}

		return nil, err
	}

	code = code.MarkAsUsed()
	scope := code.EffectiveScope()

	token, err := s.signer.Sign(TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID},
		Email:            user.Email,
		Username:         user.Username,
		Roles:            user.Roles,
		Scope:            scope,
		ClientID:         code.ClientID.String(),
	})
	if err != nil {
		return nil, err
	}

	audit.Log("token_exchange", audit.ActionTokenExchange, user.ID, req.ClientID, "", true, nil)
	s.logger.Info(ctx, "access token issued", fields)

	return &TokenResponse{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(s.signer.Lifetime() / time.Second),
		Scope:       scope,
	}, nil
}

func (s *TokenExchangeService) replay(ctx context.Context, code *domain.AuthorizationCode, fields map[string]interface{}) {
	metrics.CodeReplaysTotal.Inc()
	s.logger.Warn(ctx, "authorization code replay detected", fields)
	audit.Log("token_exchange", audit.ActionCodeReplay, code.UserID, code.ClientID.String(),
		"code="+audit.CodePrefix(code.Code), false, nil)
}
