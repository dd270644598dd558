package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.pilab.hu/authserver/domain"
	serrors "go.pilab.hu/authserver/errors"
	"go.pilab.hu/authserver/internal/audit"
	"go.pilab.hu/authserver/internal/metrics"
	"go.pilab.hu/authserver/log"
)

const (
	ResponseTypeCode = "code"

	DefaultAuthCodeTTL = 5 * time.Minute

	authCodeBytes = 32
)

// AuthorizeRequest is the query of an authorization request.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	CodeChallenge       string
	CodeChallengeMethod string
	Scope               string
	State               string
}

// AuthorizeResponse is sent back to the client's redirect URI.
type AuthorizeResponse struct {
	Code        string
	State       string
	RedirectURI string
}

// RedirectURL appends code and, if present, state to RedirectURI, keeping
// any query the URI was registered with.
func (r *AuthorizeResponse) RedirectURL() (string, error) {
	u, err := url.Parse(r.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect uri: %w", err)
	}

	q := u.Query()
	q.Set("code", r.Code)
	if r.State != "" {
		q.Set("state", r.State)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

type AuthCodeConfig struct {
	CodeTTL time.Duration
}

// AuthCodeService issues authorization codes for authenticated sessions.
type AuthCodeService struct {
	codes   domain.CodeRepository
	clients domain.ClientRepository
	ttl     time.Duration
	logger  log.Logger
	now     func() time.Time
	newCode func() (string, error)
}

func NewAuthCodeService(
	codes domain.CodeRepository,
	clients domain.ClientRepository,
	cfg AuthCodeConfig,
	logger log.Logger,
) *AuthCodeService {
	ttl := cfg.CodeTTL
	if ttl <= 0 {
		ttl = DefaultAuthCodeTTL
	}

	return &AuthCodeService{
		codes:   codes,
		clients: clients,
		ttl:     ttl,
		logger:  log.ForComponent(logger, "authcode"),
		now:     time.Now,
		newCode: GenerateAuthCode,
	}
}

// Issue validates req against session and the client registry, then stores
// a fresh code bound to the session's user.
func (s *AuthCodeService) Issue(ctx context.Context, req AuthorizeRequest, session *domain.Session) (*AuthorizeResponse, error) {
	now := s.now()

	if session == nil || session.IsExpiredAt(now) {
		return nil, serrors.NewAuthenticationRequired()
	}

	if req.ResponseType != ResponseTypeCode {
		return nil, serrors.NewUnsupportedResponseType()
	}

	clientID, err := domain.NewClientID(req.ClientID)
	if err != nil {
		return nil, err
	}

	if req.RedirectURI == "" {
		return nil, serrors.NewInvalidRequest("redirect_uri is required")
	}

	if err := s.checkClient(ctx, clientID, req.RedirectURI); err != nil {
		return nil, err
	}

	challenge, err := domain.NewCodeChallenge(req.CodeChallenge, domain.CodeChallengeMethod(req.CodeChallengeMethod))
	if err != nil {
		return nil, err
	}

	value, err := s.newCode()
	if err != nil {
		s.logger.Error(ctx, "failed to generate authorization code", err)
		return nil, serrors.NewServerError("failed to issue authorization code")
	}

	code, err := domain.NewAuthorizationCode(domain.AuthorizationCodeParams{
		Code:          value,
		UserID:        session.UserID,
		ClientID:      clientID,
		RedirectURI:   req.RedirectURI,
		CodeChallenge: challenge,
		Scope:         req.Scope,
		State:         req.State,
		CreatedAt:     now,
		TTL:           s.ttl,
	})
	if err != nil {
		s.logger.Error(ctx, "failed to build authorization code", err)
		return nil, serrors.NewServerError("failed to issue authorization code")
	}

	if err := s.codes.Save(ctx, code); err != nil {
		s.logger.Error(ctx, "failed to save authorization code", err, map[string]interface{}{
			"client_id": clientID.String(),
		})

		return nil, serrors.NewServerError("failed to issue authorization code")
	}

	metrics.CodesIssuedTotal.Inc()
	audit.Log("authcode", audit.ActionAuthorize, session.UserID, clientID.String(), "", true, nil)
	s.logger.Debug(ctx, "authorization code issued", map[string]interface{}{
		"client_id":   clientID.String(),
		"user_id":     session.UserID,
		"code_prefix": audit.CodePrefix(value),
	})

	return &AuthorizeResponse{
		Code:        value,
		State:       req.State,
		RedirectURI: req.RedirectURI,
	}, nil
}

func (s *AuthCodeService) checkClient(ctx context.Context, clientID domain.ClientID, redirectURI string) error {
	client, err := s.clients.GetClient(ctx, clientID.String())
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return serrors.NewInvalidClient("unknown client")
		}

		s.logger.Error(ctx, "client lookup failed", err, map[string]interface{}{"client_id": clientID.String()})

		return serrors.NewServerError("client lookup failed")
	}

	if !client.IsActive {
		return serrors.NewInvalidClient("client is not active")
	}

	if !client.HasRedirectURI(redirectURI) {
		audit.Log("authcode", audit.ActionRedirectMismatch, "", clientID.String(), redirectURI, false, nil)
		return serrors.NewInvalidRequest("redirect_uri is not registered for this client")
	}

	return nil
}

// GenerateAuthCode returns 32 random bytes, base64url encoded without padding.
func GenerateAuthCode() (string, error) {
	b := make([]byte, authCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
