package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.pilab.hu/authserver/domain"
	serrors "go.pilab.hu/authserver/errors"
	"go.pilab.hu/authserver/internal/audit"
	"go.pilab.hu/authserver/internal/metrics"
	"go.pilab.hu/authserver/log"
)

// LoginRequest carries the credentials presented at the login endpoint.
type LoginRequest struct {
	Identifier string // email or username
	Password   string
	RememberMe bool
	UserAgent  string
	IPAddress  string
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	SessionID string            `json:"session_id"`
	User      domain.PublicUser `json:"user"`
	ExpiresAt time.Time         `json:"expires_at"`
}

type LoginConfig struct {
	SessionTTL    time.Duration
	RememberMeTTL time.Duration
}

// LoginService authenticates resource owners and manages their sessions.
type LoginService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	cfg      LoginConfig
	logger   log.Logger
	now      func() time.Time
}

func NewLoginService(
	users domain.UserRepository,
	sessions domain.SessionRepository,
	cfg LoginConfig,
	logger log.Logger,
) *LoginService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = domain.DefaultSessionTTL
	}
	if cfg.RememberMeTTL <= 0 {
		cfg.RememberMeTTL = domain.RememberMeSessionTTL
	}

	return &LoginService{
		users:    users,
		sessions: sessions,
		cfg:      cfg,
		logger:   log.ForComponent(logger, "login"),
		now:      time.Now,
	}
}

// Login validates the credentials and opens a session. Unknown users, wrong
// passwords and inactive accounts all yield the same unauthorized error.
func (s *LoginService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.Password == "" {
		return nil, serrors.NewInvalidRequest("identifier and password are required")
	}

	user, err := s.users.ValidateCredentials(ctx, identifier, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrUserNotFound) {
			s.fail(ctx, identifier, "invalid credentials")
			return nil, serrors.NewUnauthorized()
		}

		s.logger.Error(ctx, "credential validation failed", err)

		return nil, serrors.NewServerError("login failed")
	}

	if !user.IsActive() {
		s.fail(ctx, identifier, "inactive account")
		return nil, serrors.NewUnauthorized()
	}

	ttl := s.cfg.SessionTTL
	if req.RememberMe {
		ttl = s.cfg.RememberMeTTL
	}

	session := domain.NewSession(user.ID, s.now(), ttl,
		domain.WithUserAgent(req.UserAgent),
		domain.WithIPAddress(req.IPAddress),
	)

	if err := s.sessions.Save(ctx, session); err != nil {
		s.logger.Error(ctx, "failed to save session", err, map[string]interface{}{"user_id": user.ID})
		return nil, serrors.NewServerError("login failed")
	}

	metrics.LoginSuccessTotal.Inc()
	audit.Log("login", audit.ActionLogin, user.ID, "", "", true, nil)
	s.logger.Info(ctx, "user logged in", map[string]interface{}{
		"user_id":     user.ID,
		"remember_me": req.RememberMe,
	})

	return &LoginResult{
		SessionID: session.ID,
		User:      user.Public(),
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Session returns the live session with the given id. Missing and expired
// sessions both return domain.ErrSessionNotFound.
func (s *LoginService) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, domain.ErrSessionNotFound
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.IsExpiredAt(s.now()) {
		return nil, domain.ErrSessionNotFound
	}

	return session, nil
}

// Logout deletes the session. Unknown ids are not an error.
func (s *LoginService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	audit.Log("login", audit.ActionLogout, session.UserID, "", "", true, nil)

	return nil
}

func (s *LoginService) fail(ctx context.Context, identifier, reason string) {
	metrics.LoginFailureTotal.Inc()
	audit.Log("login", audit.ActionLogin, identifier, "", reason, false, nil)
	s.logger.Warn(ctx, "login rejected", map[string]interface{}{"reason": reason})
}
