package domain

import (
	"context"
	"errors"
	"time"
)

// DefaultScope is granted when an authorization request carries no scope.
const DefaultScope = "read"

// AuthorizationCode is a short-lived, single-use grant bound to a PKCE challenge.
type AuthorizationCode struct {
	Code          string
	UserID        string
	ClientID      ClientID
	RedirectURI   string
	CodeChallenge CodeChallenge
	Scope         string
	State         string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Used          bool
}

// AuthorizationCodeParams carries the inputs of NewAuthorizationCode.
type AuthorizationCodeParams struct {
	Code          string
	UserID        string
	ClientID      ClientID
	RedirectURI   string
	CodeChallenge CodeChallenge
	Scope         string
	State         string
	CreatedAt     time.Time
	TTL           time.Duration
}

// NewAuthorizationCode builds an unused code expiring CreatedAt+TTL.
func NewAuthorizationCode(p AuthorizationCodeParams) (*AuthorizationCode, error) {
	if p.Code == "" {
		return nil, errors.New("authorization code value is empty")
	}

	if p.UserID == "" {
		return nil, errors.New("authorization code has no user")
	}

	expiresAt := p.CreatedAt.Add(p.TTL)
	if !expiresAt.After(p.CreatedAt) {
		return nil, errors.New("authorization code must expire after it is created")
	}

	return &AuthorizationCode{
		Code:          p.Code,
		UserID:        p.UserID,
		ClientID:      p.ClientID,
		RedirectURI:   p.RedirectURI,
		CodeChallenge: p.CodeChallenge,
		Scope:         p.Scope,
		State:         p.State,
		CreatedAt:     p.CreatedAt,
		ExpiresAt:     expiresAt,
	}, nil
}

func (c *AuthorizationCode) IsExpired() bool {
	return c.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether t is strictly after ExpiresAt.
func (c *AuthorizationCode) IsExpiredAt(t time.Time) bool {
	return t.After(c.ExpiresAt)
}

func (c *AuthorizationCode) IsUsed() bool {
	return c.Used
}

func (c *AuthorizationCode) IsValid() bool {
	return !c.IsUsed() && !c.IsExpired()
}

// MarkAsUsed returns a copy with Used set. The receiver is left untouched;
// the caller persists the transition through CodeRepository.MarkAsUsed.
func (c *AuthorizationCode) MarkAsUsed() *AuthorizationCode {
	used := *c
	used.Used = true

	return &used
}

// EffectiveScope returns Scope, or DefaultScope when none was requested.
func (c *AuthorizationCode) EffectiveScope() string {
	if c.Scope == "" {
		return DefaultScope
	}

	return c.Scope
}

// CodeRepository persists authorization codes.
type CodeRepository interface {
	// FindByCode returns ErrAuthCodeNotFound for unknown codes.
	FindByCode(ctx context.Context, code string) (*AuthorizationCode, error)
	// Save stores a newly issued code.
	Save(ctx context.Context, code *AuthorizationCode) error
	// MarkAsUsed atomically flips used from false to true. If the code was
	// already used it returns ErrAuthCodeAlreadyUsed, so at most one caller wins.
	MarkAsUsed(ctx context.Context, code string) error
}
