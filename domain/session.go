package domain

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultSessionTTL    = 24 * time.Hour
	RememberMeSessionTTL = 30 * 24 * time.Hour
)

// Session represents an authenticated resource owner.
// Expiry is derived from time only; nothing deletes a session when it lapses.
type Session struct {
	ID        string            `bson:"_id"                  json:"id"`
	UserID    string            `bson:"user_id"              json:"user_id"`
	CreatedAt time.Time         `bson:"created_at"           json:"created_at"`
	ExpiresAt time.Time         `bson:"expires_at"           json:"expires_at"`
	UserAgent string            `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	IPAddress string            `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	Metadata  map[string]string `bson:"metadata,omitempty"   json:"metadata,omitempty"`
}

// SessionOption customizes a new Session.
type SessionOption func(*Session)

func WithUserAgent(ua string) SessionOption {
	return func(s *Session) { s.UserAgent = ua }
}

func WithIPAddress(ip string) SessionOption {
	return func(s *Session) { s.IPAddress = ip }
}

func WithMetadata(md map[string]string) SessionOption {
	return func(s *Session) { s.Metadata = maps.Clone(md) }
}

// NewSession creates a session for userID. A non-positive ttl falls back to
// DefaultSessionTTL.
func NewSession(userID string, now time.Time, ttl time.Duration, opts ...SessionOption) *Session {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Session) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// Extend returns a copy whose expiry is pushed out to now+ttl.
func (s *Session) Extend(now time.Time, ttl time.Duration) *Session {
	extended := *s
	extended.ExpiresAt = now.Add(ttl)
	extended.Metadata = maps.Clone(s.Metadata)

	return &extended
}

// SessionRepository persists sessions.
type SessionRepository interface {
	Save(ctx context.Context, session *Session) error
	// FindByID returns ErrSessionNotFound for unknown ids.
	FindByID(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}
