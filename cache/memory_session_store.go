package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/authserver/domain"
)

// MemorySessionStore implements domain.SessionRepository using ttlcache.
// Entries are evicted once the session has expired.
type MemorySessionStore struct {
	cache *ttlcache.Cache[string, domain.Session]
}

func NewMemorySessionStore() *MemorySessionStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, domain.Session](),
	)

	go cache.Start()

	return &MemorySessionStore{cache: cache}
}

func (s *MemorySessionStore) Save(_ context.Context, session *domain.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Millisecond
	}

	s.cache.Set(HashToken(session.ID), *session, ttl)

	return nil
}

func (s *MemorySessionStore) FindByID(_ context.Context, id string) (*domain.Session, error) {
	item := s.cache.Get(HashToken(id))
	if item == nil {
		return nil, domain.ErrSessionNotFound
	}

	session := item.Value()

	return &session, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(HashToken(id))

	return nil
}

// Count returns the number of live sessions.
func (s *MemorySessionStore) Count() int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemorySessionStore) Close() error {
	s.cache.Stop()

	return nil
}
