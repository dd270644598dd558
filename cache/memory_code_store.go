package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/authserver/domain"
)

// DefaultCodeRetention keeps codes around after expiry so a late replay is
// still recognized as one.
const DefaultCodeRetention = time.Hour

// MemoryCodeStore implements domain.CodeRepository using ttlcache.
type MemoryCodeStore struct {
	mu        sync.Mutex
	cache     *ttlcache.Cache[string, domain.AuthorizationCode]
	retention time.Duration
}

// NewMemoryCodeStore creates an in-memory code store with automatic cleanup.
// Entries live until ExpiresAt plus retention.
func NewMemoryCodeStore(retention time.Duration) *MemoryCodeStore {
	if retention < 0 {
		retention = 0
	}

	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, domain.AuthorizationCode](),
	)

	go cache.Start()

	return &MemoryCodeStore{cache: cache, retention: retention}
}

func (s *MemoryCodeStore) Save(_ context.Context, code *domain.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Set(HashToken(code.Code), *code, s.ttlFor(code))

	return nil
}

func (s *MemoryCodeStore) FindByCode(_ context.Context, code string) (*domain.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(HashToken(code))
	if item == nil {
		return nil, domain.ErrAuthCodeNotFound
	}

	found := item.Value()

	return &found, nil
}

// MarkAsUsed flips the used flag under the store lock, so exactly one caller
// succeeds for a given code.
func (s *MemoryCodeStore) MarkAsUsed(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := HashToken(code)

	item := s.cache.Get(key)
	if item == nil {
		return domain.ErrAuthCodeNotFound
	}

	current := item.Value()
	if current.Used {
		return domain.ErrAuthCodeAlreadyUsed
	}

	s.cache.Set(key, *current.MarkAsUsed(), time.Until(item.ExpiresAt()))

	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryCodeStore) Close() error {
	s.cache.Stop()

	return nil
}

func (s *MemoryCodeStore) ttlFor(code *domain.AuthorizationCode) time.Duration {
	ttl := time.Until(code.ExpiresAt) + s.retention
	if ttl <= 0 {
		// ttlcache treats 0 as "default TTL", which is no expiry here.
		ttl = time.Millisecond
	}

	return ttl
}
