package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/authserver/cache"
	"go.pilab.hu/authserver/domain"
)

const (
	fieldData = "data"
	fieldUsed = "used"

	markUsedOK          = "OK"
	markUsedNotFound    = "NOT_FOUND"
	markUsedAlreadyUsed = "ALREADY_USED"
)

// markUsedScript flips the used flag of KEYS[1] only if it is unset. Running
// it as a script makes the check and the write a single step for Redis.
var markUsedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 'NOT_FOUND'
end
if redis.call('HGET', KEYS[1], 'used') == '1' then
    return 'ALREADY_USED'
end
redis.call('HSET', KEYS[1], 'used', '1')
return 'OK'
`)

// CodeStore implements domain.CodeRepository using Redis hashes. The used
// flag is a separate hash field so the script never has to decode JSON.
type CodeStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewCodeStore creates a new [CodeStore]. Keys expire retention after the
// code itself expires.
func NewCodeStore(client redis.UniversalClient, prefix string, retention time.Duration) *CodeStore {
	return &CodeStore{client: client, prefix: prefix, retention: retention}
}

func (r *CodeStore) redisKey(code string) string {
	return fmt.Sprintf("%s:code:%s", r.prefix, cache.HashToken(code))
}

func (r *CodeStore) Save(ctx context.Context, code *domain.AuthorizationCode) error {
	data, err := json.Marshal(cache.NewCodeRecord(code))
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	used := "0"
	if code.Used {
		used = "1"
	}

	ttl := time.Until(code.ExpiresAt) + r.retention
	if ttl <= 0 {
		ttl = time.Second
	}

	key := r.redisKey(code.Code)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldData, data, fieldUsed, used)
		pipe.Expire(ctx, key, ttl)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store authorization code in Redis: %w", err)
	}

	return nil
}

func (r *CodeStore) FindByCode(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	res, err := r.client.HGetAll(ctx, r.redisKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read authorization code from Redis: %w", err)
	}

	data, ok := res[fieldData]
	if !ok {
		return nil, domain.ErrAuthCodeNotFound
	}

	var record cache.CodeRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}

	record.Code = code
	record.Used = res[fieldUsed] == "1"

	return record.ToDomain()
}

func (r *CodeStore) MarkAsUsed(ctx context.Context, code string) error {
	result, err := markUsedScript.Run(ctx, r.client, []string{r.redisKey(code)}).Text()
	if err != nil {
		return fmt.Errorf("failed to mark authorization code used: %w", err)
	}

	switch result {
	case markUsedOK:
		return nil
	case markUsedNotFound:
		return domain.ErrAuthCodeNotFound
	case markUsedAlreadyUsed:
		return domain.ErrAuthCodeAlreadyUsed
	default:
		return fmt.Errorf("unexpected mark-used result %q", result)
	}
}
