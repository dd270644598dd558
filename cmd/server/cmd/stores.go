package cmd

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go.pilab.hu/authserver/cache"
	"go.pilab.hu/authserver/cache/redis"
	"go.pilab.hu/authserver/config"
	"go.pilab.hu/authserver/domain"
	"go.pilab.hu/authserver/log"
	"go.pilab.hu/authserver/mongodb"
)

const redisKeyPrefix = "authserver"

// stores holds the code and session repositories selected by STORE_DRIVER.
type stores struct {
	codes    domain.CodeRepository
	sessions domain.SessionRepository

	ping    func(ctx context.Context) error
	closers []func() error
}

func newStores(ctx context.Context, cfg *config.ServerConfig, db *mongo.Database) (*stores, error) {
	st := &stores{ping: func(context.Context) error { return nil }}

	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		st.codes = mongodb.NewCodeRepository(ctx, db, cache.DefaultCodeRetention)
		st.sessions = mongodb.NewSessionRepository(ctx, db)

	case config.StoreDriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
		}

		st.codes = redis.NewCodeStore(client, redisKeyPrefix, cache.DefaultCodeRetention)
		st.sessions = redis.NewSessionStore(client, redisKeyPrefix)
		st.ping = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		st.closers = append(st.closers, client.Close)

	case config.StoreDriverMemory:
		codes := cache.NewMemoryCodeStore(cache.DefaultCodeRetention)
		sessions := cache.NewMemorySessionStore()

		st.codes = codes
		st.sessions = sessions
		st.closers = append(st.closers, codes.Close, sessions.Close)

	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	return st, nil
}

func (s *stores) close(ctx context.Context, logger log.Logger) {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			logger.Error(ctx, "Error closing store", err)
		}
	}
}
