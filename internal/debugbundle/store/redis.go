package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore wraps go-redis v9 as the production KV implementation for
// the debug-bundle namespace. Adapted from the fabric Redis adapter
// pattern: dial with bounded timeouts, verify connectivity eagerly, and
// expose a minimal Set/Get/Del surface.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies connectivity before
// returning. Callers decide whether to fall back to MemStore on error.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("debugbundle: redis store connected", "addr", addr, "db", db)
	return &RedisStore{rdb: rdb}, nil
}

// Close shuts down the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Put(ctx context.Context, space, key string, value []byte) error {
	return s.rdb.Set(ctx, memKey(space, key), value, 0).Err()
}

func (s *RedisStore) Remove(ctx context.Context, space, key string) error {
	return s.rdb.Del(ctx, memKey(space, key)).Err()
}

func (s *RedisStore) Get(ctx context.Context, space, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, memKey(space, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}
