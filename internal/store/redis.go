package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grabby/grabbyd/internal/metrics"
)

// RedisStore backs the queue with an external Redis, for setups where
// daemon restarts must not lose in-flight queue state even if the host's
// disk does.
type RedisStore struct {
	client *redis.Client
}

// OpenRedisStore connects to the Redis named by opts and verifies the
// connection before returning.
func OpenRedisStore(opts *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+id, data, ttl).Err(); err != nil {
		metrics.StoreErrors.WithLabelValues("put").Inc()
		return err
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get").Inc()
		return nil, false, err
	}
	return data, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		metrics.StoreErrors.WithLabelValues("delete").Inc()
		return err
	}
	return nil
}

func (s *RedisStore) Scan(ctx context.Context, fn func(id string, data []byte) error) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue // expired between scan and get
		}
		if err != nil {
			metrics.StoreErrors.WithLabelValues("scan").Inc()
			return err
		}
		if err := fn(strings.TrimPrefix(key, keyPrefix), data); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }

var _ Store = (*RedisStore)(nil)
