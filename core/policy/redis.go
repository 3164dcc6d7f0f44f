package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "openwa:seen:"
	defaultSeenTTL   = 24 * time.Hour
)

// RedisStore is a SeenStore shared by every replica behind the same
// webhook URL. Entries expire after the TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. A zero ttl uses 24h.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSeenTTL
	}
	return &RedisStore{client: client, prefix: defaultKeyPrefix, ttl: ttl}
}

// NewRedisStoreFromURL parses a redis:// URL and returns a store with its
// client. The caller owns the client and must close it.
func NewRedisStoreFromURL(url string, ttl time.Duration) (*RedisStore, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return NewRedisStore(client, ttl), client, nil
}

// WithPrefix overrides the key prefix.
func (s *RedisStore) WithPrefix(prefix string) *RedisStore {
	s.prefix = prefix
	return s
}

// MarkSeen claims id with SET NX and reports whether this call claimed it.
// The key expires after the store's TTL.
func (s *RedisStore) MarkSeen(ctx context.Context, id string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+id, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}
