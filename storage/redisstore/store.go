// Package redisstore implements storage.Storage on Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authctl/storage"
)

// ErrRedisUnavailable wraps every Redis transport failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// DefaultPrefix namespaces keys written by Store.
const DefaultPrefix = "authctl:"

// Store keeps values under prefix+key. A positive TTL expires values that are
// not rewritten in time.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New wraps client. An empty prefix uses DefaultPrefix.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Store{redis: client, prefix: prefix, ttl: ttl}
}

// Dial parses a redis:// URL and returns a Store on a new client.
func Dial(ctx context.Context, url, prefix string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return New(client, prefix, ttl), nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.redis.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.redis.Close()
}

var _ storage.Storage = (*Store)(nil)
