// Package cache implements the caching delegate (C1): a keyed, TTL-partitioned
// key→value store with two access modes.
//
// Every entry belongs to a named logical cache (see keys.go); the TTL is
// given by the caller on each put. Two read modes are provided:
//
//   - TakeOnce: atomic read-and-evict. Used wherever a value must be consumed
//     exactly once across the two legs of a redirect-based flow (state, PKCE
//     verifier, unverified-session id). Backed by Redis GETDEL, so the read and
//     the deletion are observed by every client as a single step — no window
//     where a second reader can also observe the value.
//   - Peek: read-keep. Used for values that are checked repeatedly without being
//     consumed (the verified-session marker).
//
// Implementation Details:
//   - Uses go-redis client with connection pooling
//   - Auto-reconnection on connection failures
//   - 3 retry attempts with 8-512ms exponential backoff
//   - 5-second dial timeout, 3-second read/write timeouts
//   - Values stored as JSON
//
// Dependencies:
// - github.com/redis/go-redis/v9 for the Redis client
package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store provides the keyed TTL cache used throughout the broker.
type Store struct {
	client *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     string
	Password string
	Username string
	DB       int
	UseTLS   bool
}

// NewStore creates a new Redis-backed Store.
func NewStore(cfg Config) (*Store, error) {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Close closes the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// ErrMiss is returned by TakeOnce and Peek when the key does not exist.
var ErrMiss = errors.New("cache: key not found")

// PutWithTTL serialises value as JSON and stores it under cache/key with the given TTL.
func (s *Store) PutWithTTL(ctx context.Context, cacheName, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", cacheName, key, err)
	}
	if err := s.client.Set(ctx, namespacedKey(cacheName, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("put %s/%s: %w", cacheName, key, err)
	}
	return nil
}

// TakeOnce atomically reads and deletes the entry for cacheName/key, unmarshalling
// it into target. It returns ErrMiss if the entry was absent or had already expired.
// This is the read-and-evict mode: once TakeOnce returns a hit, no other caller
// will ever observe that value again.
func (s *Store) TakeOnce(ctx context.Context, cacheName, key string, target interface{}) error {
	val, err := s.client.GetDel(ctx, namespacedKey(cacheName, key)).Result()
	if err == redis.Nil {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("take-once %s/%s: %w", cacheName, key, err)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(val), target); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", cacheName, key, err)
	}
	return nil
}

// Peek reads the entry for cacheName/key without consuming it, unmarshalling it
// into target. It returns ErrMiss if the entry is absent.
func (s *Store) Peek(ctx context.Context, cacheName, key string, target interface{}) error {
	val, err := s.client.Get(ctx, namespacedKey(cacheName, key)).Result()
	if err == redis.Nil {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("peek %s/%s: %w", cacheName, key, err)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(val), target); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", cacheName, key, err)
	}
	return nil
}

// Evict deletes the entry for cacheName/key outright, without returning it.
func (s *Store) Evict(ctx context.Context, cacheName, key string) error {
	if err := s.client.Del(ctx, namespacedKey(cacheName, key)).Err(); err != nil {
		return fmt.Errorf("evict %s/%s: %w", cacheName, key, err)
	}
	return nil
}

// FlushCache deletes every key belonging to a single logical cache. Used to
// implement the JWKS cache flush on SIGHUP/TTL (§9).
func (s *Store) FlushCache(ctx context.Context, cacheName string) error {
	pattern := namespacedKey(cacheName, "*")
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", cacheName, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("flush %s: %w", cacheName, err)
	}
	return nil
}

// Ping checks Redis reachability, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func namespacedKey(cacheName, key string) string {
	return fmt.Sprintf("%s:%s", cacheName, key)
}
