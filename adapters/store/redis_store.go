package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultSessionKey is the redis key holding the wallet session record.
const DefaultSessionKey = "agora:walletState"

// RedisStore is a Redis implementation of the Store and SessionStore interfaces
type RedisStore struct {
	client     *redis.Client
	prefix     string
	sessionKey string
}

var (
	_ ports.Store        = (*RedisStore)(nil)
	_ ports.SessionStore = (*RedisStore)(nil)
)

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:     client,
		prefix:     "agora:invalidated:",
		sessionKey: DefaultSessionKey,
	}
}

// WithSessionKey returns a copy of the store that keeps the wallet session under key.
func (s *RedisStore) WithSessionKey(key string) *RedisStore {
	clone := *s
	clone.sessionKey = key
	return &clone
}

// InvalidateToken marks a token as invalidated in Redis
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	key := s.prefix + tokenID

	if err := s.client.Set(ctx, key, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.prefix + tokenID

	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}

	return val > 0, nil
}

// Load reads the wallet session record.
func (s *RedisStore) Load(ctx context.Context) (*core.WalletSession, error) {
	raw, err := s.client.Get(ctx, s.sessionKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet session: %w", err)
	}

	var session core.WalletSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrCorruptSession, err)
	}
	return &session, nil
}

// Save writes the wallet session record without expiry.
func (s *RedisStore) Save(ctx context.Context, session core.WalletSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode wallet session: %w", err)
	}
	if err := s.client.Set(ctx, s.sessionKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save wallet session: %w", err)
	}
	return nil
}

// Clear deletes the wallet session record.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.sessionKey).Err(); err != nil {
		return fmt.Errorf("failed to clear wallet session: %w", err)
	}
	return nil
}

// Client returns the Redis client so it can be shared with the Watermill publisher
func (s *RedisStore) Client() *redis.Client {
	return s.client
}
