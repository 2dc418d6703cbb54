package store

import (
	"context"
	"errors"
	"fmt"

	auth "github.com/goliatone/go-clinic-auth"
	"github.com/redis/go-redis/v9"
)

var _ auth.Store = (*Redis)(nil)

const redisKeyPrefix = "clinic:session"

// Redis is a key/value store backed by a Redis client, for deployments where
// multiple front-end instances share session state.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a store over an existing Redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func redisKey(key string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, key)
}

// Get returns the stored value, or (nil, nil) when the key is absent.
func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis_session_get_failed: %w", err)
	}
	return value, nil
}

// Set stores value under key without expiry. Session lifetime is governed by
// explicit sign-out, not TTL.
func (s *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis_session_set_failed: %w", err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Redis) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis_session_remove_failed: %w", err)
	}
	return nil
}
