package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "gresst:token:"

// RedisStore shares tokens between processes (e.g. several CLI sessions on a jump host).
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedisStore creates a Redis-backed token store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  defaultRedisPrefix,
		timeout: 3 * time.Second,
	}
}

// NewRedisStoreWithPrefix creates a Redis token store with a custom key prefix
func NewRedisStoreWithPrefix(client redis.UniversalClient, prefix string) *RedisStore {
	s := NewRedisStore(client)
	s.prefix = prefix
	return s
}

func (r *RedisStore) SaveToken(server, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+server, token, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (r *RedisStore) LoadToken(server string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	token, err := r.client.Get(ctx, r.prefix+server).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotAuthenticated
		}
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

func (r *RedisStore) DeleteToken(server string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+server).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
