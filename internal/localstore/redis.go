package localstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis stores session state in a shared redis instance so multiple shopd
// replicas can serve the same shop session.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOptions parameterises the redis-backed store.
type RedisOptions struct {
	Addr      string
	DB        int
	KeyPrefix string
	SessionID string
}

// NewRedis dials redis and verifies connectivity before returning the store.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("localstore: redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("localstore: redis ping: %w", err)
	}

	prefix := strings.TrimSpace(opts.KeyPrefix)
	if prefix == "" {
		prefix = "shopcore"
	}
	if session := strings.TrimSpace(opts.SessionID); session != "" {
		prefix = prefix + ":" + session
	}

	return &Redis{client: client, prefix: prefix}, nil
}

// Get returns the stored value when present.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	full, err := r.keyFor(key)
	if err != nil {
		return nil, false, err
	}
	raw, err := r.client.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("localstore: redis get %s: %w", key, err)
	}
	return raw, true, nil
}

// Set overwrites the value for the key without expiry; freshness windows are
// enforced by the pricing layer, not the store.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	full, err := r.keyFor(key)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, full, value, 0).Err(); err != nil {
		return fmt.Errorf("localstore: redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes the key; deleting an absent key is not an error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	full, err := r.keyFor(key)
	if err != nil {
		return err
	}
	if err := r.client.Del(ctx, full).Err(); err != nil {
		return fmt.Errorf("localstore: redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) keyFor(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	return r.prefix + ":" + trimmed, nil
}
