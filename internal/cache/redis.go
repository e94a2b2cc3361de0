// Package cache keeps short-lived, non-authoritative data in Redis: renewal
// snapshots handed out by an expired check-in and staff signature images.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"foodbank-checkin-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache implements the renewal and signature caches
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisClient connects to Redis and pings it with a short timeout
func NewRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps a connected client
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "foodbank"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) renewalKey(token string) string {
	return c.prefix + ":renewal:" + token
}

func (c *RedisCache) signatureKey(adminID string) string {
	return c.prefix + ":signature:" + adminID
}

// SaveRenewal stores a renewal snapshot under token
func (c *RedisCache) SaveRenewal(ctx context.Context, token string, snap models.RenewalSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode renewal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.renewalKey(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save renewal snapshot: %w", err)
	}
	return nil
}

// GetRenewal loads the renewal snapshot stored under token
func (c *RedisCache) GetRenewal(ctx context.Context, token string) (*models.RenewalSnapshot, error) {
	data, err := c.client.Get(ctx, c.renewalKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get renewal snapshot: %w", err)
	}
	var snap models.RenewalSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode renewal snapshot: %w", err)
	}
	return &snap, nil
}

// DeleteRenewal drops a used renewal snapshot
func (c *RedisCache) DeleteRenewal(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, c.renewalKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete renewal snapshot: %w", err)
	}
	return nil
}

// GetSignature returns the cached signature data URL of an admin
func (c *RedisCache) GetSignature(ctx context.Context, adminID string) (string, error) {
	v, err := c.client.Get(ctx, c.signatureKey(adminID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("failed to get signature: %w", err)
	}
	return v, nil
}

// SetSignature caches the signature data URL of an admin
func (c *RedisCache) SetSignature(ctx context.Context, adminID, dataURL string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.signatureKey(adminID), dataURL, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set signature: %w", err)
	}
	return nil
}
