// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package fingerprint

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMarks is a MarkStore shared across server replicas. Keys expire after
// the configured TTL.
type RedisMarks struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisMarks connects to redisURL and verifies the connection.
func NewRedisMarks(ctx context.Context, redisURL string, ttl time.Duration) (*RedisMarks, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisMarks{rdb: rdb, ttl: ttl}, nil
}

func (m *RedisMarks) Has(ctx context.Context, sessionID, accountID string, d Device) (bool, error) {
	keys := make([]string, 0, 2)
	if d.ClientID != "" {
		keys = append(keys, votedKey(sessionID, d.ClientID))
	}
	if d.Fingerprint != "" && accountID != "" {
		keys = append(keys, printKey(sessionID, accountID, d.Fingerprint))
	}
	if len(keys) == 0 {
		return false, nil
	}

	n, err := m.rdb.Exists(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (m *RedisMarks) Mark(ctx context.Context, sessionID, accountID string, d Device, at time.Time) error {
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if d.ClientID != "" {
			pipe.Set(ctx, votedKey(sessionID, d.ClientID), "true", m.ttl)
		}
		if d.Fingerprint != "" && accountID != "" {
			pipe.Set(ctx, printKey(sessionID, accountID, d.Fingerprint), at.UTC().Format(time.RFC3339), m.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis mark: %w", err)
	}
	return nil
}

// Client returns the underlying client for health checks.
func (m *RedisMarks) Client() *redis.Client {
	return m.rdb
}

func (m *RedisMarks) Close() error {
	return m.rdb.Close()
}
