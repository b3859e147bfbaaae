// Package kv connects to the Redis instance used for reprocess signals and
// dashboard snapshots.
package kv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"statements-backend/internal/shared/telemetry"
)

const pingTimeout = 3 * time.Second

// Options builds client options from a redis:// URL, accepting a bare
// host:port as well.
func Options(redisURL string) (*redis.Options, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	return opt, nil
}

// Connect opens a client and verifies it with PING.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := Options(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	telemetry.Info("redis.connected", map[string]any{"addr": opt.Addr, "db": opt.DB})
	return client, nil
}
