// Package cache keeps the latest dashboard snapshot in Redis so repeated
// report generation does not recount every table.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/septivank/smart-copro/internal/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const dashboardKey = "smart-copro:dashboard"

// DashboardCache stores one DashboardSnapshot. A nil client turns every call
// into a miss.
type DashboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient parses url and pings the server when the app starts. An empty url
// returns a nil client.
func NewClient(lc fx.Lifecycle, logger *zap.Logger, url string) (*redis.Client, error) {
	if url == "" {
		logger.Info("redis not configured, dashboard cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to ping redis: %w", err)
			}
			logger.Info("redis connection established")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client, nil
}

// NewDashboardCache creates a cache whose entries expire after ttl
func NewDashboardCache(client *redis.Client, ttl time.Duration) *DashboardCache {
	return &DashboardCache{client: client, ttl: ttl}
}

// Get returns the cached snapshot. ok is false on a miss.
func (c *DashboardCache) Get(ctx context.Context) (snapshot *db.DashboardSnapshot, ok bool, err error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}

	raw, err := c.client.Get(ctx, dashboardKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read dashboard cache: %w", err)
	}

	var s db.DashboardSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fmt.Errorf("failed to decode dashboard cache: %w", err)
	}
	return &s, true, nil
}

// Set stores snapshot for the configured ttl
func (c *DashboardCache) Set(ctx context.Context, snapshot *db.DashboardSnapshot) error {
	if c == nil || c.client == nil {
		return nil
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode dashboard snapshot: %w", err)
	}
	if err := c.client.Set(ctx, dashboardKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write dashboard cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached snapshot
func (c *DashboardCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, dashboardKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate dashboard cache: %w", err)
	}
	return nil
}
