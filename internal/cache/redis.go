package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/meridian/hive/pkg/types"
	"go.uber.org/zap"
)

// RedisCache caches the live aggregate report and roster snapshot so a
// burst of operator polling against /hive/status never touches Postgres
// or the in-memory lock under load.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    map[string]time.Duration
}

// Config for Redis cache
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

const (
	reportKey = "hive:report"
	rosterKey = "hive:roster"
)

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg Config, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	cache := &RedisCache{
		client: client,
		logger: logger,
		ttl: map[string]time.Duration{
			"report": 2 * time.Second,
			"roster": 5 * time.Second,
		},
	}

	logger.Info("redis cache connected", zap.String("addr", client.Options().Addr))
	return cache, nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetReport retrieves the cached live aggregate report.
func (c *RedisCache) GetReport(ctx context.Context) (*types.CoordinatorReport, error) {
	data, err := c.client.Get(ctx, reportKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var report types.CoordinatorReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	c.logger.Debug("cache hit", zap.String("key", reportKey))
	return &report, nil
}

// SetReport caches the live aggregate report.
func (c *RedisCache) SetReport(ctx context.Context, report *types.CoordinatorReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, reportKey, data, c.ttl["report"]).Err()
}

// InvalidateReport removes the cached report (a fresh /hive/poke makes it stale).
func (c *RedisCache) InvalidateReport(ctx context.Context) error {
	return c.client.Del(ctx, reportKey).Err()
}

// GetRoster retrieves the cached agent roster.
func (c *RedisCache) GetRoster(ctx context.Context) ([]*types.AgentRecord, error) {
	data, err := c.client.Get(ctx, rosterKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var agents []*types.AgentRecord
	if err := json.Unmarshal(data, &agents); err != nil {
		return nil, err
	}
	c.logger.Debug("cache hit", zap.String("key", rosterKey))
	return agents, nil
}

// SetRoster caches the agent roster.
func (c *RedisCache) SetRoster(ctx context.Context, agents []*types.AgentRecord) error {
	data, err := json.Marshal(agents)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, rosterKey, data, c.ttl["roster"]).Err()
}

// InvalidateRoster removes the cached roster (check-in/heartbeat/sweep all change it).
func (c *RedisCache) InvalidateRoster(ctx context.Context) error {
	return c.client.Del(ctx, rosterKey).Err()
}

// Warm preloads the report and roster caches, e.g. right after a
// coordinator restart.
func (c *RedisCache) Warm(ctx context.Context, report *types.CoordinatorReport, agents []*types.AgentRecord) error {
	pipe := c.client.Pipeline()

	if report != nil {
		data, _ := json.Marshal(report)
		pipe.Set(ctx, reportKey, data, c.ttl["report"])
	}
	if agents != nil {
		data, _ := json.Marshal(agents)
		pipe.Set(ctx, rosterKey, data, c.ttl["roster"])
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return err
	}

	c.logger.Info("cache warmed", zap.Int("roster_size", len(agents)))
	return nil
}

// GetStats returns cache statistics
func (c *RedisCache) GetStats(ctx context.Context) (*CacheStats, error) {
	info, err := c.client.Info(ctx, "stats").Result()
	if err != nil {
		return nil, err
	}

	dbsize, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}

	return &CacheStats{
		Keys:     dbsize,
		RawStats: info,
	}, nil
}

// CacheStats contains cache statistics
type CacheStats struct {
	Keys     int64
	RawStats string
}

// Flush clears all cached data (use with caution)
func (c *RedisCache) Flush(ctx context.Context) error {
	return c.client.FlushDB(ctx).Err()
}
