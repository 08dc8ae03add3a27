package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian/hive/pkg/types"
	"go.uber.org/zap"
)

// Manager wraps RedisCache and provides a cache-aside pattern with
// transparent fallback when Redis is unavailable.
type Manager struct {
	redis  *RedisCache
	logger *zap.Logger

	hits   int64
	misses int64
}

// NewManager creates a CacheManager. If cfg is nil or Redis is unreachable
// the manager operates in pass-through mode (no-op cache).
func NewManager(cfg *Config, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		logger.Info("cache disabled: no config provided, operating in pass-through mode")
		return &Manager{logger: logger}, nil
	}

	rc, err := NewRedisCache(*cfg, logger)
	if err != nil {
		logger.Warn("redis unavailable, cache disabled",
			zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
			zap.Error(err))
		return &Manager{logger: logger}, nil
	}

	return &Manager{redis: rc, logger: logger}, nil
}

// Enabled reports whether the backing Redis cache is active.
func (m *Manager) Enabled() bool { return m.redis != nil }

// Close shuts down the Redis connection if one exists.
func (m *Manager) Close() error {
	if m.redis == nil {
		return nil
	}
	return m.redis.Close()
}

// GetReport returns the cached live aggregate report, or nil on miss /
// disabled cache.
func (m *Manager) GetReport(ctx context.Context) *types.CoordinatorReport {
	if m.redis == nil {
		return nil
	}
	r, err := m.redis.GetReport(ctx)
	if err != nil {
		m.logger.Debug("cache get error", zap.String("key", reportKey), zap.Error(err))
		return nil
	}
	if r != nil {
		m.hits++
	} else {
		m.misses++
	}
	return r
}

// SetReport stores the live aggregate report in the cache.
func (m *Manager) SetReport(ctx context.Context, report *types.CoordinatorReport) {
	if m.redis == nil || report == nil {
		return
	}
	if err := m.redis.SetReport(ctx, report); err != nil {
		m.logger.Debug("cache set error", zap.String("key", reportKey), zap.Error(err))
	}
}

// InvalidateReport removes the cached report, e.g. when a new battle starts.
func (m *Manager) InvalidateReport(ctx context.Context) {
	if m.redis == nil {
		return
	}
	if err := m.redis.InvalidateReport(ctx); err != nil {
		m.logger.Debug("cache invalidate error", zap.String("key", reportKey), zap.Error(err))
	}
}

// GetRoster returns the cached roster, or nil on miss / disabled cache.
func (m *Manager) GetRoster(ctx context.Context) []*types.AgentRecord {
	if m.redis == nil {
		return nil
	}
	agents, err := m.redis.GetRoster(ctx)
	if err != nil {
		m.logger.Debug("cache get error", zap.String("key", rosterKey), zap.Error(err))
		return nil
	}
	if agents != nil {
		m.hits++
	} else {
		m.misses++
	}
	return agents
}

// SetRoster stores the roster in the cache.
func (m *Manager) SetRoster(ctx context.Context, agents []*types.AgentRecord) {
	if m.redis == nil {
		return
	}
	if err := m.redis.SetRoster(ctx, agents); err != nil {
		m.logger.Debug("cache set error", zap.String("key", rosterKey), zap.Error(err))
	}
}

// InvalidateRoster removes the cached roster. Should be called whenever
// an agent checks in, heartbeats, or is swept from the roster.
func (m *Manager) InvalidateRoster(ctx context.Context) {
	if m.redis == nil {
		return
	}
	if err := m.redis.InvalidateRoster(ctx); err != nil {
		m.logger.Debug("cache invalidate error", zap.String("key", rosterKey), zap.Error(err))
	}
}

// Warm pre-populates the cache with the provided data. Safe to call at
// coordinator startup to minimise cold-start latency.
func (m *Manager) Warm(ctx context.Context, report *types.CoordinatorReport, agents []*types.AgentRecord) {
	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.redis.Warm(ctx, report, agents); err != nil {
		m.logger.Warn("cache warm failed", zap.Error(err))
	}
}

// Stats returns hit/miss counters and, if Redis is active, backend info.
func (m *Manager) Stats(ctx context.Context) map[string]interface{} {
	out := map[string]interface{}{
		"enabled": m.Enabled(),
		"hits":    m.hits,
		"misses":  m.misses,
	}
	if m.hits+m.misses > 0 {
		out["hit_ratio"] = float64(m.hits) / float64(m.hits+m.misses)
	}
	if m.redis != nil {
		if s, err := m.redis.GetStats(ctx); err == nil {
			out["backend_keys"] = s.Keys
		}
	}
	return out
}
