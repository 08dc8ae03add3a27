// Package budget enforces a ceiling on the total number of concurrent
// connections a coordinator will let a battle open across the fleet,
// independent of any single agent's own connection count.
package budget

import (
	"context"
	"fmt"

	"github.com/meridian/hive/internal/notifications"
	"github.com/meridian/hive/internal/storage"
	"go.uber.org/zap"
)

// Manager checks and tracks the global connection budget at fire time.
type Manager struct {
	db       *storage.PostgresClient
	notifier *notifications.Client
	logger   *zap.Logger
}

// NewManager creates a new connection budget manager.
func NewManager(db *storage.PostgresClient, notifier *notifications.Client, logger *zap.Logger) *Manager {
	return &Manager{db: db, notifier: notifier, logger: logger}
}

// CheckFireBudget checks whether launching a battle across agentCount
// agents, each opening connsPerAgent connections, stays within the
// coordinator's configured global connection budget.
func (m *Manager) CheckFireBudget(ctx context.Context, agentCount int, connsPerAgent uint) error {
	requested := int64(agentCount) * int64(connsPerAgent)

	b, err := m.db.GetConnectionBudget(ctx)
	if err != nil {
		// No budget configured is not fatal; fall open rather than block a battle
		// over an unrelated storage hiccup.
		m.logger.Warn("connection budget lookup failed, allowing fire", zap.Error(err))
		return nil
	}

	if requested > b.MaxConnections {
		percent := int((float64(requested) / float64(b.MaxConnections)) * 100)
		if m.notifier != nil {
			m.notifier.SystemAlert("Connection Budget Exceeded",
				fmt.Sprintf("Requested %d connections (%d%% of %d budget)", requested, percent, b.MaxConnections),
				notifications.PriorityHigh)
		}
		return fmt.Errorf("connection budget exceeded: requested %d connections, budget is %d",
			requested, b.MaxConnections)
	}

	m.logger.Debug("connection budget check passed",
		zap.Int64("requested", requested),
		zap.Int64("budget", b.MaxConnections))

	return nil
}

// SetBudget updates the global connection budget.
func (m *Manager) SetBudget(ctx context.Context, max int64) error {
	if err := m.db.SetConnectionBudget(ctx, max); err != nil {
		return fmt.Errorf("set connection budget: %w", err)
	}
	m.logger.Info("connection budget updated", zap.Int64("max_connections", max))
	return nil
}

// GetBudget returns the current global connection budget.
func (m *Manager) GetBudget(ctx context.Context) (int64, error) {
	b, err := m.db.GetConnectionBudget(ctx)
	if err != nil {
		return 0, fmt.Errorf("get connection budget: %w", err)
	}
	return b.MaxConnections, nil
}
