// Package battlesession tracks the coordinator's single in-flight battle:
// the roster snapshot it was fired against, the live aggregate report, and
// the completion bookkeeping that decides when the report is finalized.
//
// A coordinator holds at most one battle at a time, so this package has no
// notion of concurrent sessions — every exported method operates on "the"
// current battle.
package battlesession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridian/hive/internal/messaging"
	"github.com/meridian/hive/internal/notifications"
	"github.com/meridian/hive/internal/storage"
	"github.com/meridian/hive/pkg/types"
	"go.uber.org/zap"
)

// ErrBattleRunning is returned by Start when a battle is already in flight.
var ErrBattleRunning = fmt.Errorf("a battle is already running")

// ErrNoBattle is returned when a report is requested before any battle has
// ever been fired.
var ErrNoBattle = fmt.Errorf("no battle report available")

// ErrStillRunning is returned by Report while a battle is in flight
// (spec.md §6: GET /hive/status/report is 400 while running).
var ErrStillRunning = fmt.Errorf("battle still running")

// Manager owns the running flag, the live aggregate report, and the
// report-generated guard as one combined critical section — they are
// always mutated together, so one mutex models the spec's adjacent
// running→report→counters lock ordering without forcing three separate
// acquisitions for data that is never touched independently.
type Manager struct {
	mu sync.Mutex

	running         bool
	snapshot        *types.BattleSnapshot
	report          *types.CoordinatorReport
	reportGenerated bool
	completionTimer *time.Timer

	db        *storage.PostgresClient
	messaging *messaging.Client
	notifier  *notifications.Client
	logger    *zap.Logger
}

// NewManager creates a battle session manager.
func NewManager(db *storage.PostgresClient, msg *messaging.Client, notifier *notifications.Client, logger *zap.Logger) *Manager {
	return &Manager{db: db, messaging: msg, notifier: notifier, logger: logger}
}

// IsRunning reports whether a battle is currently in flight.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start begins a new battle against the given roster snapshot, rejecting
// with ErrBattleRunning if one is already in flight. completionGrace is
// added to params.DurationSecs to derive the completion-timer deadline
// (spec.md §4.3: "duration + 3 s").
func (m *Manager) Start(ctx context.Context, params types.BattleParams, agentIDs []string, completionGrace time.Duration, onTimeout func()) (*types.BattleSnapshot, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil, ErrBattleRunning
	}

	snap := &types.BattleSnapshot{
		AgentIDs:  agentIDs,
		Params:    params,
		StartedAt: time.Now(),
	}

	m.running = true
	m.snapshot = snap
	m.reportGenerated = false
	m.report = &types.CoordinatorReport{
		Params:       params,
		Agents:       make([]types.AgentReport, 0, len(agentIDs)),
		StatusCounts: make(map[int32]uint64),
		StartedAt:    snap.StartedAt,
	}

	if m.completionTimer != nil {
		m.completionTimer.Stop()
	}
	deadline := time.Duration(params.DurationSecs)*time.Second + completionGrace
	m.completionTimer = time.AfterFunc(deadline, onTimeout)
	m.mu.Unlock()

	if err := m.db.SaveBattleSnapshot(ctx, snap); err != nil {
		m.logger.Warn("failed to persist battle snapshot", zap.Error(err))
	}

	m.logger.Info("battle started",
		zap.String("target", params.TargetURL),
		zap.Int("agents", len(agentIDs)),
		zap.Uint("duration_secs", params.DurationSecs))

	return snap, nil
}

// IngestSuccess records a successful per-agent report, returning true if
// this report caused the battle to finalize.
func (m *Manager) IngestSuccess(ctx context.Context, agentID string, result *types.BattleResult) (finalized bool, err error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false, fmt.Errorf("report rejected: no battle running")
	}

	m.report.Agents = append(m.report.Agents, types.AgentReport{
		AgentID: agentID,
		Status:  types.AgentReportSucceeded,
		Result:  result,
	})
	m.report.Completed++
	m.report.TotalRequests += result.RequestsCompleted
	m.report.TotalRPS += result.RPS
	m.report.BytesRead += result.BytesRead
	for code, count := range result.StatusCounts {
		m.report.StatusCounts[code] += count
		if code >= 400 {
			m.report.NonSuccessCount += count
		}
	}
	if result.LatencyAvgMicros > m.report.LatencyAvgMicros {
		m.report.LatencyAvgMicros = result.LatencyAvgMicros
	}
	if result.LatencyMaxMicros > m.report.LatencyMaxMicros {
		m.report.LatencyMaxMicros = result.LatencyMaxMicros
	}

	done := m.report.Completed+m.report.Failed >= len(m.snapshot.AgentIDs)
	m.mu.Unlock()

	if done {
		return m.finalize(ctx, "all_reports_in"), nil
	}
	return false, nil
}

// IngestFailure records a failed per-agent report, returning true if this
// report caused the battle to finalize.
func (m *Manager) IngestFailure(ctx context.Context, agentID, errMsg string) (finalized bool, err error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false, fmt.Errorf("report rejected: no battle running")
	}

	m.report.Agents = append(m.report.Agents, types.AgentReport{
		AgentID: agentID,
		Status:  types.AgentReportFailed,
		Error:   errMsg,
	})
	m.report.Failed++

	done := m.report.Completed+m.report.Failed >= len(m.snapshot.AgentIDs)
	m.mu.Unlock()

	if done {
		return m.finalize(ctx, "all_reports_in"), nil
	}
	return false, nil
}

// FinalizeOnTimeout is called by the completion timer scheduled in Start;
// it finalizes the battle with whatever reports have arrived so far.
func (m *Manager) FinalizeOnTimeout(ctx context.Context) {
	m.finalize(ctx, "timeout")
}

// finalize produces the final report exactly once, guarded by
// reportGenerated regardless of which path (all-reports-in or timeout)
// triggers it (spec.md §5, §7).
func (m *Manager) finalize(ctx context.Context, reason string) bool {
	m.mu.Lock()
	if m.reportGenerated {
		m.mu.Unlock()
		return false
	}
	m.reportGenerated = true
	m.running = false
	report := *m.report
	report.ReportGenerated = true
	if m.completionTimer != nil {
		m.completionTimer.Stop()
	}
	m.mu.Unlock()

	m.logger.Info("battle finalized",
		zap.String("reason", reason),
		zap.Int("completed", report.Completed),
		zap.Int("failed", report.Failed),
		zap.Uint64("total_requests", report.TotalRequests))

	if m.messaging != nil {
		event := map[string]interface{}{
			"target":         report.Params.TargetURL,
			"completed":      report.Completed,
			"failed":         report.Failed,
			"total_requests": report.TotalRequests,
			"reason":         reason,
		}
		if err := m.messaging.Publish(ctx, "hive.battle.finished", event); err != nil {
			m.logger.Warn("failed to publish battle-finished event", zap.Error(err))
		}
	}

	if m.notifier != nil {
		m.notifier.BattleFinished(report.Params.TargetURL, report.Completed, report.Failed, report.TotalRequests, report.TotalRPS)
	}

	return true
}

// Report returns the current (or last-finalized) aggregate report. While a
// battle is running it returns ErrStillRunning (spec.md §6: 400 while
// running); before any battle has ever run it returns ErrNoBattle.
func (m *Manager) Report() (*types.CoordinatorReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.report == nil {
		return nil, ErrNoBattle
	}
	if m.running {
		return nil, ErrStillRunning
	}
	report := *m.report
	return &report, nil
}

// LiveReport returns the in-progress report without the running/idle
// guard, used to power GET /hive/status while a battle is underway.
func (m *Manager) LiveReport() *types.CoordinatorReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.report == nil {
		return nil
	}
	report := *m.report
	return &report
}

// Snapshot returns the roster snapshot of the current/last battle.
func (m *Manager) Snapshot() *types.BattleSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Progress derives the percent-complete and ETA strings spec.md §6
// requires of GET /hive/status.
func (m *Manager) Progress(now time.Time) (percent string, eta string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return "0%", "0 seconds"
	}
	elapsed := now.Sub(m.snapshot.StartedAt).Seconds()
	total := float64(m.snapshot.Params.DurationSecs)
	if total <= 0 {
		return "100%", "0 seconds"
	}
	pct := (elapsed / total) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	remaining := total - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("%.0f%%", pct), fmt.Sprintf("%.0f seconds", remaining)
}
