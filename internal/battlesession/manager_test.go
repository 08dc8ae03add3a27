package battlesession

import (
	"context"
	"testing"
	"time"

	"github.com/meridian/hive/pkg/types"
	"go.uber.org/zap"
)

// newRunningManager builds a Manager already mid-battle, bypassing Start
// (which persists a snapshot via a live Postgres client) so the
// finalize/ingest/report logic can be exercised without a database.
func newRunningManager(agentCount int) *Manager {
	return &Manager{
		logger:  zap.NewNop(),
		running: true,
		snapshot: &types.BattleSnapshot{
			AgentIDs:  makeIDs(agentCount),
			Params:    types.BattleParams{TargetURL: "http://example.com", DurationSecs: 10},
			StartedAt: time.Now(),
		},
		report: &types.CoordinatorReport{
			Params:       types.BattleParams{TargetURL: "http://example.com", DurationSecs: 10},
			StatusCounts: make(map[int32]uint64),
		},
	}
}

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "BuzzyBoi" + string(rune('1'+i))
	}
	return ids
}

func TestReportBeforeAnyBattle(t *testing.T) {
	m := &Manager{logger: zap.NewNop()}
	if _, err := m.Report(); err != ErrNoBattle {
		t.Errorf("Report() error = %v, want ErrNoBattle", err)
	}
}

func TestReportWhileRunning(t *testing.T) {
	m := newRunningManager(2)
	if _, err := m.Report(); err != ErrStillRunning {
		t.Errorf("Report() error = %v, want ErrStillRunning", err)
	}
}

func TestIngestSuccessFinalizesOnLastAgent(t *testing.T) {
	m := newRunningManager(2)
	ctx := context.Background()

	finalized, err := m.IngestSuccess(ctx, "BuzzyBoi1", &types.BattleResult{RequestsCompleted: 100, RPS: 50, StatusCounts: map[int32]uint64{200: 100}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if finalized {
		t.Fatal("should not finalize after only 1 of 2 agents reported")
	}
	if !m.IsRunning() {
		t.Fatal("battle should still be running after a partial report")
	}

	finalized, err = m.IngestSuccess(ctx, "BuzzyBoi2", &types.BattleResult{RequestsCompleted: 50, RPS: 25, StatusCounts: map[int32]uint64{200: 45, 500: 5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !finalized {
		t.Fatal("should finalize once every agent has reported")
	}
	if m.IsRunning() {
		t.Fatal("battle should no longer be running after finalize")
	}

	report, err := m.Report()
	if err != nil {
		t.Fatalf("Report() after finalize: %v", err)
	}
	if report.Completed != 2 {
		t.Errorf("completed = %d, want 2", report.Completed)
	}
	if report.TotalRequests != 150 {
		t.Errorf("total_requests = %d, want 150", report.TotalRequests)
	}
	if report.NonSuccessCount != 5 {
		t.Errorf("non_success_count = %d, want 5 (only the 500s)", report.NonSuccessCount)
	}
	if !report.ReportGenerated {
		t.Error("report_generated should be true after finalize")
	}
}

func TestIngestFailureCountsTowardCompletion(t *testing.T) {
	m := newRunningManager(2)
	ctx := context.Background()

	finalized, err := m.IngestFailure(ctx, "BuzzyBoi1", "connection refused")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if finalized {
		t.Fatal("should not finalize after only 1 of 2 agents reported")
	}

	finalized, err = m.IngestFailure(ctx, "BuzzyBoi2", "timeout")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !finalized {
		t.Fatal("should finalize once both agents have reported failure")
	}

	report, err := m.Report()
	if err != nil {
		t.Fatalf("Report(): %v", err)
	}
	if report.Failed != 2 {
		t.Errorf("failed = %d, want 2", report.Failed)
	}
	if report.Completed != 0 {
		t.Errorf("completed = %d, want 0", report.Completed)
	}
}

func TestFinalizeOnlyOnce(t *testing.T) {
	m := newRunningManager(1)
	ctx := context.Background()

	first := m.finalize(ctx, "timeout")
	if !first {
		t.Fatal("first finalize should return true")
	}
	second := m.finalize(ctx, "timeout")
	if second {
		t.Fatal("second finalize should be a no-op and return false")
	}
}

func TestFinalizeOnTimeoutFinalizesPartialBattle(t *testing.T) {
	m := newRunningManager(3)
	ctx := context.Background()

	m.IngestSuccess(ctx, "BuzzyBoi1", &types.BattleResult{RequestsCompleted: 10, StatusCounts: map[int32]uint64{}})

	m.FinalizeOnTimeout(ctx)

	if m.IsRunning() {
		t.Fatal("battle should be finalized (not running) after timeout")
	}
	report, err := m.Report()
	if err != nil {
		t.Fatalf("Report(): %v", err)
	}
	if report.Completed != 1 {
		t.Errorf("completed = %d, want 1 (only agent 1 reported before timeout)", report.Completed)
	}
}

func TestIngestRejectedWhenNoBattleRunning(t *testing.T) {
	m := &Manager{logger: zap.NewNop()}
	ctx := context.Background()

	if _, err := m.IngestSuccess(ctx, "BuzzyBoi1", &types.BattleResult{}); err == nil {
		t.Error("expected error ingesting a success with no battle running")
	}
	if _, err := m.IngestFailure(ctx, "BuzzyBoi1", "oops"); err == nil {
		t.Error("expected error ingesting a failure with no battle running")
	}
}

func TestProgressNoBattleYet(t *testing.T) {
	m := &Manager{}
	percent, eta := m.Progress(time.Now())
	if percent != "0%" || eta != "0 seconds" {
		t.Errorf("Progress() with no snapshot = (%q, %q), want (0%%, 0 seconds)", percent, eta)
	}
}

func TestProgressMidBattle(t *testing.T) {
	start := time.Now().Add(-5 * time.Second)
	m := &Manager{
		snapshot: &types.BattleSnapshot{
			Params:    types.BattleParams{DurationSecs: 10},
			StartedAt: start,
		},
	}
	percent, eta := m.Progress(start.Add(5 * time.Second))
	if percent != "50%" {
		t.Errorf("percent = %q, want 50%%", percent)
	}
	if eta != "5 seconds" {
		t.Errorf("eta = %q, want 5 seconds", eta)
	}
}

func TestProgressClampsPastDeadline(t *testing.T) {
	start := time.Now().Add(-30 * time.Second)
	m := &Manager{
		snapshot: &types.BattleSnapshot{
			Params:    types.BattleParams{DurationSecs: 10},
			StartedAt: start,
		},
	}
	percent, eta := m.Progress(time.Now())
	if percent != "100%" {
		t.Errorf("percent past deadline = %q, want 100%%", percent)
	}
	if eta != "0 seconds" {
		t.Errorf("eta past deadline = %q, want 0 seconds", eta)
	}
}

func TestSnapshotReturnsStoredSnapshot(t *testing.T) {
	m := newRunningManager(1)
	if m.Snapshot() == nil {
		t.Fatal("Snapshot() should return the manager's current snapshot")
	}
}

func TestLiveReportNilBeforeAnyBattle(t *testing.T) {
	m := &Manager{}
	if m.LiveReport() != nil {
		t.Error("LiveReport() should be nil before any battle has started")
	}
}
