package cache

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNewManagerWithNilConfigIsPassThrough(t *testing.T) {
	m, err := NewManager(nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager(nil, ...) error: %v", err)
	}
	if m.Enabled() {
		t.Fatal("expected a pass-through manager to report Enabled() == false")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() on a pass-through manager returned error: %v", err)
	}
}

func TestPassThroughManagerGetReportAlwaysMisses(t *testing.T) {
	m, _ := NewManager(nil, zap.NewNop())
	ctx := context.Background()
	if got := m.GetReport(ctx); got != nil {
		t.Errorf("GetReport() on a pass-through manager = %v, want nil", got)
	}
	if got := m.GetRoster(ctx); got != nil {
		t.Errorf("GetRoster() on a pass-through manager = %v, want nil", got)
	}
}

func TestPassThroughManagerSetAndInvalidateAreNoOps(t *testing.T) {
	m, _ := NewManager(nil, zap.NewNop())
	ctx := context.Background()

	// None of these should panic even though the backing Redis client is nil.
	m.SetReport(ctx, nil)
	m.InvalidateReport(ctx)
	m.SetRoster(ctx, nil)
	m.InvalidateRoster(ctx)
	m.Warm(ctx, nil, nil)
}

func TestStatsOnPassThroughManager(t *testing.T) {
	m, _ := NewManager(nil, zap.NewNop())
	stats := m.Stats(context.Background())

	if stats["enabled"] != false {
		t.Errorf("stats[enabled] = %v, want false", stats["enabled"])
	}
	if stats["hits"] != int64(0) || stats["misses"] != int64(0) {
		t.Errorf("expected zeroed hit/miss counters, got hits=%v misses=%v", stats["hits"], stats["misses"])
	}
	if _, ok := stats["hit_ratio"]; ok {
		t.Error("hit_ratio should be absent when no lookups have occurred")
	}
}

func TestStatsComputesHitRatio(t *testing.T) {
	m := &Manager{logger: zap.NewNop(), hits: 3, misses: 1}
	stats := m.Stats(context.Background())
	ratio, ok := stats["hit_ratio"].(float64)
	if !ok {
		t.Fatal("expected hit_ratio to be present once lookups have occurred")
	}
	if ratio != 0.75 {
		t.Errorf("hit_ratio = %v, want 0.75", ratio)
	}
}
