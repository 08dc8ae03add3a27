package engine

import (
	"testing"

	"github.com/meridian/hive/pkg/types"
)

func TestAggregateEmpty(t *testing.T) {
	result := aggregate(nil, 1.0, "http://example.com", "GET", 10, 2)
	if result.RequestsCompleted != 0 {
		t.Errorf("requests completed = %d, want 0", result.RequestsCompleted)
	}
	if result.LatencyP50 != nil {
		t.Errorf("expected nil p50 for empty sample, got %v", *result.LatencyP50)
	}
	if result.RPS != 0 {
		t.Errorf("rps = %f, want 0", result.RPS)
	}
}

func TestAggregateMergesWorkers(t *testing.T) {
	w1 := newLocalStats()
	w1.record(200, 100, 1000)
	w1.record(200, 100, 2000)
	w1.recordError(types.ErrConnectionFailed)

	w2 := newLocalStats()
	w2.record(500, 50, 3000)

	result := aggregate([]*localStats{w1, w2}, 2.0, "http://example.com", "GET", 10, 2)

	if result.RequestsCompleted != 3 {
		t.Errorf("requests completed = %d, want 3", result.RequestsCompleted)
	}
	if result.BytesRead != 250 {
		t.Errorf("bytes read = %d, want 250", result.BytesRead)
	}
	if result.StatusCounts[200] != 2 {
		t.Errorf("status 200 count = %d, want 2", result.StatusCounts[200])
	}
	if result.StatusCounts[500] != 1 {
		t.Errorf("status 500 count = %d, want 1", result.StatusCounts[500])
	}
	if result.StatusCounts[types.ErrConnectionFailed] != 1 {
		t.Errorf("connection-failed count = %d, want 1", result.StatusCounts[types.ErrConnectionFailed])
	}
	if result.RPS != 1.5 {
		t.Errorf("rps = %f, want 1.5 (3 requests / 2s)", result.RPS)
	}
	if result.LatencyP50 == nil {
		t.Fatal("expected non-nil p50")
	}
	if result.LatencyMaxMicros != 3000 {
		t.Errorf("max latency = %d, want 3000", result.LatencyMaxMicros)
	}
}

func TestAggregatePercentileIndexingNeverOutOfRange(t *testing.T) {
	w := newLocalStats()
	w.record(200, 1, 500)

	result := aggregate([]*localStats{w}, 1.0, "http://example.com", "GET", 1, 1)
	if result.LatencyP50 == nil || result.LatencyP90 == nil || result.LatencyP99 == nil {
		t.Fatal("expected all percentiles set for single-sample aggregate")
	}
	if *result.LatencyP50 != 500 || *result.LatencyP90 != 500 || *result.LatencyP99 != 500 {
		t.Errorf("single-sample percentiles should all equal the one latency, got p50=%d p90=%d p99=%d",
			*result.LatencyP50, *result.LatencyP90, *result.LatencyP99)
	}
}

func TestMinInt(t *testing.T) {
	if minInt(3, 5) != 3 {
		t.Error("minInt(3,5) should be 3")
	}
	if minInt(5, 3) != 3 {
		t.Error("minInt(5,3) should be 3")
	}
}
