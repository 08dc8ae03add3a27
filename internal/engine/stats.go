package engine

import (
	"sort"
	"sync"

	"github.com/meridian/hive/pkg/types"
)

// localStats accumulates one worker's results under a worker-local mutex.
// Every connection goroutine spawned by a worker writes into the same
// localStats instance; the worker folds it into the global sink exactly
// once, at worker-goroutine termination (spec.md §3 Ownership).
type localStats struct {
	mu sync.Mutex

	requestsCompleted uint64
	bytesRead         uint64
	statusCounts      map[int32]uint64
	latenciesMicros   []int64
}

func newLocalStats() *localStats {
	return &localStats{statusCounts: make(map[int32]uint64)}
}

func (s *localStats) record(statusCode int32, bytesRead uint64, latencyMicros int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestsCompleted++
	s.bytesRead += bytesRead
	s.statusCounts[statusCode]++
	s.latenciesMicros = append(s.latenciesMicros, latencyMicros)
}

func (s *localStats) recordError(errTag int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCounts[errTag]++
}

// aggregate merges a set of worker-local stats into one BattleResult,
// computing latency percentiles the way the original battle engine does:
// sort the sample, then index at n/2, min(n*90/100, n-1), min(n*99/100,
// n-1) for p50/p90/p99. An empty sample leaves all three unset.
func aggregate(workers []*localStats, elapsedSecs float64, target, method string, connections, threads uint) *types.BattleResult {
	result := &types.BattleResult{
		URL:          target,
		Method:       method,
		Connections:  connections,
		Threads:      threads,
		DurationSecs: uint(elapsedSecs + 0.5),
		StatusCounts: make(map[int32]uint64),
	}

	var latencies []int64
	var latencySum int64
	var latencyMax int64

	for _, w := range workers {
		w.mu.Lock()
		result.RequestsCompleted += w.requestsCompleted
		result.BytesRead += w.bytesRead
		for code, count := range w.statusCounts {
			result.StatusCounts[code] += count
		}
		latencies = append(latencies, w.latenciesMicros...)
		for _, l := range w.latenciesMicros {
			latencySum += l
			if l > latencyMax {
				latencyMax = l
			}
		}
		w.mu.Unlock()
	}

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		n := len(latencies)
		p50 := latencies[n/2]
		p90 := latencies[minInt(n*90/100, n-1)]
		p99 := latencies[minInt(n*99/100, n-1)]
		result.LatencyP50 = &p50
		result.LatencyP90 = &p90
		result.LatencyP99 = &p99
		result.LatencyAvgMicros = latencySum / int64(n)
		result.LatencyMaxMicros = latencyMax
	}

	if elapsedSecs > 0 {
		result.RPS = float64(result.RequestsCompleted) / elapsedSecs
	}

	return result
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
