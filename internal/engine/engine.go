// Package engine is the battle engine: the non-blocking, multi-worker HTTP
// load generator an agent runs on receipt of a fire request. Each worker is
// a goroutine owning a slice of the battle's connections; Go's runtime
// netpoller plays the role the original engine's mio/epoll reactor played,
// so connections block on reads and writes under a per-operation deadline
// rather than polling for readiness by hand.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian/hive/pkg/types"
)

// Run fires params.Connections connections across params.Threads workers
// against params.TargetURL for params.DurationSecs, returning the merged
// BattleResult. ctx governs the whole battle, not just its start: every
// connection checks ctx between requests and stops at its next tick once
// ctx is cancelled (spec.md §4.2, §5 Cancellation), so a ceasefire ends
// the battle within one reactor tick instead of running to the full
// deadline.
func Run(ctx context.Context, params types.BattleParams) (*types.BattleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmpl, err := BuildRequestTemplate(params)
	if err != nil {
		return nil, fmt.Errorf("build request template: %w", err)
	}

	threads := params.Threads
	if threads == 0 {
		threads = 1
	}
	connsPerWorker := params.ConnectionsPerWorker()
	remainder := params.Connections - connsPerWorker*threads

	timeout := time.Duration(params.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	start := time.Now()
	deadline := start.Add(time.Duration(params.DurationSecs) * time.Second)

	type workerOut struct {
		stats *localStats
	}
	outCh := make(chan workerOut, threads)

	for w := uint(0); w < threads; w++ {
		conns := connsPerWorker
		if w == threads-1 {
			// Last worker absorbs Connections mod Threads so the total
			// connection count always matches what was requested, even
			// when Connections does not divide evenly by Threads.
			conns += remainder
		}
		go func(conns uint) {
			outCh <- workerOut{stats: runWorker(ctx, tmpl, timeout, deadline, conns)}
		}(conns)
	}

	workers := make([]*localStats, 0, threads)
	for i := uint(0); i < threads; i++ {
		out := <-outCh
		workers = append(workers, out.stats)
	}

	elapsed := time.Since(start).Seconds()
	result := aggregate(workers, elapsed, params.TargetURL, params.Method, params.Connections, threads)
	return result, nil
}
