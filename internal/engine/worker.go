package engine

import (
	"context"
	"sync"
	"time"
)

// runWorker spawns connCount connection goroutines against tmpl, each
// driven by runConnection until deadline or ctx cancellation, and returns
// this worker's folded-together local stats once every connection
// goroutine has exited. The worker never touches the global sink itself —
// the caller appends the returned localStats to it exactly once (spec.md
// §3 Ownership).
func runWorker(ctx context.Context, tmpl *RequestTemplate, timeout time.Duration, deadline time.Time, connCount uint) *localStats {
	local := newLocalStats()
	if connCount == 0 {
		return local
	}

	var wg sync.WaitGroup
	wg.Add(int(connCount))
	for i := uint(0); i < connCount; i++ {
		go func() {
			defer wg.Done()
			// A connection that errors out (reset, refused, bad TLS) does
			// not retire its slot: it reconnects and keeps contributing
			// until the battle's deadline passes or ctx is cancelled,
			// mirroring the original engine's per-slot reconnect-and-continue
			// behavior.
			for ctx.Err() == nil && time.Now().Before(deadline) {
				runConnection(ctx, tmpl, timeout, deadline, local)
			}
		}()
	}
	wg.Wait()
	return local
}
