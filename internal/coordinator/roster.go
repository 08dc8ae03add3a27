// Package coordinator is the hive: it maintains the agent roster,
// orchestrates a single battle across all online agents via
// internal/battlesession, and exposes live status and final results to
// the operator over both HTTP and gRPC.
package coordinator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meridian/hive/internal/cache"
	"github.com/meridian/hive/internal/messaging"
	"github.com/meridian/hive/internal/storage"
	"github.com/meridian/hive/pkg/types"
	"go.uber.org/zap"
)

// Roster tracks registered agents, backed by Postgres for restart
// survival and fronted by Redis for read-heavy operator polling
// (SPEC_FULL.md §C.2).
type Roster struct {
	db        *storage.PostgresClient
	cache     *cache.Manager
	messaging *messaging.Client
	logger    *zap.Logger

	counter int64
}

// NewRoster creates a roster manager.
func NewRoster(db *storage.PostgresClient, c *cache.Manager, msg *messaging.Client, logger *zap.Logger) *Roster {
	return &Roster{db: db, cache: c, messaging: msg, logger: logger}
}

// nextID allocates the next BuzzyBoiN identifier (spec.md §4.3).
func (r *Roster) nextID() string {
	n := atomic.AddInt64(&r.counter, 1)
	return fmt.Sprintf("BuzzyBoi%d", n)
}

// Checkin registers (or refreshes) the agent at host:port, returning its
// stable id. Repeated check-ins from the same (host, port) return the
// same id (spec.md §8 idempotence).
func (r *Roster) Checkin(ctx context.Context, host string, port int) (string, error) {
	rec, err := r.db.UpsertAgent(ctx, host, port, r.nextID)
	if err != nil {
		return "", fmt.Errorf("checkin: %w", err)
	}
	r.cache.InvalidateRoster(ctx)
	return rec.ID, nil
}

// Heartbeat refreshes the given agent's liveness, returning an error if
// no such record exists (spec.md §4.3: "400 if no such record").
func (r *Roster) Heartbeat(ctx context.Context, id string) error {
	if err := r.db.RefreshHeartbeat(ctx, id); err != nil {
		return err
	}
	r.cache.InvalidateRoster(ctx)
	return nil
}

// List returns every registered agent, preferring the cache.
func (r *Roster) List(ctx context.Context) ([]*types.AgentRecord, error) {
	if cached := r.cache.GetRoster(ctx); cached != nil {
		return cached, nil
	}
	agents, err := r.db.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.SetRoster(ctx, agents)
	return agents, nil
}

// OnlineSnapshot returns the record of every agent currently within the
// liveness window, for use as a battle's agent set.
func (r *Roster) OnlineSnapshot(ctx context.Context) ([]*types.AgentRecord, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var online []*types.AgentRecord
	for _, a := range all {
		if a.Online(now) {
			online = append(online, a)
		}
	}
	return online, nil
}

// Sweep removes any record whose heartbeat predates the liveness window,
// publishing an agent-offline event for each (spec.md §4.3: runs every 30s).
func (r *Roster) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-types.OnlineWindow)
	removed, err := r.db.SweepStale(ctx, cutoff)
	if err != nil {
		r.logger.Warn("roster sweep failed", zap.Error(err))
		return
	}
	if len(removed) == 0 {
		return
	}
	r.cache.InvalidateRoster(ctx)
	for _, id := range removed {
		r.logger.Info("agent swept from roster (stale heartbeat)", zap.String("agent_id", id))
		if r.messaging != nil {
			if err := r.messaging.Publish(ctx, "hive.agent.offline", map[string]string{"agent_id": id}); err != nil {
				r.logger.Warn("failed to publish agent-offline event", zap.Error(err))
			}
		}
	}
}

// RunSweepLoop runs Sweep on a fixed interval until ctx is canceled.
func (r *Roster) RunSweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Torch clears the entire roster (spec.md §4.3: DELETE /hive/torch).
func (r *Roster) Torch(ctx context.Context) error {
	if err := r.db.ClearRoster(ctx); err != nil {
		return err
	}
	r.cache.InvalidateRoster(ctx)
	return nil
}

// BoopAll GETs /boop on every roster agent concurrently, returning the
// ids that failed to respond (spec.md §4.3: "records that fail are
// marked offline" — here surfaced to the caller, who decides disposition).
func (r *Roster) BoopAll(ctx context.Context) (offline []string) {
	agents, err := r.List(ctx)
	if err != nil {
		r.logger.Warn("boop-all: failed to list roster", zap.Error(err))
		return nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	client := &http.Client{Timeout: 3 * time.Second}

	for _, a := range agents {
		wg.Add(1)
		go func(a *types.AgentRecord) {
			defer wg.Done()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+a.Addr()+"/boop", nil)
			if err != nil {
				mu.Lock()
				offline = append(offline, a.ID)
				mu.Unlock()
				return
			}
			resp, err := client.Do(req)
			if err != nil || resp.StatusCode >= 300 {
				mu.Lock()
				offline = append(offline, a.ID)
				mu.Unlock()
				return
			}
			resp.Body.Close()
		}(a)
	}
	wg.Wait()
	return offline
}

// PeerHost extracts the caller's IP from a request's RemoteAddr, resolving
// the Open Question spec.md §9 raises about client-IP derivation: Go's
// net/http server exposes the real peer address directly, so no stub is
// needed (see DESIGN.md).
func PeerHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ParsePort parses a path segment into a port number.
func ParsePort(s string) (int, error) {
	return strconv.Atoi(s)
}
