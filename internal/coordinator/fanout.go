package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/meridian/hive/pkg/types"
	"go.uber.org/zap"
)

// fireAgent PUTs a fire-request body to one agent's /fire endpoint.
func fireAgent(ctx context.Context, a *types.AgentRecord, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, "http://"+a.Addr()+"/fire", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("agent %s rejected fire with status %d", a.ID, resp.StatusCode)
	}
	return nil
}

// FireAll fans PUT /fire out to every agent concurrently, logging (but
// not failing the whole battle on) per-agent errors — spec.md §4.3
// describes fan-out as best-effort against the snapshot taken at poke
// time.
func FireAll(ctx context.Context, agents []*types.AgentRecord, params types.BattleParams, logger *zap.Logger) {
	body, err := json.Marshal(fireRequestFromParams(params))
	if err != nil {
		logger.Error("failed to marshal fire request", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Add(1)
		go func(a *types.AgentRecord) {
			defer wg.Done()
			if err := fireAgent(ctx, a, body); err != nil {
				logger.Warn("fire failed for agent", zap.String("agent_id", a.ID), zap.Error(err))
			}
		}(a)
	}
	wg.Wait()
}

// CeasefireAll fans GET /ceasefire out to every agent concurrently.
func CeasefireAll(ctx context.Context, agents []*types.AgentRecord, logger *zap.Logger) {
	var wg sync.WaitGroup
	client := &http.Client{Timeout: 3 * time.Second}
	for _, a := range agents {
		wg.Add(1)
		go func(a *types.AgentRecord) {
			defer wg.Done()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+a.Addr()+"/ceasefire", nil)
			if err != nil {
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				logger.Warn("ceasefire failed for agent", zap.String("agent_id", a.ID), zap.Error(err))
				return
			}
			resp.Body.Close()
		}(a)
	}
	wg.Wait()
}

// DieAll fans DELETE /die out to every agent concurrently with a 3s
// per-call timeout, ignoring connect failures since the agent process
// exits as the response is written (spec.md §4.3: DELETE /hive/torch).
func DieAll(ctx context.Context, agents []*types.AgentRecord, logger *zap.Logger) {
	var wg sync.WaitGroup
	client := &http.Client{Timeout: 3 * time.Second}
	for _, a := range agents {
		wg.Add(1)
		go func(a *types.AgentRecord) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			req, err := http.NewRequestWithContext(callCtx, http.MethodDelete, "http://"+a.Addr()+"/die", nil)
			if err != nil {
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
		}(a)
	}
	wg.Wait()
}

func fireRequestFromParams(p types.BattleParams) map[string]interface{} {
	headers := make(map[string]string, len(p.Headers))
	for _, h := range p.Headers {
		headers[h.Name] = h.Value
	}
	return map[string]interface{}{
		"target":  p.TargetURL,
		"t":       p.Threads,
		"c":       p.Connections,
		"d":       p.DurationSecs,
		"timeout": p.TimeoutSecs,
		"method":  p.Method,
		"headers": headers,
		"body":    p.Body,
	}
}
