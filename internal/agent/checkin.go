package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meridian/hive/pkg/api"
	"go.uber.org/zap"
)

// CoordinatorLink owns the agent's outbound relationship to its
// coordinator: the one-time check-in that assigns hive_id, the periodic
// heartbeat that keeps the roster entry alive, and the condensed report
// posted on battle completion.
type CoordinatorLink struct {
	hiveURL string
	token   string
	port    int
	client  *http.Client
	logger  *zap.Logger
}

// NewCoordinatorLink creates a link to the given coordinator base URL. If
// hiveURL is empty the agent runs standalone: Checkin/Heartbeat/Report
// are all no-ops, matching spec.md's agent with "optional upstream
// coordinator link".
func NewCoordinatorLink(hiveURL, token string, port int, logger *zap.Logger) *CoordinatorLink {
	return &CoordinatorLink{
		hiveURL: hiveURL,
		token:   token,
		port:    port,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Configured reports whether an upstream coordinator was given.
func (c *CoordinatorLink) Configured() bool { return c.hiveURL != "" }

// Checkin registers this agent with the coordinator, returning the
// assigned hive_id (spec.md §4.2: "GET {hive_url}/wasp/checkin/{port}").
func (c *CoordinatorLink) Checkin(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", nil
	}
	url := fmt.Sprintf("%s/wasp/checkin/%d", c.hiveURL, c.port)
	var resp api.CheckinResponse
	if err := c.get(ctx, url, &resp); err != nil {
		return "", fmt.Errorf("checkin: %w", err)
	}
	return resp.ID, nil
}

// Heartbeat refreshes this agent's liveness at the coordinator. Failures
// are non-fatal (spec.md §4.2: "logged but not fatal").
func (c *CoordinatorLink) Heartbeat(ctx context.Context) error {
	if !c.Configured() {
		return nil
	}
	url := fmt.Sprintf("%s/wasp/heartbeat/%d", c.hiveURL, c.port)
	return c.get(ctx, url, nil)
}

// RunHeartbeatLoop sends a heartbeat every interval until ctx is canceled,
// logging (but not propagating) failures.
func (c *CoordinatorLink) RunHeartbeatLoop(ctx context.Context, interval time.Duration) {
	if !c.Configured() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Heartbeat(ctx); err != nil {
				c.logger.Warn("heartbeat failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// ReportUp PUTs a condensed report for this agent's hive_id upstream
// (spec.md §4.2: "PUTs a condensed report to {hive_url}/wasp/reportin/{hive_id}").
func (c *CoordinatorLink) ReportUp(ctx context.Context, hiveID string, report api.AgentReportJSON) error {
	if !c.Configured() || hiveID == "" {
		return nil
	}
	url := fmt.Sprintf("%s/wasp/reportin/%s", c.hiveURL, hiveID)
	return c.putJSON(ctx, url, report)
}

// ReportFailure PUTs a plain-text failure string upstream for this
// agent's hive_id (spec.md §6: "body: error string").
func (c *CoordinatorLink) ReportFailure(ctx context.Context, hiveID, errMsg string) error {
	if !c.Configured() || hiveID == "" {
		return nil
	}
	url := fmt.Sprintf("%s/wasp/reportin/%s/failed", c.hiveURL, hiveID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader([]byte(errMsg)))
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return nil
}

func (c *CoordinatorLink) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, body)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *CoordinatorLink) putJSON(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return nil
}

func (c *CoordinatorLink) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("wwb-token", c.token)
	}
}
