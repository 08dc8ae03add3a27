// Package client is the operator-facing HTTP client hivectl uses to talk
// to a running coordinator.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meridian/hive/pkg/api"
	"github.com/meridian/hive/pkg/types"
	"go.uber.org/zap"
)

// Client communicates with a hive coordinator over its HTTP surface.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a new coordinator API client.
func NewClient(host string, port int, logger *zap.Logger) *Client {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Poke starts a battle via PUT /hive/poke.
func (c *Client) Poke(ctx context.Context, req *api.FireRequest) error {
	return c.put(ctx, "/hive/poke", req, nil)
}

// Ceasefire stops the current battle via GET /hive/ceasefire.
func (c *Client) Ceasefire(ctx context.Context) error {
	return c.get(ctx, "/hive/ceasefire", nil)
}

// Torch shuts down every agent and clears the roster via DELETE /hive/torch.
func (c *Client) Torch(ctx context.Context) error {
	return c.do(ctx, "DELETE", "/hive/torch", nil, nil)
}

// Status returns the raw body of GET /hive/status: either a StatusResponse
// JSON object while running, or a short operational string otherwise.
func (c *Client) Status(ctx context.Context) ([]byte, error) {
	return c.getRaw(ctx, "/hive/status")
}

// Done reports whether the coordinator is idle via GET /hive/status/done.
func (c *Client) Done(ctx context.Context) (bool, error) {
	body, err := c.getRaw(ctx, "/hive/status/done")
	if err != nil {
		return false, err
	}
	return string(body) == "done", nil
}

// Report returns the aggregate report for the most recently finished battle.
func (c *Client) Report(ctx context.Context) (*types.CoordinatorReport, error) {
	var report types.CoordinatorReport
	if err := c.get(ctx, "/hive/status/report", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// List returns the current agent roster.
func (c *Client) List(ctx context.Context) ([]*types.AgentRecord, error) {
	var agents []*types.AgentRecord
	if err := c.get(ctx, "/wasp/list", &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// Boop probes every agent in the roster via GET /wasp/boop/snoots.
func (c *Client) Boop(ctx context.Context) error {
	return c.get(ctx, "/wasp/boop/snoots", nil)
}

// Ping checks the coordinator is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.getRaw(ctx, "/hive/status/done")
	if err != nil {
		return fmt.Errorf("coordinator unreachable: %w", err)
	}
	return nil
}

func (c *Client) put(ctx context.Context, path string, reqBody, respBody interface{}) error {
	return c.do(ctx, "PUT", path, reqBody, respBody)
}

func (c *Client) get(ctx context.Context, path string, respBody interface{}) error {
	return c.do(ctx, "GET", path, nil, respBody)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("coordinator error (%d): %s", resp.StatusCode, string(errBody))
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("coordinator error (%d): %s", resp.StatusCode, string(data))
	}

	return data, nil
}
