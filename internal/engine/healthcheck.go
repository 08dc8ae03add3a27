package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// HealthCheck confirms a battle's target is reachable before an agent
// commits any worker goroutines to it. It issues a lightweight request
// through retryablehttp, retrying only on the transient dial/reset errors
// the original engine treated as "try again," rather than on HTTP status
// codes — a 404 or 500 still means the target answered.
//
// The probe's TLS verification matches the battle engine's own
// InsecureTLSPolicy: a target's self-signed certificate must not fail the
// health check when the engine itself would have accepted it and fired
// (spec.md §9).
func HealthCheck(ctx context.Context, target string, logger *zap.Logger) error {
	client := retryablehttp.NewClient()
	client.RetryMax = 4 // one initial attempt plus four retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 200 * time.Millisecond
	client.Logger = nil

	serverName := ""
	if u, err := url.Parse(target); err == nil {
		serverName = u.Hostname()
	}
	client.HTTPClient.Transport = &http.Transport{
		TLSClientConfig: InsecureTLSPolicy(serverName),
	}

	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err == nil {
			return false, nil
		}
		msg := err.Error()
		for _, transient := range transientHealthErrors {
			if strings.Contains(msg, transient) {
				return true, nil
			}
		}
		return false, nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return fmt.Errorf("build health check request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("health check failed", zap.String("target", target), zap.Error(err))
		return fmt.Errorf("health check against %s failed: %w", target, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	logger.Info("health check passed", zap.String("target", target), zap.Int("status", resp.StatusCode))
	return nil
}

var transientHealthErrors = []string{
	"Socket is not connected",
	"Broken pipe",
	"Resource temporarily unavailable",
	"connection refused",
	"connection reset",
	"timeout",
}
