package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func TestNewMetricsServerRegistersAllCollectors(t *testing.T) {
	m := NewMetricsServer(0, zap.NewNop())
	m.AgentsOnline.Set(3)
	m.BattlesStarted.Inc()
	m.BattlesFinished.WithLabelValues("timeout").Inc()

	srv := httptest.NewServer(promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	body := string(data)

	if !strings.Contains(body, "hive_agents_online 3") {
		t.Errorf("expected hive_agents_online gauge in output, got: %s", body)
	}
	if !strings.Contains(body, "hive_battles_started_total 1") {
		t.Errorf("expected hive_battles_started_total counter in output, got: %s", body)
	}
	if !strings.Contains(body, `hive_battles_finished_total{reason="timeout"} 1`) {
		t.Errorf("expected labeled hive_battles_finished_total in output, got: %s", body)
	}
}

func TestMetricsServerHealthEndpoint(t *testing.T) {
	m := NewMetricsServer(0, zap.NewNop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	m.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func TestMetricsServerStopWithoutStartIsNoOp(t *testing.T) {
	m := NewMetricsServer(0, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Errorf("Stop() on a never-started server returned error: %v", err)
	}
}
