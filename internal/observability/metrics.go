package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer exposes Prometheus metrics for the coordinator and the
// agent over a dedicated HTTP listener, separate from the control-plane
// API.
type MetricsServer struct {
	port   int
	logger *zap.Logger
	server *http.Server
	reg    *prometheus.Registry

	AgentsOnline     prometheus.Gauge
	BattlesStarted   prometheus.Counter
	BattlesFinished  *prometheus.CounterVec
	ReportsIngested  *prometheus.CounterVec
	HeartbeatLatency prometheus.Histogram
	RequestsTotal    *prometheus.CounterVec
	BytesReadTotal   prometheus.Counter
	EngineRPS        prometheus.Gauge
}

// NewMetricsServer builds a MetricsServer with its own Prometheus registry
// (not the global default, so multiple instances can coexist in tests).
func NewMetricsServer(port int, logger *zap.Logger) *MetricsServer {
	reg := prometheus.NewRegistry()

	m := &MetricsServer{
		port:   port,
		logger: logger,
		reg:    reg,
		AgentsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hive",
			Name:      "agents_online",
			Help:      "Number of agents currently considered online by the coordinator.",
		}),
		BattlesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Name:      "battles_started_total",
			Help:      "Total battles started via /hive/poke.",
		}),
		BattlesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hive",
			Name:      "battles_finished_total",
			Help:      "Total battles finalized, labeled by completion reason.",
		}, []string{"reason"}),
		ReportsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hive",
			Name:      "agent_reports_total",
			Help:      "Per-agent reports ingested, labeled by outcome.",
		}, []string{"outcome"}),
		HeartbeatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hive",
			Name:      "heartbeat_round_trip_seconds",
			Help:      "Round-trip time of agent heartbeat calls as observed by the coordinator.",
			Buckets:   prometheus.DefBuckets,
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hive",
			Name:      "engine_requests_total",
			Help:      "Requests completed by the battle engine, labeled by agent id.",
		}, []string{"agent_id"}),
		BytesReadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Name:      "engine_bytes_read_total",
			Help:      "Cumulative response bytes read across all battles.",
		}),
		EngineRPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hive",
			Name:      "engine_last_battle_rps",
			Help:      "Requests per second of the most recently finalized battle.",
		}),
	}

	reg.MustRegister(
		m.AgentsOnline,
		m.BattlesStarted,
		m.BattlesFinished,
		m.ReportsIngested,
		m.HeartbeatLatency,
		m.RequestsTotal,
		m.BytesReadTotal,
		m.EngineRPS,
	)

	return m
}

// Start begins serving metrics on /metrics and a liveness probe on /health.
func (m *MetricsServer) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", m.handleHealth)

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", m.port),
		Handler: mux,
	}

	m.logger.Info("metrics server starting", zap.Int("port", m.port))

	if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server error: %w", err)
	}

	return nil
}

// Stop gracefully stops the server.
func (m *MetricsServer) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func (m *MetricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
