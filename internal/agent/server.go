package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/meridian/hive/internal/auth"
	"github.com/meridian/hive/internal/engine"
	"github.com/meridian/hive/internal/procmetrics"
	"github.com/meridian/hive/pkg/api"
	"github.com/meridian/hive/pkg/config"
	"github.com/meridian/hive/pkg/types"
	"go.uber.org/zap"
)

// Server is the agent's HTTP control surface: GET /boop, PUT /fire, GET
// /ceasefire, DELETE /die, GET /battlereport (spec.md §4.2).
type Server struct {
	server *http.Server
	state  *State
	link   *CoordinatorLink
	logger *zap.Logger
	die    chan struct{}
}

// NewServer builds the agent HTTP server. token is the wwb-token this
// agent requires of callers (empty disables auth, logging a one-time
// warning, per spec.md §4.2); rl configures the per-client rate limiter.
func NewServer(port int, token string, rl config.RateLimitConfig, state *State, link *CoordinatorLink, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		state:  state,
		link:   link,
		logger: logger,
		die:    make(chan struct{}, 1),
	}

	mux.HandleFunc("/boop", s.handleBoop)
	mux.HandleFunc("/fire", s.handleFire)
	mux.HandleFunc("/ceasefire", s.handleCeasefire)
	mux.HandleFunc("/die", s.handleDie)
	mux.HandleFunc("/battlereport", s.handleBattleReport)

	validator := auth.NewValidator(token, logger)
	var handler http.Handler = auth.Middleware(validator)(mux)

	ratePerMin := rl.RequestsPerMinute
	if ratePerMin <= 0 {
		ratePerMin = 300
	}
	burst := rl.Burst
	if burst <= 0 {
		burst = 50
	}
	limiter := auth.NewRateLimiter(ratePerMin, time.Minute, burst)
	handler = auth.RateLimitMiddleware(limiter)(handler)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves the agent's HTTP surface until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("agent HTTP server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("agent http server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// DieRequested signals when DELETE /die has scheduled a process exit.
func (s *Server) DieRequested() <-chan struct{} { return s.die }

func (s *Server) handleBoop(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("boop!"))
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.FireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	battleCtx, ok := s.state.TryStart()
	if !ok {
		http.Error(w, "a battle is already running", http.StatusBadRequest)
		return
	}

	params := req.ToBattleParams()

	if err := engine.HealthCheck(r.Context(), params.TargetURL, s.logger); err != nil {
		s.state.Finish(nil)
		http.Error(w, fmt.Sprintf("health check failed: %v", err), http.StatusBadRequest)
		return
	}

	go s.runBattle(battleCtx, params)

	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"firing"}`))
}

// runBattle drives the engine asynchronously to completion, samples this
// process's own resource usage alongside it, and ships the condensed
// report upstream (spec.md §4.2, SPEC_FULL.md §C.5). battleCtx is
// cancelled by a ceasefire request or by Finish; engine.Run observes that
// cancellation cooperatively and returns whatever traffic it already
// drove. Upstream reporting always runs against a fresh background
// context, since battleCtx is cancelled by the time there's a result to
// report.
func (s *Server) runBattle(battleCtx context.Context, params types.BattleParams) {
	ctx := context.Background()
	sampler := procmetrics.NewSampler(os.Getpid())

	done := make(chan struct{})
	sampleOut := make(chan procmetrics.Sample, 1)
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		var last procmetrics.Sample
		for {
			select {
			case <-ticker.C:
				if sample, err := sampler.Sample(); err == nil {
					last = sample
				}
			case <-done:
				sampleOut <- last
				return
			}
		}
	}()

	result, err := engine.Run(battleCtx, params)
	close(done)
	lastSample := <-sampleOut

	if err != nil {
		s.logger.Error("battle run failed", zap.Error(err))
		s.state.Finish(nil)
		if hiveID := s.state.HiveID(); hiveID != "" {
			if rErr := s.link.ReportFailure(ctx, hiveID, err.Error()); rErr != nil {
				s.logger.Warn("failed to report failure upstream", zap.Error(rErr))
			}
		}
		return
	}

	result.AgentCPUPercent = lastSample.CPUPercent
	result.AgentMemoryMB = lastSample.MemoryMB

	s.state.Finish(result)
	s.logger.Info("battle completed",
		zap.Uint64("requests_completed", result.RequestsCompleted),
		zap.Float64("rps", result.RPS))

	if hiveID := s.state.HiveID(); hiveID != "" {
		if rErr := s.link.ReportUp(ctx, hiveID, api.FromBattleResult(result)); rErr != nil {
			s.logger.Warn("failed to report upstream", zap.Error(rErr))
		}
	}
}

func (s *Server) handleCeasefire(w http.ResponseWriter, r *http.Request) {
	s.state.Ceasefire()
	w.Write([]byte("ceasefire acknowledged"))
}

func (s *Server) handleDie(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.state.IsRunning() {
		http.Error(w, "cannot die while a battle is running", http.StatusBadRequest)
		return
	}
	w.Write([]byte("dying"))
	go func() {
		time.Sleep(100 * time.Millisecond)
		select {
		case s.die <- struct{}{}:
		default:
		}
	}()
}

func (s *Server) handleBattleReport(w http.ResponseWriter, r *http.Request) {
	result := s.state.LastResult()
	if result == nil {
		http.Error(w, "no battle report available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.FromBattleResult(result))
}
