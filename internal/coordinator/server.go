package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meridian/hive/internal/auth"
	"github.com/meridian/hive/internal/battlesession"
	"github.com/meridian/hive/internal/budget"
	"github.com/meridian/hive/internal/cache"
	"github.com/meridian/hive/pkg/api"
	"github.com/meridian/hive/pkg/config"
	"go.uber.org/zap"
)

// Server is the coordinator's HTTP surface: roster management
// (/wasp/...), battle orchestration and status (/hive/...).
type Server struct {
	server *http.Server

	roster   *Roster
	sessions *battlesession.Manager
	budget   *budget.Manager
	cache    *cache.Manager
	logger   *zap.Logger

	completionGrace time.Duration
}

// NewServer builds the coordinator HTTP server.
func NewServer(port int, roster *Roster, sessions *battlesession.Manager, bmgr *budget.Manager, cm *cache.Manager, logger *zap.Logger, sec config.SecurityConfig, completionGrace time.Duration) *Server {
	mux := http.NewServeMux()

	s := &Server{
		roster:          roster,
		sessions:        sessions,
		budget:          bmgr,
		cache:           cm,
		logger:          logger,
		completionGrace: completionGrace,
	}

	mux.HandleFunc("/wasp/checkin/", s.handleCheckin)
	mux.HandleFunc("/wasp/heartbeat/", s.handleHeartbeat)
	mux.HandleFunc("/wasp/list", s.handleList)
	mux.HandleFunc("/wasp/boop/snoots", s.handleBoopSnoots)
	mux.HandleFunc("/wasp/reportin/", s.handleReportin)

	mux.HandleFunc("/hive/poke", s.handlePoke)
	mux.HandleFunc("/hive/ceasefire", s.handleCeasefire)
	mux.HandleFunc("/hive/torch", s.handleTorch)
	mux.HandleFunc("/hive/status", s.handleStatus)
	mux.HandleFunc("/hive/status/done", s.handleStatusDone)
	mux.HandleFunc("/hive/status/report", s.handleStatusReport)
	mux.HandleFunc("/hive/status/report/", s.handleStatusReportField)
	mux.HandleFunc("/hive/spawn/local/", s.handleSpawnLocal)
	mux.HandleFunc("/health", s.handleHealth)

	var handler http.Handler = auth.HMACMiddleware(sec.AdminAuthSecret)(mux)
	ratePerMin := sec.RateLimit.RequestsPerMinute
	if ratePerMin <= 0 {
		ratePerMin = 300
	}
	burst := sec.RateLimit.Burst
	if burst <= 0 {
		burst = 50
	}
	rl := auth.NewRateLimiter(ratePerMin, time.Minute, burst)
	handler = auth.RateLimitMiddleware(rl)(handler)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves the coordinator's HTTP surface until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("coordinator HTTP server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("coordinator http server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// ===== ROSTER =====

func (s *Server) handleCheckin(w http.ResponseWriter, r *http.Request) {
	port, ok := pathTail(w, r, "/wasp/checkin/")
	if !ok {
		return
	}
	p, err := ParsePort(port)
	if err != nil {
		http.Error(w, "invalid port", http.StatusBadRequest)
		return
	}
	host := PeerHost(r)
	id, err := s.roster.Checkin(r.Context(), host, p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, api.CheckinResponse{ID: id})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	port, ok := pathTail(w, r, "/wasp/heartbeat/")
	if !ok {
		return
	}
	p, err := ParsePort(port)
	if err != nil {
		http.Error(w, "invalid port", http.StatusBadRequest)
		return
	}
	host := PeerHost(r)
	agents, _ := s.roster.List(r.Context())
	id := ""
	for _, a := range agents {
		if a.Host == host && a.Port == p {
			id = a.ID
		}
	}
	if err := s.roster.Heartbeat(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Write([]byte("ok"))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	agents, err := s.roster.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, agents)
}

func (s *Server) handleBoopSnoots(w http.ResponseWriter, r *http.Request) {
	offline := s.roster.BoopAll(r.Context())
	respondJSON(w, map[string]interface{}{"offline": offline})
}

func (s *Server) handleReportin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest, ok := pathTail(w, r, "/wasp/reportin/")
	if !ok {
		return
	}

	failed := strings.HasSuffix(rest, "/failed")
	id := strings.TrimSuffix(rest, "/failed")

	if failed {
		body, _ := io.ReadAll(r.Body)
		finalized, err := s.sessions.IngestFailure(r.Context(), id, string(body))
		s.handleIngestResult(w, r, finalized, err)
		return
	}

	var report api.AgentReportJSON
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	finalized, err := s.sessions.IngestSuccess(r.Context(), id, report.ToBattleResult())
	s.handleIngestResult(w, r, finalized, err)
}

func (s *Server) handleIngestResult(w http.ResponseWriter, r *http.Request, finalized bool, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
		return
	}
	if finalized {
		s.cache.InvalidateReport(r.Context())
	}
	w.Write([]byte("ok"))
}

// ===== BATTLE ORCHESTRATION =====

func (s *Server) handlePoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sessions.IsRunning() {
		http.Error(w, "a battle is already running", http.StatusBadRequest)
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
	params := req.ToBattleParams()

	agents, err := s.roster.OnlineSnapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(agents) == 0 {
		http.Error(w, "no agents online", http.StatusBadRequest)
		return
	}

	if err := s.budget.CheckFireBudget(r.Context(), len(agents), params.Connections); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	agentIDs := make([]string, len(agents))
	for i, a := range agents {
		agentIDs[i] = a.ID
	}

	onTimeout := func() {
		ctx := context.Background()
		s.sessions.FinalizeOnTimeout(ctx)
		s.cache.InvalidateReport(ctx)
	}

	if _, err := s.sessions.Start(r.Context(), params, agentIDs, s.completionGrace, onTimeout); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.cache.InvalidateReport(r.Context())
	go FireAll(context.Background(), agents, params, s.logger)

	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"poked"}`))
}

func (s *Server) handleCeasefire(w http.ResponseWriter, r *http.Request) {
	agents, err := s.roster.OnlineSnapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	go CeasefireAll(context.Background(), agents, s.logger)
	w.Write([]byte("ceasefire acknowledged"))
}

func (s *Server) handleTorch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	agents, err := s.roster.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	DieAll(r.Context(), agents, s.logger)
	if err := s.roster.Torch(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write([]byte("torched"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.IsRunning() {
		w.Write([]byte("idle"))
		return
	}
	report := s.sessions.LiveReport()
	percent, eta := s.sessions.Progress(time.Now())
	respondJSON(w, api.StatusResponse{Running: report.Params, Percent: percent, ETA: eta})
}

func (s *Server) handleStatusDone(w http.ResponseWriter, r *http.Request) {
	if s.sessions.IsRunning() {
		w.Write([]byte("not done"))
		return
	}
	w.Write([]byte("done"))
}

func (s *Server) handleStatusReport(w http.ResponseWriter, r *http.Request) {
	if cached := s.cache.GetReport(r.Context()); cached != nil {
		respondJSON(w, cached)
		return
	}
	report, err := s.sessions.Report()
	if err != nil {
		status := http.StatusBadRequest
		if err == battlesession.ErrNoBattle {
			status = http.StatusNotFound
		} else if err == battlesession.ErrStillRunning {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.cache.SetReport(r.Context(), report)
	respondJSON(w, report)
}

func (s *Server) handleStatusReportField(w http.ResponseWriter, r *http.Request) {
	field, ok := pathTail(w, r, "/hive/status/report/")
	if !ok {
		return
	}
	report, err := s.sessions.Report()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	buf, _ := json.Marshal(report)
	var asMap map[string]json.RawMessage
	json.Unmarshal(buf, &asMap)
	val, ok := asMap[field]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown report field %q", field), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(val)
}

func (s *Server) handleSpawnLocal(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "local agent spawning is not implemented by this coordinator", http.StatusNotImplemented)
}

func pathTail(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	tail := strings.TrimPrefix(r.URL.Path, prefix)
	if tail == "" {
		http.Error(w, "missing path parameter", http.StatusBadRequest)
		return "", false
	}
	return tail, true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
