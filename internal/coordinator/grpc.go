package coordinator

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/meridian/hive/internal/battlesession"
	"github.com/meridian/hive/pkg/types"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCServer exposes a minimal administrative surface (poke/status/torch)
// over gRPC alongside the HTTP surface, for operators who prefer a typed
// RPC client over hivectl's HTTP calls.
//
// No .proto file ships with this repo — generating and vendoring stubs
// would require running protoc, which this build pipeline does not do.
// The request/response types below are hand-written structs in the shape
// generated code would produce, and GRPCServer.server never registers a
// service descriptor, exactly as this codebase's gRPC scaffolding has
// always done pending real codegen.
type GRPCServer struct {
	server   *grpc.Server
	roster   *Roster
	sessions *battlesession.Manager
	logger   *zap.Logger
	port     int
}

// NewGRPCServer creates a gRPC admin server.
func NewGRPCServer(port int, roster *Roster, sessions *battlesession.Manager, logger *zap.Logger) *GRPCServer {
	return &GRPCServer{
		server:   grpc.NewServer(),
		roster:   roster,
		sessions: sessions,
		logger:   logger,
		port:     port,
	}
}

// Start begins serving gRPC requests.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	// Register service
	// pb.RegisterHiveAdminServer(s.server, s)

	s.logger.Info("gRPC admin server starting", zap.Int("port", s.port))
	if err := s.server.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *GRPCServer) Stop() {
	s.logger.Info("stopping gRPC admin server")
	s.server.GracefulStop()
}

// Poke starts a battle against the current online roster.
func (s *GRPCServer) Poke(ctx context.Context, req *PokeRequest) (*PokeResponse, error) {
	agents, err := s.roster.OnlineSnapshot(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	if len(agents) == 0 {
		return nil, status.Error(codes.FailedPrecondition, "no agents online")
	}

	params := types.BattleParams{
		TargetURL:    req.Target,
		Method:       req.Method,
		Threads:      uint(req.Threads),
		Connections:  uint(req.Connections),
		DurationSecs: uint(req.DurationSecs),
		TimeoutSecs:  uint(req.TimeoutSecs),
	}

	agentIDs := make([]string, len(agents))
	for i, a := range agents {
		agentIDs[i] = a.ID
	}

	if _, err := s.sessions.Start(ctx, params, agentIDs, 3*time.Second, func() {
		s.sessions.FinalizeOnTimeout(context.Background())
	}); err != nil {
		return &PokeResponse{Error: err.Error()}, status.Error(codes.FailedPrecondition, err.Error())
	}

	go FireAll(context.Background(), agents, params, s.logger)

	return &PokeResponse{Started: true, AgentCount: int32(len(agents))}, nil
}

// Status returns the current battle's progress, or idle if none is running.
func (s *GRPCServer) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	if !s.sessions.IsRunning() {
		return &StatusResponse{Idle: true}, nil
	}
	percent, eta := s.sessions.Progress(time.Now())
	return &StatusResponse{Percent: percent, ETA: eta}, nil
}

// Torch clears the roster and instructs every agent to exit.
func (s *GRPCServer) Torch(ctx context.Context, req *TorchRequest) (*TorchResponse, error) {
	agents, err := s.roster.List(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	DieAll(ctx, agents, s.logger)
	if err := s.roster.Torch(ctx); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &TorchResponse{AgentsTorched: int32(len(agents))}, nil
}

// Placeholder types (would be generated from proto).
type (
	PokeRequest struct {
		Target                                         string
		Method                                          string
		Threads, Connections, DurationSecs, TimeoutSecs int32
	}
	PokeResponse struct {
		Started    bool
		AgentCount int32
		Error      string
	}
	StatusRequest  struct{}
	StatusResponse struct {
		Idle    bool
		Percent string
		ETA     string
	}
	TorchRequest  struct{}
	TorchResponse struct {
		AgentsTorched int32
	}
)
