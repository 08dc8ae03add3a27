package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian/hive/internal/agent"
	"github.com/meridian/hive/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := setupLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting hive agent",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", Commit),
		zap.Int("port", cfg.Agent.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := agent.NewState()
	link := agent.NewCoordinatorLink(cfg.Agent.HiveURL, cfg.Agent.WwbToken, cfg.Agent.Port, logger)

	if link.Configured() {
		hiveID, err := link.Checkin(ctx)
		if err != nil {
			logger.Warn("checkin with coordinator failed, continuing standalone", zap.Error(err))
		} else {
			state.SetHiveID(hiveID)
			logger.Info("checked in with coordinator", zap.String("hive_id", hiveID))
			go link.RunHeartbeatLoop(ctx, time.Duration(cfg.Agent.HeartbeatInterval)*time.Second)
		}
	} else {
		logger.Info("no hive_url configured, running standalone")
	}

	server := agent.NewServer(cfg.Agent.Port, cfg.Agent.WwbToken, cfg.Security.RateLimit, state, link, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("agent http server error", zap.Error(err))
		}
	}()

	logger.Info("hive agent started successfully", zap.Int("port", cfg.Agent.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-server.DieRequested():
		logger.Info("DELETE /die requested process exit")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping agent server", zap.Error(err))
	}

	logger.Info("agent shutdown complete")
	return nil
}

func setupLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
