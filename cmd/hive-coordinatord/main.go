package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian/hive/internal/battlesession"
	"github.com/meridian/hive/internal/budget"
	"github.com/meridian/hive/internal/cache"
	"github.com/meridian/hive/internal/coordinator"
	"github.com/meridian/hive/internal/messaging"
	"github.com/meridian/hive/internal/notifications"
	"github.com/meridian/hive/internal/observability"
	"github.com/meridian/hive/internal/storage"
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

	logger.Info("starting hive coordinator",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", Commit))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("connecting to postgresql",
		zap.String("host", cfg.Database.PostgreSQL.Host),
		zap.Int("port", cfg.Database.PostgreSQL.Port))
	db, err := storage.NewPostgresClient(
		ctx,
		cfg.Database.PostgreSQL.GetConnectionString(),
		cfg.Database.PostgreSQL.MaxConns,
		cfg.Database.PostgreSQL.MinConns,
	)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	var mqClient *messaging.Client
	logger.Info("connecting to rabbitmq",
		zap.String("host", cfg.Docker.RabbitMQ.Host),
		zap.Int("port", cfg.Docker.RabbitMQ.Port))
	mqClient, err = messaging.NewClient(messaging.Config{
		Host:              cfg.Docker.RabbitMQ.Host,
		Port:              cfg.Docker.RabbitMQ.Port,
		User:              cfg.Docker.RabbitMQ.User,
		Password:          cfg.Docker.RabbitMQ.Password,
		Exchange:          cfg.Docker.RabbitMQ.Exchange,
		PublisherConfirms: cfg.Docker.RabbitMQ.PublisherConfirms,
	}, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable, battle lifecycle events disabled", zap.Error(err))
		mqClient = nil
	} else {
		defer mqClient.Close()
		if err := mqClient.DeclareQueue("hive.coordinator.events", []string{"#"}); err != nil {
			logger.Error("failed to declare queue", zap.Error(err))
		}
	}

	var cacheCfg *cache.Config
	if cfg.Docker.Redis.Enabled {
		cacheCfg = &cache.Config{
			Host:     cfg.Docker.Redis.Host,
			Port:     cfg.Docker.Redis.Port,
			Password: cfg.Docker.Redis.Password,
			DB:       cfg.Docker.Redis.DB,
		}
	}
	cacheMgr, err := cache.NewManager(cacheCfg, logger)
	if err != nil {
		return fmt.Errorf("init cache manager: %w", err)
	}
	defer cacheMgr.Close()

	var notifier *notifications.Client
	if cfg.Docker.Telegram.Token != "" && cfg.Docker.Telegram.ChatID != "" {
		notifier = notifications.NewClient(notifications.Config{
			Token:  cfg.Docker.Telegram.Token,
			ChatID: cfg.Docker.Telegram.ChatID,
		}, logger)
		hostname, _ := os.Hostname()
		notifier.CoordinatorStarted(Version, hostname)
		logger.Info("telegram notifications enabled")
	} else {
		logger.Warn("telegram notifications disabled (no token/chat_id configured)")
	}

	budgetMgr := budget.NewManager(db, notifier, logger)
	roster := coordinator.NewRoster(db, cacheMgr, mqClient, logger)
	sessions := battlesession.NewManager(db, mqClient, notifier, logger)

	go roster.RunSweepLoop(ctx, time.Duration(cfg.Coordinator.SweepInterval)*time.Second)

	var outboxPublisher *messaging.OutboxPublisher
	if mqClient != nil {
		outboxPublisher = messaging.NewOutboxPublisher(
			db, mqClient,
			time.Duration(cfg.Coordinator.OutboxPollInterval)*time.Second,
			50, logger,
		)
		go outboxPublisher.Start(ctx)
	}

	var metricsServer *observability.MetricsServer
	if cfg.Docker.Prometheus.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Docker.Prometheus.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	httpServer := coordinator.NewServer(
		cfg.Coordinator.Port, roster, sessions, budgetMgr, cacheMgr, logger,
		cfg.Security, time.Duration(cfg.Coordinator.CompletionGrace)*time.Second,
	)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	grpcServer := coordinator.NewGRPCServer(cfg.Coordinator.GRPCPort, roster, sessions, logger)
	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	logger.Info("hive coordinator started successfully",
		zap.Int("http_port", cfg.Coordinator.Port),
		zap.Int("grpc_port", cfg.Coordinator.GRPCPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	if notifier != nil {
		hostname, _ := os.Hostname()
		notifier.CoordinatorStopped(hostname)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Coordinator.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	logger.Info("shutting down coordinator...")
	grpcServer.Stop()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping http server", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error("error stopping metrics server", zap.Error(err))
		}
	}
	if outboxPublisher != nil {
		outboxPublisher.Stop()
	}

	logger.Info("coordinator shutdown complete")
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
