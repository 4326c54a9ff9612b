package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/worldwatch/intel-backend/internal/api/rest"
	"github.com/worldwatch/intel-backend/internal/api/websocket"
	"github.com/worldwatch/intel-backend/internal/domain/event"
	"github.com/worldwatch/intel-backend/internal/infrastructure/config"
	"github.com/worldwatch/intel-backend/internal/infrastructure/database"
	"github.com/worldwatch/intel-backend/internal/infrastructure/keystore"
	"github.com/worldwatch/intel-backend/internal/infrastructure/metrics"
	"github.com/worldwatch/intel-backend/internal/infrastructure/satellite"
	"github.com/worldwatch/intel-backend/internal/infrastructure/telemetry"
	"github.com/worldwatch/intel-backend/internal/service"
	"github.com/worldwatch/intel-backend/internal/service/anomaly"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting event intelligence backend",
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build infrastructure logger: %w", err)
	}
	defer zapLogger.Sync()

	store, err := keystore.NewRedisStore(&cfg.Redis, zapLogger)
	if err != nil {
		return fmt.Errorf("failed to connect keystore: %w", err)
	}
	defer store.Close()

	deps := service.Dependencies{
		Store:  store,
		Clock:  event.RealClock{},
		Logger: logger,
		Anomaly: anomaly.Config{
			AnomalyThreshold:          cfg.Anomaly.Threshold,
			ConvergenceRadiusKm:       cfg.Anomaly.ConvergenceRadiusKm,
			MinEventsForConvergence:   cfg.Anomaly.MinEventsForConvergence,
			ThreatEscalationThreshold: cfg.Anomaly.ThreatEscalationThreshold,
			MinSamplesForBaseline:     cfg.Anomaly.MinSamplesForBaseline,
			BaselineFlushEvery:        cfg.Anomaly.BaselineFlushEvery,
		},
		Metrics: metrics.NewCollector(),
	}

	if client := satellite.NewClient(cfg.Satellite, logger); client != nil {
		deps.Satellite = client
		logger.Info("satellite context provider enabled", "base_url", cfg.Satellite.BaseURL)
	}

	var checkers []rest.HealthChecker
	checkers = append(checkers, keystoreChecker{store: store})

	// The archive is optional: no database URL means no archiving.
	if cfg.Database.URL != "" {
		pool, err := database.NewPool(ctx, &cfg.Database, zapLogger)
		if err != nil {
			return fmt.Errorf("failed to connect archive database: %w", err)
		}
		defer pool.Close()

		archive := database.NewArchiveRepository(pool, zapLogger)
		if err := archive.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare archive schema: %w", err)
		}
		deps.Archiver = archive
		checkers = append(checkers, archiveChecker{archive: archive})
		logger.Info("enriched-event archive enabled")
	}

	services := service.New(ctx, deps)

	hub := websocket.NewEventHub(zapLogger)
	go hub.Run(ctx)

	handler := rest.NewHandler(services, hub, logger)
	server := rest.NewServer(cfg.Server, handler, logger, checkers, map[string]http.Handler{
		"GET /ws/events": websocket.NewHandler(hub, zapLogger),
	})

	return server.Start(ctx)
}

type keystoreChecker struct {
	store keystore.Store
}

func (c keystoreChecker) Name() string { return "keystore" }

func (c keystoreChecker) Healthy(ctx context.Context) error {
	_, _, err := c.store.Get(ctx, "health:probe")
	return err
}

type archiveChecker struct {
	archive *database.ArchiveRepository
}

func (c archiveChecker) Name() string { return "archive" }

func (c archiveChecker) Healthy(ctx context.Context) error {
	_, err := c.archive.CountArchived(ctx)
	return err
}
