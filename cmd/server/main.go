// Package main provides the entry point for the table gateway service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/devrev/tablegateway/internal/airtable"
	"github.com/devrev/tablegateway/internal/config"
	"github.com/devrev/tablegateway/internal/metrics"
	"github.com/devrev/tablegateway/internal/model"
	"github.com/devrev/tablegateway/internal/redact"
	"github.com/devrev/tablegateway/internal/server"
	"github.com/devrev/tablegateway/internal/service"
	"github.com/devrev/tablegateway/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting table gateway",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("api_prefix", cfg.Server.APIPrefix),
		zap.String("airtable_base_url", cfg.Airtable.BaseURL),
		zap.String("default_table", model.NewTableRef(cfg.Airtable.BaseID, cfg.Airtable.TableName).String()),
		zap.String("api_key", redact.Secret(cfg.Airtable.APIKey)),
	)
	if cfg.Airtable.APIKey == "" {
		logger.Warn("AIRTABLE_API_KEY is not set; table requests will fail until it is configured")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	client, err := airtable.NewClient(cfg.Airtable, logger.Named("airtable"), airtable.WithRecorder(m))
	if err != nil {
		logger.Fatal("failed to create airtable client", zap.Error(err))
	}

	validator := validation.NewValidator(validation.WithRequiredCreateFields(cfg.Validation.RequiredCreateFields...))
	svc := service.NewTableService(
		client,
		validator,
		model.NewTableRef(cfg.Airtable.BaseID, cfg.Airtable.TableName),
		logger,
	)

	httpServer := server.NewServer(cfg, svc, m, logger)
	httpServer.SetupRoutes()

	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gctx)
	})

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("metrics server started",
				zap.Int("port", cfg.Metrics.Port),
				zap.String("path", cfg.Metrics.Path),
			)
			return metricsServer.Start()
		})
	}

	// Shut everything down on a signal or on the first listener failure.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		m.SetHealthStatus(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", zap.Error(err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown metrics server", zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("table gateway shutdown complete")
}

// initLogger initializes the zap logger.
func initLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
