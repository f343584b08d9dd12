// Package main is the entry point for the flash-loan arbitrage scanner.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage"
	arbitrageDI "github.com/fd1az/flashloan-arbitrage/business/arbitrage/di"
	"github.com/fd1az/flashloan-arbitrage/business/blockchain"
	blockchainDI "github.com/fd1az/flashloan-arbitrage/business/blockchain/di"
	"github.com/fd1az/flashloan-arbitrage/business/pricing"
	pricingDI "github.com/fd1az/flashloan-arbitrage/business/pricing/di"
	"github.com/fd1az/flashloan-arbitrage/internal/apm"
	"github.com/fd1az/flashloan-arbitrage/internal/config"
	"github.com/fd1az/flashloan-arbitrage/internal/health"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
	"github.com/fd1az/flashloan-arbitrage/internal/metrics"
	"github.com/fd1az/flashloan-arbitrage/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("flashloan-scanner %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stderr, logLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting flash-loan arbitrage scanner",
		"version", version,
		"environment", cfg.App.Environment,
		"execution_enabled", cfg.Execution.Enabled,
	)

	errCh := make(chan error, 1)

	var (
		traceProvider apm.TraceProvider
		meterProvider *metrics.Provider
		metricsServer *metrics.Server
	)
	if cfg.Telemetry.Enabled {
		traceProvider, err = apm.NewTraceProvider(log, apm.Config{
			Provider:    apm.Provider(cfg.Telemetry.TraceProvider),
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Headers:     cfg.Telemetry.OTLPHeaders,
		})
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		log.Info(ctx, "tracing initialized", "provider", cfg.Telemetry.TraceProvider)

		meterProvider, err = metrics.NewProvider(ctx, metrics.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPHeaders:  apm.ParseHeaders(cfg.Telemetry.OTLPHeaders),
			OTLPInsecure: true,
		})
		if err != nil {
			_ = traceProvider.Stop()
			return fmt.Errorf("failed to init metrics: %w", err)
		}
		metricsServer = metrics.NewServer(meterProvider, cfg.Telemetry.PrometheusPort)
		metricsServer.Start(errCh)
		log.Info(ctx, "prometheus metrics server started", "port", cfg.Telemetry.PrometheusPort)
	}

	mono, err := monolith.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	modules := []monolith.Module{
		&blockchain.Module{}, // gas and congestion readings
		&pricing.Module{},    // quote feeds
		&arbitrage.Module{},  // detection through execution
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	healthServer := health.NewServer(cfg.App.HealthPort, version, log)
	registerChecks(healthServer, mono)
	healthServer.Start()
	log.Info(ctx, "health server started", "port", cfg.App.HealthPort)

	if err := mono.StartModules(ctx, modules...); err != nil {
		mono.ShutdownModules(modules...)
		return fmt.Errorf("failed to start modules: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutdown signal received")
	case runErr = <-errCh:
		log.Error(context.Background(), "background server failed", "error", runErr)
	}

	mono.ShutdownModules(modules...)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := healthServer.Stop(stopCtx); err != nil {
		log.Warn(stopCtx, "health server stop", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(stopCtx); err != nil {
			log.Warn(stopCtx, "metrics server stop", "error", err)
		}
	}
	if meterProvider != nil {
		if err := meterProvider.Shutdown(stopCtx); err != nil {
			log.Warn(stopCtx, "meter provider shutdown", "error", err)
		}
	}
	if traceProvider != nil {
		if err := traceProvider.Stop(); err != nil {
			log.Warn(stopCtx, "trace provider stop", "error", err)
		}
	}

	log.Info(stopCtx, "scanner stopped")
	return runErr
}

func registerChecks(s *health.Server, mono monolith.Monolith) {
	services := mono.Services()

	s.RegisterCheck("price_feeds", true, pricingDI.GetCollector(services).Healthy)
	s.RegisterCheck("blockchain", true, blockchainDI.GetBlockchainService(services).Healthy)

	if db := mono.Postgres(); db != nil {
		s.RegisterCheck("postgres", false, db.Ping)
	}
	if pub := arbitrageDI.GetRedisPublisher(services); pub != nil {
		s.RegisterCheck("redis", false, pub.Ping)
	}
}

func logLevel(level string) logger.Level {
	switch level {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
