// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-badge-engine/internal/bootstrap"
	"github.com/AccelByte/extend-badge-engine/internal/config"
	"github.com/AccelByte/extend-badge-engine/internal/server"
	"github.com/AccelByte/extend-badge-engine/pkg/handler"
	"github.com/AccelByte/extend-badge-engine/pkg/trigger"
)

// App holds all application dependencies and manages the application lifecycle.
type App struct {
	cfg               *config.Config
	storage           *bootstrap.Storage
	dispatcher        *trigger.Dispatcher
	httpServer        *server.HTTPServer
	grpcServer        *server.GRPCServer
	metricsServer     *server.MetricsServer
	shutdownTelemetry func(context.Context) error
}

// New creates and initializes a new application instance.
//
// ============================================================
// DEVELOPER: Application initialization order
// ============================================================
// Components are initialized in dependency order:
// 1. Storage (SQL / MongoDB / memory, optional Redis badge sets)
// 2. Rule types and evaluator
// 3. Badge catalog (seed file + snapshot cache)
// 4. Session commit trigger and its dispatcher
// 5. Servers (HTTP, gRPC health, metrics)
// 6. Telemetry (OpenTelemetry tracing)
// ============================================================
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}

	// ============================================================
	// Step 1: Initialize storage
	// ============================================================
	storage, err := bootstrap.InitStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	app.storage = storage

	// ============================================================
	// Step 2: Register rule types
	// ============================================================
	evaluator, registry, err := bootstrap.InitRuleEngine(cfg)
	if err != nil {
		app.closeStorage(ctx)
		return nil, fmt.Errorf("failed to init rule engine: %w", err)
	}

	// ============================================================
	// Step 3: Seed and cache the badge catalog
	// ============================================================
	catalog, err := bootstrap.InitCatalog(ctx, cfg, storage.Badges, registry)
	if err != nil {
		app.closeStorage(ctx)
		return nil, fmt.Errorf("failed to init badge catalog: %w", err)
	}

	// ============================================================
	// Step 4: Wire the trigger off the request path
	// ============================================================
	metrics := trigger.NewMetrics()
	dispatcher, recorder := bootstrap.InitTrigger(cfg, storage, catalog, evaluator, metrics)
	app.dispatcher = dispatcher

	// ============================================================
	// Step 5: Setup servers
	// ============================================================
	api := handler.New(handler.Dependencies{
		Users:    storage.Users,
		Badges:   storage.Badges,
		Holdings: storage.Holdings,
		Recorder: recorder,
		Registry: registry,
		Cache:    catalog,
		Health:   storage.Health,
	})

	var limiter *handler.IPRateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = handler.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	app.httpServer = server.NewHTTPServer(cfg.HTTPPort, cfg.Environment, api, limiter)
	if err := app.httpServer.Setup(); err != nil {
		app.closeStorage(ctx)
		return nil, fmt.Errorf("failed to setup HTTP server: %w", err)
	}

	app.grpcServer = server.NewGRPCServer(cfg.GRPCPort, storage.Health)
	if err := app.grpcServer.Setup(); err != nil {
		app.closeStorage(ctx)
		return nil, fmt.Errorf("failed to setup gRPC server: %w", err)
	}

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics")
	if err := app.metricsServer.Setup(metrics.Collectors()...); err != nil {
		app.closeStorage(ctx)
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	// ============================================================
	// Step 6: Setup telemetry
	// ============================================================
	if cfg.OtelEnabled {
		shutdownTelemetry, err := server.SetupTelemetry(ctx, cfg.ServiceName, cfg.Environment, cfg.ZipkinEndpoint, 0)
		if err != nil {
			app.closeStorage(ctx)
			return nil, fmt.Errorf("failed to setup telemetry: %w", err)
		}
		app.shutdownTelemetry = shutdownTelemetry
	}

	logrus.Info("application initialized successfully")

	return app, nil
}

func (a *App) closeStorage(ctx context.Context) {
	if err := a.storage.Close(ctx); err != nil {
		logrus.Errorf("storage close error: %v", err)
	}
}
