package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/asteroid-impact-service/internal/adapter/http"
	"github.com/couchcryptid/asteroid-impact-service/internal/adapter/neows"
	"github.com/couchcryptid/asteroid-impact-service/internal/app"
	"github.com/couchcryptid/asteroid-impact-service/internal/catalog"
	"github.com/couchcryptid/asteroid-impact-service/internal/config"
	"github.com/couchcryptid/asteroid-impact-service/internal/impact"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, cfg, clock, metrics, logger)
	if err != nil {
		logger.Error("failed to build simulation engine", "error", err)
		os.Exit(1)
	}
	logger.Info("population source selected",
		"provider", components.Population.Name(), "max_radius_km", components.Population.MaxRadiusKm())

	feed := neows.NewClient(cfg.NeoWsBaseURL, cfg.NASAAPIKey, cfg.CatalogLimit, cfg.NeoWsTimeout, logger)
	store := catalog.New(feed, cfg.CatalogWindowDays, clock, metrics, logger)

	sessions := impact.NewSessions(components.Engine, clock)
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 5m", func() {
		if n := sessions.Evict(cfg.SessionIdleTimeout); n > 0 {
			logger.Debug("evicted idle sessions", "count", n)
		}
	}); err != nil {
		logger.Error("failed to schedule session eviction", "error", err)
		os.Exit(1)
	}
	sweeper.Start()

	api := httpadapter.NewAPI(store, sessions, components.Engine, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, store, api, cfg.APIRateLimit, cfg.SimulationTimeout(), logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Load the catalog and keep it fresh.
	go func() {
		if err := store.Run(ctx, cfg.CatalogRefreshSchedule); err != nil {
			logger.Error("catalog error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	<-sweeper.Stop().Done()
	if err := components.Close(); err != nil {
		logger.Error("component close error", "error", err)
	}

	logger.Info("shutdown complete")
}
