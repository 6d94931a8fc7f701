// Command simulate runs a single impact simulation and prints the report as
// JSON. The asteroid is either described directly or fetched from the NeoWs
// feed by ID.
//
// Usage:
//
//	go run ./cmd/simulate -diameter 0.1 -velocity 20 -lat 30.2672 -lon -97.7431
//	go run ./cmd/simulate -asteroid 3542519 -lat 0 -lon -30
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/asteroid-impact-service/internal/adapter/neows"
	"github.com/couchcryptid/asteroid-impact-service/internal/app"
	"github.com/couchcryptid/asteroid-impact-service/internal/catalog"
	"github.com/couchcryptid/asteroid-impact-service/internal/config"
	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	asteroidID := flag.String("asteroid", "", "NeoWs asteroid ID to simulate (fetched from the current feed window)")
	diameter := flag.Float64("diameter", 0, "asteroid diameter in km (when -asteroid is not set)")
	velocity := flag.Float64("velocity", 0, "impact velocity in km/s (when -asteroid is not set)")
	lat := flag.Float64("lat", 0, "impact latitude")
	lon := flag.Float64("lon", 0, "impact longitude")
	progress := flag.Bool("progress", true, "print progress messages to stderr")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	asteroid := domain.Asteroid{
		ID:       "custom",
		Name:     fmt.Sprintf("Custom %.3g km", *diameter),
		Diameter: domain.EstimatedDiameter{MinKm: *diameter, MaxKm: *diameter},
		Approach: domain.CloseApproach{VelocityKmS: *velocity},
	}
	if *asteroidID != "" {
		feed := neows.NewClient(cfg.NeoWsBaseURL, cfg.NASAAPIKey, 0, cfg.NeoWsTimeout, logger)
		store := catalog.New(feed, cfg.CatalogWindowDays, clock, metrics, logger)
		if err := store.Refresh(ctx); err != nil {
			return err
		}
		if asteroid, err = store.Get(*asteroidID); err != nil {
			return err
		}
	}

	components, err := app.Build(ctx, cfg, clock, metrics, logger)
	if err != nil {
		return err
	}
	defer components.Close() //nolint:errcheck // best-effort on exit

	if *progress {
		ctx = domain.WithProgress(ctx, func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		})
	}

	report, err := components.Engine.SimulateImpactAt(ctx, asteroid, *lat, *lon)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
