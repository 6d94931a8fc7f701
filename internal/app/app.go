// Package app wires configuration into the simulation components shared by
// the service and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/adapter/geonames"
	kafkaadapter "github.com/couchcryptid/asteroid-impact-service/internal/adapter/kafka"
	"github.com/couchcryptid/asteroid-impact-service/internal/adapter/nominatim"
	valkeyadapter "github.com/couchcryptid/asteroid-impact-service/internal/adapter/valkey"
	"github.com/couchcryptid/asteroid-impact-service/internal/adapter/worldpop"
	"github.com/couchcryptid/asteroid-impact-service/internal/config"
	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/impact"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Components is a fully wired simulation engine plus the resources it owns.
type Components struct {
	Engine     *impact.Engine
	Population domain.PopulationSource

	closers []func() error
}

// Build creates the classifier, population source, optional cache and report
// publisher, and the engine, as selected by cfg.
func Build(ctx context.Context, cfg *config.Config, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) (*Components, error) {
	c := &Components{}

	client := nominatim.NewClient(cfg.NominatimBaseURL, cfg.NominatimUserAgent,
		cfg.NominatimTimeout, cfg.NominatimMinInterval, metrics, logger)
	classifier, err := nominatim.NewCachedClassifier(client, cfg.LocationCacheSize, metrics)
	if err != nil {
		return nil, err
	}

	population, err := newPopulationSource(cfg, clock, metrics, logger)
	if err != nil {
		return nil, err
	}

	if cfg.CacheEnabled() {
		store, err := valkeyadapter.NewStore(cfg.ValkeyAddr)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			logger.Warn("valkey unreachable, population cache will fall through", "addr", cfg.ValkeyAddr, "error", err)
		}
		c.closers = append(c.closers, func() error { store.Close(); return nil })
		population = valkeyadapter.NewCachedPopulationSource(population, store, cfg.PopulationCacheTTL, metrics, logger)
		logger.Info("population cache enabled", "addr", cfg.ValkeyAddr, "ttl", cfg.PopulationCacheTTL)
	}
	c.Population = population

	estimator := domain.NewCasualtyEstimator(population, logger)
	estimator.FallbackDensity = cfg.FallbackDensity
	estimator.Ceiling = cfg.CasualtyCeiling

	opts := []impact.Option{impact.WithClock(clock)}
	if cfg.PublishEnabled() {
		writer := kafkaadapter.NewWriter(cfg, metrics, logger)
		c.closers = append(c.closers, writer.Close)
		opts = append(opts, impact.WithReportSink(writer))
		logger.Info("report publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaReportTopic)
	}

	c.Engine = impact.NewEngine(classifier, estimator, metrics, logger, opts...)
	return c, nil
}

func newPopulationSource(cfg *config.Config, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) (domain.PopulationSource, error) {
	switch cfg.PopulationStrategy {
	case config.StrategyWorldPop:
		return worldpop.NewSource(worldpop.Options{
			BaseURL:      cfg.WorldPopBaseURL,
			Dataset:      cfg.WorldPopDataset,
			Year:         cfg.WorldPopYear,
			MaxRadiusKm:  cfg.WorldPopMaxRadiusKm,
			PollInterval: cfg.WorldPopPollInterval,
			MaxAttempts:  cfg.WorldPopMaxAttempts,
			Timeout:      cfg.WorldPopTimeout,
		}, clock, metrics, logger), nil
	case config.StrategyGeoNames:
		return geonames.NewSource(cfg.GeoNamesBaseURL, cfg.GeoNamesUsername, cfg.GeoNamesMaxRadiusKm,
			cfg.FallbackDensity, cfg.GeoNamesTimeout, metrics, logger), nil
	default:
		return nil, fmt.Errorf("unknown population strategy %q", cfg.PopulationStrategy)
	}
}

// Close releases the cache client and report publisher.
func (c *Components) Close() error {
	var first error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
