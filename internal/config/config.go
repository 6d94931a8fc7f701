package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Population strategies selectable via POPULATION_STRATEGY.
const (
	StrategyWorldPop = "worldpop"
	StrategyGeoNames = "geonames"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	APIRateLimit       int
	SessionIdleTimeout time.Duration

	// NASA NeoWs catalog.
	NASAAPIKey             string
	NeoWsBaseURL           string
	NeoWsTimeout           time.Duration
	CatalogWindowDays      int
	CatalogLimit           int
	CatalogRefreshSchedule string

	// Nominatim location classification.
	NominatimBaseURL     string
	NominatimUserAgent   string
	NominatimTimeout     time.Duration
	NominatimMinInterval time.Duration
	LocationCacheSize    int

	PopulationStrategy string

	// WorldPop raster statistics.
	WorldPopBaseURL      string
	WorldPopDataset      string
	WorldPopYear         int
	WorldPopMaxRadiusKm  float64
	WorldPopPollInterval time.Duration
	WorldPopMaxAttempts  int
	WorldPopTimeout      time.Duration

	// GeoNames gazetteer fallback.
	GeoNamesBaseURL     string
	GeoNamesUsername    string
	GeoNamesMaxRadiusKm float64
	GeoNamesTimeout     time.Duration

	FallbackDensity float64
	CasualtyCeiling int64

	// Shared population cache; disabled when ValkeyAddr is empty.
	ValkeyAddr         string
	PopulationCacheTTL time.Duration

	// Report publishing; disabled when no brokers are set.
	KafkaBrokers     []string
	KafkaReportTopic string
}

// CacheEnabled reports whether the shared population cache is configured.
func (c *Config) CacheEnabled() bool { return c.ValkeyAddr != "" }

// PublishEnabled reports whether reports are published to Kafka.
func (c *Config) PublishEnabled() bool { return len(c.KafkaBrokers) > 0 }

// WorldPopPollBudget is the longest the WorldPop source waits on a task after
// creating it.
func (c *Config) WorldPopPollBudget() time.Duration {
	return time.Duration(c.WorldPopMaxAttempts)*c.WorldPopPollInterval + c.WorldPopTimeout
}

// SimulationTimeout bounds one simulation request: location lookup plus the
// selected population lookup, with headroom for the Nominatim rate limiter.
func (c *Config) SimulationTimeout() time.Duration {
	population := c.GeoNamesTimeout
	if c.PopulationStrategy == StrategyWorldPop {
		population = c.WorldPopTimeout + c.WorldPopPollBudget()
	}
	return c.NominatimTimeout + c.NominatimMinInterval + population + 10*time.Second
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		APIRateLimit:       p.intRange("API_RATE_LIMIT", 10, 1, 10_000),
		SessionIdleTimeout: p.duration("SESSION_IDLE_TIMEOUT", "30m"),

		NASAAPIKey:             sharedcfg.EnvOrDefault("NASA_API_KEY", "DEMO_KEY"),
		NeoWsBaseURL:           sharedcfg.EnvOrDefault("NEOWS_BASE_URL", "https://api.nasa.gov/neo/rest/v1"),
		NeoWsTimeout:           p.duration("NEOWS_TIMEOUT", "10s"),
		CatalogWindowDays:      p.intRange("CATALOG_WINDOW_DAYS", 7, 1, 7),
		CatalogLimit:           p.intRange("CATALOG_LIMIT", 50, 1, 1000),
		CatalogRefreshSchedule: sharedcfg.EnvOrDefault("CATALOG_REFRESH_SCHEDULE", "@every 6h"),

		NominatimBaseURL:     sharedcfg.EnvOrDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent:   sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "AsteroidTracker/1.0"),
		NominatimTimeout:     p.duration("NOMINATIM_TIMEOUT", "10s"),
		NominatimMinInterval: p.duration("NOMINATIM_MIN_INTERVAL", "1s"),
		LocationCacheSize:    p.intRange("LOCATION_CACHE_SIZE", 1000, 1, 1_000_000),

		PopulationStrategy: sharedcfg.EnvOrDefault("POPULATION_STRATEGY", StrategyWorldPop),

		WorldPopBaseURL:      sharedcfg.EnvOrDefault("WORLDPOP_BASE_URL", "https://api.worldpop.org/v1"),
		WorldPopDataset:      sharedcfg.EnvOrDefault("WORLDPOP_DATASET", "wpgppop"),
		WorldPopYear:         p.intRange("WORLDPOP_YEAR", 2020, 2000, 2100),
		WorldPopMaxRadiusKm:  p.positiveFloat("WORLDPOP_MAX_RADIUS_KM", 178),
		WorldPopPollInterval: p.duration("WORLDPOP_POLL_INTERVAL", "1s"),
		WorldPopMaxAttempts:  p.intRange("WORLDPOP_MAX_ATTEMPTS", 30, 1, 600),
		WorldPopTimeout:      p.duration("WORLDPOP_TIMEOUT", "15s"),

		GeoNamesBaseURL:     sharedcfg.EnvOrDefault("GEONAMES_BASE_URL", "http://api.geonames.org"),
		GeoNamesUsername:    os.Getenv("GEONAMES_USERNAME"),
		GeoNamesMaxRadiusKm: p.positiveFloat("GEONAMES_MAX_RADIUS_KM", 300),
		GeoNamesTimeout:     p.duration("GEONAMES_TIMEOUT", "10s"),

		FallbackDensity: p.positiveFloat("FALLBACK_DENSITY", 50),
		CasualtyCeiling: int64(p.intRange("CASUALTY_CEILING", 10_000_000, 1, 1_000_000_000)),

		ValkeyAddr:         os.Getenv("VALKEY_ADDR"),
		PopulationCacheTTL: p.duration("POPULATION_CACHE_TTL", "24h"),

		KafkaBrokers:     parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaReportTopic: sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "impact-reports"),
	}
	if p.err != nil {
		return nil, p.err
	}

	switch cfg.PopulationStrategy {
	case StrategyWorldPop:
	case StrategyGeoNames:
		if cfg.GeoNamesUsername == "" {
			return nil, errors.New("GEONAMES_USERNAME is required when POPULATION_STRATEGY is geonames")
		}
	default:
		return nil, fmt.Errorf("invalid POPULATION_STRATEGY %q: must be %s or %s",
			cfg.PopulationStrategy, StrategyWorldPop, StrategyGeoNames)
	}
	if cfg.NominatimUserAgent == "" {
		return nil, errors.New("NOMINATIM_USER_AGENT is required")
	}
	if cfg.PublishEnabled() && cfg.KafkaReportTopic == "" {
		return nil, errors.New("KAFKA_REPORT_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// parseBrokers returns nil for an empty list so publishing stays disabled.
func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	return sharedcfg.ParseBrokers(s)
}

// parser records the first invalid variable so Load can report it by name.
type parser struct {
	err error
}

func (p *parser) fail(key, value string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %q", key, value)
	}
}

func (p *parser) duration(key, def string) time.Duration {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		p.fail(key, s)
		return 0
	}
	return d
}

func (p *parser) intRange(key string, def, lo, hi int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		p.fail(key, s)
		return def
	}
	return n
}

func (p *parser) positiveFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		p.fail(key, s)
		return def
	}
	return f
}
