package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	geohash "github.com/TomiHiltunen/geohash-golang"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
)

// geohashPrecision groups impact points into cells of roughly 150 m.
const geohashPrecision = 7

// ByteStore is the subset of Store used by the population cache.
type ByteStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedPopulationSource wraps a PopulationSource with a shared cache so
// repeated simulations near the same point skip the slow provider round trip.
// Cache failures are logged and bypassed.
type CachedPopulationSource struct {
	inner   domain.PopulationSource
	store   ByteStore
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedPopulationSource creates a cache decorator around a population source.
func NewCachedPopulationSource(inner domain.PopulationSource, store ByteStore, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *CachedPopulationSource {
	return &CachedPopulationSource{
		inner:   inner,
		store:   store,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *CachedPopulationSource) Name() string { return c.inner.Name() }

func (c *CachedPopulationSource) MaxRadiusKm() float64 { return c.inner.MaxRadiusKm() }

func (c *CachedPopulationSource) Population(ctx context.Context, q domain.PopulationQuery) (domain.PopulationEstimate, error) {
	key := c.key(q)

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var est domain.PopulationEstimate
		if jerr := json.Unmarshal(data, &est); jerr == nil {
			c.metrics.PopulationCache.WithLabelValues("hit").Inc()
			return est, nil
		}
		c.logger.Warn("discarding unreadable population cache entry", "key", key)
		c.metrics.PopulationCache.WithLabelValues("error").Inc()
	case errors.Is(err, ErrCacheMiss):
		c.metrics.PopulationCache.WithLabelValues("miss").Inc()
	default:
		c.logger.Warn("population cache read failed", "key", key, "error", err)
		c.metrics.PopulationCache.WithLabelValues("error").Inc()
	}

	est, err := c.inner.Population(ctx, q)
	if err != nil {
		return est, err
	}

	if data, err := json.Marshal(est); err == nil {
		if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("population cache write failed", "key", key, "error", err)
		}
	}
	return est, nil
}

// key identifies a query by provider, geohash cell, and whole-km radius.
func (c *CachedPopulationSource) key(q domain.PopulationQuery) string {
	gh := geohash.Encode(q.Lat, q.Lon)
	if len(gh) > geohashPrecision {
		gh = gh[:geohashPrecision]
	}
	return fmt.Sprintf("population:%s:%s:%.0f", strings.ToLower(c.inner.Name()), gh, q.RadiusKm)
}
