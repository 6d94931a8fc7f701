package nominatim

import (
	"context"
	"fmt"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedClassifier wraps a LocationClassifier with an in-memory LRU cache
// keyed on coordinates rounded to four decimals (about 11 m).
type CachedClassifier struct {
	inner   domain.LocationClassifier
	cache   *lru.Cache[string, domain.LocationInfo]
	metrics *observability.Metrics
}

// NewCachedClassifier creates a cache decorator around a classifier holding
// at most maxEntries results.
func NewCachedClassifier(inner domain.LocationClassifier, maxEntries int, metrics *observability.Metrics) (*CachedClassifier, error) {
	cache, err := lru.New[string, domain.LocationInfo](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("location cache: %w", err)
	}
	return &CachedClassifier{
		inner:   inner,
		cache:   cache,
		metrics: metrics,
	}, nil
}

func (c *CachedClassifier) Classify(ctx context.Context, lat, lon float64) (domain.LocationInfo, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if info, ok := c.cache.Get(key); ok {
		c.metrics.LocationCache.WithLabelValues("hit").Inc()
		return info, nil
	}
	c.metrics.LocationCache.WithLabelValues("miss").Inc()

	info, err := c.inner.Classify(ctx, lat, lon)
	if err != nil {
		return info, err
	}
	// Unknown results are retried on the next lookup.
	if info.Type != domain.LocationUnknown {
		c.cache.Add(key, info)
	}
	return info, nil
}
