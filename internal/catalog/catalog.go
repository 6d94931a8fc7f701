// Package catalog keeps the current set of near-Earth objects in memory and
// refreshes it on a schedule.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// ErrNotFound is returned when an asteroid ID is not in the catalog.
var ErrNotFound = errors.New("asteroid not found")

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// Fetcher retrieves asteroids with a close approach inside [start, end].
type Fetcher interface {
	Fetch(ctx context.Context, start, end time.Time) ([]domain.Asteroid, error)
}

// Store is the in-memory asteroid catalog. A failed refresh keeps the
// previously loaded asteroids.
type Store struct {
	fetcher    Fetcher
	windowDays int
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu        sync.RWMutex
	asteroids []domain.Asteroid
	byID      map[string]domain.Asteroid
	loadedAt  time.Time

	ready atomic.Bool
}

// New creates an empty catalog that fetches a windowDays-long window
// starting today.
func New(fetcher Fetcher, windowDays int, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Store {
	return &Store{
		fetcher:    fetcher,
		windowDays: windowDays,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
		byID:       map[string]domain.Asteroid{},
	}
}

// CheckReadiness returns nil once the catalog has loaded at least once.
func (s *Store) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("asteroid catalog has not been loaded yet")
	}
	return nil
}

// Refresh fetches the current window and replaces the catalog contents.
func (s *Store) Refresh(ctx context.Context) error {
	start := s.clock.Now().UTC()
	end := start.AddDate(0, 0, s.windowDays)

	asteroids, err := s.fetcher.Fetch(ctx, start, end)
	if err != nil {
		s.metrics.CatalogRefreshFailures.Inc()
		return fmt.Errorf("refresh catalog: %w", err)
	}

	byID := make(map[string]domain.Asteroid, len(asteroids))
	for _, a := range asteroids {
		byID[a.ID] = a
	}

	s.mu.Lock()
	s.asteroids = asteroids
	s.byID = byID
	s.loadedAt = s.clock.Now()
	s.mu.Unlock()

	s.ready.Store(true)
	s.metrics.CatalogSize.Set(float64(len(asteroids)))
	s.logger.Info("catalog refreshed", "asteroids", len(asteroids),
		"start_date", start.Format(time.DateOnly), "end_date", end.Format(time.DateOnly))
	return nil
}

// Run loads the catalog, retrying with exponential backoff until the first
// load succeeds, then refreshes on the cron schedule until ctx is cancelled.
func (s *Store) Run(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if err := s.Refresh(ctx); err != nil {
			s.logger.Warn("scheduled catalog refresh failed, keeping previous catalog", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule catalog refresh %q: %w", schedule, err)
	}

	if !s.loadInitial(ctx) {
		return nil
	}

	c.Start()
	s.logger.Info("catalog refresh scheduled", "schedule", schedule)
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// loadInitial returns false if ctx was cancelled before a load succeeded.
func (s *Store) loadInitial(ctx context.Context) bool {
	backoff := initialBackoff
	for {
		err := s.Refresh(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		s.logger.Error("initial catalog load failed", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return false
		case <-s.clock.After(backoff):
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// Get returns the asteroid with the given ID.
func (s *Store) Get(id string) (domain.Asteroid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return domain.Asteroid{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// List returns the asteroids matching f with their derived fields, in feed order.
func (s *Store) List(f domain.AsteroidFilter) []domain.AsteroidSummary {
	s.mu.RLock()
	matched := domain.FilterAsteroids(s.asteroids, f)
	s.mu.RUnlock()

	out := make([]domain.AsteroidSummary, len(matched))
	for i, a := range matched {
		out[i] = domain.Summarize(a)
	}
	return out
}

// Stats counts the risk levels of the asteroids matching f.
func (s *Store) Stats(f domain.AsteroidFilter) domain.RiskStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CountRisks(domain.FilterAsteroids(s.asteroids, f))
}

// LoadedAt returns when the catalog was last refreshed, or the zero time.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}
