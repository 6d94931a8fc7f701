// Package impact runs impact simulations: physics, location classification,
// casualty or tsunami estimation, and report assembly.
package impact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ReportSink receives every completed report.
type ReportSink interface {
	Publish(ctx context.Context, report *domain.ImpactReport) error
}

// Engine turns an asteroid and an impact coordinate into an ImpactReport.
// It holds no per-simulation state; concurrent calls are independent.
type Engine struct {
	classifier domain.LocationClassifier
	casualties *domain.CasualtyEstimator
	sink       ReportSink
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithReportSink publishes completed reports to sink. Publish failures are
// logged and do not fail the simulation.
func WithReportSink(sink ReportSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithClock overrides the clock used for report timestamps and durations.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates an engine from a location classifier and casualty estimator.
func NewEngine(classifier domain.LocationClassifier, casualties *domain.CasualtyEstimator, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		classifier: classifier,
		casualties: casualties,
		clock:      clockwork.NewRealClock(),
		metrics:    metrics,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SimulateImpactAt simulates asteroid striking (lat, lon). Classifier and
// population failures degrade inside the report; an error is returned only
// for invalid input or when ctx ends while waiting on the population provider.
func (e *Engine) SimulateImpactAt(ctx context.Context, asteroid domain.Asteroid, lat, lon float64) (*domain.ImpactReport, error) {
	start := e.clock.Now()

	if err := asteroid.Validate(); err != nil {
		e.metrics.Simulations.WithLabelValues("invalid", "").Inc()
		return nil, err
	}
	if err := domain.ValidateCoordinates(lat, lon); err != nil {
		e.metrics.Simulations.WithLabelValues("invalid", "").Inc()
		return nil, err
	}

	r := newRun(ctx)
	log := e.logger.With("asteroid_id", asteroid.ID, "lat", lat, "lon", lon)

	r.advance(StageComputingPhysics)
	diameter, velocity := asteroid.DiameterKm(), asteroid.VelocityKmS()
	energy := domain.ImpactEnergyMegatons(diameter, velocity)
	crater, err := domain.CraterRadiusKm(diameter, energy)
	if err != nil {
		return nil, fmt.Errorf("crater radius: %w", err)
	}
	zones := domain.ComputeImpactZones(crater)
	log.Debug("physics computed", "energy_mt", energy, "crater_radius_km", crater)

	r.advance(StageClassifyingLocation)
	loc := domain.ClassifyLocation(ctx, e.classifier, lat, lon, e.logger)
	log.Debug("location classified", "type", loc.Type, "name", loc.Name)

	report := &domain.ImpactReport{
		ID:                domain.ReportID(asteroid.ID, lat, lon),
		AsteroidID:        asteroid.ID,
		AsteroidName:      asteroid.Name,
		DiameterKm:        diameter,
		VelocityKmS:       velocity,
		Lat:               lat,
		Lon:               lon,
		Location:          loc,
		LocationUncertain: loc.Uncertain(),
		EnergyMt:          energy,
		CraterRadiusKm:    crater,
		Zones:             zones,
	}

	if loc.IsOcean() {
		r.advance(StageEstimatingTsunami)
		tsunami := domain.EstimateTsunami(energy)
		report.Tsunami = &tsunami
		report.PopulationSource = domain.OceanSource
	} else {
		r.advance(StageEstimatingPopulation)
		est := e.casualties.Estimate(ctx, lat, lon, zones, loc)
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.advance(StageFailed)
			e.observe(start, outcomeFor(ctxErr), loc)
			log.Info("simulation abandoned", "error", ctxErr)
			return nil, fmt.Errorf("simulation of %s abandoned: %w", asteroid.Name, ctxErr)
		}
		report.Casualties = est.Casualties
		report.PopulationSource = est.Source
		report.ZoneCasualties = est.Zones
		report.CasualtiesClamped = est.Clamped
	}

	r.advance(StageAssembling)
	mitigation, err := domain.ComputeMitigation(energy, diameter)
	if err != nil {
		return nil, fmt.Errorf("mitigation: %w", err)
	}
	report.SeismicMagnitude = domain.SeismicMagnitude(energy)
	report.ClimateEffects = domain.ClimateEffects(energy)
	report.Comparison = domain.EnergyComparison(energy)
	report.Mitigation = mitigation
	report.MitigationText = domain.MitigationText{
		Deflection:  mitigation.Deflection(),
		Destruction: mitigation.Destruction(),
		Evacuation:  mitigation.Evacuation(),
	}
	report.SimulatedAt = e.clock.Now().UTC()
	r.advance(StageDone)

	e.observe(start, "success", loc)
	log.Info("simulation complete",
		"report_id", report.ID,
		"location", loc.Name,
		"energy_mt", energy,
		"casualties", report.Casualties,
	)

	if e.sink != nil {
		if err := e.sink.Publish(ctx, report); err != nil {
			log.Warn("publish report failed", "report_id", report.ID, "error", err)
		}
	}
	return report, nil
}

func (e *Engine) observe(start time.Time, outcome string, loc domain.LocationInfo) {
	e.metrics.Simulations.WithLabelValues(outcome, string(loc.Type)).Inc()
	e.metrics.SimulationDuration.Observe(e.clock.Since(start).Seconds())
}

func outcomeFor(err error) string {
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "failed"
}
