package domain

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

const (
	// DefaultFallbackDensity is used when a provider yields no usable figure.
	DefaultFallbackDensity = 50.0
	// DefaultCasualtyCeiling caps every casualty estimate.
	DefaultCasualtyCeiling = 10_000_000

	failureDetailLimit = 50
)

// OceanSource is the population provenance of every ocean impact.
const OceanSource = "Ocean / No casualties"

// Zone names used in the casualty breakdown.
const (
	ZoneTotalDevastation  = "total_devastation"
	ZoneSevereDestruction = "severe_destruction"
	ZoneModerateDamage    = "moderate_damage"
)

// ZoneCasualties is the casualty figure for one annulus.
type ZoneCasualties struct {
	Zone          string  `json:"zone"`
	InnerRadiusKm float64 `json:"inner_radius_km"`
	OuterRadiusKm float64 `json:"outer_radius_km"`
	AreaKm2       float64 `json:"area_km2"`
	Population    int64   `json:"population"`
	Mortality     float64 `json:"mortality"`
	Casualties    int64   `json:"casualties"`
}

// CasualtyEstimate is the result of casualty estimation for one impact.
type CasualtyEstimate struct {
	Casualties        int64            `json:"casualties"`
	Source            string           `json:"source"`
	QueryRadiusKm     float64          `json:"query_radius_km,omitempty"`
	DensityPerKm2     float64          `json:"density_per_km2,omitempty"`
	SampledPopulation int64            `json:"sampled_population,omitempty"`
	Zones             []ZoneCasualties `json:"zones,omitempty"`
	// Clamped is set when Casualties was capped by the sampled population or
	// the ceiling. Zones always carry the uncapped per-annulus figures.
	Clamped bool `json:"clamped,omitempty"`
	// FailureKind is set when the population lookup failed.
	FailureKind ErrorKind `json:"failure_kind,omitempty"`
}

// CasualtyEstimator turns impact zones into a casualty estimate using a
// population source. Lookup failures never escape Estimate; they become a
// zero-casualty estimate whose Source explains the failure.
type CasualtyEstimator struct {
	Source          PopulationSource
	FallbackDensity float64
	Ceiling         int64
	Logger          *slog.Logger
}

// NewCasualtyEstimator builds an estimator with the default density and
// ceiling.
func NewCasualtyEstimator(source PopulationSource, logger *slog.Logger) *CasualtyEstimator {
	return &CasualtyEstimator{
		Source:          source,
		FallbackDensity: DefaultFallbackDensity,
		Ceiling:         DefaultCasualtyCeiling,
		Logger:          logger,
	}
}

// Estimate computes casualties for an impact at (lat, lon). Ocean impacts
// yield zero casualties without a population lookup.
func (e *CasualtyEstimator) Estimate(ctx context.Context, lat, lon float64, zones ImpactZones, loc LocationInfo) CasualtyEstimate {
	if loc.IsOcean() {
		return CasualtyEstimate{Source: OceanSource}
	}

	queryRadius := zones.ModerateDamage
	if maxR := e.Source.MaxRadiusKm(); maxR > 0 && queryRadius > maxR {
		queryRadius = maxR
	}

	q := PopulationQuery{Lat: lat, Lon: lon, RadiusKm: queryRadius, Country: loc.Country}
	pop, err := e.Source.Population(ctx, q)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("population lookup failed",
				"provider", e.Source.Name(), "radius_km", queryRadius, "error", err)
		}
		return CasualtyEstimate{
			Source:        failureSource(e.Source.Name(), err),
			QueryRadiusKm: queryRadius,
			FailureKind:   KindOf(err),
		}
	}

	density, source := e.density(pop, q)
	est := CasualtyEstimate{
		Source:        source,
		QueryRadiusKm: queryRadius,
		DensityPerKm2: density,
	}
	if pop.Sampled {
		est.SampledPopulation = pop.Population
	}

	var total int64
	prev := 0.0
	for _, band := range casualtyBands(zones) {
		area := CircleAreaKm2(band.radius) - CircleAreaKm2(prev)
		people := int64(math.Round(density * area))
		deaths := int64(math.Round(float64(people) * band.mortality))
		est.Zones = append(est.Zones, ZoneCasualties{
			Zone:          band.zone,
			InnerRadiusKm: prev,
			OuterRadiusKm: band.radius,
			AreaKm2:       area,
			Population:    people,
			Mortality:     band.mortality,
			Casualties:    deaths,
		})
		total += deaths
		prev = band.radius
	}

	if pop.Sampled && pop.Population > 0 && total > pop.Population {
		total = pop.Population
	}
	ceiling := e.Ceiling
	if ceiling <= 0 {
		ceiling = DefaultCasualtyCeiling
	}
	if total > ceiling {
		total = ceiling
	}
	if total < 0 {
		total = 0
	}
	est.Casualties = total
	est.Clamped = total < zoneSum(est.Zones)
	return est
}

// density picks the average density for the annulus walk and the provenance
// string that discloses how it was obtained.
func (e *CasualtyEstimator) density(pop PopulationEstimate, q PopulationQuery) (float64, string) {
	switch {
	case pop.Sampled && pop.Population > 0:
		return float64(pop.Population) / q.AreaKm2(),
			fmt.Sprintf("%s (Query Radius: %.0f km)", pop.Source, q.RadiusKm)
	case !pop.Sampled && pop.DensityPerKm2 > 0:
		return pop.DensityPerKm2, pop.Source
	case !pop.Sampled && pop.Population > 0:
		return float64(pop.Population) / q.AreaKm2(), pop.Source
	default:
		fallback := e.FallbackDensity
		if fallback <= 0 {
			fallback = DefaultFallbackDensity
		}
		return fallback, pop.Source + " - Population 0 / Base density used"
	}
}

func zoneSum(zones []ZoneCasualties) int64 {
	var sum int64
	for _, z := range zones {
		sum += z.Casualties
	}
	return sum
}

type casualtyBand struct {
	zone      string
	radius    float64
	mortality float64
}

// casualtyBands are the three innermost zones with their mortality
// fractions. The light-effects zone contributes no casualties.
func casualtyBands(z ImpactZones) []casualtyBand {
	return []casualtyBand{
		{zone: ZoneTotalDevastation, radius: z.TotalDevastation, mortality: 1.0},
		{zone: ZoneSevereDestruction, radius: z.SevereDestruction, mortality: 0.7},
		{zone: ZoneModerateDamage, radius: z.ModerateDamage, mortality: 0.3},
	}
}

func failureSource(provider string, err error) string {
	msg := []rune(err.Error())
	if len(msg) > failureDetailLimit {
		msg = msg[:failureDetailLimit]
	}
	return fmt.Sprintf("%s Query Failed: %s...", provider, string(msg))
}
