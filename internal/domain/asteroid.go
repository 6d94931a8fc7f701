package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidAsteroid is returned for asteroids that cannot be simulated.
var ErrInvalidAsteroid = errors.New("invalid asteroid")

// Risk buckets an asteroid by how close its approach comes to Earth.
type Risk string

const (
	RiskHigh   Risk = "high"
	RiskMedium Risk = "medium"
	RiskLow    Risk = "low"
)

// Miss-distance thresholds (km) for risk classification.
const (
	highRiskMissDistanceKm   = 500_000
	mediumRiskMissDistanceKm = 2_000_000
)

// EstimatedDiameter holds the catalog's diameter range in kilometers.
type EstimatedDiameter struct {
	MinKm float64 `json:"min_km"`
	MaxKm float64 `json:"max_km"`
}

// CloseApproach is a single close-approach event from the catalog.
type CloseApproach struct {
	Date           time.Time `json:"date"`
	VelocityKmS    float64   `json:"velocity_km_s"`
	MissDistanceKm float64   `json:"miss_distance_km"`
}

// Asteroid is an immutable catalog record for a near-Earth object.
type Asteroid struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Diameter          EstimatedDiameter `json:"diameter"`
	Approach          CloseApproach     `json:"approach"`
	PotentiallyHazard bool              `json:"potentially_hazardous"`
}

// DiameterKm returns the diameter used by every physics computation: the
// maximum estimate.
func (a Asteroid) DiameterKm() float64 {
	return a.Diameter.MaxKm
}

// VelocityKmS returns the relative velocity at close approach.
func (a Asteroid) VelocityKmS() float64 {
	return a.Approach.VelocityKmS
}

// Validate rejects asteroids whose diameter or velocity is not a positive
// finite number.
func (a Asteroid) Validate() error {
	if !positive(a.DiameterKm()) {
		return fmt.Errorf("%w: diameter must be positive, got %g km", ErrInvalidAsteroid, a.DiameterKm())
	}
	if !positive(a.VelocityKmS()) {
		return fmt.Errorf("%w: velocity must be positive, got %g km/s", ErrInvalidAsteroid, a.VelocityKmS())
	}
	return nil
}

// Risk classifies the asteroid by miss distance.
func (a Asteroid) Risk() Risk {
	return ClassifyRisk(a.Approach.MissDistanceKm)
}

// ClassifyRisk maps a miss distance in km to a risk bucket:
// < 500,000 high, < 2,000,000 medium, otherwise low.
func ClassifyRisk(missDistanceKm float64) Risk {
	switch {
	case missDistanceKm < highRiskMissDistanceKm:
		return RiskHigh
	case missDistanceKm < mediumRiskMissDistanceKm:
		return RiskMedium
	default:
		return RiskLow
	}
}

// AsteroidSummary is the list view of a catalog record.
type AsteroidSummary struct {
	Asteroid
	EnergyMt float64 `json:"energy_mt"`
	Risk     Risk    `json:"risk"`
}

// Summarize attaches the derived list fields to an asteroid.
func Summarize(a Asteroid) AsteroidSummary {
	return AsteroidSummary{
		Asteroid: a,
		EnergyMt: ImpactEnergyMegatons(a.DiameterKm(), a.VelocityKmS()),
		Risk:     a.Risk(),
	}
}

// AsteroidFilter narrows a catalog listing. Zero values disable a criterion.
type AsteroidFilter struct {
	Name          string
	Risk          Risk
	MaxDistanceKm float64
	MinDiameterKm float64
}

// Match reports whether the asteroid satisfies every set criterion.
func (f AsteroidFilter) Match(a Asteroid) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(a.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.Risk != "" && a.Risk() != f.Risk {
		return false
	}
	if f.MaxDistanceKm > 0 && a.Approach.MissDistanceKm > f.MaxDistanceKm {
		return false
	}
	if f.MinDiameterKm > 0 && a.DiameterKm() < f.MinDiameterKm {
		return false
	}
	return true
}

// FilterAsteroids returns the asteroids matching f, preserving order.
func FilterAsteroids(asteroids []Asteroid, f AsteroidFilter) []Asteroid {
	out := make([]Asteroid, 0, len(asteroids))
	for _, a := range asteroids {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

// RiskStats counts asteroids per risk bucket.
type RiskStats struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// CountRisks tallies the risk buckets of a listing.
func CountRisks(asteroids []Asteroid) RiskStats {
	stats := RiskStats{Total: len(asteroids)}
	for _, a := range asteroids {
		switch a.Risk() {
		case RiskHigh:
			stats.High++
		case RiskMedium:
			stats.Medium++
		default:
			stats.Low++
		}
	}
	return stats
}
