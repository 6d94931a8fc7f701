package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MitigationText holds the rendered mitigation strings shown to users.
type MitigationText struct {
	Deflection  string `json:"deflection"`
	Destruction string `json:"destruction"`
	Evacuation  string `json:"evacuation"`
}

// ImpactReport is the complete output of one simulation. It is built once
// and never mutated after it is returned.
type ImpactReport struct {
	ID          string    `json:"id"`
	SimulatedAt time.Time `json:"simulated_at"`

	AsteroidID   string  `json:"asteroid_id"`
	AsteroidName string  `json:"asteroid_name"`
	DiameterKm   float64 `json:"diameter_km"`
	VelocityKmS  float64 `json:"velocity_km_s"`

	Lat               float64      `json:"lat"`
	Lon               float64      `json:"lon"`
	Location          LocationInfo `json:"location"`
	LocationUncertain bool         `json:"location_uncertain"`

	EnergyMt         float64     `json:"energy_mt"`
	CraterRadiusKm   float64     `json:"crater_radius_km"`
	Zones            ImpactZones `json:"zones"`
	SeismicMagnitude float64     `json:"seismic_magnitude"`

	Casualties       int64            `json:"casualties"`
	PopulationSource string           `json:"population_source"`
	// ZoneCasualties are uncapped; CasualtiesClamped reports when Casualties
	// is lower than their sum.
	ZoneCasualties    []ZoneCasualties `json:"zone_casualties,omitempty"`
	CasualtiesClamped bool             `json:"casualties_clamped,omitempty"`

	ClimateEffects []string         `json:"climate_effects"`
	Tsunami        *TsunamiEstimate `json:"tsunami,omitempty"`
	Comparison     string           `json:"comparison"`
	Mitigation     Mitigation       `json:"mitigation"`
	MitigationText MitigationText   `json:"mitigation_text"`
}

// ReportID produces a deterministic ID for a simulation of an asteroid at a
// coordinate, so repeated runs of the same scenario share a key.
func ReportID(asteroidID string, lat, lon float64) string {
	input := fmt.Sprintf("%s|%.4f|%.4f", asteroidID, lat, lon)
	hash := sha256.Sum256([]byte(input))
	return "impact-" + hex.EncodeToString(hash[:8])
}
