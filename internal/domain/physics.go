package domain

import (
	"errors"
	"fmt"
	"math"
)

const (
	asteroidDensityKgM3 = 2600.0
	joulesPerMegaton    = 4.184e15
	hiroshimaMegatons   = 0.015

	// Crater power law: r = craterCoefficient · d^craterDiameterExp · E^craterEnergyExp.
	craterCoefficient  = 1.8
	craterDiameterExp  = 0.13
	craterEnergyExp    = 0.29
	maxTsunamiHeightM  = 100.0
	tsunamiRangeFactor = 50.0
)

// ErrInvalidPhysics is returned when a physics input is non-positive or NaN.
var ErrInvalidPhysics = errors.New("invalid physics input")

// ImpactZones are the concentric damage radii in km around the impact point.
type ImpactZones struct {
	TotalDevastation  float64 `json:"total_devastation_km"`
	SevereDestruction float64 `json:"severe_destruction_km"`
	ModerateDamage    float64 `json:"moderate_damage_km"`
	LightEffects      float64 `json:"light_effects_km"`
}

// ImpactEnergyMegatons returns the kinetic energy of a uniform stony sphere of
// the given diameter (km) travelling at the given velocity (km/s).
func ImpactEnergyMegatons(diameterKm, velocityKmS float64) float64 {
	radiusM := diameterKm * 1000 / 2
	volume := 4.0 / 3.0 * math.Pi * math.Pow(radiusM, 3)
	mass := volume * asteroidDensityKgM3
	velocityMS := velocityKmS * 1000
	joules := 0.5 * mass * velocityMS * velocityMS
	return joules / joulesPerMegaton
}

// CraterRadiusKm applies the empirical crater power law. Both inputs must be
// positive.
func CraterRadiusKm(diameterKm, energyMt float64) (float64, error) {
	if !positive(diameterKm) || !positive(energyMt) {
		return 0, fmt.Errorf("%w: crater radius needs positive diameter and energy (got %g km, %g Mt)",
			ErrInvalidPhysics, diameterKm, energyMt)
	}
	return craterCoefficient * math.Pow(diameterKm, craterDiameterExp) * math.Pow(energyMt, craterEnergyExp), nil
}

// ComputeImpactZones scales the crater radius by the fixed zone multipliers.
func ComputeImpactZones(craterRadiusKm float64) ImpactZones {
	return ImpactZones{
		TotalDevastation:  craterRadiusKm * 2,
		SevereDestruction: craterRadiusKm * 5,
		ModerateDamage:    craterRadiusKm * 10,
		LightEffects:      craterRadiusKm * 20,
	}
}

// SeismicMagnitude is 4 + log10(energy). Energies below 1 Mt give magnitudes
// below 4; no floor is applied.
func SeismicMagnitude(energyMt float64) float64 {
	return 4.0 + math.Log10(energyMt)
}

// EnergyComparison renders the energy as a familiar-scale label.
func EnergyComparison(energyMt float64) string {
	switch {
	case energyMt < 0.001:
		return fmt.Sprintf("%.1f kilotons - Similar to Hiroshima", energyMt*1000)
	case energyMt < 1:
		return fmt.Sprintf("%.0f Hiroshima bombs", math.Round(energyMt/hiroshimaMegatons))
	case energyMt < 50:
		return fmt.Sprintf("%.1f megatons - Thermonuclear bomb", energyMt)
	case energyMt < 1000:
		return fmt.Sprintf("%.0f megatons - Global nuclear arsenal", energyMt)
	default:
		return fmt.Sprintf("%.1f gigatons - Regional extinction", energyMt/1000)
	}
}

// ClimateEffects returns cumulative climate tags in increasing severity.
func ClimateEffects(energyMt float64) []string {
	effects := []string{}
	if energyMt > 100 {
		effects = append(effects, "Local impact winter")
	}
	if energyMt > 1000 {
		effects = append(effects, "Regional nuclear winter")
	}
	if energyMt > 10000 {
		effects = append(effects, "Global mass extinction")
	}
	return effects
}

// TsunamiEstimate describes the wave expected from an ocean impact.
type TsunamiEstimate struct {
	WaveHeightM float64 `json:"wave_height_m"`
	RangeKm     float64 `json:"range_km"`
}

// EstimateTsunami caps the wave height at 100 m; range is 50 km per meter.
func EstimateTsunami(energyMt float64) TsunamiEstimate {
	height := math.Min(math.Sqrt(energyMt/10), maxTsunamiHeightM)
	return TsunamiEstimate{
		WaveHeightM: height,
		RangeKm:     height * tsunamiRangeFactor,
	}
}

// Mitigation holds the heuristic deflection/destruction/evacuation figures.
type Mitigation struct {
	DeflectionForceGN         float64 `json:"deflection_force_gn"`
	DestructionYieldHiroshima float64 `json:"destruction_yield_hiroshima"`
	EvacuationRadiusKm        float64 `json:"evacuation_radius_km"`
}

// ComputeMitigation derives the mitigation figures. The evacuation radius is
// the severe-destruction zone radius.
func ComputeMitigation(energyMt, diameterKm float64) (Mitigation, error) {
	crater, err := CraterRadiusKm(diameterKm, energyMt)
	if err != nil {
		return Mitigation{}, err
	}
	return Mitigation{
		DeflectionForceGN:         diameterKm * energyMt * 0.1,
		DestructionYieldHiroshima: diameterKm * energyMt * 0.5 / hiroshimaMegatons,
		EvacuationRadiusKm:        crater * 5,
	}, nil
}

// Deflection renders the deflection force, e.g. "6.51 GN".
func (m Mitigation) Deflection() string {
	return fmt.Sprintf("%.2f GN", m.DeflectionForceGN)
}

// Destruction renders the destruction yield in Hiroshima equivalents.
func (m Mitigation) Destruction() string {
	return fmt.Sprintf("%.0f Hiroshima bombs (15kt)", m.DestructionYieldHiroshima)
}

// Evacuation renders the evacuation radius.
func (m Mitigation) Evacuation() string {
	return fmt.Sprintf("%.1f km", m.EvacuationRadiusKm)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
