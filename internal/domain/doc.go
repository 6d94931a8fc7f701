// Package domain models asteroid impact scenarios and the heuristics used to
// estimate their consequences.
//
// # Data Source
//
// Asteroid records come from the NASA Near-Earth Object Web Service (NeoWs)
// feed endpoint, https://api.nasa.gov/neo/rest/v1/feed. Each near-Earth object
// carries a min/max estimated diameter and one or more close-approach records.
// Only the first close approach is kept; its relative velocity drives the
// energy estimate.
//
// # Physics Heuristics
//
// These are presentation heuristics, not a physical impact model:
//
//	Energy:   uniform sphere, density 2600 kg/m³, E = ½·m·v², 1 Mt = 4.184e15 J
//	          (uses the maximum estimated diameter)
//	Crater:   r = 1.8 · d^0.13 · E^0.29 km
//	Zones:    crater radius × {2, 5, 10, 20}
//	          total devastation < severe destruction < moderate damage < light effects
//	Seismic:  M = 4.0 + log10(E)
//	Tsunami:  wave height = min(√(E/10), 100) m, range = height × 50 km
//
// Energy comparison bands are half-open and left-inclusive:
//
//	E < 0.001 Mt       kilotons, similar to Hiroshima
//	0.001 ≤ E < 1      N Hiroshima bombs (15 kt each)
//	1 ≤ E < 50         thermonuclear bomb
//	50 ≤ E < 1000      global nuclear arsenal
//	E ≥ 1000           gigatons, regional extinction
//
// # Casualty Model
//
// Population is sampled once for a circle of radius
// min(moderate damage radius, provider cap). The resulting average density is
// applied ring by ring (annulus areas) to the three inner zones with mortality
// fractions 1.0, 0.7 and 0.3. The light-effects ring is informational only.
// When a real population sample was obtained, total casualties never exceed
// it; every total is also capped by a configurable ceiling.
//
// # Location Classification
//
// Reverse-geocoding results are classified as ocean when the provider returns
// no structured address, when the display name contains "Ocean" or "Sea", or
// when it reports a geocoding error. A transport failure yields an "unknown"
// location, which is treated as land for casualty purposes and flagged as
// uncertain on the report.
package domain
