package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	earthRadiusKm         = 6371.0
	defaultPolygonSegment = 32
)

// ImpactPolygon approximates a circle of radiusKm around (lat, lon) with
// segments+1 points, closing the ring at bearing 360. Points are [lon, lat].
// segments <= 0 selects 32.
func ImpactPolygon(lat, lon, radiusKm float64, segments int) orb.Ring {
	if segments <= 0 {
		segments = defaultPolygonSegment
	}

	delta := radiusKm / earthRadiusKm
	lat1 := toRadians(lat)
	lon1 := toRadians(lon)

	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i <= segments; i++ {
		bearing := toRadians(float64(i) * 360 / float64(segments))
		lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) +
			math.Cos(lat1)*math.Sin(delta)*math.Cos(bearing))
		lon2 := lon1 + math.Atan2(
			math.Sin(bearing)*math.Sin(delta)*math.Cos(lat1),
			math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
		)
		ring = append(ring, orb.Point{toDegrees(lon2), toDegrees(lat2)})
	}
	return ring
}

// ImpactFeatureCollection wraps the impact polygon in a FeatureCollection
// with a single feature and empty properties, the shape raster statistics
// services accept as a query area.
func ImpactFeatureCollection(lat, lon, radiusKm float64, segments int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Polygon{ImpactPolygon(lat, lon, radiusKm, segments)})
	f.Properties = geojson.Properties{}
	fc.Append(f)
	return fc
}

// CircleAreaKm2 is the planar area of a disc of the given radius.
func CircleAreaKm2(radiusKm float64) float64 {
	return math.Pi * radiusKm * radiusKm
}

// ValidateCoordinates checks that lat is in [-90, 90] and lon in [-180, 180].
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return &CoordinateError{Field: "lat", Value: lat}
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return &CoordinateError{Field: "lon", Value: lon}
	}
	return nil
}

// CoordinateError reports an out-of-range coordinate.
type CoordinateError struct {
	Field string
	Value float64
}

func (e *CoordinateError) Error() string {
	limit := 90
	if e.Field == "lon" {
		limit = 180
	}
	return fmt.Sprintf("invalid %s %g: must be between -%d and %d", e.Field, e.Value, limit, limit)
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
