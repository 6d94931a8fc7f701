package domain

import (
	"context"
	"log/slog"
)

// LocationType classifies an impact site.
type LocationType string

const (
	LocationLand    LocationType = "land"
	LocationOcean   LocationType = "ocean"
	LocationUnknown LocationType = "unknown"
)

// UnknownLocationName is the display name used when classification fails.
const UnknownLocationName = "Unknown Location"

// LocationInfo describes the surface at an impact coordinate.
type LocationInfo struct {
	Type    LocationType `json:"type"`
	Name    string       `json:"name"`
	Country string       `json:"country,omitempty"`
	City    string       `json:"city,omitempty"`
}

// IsOcean reports whether casualty estimation should be skipped. Unknown
// locations are treated as land.
func (l LocationInfo) IsOcean() bool {
	return l.Type == LocationOcean
}

// Uncertain reports whether classification failed.
func (l LocationInfo) Uncertain() bool {
	return l.Type == LocationUnknown
}

// UnknownLocation is the degraded result of a failed classification.
func UnknownLocation() LocationInfo {
	return LocationInfo{Type: LocationUnknown, Name: UnknownLocationName}
}

// LocationClassifier resolves coordinates to a land/ocean classification.
type LocationClassifier interface {
	Classify(ctx context.Context, lat, lon float64) (LocationInfo, error)
}

// ClassifyLocation calls the classifier and degrades any failure to an
// unknown location. A nil classifier also yields unknown.
func ClassifyLocation(ctx context.Context, classifier LocationClassifier, lat, lon float64, logger *slog.Logger) LocationInfo {
	if classifier == nil {
		return UnknownLocation()
	}
	info, err := classifier.Classify(ctx, lat, lon)
	if err != nil {
		if logger != nil {
			logger.Warn("location classification failed, treating as unknown",
				"lat", lat, "lon", lon, "error", err)
		}
		return UnknownLocation()
	}
	return info
}
