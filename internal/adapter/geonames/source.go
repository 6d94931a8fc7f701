// Package geonames implements a gazetteer population source: the nearest
// named place within the query radius supplies a population figure, and a
// per-country density table covers places without one.
package geonames

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
)

const providerName = "GeoNames"

// Source implements domain.PopulationSource using findNearbyPlaceNameJSON.
type Source struct {
	baseURL        string
	username       string
	maxRadiusKm    float64
	defaultDensity float64
	httpClient     *http.Client
	metrics        *observability.Metrics
	logger         *slog.Logger
}

// NewSource creates a GeoNames source. defaultDensity applies to countries
// missing from the density table.
func NewSource(baseURL, username string, maxRadiusKm, defaultDensity float64, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Source {
	if defaultDensity <= 0 {
		defaultDensity = domain.DefaultFallbackDensity
	}
	return &Source{
		baseURL:        strings.TrimRight(baseURL, "/"),
		username:       username,
		maxRadiusKm:    maxRadiusKm,
		defaultDensity: defaultDensity,
		httpClient:     &http.Client{Timeout: timeout},
		metrics:        metrics,
		logger:         logger,
	}
}

func (s *Source) Name() string { return providerName }

func (s *Source) MaxRadiusKm() float64 { return s.maxRadiusKm }

// Population looks up the nearest place. A place with a population yields a
// sampled figure; otherwise the country density table is used and the
// source string marks the figure as an estimate.
func (s *Source) Population(ctx context.Context, q domain.PopulationQuery) (domain.PopulationEstimate, error) {
	if s.maxRadiusKm > 0 && q.RadiusKm > s.maxRadiusKm {
		s.record(domain.KindPrecondition)
		return domain.PopulationEstimate{}, domain.NewLookupError(domain.KindPrecondition, providerName,
			fmt.Sprintf("Radius (%.1f km) exceeds GeoNames limit (%g km).", q.RadiusKm, s.maxRadiusKm), nil)
	}

	domain.ReportProgress(ctx, fmt.Sprintf("Looking up places within %.0f km on GeoNames...", q.RadiusKm))

	place, err := s.nearestPlace(ctx, q)
	if err != nil {
		s.record(domain.KindOf(err))
		return domain.PopulationEstimate{}, err
	}
	s.record("success")

	if place != nil && place.Population > 0 {
		return domain.PopulationEstimate{
			Population: place.Population,
			Source:     fmt.Sprintf("GeoNames (%s)", place.Name),
			Sampled:    true,
		}, nil
	}

	country := q.Country
	if place != nil && place.CountryName != "" {
		country = place.CountryName
	}
	density := s.densityFor(country)
	label := country
	if label == "" {
		label = "default"
	}
	s.logger.Debug("geonames fallback density", "country", country, "density", density)
	return domain.PopulationEstimate{
		Population:    int64(math.Round(density * q.AreaKm2())),
		DensityPerKm2: density,
		Source:        fmt.Sprintf("GeoNames estimate (%s density %g/km²)", label, density),
	}, nil
}

func (s *Source) densityFor(country string) float64 {
	if d, ok := countryDensity[strings.ToLower(strings.TrimSpace(country))]; ok {
		return d
	}
	return s.defaultDensity
}

func (s *Source) record(outcome domain.ErrorKind) {
	s.metrics.PopulationRequests.WithLabelValues(providerName, string(outcome)).Inc()
}

func (s *Source) nearestPlace(ctx context.Context, q domain.PopulationQuery) (*place, error) {
	params := url.Values{
		"lat":      {strconv.FormatFloat(q.Lat, 'f', 4, 64)},
		"lng":      {strconv.FormatFloat(q.Lon, 'f', 4, 64)},
		"radius":   {strconv.FormatFloat(q.RadiusKm, 'f', 0, 64)},
		"maxRows":  {"1"},
		"username": {s.username},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/findNearbyPlaceNameJSON?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		kind := domain.KindTransport
		if ctx.Err() != nil {
			kind = domain.KindTimeout
		}
		return nil, domain.NewLookupError(kind, providerName, "nearby place request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewLookupError(domain.KindProvider, providerName,
			fmt.Sprintf("geonames API error: status %d: %s", resp.StatusCode, body), nil)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, domain.NewLookupError(domain.KindMalformedResponse, providerName, "decode response", err)
	}
	if r.Status != nil {
		return nil, domain.NewLookupError(domain.KindProvider, providerName,
			fmt.Sprintf("geonames error %d: %s", r.Status.Value, r.Status.Message), nil)
	}
	if len(r.Places) == 0 {
		return nil, nil
	}
	return &r.Places[0], nil
}

// GeoNames API response types.

type response struct {
	Places []place `json:"geonames"`
	Status *status `json:"status"`
}

type place struct {
	Name        string `json:"name"`
	CountryName string `json:"countryName"`
	Population  int64  `json:"population"`
}

type status struct {
	Message string `json:"message"`
	Value   int    `json:"value"`
}
