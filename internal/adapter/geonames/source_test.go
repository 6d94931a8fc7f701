package geonames

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSource(srv.URL, "impactsim", 300, 50, 5*time.Second,
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestSource_Population_PlaceWithPopulation(t *testing.T) {
	s := testSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/findNearbyPlaceNameJSON", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "30.2672", q.Get("lat"))
		assert.Equal(t, "-97.7431", q.Get("lng"))
		assert.Equal(t, "45", q.Get("radius"))
		assert.Equal(t, "1", q.Get("maxRows"))
		assert.Equal(t, "impactsim", q.Get("username"))
		respond(`{"geonames":[{"name":"Austin","countryName":"United States","population":961855}]}`)(w, r)
	})

	est, err := s.Population(context.Background(), domain.PopulationQuery{Lat: 30.2672, Lon: -97.7431, RadiusKm: 44.8})
	require.NoError(t, err)

	assert.Equal(t, int64(961855), est.Population)
	assert.True(t, est.Sampled)
	assert.Equal(t, "GeoNames (Austin)", est.Source)
}

func TestSource_Population_ZeroPopulationUsesCountryDensity(t *testing.T) {
	s := testSource(t, respond(`{"geonames":[{"name":"Vila Nova","countryName":"Brazil","population":0}]}`))

	q := domain.PopulationQuery{Lat: -10, Lon: -50, RadiusKm: 10}
	est, err := s.Population(context.Background(), q)
	require.NoError(t, err)

	assert.False(t, est.Sampled)
	assert.Equal(t, 25.0, est.DensityPerKm2)
	assert.Equal(t, int64(7854), est.Population)
	assert.Contains(t, est.Source, "estimate")
	assert.Contains(t, est.Source, "Brazil")
}

func TestSource_Population_NoPlaceUsesQueryCountry(t *testing.T) {
	s := testSource(t, respond(`{"geonames":[]}`))

	est, err := s.Population(context.Background(), domain.PopulationQuery{RadiusKm: 10, Country: "Japan"})
	require.NoError(t, err)
	assert.Equal(t, 347.0, est.DensityPerKm2)
}

func TestSource_Population_UnknownCountryUsesDefault(t *testing.T) {
	s := testSource(t, respond(`{"geonames":[]}`))

	est, err := s.Population(context.Background(), domain.PopulationQuery{RadiusKm: 10, Country: "Atlantis"})
	require.NoError(t, err)
	assert.Equal(t, 50.0, est.DensityPerKm2)

	est, err = s.Population(context.Background(), domain.PopulationQuery{RadiusKm: 10})
	require.NoError(t, err)
	assert.Equal(t, 50.0, est.DensityPerKm2)
	assert.Equal(t, "GeoNames estimate (default density 50/km²)", est.Source)
}

func TestSource_Population_Errors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantKind domain.ErrorKind
	}{
		{
			name:     "status payload",
			handler:  respond(`{"status":{"message":"user does not exist.","value":10}}`),
			wantKind: domain.KindProvider,
		},
		{
			name: "http error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantKind: domain.KindProvider,
		},
		{
			name:     "malformed",
			handler:  respond(`<html>`),
			wantKind: domain.KindMalformedResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testSource(t, tt.handler).Population(context.Background(), domain.PopulationQuery{RadiusKm: 10})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
		})
	}
}

func TestSource_Population_RadiusPrecondition(t *testing.T) {
	called := false
	s := testSource(t, func(w http.ResponseWriter, _ *http.Request) { called = true })

	_, err := s.Population(context.Background(), domain.PopulationQuery{RadiusKm: 301})
	require.Error(t, err)
	assert.Equal(t, domain.KindPrecondition, domain.KindOf(err))
	assert.False(t, called)
}

func TestSource_WithCasualtyEstimator(t *testing.T) {
	s := testSource(t, respond(`{"geonames":[{"name":"Vila Nova","countryName":"Brazil","population":0}]}`))

	est := domain.NewCasualtyEstimator(s, slog.Default()).Estimate(context.Background(), -10, -50,
		domain.ComputeImpactZones(1), domain.LocationInfo{Type: domain.LocationLand, Country: "Brazil"})

	assert.Equal(t, int64(3235), est.Casualties)
	assert.Contains(t, est.Source, "estimate")
}
