package neows

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedJSON = `{
  "element_count": 4,
  "near_earth_objects": {
    "2026-10-18": [
      {
        "id": "3542519",
        "name": "(2010 PK9)",
        "is_potentially_hazardous_asteroid": true,
        "estimated_diameter": {"kilometers": {"estimated_diameter_min": 0.1, "estimated_diameter_max": 0.25}},
        "close_approach_data": [
          {"close_approach_date": "2026-10-18",
           "relative_velocity": {"kilometers_per_second": "20.5"},
           "miss_distance": {"kilometers": "450000.25"}}
        ]
      }
    ],
    "2026-10-17": [
      {
        "id": "2465633",
        "name": "465633 (2009 JR5)",
        "is_potentially_hazardous_asteroid": false,
        "estimated_diameter": {"kilometers": {"estimated_diameter_min": 0.2, "estimated_diameter_max": 0.48}},
        "close_approach_data": [
          {"close_approach_date": "2026-10-17",
           "relative_velocity": {"kilometers_per_second": "18.1273"},
           "miss_distance": {"kilometers": "45290298.2253"}},
          {"close_approach_date": "2027-01-01",
           "relative_velocity": {"kilometers_per_second": "1"},
           "miss_distance": {"kilometers": "1"}}
        ]
      },
      {
        "id": "999",
        "name": "no approaches",
        "estimated_diameter": {"kilometers": {"estimated_diameter_min": 1, "estimated_diameter_max": 2}},
        "close_approach_data": []
      },
      {
        "id": "1000",
        "name": "bad velocity",
        "estimated_diameter": {"kilometers": {"estimated_diameter_min": 1, "estimated_diameter_max": 2}},
        "close_approach_data": [
          {"close_approach_date": "2026-10-17",
           "relative_velocity": {"kilometers_per_second": "fast"},
           "miss_distance": {"kilometers": "1"}}
        ]
      }
    ]
  }
}`

func testClient(baseURL string, limit int) *Client {
	return NewClient(baseURL, "TEST_KEY", limit, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func day(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feed", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2026-10-17", q.Get("start_date"))
		assert.Equal(t, "2026-10-24", q.Get("end_date"))
		assert.Equal(t, "TEST_KEY", q.Get("api_key"))
		_, _ = w.Write([]byte(feedJSON))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL, 50).Fetch(context.Background(), day("2026-10-17"), day("2026-10-24"))
	require.NoError(t, err)

	want := []domain.Asteroid{
		{
			ID:       "2465633",
			Name:     "465633 (2009 JR5)",
			Diameter: domain.EstimatedDiameter{MinKm: 0.2, MaxKm: 0.48},
			Approach: domain.CloseApproach{Date: day("2026-10-17"), VelocityKmS: 18.1273, MissDistanceKm: 45290298.2253},
		},
		{
			ID:                "3542519",
			Name:              "(2010 PK9)",
			Diameter:          domain.EstimatedDiameter{MinKm: 0.1, MaxKm: 0.25},
			Approach:          domain.CloseApproach{Date: day("2026-10-18"), VelocityKmS: 20.5, MissDistanceKm: 450000.25},
			PotentiallyHazard: true,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fetch mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, domain.RiskHigh, got[1].Risk())
}

func TestClient_Fetch_TruncatesToLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(feedJSON))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL, 1).Fetch(context.Background(), day("2026-10-17"), day("2026-10-24"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2465633", got[0].ID)
}

func TestClient_Fetch_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 50).Fetch(context.Background(), day("2026-10-17"), day("2026-10-24"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestClient_Fetch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"near_earth_objects": [`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 50).Fetch(context.Background(), day("2026-10-17"), day("2026-10-24"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode feed")
}
