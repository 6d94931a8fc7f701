// Package neows fetches near-Earth object close approaches from NASA's NeoWs feed.
package neows

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
)

const dateLayout = "2006-01-02"

// Client reads the NeoWs feed endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	limit      int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a NeoWs client that keeps at most limit asteroids per fetch.
func NewClient(baseURL, apiKey string, limit int, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		limit:   limit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch returns asteroids with a close approach between start and end
// (inclusive dates), walking the feed in date order. Objects without approach
// data or with unparseable figures are skipped.
func (c *Client) Fetch(ctx context.Context, start, end time.Time) ([]domain.Asteroid, error) {
	params := url.Values{
		"start_date": {start.Format(dateLayout)},
		"end_date":   {end.Format(dateLayout)},
		"api_key":    {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/feed?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("neows request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("NASA API returned status %d", resp.StatusCode)
	}

	var f feed
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	dates := make([]string, 0, len(f.NearEarthObjects))
	for d := range f.NearEarthObjects {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var out []domain.Asteroid
	for _, d := range dates {
		for _, o := range f.NearEarthObjects[d] {
			a, err := o.toAsteroid()
			if err != nil {
				c.logger.Warn("skipping neo", "id", o.ID, "name", o.Name, "error", err)
				continue
			}
			if a == nil {
				continue
			}
			out = append(out, *a)
			if c.limit > 0 && len(out) == c.limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// NeoWs feed response types.

type feed struct {
	NearEarthObjects map[string][]neo `json:"near_earth_objects"`
}

type neo struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Hazardous         bool              `json:"is_potentially_hazardous_asteroid"`
	EstimatedDiameter estimatedDiameter `json:"estimated_diameter"`
	CloseApproachData []closeApproach   `json:"close_approach_data"`
}

type estimatedDiameter struct {
	Kilometers struct {
		Min float64 `json:"estimated_diameter_min"`
		Max float64 `json:"estimated_diameter_max"`
	} `json:"kilometers"`
}

type closeApproach struct {
	Date             string `json:"close_approach_date"`
	RelativeVelocity struct {
		KmPerSecond string `json:"kilometers_per_second"`
	} `json:"relative_velocity"`
	MissDistance struct {
		Kilometers string `json:"kilometers"`
	} `json:"miss_distance"`
}

// toAsteroid converts the object using its first close approach. It returns
// nil without error when the object has no approaches.
func (o neo) toAsteroid() (*domain.Asteroid, error) {
	if len(o.CloseApproachData) == 0 {
		return nil, nil
	}
	ca := o.CloseApproachData[0]

	velocity, err := strconv.ParseFloat(ca.RelativeVelocity.KmPerSecond, 64)
	if err != nil {
		return nil, fmt.Errorf("parse velocity %q: %w", ca.RelativeVelocity.KmPerSecond, err)
	}
	miss, err := strconv.ParseFloat(ca.MissDistance.Kilometers, 64)
	if err != nil {
		return nil, fmt.Errorf("parse miss distance %q: %w", ca.MissDistance.Kilometers, err)
	}
	date, err := time.Parse(dateLayout, ca.Date)
	if err != nil {
		return nil, fmt.Errorf("parse approach date %q: %w", ca.Date, err)
	}

	id := o.ID
	if id == "" {
		id = o.Name
	}
	return &domain.Asteroid{
		ID:   id,
		Name: o.Name,
		Diameter: domain.EstimatedDiameter{
			MinKm: o.EstimatedDiameter.Kilometers.Min,
			MaxKm: o.EstimatedDiameter.Kilometers.Max,
		},
		Approach: domain.CloseApproach{
			Date:           date,
			VelocityKmS:    velocity,
			MissDistanceKm: miss,
		},
		PotentiallyHazard: o.Hazardous,
	}, nil
}
