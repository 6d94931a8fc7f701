package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	"golang.org/x/time/rate"
)

const providerName = "Nominatim"

// Client implements domain.LocationClassifier using the Nominatim reverse
// geocoding API. Requests are spaced by a client-side rate limiter to honour
// the public instance's usage policy.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Nominatim client allowing one request per minInterval.
func NewClient(baseURL, userAgent string, timeout, minInterval time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		metrics: metrics,
		logger:  logger,
	}
}

// Classify reverse-geocodes (lat, lon). A response without a structured
// address, an "Ocean" or "Sea" display name, or a geocoding error marks the
// point as ocean.
func (c *Client) Classify(ctx context.Context, lat, lon float64) (domain.LocationInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.LocationLookups.WithLabelValues("error").Inc()
		return domain.LocationInfo{}, fmt.Errorf("nominatim rate limit: %w", err)
	}

	params := url.Values{
		"format":         {"json"},
		"lat":            {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(lon, 'f', -1, 64)},
		"zoom":           {"10"},
		"addressdetails": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return domain.LocationInfo{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.LocationLookups.WithLabelValues("error").Inc()
		return domain.LocationInfo{}, domain.NewLookupError(domain.KindTransport, providerName, "reverse geocode request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.metrics.LocationLookups.WithLabelValues("error").Inc()
		return domain.LocationInfo{}, domain.NewLookupError(domain.KindProvider, providerName,
			fmt.Sprintf("nominatim API error: status %d: %s", resp.StatusCode, body), nil)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		c.metrics.LocationLookups.WithLabelValues("error").Inc()
		return domain.LocationInfo{}, domain.NewLookupError(domain.KindMalformedResponse, providerName, "decode response", err)
	}

	info := r.toLocation()
	c.metrics.LocationLookups.WithLabelValues(string(info.Type)).Inc()
	c.logger.Debug("location classified", "lat", lat, "lon", lon, "type", info.Type, "name", info.Name)
	return info, nil
}

// Nominatim API response types.

type response struct {
	DisplayName string   `json:"display_name"`
	Address     *address `json:"address"`
	Error       string   `json:"error"`
}

type address struct {
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
	County  string `json:"county"`
	State   string `json:"state"`
	Country string `json:"country"`
}

func (r response) isOcean() bool {
	return r.Address == nil ||
		strings.Contains(r.DisplayName, "Ocean") ||
		strings.Contains(r.DisplayName, "Sea") ||
		r.Error != ""
}

func (r response) toLocation() domain.LocationInfo {
	if r.isOcean() {
		return domain.LocationInfo{Type: domain.LocationOcean, Name: "Ocean"}
	}

	country := r.Address.Country
	if country == "" {
		country = "Land"
	}
	place := firstNonEmpty(r.Address.City, r.Address.Town, r.Address.Village, r.Address.County, r.Address.State)

	name := country
	if place != "" {
		name = place + ", " + country
	}
	return domain.LocationInfo{
		Type:    domain.LocationLand,
		Name:    name,
		Country: country,
		City:    place,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
