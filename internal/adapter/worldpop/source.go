// Package worldpop implements a raster population source backed by the
// WorldPop statistics service. Queries are asynchronous: a circular polygon
// is submitted as a task, then the task is polled until it finishes.
package worldpop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

const providerName = "WorldPop"

// Options configures a Source. Zero values fall back to the public service
// defaults.
type Options struct {
	BaseURL      string
	Dataset      string
	Year         int
	MaxRadiusKm  float64
	PollInterval time.Duration
	MaxAttempts  int
	Timeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.worldpop.org/v1"
	}
	if o.Dataset == "" {
		o.Dataset = "wpgppop"
	}
	if o.Year == 0 {
		o.Year = 2020
	}
	if o.MaxRadiusKm <= 0 {
		o.MaxRadiusKm = 178
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 30
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	return o
}

// Source implements domain.PopulationSource.
type Source struct {
	opts       Options
	httpClient *http.Client
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewSource creates a WorldPop population source. The clock drives the poll
// interval.
func NewSource(opts Options, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Source {
	opts = opts.withDefaults()
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Source{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

func (s *Source) Name() string { return providerName }

func (s *Source) MaxRadiusKm() float64 { return s.opts.MaxRadiusKm }

// sourceLabel is the provenance string attached to every estimate.
func (s *Source) sourceLabel() string {
	return fmt.Sprintf("WorldPop (%d)", s.opts.Year)
}

// Population submits the query polygon and waits for the task result. A
// radius above the provider cap fails before any network call. Task creation
// is bounded by Timeout and the wait by MaxAttempts x PollInterval.
func (s *Source) Population(ctx context.Context, q domain.PopulationQuery) (domain.PopulationEstimate, error) {
	if q.RadiusKm > s.opts.MaxRadiusKm {
		s.record(domain.KindPrecondition)
		return domain.PopulationEstimate{}, domain.NewLookupError(domain.KindPrecondition, providerName,
			fmt.Sprintf("Radius (%.1f km) exceeds WorldPop limit (%g km).", q.RadiusKm, s.opts.MaxRadiusKm), nil)
	}

	domain.ReportProgress(ctx, fmt.Sprintf("Sending impact polygon (Radius %.0f km) to WorldPop...", q.RadiusKm))

	taskID, err := s.createTask(ctx, q)
	if err != nil {
		s.record(domain.KindOf(err))
		return domain.PopulationEstimate{}, err
	}
	s.logger.Debug("worldpop task created", "task_id", taskID, "radius_km", q.RadiusKm)

	t := newTask(taskID)
	total, err := s.awaitWithin(ctx, t)
	s.metrics.PollAttempts.Observe(float64(t.attempts))
	if err != nil {
		s.record(domain.KindOf(err))
		return domain.PopulationEstimate{}, err
	}

	if total < 0 {
		total = 0
	}
	s.record("success")
	return domain.PopulationEstimate{
		Population: int64(math.Round(total)),
		Source:     s.sourceLabel(),
		Sampled:    true,
	}, nil
}

func (s *Source) record(outcome domain.ErrorKind) {
	s.metrics.PopulationRequests.WithLabelValues(providerName, string(outcome)).Inc()
}

// createURL builds the stats request. Parameters keep the order the service
// documents: dataset, year, geojson.
func (s *Source) createURL(q domain.PopulationQuery) (string, error) {
	fc := domain.ImpactFeatureCollection(q.Lat, q.Lon, q.RadiusKm, 0)
	geojson, err := json.Marshal(fc)
	if err != nil {
		return "", fmt.Errorf("encode query polygon: %w", err)
	}
	return fmt.Sprintf("%s/services/stats?dataset=%s&year=%d&geojson=%s",
		s.opts.BaseURL, url.QueryEscape(s.opts.Dataset), s.opts.Year, url.QueryEscape(string(geojson))), nil
}

func (s *Source) createTask(ctx context.Context, q domain.PopulationQuery) (string, error) {
	u, err := s.createURL(q)
	if err != nil {
		return "", err
	}

	var body createResponse
	status, err := s.getJSON(ctx, u, &body)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", domain.NewLookupError(domain.KindProvider, providerName,
			fmt.Sprintf("Failed to create WorldPop task: Status %d", status), nil)
	}
	if isTruthy(body.Error) || body.TaskID == "" {
		msg := body.ErrorMessage
		if msg == "" {
			msg = "No Task ID"
		}
		return "", domain.NewLookupError(domain.KindProvider, providerName,
			"Error creating WorldPop task: "+msg, nil)
	}
	return body.TaskID, nil
}

func (s *Source) fetchStatus(ctx context.Context, taskID string) (taskResponse, error) {
	var body taskResponse
	status, err := s.getJSON(ctx, s.opts.BaseURL+"/tasks/"+url.PathEscape(taskID), &body)
	if err != nil {
		return body, err
	}
	if status != http.StatusOK {
		return body, domain.NewLookupError(domain.KindProvider, providerName,
			fmt.Sprintf("WorldPop task status request failed: Status %d", status), nil)
	}
	return body, nil
}

// getJSON performs a GET and decodes a 200 response into v. Non-200 statuses
// are returned without decoding.
func (s *Source) getJSON(ctx context.Context, u string, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, domain.NewLookupError(domain.KindTimeout, providerName, "Communication with WorldPop failed", ctx.Err())
		}
		return 0, domain.NewLookupError(domain.KindTransport, providerName, "Communication with WorldPop failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, domain.NewLookupError(domain.KindTransport, providerName, "read WorldPop response", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return 0, domain.NewLookupError(domain.KindMalformedResponse, providerName, "decode WorldPop response", err)
	}
	return resp.StatusCode, nil
}

// WorldPop API response types.

type createResponse struct {
	Error        json.RawMessage `json:"error"`
	ErrorMessage string          `json:"error_message"`
	Status       string          `json:"status"`
	TaskID       string          `json:"taskid"`
}

type taskResponse struct {
	Status       string          `json:"status"`
	Error        json.RawMessage `json:"error"`
	ErrorMessage string          `json:"error_message"`
	Data         *struct {
		TotalPopulation *float64 `json:"total_population"`
	} `json:"data"`
}

// isTruthy reports whether a loosely typed JSON flag is set.
func isTruthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", "false", "0", `""`:
		return false
	default:
		return true
	}
}
