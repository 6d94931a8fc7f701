package worldpop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

const testTaskID = "8f2c1d9e-0000-4000-8000-000000000000"

// fakeWorldPop serves the stats and task endpoints. Each poll returns the
// next entry of statuses after pollDelay; the last entry repeats.
type fakeWorldPop struct {
	createStatus int
	createBody   string
	statuses     []string
	pollDelay    time.Duration

	mu        sync.Mutex
	createURL *url.URL
	polls     atomic.Int32
}

func (f *fakeWorldPop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/services/stats":
		f.mu.Lock()
		f.createURL = r.URL
		f.mu.Unlock()
		if f.createStatus != 0 && f.createStatus != http.StatusOK {
			w.WriteHeader(f.createStatus)
			return
		}
		body := f.createBody
		if body == "" {
			body = fmt.Sprintf(`{"error":false,"status":"created","error_message":null,"taskid":%q}`, testTaskID)
		}
		_, _ = w.Write([]byte(body))
	case strings.HasPrefix(r.URL.Path, "/tasks/"):
		if f.pollDelay > 0 {
			select {
			case <-time.After(f.pollDelay):
			case <-r.Context().Done():
				return
			}
		}
		n := int(f.polls.Add(1)) - 1
		if n >= len(f.statuses) {
			n = len(f.statuses) - 1
		}
		_, _ = w.Write([]byte(f.statuses[n]))
	default:
		http.NotFound(w, r)
	}
}

func newTestSource(t *testing.T, fake *fakeWorldPop, opts Options) *Source {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	opts.BaseURL = srv.URL
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	s := NewSource(opts, clockwork.NewRealClock(), observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(s.httpClient.CloseIdleConnections)
	return s
}

const (
	runningBody  = `{"status":"started","error":false,"data":null}`
	finishedBody = `{"status":"finished","error":false,"error_message":null,"data":{"total_population":1234567.6}}`
)

func TestSource_Population_Success(t *testing.T) {
	fake := &fakeWorldPop{statuses: []string{runningBody, runningBody, finishedBody}}
	s := newTestSource(t, fake, Options{})

	var progress []string
	ctx := domain.WithProgress(context.Background(), func(msg string) { progress = append(progress, msg) })

	est, err := s.Population(ctx, domain.PopulationQuery{Lat: 30.2672, Lon: -97.7431, RadiusKm: 44.8})
	require.NoError(t, err)

	assert.Equal(t, int64(1234568), est.Population)
	assert.Equal(t, "WorldPop (2020)", est.Source)
	assert.True(t, est.Sampled)
	assert.Equal(t, int32(3), fake.polls.Load())

	assert.Equal(t, []string{
		"Sending impact polygon (Radius 45 km) to WorldPop...",
		"Monitoring Task 8f2c... (Attempt 1/30)...",
		"Monitoring Task 8f2c... (Attempt 2/30)...",
		"Monitoring Task 8f2c... (Attempt 3/30)...",
	}, progress)

	assert.InDelta(t, 1, testutil.ToFloat64(s.metrics.PopulationRequests.WithLabelValues("WorldPop", "success")), 0)
}

func TestSource_Population_CreateQuery(t *testing.T) {
	fake := &fakeWorldPop{statuses: []string{finishedBody}}
	s := newTestSource(t, fake, Options{})

	_, err := s.Population(context.Background(), domain.PopulationQuery{Lat: 10, Lon: 20, RadiusKm: 25})
	require.NoError(t, err)

	fake.mu.Lock()
	u := fake.createURL
	fake.mu.Unlock()
	require.NotNil(t, u)

	assert.True(t, strings.HasPrefix(u.RawQuery, "dataset=wpgppop&year=2020&geojson="), u.RawQuery)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string        `json:"type"`
				Coordinates [][][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(u.Query().Get("geojson")), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Polygon", fc.Features[0].Geometry.Type)
	assert.Len(t, fc.Features[0].Geometry.Coordinates[0], 33)
}

func TestSource_Population_RadiusPrecondition(t *testing.T) {
	fake := &fakeWorldPop{statuses: []string{finishedBody}}
	s := newTestSource(t, fake, Options{})

	_, err := s.Population(context.Background(), domain.PopulationQuery{RadiusKm: 178.5})
	require.Error(t, err)
	assert.Equal(t, domain.KindPrecondition, domain.KindOf(err))
	assert.Equal(t, "Radius (178.5 km) exceeds WorldPop limit (178 km).", err.Error())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Nil(t, fake.createURL, "no network call before the precondition check")
	assert.Equal(t, int32(0), fake.polls.Load())
}

func TestSource_Population_RadiusAtCapIsAllowed(t *testing.T) {
	fake := &fakeWorldPop{statuses: []string{finishedBody}}
	s := newTestSource(t, fake, Options{})

	_, err := s.Population(context.Background(), domain.PopulationQuery{RadiusKm: 178})
	require.NoError(t, err)
}

func TestSource_Population_CreateFailures(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeWorldPop
		wantMsg string
	}{
		{
			name:    "http status",
			fake:    &fakeWorldPop{createStatus: http.StatusBadGateway},
			wantMsg: "Failed to create WorldPop task: Status 502",
		},
		{
			name:    "error payload",
			fake:    &fakeWorldPop{createBody: `{"error":true,"error_message":"Polygon area too large"}`},
			wantMsg: "Error creating WorldPop task: Polygon area too large",
		},
		{
			name:    "missing task id",
			fake:    &fakeWorldPop{createBody: `{"error":false,"status":"created"}`},
			wantMsg: "Error creating WorldPop task: No Task ID",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fake.statuses = []string{finishedBody}
			s := newTestSource(t, tt.fake, Options{})

			_, err := s.Population(context.Background(), domain.PopulationQuery{RadiusKm: 10})
			require.Error(t, err)
			assert.Equal(t, domain.KindProvider, domain.KindOf(err))
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, int32(0), tt.fake.polls.Load())
		})
	}
}

func TestSource_Population_TaskFailures(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		wantKind domain.ErrorKind
		wantMsg  string
	}{
		{
			name:     "failed with message",
			statuses: []string{runningBody, `{"status":"failed","error":true,"error_message":"Raster unavailable"}`},
			wantKind: domain.KindProvider,
			wantMsg:  "Raster unavailable",
		},
		{
			name:     "failed without message",
			statuses: []string{`{"status":"failed","error":true}`},
			wantKind: domain.KindProvider,
			wantMsg:  "WorldPop task failed.",
		},
		{
			name:     "finished without population",
			statuses: []string{`{"status":"finished","error":false,"data":{}}`},
			wantKind: domain.KindMalformedResponse,
			wantMsg:  "WorldPop result finished, but no population data.",
		},
		{
			name:     "finished with string population",
			statuses: []string{`{"status":"finished","data":{"total_population":"12"}}`},
			wantKind: domain.KindMalformedResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSource(t, &fakeWorldPop{statuses: tt.statuses}, Options{})

			_, err := s.Population(context.Background(), domain.PopulationQuery{RadiusKm: 10})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}
}

func TestSource_Population_Timeout(t *testing.T) {
	fake := &fakeWorldPop{statuses: []string{runningBody}}
	s := newTestSource(t, fake, Options{MaxAttempts: 5})

	_, err := s.Population(context.Background(), domain.PopulationQuery{RadiusKm: 10})
	require.Error(t, err)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
	assert.Equal(t, "Timeout exceeded while waiting for WorldPop task.", err.Error())
	assert.Equal(t, int32(5), fake.polls.Load())
}

func TestSource_Population_SlowStatusEndpointStopsAtPollBudget(t *testing.T) {
	fake := &fakeWorldPop{statuses: []string{runningBody}, pollDelay: 400 * time.Millisecond}
	opts := Options{MaxAttempts: 5, PollInterval: 10 * time.Millisecond, Timeout: 500 * time.Millisecond}
	s := newTestSource(t, fake, opts)
	require.Equal(t, 550*time.Millisecond, s.opts.pollBudget())

	start := time.Now()
	_, err := s.Population(context.Background(), domain.PopulationQuery{RadiusKm: 10})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
	assert.Equal(t, "Timeout exceeded while waiting for WorldPop task.", err.Error())
	// Five full attempts would take over two seconds.
	assert.Less(t, elapsed, 1500*time.Millisecond)
	assert.Less(t, fake.polls.Load(), int32(5))
	assert.InDelta(t, 1, testutil.ToFloat64(s.metrics.PopulationRequests.WithLabelValues("WorldPop", "timeout")), 0)
}

func TestOptions_DefaultPollBudget(t *testing.T) {
	assert.Equal(t, 45*time.Second, Options{}.withDefaults().pollBudget())
}

func TestSource_Population_CancelDuringPoll(t *testing.T) {
	fake := &fakeWorldPop{statuses: []string{runningBody}}
	s := newTestSource(t, fake, Options{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	ctx = domain.WithProgress(ctx, func(msg string) {
		if strings.HasPrefix(msg, "Monitoring") {
			cancel()
		}
	})

	_, err := s.Population(ctx, domain.PopulationQuery{RadiusKm: 10})
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), fake.polls.Load())
}

func TestSource_Population_WaitsOneIntervalBeforeEachPoll(t *testing.T) {
	fake := &fakeWorldPop{statuses: []string{runningBody, finishedBody}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	s := NewSource(Options{BaseURL: srv.URL}, clock, observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer s.httpClient.CloseIdleConnections()

	type result struct {
		est domain.PopulationEstimate
		err error
	}
	done := make(chan result, 1)
	go func() {
		est, err := s.Population(context.Background(), domain.PopulationQuery{RadiusKm: 10})
		done <- result{est, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The poll budget timer plus one interval timer per attempt.
	for i := 1; i <= 2; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 2))
		assert.Equal(t, int32(i-1), fake.polls.Load(), "poll %d must wait for the interval", i)
		clock.Advance(time.Second)
	}

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, int64(1234568), r.est.Population)
	case <-ctx.Done():
		t.Fatal("population lookup did not finish")
	}
	assert.Equal(t, int32(2), fake.polls.Load())
}
