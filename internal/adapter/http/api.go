package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/couchcryptid/asteroid-impact-service/internal/catalog"
	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/impact"
)

// SessionHeader carries the client's simulation session ID. Requests without
// it get a fresh, unregistered session.
const SessionHeader = "X-Session-ID"

// Catalog is the read side of the asteroid catalog.
type Catalog interface {
	List(f domain.AsteroidFilter) []domain.AsteroidSummary
	Stats(f domain.AsteroidFilter) domain.RiskStats
	Get(id string) (domain.Asteroid, error)
}

// API serves the catalog and simulation routes.
type API struct {
	catalog  Catalog
	sessions *impact.Sessions
	sim      impact.Simulator
	logger   *slog.Logger
}

// NewAPI creates the API handlers.
func NewAPI(cat Catalog, sessions *impact.Sessions, sim impact.Simulator, logger *slog.Logger) *API {
	return &API{catalog: cat, sessions: sessions, sim: sim, logger: logger}
}

type asteroidList struct {
	Asteroids []domain.AsteroidSummary `json:"asteroids"`
	Stats     domain.RiskStats         `json:"stats"`
}

func (a *API) listAsteroids(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, asteroidList{
		Asteroids: a.catalog.List(f),
		Stats:     a.catalog.Stats(f),
	})
}

func parseFilter(r *http.Request) (domain.AsteroidFilter, error) {
	q := r.URL.Query()
	f := domain.AsteroidFilter{Name: q.Get("name")}

	switch risk := domain.Risk(q.Get("risk")); risk {
	case "", domain.RiskHigh, domain.RiskMedium, domain.RiskLow:
		f.Risk = risk
	default:
		return f, errors.New("invalid risk: must be high, medium, or low")
	}

	var err error
	if f.MaxDistanceKm, err = nonNegative(q.Get("max_distance_km"), "max_distance_km"); err != nil {
		return f, err
	}
	if f.MinDiameterKm, err = nonNegative(q.Get("min_diameter_km"), "min_diameter_km"); err != nil {
		return f, err
	}
	return f, nil
}

func nonNegative(s, name string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + name + ": must be a non-negative number")
	}
	return v, nil
}

func (a *API) getAsteroid(w http.ResponseWriter, r *http.Request) {
	ast, err := a.catalog.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, domain.Summarize(ast))
}

type simulationRequest struct {
	AsteroidID string   `json:"asteroid_id"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
}

func (a *API) simulate(w http.ResponseWriter, r *http.Request) {
	var req simulationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AsteroidID == "" || req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "asteroid_id, lat, and lon are required")
		return
	}

	ast, err := a.catalog.Get(req.AsteroidID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	session := impact.NewSession(a.sim)
	if id := r.Header.Get(SessionHeader); id != "" {
		session = a.sessions.Get(id)
	}

	report, err := session.SimulateAsteroid(r.Context(), ast, *req.Lat, *req.Lon)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			a.logger.Error("simulation failed", "asteroid_id", ast.ID, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func statusFor(err error) int {
	var coordErr *domain.CoordinateError
	switch {
	case errors.Is(err, domain.ErrInvalidAsteroid), errors.As(err, &coordErr):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, impact.ErrSuperseded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) session(w http.ResponseWriter, r *http.Request) (*impact.Session, bool) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		writeError(w, http.StatusBadRequest, SessionHeader+" header is required")
		return nil, false
	}
	s, ok := a.sessions.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return nil, false
	}
	return s, true
}

func (a *API) latestReport(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	report, ok := s.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no simulation has completed in this session")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}
