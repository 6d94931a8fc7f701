package impact

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrSuperseded is returned to a simulation whose result was discarded
	// because a newer simulation started in the same session.
	ErrSuperseded = errors.New("simulation superseded by a newer request")
	// ErrNoSelection is returned by Simulate when no asteroid is selected.
	ErrNoSelection = errors.New("no asteroid selected")
)

// Simulator runs one impact simulation.
type Simulator interface {
	SimulateImpactAt(ctx context.Context, asteroid domain.Asteroid, lat, lon float64) (*domain.ImpactReport, error)
}

// Status is a snapshot of a session's most recent run.
type Status struct {
	Stage    Stage  `json:"stage"`
	Progress string `json:"progress,omitempty"`
}

// Session holds one user's selection and latest report. At most one
// simulation is in flight per session; starting another cancels the pending
// one and discards its result.
type Session struct {
	sim Simulator

	mu       sync.Mutex
	selected *domain.Asteroid
	last     *domain.ImpactReport
	status   Status
	seq      uint64
	cancel   context.CancelFunc
	lastUsed time.Time
}

// NewSession creates an idle session.
func NewSession(sim Simulator) *Session {
	return &Session{sim: sim, status: Status{Stage: StageIdle}}
}

// Select makes a the asteroid used by Simulate.
func (s *Session) Select(a domain.Asteroid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = &a
}

// Selected returns the selected asteroid, if any.
func (s *Session) Selected() (domain.Asteroid, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return domain.Asteroid{}, false
	}
	return *s.selected, true
}

// Simulate runs the selected asteroid against (lat, lon).
func (s *Session) Simulate(ctx context.Context, lat, lon float64) (*domain.ImpactReport, error) {
	a, ok := s.Selected()
	if !ok {
		return nil, ErrNoSelection
	}
	return s.SimulateAsteroid(ctx, a, lat, lon)
}

// SimulateAsteroid selects a and simulates its impact at (lat, lon). The
// previous report is replaced only if this run is still the latest when it
// completes.
func (s *Session) SimulateAsteroid(ctx context.Context, a domain.Asteroid, lat, lon float64) (*domain.ImpactReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.selected = &a
	s.status = Status{Stage: StageIdle}
	s.mu.Unlock()

	ctx = WithStageObserver(ctx, func(stage Stage) {
		s.update(seq, func(st *Status) { st.Stage = stage })
	})
	ctx = domain.WithProgress(ctx, func(msg string) {
		s.update(seq, func(st *Status) { st.Progress = msg })
	})

	report, err := s.sim.SimulateImpactAt(ctx, a, lat, lon)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return nil, ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		return nil, err
	}
	s.last = report
	return report, nil
}

func (s *Session) update(seq uint64, fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == s.seq {
		fn(&s.status)
	}
}

// LastReport returns the most recent completed report, if any.
func (s *Session) LastReport() (*domain.ImpactReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last != nil
}

// Status returns the stage and latest progress message of the current run.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close cancels any in-flight simulation.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Sessions is a registry of sessions keyed by client-supplied ID.
type Sessions struct {
	sim   Simulator
	clock clockwork.Clock

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates an empty registry.
func NewSessions(sim Simulator, clock clockwork.Clock) *Sessions {
	return &Sessions{sim: sim, clock: clock, sessions: map[string]*Session{}}
}

// Get returns the session for id, creating it on first use.
func (r *Sessions) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		s = NewSession(r.sim)
		r.sessions[id] = s
	}
	s.mu.Lock()
	s.lastUsed = r.clock.Now()
	s.mu.Unlock()
	return s
}

// Lookup returns the session for id without creating it.
func (r *Sessions) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Evict closes and removes sessions unused for longer than maxIdle.
// It returns the number removed.
func (r *Sessions) Evict(maxIdle time.Duration) int {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, s := range r.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastUsed)
		s.mu.Unlock()
		if idle > maxIdle {
			s.Close()
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
