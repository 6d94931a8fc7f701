package domain

import (
	"context"
	"errors"
	"fmt"
)

// PopulationQuery asks for the population within RadiusKm of a point.
// Country is an optional hint taken from location classification.
type PopulationQuery struct {
	Lat      float64
	Lon      float64
	RadiusKm float64
	Country  string
}

// AreaKm2 is the disc area of the query.
func (q PopulationQuery) AreaKm2() float64 {
	return CircleAreaKm2(q.RadiusKm)
}

// PopulationEstimate is a provider's answer to a PopulationQuery.
//
// Sampled is true when Population is a measured figure for the query area
// rather than an extrapolation from a density table. DensityPerKm2 is set
// by providers that derive their figure from a density.
type PopulationEstimate struct {
	Population    int64   `json:"population"`
	DensityPerKm2 float64 `json:"density_per_km2,omitempty"`
	Source        string  `json:"source"`
	Sampled       bool    `json:"sampled"`
}

// PopulationSource resolves population within a radius of a point.
type PopulationSource interface {
	Name() string
	// MaxRadiusKm is the largest radius the provider accepts.
	MaxRadiusKm() float64
	Population(ctx context.Context, q PopulationQuery) (PopulationEstimate, error)
}

// ErrorKind categorizes population and classification lookup failures.
type ErrorKind string

const (
	KindPrecondition      ErrorKind = "precondition"
	KindTransport         ErrorKind = "transport"
	KindProvider          ErrorKind = "provider"
	KindTimeout           ErrorKind = "timeout"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindUnknown           ErrorKind = "unknown"
)

// LookupError is the typed failure returned by external lookups.
type LookupError struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LookupError) Unwrap() error { return e.Err }

// NewLookupError builds a LookupError for a provider.
func NewLookupError(kind ErrorKind, provider, msg string, err error) *LookupError {
	return &LookupError{Kind: kind, Provider: provider, Message: msg, Err: err}
}

// KindOf returns the ErrorKind of err, or KindUnknown if err carries none.
func KindOf(err error) ErrorKind {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}
