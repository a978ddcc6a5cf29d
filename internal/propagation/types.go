package propagation

import (
	"errors"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/orbit"
)

var (
	// ErrBudgetExceeded is returned when a request asks for more positions
	// than the configured sample budget.
	ErrBudgetExceeded = errors.New("ephemeris sample budget exceeded")

	// ErrNoBodies is returned when a request names no bodies.
	ErrNoBodies = errors.New("no bodies requested")

	// ErrInvalidRequest is returned for a malformed sample grid.
	ErrInvalidRequest = errors.New("invalid ephemeris request")
)

// Request describes an ephemeris: Count samples per body starting at Start,
// Step time units apart, at the given speed.
type Request struct {
	Bodies []string
	Start  float64
	Step   float64
	Count  int
	Speed  float64 // zero means 1
}

// Sample is one tabulated position.
type Sample struct {
	Time        float64     `json:"t"`
	Position    orbit.Point `json:"position"`
	TrueAnomaly float64     `json:"true_anomaly"`
	Radius      float64     `json:"radius"`
}

// Table is the ephemeris of a single body.
type Table struct {
	Body    string   `json:"body"`
	Speed   float64  `json:"speed"`
	Samples []Sample `json:"samples"`
}

// Config holds ephemeris configuration loaded from environment variables.
type Config struct {
	Workers    int // Worker pool size (default: runtime.NumCPU())
	MaxSamples int // Upper bound on positions per request (default: 100000)
}
