// Package orbit computes planar Kepler-orbit positions relative to the focus
// occupied by the central body.
//
// The solver is deliberately a fixed-cost approximation: Kepler's equation is
// solved by exactly KeplerIterations rounds of fixed-point substitution, so the
// same inputs always reproduce the same outputs bit for bit.
package orbit

import (
	"errors"
	"fmt"
	"math"
)

// KeplerIterations is the number of fixed-point rounds used to solve
// Kepler's equation. There is no convergence check.
const KeplerIterations = 10

// Elements holds the fixed orbital elements of a body.
type Elements struct {
	SemiMajorAxis      float64 `json:"semi_major_axis"`
	Eccentricity       float64 `json:"eccentricity"`
	MeanAnomalyAtEpoch float64 `json:"mean_anomaly_at_epoch"` // radians at simulation time 0
	Period             float64 `json:"period"`                // time units per revolution
}

// Point is a planar position relative to the focus.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Norm returns the distance of p from the focus.
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Validate reports whether the elements describe a bound elliptical orbit.
func (e Elements) Validate() error {
	var errs []error
	if !(e.SemiMajorAxis > 0) || math.IsInf(e.SemiMajorAxis, 0) {
		errs = append(errs, fmt.Errorf("semi-major axis must be positive, got %v", e.SemiMajorAxis))
	}
	if !(e.Eccentricity >= 0 && e.Eccentricity < 1) {
		errs = append(errs, fmt.Errorf("eccentricity must be in [0, 1), got %v", e.Eccentricity))
	}
	if !(e.Period > 0) || math.IsInf(e.Period, 0) {
		errs = append(errs, fmt.Errorf("period must be positive, got %v", e.Period))
	}
	if math.IsNaN(e.MeanAnomalyAtEpoch) || math.IsInf(e.MeanAnomalyAtEpoch, 0) {
		errs = append(errs, fmt.Errorf("mean anomaly at epoch must be finite, got %v", e.MeanAnomalyAtEpoch))
	}
	return errors.Join(errs...)
}

// MeanMotion returns the mean motion in radians per time unit.
func (e Elements) MeanMotion() float64 {
	return 2 * math.Pi / e.Period
}

// MeanAnomaly returns the mean anomaly at simTime. The result is not wrapped
// into [0, 2π).
func MeanAnomaly(el Elements, simTime, speed float64) float64 {
	return el.MeanAnomalyAtEpoch + el.MeanMotion()*simTime*speed
}

// EccentricAnomaly solves E = M + e·sin(E) by KeplerIterations rounds of
// fixed-point substitution seeded at E = M.
func EccentricAnomaly(meanAnomaly, eccentricity float64) float64 {
	E := meanAnomaly
	for i := 0; i < KeplerIterations; i++ {
		E = meanAnomaly + eccentricity*math.Sin(E)
	}
	return E
}

// TrueAnomaly converts an eccentric anomaly to the true anomaly using the
// half-angle relation in atan2 form, which has no singularity at E = π.
func TrueAnomaly(eccentricAnomaly, eccentricity float64) float64 {
	half := eccentricAnomaly / 2
	return 2 * math.Atan2(
		math.Sqrt(1+eccentricity)*math.Sin(half),
		math.Sqrt(1-eccentricity)*math.Cos(half),
	)
}

// Radius returns the distance from the focus for the given eccentric anomaly.
func Radius(semiMajorAxis, eccentricity, eccentricAnomaly float64) float64 {
	return semiMajorAxis * (1 - eccentricity*math.Cos(eccentricAnomaly))
}

// Compute returns the position of a body relative to the focus and its true
// anomaly at simTime. speed scales how fast simTime advances the orbital phase.
//
// Compute does not validate el; results for elements outside the domain
// accepted by Validate are unspecified.
func Compute(el Elements, simTime, speed float64) (Point, float64) {
	M := MeanAnomaly(el, simTime, speed)
	E := EccentricAnomaly(M, el.Eccentricity)
	nu := TrueAnomaly(E, el.Eccentricity)
	r := Radius(el.SemiMajorAxis, el.Eccentricity, E)

	return Point{X: r * math.Cos(nu), Y: r * math.Sin(nu)}, nu
}
