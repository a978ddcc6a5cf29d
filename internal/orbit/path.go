package orbit

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Ellipse describes the closed path of an orbit in focus-relative coordinates.
type Ellipse struct {
	Center       Point   `json:"center"`
	SemiMajor    float64 `json:"semi_major"`
	SemiMinor    float64 `json:"semi_minor"`
	FocalOffset  float64 `json:"focal_offset"`
	Periapsis    float64 `json:"periapsis"`
	Apoapsis     float64 `json:"apoapsis"`
	Eccentricity float64 `json:"eccentricity"`
}

// PathOf returns the ellipse traced by a body with the given elements. The
// focus sits at the origin and periapsis lies on the positive x axis, so the
// centre is offset by a·e towards negative x.
func PathOf(el Elements) Ellipse {
	a, e := el.SemiMajorAxis, el.Eccentricity
	c := a * e
	return Ellipse{
		Center:       Point{X: -c, Y: 0},
		SemiMajor:    a,
		SemiMinor:    a * math.Sqrt(1-e*e),
		FocalOffset:  c,
		Periapsis:    a * (1 - e),
		Apoapsis:     a * (1 + e),
		Eccentricity: e,
	}
}

// Sample returns n points along the ellipse, evenly spaced in eccentric
// anomaly from 0 to 2π inclusive, so the first and last points coincide.
// It returns nil when n < 2.
func (el Ellipse) Sample(n int) []Point {
	if n < 2 {
		return nil
	}
	anomalies := floats.Span(make([]float64, n), 0, 2*math.Pi)

	points := make([]Point, n)
	for i, E := range anomalies {
		points[i] = Point{
			X: el.Center.X + el.SemiMajor*math.Cos(E),
			Y: el.Center.Y + el.SemiMinor*math.Sin(E),
		}
	}
	return points
}
