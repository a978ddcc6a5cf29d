package orbit

import (
	"math"
	"testing"

	"github.com/soniakeys/meeus/v3/kepler"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/floats/scalar"
)

var earth = Elements{SemiMajorAxis: 150, Eccentricity: 0.017, MeanAnomalyAtEpoch: math.Pi, Period: 365}

// TestComputeEarthAtEpoch checks the reference case: an Earth-like orbit at
// t=0 starts at aphelion on the negative x axis.
func TestComputeEarthAtEpoch(t *testing.T) {
	pos, nu := Compute(earth, 0, 1)

	if !scalar.EqualWithinAbs(pos.X, -152.55, 1e-9) {
		t.Errorf("x = %.12f, want -152.55", pos.X)
	}
	if !scalar.EqualWithinAbs(pos.Y, 0, 1e-9) {
		t.Errorf("y = %.12f, want 0", pos.Y)
	}
	if !scalar.EqualWithinAbs(math.Abs(nu), math.Pi, 1e-9) {
		t.Errorf("true anomaly = %v, want ±π", nu)
	}
	if !scalar.EqualWithinAbs(pos.Norm(), 152.55, 1e-9) {
		t.Errorf("r = %v, want 152.55", pos.Norm())
	}
}

// TestComputeCircular verifies that a circular orbit keeps r == a.
func TestComputeCircular(t *testing.T) {
	el := Elements{SemiMajorAxis: 97.5, Eccentricity: 0, MeanAnomalyAtEpoch: 0.3, Period: 88}

	for _, simTime := range []float64{0, 1, 17.25, 88, 1e3, 1e6, 1.7e9} {
		for _, speed := range []float64{0.125, 1, 16} {
			pos, _ := Compute(el, simTime, speed)
			if !scalar.EqualWithinAbs(pos.Norm(), el.SemiMajorAxis, 1e-9) {
				t.Errorf("t=%v speed=%v: r = %.12f, want %v", simTime, speed, pos.Norm(), el.SemiMajorAxis)
			}
		}
	}
}

// TestComputePeriodic verifies the position repeats after one period of
// simulation time at a fixed speed.
func TestComputePeriodic(t *testing.T) {
	bodies := []Elements{
		{SemiMajorAxis: 58.5, Eccentricity: 0.205, MeanAnomalyAtEpoch: 0, Period: 88},
		earth,
		{SemiMajorAxis: 228, Eccentricity: 0.093, MeanAnomalyAtEpoch: 3 * math.Pi / 2, Period: 687},
	}

	for _, el := range bodies {
		for _, speed := range []float64{0.25, 1, 8} {
			for _, t0 := range []float64{0, 3.5, 120} {
				a, _ := Compute(el, t0, speed)
				b, _ := Compute(el, t0+el.Period/speed, speed)
				if !scalar.EqualWithinAbs(a.X, b.X, 1e-6) || !scalar.EqualWithinAbs(a.Y, b.Y, 1e-6) {
					t.Errorf("e=%v speed=%v t0=%v: %+v != %+v", el.Eccentricity, speed, t0, a, b)
				}
			}
		}
	}
}

// TestComputeDeterministic verifies identical inputs give identical outputs.
func TestComputeDeterministic(t *testing.T) {
	el := Elements{SemiMajorAxis: 375, Eccentricity: 0.048, MeanAnomalyAtEpoch: 0, Period: 4333}
	p1, nu1 := Compute(el, 1234.5678, 2)
	p2, nu2 := Compute(el, 1234.5678, 2)
	if p1 != p2 || nu1 != nu2 {
		t.Fatalf("non-deterministic output: %+v/%v vs %+v/%v", p1, nu1, p2, nu2)
	}
}

// TestEccentricAnomalyFixedBudget verifies the solver runs exactly
// KeplerIterations rounds even when it has not converged.
func TestEccentricAnomalyFixedBudget(t *testing.T) {
	const M, e = 0.4, 0.9

	E := M
	for i := 0; i < KeplerIterations; i++ {
		E = M + e*math.Sin(E)
	}
	if got := EccentricAnomaly(M, e); got != E {
		t.Fatalf("EccentricAnomaly = %v, want %v", got, E)
	}

	// One more round still moves the estimate at this eccentricity, so an
	// early exit or a tolerance-based solver would disagree.
	if next := M + e*math.Sin(E); next == E {
		t.Fatalf("test case converged within %d iterations; pick a harder case", KeplerIterations)
	}
}

// TestEccentricAnomalyMatchesReferenceSolver cross-checks the fixed-point
// solver against an independent Kepler solver at low eccentricity, where ten
// rounds converge to machine precision.
func TestEccentricAnomalyMatchesReferenceSolver(t *testing.T) {
	for _, e := range []float64{0, 0.007, 0.017, 0.048, 0.093} {
		for i := 0; i < 36; i++ {
			M := float64(i) * math.Pi / 18
			got := EccentricAnomaly(M, e)
			want := kepler.Kepler3(e, unit.Angle(M)).Rad()

			// Compare on the unit circle: the reference may wrap its result.
			if !scalar.EqualWithinAbs(math.Sin(got), math.Sin(want), 1e-8) ||
				!scalar.EqualWithinAbs(math.Cos(got), math.Cos(want), 1e-8) {
				t.Errorf("e=%v M=%v: E = %v, reference %v", e, M, got, want)
			}

			r := Radius(100, e, got)
			if ref := kepler.Radius(unit.Angle(want), e, 100); !scalar.EqualWithinAbs(r, ref, 1e-6) {
				t.Errorf("e=%v M=%v: r = %v, reference %v", e, M, r, ref)
			}
		}
	}
}

// TestTrueAnomalyHalfAngle verifies the atan2 form at quadrant boundaries.
func TestTrueAnomalyHalfAngle(t *testing.T) {
	tests := []struct {
		name string
		E    float64
		e    float64
		want float64
	}{
		{"periapsis", 0, 0.3, 0},
		{"apoapsis", math.Pi, 0.3, math.Pi},
		{"circular quarter", math.Pi / 2, 0, math.Pi / 2},
		{"negative quarter", -math.Pi / 2, 0, -math.Pi / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrueAnomaly(tt.E, tt.e)
			if !scalar.EqualWithinAbs(got, tt.want, 1e-12) {
				t.Errorf("TrueAnomaly(%v, %v) = %v, want %v", tt.E, tt.e, got, tt.want)
			}
		})
	}

	// For an ellipse the body is ahead of the eccentric anomaly on the way out.
	if nu := TrueAnomaly(math.Pi/2, 0.5); nu <= math.Pi/2 {
		t.Errorf("TrueAnomaly(π/2, 0.5) = %v, want > π/2", nu)
	}
}

// TestMeanAnomalyUnwrapped verifies no phase wrapping is applied.
func TestMeanAnomalyUnwrapped(t *testing.T) {
	el := Elements{SemiMajorAxis: 1, Eccentricity: 0, MeanAnomalyAtEpoch: 1, Period: 1}
	got := MeanAnomaly(el, 10, 1)
	want := 1 + 20*math.Pi
	if !scalar.EqualWithinAbs(got, want, 1e-9) {
		t.Errorf("MeanAnomaly = %v, want %v", got, want)
	}
}

func TestElementsValidate(t *testing.T) {
	tests := []struct {
		name    string
		el      Elements
		wantErr bool
	}{
		{"earth", earth, false},
		{"circular", Elements{SemiMajorAxis: 1, Eccentricity: 0, Period: 1}, false},
		{"zero axis", Elements{SemiMajorAxis: 0, Eccentricity: 0.1, Period: 1}, true},
		{"parabolic", Elements{SemiMajorAxis: 1, Eccentricity: 1, Period: 1}, true},
		{"negative eccentricity", Elements{SemiMajorAxis: 1, Eccentricity: -0.1, Period: 1}, true},
		{"zero period", Elements{SemiMajorAxis: 1, Eccentricity: 0.1, Period: 0}, true},
		{"nan anomaly", Elements{SemiMajorAxis: 1, Eccentricity: 0.1, Period: 1, MeanAnomalyAtEpoch: math.NaN()}, true},
		{"nan axis", Elements{SemiMajorAxis: math.NaN(), Eccentricity: 0.1, Period: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.el.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func BenchmarkCompute(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Compute(earth, float64(i), 1)
	}
}
