// Package tle reads NORAD two-line element sets and turns them into planar
// orbital elements, so Earth satellites can be animated by the same Kepler
// propagator as the planets.
package tle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// EarthMu is Earth's standard gravitational parameter in km³/s².
const EarthMu = 398600.4418

// Entry is a single satellite's two-line element set.
type Entry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// Mean holds the mean elements decoded from line 2 of a TLE.
type Mean struct {
	Eccentricity   float64 // unitless
	MeanAnomaly    float64 // radians at epoch
	MeanMotion     float64 // revolutions per day
	SemiMajorAxis  float64 // km, derived from MeanMotion
	PeriodMinutes  float64 // derived from MeanMotion
	InclinationDeg float64 // informational; the planar model ignores it
}

// MeanElements decodes the mean elements of e from its second line.
func MeanElements(e Entry) (Mean, error) {
	line2 := strings.TrimRight(e.Line2, " \r\n")
	if len(line2) < 63 {
		return Mean{}, fmt.Errorf("NORAD %d: line2 length %d, expected 69", e.NORADID, len(line2))
	}

	incl, err := field(line2, 8, 16)
	if err != nil {
		return Mean{}, fmt.Errorf("NORAD %d: inclination: %w", e.NORADID, err)
	}
	// The eccentricity field has an implied leading decimal point.
	ecc, err := field("."+strings.TrimSpace(line2[26:33]), 0, 8)
	if err != nil {
		return Mean{}, fmt.Errorf("NORAD %d: eccentricity: %w", e.NORADID, err)
	}
	ma, err := field(line2, 43, 51)
	if err != nil {
		return Mean{}, fmt.Errorf("NORAD %d: mean anomaly: %w", e.NORADID, err)
	}
	mm, err := field(line2, 52, 63)
	if err != nil {
		return Mean{}, fmt.Errorf("NORAD %d: mean motion: %w", e.NORADID, err)
	}
	if mm <= 0 {
		return Mean{}, fmt.Errorf("NORAD %d: mean motion must be positive, got %v", e.NORADID, mm)
	}

	n := mm * 2 * math.Pi / 86400 // rad/s
	return Mean{
		Eccentricity:   ecc,
		MeanAnomaly:    ma * math.Pi / 180,
		MeanMotion:     mm,
		SemiMajorAxis:  math.Cbrt(EarthMu / (n * n)),
		PeriodMinutes:  1440 / mm,
		InclinationDeg: incl,
	}, nil
}

func field(line string, from, to int) (float64, error) {
	if to > len(line) {
		to = len(line)
	}
	s := strings.TrimSpace(line[from:to])
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
