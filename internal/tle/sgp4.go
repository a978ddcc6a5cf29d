package tle

import (
	"fmt"
	"math"
	"strings"

	satellite "github.com/joshuaferrara/go-satellite"
)

// Validate initialises an SGP4 model for e and propagates it to its own epoch.
// Entries the model rejects, or that land at a non-physical radius, cannot be
// animated meaningfully and are reported as errors.
//
// Line formats are checked first because go-satellite calls log.Fatal on
// malformed input.
func Validate(e Entry) error {
	line1 := strings.TrimSpace(e.Line1)
	line2 := strings.TrimSpace(e.Line2)
	if len(line1) != 69 {
		return fmt.Errorf("NORAD %d: line1 length %d, expected 69", e.NORADID, len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("NORAD %d: line2 length %d, expected 69", e.NORADID, len(line2))
	}
	if line1[0] != '1' || line2[0] != '2' {
		return fmt.Errorf("NORAD %d: lines must start with '1' and '2'", e.NORADID)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return fmt.Errorf("NORAD %d: sgp4 init failed: code=%d %s", e.NORADID, sat.Error, sat.ErrorStr)
	}

	t := e.Epoch.UTC()
	pos, _ := satellite.Propagate(sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	r := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return fmt.Errorf("NORAD %d: sgp4 output is NaN/Inf", e.NORADID)
	}
	// Below the surface or beyond lunar distance.
	if r < 6200 || r > 400000 {
		return fmt.Errorf("NORAD %d: unreasonable sgp4 radius %.1f km", e.NORADID, r)
	}
	return nil
}
