package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/orbit"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/tle"
)

// earthRadiusKm is used to size the central body of satellite scenes.
const earthRadiusKm = 6378.137

var palette = []string{"#6BD6C4", "#D66B93", "#D6C46B", "#936BD6", "#6B93D6", "#C4D66B", "#D6936B"}

// TLEOptions controls how satellites are laid out in a scene.
type TLEOptions struct {
	// KmPerUnit converts kilometres to scene units. Zero fits the largest
	// orbit into 375 units.
	KmPerUnit float64
	// MaxBodies caps the number of satellites taken from the input. Zero
	// means no cap.
	MaxBodies int
}

// FromTLE builds an Earth-centred scene from two-line element sets. Periods
// are in minutes. Entries that fail SGP4 validation or element decoding are
// skipped with a warning.
func FromTLE(entries []tle.Entry, opts TLEOptions, logger *slog.Logger) (*Scene, error) {
	type candidate struct {
		entry tle.Entry
		mean  tle.Mean
	}

	var (
		cands   []candidate
		maxAxis float64
	)
	for _, e := range entries {
		if opts.MaxBodies > 0 && len(cands) >= opts.MaxBodies {
			break
		}
		if err := tle.Validate(e); err != nil {
			logger.Warn("skipping satellite", "norad_id", e.NORADID, "error", err)
			continue
		}
		m, err := tle.MeanElements(e)
		if err != nil {
			logger.Warn("skipping satellite", "norad_id", e.NORADID, "error", err)
			continue
		}
		cands = append(cands, candidate{entry: e, mean: m})
		if a := m.SemiMajorAxis * (1 + m.Eccentricity); a > maxAxis {
			maxAxis = a
		}
	}
	if len(cands) == 0 {
		return nil, errors.New("no usable satellites in TLE data")
	}

	kmPerUnit := opts.KmPerUnit
	if kmPerUnit <= 0 {
		kmPerUnit = maxAxis / 375
	}

	s := &Scene{
		Name:     "earth-satellites",
		Star:     Star{Name: "Earth", Radius: earthRadiusKm / kmPerUnit, Color: "#2E6BD6"},
		TimeUnit: time.Minute,
	}
	names := make(map[string]int, len(cands))
	for i, c := range cands {
		name := c.entry.Name
		if n := names[name]; n > 0 {
			name = fmt.Sprintf("%s (%d)", name, c.entry.NORADID)
		}
		names[c.entry.Name]++

		s.Bodies = append(s.Bodies, Body{
			Name:   name,
			Color:  palette[i%len(palette)],
			Radius: 3,
			Elements: orbit.Elements{
				SemiMajorAxis:      c.mean.SemiMajorAxis / kmPerUnit,
				Eccentricity:       c.mean.Eccentricity,
				MeanAnomalyAtEpoch: c.mean.MeanAnomaly,
				Period:             c.mean.PeriodMinutes,
			},
		})
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("building satellite scene: %w", err)
	}
	return s, nil
}
