// Package scene defines the bodies a simulation animates: a central star and
// the bodies orbiting it, each with fixed orbital elements and display
// attributes.
package scene

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/orbit"
)

// AU is the length of one astronomical unit in scene units.
const AU = 150.0

// ErrUnknownBody is returned when a body name does not exist in a scene.
var ErrUnknownBody = errors.New("unknown body")

// Star is the central body. It sits at the focus of every orbit.
type Star struct {
	Name   string  `json:"name"`
	Radius float64 `json:"radius"`
	Color  string  `json:"color"`
}

// Body is an orbiting body. Elements never change after creation.
type Body struct {
	Name     string         `json:"name"`
	Color    string         `json:"color"`
	Radius   float64        `json:"radius"`
	Mass     float64        `json:"mass,omitempty"` // kg, informational
	Elements orbit.Elements `json:"elements"`
}

// Scene is a star plus the bodies orbiting it. TimeUnit is the real duration
// of one unit of orbital period; it only affects the displayed calendar date.
type Scene struct {
	Name     string        `json:"name"`
	Star     Star          `json:"star"`
	Bodies   []Body        `json:"bodies"`
	TimeUnit time.Duration `json:"time_unit"`
}

// Day is the time unit of heliocentric scenes.
const Day = 24 * time.Hour

// Days converts a span of scene time units to days.
func (s *Scene) Days(units float64) float64 {
	unit := s.TimeUnit
	if unit <= 0 {
		unit = Day
	}
	return units * float64(unit) / float64(Day)
}

// Default returns the inner solar system plus Jupiter, with distances scaled
// so that 1 AU is 150 units and periods expressed in days.
func Default() *Scene {
	return &Scene{
		Name:     "solar-system",
		Star:     Star{Name: "Sun", Radius: 20, Color: "#FFD700"},
		TimeUnit: Day,
		Bodies: []Body{
			{
				Name: "Mercury", Color: "#8C7853", Radius: 4, Mass: 3.301e23,
				Elements: orbit.Elements{SemiMajorAxis: 0.39 * AU, Eccentricity: 0.205, MeanAnomalyAtEpoch: 0, Period: 88},
			},
			{
				Name: "Venus", Color: "#FFC649", Radius: 6, Mass: 4.867e24,
				Elements: orbit.Elements{SemiMajorAxis: 0.72 * AU, Eccentricity: 0.007, MeanAnomalyAtEpoch: math.Pi / 2, Period: 225},
			},
			{
				Name: "Earth", Color: "#6B93D6", Radius: 6, Mass: 5.972e24,
				Elements: orbit.Elements{SemiMajorAxis: 1.0 * AU, Eccentricity: 0.017, MeanAnomalyAtEpoch: math.Pi, Period: 365},
			},
			{
				Name: "Mars", Color: "#CD5C5C", Radius: 5, Mass: 6.39e23,
				Elements: orbit.Elements{SemiMajorAxis: 1.52 * AU, Eccentricity: 0.093, MeanAnomalyAtEpoch: 3 * math.Pi / 2, Period: 687},
			},
			{
				Name: "Jupiter", Color: "#D8CA9D", Radius: 12, Mass: 1.898e27,
				Elements: orbit.Elements{SemiMajorAxis: 2.5 * AU, Eccentricity: 0.048, MeanAnomalyAtEpoch: 0, Period: 4333},
			},
		},
	}
}

// Body returns the body with the given name, compared case-insensitively.
func (s *Scene) Body(name string) (Body, error) {
	for _, b := range s.Bodies {
		if strings.EqualFold(b.Name, name) {
			return b, nil
		}
	}
	return Body{}, fmt.Errorf("%w: %q", ErrUnknownBody, name)
}

// Validate checks that the scene has at least one body, that names are unique
// and non-empty, and that every body has valid orbital elements.
func (s *Scene) Validate() error {
	if len(s.Bodies) == 0 {
		return errors.New("scene has no bodies")
	}

	seen := make(map[string]bool, len(s.Bodies))
	var errs []error
	for i, b := range s.Bodies {
		if strings.TrimSpace(b.Name) == "" {
			errs = append(errs, fmt.Errorf("body %d: name is empty", i))
			continue
		}
		key := strings.ToLower(b.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("body %q: duplicate name", b.Name))
		}
		seen[key] = true

		if err := b.Elements.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("body %q: %w", b.Name, err))
		}
	}
	return errors.Join(errs...)
}
