package scene

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/orbit"
)

// fileScene mirrors the on-disk scene layout. Angles are in degrees and
// distances may be given either in scene units or in AU.
type fileScene struct {
	Name     string        `mapstructure:"name"`
	Star     fileStar      `mapstructure:"star"`
	Bodies   []fileBody    `mapstructure:"bodies"`
	TimeUnit time.Duration `mapstructure:"time_unit"`
}

type fileStar struct {
	Name   string  `mapstructure:"name"`
	Radius float64 `mapstructure:"radius"`
	Color  string  `mapstructure:"color"`
}

type fileBody struct {
	Name            string  `mapstructure:"name"`
	Color           string  `mapstructure:"color"`
	Radius          float64 `mapstructure:"radius"`
	Mass            float64 `mapstructure:"mass"`
	SemiMajorAxis   float64 `mapstructure:"semi_major_axis"`
	SemiMajorAxisAU float64 `mapstructure:"semi_major_axis_au"`
	Eccentricity    float64 `mapstructure:"eccentricity"`
	MeanAnomalyDeg  float64 `mapstructure:"mean_anomaly_deg"`
	Period          float64 `mapstructure:"period"`
}

// Load reads a scene from a YAML, TOML or JSON file. The format is chosen from
// the file extension. The loaded scene is validated before it is returned.
func Load(path string) (*Scene, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("name", strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	v.SetDefault("star.name", "Sun")
	v.SetDefault("star.radius", 20)
	v.SetDefault("star.color", "#FFD700")
	v.SetDefault("time_unit", "24h")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading scene file %s: %w", path, err)
	}

	var fs fileScene
	if err := v.Unmarshal(&fs); err != nil {
		return nil, fmt.Errorf("decoding scene file %s: %w", path, err)
	}

	s := fs.toScene()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scene %s: %w", path, err)
	}
	return s, nil
}

func (fs fileScene) toScene() *Scene {
	s := &Scene{
		Name:     fs.Name,
		Star:     Star{Name: fs.Star.Name, Radius: fs.Star.Radius, Color: fs.Star.Color},
		TimeUnit: fs.TimeUnit,
	}
	for _, fb := range fs.Bodies {
		a := fb.SemiMajorAxis
		if a == 0 && fb.SemiMajorAxisAU != 0 {
			a = fb.SemiMajorAxisAU * AU
		}
		color := fb.Color
		if color == "" {
			color = "#FFFFFF"
		}
		radius := fb.Radius
		if radius <= 0 {
			radius = 4
		}

		s.Bodies = append(s.Bodies, Body{
			Name:   fb.Name,
			Color:  color,
			Radius: radius,
			Mass:   fb.Mass,
			Elements: orbit.Elements{
				SemiMajorAxis:      a,
				Eccentricity:       fb.Eccentricity,
				MeanAnomalyAtEpoch: fb.MeanAnomalyDeg * math.Pi / 180,
				Period:             fb.Period,
			},
		})
	}
	return s
}
