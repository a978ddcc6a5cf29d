package sim

import (
	"time"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/orbit"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/scene"
)

// Snapshot is a self-contained copy of the animation state. It shares no
// memory with the engine.
type Snapshot struct {
	Scene   string         `json:"scene"`
	Clock   Clock          `json:"clock"`
	SimTime float64        `json:"sim_time"`
	SimDate time.Time      `json:"sim_date"`
	Star    scene.Star     `json:"star"`
	Bodies  []BodySnapshot `json:"bodies"`
}

// BodySnapshot is one body's display attributes and computed state.
type BodySnapshot struct {
	Name        string        `json:"name"`
	Color       string        `json:"color"`
	Radius      float64       `json:"radius"`
	Position    orbit.Point   `json:"position"`
	TrueAnomaly float64       `json:"true_anomaly"`
	Trail       []orbit.Point `json:"trail"`
}

// TrailPoints returns the total number of trail points in the snapshot.
func (s Snapshot) TrailPoints() int {
	var n int
	for _, b := range s.Bodies {
		n += len(b.Trail)
	}
	return n
}
