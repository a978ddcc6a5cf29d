package sim

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/orbit"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/scene"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func newTestEngine(trailCapacity int) *Engine {
	return NewEngine(scene.Default(), trailCapacity, testLogger)
}

func TestNewEngineEpochState(t *testing.T) {
	e := newTestEngine(0)

	if got := e.Clock(); got != DefaultClock() {
		t.Errorf("clock = %+v, want %+v", got, DefaultClock())
	}
	for i, st := range e.States() {
		want, _ := orbit.Compute(e.Scene().Bodies[i].Elements, 0, 1)
		if st.Position != want {
			t.Errorf("body %d position = %v, want %v", i, st.Position, want)
		}
		if st.Trail.Len() != 0 || st.Trail.Cap() != orbit.TrailCapacity {
			t.Errorf("body %d trail len=%d cap=%d", i, st.Trail.Len(), st.Trail.Cap())
		}
	}
}

func TestTickAdvancesAndRecordsTrail(t *testing.T) {
	e := newTestEngine(0)

	for i := 1; i <= 10; i++ {
		if !e.Tick(float64(i)) {
			t.Fatalf("Tick(%d) returned false while running", i)
		}
	}

	for i, st := range e.States() {
		el := e.Scene().Bodies[i].Elements
		want, nu := orbit.Compute(el, 10, 1)
		if st.Position != want || st.TrueAnomaly != nu {
			t.Errorf("body %d = %v/%v, want %v/%v", i, st.Position, st.TrueAnomaly, want, nu)
		}
		if st.Trail.Len() != 10 {
			t.Errorf("body %d trail len = %d, want 10", i, st.Trail.Len())
		}
		if last, _ := st.Trail.Last(); last != want {
			t.Errorf("body %d newest trail point = %v, want %v", i, last, want)
		}
	}
}

func TestPauseFreezesPositions(t *testing.T) {
	e := newTestEngine(0)
	e.Tick(5)
	before := e.States()

	if !e.TogglePause() {
		t.Fatal("TogglePause should report paused")
	}
	for i := 0; i < 100; i++ {
		if e.Tick(float64(100 + i)) {
			t.Fatal("Tick advanced while paused")
		}
	}

	after := e.States()
	for i := range before {
		if before[i].Position != after[i].Position {
			t.Errorf("body %d moved while paused: %v -> %v", i, before[i].Position, after[i].Position)
		}
		if before[i].Trail.Len() != after[i].Trail.Len() {
			t.Errorf("body %d trail grew while paused", i)
		}
	}

	if e.TogglePause() {
		t.Fatal("second TogglePause should resume")
	}
	if !e.Tick(6) {
		t.Error("Tick after resume returned false")
	}
}

func TestToggleTrailsClears(t *testing.T) {
	e := newTestEngine(0)
	for i := 0; i < 20; i++ {
		e.Tick(float64(i))
	}

	if e.ToggleTrails() {
		t.Fatal("ToggleTrails should report disabled")
	}
	for i, st := range e.States() {
		if st.Trail.Len() != 0 {
			t.Errorf("body %d trail len = %d after disabling, want 0", i, st.Trail.Len())
		}
	}

	// Positions still move but nothing is recorded.
	e.Tick(50)
	for i, st := range e.States() {
		if st.Trail.Len() != 0 {
			t.Errorf("body %d recorded while trails disabled", i)
		}
	}

	if !e.ToggleTrails() {
		t.Fatal("ToggleTrails should report enabled")
	}
	e.Tick(51)
	if n := e.Snapshot().TrailPoints(); n != len(e.Scene().Bodies) {
		t.Errorf("trail points = %d, want one per body", n)
	}
}

func TestChangeSpeedClamp(t *testing.T) {
	e := newTestEngine(0)

	want := []float64{2, 4, 8, 16, 16, 16}
	for i, w := range want {
		if got := e.ChangeSpeed(1); got != w {
			t.Errorf("up step %d = %v, want %v", i, got, w)
		}
	}

	want = []float64{8, 4, 2, 1, 0.5, 0.25, 0.125, 0.125, 0.125}
	for i, w := range want {
		if got := e.ChangeSpeed(-1); got != w {
			t.Errorf("down step %d = %v, want %v", i, got, w)
		}
	}

	// Zero direction halves.
	e.ChangeSpeed(1)
	if got := e.ChangeSpeed(0); got != MinSpeed {
		t.Errorf("ChangeSpeed(0) = %v, want %v", got, MinSpeed)
	}
}

func TestSpeedScalesTime(t *testing.T) {
	e := newTestEngine(0)
	e.ChangeSpeed(1)
	e.Tick(10)

	for i, st := range e.States() {
		want, _ := orbit.Compute(e.Scene().Bodies[i].Elements, 20, 1)
		if math.Abs(st.Position.X-want.X) > 1e-9 || math.Abs(st.Position.Y-want.Y) > 1e-9 {
			t.Errorf("body %d at speed 2, t=10: %v, want %v", i, st.Position, want)
		}
	}
}

func TestResetDeterminism(t *testing.T) {
	e := newTestEngine(0)
	e.ChangeSpeed(1)
	e.TogglePause()
	e.TogglePause()
	for i := 0; i < 700; i++ {
		e.Tick(float64(i) * 0.7)
	}

	clockBefore := e.Clock()
	e.Reset()

	if got := e.Clock(); got != clockBefore {
		t.Errorf("Reset changed clock: %+v -> %+v", clockBefore, got)
	}
	for i, st := range e.States() {
		want, nu := orbit.Compute(e.Scene().Bodies[i].Elements, 0, clockBefore.Speed)
		if st.Position != want || st.TrueAnomaly != nu {
			t.Errorf("body %d after reset = %v, want %v", i, st.Position, want)
		}
		if st.Trail.Len() != 0 {
			t.Errorf("body %d trail len = %d after reset", i, st.Trail.Len())
		}
	}
	if snap := e.Snapshot(); snap.SimTime != 0 {
		t.Errorf("sim time after reset = %v, want 0", snap.SimTime)
	}
}

func TestTrailNeverExceedsCapacity(t *testing.T) {
	e := newTestEngine(50)
	for i := 0; i < 500; i++ {
		e.Tick(float64(i))
		for j, st := range e.States() {
			if st.Trail.Len() > 50 {
				t.Fatalf("tick %d body %d trail len %d > 50", i, j, st.Trail.Len())
			}
		}
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	e := newTestEngine(0)
	e.Tick(1)
	e.Tick(2)

	snap := e.Snapshot()
	if len(snap.Bodies) != 5 || snap.Bodies[2].Name != "Earth" {
		t.Fatalf("unexpected snapshot bodies: %+v", snap.Bodies)
	}
	if snap.Star.Name != "Sun" {
		t.Errorf("star = %q, want Sun", snap.Star.Name)
	}
	snap.Bodies[0].Trail[0] = orbit.Point{X: 1e9}

	e.Tick(3)
	if got := e.Snapshot().Bodies[0].Trail[0]; got.X == 1e9 {
		t.Error("mutating a snapshot leaked into the engine")
	}
}

func TestSimDate(t *testing.T) {
	s := scene.Default()

	epoch := SimDate(s, 0, 1)
	want := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	if d := epoch.Sub(want); d < -time.Second || d > time.Second {
		t.Errorf("epoch date = %v, want %v", epoch, want)
	}

	// Ten days of simulation time at double speed.
	got := SimDate(s, 10, 2)
	if d := got.Sub(want); d < 20*24*time.Hour-time.Second || d > 20*24*time.Hour+time.Second {
		t.Errorf("SimDate(10, speed 2) = %v, want 20 days after epoch", got)
	}
}

func TestConcurrentControl(t *testing.T) {
	e := newTestEngine(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				switch j % 4 {
				case 0:
					e.Tick(float64(j))
				case 1:
					e.ChangeSpeed(i%2*2 - 1)
				case 2:
					_ = e.Snapshot()
				case 3:
					e.ToggleTrails()
				}
			}
		}(i)
	}
	wg.Wait()

	c := e.Clock()
	if c.Speed < MinSpeed || c.Speed > MaxSpeed {
		t.Errorf("speed %v escaped bounds", c.Speed)
	}
}
