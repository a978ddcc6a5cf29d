package orbit

// TrailCapacity is the default number of points a Trail retains.
const TrailCapacity = 500

// Trail is a bounded FIFO of past positions. When full, appending a point
// evicts the oldest one. The zero value is an empty trail with the default
// capacity.
type Trail struct {
	buf   []Point
	start int
	n     int
	limit int
}

// NewTrail returns an empty trail holding at most capacity points. A
// non-positive capacity selects TrailCapacity.
func NewTrail(capacity int) Trail {
	if capacity <= 0 {
		capacity = TrailCapacity
	}
	return Trail{limit: capacity}
}

// Cap returns the maximum number of points the trail retains.
func (t *Trail) Cap() int {
	if t.limit <= 0 {
		return TrailCapacity
	}
	return t.limit
}

// Len returns the number of points currently held.
func (t *Trail) Len() int {
	return t.n
}

// Append adds p as the newest point, evicting the oldest point if the trail
// is at capacity.
func (t *Trail) Append(p Point) {
	capacity := t.Cap()
	if len(t.buf) < capacity {
		// Still growing: the buffer is linear and start is always 0.
		t.buf = append(t.buf, p)
		t.n = len(t.buf)
		return
	}

	t.buf[t.start] = p
	t.start = (t.start + 1) % capacity
	t.n = capacity
}

// Clear removes all points. The capacity is kept.
func (t *Trail) Clear() {
	t.buf = nil
	t.start = 0
	t.n = 0
}

// Points returns a copy of the trail, oldest point first.
func (t *Trail) Points() []Point {
	if t.n == 0 {
		return nil
	}
	out := make([]Point, 0, t.n)
	out = append(out, t.buf[t.start:]...)
	out = append(out, t.buf[:t.start]...)
	return out
}

// Last returns the newest point and true, or the zero Point and false if the
// trail is empty.
func (t *Trail) Last() (Point, bool) {
	if t.n == 0 {
		return Point{}, false
	}
	i := t.start - 1
	if i < 0 {
		i = len(t.buf) - 1
	}
	return t.buf[i], true
}

// Clone returns a trail that does not share storage with t.
func (t *Trail) Clone() Trail {
	c := Trail{start: t.start, n: t.n, limit: t.limit}
	if t.buf != nil {
		c.buf = make([]Point, len(t.buf), cap(t.buf))
		copy(c.buf, t.buf)
	}
	return c
}
