package scroll

import (
	"math"
	"time"
)

const (
	historySize = 20
	// Horizon is how far back from the newest sample the tracker looks.
	Horizon = 100 * time.Millisecond
)

type sample struct {
	x, y float64
	t    time.Time
}

// VelocityTracker estimates pointer velocity in pixels per second from the
// recent movement history, with a least-squares line fit per axis.
type VelocityTracker struct {
	buf  [historySize]sample
	head int
	n    int
}

// Add records a sample. Samples must arrive in time order.
func (v *VelocityTracker) Add(x, y float64, t time.Time) {
	v.buf[v.head] = sample{x: x, y: y, t: t}
	v.head = (v.head + 1) % historySize
	if v.n < historySize {
		v.n++
	}
}

// Reset forgets all samples.
func (v *VelocityTracker) Reset() {
	v.head, v.n = 0, 0
}

// Velocity returns the estimated velocity with its magnitude capped at limit.
// A limit of zero or less disables the cap. Fewer than two samples inside the
// horizon yield zero.
func (v *VelocityTracker) Velocity(limit float64) (vx, vy float64) {
	if v.n == 0 {
		return 0, 0
	}
	newest := v.buf[(v.head-1+historySize)%historySize]

	var ts, xs, ys [historySize]float64
	m := 0
	for i := 0; i < v.n; i++ {
		s := v.buf[(v.head-1-i+2*historySize)%historySize]
		age := newest.t.Sub(s.t)
		if age > Horizon || age < 0 {
			break
		}
		ts[m] = -age.Seconds()
		xs[m] = s.x
		ys[m] = s.y
		m++
	}
	if m < 2 {
		return 0, 0
	}

	vx, okX := slope(ts[:m], xs[:m])
	vy, okY := slope(ts[:m], ys[:m])
	if !okX || !okY {
		return 0, 0
	}
	if speed := math.Hypot(vx, vy); limit > 0 && speed > limit {
		scale := limit / speed
		vx *= scale
		vy *= scale
	}
	return vx, vy
}

func slope(t, p []float64) (float64, bool) {
	var mt, mp float64
	for i := range t {
		mt += t[i]
		mp += p[i]
	}
	n := float64(len(t))
	mt /= n
	mp /= n

	var num, den float64
	for i := range t {
		dt := t[i] - mt
		num += dt * (p[i] - mp)
		den += dt * dt
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}
