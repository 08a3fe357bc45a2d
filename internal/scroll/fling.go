package scroll

import (
	"math"

	"github.com/charmbracelet/harmonica"
)

// Bounds is the virtual content extent a fling moves through. Fling
// positions never leave it.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// Anchor is the middle of the extent, where every fling starts.
func (b Bounds) Anchor() (x, y float64) {
	return (b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2
}

func (b Bounds) clamp(p harmonica.Point) (harmonica.Point, bool) {
	c := p
	c.X = math.Max(b.MinX, math.Min(b.MaxX, p.X))
	c.Y = math.Max(b.MinY, math.Min(b.MaxY, p.Y))
	return c, c.X != p.X || c.Y != p.Y
}

// Fling simulates an inertial scroll: a projectile launched from the anchor
// with the release velocity and a constant deceleration opposite to it.
type Fling struct {
	proj    *harmonica.Projectile
	v0      harmonica.Vector
	bounds  Bounds
	pos     harmonica.Point
	settled bool
	steps   int
}

// NewFling starts a fling. Velocity is in pixels per second, deceleration in
// pixels per second squared.
func NewFling(fps int, vx, vy, deceleration float64, b Bounds) *Fling {
	if fps <= 0 {
		fps = 60
	}
	ax, ay := b.Anchor()
	start := harmonica.Point{X: ax, Y: ay}
	f := &Fling{
		v0:     harmonica.Vector{X: vx, Y: vy},
		bounds: b,
		pos:    start,
	}

	speed := math.Hypot(vx, vy)
	if speed == 0 || deceleration <= 0 {
		f.settled = true
		return f
	}
	acc := harmonica.Vector{
		X: -vx / speed * deceleration,
		Y: -vy / speed * deceleration,
	}
	f.proj = harmonica.NewProjectile(harmonica.FPS(fps), start, f.v0, acc)
	return f
}

// Step advances one frame and returns the movement since the previous
// frame. Once settled it returns zero.
func (f *Fling) Step() (dx, dy float64) {
	if f.settled {
		return 0, 0
	}
	prev := f.pos
	next, clamped := f.bounds.clamp(f.proj.Update())
	f.pos = next
	f.steps++

	v := f.proj.Velocity()
	if clamped || v.X*f.v0.X+v.Y*f.v0.Y <= 0 {
		f.settled = true
	}
	return next.X - prev.X, next.Y - prev.Y
}

// Settled reports whether the fling has come to rest.
func (f *Fling) Settled() bool {
	return f.settled
}

// Finish stops the fling where it is.
func (f *Fling) Finish() {
	f.settled = true
}

// Displacement is the distance travelled from the anchor.
func (f *Fling) Displacement() (dx, dy float64) {
	ax, ay := f.bounds.Anchor()
	return f.pos.X - ax, f.pos.Y - ay
}

// Steps is the number of frames advanced so far.
func (f *Fling) Steps() int {
	return f.steps
}
