package human

import (
	"math"
	"math/rand"
)

// Point is a position in CSS pixels.
type Point struct {
	X float64
	Y float64
}

// Size is a viewport extent in CSS pixels.
type Size struct {
	Width  float64
	Height float64
}

func (s Size) contains(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= s.Width && p.Y <= s.Height
}

// PathPoint is one sample of a synthesized pointer trajectory. T is the
// time fraction of the whole movement at which the pointer reaches it.
type PathPoint struct {
	Point
	T float64
}

// GenPath builds a human-like pointer trajectory from start to end inside
// viewport. The trajectory is a Bezier curve over a control polygon of the
// start, one or two random interior points bounded by the start/end box,
// and the end. It is sampled at 80–99 jittered time offsets, each remapped
// through an elastic ease-out that overshoots the target and settles —
// straight constant-velocity lines are a well-known automation tell.
//
// The first sample is exactly start, the last exactly end, and no sample
// leaves the viewport.
func GenPath(rnd *rand.Rand, start, end Point, viewport Size) []PathPoint {
	controls := controlPolygon(rnd, start, end)
	samples := 80 + rnd.Intn(20)
	k := 20 + 10*rnd.Float64()

	path := make([]PathPoint, samples)
	interval := 1.0 / float64(samples-1)
	for i := range path {
		t := float64(i) * interval
		// Jitter interior samples by up to half an interval either way;
		// the endpoints stay pinned.
		if i > 0 && i < samples-1 {
			t += (rnd.Float64() - 0.5) * interval
		}
		p := bezier(controls, easeOutElastic(t, k))
		path[i] = PathPoint{Point: clampTo(p, viewport), T: t}
	}
	path[0].Point = start
	path[samples-1].Point = end
	return path
}

// controlPolygon returns the Bezier control points: start, one or two
// random points inside the start/end bounding box, end.
func controlPolygon(rnd *rand.Rand, start, end Point) []Point {
	minX, maxX := math.Min(start.X, end.X), math.Max(start.X, end.X)
	minY, maxY := math.Min(start.Y, end.Y), math.Max(start.Y, end.Y)

	interior := 1 + rnd.Intn(2)
	controls := make([]Point, 0, interior+2)
	controls = append(controls, start)
	for i := 0; i < interior; i++ {
		controls = append(controls, Point{
			X: minX + rnd.Float64()*(maxX-minX),
			Y: minY + rnd.Float64()*(maxY-minY),
		})
	}
	return append(controls, end)
}

// easeOutElastic remaps t in [0,1] with an overshoot-and-settle profile:
// 2^(-k*t) * sin((10t - 0.75) * 2π/3) + 1. Identity at t=0 and t≈1.
func easeOutElastic(t, k float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	const c = 2 * math.Pi / 3
	return math.Pow(2, -k*t)*math.Sin((10*t-0.75)*c) + 1
}

// bezier evaluates the curve over controls at t via de Casteljau. Eased t
// may exceed 1 slightly (the overshoot), which extrapolates past the end
// point before the settle brings it back.
func bezier(controls []Point, t float64) Point {
	pts := make([]Point, len(controls))
	copy(pts, controls)
	for n := len(pts) - 1; n > 0; n-- {
		for i := 0; i < n; i++ {
			pts[i] = Point{
				X: pts[i].X + (pts[i+1].X-pts[i].X)*t,
				Y: pts[i].Y + (pts[i+1].Y-pts[i].Y)*t,
			}
		}
	}
	return pts[0]
}

func clampTo(p Point, viewport Size) Point {
	return Point{
		X: math.Min(math.Max(p.X, 0), viewport.Width),
		Y: math.Min(math.Max(p.Y, 0), viewport.Height),
	}
}
