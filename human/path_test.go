package human

import (
	"math"
	"math/rand"
	"testing"
)

func TestGenPath_EndpointsExact(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	viewport := Size{Width: 1280, Height: 800}
	start := Point{X: 40, Y: 60}
	end := Point{X: 900, Y: 520}

	for seed := int64(0); seed < 20; seed++ {
		rnd.Seed(seed)
		path := GenPath(rnd, start, end, viewport)

		if len(path) < 80 || len(path) > 99 {
			t.Fatalf("seed %d: %d samples, want 80..99", seed, len(path))
		}
		if path[0].Point != start {
			t.Errorf("seed %d: first point %+v, want %+v", seed, path[0].Point, start)
		}
		if path[len(path)-1].Point != end {
			t.Errorf("seed %d: last point %+v, want %+v", seed, path[len(path)-1].Point, end)
		}
	}
}

func TestGenPath_StaysInViewport(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	viewport := Size{Width: 1024, Height: 768}

	for seed := int64(0); seed < 50; seed++ {
		rnd.Seed(seed)
		path := GenPath(rnd, Point{X: 10, Y: 10}, Point{X: 1014, Y: 758}, viewport)
		for i, p := range path {
			if !viewport.contains(p.Point) {
				t.Fatalf("seed %d sample %d: point %+v outside %+v", seed, i, p.Point, viewport)
			}
		}
	}
}

func TestGenPath_TimeOffsetsMonotonicAtEndpoints(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	path := GenPath(rnd, Point{}, Point{X: 100, Y: 100}, Size{Width: 200, Height: 200})

	if path[0].T != 0 {
		t.Errorf("first sample T = %v, want 0", path[0].T)
	}
	last := path[len(path)-1].T
	if math.Abs(last-1) > 1e-9 {
		t.Errorf("last sample T = %v, want 1", last)
	}
}

func TestEaseOutElastic_IdentityAtBounds(t *testing.T) {
	for _, k := range []float64{20, 25, 30} {
		if got := easeOutElastic(0, k); got != 0 {
			t.Errorf("easeOutElastic(0, %v) = %v, want 0", k, got)
		}
		if got := easeOutElastic(1, k); got != 1 {
			t.Errorf("easeOutElastic(1, %v) = %v, want 1", k, got)
		}
	}
}

func TestEaseOutElastic_Overshoots(t *testing.T) {
	// The settle profile must exceed 1 somewhere in (0,1): that overshoot
	// is what distinguishes the curve from a plain ease-out.
	overshoot := false
	for i := 1; i < 100; i++ {
		if easeOutElastic(float64(i)/100, 20) > 1 {
			overshoot = true
			break
		}
	}
	if !overshoot {
		t.Error("elastic ease never exceeded 1")
	}
}

func TestBezier_LinearForTwoControls(t *testing.T) {
	controls := []Point{{X: 0, Y: 0}, {X: 10, Y: 20}}
	mid := bezier(controls, 0.5)
	if mid.X != 5 || mid.Y != 10 {
		t.Errorf("midpoint = %+v, want {5 10}", mid)
	}
}
