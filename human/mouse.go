package human

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/awardscan/scrapecore/models"
)

// moveDuration bounds the wall-clock time of one full pointer movement.
const (
	minMoveDuration = 300 * time.Millisecond
	maxMoveDuration = 700 * time.Millisecond
)

// Mouse drives the browser pointer through synthesized human-like
// trajectories. Pointer position and viewport size are memoized for the
// lifetime of one attempt; a path, once started, runs to completion.
type Mouse struct {
	page *rod.Page
	rnd  *rand.Rand

	pos      *Point
	viewport *Size
}

// NewMouse creates a Mouse for the given page. rnd may be nil for a
// non-deterministic source.
func NewMouse(page *rod.Page, rnd *rand.Rand) *Mouse {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Mouse{page: page, rnd: rnd}
}

// Viewport returns the memoized viewport size, querying layout metrics on
// first use.
func (m *Mouse) Viewport() (Size, error) {
	if m.viewport != nil {
		return *m.viewport, nil
	}
	metrics, err := proto.PageGetLayoutMetrics{}.Call(m.page)
	if err != nil {
		return Size{}, models.NewScrapeError(models.ErrCodeProtocol, "layout metrics query failed", err)
	}
	vp := metrics.CSSLayoutViewport
	if vp == nil {
		return Size{}, models.NewScrapeError(models.ErrCodeProtocol, "layout metrics carried no viewport", nil)
	}
	m.viewport = &Size{Width: float64(vp.ClientWidth), Height: float64(vp.ClientHeight)}
	return *m.viewport, nil
}

// MoveTo walks the pointer from its last known position (or a random
// point along the viewport's top edge on first use) to pos, dispatching
// one pointer-moved event per path sample with delays derived from each
// sample's time offset.
func (m *Mouse) MoveTo(ctx context.Context, pos Point) error {
	viewport, err := m.Viewport()
	if err != nil {
		return err
	}
	if !viewport.contains(pos) {
		return models.NewScrapeError(models.ErrCodeElementNotFound,
			fmt.Sprintf("move target (%.0f,%.0f) outside viewport %dx%d",
				pos.X, pos.Y, int(viewport.Width), int(viewport.Height)), nil)
	}

	start := m.startPoint(viewport)
	path := GenPath(m.rnd, start, pos, viewport)
	total := minMoveDuration + time.Duration(m.rnd.Int63n(int64(maxMoveDuration-minMoveDuration)))

	prev := 0.0
	for _, sample := range path {
		if delay := time.Duration((sample.T - prev) * float64(total)); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		prev = sample.T
		err := proto.InputDispatchMouseEvent{
			Type: proto.InputDispatchMouseEventTypeMouseMoved,
			X:    sample.X,
			Y:    sample.Y,
		}.Call(m.page)
		if err != nil {
			return models.NewScrapeError(models.ErrCodeProtocol, "pointer move dispatch failed", err)
		}
	}
	m.pos = &pos
	return nil
}

// ClickSelector resolves the element's content box, moves to a uniform
// random interior point and clicks with randomized press/release delays.
// A missing selector or a target outside the viewport fails loudly —
// clamped or snapped clicks are detectable artifacts.
func (m *Mouse) ClickSelector(ctx context.Context, selector string) error {
	target, err := m.elementPoint(selector)
	if err != nil {
		return err
	}

	// Small hesitation before starting the movement.
	if err := m.sleep(ctx, 100, 250); err != nil {
		return err
	}
	if err := m.MoveTo(ctx, target); err != nil {
		return err
	}

	press := proto.InputDispatchMouseEvent{
		Type:       proto.InputDispatchMouseEventTypeMousePressed,
		X:          target.X,
		Y:          target.Y,
		Button:     proto.InputMouseButtonLeft,
		ClickCount: 1,
	}
	if err := m.sleep(ctx, 50, 150); err != nil {
		return err
	}
	if err := press.Call(m.page); err != nil {
		return models.NewScrapeError(models.ErrCodeProtocol, "mouse press dispatch failed", err)
	}
	if err := m.sleep(ctx, 50, 150); err != nil {
		return err
	}
	release := press
	release.Type = proto.InputDispatchMouseEventTypeMouseReleased
	if err := release.Call(m.page); err != nil {
		return models.NewScrapeError(models.ErrCodeProtocol, "mouse release dispatch failed", err)
	}
	return nil
}

// elementPoint returns a uniform random point inside the content box of
// the first element matching selector.
func (m *Mouse) elementPoint(selector string) (Point, error) {
	doc, err := proto.DOMGetDocument{}.Call(m.page)
	if err != nil {
		return Point{}, models.NewScrapeError(models.ErrCodeProtocol, "document query failed", err)
	}
	node, err := proto.DOMQuerySelector{
		NodeID:   doc.Root.NodeID,
		Selector: selector,
	}.Call(m.page)
	if err != nil || node.NodeID == 0 {
		return Point{}, models.NewScrapeError(models.ErrCodeElementNotFound,
			fmt.Sprintf("no element matches %q", selector), err)
	}
	box, err := proto.DOMGetBoxModel{NodeID: node.NodeID}.Call(m.page)
	if err != nil || box.Model == nil || len(box.Model.Content) < 8 {
		return Point{}, models.NewScrapeError(models.ErrCodeElementNotFound,
			fmt.Sprintf("element %q has no content box", selector), err)
	}

	// Content quad is [x1 y1 x2 y2 x3 y3 x4 y4], clockwise from top-left.
	quad := box.Model.Content
	left, top := quad[0], quad[1]
	right, bottom := quad[4], quad[5]
	target := Point{
		X: left + m.rnd.Float64()*(right-left),
		Y: top + m.rnd.Float64()*(bottom-top),
	}

	viewport, err := m.Viewport()
	if err != nil {
		return Point{}, err
	}
	if !viewport.contains(target) {
		return Point{}, models.NewScrapeError(models.ErrCodeElementNotFound,
			fmt.Sprintf("element %q lies outside the viewport", selector), nil)
	}
	return target, nil
}

// startPoint is the memoized pointer position, or a random point along
// the viewport's top edge when the pointer has not moved yet (a fresh
// page loads with the cursor where the window chrome left it).
func (m *Mouse) startPoint(viewport Size) Point {
	if m.pos != nil {
		return *m.pos
	}
	return Point{X: m.rnd.Float64() * viewport.Width, Y: m.rnd.Float64() * 10}
}

func (m *Mouse) sleep(ctx context.Context, minMs, maxMs int) error {
	d := time.Duration(minMs+m.rnd.Intn(maxMs-minMs)) * time.Millisecond
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
