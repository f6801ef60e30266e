package pagehelper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/awardscan/scrapecore/models"
	"github.com/awardscan/scrapecore/nettrack"
)

// TimeoutName is the reserved result name for a waitFor that ran out of
// network activity before any declared condition was met.
const TimeoutName = "timeout"

// WaitItem declares one condition of a WaitFor race. Exactly one of URL,
// HTML or Selector must be set.
type WaitItem struct {
	// URL resolves when a tracked request matching the pattern reaches
	// a terminal state.
	URL *URLWait

	// HTML resolves when the serialized document matches the pattern
	// (glob, or "re:" regex), polled once per second.
	HTML string

	// Selector resolves when a DOM node matches the CSS selector,
	// polled once per second.
	Selector string
}

// URLWait matches completed network requests.
type URLWait struct {
	Pattern string

	// Status, when non-zero, requires the completed request to carry
	// this status code. Mismatches are ignored (the wait continues)
	// unless StatusFatal is set, in which case the race fails.
	Status      int
	StatusFatal bool
}

// WaitResult names the condition that settled first. Response is set for
// url conditions.
type WaitResult struct {
	Name     string
	Response *nettrack.TrackedRequest
}

type settled struct {
	result *WaitResult
	err    error
}

// WaitFor races every declared condition plus an implicit sliding
// timeout: the window re-arms from the tracker's last observed network
// response rather than the call start, modelling "the page is still
// talking" instead of a fixed deadline. The first condition to settle
// wins; every sibling subscription and poll is cancelled and joined
// before WaitFor returns, so no timer or callback outlives the call.
func (h *Helper) WaitFor(ctx context.Context, items map[string]WaitItem) (*WaitResult, error) {
	for name, item := range items {
		if err := item.validate(); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
				fmt.Sprintf("wait item %q: %v", name, err), nil)
		}
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so every branch can settle without a receiver; losers'
	// sends must never block the join below.
	results := make(chan settled, len(items)+1)
	var wg sync.WaitGroup

	for name, item := range items {
		wg.Add(1)
		switch {
		case item.URL != nil:
			go h.waitURL(raceCtx, &wg, name, *item.URL, results)
		case item.HTML != "":
			go h.waitPoll(raceCtx, &wg, name, results, func() (bool, error) {
				html, err := h.HTML()
				if err != nil {
					return false, nil // transient during navigation
				}
				return nettrack.MatchPattern(item.HTML, html), nil
			})
		default:
			go h.waitPoll(raceCtx, &wg, name, results, func() (bool, error) {
				v, err := h.Evaluate(fmt.Sprintf(
					`document.querySelector(%q) !== null`, item.Selector))
				if err != nil {
					return false, nil
				}
				return v.Bool(), nil
			})
		}
	}

	wg.Add(1)
	go h.waitIdle(raceCtx, &wg, results)

	var first settled
	select {
	case first = <-results:
	case <-ctx.Done():
		first = settled{err: models.NewScrapeError(models.ErrCodeWaitTimeout, "wait aborted", ctx.Err())}
	}

	cancel()
	wg.Wait()
	return first.result, first.err
}

func (w WaitItem) validate() error {
	set := 0
	if w.URL != nil {
		set++
	}
	if w.HTML != "" {
		set++
	}
	if w.Selector != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of url, html, selector must be set")
	}
	return nil
}

// waitURL resolves on the first tracked request matching the pattern and
// satisfying the optional status constraint. Non-fatal mismatches
// resubscribe and keep waiting.
func (h *Helper) waitURL(ctx context.Context, wg *sync.WaitGroup, name string, w URLWait, results chan<- settled) {
	defer wg.Done()

	hits := make(chan *nettrack.TrackedRequest, 1)
	for {
		unsub := h.tracker.SubscribeToURL(w.Pattern, func(r *nettrack.TrackedRequest) {
			select {
			case hits <- r:
			default:
			}
		})

		select {
		case <-ctx.Done():
			unsub()
			return
		case r := <-hits:
			if w.Status != 0 && r.Status != w.Status {
				if w.StatusFatal {
					results <- settled{err: models.NewScrapeError(models.ErrCodeWaitTimeout,
						fmt.Sprintf("wait %q: %s answered %d, want %d", name, r.URL, r.Status, w.Status), nil)}
					return
				}
				continue // resubscribe, keep waiting
			}
			results <- settled{result: &WaitResult{Name: name, Response: r}}
			return
		}
	}
}

// waitPoll resolves when check first reports true, polling once per
// second.
func (h *Helper) waitPoll(ctx context.Context, wg *sync.WaitGroup, name string, results chan<- settled, check func() (bool, error)) {
	defer wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := check()
		if err != nil {
			results <- settled{err: err}
			return
		}
		if ok {
			results <- settled{result: &WaitResult{Name: name}}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// waitIdle settles the timeout branch once the sliding window — re-armed
// by every observed network response — elapses without new activity.
func (h *Helper) waitIdle(ctx context.Context, wg *sync.WaitGroup, results chan<- settled) {
	defer wg.Done()

	armed := time.Now()
	for {
		base := armed
		if last := h.tracker.LastResponseAt(); last.After(base) {
			base = last
		}
		remaining := time.Until(base.Add(h.idleTimeout))
		if remaining <= 0 {
			results <- settled{result: &WaitResult{Name: TimeoutName}}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(remaining):
		}
	}
}
