package pagehelper

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/awardscan/scrapecore/models"
	"github.com/awardscan/scrapecore/nettrack"
)

// defaultIdleTimeout is the sliding waitFor window: the race times out
// only after this long with no new network responses.
const defaultIdleTimeout = 30 * time.Second

// pollInterval is the cadence of html and selector polls.
const pollInterval = time.Second

// Tracker is the slice of the network tracker the helper depends on: URL
// subscriptions for url waits, and the last-response clock for the
// sliding timeout.
type Tracker interface {
	SubscribeToURL(pattern string, cb func(*nettrack.TrackedRequest)) (unsubscribe func())
	LastResponseAt() time.Time
}

// Helper bundles navigation, evaluation and wait primitives over one
// page. It reads network state exclusively through the tracker's
// published operations.
type Helper struct {
	page        *rod.Page
	tracker     Tracker
	idleTimeout time.Duration
}

// New creates a Helper. idleTimeout <= 0 selects the default.
func New(page *rod.Page, tracker Tracker, idleTimeout time.Duration) *Helper {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	return &Helper{page: page, tracker: tracker, idleTimeout: idleTimeout}
}

// Goto starts navigation and returns without waiting for the load to
// finish. Callers sequence readiness through WaitFor.
func (h *Helper) Goto(url string) error {
	_, err := proto.PageNavigate{URL: url}.Call(h.page)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeNavigation,
			fmt.Sprintf("navigation to %s failed", url), err)
	}
	return nil
}

// Evaluate runs expression in the page, awaiting promises and returning
// the value by value.
func (h *Helper) Evaluate(expression string) (gson.JSON, error) {
	res, err := proto.RuntimeEvaluate{
		Expression:    expression,
		ReturnByValue: true,
		AwaitPromise:  true,
	}.Call(h.page)
	if err != nil {
		return gson.New(nil), models.NewScrapeError(models.ErrCodeProtocol, "evaluate failed", err)
	}
	if res.ExceptionDetails != nil {
		return gson.New(nil), models.NewScrapeError(models.ErrCodeProtocol,
			fmt.Sprintf("evaluate threw: %s", res.ExceptionDetails.Text), nil)
	}
	return res.Result.Value, nil
}

// GetSelectorContent returns the text content of the first element
// matching selector, or an ELEMENT_NOT_FOUND error.
func (h *Helper) GetSelectorContent(selector string) (string, error) {
	v, err := h.Evaluate(fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el ? el.textContent : null; })()`,
		selector))
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", models.NewScrapeError(models.ErrCodeElementNotFound,
			fmt.Sprintf("no element matches %q", selector), nil)
	}
	return v.Str(), nil
}

// HTML returns the serialized document.
func (h *Helper) HTML() (string, error) {
	v, err := h.Evaluate(`document.documentElement.outerHTML`)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}
