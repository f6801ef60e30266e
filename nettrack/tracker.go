package nettrack

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// bodylessTypes are resource types that never carry a fetchable body, so a
// Network.getResponseBody round-trip for them is wasted.
var bodylessTypes = map[proto.NetworkResourceType]struct{}{
	proto.NetworkResourceTypeWebSocket:          {},
	proto.NetworkResourceTypePing:               {},
	proto.NetworkResourceTypeCSPViolationReport: {},
	proto.NetworkResourceTypePreflight:          {},
	proto.NetworkResourceTypeEventSource:        {},
}

// TrackedRequest is the lifecycle record for one network exchange. Fields
// are filled in as protocol events arrive; the record is handed to
// subscribers only once it reaches a terminal state.
type TrackedRequest struct {
	ID           proto.NetworkRequestID
	URL          string
	Method       string
	ResourceType proto.NetworkResourceType

	Status          int
	Headers         proto.NetworkHeaders
	MimeType        string
	FromCache       bool
	DownloadedBytes int64

	StartedAt  time.Time
	FinishedAt time.Time

	// Succeeded is true after LoadingFinished, false after LoadingFailed.
	Succeeded bool
	// Failure carries the protocol error or blocked reason on failure.
	Failure string

	// Body is the response body, fetched only when a subscriber was
	// waiting and the response was not a known bodyless case.
	Body []byte

	finalized bool
}

// bodyless reports whether fetching this request's body would be a wasted
// round-trip: HEAD/OPTIONS, 1xx/204/205/304, explicit zero content length,
// or a non-body resource type.
func (r *TrackedRequest) bodyless() bool {
	switch r.Method {
	case "HEAD", "OPTIONS":
		return true
	}
	if r.Status >= 100 && r.Status < 200 {
		return true
	}
	switch r.Status {
	case 204, 205, 304:
		return true
	}
	if _, ok := bodylessTypes[r.ResourceType]; ok {
		return true
	}
	for k, v := range r.Headers {
		if k == "Content-Length" || k == "content-length" {
			if n, err := strconv.ParseInt(v.Str(), 10, 64); err == nil && n == 0 {
				return true
			}
		}
	}
	return false
}

// Stats is a point-in-time aggregate of tracked activity. Cache hits are
// excluded from the byte count.
type Stats struct {
	Total           int
	CacheHits       int
	CacheMisses     int
	DownloadedBytes int64
}

type subscription struct {
	id      int
	pattern string
	cb      func(*TrackedRequest)
}

// Tracker subscribes to the protocol's Network events and maintains one
// TrackedRequest per request id. The request table and subscription list
// are owned exclusively by the Tracker; other components interact only
// through its published operations.
type Tracker struct {
	page *rod.Page

	mu       sync.Mutex
	requests map[proto.NetworkRequestID]*TrackedRequest
	subs     []*subscription
	nextSub  int
	stats    Stats
	lastResp time.Time

	showRequests bool
	cancel       context.CancelFunc
	done         chan struct{}
}

// New creates a Tracker bound to page and starts consuming Network events.
// The protocol guarantees per-id ordering but ids interleave arbitrarily,
// and any event kind may be the first seen for an id, so records are
// created lazily on first sight.
func New(ctx context.Context, page *rod.Page, showRequests bool) *Tracker {
	evCtx, cancel := context.WithCancel(ctx)
	t := &Tracker{
		page:         page,
		requests:     make(map[proto.NetworkRequestID]*TrackedRequest),
		showRequests: showRequests,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	evPage := page.Context(evCtx)
	wait := evPage.EachEvent(
		t.onRequestWillBeSent,
		t.onServedFromCache,
		t.onResponseReceived,
		t.onDataReceived,
		t.onLoadingFinished,
		t.onLoadingFailed,
	)
	go func() {
		defer close(t.done)
		wait()
	}()
	return t
}

// Close stops event consumption and waits for the event loop to drain.
func (t *Tracker) Close() error {
	t.cancel()
	<-t.done
	return nil
}

// record returns the request record for id, creating a blank one on first
// sight. Caller must hold t.mu.
func (t *Tracker) record(id proto.NetworkRequestID) *TrackedRequest {
	r, ok := t.requests[id]
	if !ok {
		r = &TrackedRequest{ID: id}
		t.requests[id] = r
		t.stats.Total++
	}
	return r
}

func (t *Tracker) onRequestWillBeSent(e *proto.NetworkRequestWillBeSent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.record(e.RequestID)
	r.URL = e.Request.URL
	r.Method = e.Request.Method
	r.ResourceType = e.Type
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if t.showRequests {
		slog.Info("request", "method", r.Method, "url", r.URL)
	}
}

func (t *Tracker) onServedFromCache(e *proto.NetworkRequestServedFromCache) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(e.RequestID).FromCache = true
}

func (t *Tracker) onResponseReceived(e *proto.NetworkResponseReceived) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.record(e.RequestID)
	r.Status = e.Response.Status
	r.Headers = e.Response.Headers
	r.MimeType = e.Response.MIMEType
	if e.Response.FromDiskCache || e.Response.FromPrefetchCache {
		r.FromCache = true
	}
	if !r.FromCache {
		r.DownloadedBytes += int64(e.Response.EncodedDataLength)
	}
	t.lastResp = time.Now()
}

func (t *Tracker) onDataReceived(e *proto.NetworkDataReceived) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.record(e.RequestID)
	if !r.FromCache {
		r.DownloadedBytes += int64(e.EncodedDataLength)
	}
}

func (t *Tracker) onLoadingFinished(e *proto.NetworkLoadingFinished) {
	t.finalize(e.RequestID, true, "")
}

func (t *Tracker) onLoadingFailed(e *proto.NetworkLoadingFailed) {
	reason := e.ErrorText
	if e.BlockedReason != "" {
		reason = string(e.BlockedReason)
	}
	t.finalize(e.RequestID, false, reason)
}

// finalize moves a record to its terminal state, fetches the body if a
// subscriber is waiting for it, and fires matching subscriptions. Each
// subscription fires at most once and is removed before its callback runs.
func (t *Tracker) finalize(id proto.NetworkRequestID, succeeded bool, failure string) {
	t.mu.Lock()
	r := t.record(id)
	if r.finalized {
		t.mu.Unlock()
		return
	}
	r.finalized = true
	r.Succeeded = succeeded
	r.Failure = failure
	r.FinishedAt = time.Now()
	if r.FromCache {
		t.stats.CacheHits++
	} else {
		t.stats.CacheMisses++
		t.stats.DownloadedBytes += r.DownloadedBytes
	}

	var matched []*subscription
	remaining := t.subs[:0]
	for _, s := range t.subs {
		if MatchPattern(s.pattern, r.URL) {
			matched = append(matched, s)
		} else {
			remaining = append(remaining, s)
		}
	}
	t.subs = remaining
	t.mu.Unlock()

	if len(matched) == 0 {
		return
	}

	if !r.bodyless() {
		res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(t.page)
		if err != nil {
			slog.Debug("body fetch failed", "url", r.URL, "error", err)
		} else if res.Base64Encoded {
			if decoded, decErr := base64.StdEncoding.DecodeString(res.Body); decErr == nil {
				r.Body = decoded
			}
		} else {
			r.Body = []byte(res.Body)
		}
	}

	for _, s := range matched {
		s.cb(r)
	}
}

// SubscribeToURL registers cb for the first completed request whose URL
// matches pattern (glob, or regex with the "re:" prefix). The subscription
// fires at most once, auto-unsubscribing before the callback is invoked.
// The returned function removes the subscription early; calling it after
// the subscription fired is a no-op.
func (t *Tracker) SubscribeToURL(pattern string, cb func(*TrackedRequest)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &subscription{id: t.nextSub, pattern: pattern, cb: cb}
	t.nextSub++
	t.subs = append(t.subs, s)

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, existing := range t.subs {
			if existing.id == s.id {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

// Stats returns a snapshot of the aggregate counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// LastResponseAt returns the time of the most recently observed network
// response, or the zero time if none arrived yet. Wait combinators use it
// to re-arm their sliding timeout.
func (t *Tracker) LastResponseAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastResp
}
