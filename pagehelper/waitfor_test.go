package pagehelper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/awardscan/scrapecore/nettrack"
)

// fakeTracker implements Tracker with manually fired completions.
type fakeTracker struct {
	mu       sync.Mutex
	subs     map[int]fakeSub
	nextID   int
	lastResp time.Time
}

type fakeSub struct {
	pattern string
	cb      func(*nettrack.TrackedRequest)
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{subs: make(map[int]fakeSub)}
}

func (f *fakeTracker) SubscribeToURL(pattern string, cb func(*nettrack.TrackedRequest)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fakeSub{pattern: pattern, cb: cb}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeTracker) LastResponseAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastResp
}

// complete simulates a finalized request: each matching subscription is
// removed before its callback runs, mirroring the real tracker.
func (f *fakeTracker) complete(r *nettrack.TrackedRequest) {
	f.mu.Lock()
	f.lastResp = time.Now()
	var fire []func(*nettrack.TrackedRequest)
	for id, s := range f.subs {
		if nettrack.MatchPattern(s.pattern, r.URL) {
			fire = append(fire, s.cb)
			delete(f.subs, id)
		}
	}
	f.mu.Unlock()
	for _, cb := range fire {
		cb(r)
	}
}

func (f *fakeTracker) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func newTestHelper(tr Tracker, idle time.Duration) *Helper {
	return &Helper{tracker: tr, idleTimeout: idle}
}

func TestWaitFor_URLConditionWins(t *testing.T) {
	tr := newFakeTracker()
	h := newTestHelper(tr, time.Minute)

	done := make(chan struct{})
	var result *WaitResult
	var err error
	go func() {
		defer close(done)
		result, err = h.WaitFor(context.Background(), map[string]WaitItem{
			"search": {URL: &URLWait{Pattern: "*api/search*"}},
		})
	}()

	time.Sleep(20 * time.Millisecond)
	tr.complete(&nettrack.TrackedRequest{URL: "https://x.test/api/search?q=1", Status: 200})

	<-done
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if result.Name != "search" || result.Response == nil || result.Response.Status != 200 {
		t.Errorf("result = %+v", result)
	}
	if tr.pending() != 0 {
		t.Errorf("%d subscriptions still pending after resolution", tr.pending())
	}
}

func TestWaitFor_StatusMismatchIgnoredThenMatched(t *testing.T) {
	tr := newFakeTracker()
	h := newTestHelper(tr, time.Minute)

	done := make(chan struct{})
	var result *WaitResult
	go func() {
		defer close(done)
		result, _ = h.WaitFor(context.Background(), map[string]WaitItem{
			"api": {URL: &URLWait{Pattern: "*api*", Status: 200}},
		})
	}()

	time.Sleep(20 * time.Millisecond)
	tr.complete(&nettrack.TrackedRequest{URL: "https://x.test/api", Status: 503})
	time.Sleep(20 * time.Millisecond)
	tr.complete(&nettrack.TrackedRequest{URL: "https://x.test/api", Status: 200})

	<-done
	if result == nil || result.Name != "api" || result.Response.Status != 200 {
		t.Errorf("result = %+v", result)
	}
}

func TestWaitFor_StatusMismatchFatal(t *testing.T) {
	tr := newFakeTracker()
	h := newTestHelper(tr, time.Minute)

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = h.WaitFor(context.Background(), map[string]WaitItem{
			"api": {URL: &URLWait{Pattern: "*api*", Status: 200, StatusFatal: true}},
		})
	}()

	time.Sleep(20 * time.Millisecond)
	tr.complete(&nettrack.TrackedRequest{URL: "https://x.test/api", Status: 403})

	<-done
	if err == nil {
		t.Fatal("fatal status mismatch did not fail the race")
	}
}

func TestWaitFor_SlidingTimeout(t *testing.T) {
	tr := newFakeTracker()
	h := newTestHelper(tr, 80*time.Millisecond)

	start := time.Now()
	result, err := h.WaitFor(context.Background(), map[string]WaitItem{
		"never": {URL: &URLWait{Pattern: "*will-not-happen*"}},
	})
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if result.Name != TimeoutName {
		t.Fatalf("result = %+v, want timeout", result)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("timed out after %v, before the idle window elapsed", elapsed)
	}
	if tr.pending() != 0 {
		t.Errorf("%d subscriptions leaked past the timeout", tr.pending())
	}
}

func TestWaitFor_TimeoutReArmsOnActivity(t *testing.T) {
	tr := newFakeTracker()
	h := newTestHelper(tr, 100*time.Millisecond)

	// Unrelated responses keep arriving for a while; the window must
	// re-arm from each one instead of expiring at start+100ms.
	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(60 * time.Millisecond)
			tr.complete(&nettrack.TrackedRequest{URL: "https://x.test/keepalive", Status: 200})
		}
	}()

	start := time.Now()
	result, err := h.WaitFor(context.Background(), map[string]WaitItem{
		"never": {URL: &URLWait{Pattern: "*no-match*"}},
	})
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if result.Name != TimeoutName {
		t.Fatalf("result = %+v", result)
	}
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Errorf("window expired after %v despite ongoing activity", elapsed)
	}
}

func TestWaitFor_ContextCancellation(t *testing.T) {
	tr := newFakeTracker()
	h := newTestHelper(tr, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := h.WaitFor(ctx, map[string]WaitItem{
		"never": {URL: &URLWait{Pattern: "*no*"}},
	})
	if err == nil {
		t.Fatal("cancelled context did not surface an error")
	}
	if tr.pending() != 0 {
		t.Errorf("%d subscriptions leaked past cancellation", tr.pending())
	}
}

func TestWaitFor_RejectsAmbiguousItems(t *testing.T) {
	h := newTestHelper(newFakeTracker(), time.Minute)

	_, err := h.WaitFor(context.Background(), map[string]WaitItem{
		"bad": {URL: &URLWait{Pattern: "*"}, Selector: "div"},
	})
	if err == nil {
		t.Fatal("ambiguous wait item accepted")
	}
	_, err = h.WaitFor(context.Background(), map[string]WaitItem{"empty": {}})
	if err == nil {
		t.Fatal("empty wait item accepted")
	}
}
