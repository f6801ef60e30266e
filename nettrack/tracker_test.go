package nettrack

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

// newBareTracker builds a Tracker without a page or event loop, driving
// the protocol handlers directly. Requests used here are HEAD so finalize
// never attempts a body fetch over the wire.
func newBareTracker() *Tracker {
	return &Tracker{
		requests: make(map[proto.NetworkRequestID]*TrackedRequest),
		done:     make(chan struct{}),
	}
}

func sendRequest(t *Tracker, id, url, method string) {
	t.onRequestWillBeSent(&proto.NetworkRequestWillBeSent{
		RequestID: proto.NetworkRequestID(id),
		Request:   &proto.NetworkRequest{URL: url, Method: method},
		Type:      proto.NetworkResourceTypeXHR,
	})
}

func sendResponse(t *Tracker, id string, status int, encoded float64) {
	t.onResponseReceived(&proto.NetworkResponseReceived{
		RequestID: proto.NetworkRequestID(id),
		Response:  &proto.NetworkResponse{Status: status, EncodedDataLength: encoded},
	})
}

func TestLifecycle_HappyPath(t *testing.T) {
	tr := newBareTracker()

	sendRequest(tr, "1", "https://api.example.com/flights", "HEAD")
	sendResponse(tr, "1", 200, 512)
	tr.onDataReceived(&proto.NetworkDataReceived{
		RequestID: "1", EncodedDataLength: 256,
	})
	tr.onLoadingFinished(&proto.NetworkLoadingFinished{RequestID: "1"})

	stats := tr.Stats()
	if stats.Total != 1 || stats.CacheMisses != 1 || stats.CacheHits != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.DownloadedBytes != 768 {
		t.Errorf("downloaded bytes = %d, want 768", stats.DownloadedBytes)
	}

	r := tr.requests["1"]
	if !r.finalized || !r.Succeeded || r.Status != 200 {
		t.Errorf("record not finalized as success: %+v", r)
	}
}

func TestLifecycle_OutOfOrderFirstEvent(t *testing.T) {
	tr := newBareTracker()

	// Response arrives before the request-sent event was observed.
	sendResponse(tr, "77", 302, 100)
	if tr.Stats().Total != 1 {
		t.Fatal("record not created lazily on first-seen response event")
	}

	sendRequest(tr, "77", "https://example.com/", "HEAD")
	tr.onLoadingFinished(&proto.NetworkLoadingFinished{RequestID: "77"})

	r := tr.requests["77"]
	if r.URL != "https://example.com/" || r.Status != 302 {
		t.Errorf("merged record = %+v", r)
	}
}

func TestLifecycle_CacheHitExcludedFromBytes(t *testing.T) {
	tr := newBareTracker()

	sendRequest(tr, "c", "https://cdn.example.com/app.js", "HEAD")
	tr.onServedFromCache(&proto.NetworkRequestServedFromCache{RequestID: "c"})
	sendResponse(tr, "c", 200, 4096)
	tr.onLoadingFinished(&proto.NetworkLoadingFinished{RequestID: "c"})

	stats := tr.Stats()
	if stats.CacheHits != 1 || stats.CacheMisses != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.DownloadedBytes != 0 {
		t.Errorf("cache-served bytes counted: %d", stats.DownloadedBytes)
	}
}

func TestLifecycle_FailureCapturesReason(t *testing.T) {
	tr := newBareTracker()

	sendRequest(tr, "f", "https://blocked.example.com/", "HEAD")
	tr.onLoadingFailed(&proto.NetworkLoadingFailed{
		RequestID:     "f",
		ErrorText:     "net::ERR_FAILED",
		BlockedReason: proto.NetworkBlockedReasonInspector,
	})

	r := tr.requests["f"]
	if r.Succeeded || r.Failure != "inspector" {
		t.Errorf("failed record = %+v", r)
	}
}

func TestLifecycle_FinalizeIsIdempotent(t *testing.T) {
	tr := newBareTracker()

	fired := 0
	tr.SubscribeToURL("https://example.com/*", func(*TrackedRequest) { fired++ })

	sendRequest(tr, "x", "https://example.com/a", "HEAD")
	tr.onLoadingFinished(&proto.NetworkLoadingFinished{RequestID: "x"})
	tr.onLoadingFinished(&proto.NetworkLoadingFinished{RequestID: "x"})

	if fired != 1 {
		t.Errorf("subscription fired %d times, want 1", fired)
	}
}

func TestSubscribeToURL_FiresAtMostOnce(t *testing.T) {
	tr := newBareTracker()

	fired := 0
	tr.SubscribeToURL("*example.com/api/*", func(r *TrackedRequest) { fired++ })

	for _, id := range []string{"1", "2", "3"} {
		sendRequest(tr, id, "https://example.com/api/search", "HEAD")
		tr.onLoadingFinished(&proto.NetworkLoadingFinished{RequestID: proto.NetworkRequestID(id)})
	}
	if fired != 1 {
		t.Errorf("subscription fired %d times across matching responses, want 1", fired)
	}
}

func TestSubscribeToURL_UnsubscribePreventsCallback(t *testing.T) {
	tr := newBareTracker()

	fired := false
	unsub := tr.SubscribeToURL("*", func(*TrackedRequest) { fired = true })
	unsub()

	sendRequest(tr, "1", "https://example.com/", "HEAD")
	tr.onLoadingFinished(&proto.NetworkLoadingFinished{RequestID: "1"})

	if fired {
		t.Error("callback ran after unsubscribe")
	}
	// Unsubscribing twice is a no-op.
	unsub()
}

func TestBodyless(t *testing.T) {
	tests := []struct {
		name string
		req  TrackedRequest
		want bool
	}{
		{"plain GET", TrackedRequest{Method: "GET", Status: 200}, false},
		{"HEAD", TrackedRequest{Method: "HEAD", Status: 200}, true},
		{"OPTIONS", TrackedRequest{Method: "OPTIONS", Status: 200}, true},
		{"204", TrackedRequest{Method: "GET", Status: 204}, true},
		{"304", TrackedRequest{Method: "GET", Status: 304}, true},
		{"101 switching", TrackedRequest{Method: "GET", Status: 101}, true},
		{"websocket", TrackedRequest{Method: "GET", Status: 200, ResourceType: proto.NetworkResourceTypeWebSocket}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.bodyless(); got != tt.want {
				t.Errorf("bodyless() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "https://anything.example.com/x", true},
		{"*example.com/api/*", "https://example.com/api/v1", true},
		{"*example.com/api/*", "https://example.com/other", false},
		{"https://example.com/exact", "https://example.com/exact", true},
		{"https://example.com/exact", "https://example.com/exact/sub", false},
		{"re:.*/(api|graphql)/.*", "https://x.test/graphql/q", true},
		{"re:[invalid", "anything", false},
	}
	for _, tt := range tests {
		if got := MatchPattern(tt.pattern, tt.s); got != tt.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.s, got, tt.want)
		}
	}
}
