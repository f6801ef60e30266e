package intercept

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/awardscan/scrapecore/models"
)

// Exchange is the ephemeral view of one paused request handed to
// interceptors. It lives only for the duration of one protocol callback;
// interceptors may read and record from it but never touch the protocol
// exchange directly.
type Exchange struct {
	Event *proto.FetchRequestPaused

	// IsResponse is true when the pause happened at the response stage.
	IsResponse bool

	// Body is the decoded response body. Populated only for
	// response-stage pauses and only when at least one interceptor is
	// registered at dispatch time.
	Body []byte
}

// Interceptor inspects one paused exchange. Interceptors run sequentially
// in registration order; an error aborts the remaining interceptors for
// that event but never the session.
type Interceptor func(ctx context.Context, ex *Exchange) error

// AuthProvider supplies credentials for proxy auth challenges. ok=false
// means no credentials are available.
type AuthProvider func() (username, password string, ok bool)

// Dispatcher owns protocol-level request interception for one attempt.
type Dispatcher struct {
	page *rod.Page
	auth AuthProvider

	mu           sync.Mutex
	interceptors []Interceptor

	cancel context.CancelFunc
	done   chan struct{}
}

// Enable turns on Fetch-domain interception for both request and response
// stages. Auth handling is requested from the protocol only when an auth
// provider is registered.
func Enable(ctx context.Context, page *rod.Page, auth AuthProvider) (*Dispatcher, error) {
	err := proto.FetchEnable{
		Patterns: []*proto.FetchRequestPattern{
			{URLPattern: "*", RequestStage: proto.FetchRequestStageRequest},
			{URLPattern: "*", RequestStage: proto.FetchRequestStageResponse},
		},
		HandleAuthRequests: auth != nil,
	}.Call(page)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeProtocol, "failed to enable interception", err)
	}

	evCtx, cancel := context.WithCancel(ctx)
	d := &Dispatcher{
		page:   page,
		auth:   auth,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	evPage := page.Context(evCtx)
	wait := evPage.EachEvent(
		func(e *proto.FetchRequestPaused) { d.onPaused(evCtx, e) },
		func(e *proto.FetchAuthRequired) { d.onAuthRequired(e) },
	)
	go func() {
		defer close(d.done)
		wait()
	}()
	return d, nil
}

// AddInterceptor registers fn. Interceptors are attempt-scoped; there is
// no removal.
func (d *Dispatcher) AddInterceptor(fn Interceptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interceptors = append(d.interceptors, fn)
}

// Close disables interception and stops the event loop. Best-effort: a
// failed disable must not leak the event goroutine.
func (d *Dispatcher) Close() error {
	if err := (proto.FetchDisable{}).Call(d.page); err != nil {
		slog.Debug("teardown: fetch disable failed", "error", err)
	}
	d.cancel()
	<-d.done
	return nil
}

// onPaused classifies the stage, enriches response-stage events with the
// decoded body when anyone is listening, runs the interceptor chain, and
// always concludes by continuing the request with response interception
// enabled. Continuation errors are swallowed: the browser may already
// have dropped the request, and re-continuing is idempotent.
func (d *Dispatcher) onPaused(ctx context.Context, e *proto.FetchRequestPaused) {
	d.mu.Lock()
	chain := make([]Interceptor, len(d.interceptors))
	copy(chain, d.interceptors)
	d.mu.Unlock()

	ex := &Exchange{
		Event:      e,
		IsResponse: e.ResponseStatusCode != nil || e.ResponseErrorReason != "",
	}

	if ex.IsResponse && len(chain) > 0 {
		if body, err := (proto.FetchGetResponseBody{RequestID: e.RequestID}).Call(d.page); err == nil {
			if body.Base64Encoded {
				if decoded, decErr := base64.StdEncoding.DecodeString(body.Body); decErr == nil {
					ex.Body = decoded
				}
			} else {
				ex.Body = []byte(body.Body)
			}
		} else {
			slog.Debug("intercepted body fetch failed", "url", e.Request.URL, "error", err)
		}
	}

	for _, fn := range chain {
		if err := fn(ctx, ex); err != nil {
			slog.Warn("interceptor failed", "url", e.Request.URL, "error", err)
			break
		}
	}

	err := proto.FetchContinueRequest{
		RequestID:         e.RequestID,
		InterceptResponse: true,
	}.Call(d.page)
	if err != nil {
		slog.Debug("continuation failed", "url", e.Request.URL, "error", err)
	}
}

// onAuthRequired answers proxy auth challenges with the provider's
// credentials, deferring everything else to the browser's default
// handling.
func (d *Dispatcher) onAuthRequired(e *proto.FetchAuthRequired) {
	response := &proto.FetchAuthChallengeResponse{
		Response: proto.FetchAuthChallengeResponseResponseDefault,
	}
	if d.auth != nil && e.AuthChallenge != nil && e.AuthChallenge.Source == proto.FetchAuthChallengeSourceProxy {
		if username, password, ok := d.auth(); ok {
			response = &proto.FetchAuthChallengeResponse{
				Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
				Username: username,
				Password: password,
			}
		}
	}
	err := proto.FetchContinueWithAuth{
		RequestID:             e.RequestID,
		AuthChallengeResponse: response,
	}.Call(d.page)
	if err != nil {
		slog.Debug("auth continuation failed", "error", err)
	}
}
