package models

import "time"

// DebugOptions tunes a single orchestrator run. The zero value is the
// most conservative setting: no proxy, no cache, no pauses — every
// capability is an explicit opt-in so a disabled proxy is always a
// visible decision, never a silent fallback.
type DebugOptions struct {
	// MaxAttempts is the number of end-to-end attempts before giving up.
	MaxAttempts int // default: 3

	// UseProxy routes the browser through a pool-selected proxy.
	UseProxy bool

	// BrowserDebug enables verbose browser logging (headful-friendly).
	BrowserDebug bool

	// UseCache enables result-cache reads; WriteCache enables writes.
	UseCache   bool
	WriteCache bool

	// PauseAfterError / PauseAfterRun block indefinitely for interactive
	// inspection of the live browser. Never set these in production.
	PauseAfterError bool
	PauseAfterRun   bool

	// Timezone overrides the proxy-derived timezone when non-empty.
	Timezone string

	// ShowRequests logs every tracked network request.
	ShowRequests bool

	// LogSink, when non-nil, receives every buffered log line as it is
	// written (live streaming in addition to the aggregated RunResult).
	LogSink func(line string) `json:"-"`
}

// Defaults fills unset fields with production defaults.
func (o *DebugOptions) Defaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
}

// ScraperMetadata describes one scraper target. Immutable per run.
type ScraperMetadata struct {
	// Name keys proxy pools, timezones and per-scraper cache TTLs.
	Name string

	// Timeout bounds a single attempt end to end.
	Timeout time.Duration

	// BlockedURLs are protocol-level URL patterns the browser refuses to load.
	BlockedURLs []string

	// CacheTTL overrides the global result-cache TTL when > 0.
	CacheTTL time.Duration
}

// RunResult is what the orchestrator hands back to the caller. Result is nil
// when every attempt failed; LogLines always carries the aggregated log of
// all attempts.
type RunResult struct {
	Result   any      `json:"result"`
	Attempts int      `json:"attempts"`
	LogLines []string `json:"log_lines"`
}

// AttemptRecord is the structured completion record emitted to the external
// sink after each attempt.
type AttemptRecord struct {
	RunID      string `json:"run_id"`
	Scraper    string `json:"scraper"`
	Attempt    int    `json:"attempt"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}
