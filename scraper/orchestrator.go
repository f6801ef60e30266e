package scraper

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/awardscan/scrapecore/cache"
	"github.com/awardscan/scrapecore/config"
	"github.com/awardscan/scrapecore/models"
	"github.com/awardscan/scrapecore/proxy"
	"github.com/awardscan/scrapecore/webhook"
)

// defaultAttemptTimeout bounds an attempt when the metadata carries none.
const defaultAttemptTimeout = 60 * time.Second

// Routine is the caller-supplied body of a run. It receives the fully
// loaded session and returns the scrape result.
type Routine func(ctx context.Context, s *Session) (any, error)

// Orchestrator runs routines against freshly built sessions, retrying on
// failure and tearing each attempt down completely before the next one
// starts.
type Orchestrator struct {
	record  config.RecordConfig
	cache   *cache.Cache
	plugins []Plugin
	rnd     *rand.Rand
}

// New builds an Orchestrator with the default plugin chain.
func New(cfg *config.Config) *Orchestrator {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Orchestrator{
		record:  cfg.Record,
		cache:   cache.New(cfg.Cache.Root, cfg.Cache.DefaultTTL),
		plugins: defaultPlugins(cfg.Browser, proxy.NewSelector(cfg.Proxy, rnd)),
		rnd:     rnd,
	}
}

// Cache exposes the orchestrator's result cache for sweep endpoints.
func (o *Orchestrator) Cache() *cache.Cache { return o.cache }

// Run executes routine with retries. It never returns an error past its
// own boundary: when every attempt fails the RunResult carries a nil
// Result and the full aggregated log, leaving the "no result" vs
// "error" interpretation to the caller. The whole routine body is
// wrapped by the result cache when cacheKey is non-empty.
func (o *Orchestrator) Run(ctx context.Context, routine Routine, opts models.DebugOptions, meta models.ScraperMetadata, cacheKey string) *models.RunResult {
	opts.Defaults()
	log := NewLog(opts.LogSink)
	runID := uuid.NewString()

	timeout := meta.Timeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		log.Printf("attempt %d/%d starting (%s)", attempt, opts.MaxAttempts, meta.Name)
		started := time.Now()

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := o.attempt(attemptCtx, routine, opts, meta, cacheKey, log, runID, attempt)
		cancel()

		o.emitRecord(runID, meta.Name, attempt, time.Since(started), err)

		if err == nil {
			log.Printf("attempt %d succeeded in %s", attempt, time.Since(started).Round(time.Millisecond))
			return &models.RunResult{Result: result, Attempts: attempt, LogLines: log.Lines()}
		}
		log.Printf("attempt %d failed: %v", attempt, err)

		if ctx.Err() != nil {
			log.Printf("run context cancelled, not retrying")
			return &models.RunResult{Result: nil, Attempts: attempt, LogLines: log.Lines()}
		}
	}

	log.Printf("all attempts exhausted for %s", meta.Name)
	return &models.RunResult{Result: nil, Attempts: opts.MaxAttempts, LogLines: log.Lines()}
}

// attempt walks the state machine of a single attempt: load the plugin
// chain in order, run the routine, tear down in strict reverse order. A
// plugin failure aborts loading; the already-loaded closers still run.
func (o *Orchestrator) attempt(ctx context.Context, routine Routine, opts models.DebugOptions, meta models.ScraperMetadata, cacheKey string, log *Log, runID string, attempt int) (result any, err error) {
	s := &Session{
		RunID:   runID,
		Attempt: attempt,
		Meta:    meta,
		Opts:    opts,
		Log:     log,
		Rand:    o.rnd,
		Cache:   o.cache,
	}

	var closers []func()
	defer func() {
		if err != nil && opts.PauseAfterError {
			pause(log, "error")
		}
		// Reverse-order teardown, every closer isolated: one failed
		// cleanup never blocks the next.
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	for _, p := range o.plugins {
		closer, initErr := p.Init(ctx, s)
		if closer != nil {
			closers = append(closers, closer)
		}
		if initErr != nil {
			return nil, models.NewScrapeError(models.ErrCodeInternal,
				"plugin "+p.Name+" failed to load", initErr)
		}
	}

	result, err = o.cache.RunAndCache(ctx, cacheKey, meta.CacheTTL, opts.UseCache, opts.WriteCache,
		func(ctx context.Context) (any, error) {
			return routine(ctx, s)
		})
	if err != nil {
		return nil, err
	}

	if opts.PauseAfterRun {
		pause(log, "run")
	}
	return result, nil
}

// pause suspends the attempt indefinitely so a developer can inspect the
// live browser. It is a deliberate hard block with no external cancel.
func pause(log *Log, after string) {
	log.Printf("paused after %s for inspection; kill the process to continue", after)
	select {}
}

// emitRecord delivers the structured attempt record to the configured
// external sink. Fire-and-forget: record delivery never affects the run.
func (o *Orchestrator) emitRecord(runID, scraper string, attempt int, d time.Duration, err error) {
	if o.record.URL == "" {
		return
	}
	rec := models.AttemptRecord{
		RunID:      runID,
		Scraper:    scraper,
		Attempt:    attempt,
		Success:    err == nil,
		DurationMs: d.Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	webhook.DeliverAsync(o.record.URL, o.record.Secret, &webhook.Event{
		Type:      "attempt.completed",
		JobID:     runID,
		Timestamp: time.Now().Unix(),
		Data:      rec,
	})
}
