package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/awardscan/scrapecore/cache"
	"github.com/awardscan/scrapecore/cleaner"
	"github.com/awardscan/scrapecore/fetch"
	"github.com/awardscan/scrapecore/models"
	"github.com/awardscan/scrapecore/pagehelper"
	"github.com/awardscan/scrapecore/scraper"
)

// pageCapture is what the browser routine hands back: rendered HTML plus
// the facts only the live page knows. It round-trips through the result
// cache as JSON.
type pageCapture struct {
	HTML     string              `json:"html"`
	FinalURL string              `json:"final_url"`
	Title    string              `json:"title"`
	Network  models.NetworkStats `json:"network"`
}

// Scrape returns a handler for POST /api/v1/scrape.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Optional prefetch probe — fail fast on dead targets.
//  3. Orchestrator runs the browser routine (navigate, wait, capture).
//  4. Cleaner.Clean → Markdown/HTML/text   (records cleaning_ms)
//  5. Fill Timing, return 200.
func Scrape(o *scraper.Orchestrator, cl *cleaner.Cleaner, prober *fetch.Fetcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		// Probe before paying for a browser: a dead origin or a hard
		// block shows up here in a fraction of the cost.
		if req.Prefetch && prober != nil {
			probe, err := prober.Do(c.Request.Context(), req.URL, "")
			if err != nil {
				respondError(c, models.NewScrapeError(models.ErrCodeNavigation,
					"prefetch probe failed", err), timing(totalStart, 0, 0))
				return
			}
			if probe.StatusCode >= http.StatusInternalServerError {
				respondError(c, models.NewScrapeError(models.ErrCodeNavigation,
					"prefetch probe answered "+http.StatusText(probe.StatusCode), nil),
					timing(totalStart, 0, 0))
				return
			}
		}

		opts := models.DebugOptions{
			MaxAttempts: req.MaxAttempts,
			UseProxy:    *req.UseProxy,
			UseCache:    !req.NoCache,
			WriteCache:  !req.NoCache,
		}
		meta := models.ScraperMetadata{
			Name:    req.Scraper,
			Timeout: time.Duration(req.Timeout) * time.Second,
		}
		var cacheKey string
		if !req.NoCache {
			// The cache stores the raw capture, before cleaning, so the
			// key ignores output options.
			cacheKey = cache.Key(req.URL, req.Scraper)
		}

		scrapeStart := time.Now()
		run := o.Run(c.Request.Context(), scrapeRoutine(&req), opts, meta, cacheKey)
		scrapeMs := time.Since(scrapeStart).Milliseconds()

		if run.Result == nil {
			c.JSON(http.StatusBadGateway, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeNavigation,
					Message: "all attempts failed",
				},
				Attempts: run.Attempts,
				LogLines: run.LogLines,
				Timing:   timing(totalStart, scrapeMs, 0),
			})
			return
		}

		capture, cacheStatus, err := decodeCapture(run.Result, cacheKey)
		if err != nil {
			respondError(c, err, timing(totalStart, scrapeMs, 0))
			return
		}

		cleanStart := time.Now()
		cleaned, err := cl.Clean(capture.HTML, req.URL, req.OutputFormat, req.ExtractMode, req.CSSSelector)
		cleaningMs := time.Since(cleanStart).Milliseconds()
		if err != nil {
			respondError(c, err, timing(totalStart, scrapeMs, cleaningMs))
			return
		}

		// Readability usually extracts a better title, but on fallback
		// (raw-HTML passthrough) it is empty; document.title is the net.
		if cleaned.Metadata.Title == "" {
			cleaned.Metadata.Title = capture.Title
		}

		c.JSON(http.StatusOK, models.ScrapeResponse{
			Success:     true,
			FinalURL:    capture.FinalURL,
			Content:     cleaned.Content,
			Metadata:    cleaned.Metadata,
			Network:     capture.Network,
			Timing:      timing(totalStart, scrapeMs, cleaningMs),
			CacheStatus: cacheStatus,
			Attempts:    run.Attempts,
			LogLines:    run.LogLines,
		})
	}
}

// scrapeRoutine builds the per-attempt browser routine: navigate, race
// the request's wait conditions, capture the rendered page.
func scrapeRoutine(req *models.ScrapeRequest) scraper.Routine {
	return func(ctx context.Context, s *scraper.Session) (any, error) {
		if err := s.Page.Goto(req.URL); err != nil {
			return nil, err
		}

		items := map[string]pagehelper.WaitItem{}
		if req.WaitSelector != "" {
			items["selector"] = pagehelper.WaitItem{Selector: req.WaitSelector}
		}
		if req.WaitURLPattern != "" {
			items["url"] = pagehelper.WaitItem{URL: &pagehelper.URLWait{Pattern: req.WaitURLPattern}}
		}
		if req.WaitHTMLPattern != "" {
			items["html"] = pagehelper.WaitItem{HTML: req.WaitHTMLPattern}
		}

		settled, err := s.Page.WaitFor(ctx, items)
		if err != nil {
			return nil, err
		}
		// With no declared conditions, network idle is the finish line;
		// with conditions, idling out means none of them ever matched.
		if settled.Name == pagehelper.TimeoutName && len(items) > 0 {
			return nil, models.NewScrapeError(models.ErrCodeWaitTimeout,
				"page went idle before any wait condition matched", nil)
		}
		s.Log.Printf("wait settled on %q", settled.Name)

		html, err := s.Page.HTML()
		if err != nil {
			return nil, err
		}

		capture := &pageCapture{HTML: html, FinalURL: req.URL}
		if v, evalErr := s.Page.Evaluate(`location.href`); evalErr == nil {
			capture.FinalURL = v.Str()
		}
		if v, evalErr := s.Page.Evaluate(`document.title`); evalErr == nil {
			capture.Title = v.Str()
		}
		stats := s.Net.Stats()
		capture.Network = models.NetworkStats{
			TotalRequests:   stats.Total,
			CacheHits:       stats.CacheHits,
			CacheMisses:     stats.CacheMisses,
			DownloadedBytes: stats.DownloadedBytes,
		}
		return capture, nil
	}
}

// decodeCapture normalizes the orchestrator result: a live routine hands
// back *pageCapture, a cache hit hands back the stored JSON.
func decodeCapture(result any, cacheKey string) (*pageCapture, string, error) {
	switch v := result.(type) {
	case *pageCapture:
		status := ""
		if cacheKey != "" {
			status = "miss"
		}
		return v, status, nil
	case json.RawMessage:
		var capture pageCapture
		if err := json.Unmarshal(v, &capture); err != nil {
			return nil, "", models.NewScrapeError(models.ErrCodeCache,
				"cached capture is unreadable", err)
		}
		return &capture, "hit", nil
	default:
		return nil, "", models.NewScrapeError(models.ErrCodeInternal,
			"unexpected routine result type", nil)
	}
}

func timing(totalStart time.Time, scrapeMs, cleaningMs int64) models.TimingInfo {
	return models.TimingInfo{
		TotalMs:    time.Since(totalStart).Milliseconds(),
		ScrapeMs:   scrapeMs,
		CleaningMs: cleaningMs,
	}
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	scrapeErr, ok := err.(*models.ScrapeError)
	if !ok {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(scrapeErr), models.ScrapeResponse{
		Success: false,
		Error:   scrapeErr.ToDetail(),
		Timing:  timing,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout, models.ErrCodeWaitTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
