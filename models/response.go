package models

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	// Success indicates whether any attempt produced a result.
	Success bool `json:"success"`

	// FinalURL is the URL after following all redirects.
	FinalURL string `json:"final_url,omitempty"`

	// Content is the cleaned output in the requested format.
	Content string `json:"content,omitempty"`

	// Metadata contains extracted page metadata.
	Metadata Metadata `json:"metadata"`

	// Network aggregates the attempt's tracked network activity.
	Network NetworkStats `json:"network"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the result was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Attempts is the number of attempts consumed.
	Attempts int `json:"attempts,omitempty"`

	// LogLines is the aggregated attempt log (all attempts).
	LogLines []string `json:"log_lines,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// NetworkStats aggregates tracked requests for one run.
type NetworkStats struct {
	TotalRequests   int   `json:"total_requests"`
	CacheHits       int   `json:"cache_hits"`
	CacheMisses     int   `json:"cache_misses"`
	DownloadedBytes int64 `json:"downloaded_bytes"`
}

// Metadata holds page-level information extracted during scraping.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	Language    string `json:"language,omitempty"`
	SourceURL   string `json:"source_url"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// ScrapeMs is the time spent inside the orchestrator.
	ScrapeMs int64 `json:"scrape_ms"`

	// CleaningMs is the time spent extracting and converting content.
	CleaningMs int64 `json:"cleaning_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "degraded"
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}
