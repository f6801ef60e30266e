package models

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// URL is the target page to scrape. Required.
	URL string `json:"url" binding:"required,url"`

	// Scraper names the scraper profile. It keys proxy pools, timezones
	// and cache TTLs. Default: "default".
	Scraper string `json:"scraper,omitempty"`

	// Timeout is the maximum duration in seconds for one attempt.
	// Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// MaxAttempts bounds the retry loop. Default: 3.
	MaxAttempts int `json:"max_attempts,omitempty" binding:"omitempty,min=1,max=5"`

	// WaitSelector resolves the wait race when a node matching this CSS
	// selector appears in the DOM.
	WaitSelector string `json:"wait_selector,omitempty"`

	// WaitURLPattern resolves the wait race when a network request whose
	// URL matches this glob (or "re:" prefixed regex) completes.
	WaitURLPattern string `json:"wait_url_pattern,omitempty"`

	// WaitHTMLPattern resolves the wait race when the serialized document
	// matches this glob (or "re:" prefixed regex).
	WaitHTMLPattern string `json:"wait_html_pattern,omitempty"`

	// UseProxy routes the attempt through a pool proxy. Default: true.
	UseProxy *bool `json:"use_proxy,omitempty"`

	// NoCache bypasses the result cache for this request.
	NoCache bool `json:"no_cache,omitempty"`

	// Prefetch performs a lightweight Chrome-TLS-fingerprint HTTP probe
	// before spending a browser attempt, failing fast on dead targets.
	Prefetch bool `json:"prefetch,omitempty"`

	// OutputFormat controls the response content format.
	// Allowed: "markdown" (default), "html", "text".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=markdown html text"`

	// ExtractMode controls the content extraction strategy.
	// "readability" (default): extract main body before format conversion.
	// "raw": pass full rendered HTML directly to format conversion.
	ExtractMode string `json:"extract_mode,omitempty" binding:"omitempty,oneof=readability raw"`

	// CSSSelector filters the rendered HTML before cleaning. When set,
	// only the matched elements' outer HTML enters the pipeline.
	CSSSelector string `json:"css_selector,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults() {
	if r.Scraper == "" {
		r.Scraper = "default"
	}
	if r.Timeout == 0 {
		r.Timeout = 30
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.UseProxy == nil {
		t := true
		r.UseProxy = &t
	}
	if r.OutputFormat == "" {
		r.OutputFormat = "markdown"
	}
	if r.ExtractMode == "" {
		r.ExtractMode = "readability"
	}
}
