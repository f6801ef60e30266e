package cleaner

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/awardscan/scrapecore/models"
)

// Cleaner orchestrates the two-stage cleaning pipeline:
//
//	Stage 1 (readability): extract main content, strip nav/footer/sidebar/ads
//	Stage 2 (markdown):    convert clean HTML → Markdown (or html/text pass-through)
//
// The converter is created once and reused across all requests (goroutine-safe).
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{
		mdConverter: newMarkdownConverter(),
	}
}

// Result is the cleaned content plus the metadata readability recovered.
type Result struct {
	Content  string
	Metadata models.Metadata
}

// Clean runs the pipeline on rendered page HTML.
//
// Flow:
//  1. Apply the CSS selector filter when one is given.
//  2. Stage 1: readability extracts main content ("raw" mode skips it).
//     Fallback: if extraction fails or content is too short, use raw HTML.
//  3. Stage 2: convert to the requested output format.
func (c *Cleaner) Clean(rawHTML, sourceURL, format, extractMode, cssSelector string) (*Result, error) {
	if cssSelector != "" {
		filtered, err := ApplyCSSSelector(rawHTML, cssSelector)
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
				"invalid css selector", err)
		}
		rawHTML = filtered
	}

	article := fallbackArticle(rawHTML)
	if extractMode != "raw" {
		article, _ = ExtractContent(rawHTML, sourceURL)
	}

	var content string
	var err error
	switch format {
	case "html":
		content = article.Content
	case "text":
		content = article.TextContent
	default:
		// "markdown" and anything unknown.
		content, err = ToMarkdown(c.mdConverter, article.Content, sourceURL)
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeInternal,
				"markdown conversion failed", err)
		}
	}

	return &Result{
		Content: content,
		Metadata: models.Metadata{
			Title:       article.Title,
			Description: article.Excerpt,
			SiteName:    article.SiteName,
			Language:    article.Language,
			SourceURL:   sourceURL,
		},
	}, nil
}
