package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/awardscan/scrapecore/api/handler"
	"github.com/awardscan/scrapecore/api/middleware"
	"github.com/awardscan/scrapecore/cleaner"
	"github.com/awardscan/scrapecore/config"
	"github.com/awardscan/scrapecore/fetch"
	"github.com/awardscan/scrapecore/scraper"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(o *scraper.Orchestrator, cl *cleaner.Cleaner, prober *fetch.Fetcher, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(startTime, Version))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/scrape", handler.Scrape(o, cl, prober))
	protected.DELETE("/cache", handler.SweepCache(o.Cache()))

	return r
}
