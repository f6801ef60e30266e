package scraper

import (
	"context"
	"math/rand"

	"github.com/awardscan/scrapecore/browser"
	"github.com/awardscan/scrapecore/cache"
	"github.com/awardscan/scrapecore/human"
	"github.com/awardscan/scrapecore/intercept"
	"github.com/awardscan/scrapecore/models"
	"github.com/awardscan/scrapecore/nettrack"
	"github.com/awardscan/scrapecore/pagehelper"
	"github.com/awardscan/scrapecore/proxy"
)

// Session is the shared context of one attempt. Plugins load in declared
// order, each filling its capability slot; a plugin may rely on every
// slot filled before its own and nothing after. The whole session is
// scoped to a single attempt — a retry builds a brand-new one.
type Session struct {
	RunID   string
	Attempt int
	Meta    models.ScraperMetadata
	Opts    models.DebugOptions
	Log     *Log

	// Rand seeds all stealth randomness (geometry, paths, sessions) so
	// tests can pin it.
	Rand *rand.Rand

	// Capability slots, in load order.
	Proxy     *proxy.Selection
	Browser   *browser.Browser
	Mouse     *human.Mouse
	Net       *nettrack.Tracker
	Intercept *intercept.Dispatcher
	Page      *pagehelper.Helper

	// Cache is the run-scoped result cache (shared across attempts).
	Cache *cache.Cache
}

// Plugin contributes one capability to the session. Init fills the
// plugin's slot and returns its teardown, or nil when there is nothing
// to tear down. An Init error aborts the attempt; teardown of the
// already-loaded plugins still runs, in reverse order.
type Plugin struct {
	Name string
	Init func(ctx context.Context, s *Session) (close func(), err error)
}
