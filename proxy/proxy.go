package proxy

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"regexp"
	"strings"

	"github.com/awardscan/scrapecore/config"
	"github.com/awardscan/scrapecore/models"
)

// sessionPattern matches pool credentials of the shape
// "<16 char prefix>_country-<cc>_session-<8 char suffix>". Usernames in
// this shape carry a sticky-session marker understood by the upstream
// provider; replacing the suffix forces a fresh exit IP.
var sessionPattern = regexp.MustCompile(`^(.{16}_country-[A-Za-z]+_session-)([A-Za-z0-9]{8})$`)

const sessionAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Selector picks proxies out of configured pools. Safe for concurrent use
// as long as the rand source is; the default source is rand.New per call
// site, so construct one Selector per orchestrator.
type Selector struct {
	cfg  config.ProxyConfig
	rand *rand.Rand
}

// Selection is one resolved proxy choice for a single attempt.
type Selection struct {
	// URL is the full proxy URL including rotated credentials.
	URL *url.URL

	// Username and Password answer proxy auth challenges.
	Username string
	Password string

	// Timezone is the IANA zone matching the proxy's geography. Empty
	// means no override.
	Timezone string
}

// Host returns the proxy host (no port).
func (s *Selection) Host() string {
	if s == nil || s.URL == nil {
		return ""
	}
	return s.URL.Hostname()
}

// Server returns the scheme://host:port form passed to the browser's
// proxy-server flag (credentials stripped; they go through the auth
// challenge instead).
func (s *Selection) Server() string {
	if s == nil || s.URL == nil {
		return ""
	}
	u := *s.URL
	u.User = nil
	return strings.TrimSuffix(u.String(), "/")
}

// AuthHandler returns the credentials supplied on a proxy auth challenge,
// or ok=false when the selection is proxyless or credential-free.
func (s *Selection) AuthHandler() (username, password string, ok bool) {
	if s == nil || s.Username == "" {
		return "", "", false
	}
	return s.Username, s.Password, true
}

// NewSelector creates a Selector over the given pools. rnd may be nil, in
// which case selections are non-deterministic.
func NewSelector(cfg config.ProxyConfig, rnd *rand.Rand) *Selector {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Selector{cfg: cfg, rand: rnd}
}

// Pick chooses a proxy for the named scraper: uniform random over the
// scraper's pool (default pool fallback), session suffix rotated, timezone
// resolved. A nil Selection with nil error means proxyless operation —
// that is an explicit, logged opt-out, never a silent one.
func (s *Selector) Pick(scraper string) (*Selection, error) {
	pool := s.cfg.Pool(scraper)
	if len(pool) == 0 {
		slog.Warn("no proxy pool configured, operating proxyless", "scraper", scraper)
		return nil, nil
	}

	raw := pool[s.rand.Intn(len(pool))]
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil, models.NewScrapeError(
			models.ErrCodeConfiguration,
			fmt.Sprintf("malformed proxy URL in pool for %q", scraper),
			err,
		)
	}

	sel := &Selection{URL: u, Timezone: s.cfg.Timezone(scraper)}
	if user := u.User; user != nil {
		sel.Username = s.rotateSession(user.Username())
		sel.Password, _ = user.Password()
		u.User = url.UserPassword(sel.Username, sel.Password)
	}

	slog.Debug("proxy selected",
		"scraper", scraper,
		"host", sel.Host(),
		"timezone", sel.Timezone,
	)
	return sel, nil
}

// rotateSession replaces the 8-char session suffix in a sticky-session
// username with a fresh random one. Usernames not matching the template
// pass through unchanged.
func (s *Selector) rotateSession(username string) string {
	m := sessionPattern.FindStringSubmatch(username)
	if m == nil {
		return username
	}
	suffix := make([]byte, 8)
	for i := range suffix {
		suffix[i] = sessionAlphabet[s.rand.Intn(len(sessionAlphabet))]
	}
	return m[1] + string(suffix)
}
