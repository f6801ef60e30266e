package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/awardscan/scrapecore/config"
	"github.com/awardscan/scrapecore/models"
)

// Options describes one browser launch. Everything is resolved before the
// process starts: a malformed proxy URL must fail here, not after a
// browser has been spent.
type Options struct {
	Cfg config.BrowserConfig

	// ProxyServer is the scheme://host:port proxy endpoint, credentials
	// stripped. Empty means direct connection.
	ProxyServer string

	// Timezone, when non-empty, is installed as a protocol-level
	// timezone override after connect.
	Timezone string

	// BlockedURLs are installed via Network.setBlockedURLs.
	BlockedURLs []string

	// Debug enables verbose browser logging and disables headless.
	Debug bool

	// Rand drives geometry randomization. Nil for a time-seeded source.
	Rand *rand.Rand
}

// Browser owns one launched browser process, its protocol connection and
// the single page of an attempt.
type Browser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	geometry Geometry
}

// Page returns the attempt's page. All plugins share it; only the
// orchestrator may close it.
func (b *Browser) Page() *rod.Page { return b.page }

// Geometry returns the randomized window geometry chosen at launch.
func (b *Browser) Geometry() Geometry { return b.geometry }

// Launch starts a browser process with the anti-fingerprint flag set,
// opens the protocol connection, and enables the base domains.
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	proxyHost, err := proxyHostOf(opts.ProxyServer)
	if err != nil {
		return nil, err
	}

	screenW, screenH := detectScreen(opts.Cfg.DefaultWidth, opts.Cfg.DefaultHeight)
	geom := randomGeometry(rnd, screenW, screenH)

	l := launcher.New().
		Headless(opts.Cfg.Headless && !opts.Debug).
		NoSandbox(opts.Cfg.NoSandbox)
	if opts.Cfg.BrowserBin != "" {
		l = l.Bin(opts.Cfg.BrowserBin)
	}
	if opts.Cfg.UserDataDir != "" {
		l = l.UserDataDir(opts.Cfg.UserDataDir)
	}

	applyStealthFlags(l)
	l.Set("window-size", fmt.Sprintf("%d,%d", geom.Width, geom.Height))
	l.Set("window-position", fmt.Sprintf("%d,%d", geom.X, geom.Y))

	if opts.Debug {
		l.Set("enable-logging", "stderr")
		l.Set(flags.Flag("v"), "1")
	}

	if opts.ProxyServer != "" {
		l.Set(flags.ProxyServer, opts.ProxyServer)
		// Fail DNS for every hostname except the proxy itself: all
		// resolution must happen on the proxy's side of the tunnel or
		// the exit geography leaks through local lookups.
		l.Set("host-resolver-rules", fmt.Sprintf("MAP * ~NOTFOUND, EXCLUDE %s", proxyHost))
	} else {
		l.Set("host-resolver-rules", nullRouteRules())
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}

	b := &Browser{launcher: l, geometry: geom}
	b.browser = rod.New().Context(ctx).ControlURL(controlURL)
	if err := b.browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	if err := b.preparePage(opts); err != nil {
		b.Close()
		return nil, err
	}

	slog.Info("browser launched",
		"geometry", fmt.Sprintf("%dx%d+%d+%d", geom.Width, geom.Height, geom.X, geom.Y),
		"proxy", proxyHost != "",
		"timezone", opts.Timezone,
	)
	return b, nil
}

// preparePage opens the attempt's page, enables the base protocol
// domains and installs the session-wide overrides.
func (b *Browser) preparePage(opts Options) error {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return models.NewScrapeError(models.ErrCodeProtocol, "failed to open page", err)
	}
	b.page = page

	for name, enable := range map[string]func() error{
		"Network": func() error { return proto.NetworkEnable{}.Call(page) },
		"Page":    func() error { return proto.PageEnable{}.Call(page) },
		"Runtime": func() error { return proto.RuntimeEnable{}.Call(page) },
		"DOM":     func() error { return proto.DOMEnable{}.Call(page) },
	} {
		if err := enable(); err != nil {
			return models.NewScrapeError(models.ErrCodeProtocol,
				fmt.Sprintf("failed to enable %s domain", name), err)
		}
	}

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without it", "error", err)
	}

	if opts.Timezone != "" {
		err := proto.EmulationSetTimezoneOverride{TimezoneID: opts.Timezone}.Call(page)
		if err != nil {
			return models.NewScrapeError(models.ErrCodeProtocol, "timezone override failed", err)
		}
	}
	if len(opts.BlockedURLs) > 0 {
		err := proto.NetworkSetBlockedURLs{Urls: opts.BlockedURLs}.Call(page)
		if err != nil {
			return models.NewScrapeError(models.ErrCodeProtocol, "URL block-list install failed", err)
		}
	}
	return nil
}

// Close tears the browser down: disable the enabled domains, close the
// protocol connection, kill the process. Every step runs regardless of
// earlier failures — a half-closed browser must still lose its process.
func (b *Browser) Close() {
	if b.page != nil {
		for name, disable := range map[string]func() error{
			"Network": func() error { return proto.NetworkDisable{}.Call(b.page) },
			"Page":    func() error { return proto.PageDisable{}.Call(b.page) },
			"Runtime": func() error { return proto.RuntimeDisable{}.Call(b.page) },
			"DOM":     func() error { return proto.DOMDisable{}.Call(b.page) },
		} {
			if err := disable(); err != nil {
				slog.Debug("teardown: domain disable failed", "domain", name, "error", err)
			}
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			slog.Debug("teardown: browser close failed", "error", err)
		}
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
}

// applyStealthFlags installs the curated flag set: telemetry, autofill,
// first-run UI, crash reporting and background throttling all disabled.
func applyStealthFlags(l *launcher.Launcher) {
	l.Set("disable-blink-features", "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set("disable-features", "AudioServiceOutOfProcess,TranslateUI,OptimizationHints,MediaRouter,AutofillServerCommunication")
	l.Set("disable-background-networking")
	l.Set("disable-background-timer-throttling")
	l.Set("disable-backgrounding-occluded-windows")
	l.Set("disable-renderer-backgrounding")
	l.Set("disable-breakpad")
	l.Set("disable-crash-reporter")
	l.Set("disable-client-side-phishing-detection")
	l.Set("disable-component-update")
	l.Set("disable-default-apps")
	l.Set("disable-dev-shm-usage")
	l.Set("disable-domain-reliability")
	l.Set("disable-extensions")
	l.Set("disable-hang-monitor")
	l.Set("disable-ipc-flooding-protection")
	l.Set("disable-popup-blocking")
	l.Set("disable-prompt-on-repost")
	l.Set("disable-sync")
	l.Set("metrics-recording-only")
	l.Set("no-default-browser-check")
	l.Set("no-first-run")
	l.Set("password-store", "basic")
	l.Set("use-mock-keychain")
}

// nullRouteRules maps known telemetry domains to a null address. Used on
// direct connections; proxied sessions use the stricter fail-all rule.
func nullRouteRules() string {
	rules := make([]string, 0, len(telemetryDomains))
	for _, d := range telemetryDomains {
		rules = append(rules, "MAP "+d+" 0.0.0.0")
	}
	return strings.Join(rules, ", ")
}

// proxyHostOf validates the proxy URL and extracts its host. Called
// before launch so configuration mistakes never consume a browser.
func proxyHostOf(server string) (string, error) {
	if server == "" {
		return "", nil
	}
	u, err := url.Parse(server)
	if err != nil || u.Hostname() == "" || u.Scheme == "" {
		return "", models.NewScrapeError(models.ErrCodeConfiguration,
			fmt.Sprintf("malformed proxy server %q", server), err)
	}
	return u.Hostname(), nil
}
