package scraper

import (
	"context"

	"github.com/awardscan/scrapecore/browser"
	"github.com/awardscan/scrapecore/config"
	"github.com/awardscan/scrapecore/human"
	"github.com/awardscan/scrapecore/intercept"
	"github.com/awardscan/scrapecore/nettrack"
	"github.com/awardscan/scrapecore/pagehelper"
	"github.com/awardscan/scrapecore/proxy"
)

// defaultPlugins is the fixed capability chain of an attempt. Order
// matters: each plugin reads the slots of those before it.
func defaultPlugins(browserCfg config.BrowserConfig, proxies *proxy.Selector) []Plugin {
	return []Plugin{
		{
			Name: "proxy",
			Init: func(ctx context.Context, s *Session) (func(), error) {
				if !s.Opts.UseProxy {
					s.Log.Printf("proxy disabled by options, operating proxyless")
					return nil, nil
				}
				sel, err := proxies.Pick(s.Meta.Name)
				if err != nil {
					return nil, err
				}
				if sel == nil {
					s.Log.Printf("no proxy pool for %q, operating proxyless", s.Meta.Name)
					return nil, nil
				}
				s.Proxy = sel
				s.Log.Printf("proxy %s selected (tz %s)", sel.Host(), sel.Timezone)
				return nil, nil
			},
		},
		{
			Name: "browser",
			Init: func(ctx context.Context, s *Session) (func(), error) {
				opts := browser.Options{
					Cfg:         browserCfg,
					ProxyServer: s.Proxy.Server(),
					Timezone:    s.Opts.Timezone,
					BlockedURLs: s.Meta.BlockedURLs,
					Debug:       s.Opts.BrowserDebug,
					Rand:        s.Rand,
				}
				if opts.Timezone == "" && s.Proxy != nil {
					opts.Timezone = s.Proxy.Timezone
				}
				b, err := browser.Launch(ctx, opts)
				if err != nil {
					return nil, err
				}
				s.Browser = b
				s.Log.Printf("browser up, window %dx%d", b.Geometry().Width, b.Geometry().Height)
				return b.Close, nil
			},
		},
		{
			Name: "human",
			Init: func(ctx context.Context, s *Session) (func(), error) {
				s.Mouse = human.NewMouse(s.Browser.Page(), s.Rand)
				return nil, nil
			},
		},
		{
			Name: "nettrack",
			Init: func(ctx context.Context, s *Session) (func(), error) {
				s.Net = nettrack.New(ctx, s.Browser.Page(), s.Opts.ShowRequests)
				return func() {
					stats := s.Net.Stats()
					s.Log.Printf("network: %d requests, %d cached, %d KiB",
						stats.Total, stats.CacheHits, stats.DownloadedBytes/1024)
					_ = s.Net.Close()
				}, nil
			},
		},
		{
			Name: "intercept",
			Init: func(ctx context.Context, s *Session) (func(), error) {
				var auth intercept.AuthProvider
				if s.Proxy != nil {
					auth = s.Proxy.AuthHandler
				}
				d, err := intercept.Enable(ctx, s.Browser.Page(), auth)
				if err != nil {
					return nil, err
				}
				s.Intercept = d
				return func() { _ = d.Close() }, nil
			},
		},
		{
			Name: "page",
			Init: func(ctx context.Context, s *Session) (func(), error) {
				s.Page = pagehelper.New(s.Browser.Page(), s.Net, 0)
				return nil, nil
			},
		},
	}
}
