package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	tls2 "github.com/refraction-networking/utls"
	"golang.org/x/net/html"

	"github.com/awardscan/scrapecore/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxProbeBody caps how much of a probe response is read.
const maxProbeBody = 10 * 1024 * 1024

// Probe is the result of a lightweight pre-browser availability check.
type Probe struct {
	StatusCode int
	Title      string
	Body       []byte
}

// Fetcher performs plain HTTP requests with a Chrome TLS fingerprint.
// It answers "is this target worth a browser attempt" without paying the
// cost of one: a dead origin or a hard block at the TLS/HTTP layer shows
// up here first.
type Fetcher struct {
	proxy string
}

// New creates a Fetcher. proxy may be empty for direct connections.
func New(proxy string) *Fetcher {
	return &Fetcher{proxy: proxy}
}

// Do retrieves targetURL with browser-equivalent headers and TLS
// fingerprint. proxyOverride, if non-empty, overrides the default proxy.
func (f *Fetcher) Do(ctx context.Context, targetURL, proxyOverride string) (*Probe, error) {
	proxy := proxyOverride
	if proxy == "" {
		proxy = f.proxy
	}

	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, proxy)
		},
	}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{Transport: transport}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "probe request build failed", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return nil, fmt.Errorf("probe body read: %w", err)
	}

	return &Probe{
		StatusCode: resp.StatusCode,
		Title:      extractTitle(body),
		Body:       body,
	}, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint
// via utls.
func dialTLSChrome(ctx context.Context, network, addr, proxy string) (net.Conn, error) {
	var rawConn net.Conn
	var err error

	dialer := &net.Dialer{}

	if proxy != "" {
		proxyURL, parseErr := url.Parse(proxy)
		if parseErr == nil && (proxyURL.Scheme == "socks5" || proxyURL.Scheme == "socks5h") {
			socksConn, socksErr := dialer.DialContext(ctx, "tcp", proxyURL.Host)
			if socksErr != nil {
				return nil, fmt.Errorf("socks5 dial: %w", socksErr)
			}
			rawConn = socksConn
		}
	}

	if rawConn == nil {
		rawConn, err = dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{
		ServerName: host,
	}, tls2.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// extractTitle extracts the <title> content from raw HTML bytes.
func extractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}
