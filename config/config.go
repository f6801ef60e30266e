package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// proxyEnvPrefix and proxyTZPrefix are the environment namespaces for
// per-scraper proxy pools and timezone overrides.
const (
	proxyEnvPrefix = "PROXY_ADDRESS_"
	proxyTZPrefix  = "PROXY_TZ_"
	defaultPoolKey = "DEFAULT"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Proxy     ProxyConfig
	Cache     CacheConfig
	Record    RecordConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the launched browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// UserDataDir, when non-empty, is reused across launches so the
	// browser's disk cache survives attempts.
	UserDataDir string

	// DefaultWidth/DefaultHeight are the fallback screen geometry when
	// OS-level detection fails.
	DefaultWidth  int // default: 1920
	DefaultHeight int // default: 1080
}

// ProxyConfig carries the parsed proxy pools and timezone overrides.
// It is built by Load from PROXY_ADDRESS_* / PROXY_TZ_* environment
// variables; the core packages never read the environment themselves.
type ProxyConfig struct {
	// Pools maps upper-cased scraper names to comma-split proxy URL lists.
	// The "DEFAULT" key is the fallback pool.
	Pools map[string][]string

	// Timezones maps upper-cased scraper names to IANA timezone IDs.
	// The "DEFAULT" key is the fallback.
	Timezones map[string]string
}

// Pool returns the proxy pool for a scraper name, falling back to the
// default pool. An empty slice means proxyless operation.
func (p ProxyConfig) Pool(scraper string) []string {
	if urls, ok := p.Pools[strings.ToUpper(scraper)]; ok && len(urls) > 0 {
		return urls
	}
	return p.Pools[defaultPoolKey]
}

// Timezone returns the timezone override for a scraper name, falling back
// to the default. Empty means no override.
func (p ProxyConfig) Timezone(scraper string) string {
	if tz, ok := p.Timezones[strings.ToUpper(scraper)]; ok && tz != "" {
		return tz
	}
	return p.Timezones[defaultPoolKey]
}

// CacheConfig controls the filesystem result cache.
type CacheConfig struct {
	// Root is the cache directory. Empty disables caching entirely.
	Root string

	// DefaultTTL applies when the scraper metadata carries no TTL.
	DefaultTTL time.Duration // default: 15m
}

// RecordConfig controls attempt-record delivery.
type RecordConfig struct {
	// URL is the webhook endpoint receiving attempt completion records.
	// Empty disables delivery.
	URL string

	// Secret signs record payloads with HMAC-SHA256 when non-empty.
	Secret string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SCRAPECORE_HOST", "0.0.0.0"),
			Port: envIntOr("SCRAPECORE_PORT", 8080),
			Mode: envOr("SCRAPECORE_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:      envBoolOr("SCRAPECORE_HEADLESS", true),
			NoSandbox:     envBoolOr("SCRAPECORE_NO_SANDBOX", false),
			BrowserBin:    os.Getenv("SCRAPECORE_BROWSER_BIN"),
			UserDataDir:   os.Getenv("SCRAPECORE_USER_DATA_DIR"),
			DefaultWidth:  envIntOr("SCRAPECORE_SCREEN_WIDTH", 1920),
			DefaultHeight: envIntOr("SCRAPECORE_SCREEN_HEIGHT", 1080),
		},
		Proxy: loadProxyConfig(os.Environ()),
		Cache: CacheConfig{
			Root:       os.Getenv("SCRAPECORE_CACHE_DIR"),
			DefaultTTL: envDurationOr("SCRAPECORE_CACHE_TTL", 15*time.Minute),
		},
		Record: RecordConfig{
			URL:    os.Getenv("SCRAPECORE_RECORD_URL"),
			Secret: os.Getenv("SCRAPECORE_RECORD_SECRET"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SCRAPECORE_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SCRAPECORE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SCRAPECORE_RATE_RPS", 5.0),
			Burst:             envIntOr("SCRAPECORE_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("SCRAPECORE_LOG_LEVEL", "info"),
			Format: envOr("SCRAPECORE_LOG_FORMAT", "json"),
		},
	}
}

// loadProxyConfig builds ProxyConfig from an environ-style "KEY=VALUE"
// slice. Split out from Load so tests can feed a synthetic environment.
func loadProxyConfig(environ []string) ProxyConfig {
	cfg := ProxyConfig{
		Pools:     make(map[string][]string),
		Timezones: make(map[string]string),
	}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(key, proxyEnvPrefix):
			name := strings.TrimPrefix(key, proxyEnvPrefix)
			urls := splitTrim(value)
			if len(urls) > 0 {
				cfg.Pools[name] = urls
			}
		case strings.HasPrefix(key, proxyTZPrefix):
			name := strings.TrimPrefix(key, proxyTZPrefix)
			cfg.Timezones[name] = strings.TrimSpace(value)
		}
	}
	return cfg
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		return splitTrim(v)
	}
	return fallback
}
