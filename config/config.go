package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. It is constructed once at
// startup and treated as immutable afterwards; components receive the
// sections they need instead of reading the environment themselves.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Resolver  ResolverConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the shared Chrome instance and session capacity.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxSessions is the maximum number of concurrent renderer sessions.
	// Each session is an isolated incognito context with its own tab, so
	// this bounds both memory and Chrome process load.
	MaxSessions int // default: 4

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all sessions.
	Proxy string

	// Stealth enables anti-bot-detection evasions in every session.
	Stealth bool // default: true
}

// ResolverConfig controls the chained resolution pipeline.
type ResolverConfig struct {
	// PortalDomain is the intermediary portal host. The portal-link stage
	// scans source page anchors for it, and the token stage derives the
	// token URL from it.
	PortalDomain string // default: "tech.unblockedgames.world"

	// TokenPrefix is the fixed prefix of the access token embedded in the
	// portal page.
	TokenPrefix string // default: "pepe-"

	// CDNPattern is the primary regular expression matching the
	// distribution link on the token page (scheme omitted).
	CDNPattern string // default: `cdn\.video-leech\.pro/[a-f0-9:]+`

	// FinalPattern is the primary regular expression matching the final
	// download URL on the distribution page.
	FinalPattern string // default: googleusercontent exact-host pattern

	// AllowedSources is the set of permitted source-URL hosts.
	// Deliberately has no default: an empty allow-list rejects every
	// request (fail closed) rather than silently allowing everything.
	AllowedSources []string

	// NavTimeout is the upper bound for each stage navigation.
	NavTimeout time.Duration // default: 30s

	// SettleDelay is the fixed pause after each navigation that lets
	// client-side scripts finish before content is read.
	SettleDelay time.Duration // default: 3s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys. Empty means open access.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// WebhookConfig controls resolution event delivery.
type WebhookConfig struct {
	// URL is the endpoint that receives resolution events. Empty disables
	// webhook delivery.
	URL string

	// Secret signs event payloads with HMAC-SHA256 when non-empty.
	Secret string
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
			Host: envOr("UNFURL_HOST", "0.0.0.0"),
			Port: envIntOr("UNFURL_PORT", 8080),
			Mode: envOr("UNFURL_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:    envBoolOr("UNFURL_HEADLESS", true),
			MaxSessions: envIntOr("UNFURL_MAX_SESSIONS", 4),
			NoSandbox:   envBoolOr("UNFURL_NO_SANDBOX", false),
			BrowserBin:  os.Getenv("UNFURL_BROWSER_BIN"),
			Proxy:       os.Getenv("UNFURL_PROXY"),
			Stealth:     envBoolOr("UNFURL_STEALTH", true),
		},
		Resolver: ResolverConfig{
			PortalDomain: envOr("UNFURL_PORTAL_DOMAIN", "tech.unblockedgames.world"),
			TokenPrefix:  envOr("UNFURL_TOKEN_PREFIX", "pepe-"),
			CDNPattern:   envOr("UNFURL_CDN_PATTERN", `cdn\.video-leech\.pro/[a-f0-9:]+`),
			FinalPattern: envOr("UNFURL_FINAL_PATTERN", `https://video-downloads\.googleusercontent\.com/[^\s"'<>]+`),
			// No default: a missing allow-list means every request is rejected.
			AllowedSources: envSliceOr("UNFURL_ALLOWED_SOURCES", nil),
			NavTimeout:     envDurationOr("UNFURL_NAV_TIMEOUT", 30*time.Second),
			SettleDelay:    envDurationOr("UNFURL_SETTLE_DELAY", 3*time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("UNFURL_AUTH_ENABLED", true),
			APIKeys: envSliceOr("UNFURL_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("UNFURL_RATE_RPS", 2.0),
			Burst:             envIntOr("UNFURL_RATE_BURST", 5),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("UNFURL_WEBHOOK_URL"),
			Secret: os.Getenv("UNFURL_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("UNFURL_LOG_LEVEL", "info"),
			Format: envOr("UNFURL_LOG_FORMAT", "json"),
		},
	}
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
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
