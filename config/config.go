// Package config loads process configuration from the environment,
// grounded on the teacher's envOr/envIntOr/envBoolOr helper style.
package config

import (
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	Browser BrowserConfig
	Proxy   ProxyConfig
	Jobs    JobsConfig
	Log     LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 3000
}

// AuthConfig controls bearer-token authentication.
type AuthConfig struct {
	// Token gates the auth middleware. Empty means auth is disabled.
	Token string
}

// BrowserConfig controls the shared browser pool and browser pipeline.
type BrowserConfig struct {
	Headless           bool // default: true
	NoSandbox          bool // default: true, containers lack a setuid sandbox
	BrowserBin         string
	MaxConcurrentPages int // default: 10

	TimeoutMs         int  // default: 300000
	PageLoadTimeoutMs int  // default: 60000
	BlockMedia        bool // default: true
	StealthEnabled    bool // default: true
}

// ProxyConfig is the environment fallback tier consulted by
// proxyresolve.Resolve when a request carries no proxy of its own.
type ProxyConfig struct {
	Server   string
	Username string
	Password string
}

// JobsConfig controls the JobManager's TTL sweeper.
type JobsConfig struct {
	TTLMs             int // default: 600000
	CleanupIntervalMs int // default: 60000
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string // default: "info"
}

// Load reads configuration from environment variables with sane
// defaults, per spec §6's table.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("HOST", "0.0.0.0"),
			Port: envIntOr("PORT", 3000),
		},
		Auth: AuthConfig{
			Token: os.Getenv("AUTH_TOKEN"),
		},
		Browser: BrowserConfig{
			Headless:           envBoolOr("HEADLESS", true),
			NoSandbox:          envBoolOr("NO_SANDBOX", true),
			BrowserBin:         os.Getenv("BROWSER_BIN"),
			MaxConcurrentPages: envIntOr("MAX_CONCURRENT_PAGES", 10),
			TimeoutMs:          envIntOr("TIMEOUT_MS", 300000),
			PageLoadTimeoutMs:  envIntOr("PAGE_LOAD_TIMEOUT_MS", 60000),
			BlockMedia:         envBoolOr("BLOCK_MEDIA", true),
			StealthEnabled:     envBoolOr("STEALTH_ENABLED", true),
		},
		Proxy: ProxyConfig{
			Server:   os.Getenv("PROXY_SERVER"),
			Username: os.Getenv("PROXY_USERNAME"),
			Password: os.Getenv("PROXY_PASSWORD"),
		},
		Jobs: JobsConfig{
			TTLMs:             envIntOr("JOB_TTL_MS", 600000),
			CleanupIntervalMs: envIntOr("JOB_CLEANUP_INTERVAL_MS", 60000),
		},
		Log: LogConfig{
			Level: envOr("LOG_LEVEL", "info"),
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
