// Package config handles CLI, environment and optional TOML configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Environment names recognised by the proxy.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/feed-proxy/config.toml",
	"configs/config.toml",
}

// routeNames are the router paths, relative to server.root, that the metrics
// endpoint must not shadow.
var routeNames = []string{"proxy", "healthz", "status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config        string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host          string `kong:"help='Listen host (overrides config).',env='PROXY_HOST'"`
	Port          int    `kong:"short='p',help='Listen port (overrides config).',env='PROXY_PORT'"`
	AllowedOrigin string `kong:"name='allowed-origin',help='Origin allowed to read proxied responses (overrides config).',env='PROXY_ALLOWED_ORIGINS'"`
	Env           string `kong:"name='env',help='Environment: development|production (overrides config).',env='PROXY_ENV'"`
	LogLevel      string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	CORS        CORSConfig     `toml:"cors"`
	Upstream    UpstreamConfig `toml:"upstream"`
	Log         LogConfig      `toml:"log"`
	Metrics     MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3000)
	Root         string          `toml:"root"` // prefix for every proxy route
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-client request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// CORSConfig holds the single origin allowed to read proxied responses.
type CORSConfig struct {
	AllowedOrigin string `toml:"allowed_origin"`
}

// UpstreamConfig holds outbound fetch settings.
type UpstreamConfig struct {
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
	MaxRedirects    int    `toml:"max_redirects"`
	UserAgent       string `toml:"user_agent"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the optional TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/feed-proxy/config.toml then configs/config.toml; finding neither is
// not an error, so the proxy can run from environment variables alone.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.AllowedOrigin != "" {
		c.CORS.AllowedOrigin = cli.AllowedOrigin
	}
	if cli.Env != "" {
		c.Environment = cli.Env
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Every proxied response names the allowed origin; refuse to start without one.
	origin := strings.TrimSpace(c.CORS.AllowedOrigin)
	if origin == "" {
		return fmt.Errorf("cors.allowed_origin is required (set PROXY_ALLOWED_ORIGINS)")
	}
	if origin != "*" {
		u, err := url.Parse(origin)
		if err != nil {
			return fmt.Errorf("cors.allowed_origin is not a valid origin: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("cors.allowed_origin must be an http(s) origin like https://reader.example.com; got %q", origin)
		}
		if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
			return fmt.Errorf("cors.allowed_origin must not contain a path, query or fragment; got %q", origin)
		}
	}

	switch strings.ToLower(c.Environment) {
	case EnvDevelopment, EnvProduction, "":
		// valid
	default:
		return fmt.Errorf("environment must be one of: development, production; got %q", c.Environment)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.Root != "" && c.Server.Root[0] != '/' {
		return fmt.Errorf("server.root must start with '/'; got %q", c.Server.Root)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.MaxRedirects < 0 {
		return fmt.Errorf("upstream.max_redirects must be non-negative; got %d", c.Upstream.MaxRedirects)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range c.reservedPaths() {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// Development mode defaults to debug-level text logs; explicit values win.
func (c *Config) setDefaults() {
	c.Environment = strings.ToLower(c.Environment)
	if c.Environment == "" {
		c.Environment = EnvProduction
	}
	c.CORS.AllowedOrigin = strings.TrimRight(strings.TrimSpace(c.CORS.AllowedOrigin), "/")
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.Root == "" {
		c.Server.Root = "/"
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB; the proxy only serves GETs
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.MaxRedirects == 0 {
		c.Upstream.MaxRedirects = 10
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = "feed-proxy-go/1.0"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
		if c.IsDevelopment() {
			c.Log.Level = "debug"
		}
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
		if c.IsDevelopment() {
			c.Log.Format = "text"
		}
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// reservedPaths returns the absolute router paths under server.root.
func (c *Config) reservedPaths() []string {
	root := strings.TrimRight(c.Server.Root, "/")
	out := make([]string, len(routeNames))
	for i, name := range routeNames {
		out[i] = root + "/" + name
	}
	return out
}

// IsDevelopment reports whether development-mode behaviours are enabled.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, EnvDevelopment)
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
