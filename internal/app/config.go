// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package app

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Session SessionConfig `mapstructure:"session"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Shell   ShellConfig   `mapstructure:"shell"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
	CORS    CORSConfig    `mapstructure:"cors"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxRequestSize  string        `mapstructure:"max_request_size"`
	Compress        bool          `mapstructure:"compress"`

	// Login attempts allowed per client IP within LoginRateWindow.
	LoginRateLimit  int           `mapstructure:"login_rate_limit"`
	LoginRateWindow time.Duration `mapstructure:"login_rate_window"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BackendConfig points at the Broccoli server.
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig selects where browser sessions live.
type SessionConfig struct {
	Store          string        `mapstructure:"store"` // memory | redis
	TTL            time.Duration `mapstructure:"ttl"`
	CookieName     string        `mapstructure:"cookie_name"`
	CookieSecure   bool          `mapstructure:"cookie_secure"`
	CookieSameSite string        `mapstructure:"cookie_samesite"`
	CookieDomain   string        `mapstructure:"cookie_domain"`
	// Cron schedule for purging expired in-memory sessions.
	PurgeSchedule string `mapstructure:"purge_schedule"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ShellConfig tunes the navigation frame.
type ShellConfig struct {
	Title        string        `mapstructure:"title"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// RenderWait bounds how long a page waits for the thread count before
	// rendering with the sentinel. Zero renders immediately.
	RenderWait time.Duration `mapstructure:"render_wait"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	File   struct {
		Path    string `mapstructure:"path"`
		MaxSize string `mapstructure:"max_size"`
	} `mapstructure:"file"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// CORSConfig controls cross-origin access to /api.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// LoadConfig loads configuration from file and environment
func LoadConfig(cfgFile string) (*Config, error) {
	cfg, _, err := loadConfig(cfgFile)
	return cfg, err
}

// loadConfig also returns the viper instance so serve can watch the file.
func loadConfig(cfgFile string) (*Config, *viper.Viper, error) {
	v := viper.New()

	// Config file settings
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/broccoli-console")
		v.AddConfigPath("$HOME/.broccoli-console")
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("BROCCOLI_CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Dual-binding: prefixed (canonical) + unprefixed (container compat).
	_ = v.BindEnv("backend.url", "BROCCOLI_CONSOLE_BACKEND_URL", "BROCCOLI_SERVER_URL")
	_ = v.BindEnv("redis.url", "BROCCOLI_CONSOLE_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("server.port", "BROCCOLI_CONSOLE_SERVER_PORT", "PORT")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, proceed with env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, v, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.max_request_size", "1MB")
	v.SetDefault("server.compress", true)
	v.SetDefault("server.login_rate_limit", 5)
	v.SetDefault("server.login_rate_window", "1m")

	// Backend
	v.SetDefault("backend.url", "http://localhost:5000")
	v.SetDefault("backend.timeout", "10s")

	// Session
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.cookie_name", "broccoli_console_session")
	v.SetDefault("session.cookie_secure", false)
	v.SetDefault("session.cookie_samesite", "lax")
	v.SetDefault("session.purge_schedule", "@every 5m")

	// Redis
	v.SetDefault("redis.key_prefix", "broccoli-console")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// Shell
	v.SetDefault("shell.title", "Broccoli")
	v.SetDefault("shell.fetch_timeout", "5s")
	v.SetDefault("shell.render_wait", "250ms")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file.max_size", "50MB")

	// Tracing
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)

	// CORS
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 300)
}

// Validate validates the configuration.
// Collects all errors so the operator can fix them in one pass.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port))
	}
	if c.Session.Store == "memory" && c.Session.PurgeSchedule != "" {
		if _, err := cron.ParseStandard(c.Session.PurgeSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid session.purge_schedule: %w", err))
		}
	}
	if c.Server.LoginRateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.login_rate_limit must be non-negative"))
	}

	if c.Backend.URL == "" {
		errs = append(errs, fmt.Errorf("backend.url is required"))
	} else if u, err := url.Parse(c.Backend.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.url must be an http(s) URL (got %q)", c.Backend.URL))
	}

	switch c.Session.Store {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("redis.url is required when session.store is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid session.store: %q (must be memory or redis)", c.Session.Store))
	}
	if !validSameSite(c.Session.CookieSameSite) {
		errs = append(errs, fmt.Errorf("invalid session.cookie_samesite: %q (must be strict, lax, or none)", c.Session.CookieSameSite))
	}
	if strings.EqualFold(c.Session.CookieSameSite, "none") && !c.Session.CookieSecure {
		errs = append(errs, fmt.Errorf("session.cookie_samesite=none requires session.cookie_secure"))
	}

	errs = append(errs, c.validateDurations()...)
	if c.Shell.RenderWait < 0 {
		errs = append(errs, fmt.Errorf("shell.render_wait must not be negative (got %s)", c.Shell.RenderWait))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid logging.level: %q (must be debug, info, warn, or error)", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Errorf("invalid logging.format: %q (must be json or console)", c.Logging.Format))
	}
	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[strings.ToLower(c.Logging.Output)] {
		errs = append(errs, fmt.Errorf("invalid logging.output: %q (must be stdout, stderr, or file)", c.Logging.Output))
	} else if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, fmt.Errorf("logging.file.path is required when logging.output is file"))
	}

	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			errs = append(errs, fmt.Errorf("tracing.endpoint is required when tracing is enabled"))
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			errs = append(errs, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
		}
	}

	if c.CORS.AllowCredentials {
		for _, o := range c.CORS.AllowedOrigins {
			if o == "*" {
				errs = append(errs, fmt.Errorf("cors.allowed_origins cannot contain * when cors.allow_credentials is set"))
				break
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	// Join all errors with newlines for readable operator output
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// validateDurations checks that timeouts are positive.
func (c *Config) validateDurations() []error {
	var errs []error
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"backend.timeout", c.Backend.Timeout},
		{"session.ttl", c.Session.TTL},
		{"shell.fetch_timeout", c.Shell.FetchTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive (got %s)", d.name, d.value))
		}
	}
	return errs
}

// PrintMasked writes the configuration with sensitive values masked.
func (c *Config) PrintMasked(w io.Writer) {
	fmt.Fprintf(w, "Server: %s\n", c.Server.Addr())
	fmt.Fprintf(w, "Backend URL: %s\n", maskURL(c.Backend.URL))
	fmt.Fprintf(w, "Backend Timeout: %s\n", c.Backend.Timeout)
	fmt.Fprintf(w, "Session Store: %s (ttl %s)\n", c.Session.Store, c.Session.TTL)
	fmt.Fprintf(w, "Redis URL: %s\n", maskURL(c.Redis.URL))
	fmt.Fprintf(w, "Shell Title: %s\n", c.Shell.Title)
	fmt.Fprintf(w, "Shell Fetch Timeout: %s\n", c.Shell.FetchTimeout)
	fmt.Fprintf(w, "Shell Render Wait: %s\n", c.Shell.RenderWait)
	fmt.Fprintf(w, "Log Level: %s\n", c.Logging.Level)
	fmt.Fprintf(w, "Log Format: %s\n", c.Logging.Format)
	fmt.Fprintf(w, "Tracing Enabled: %v\n", c.Tracing.Enabled)
	if c.Tracing.Enabled {
		fmt.Fprintf(w, "Tracing Endpoint: %s\n", c.Tracing.Endpoint)
	}
}

func validSameSite(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "lax", "none":
		return true
	}
	return false
}

// parseSameSite converts a config string ("strict", "lax", "none") to http.SameSite.
// Returns http.SameSiteLaxMode for unrecognized values.
func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// parseSize parses a human-readable size string (e.g., "100MB", "1GB") to bytes.
// Returns defaultBytes if the string is empty or unparseable.
func parseSize(s string, defaultBytes int64) int64 {
	if s == "" {
		return defaultBytes
	}
	s = strings.TrimSpace(strings.ToUpper(s))
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}
	var n int64
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err != nil {
		return defaultBytes
	}
	return n * multiplier
}

// maskURL hides the password of a URL with userinfo.
func maskURL(raw string) string {
	if raw == "" {
		return "<not set>"
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
