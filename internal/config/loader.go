package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the relay.
// Zero values mean "unspecified"; Defaults fills them.
type Config struct {
	Addr                   string   `json:"addr" yaml:"addr" toml:"addr"`
	UpstreamURL            string   `json:"upstream_url" yaml:"upstream_url" toml:"upstream_url"`
	StaticDir              string   `json:"static_dir" yaml:"static_dir" toml:"static_dir"`
	ConnectTimeoutSeconds  int      `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds" toml:"connect_timeout_seconds"`
	ResponseTimeoutSeconds int      `json:"response_timeout_seconds" yaml:"response_timeout_seconds" toml:"response_timeout_seconds"`
	RequestTimeoutSeconds  int      `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	ChunkSizeBytes         int      `json:"chunk_size_bytes" yaml:"chunk_size_bytes" toml:"chunk_size_bytes"`
	MaxBodyBytes           int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	LogLevel               string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat              string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	CORSEnabled            bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins     []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
}

// Defaults used by Config.Defaults.
const (
	DefaultAddr                   = ":8000"
	DefaultUpstreamURL            = "http://localhost:11434"
	DefaultStaticDir              = "static"
	DefaultConnectTimeoutSeconds  = 10
	DefaultResponseTimeoutSeconds = 60
	DefaultRequestTimeoutSeconds  = 60
	DefaultChunkSizeBytes         = 8 << 10
	DefaultMaxBodyBytes           = 1 << 20
	DefaultLogLevel               = "info"
	DefaultLogFormat              = "json"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	p, err := ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Defaults returns c with every unspecified field set to its default.
func (c Config) Defaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.UpstreamURL == "" {
		c.UpstreamURL = DefaultUpstreamURL
	}
	if c.StaticDir == "" {
		c.StaticDir = DefaultStaticDir
	}
	if c.ConnectTimeoutSeconds <= 0 {
		c.ConnectTimeoutSeconds = DefaultConnectTimeoutSeconds
	}
	if c.ResponseTimeoutSeconds <= 0 {
		c.ResponseTimeoutSeconds = DefaultResponseTimeoutSeconds
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if c.ChunkSizeBytes <= 0 {
		c.ChunkSizeBytes = DefaultChunkSizeBytes
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	return c
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	u, err := url.Parse(c.UpstreamURL)
	if err != nil {
		return fmt.Errorf("upstream_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream_url: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("upstream_url: missing host")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format: must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// ApplyEnv overlays RELAYD_* variables read through getenv. Unset or unparsable
// numeric variables leave the field untouched.
func (c Config) ApplyEnv(getenv func(string) string) Config {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if n, err := strconv.Atoi(strings.TrimSpace(getenv(key))); err == nil {
			*dst = n
		}
	}
	str("RELAYD_ADDR", &c.Addr)
	str("RELAYD_UPSTREAM_URL", &c.UpstreamURL)
	str("RELAYD_STATIC_DIR", &c.StaticDir)
	num("RELAYD_CONNECT_TIMEOUT_SECONDS", &c.ConnectTimeoutSeconds)
	num("RELAYD_RESPONSE_TIMEOUT_SECONDS", &c.ResponseTimeoutSeconds)
	num("RELAYD_REQUEST_TIMEOUT_SECONDS", &c.RequestTimeoutSeconds)
	num("RELAYD_CHUNK_SIZE_BYTES", &c.ChunkSizeBytes)
	if n, err := strconv.ParseInt(strings.TrimSpace(getenv("RELAYD_MAX_BODY_BYTES")), 10, 64); err == nil {
		c.MaxBodyBytes = n
	}
	str("RELAYD_LOG_LEVEL", &c.LogLevel)
	str("RELAYD_LOG_FORMAT", &c.LogFormat)
	if b, err := strconv.ParseBool(strings.TrimSpace(getenv("RELAYD_CORS_ENABLED"))); err == nil {
		c.CORSEnabled = b
	}
	if v := getenv("RELAYD_CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = SplitCSV(v)
	}
	return c
}

// ConnectTimeout returns the connect bound as a duration.
func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// ResponseTimeout returns the wait-for-headers bound as a duration.
func (c Config) ResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeoutSeconds) * time.Second
}

// RequestTimeout returns the bound for synchronous upstream calls as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SplitCSV splits a comma separated list, trimming blanks and dropping empties.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
