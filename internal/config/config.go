package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config is the root application configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	GitHub      GitHubConfig
	Session     SessionConfig
	Aggregation AggregationConfig
	Activity    ActivityConfig
	Telemetry   TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	BaseURL    string `yaml:"base_url"`
	LogLevel   string `yaml:"log_level"`
}

// DatabaseConfig contains relational store settings.
type DatabaseConfig struct {
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	Seed        bool   `yaml:"seed"`
}

// RedisConfig contains session backend settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GitHubConfig configures GitHub API and OAuth interactions.
type GitHubConfig struct {
	APIBaseURL     string
	ClientID       string
	ClientSecret   string
	Scopes         []string
	RequestTimeout time.Duration
	Retry          RetryConfig
	RateLimit      RateLimitConfig
}

// RetryConfig configures outbound request retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RateLimitConfig configures rate-limit controls on GitHub calls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// SessionConfig configures the server-side session store.
type SessionConfig struct {
	Secret     string
	TTL        time.Duration
	CookieName string
}

// AggregationConfig configures the commit aggregation pipeline.
type AggregationConfig struct {
	CommitsPerRepo int
	RecentLimit    int
	RepoWorkers    int
	StatWorkers    int
	PartialResults bool
}

// ActivityConfig configures the activity day-bucketing window.
type ActivityConfig struct {
	WindowDays int `yaml:"window_days"`
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads configuration from YAML, expands ${ENV} references, and
// validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	contents, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(contents))

	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}
	if c.Server.ListenAddr == "" {
		errs = append(errs, "server.listen_addr is required")
	}

	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}

	if c.GitHub.ClientID == "" {
		errs = append(errs, "github.client_id is required")
	}
	if c.GitHub.ClientSecret == "" {
		errs = append(errs, "github.client_secret is required")
	}
	if c.GitHub.RequestTimeout <= 0 {
		errs = append(errs, "github.request_timeout must be > 0")
	}
	if c.GitHub.Retry.MaxAttempts <= 0 {
		errs = append(errs, "github.retry.max_attempts must be > 0")
	}

	if len(c.Session.Secret) < 32 {
		errs = append(errs, "session.secret must be at least 32 characters")
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, "session.ttl must be > 0")
	}

	if c.Aggregation.CommitsPerRepo <= 0 {
		errs = append(errs, "aggregation.commits_per_repo must be > 0")
	}
	if c.Aggregation.RecentLimit <= 0 {
		errs = append(errs, "aggregation.recent_limit must be > 0")
	}
	if c.Aggregation.RepoWorkers <= 0 {
		errs = append(errs, "aggregation.repo_workers must be > 0")
	}
	if c.Aggregation.StatWorkers <= 0 {
		errs = append(errs, "aggregation.stat_workers must be > 0")
	}

	if c.Activity.WindowDays <= 0 {
		errs = append(errs, "activity.window_days must be > 0")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8080"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if len(cfg.GitHub.Scopes) == 0 {
		cfg.GitHub.Scopes = []string{"read:user", "user:email", "read:org", "repo"}
	}
	if cfg.GitHub.RequestTimeout <= 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.GitHub.Retry.MaxAttempts <= 0 {
		cfg.GitHub.Retry.MaxAttempts = 3
	}
	if cfg.GitHub.Retry.InitialBackoff <= 0 {
		cfg.GitHub.Retry.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.GitHub.Retry.MaxBackoff <= 0 {
		cfg.GitHub.Retry.MaxBackoff = 5 * time.Second
	}
	if cfg.GitHub.RateLimit.SecondaryLimitBackoff <= 0 {
		cfg.GitHub.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "orgboard_session"
	}
	if cfg.Aggregation.CommitsPerRepo <= 0 {
		cfg.Aggregation.CommitsPerRepo = 10
	}
	if cfg.Aggregation.RecentLimit <= 0 {
		cfg.Aggregation.RecentLimit = 50
	}
	if cfg.Aggregation.RepoWorkers <= 0 {
		cfg.Aggregation.RepoWorkers = 8
	}
	if cfg.Aggregation.StatWorkers <= 0 {
		cfg.Aggregation.StatWorkers = 16
	}
	if cfg.Activity.WindowDays <= 0 {
		cfg.Activity.WindowDays = 5
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	GitHub      rawGitHub      `yaml:"github"`
	Session     rawSession     `yaml:"session"`
	Aggregation rawAggregation `yaml:"aggregation"`
	Activity    ActivityConfig `yaml:"activity"`
	Telemetry   rawTelemetry   `yaml:"telemetry"`
}

type rawGitHub struct {
	APIBaseURL     string       `yaml:"api_base_url"`
	ClientID       string       `yaml:"client_id"`
	ClientSecret   string       `yaml:"client_secret"`
	Scopes         []string     `yaml:"scopes"`
	RequestTimeout duration     `yaml:"request_timeout"`
	Retry          rawRetry     `yaml:"retry"`
	RateLimit      rawRateLimit `yaml:"rate_limit"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawSession struct {
	Secret     string   `yaml:"secret"`
	TTL        duration `yaml:"ttl"`
	CookieName string   `yaml:"cookie_name"`
}

type rawAggregation struct {
	CommitsPerRepo int  `yaml:"commits_per_repo"`
	RecentLimit    int  `yaml:"recent_limit"`
	RepoWorkers    int  `yaml:"repo_workers"`
	StatWorkers    int  `yaml:"stat_workers"`
	PartialResults bool `yaml:"partial_results"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server:   r.Server,
		Database: r.Database,
		Redis:    r.Redis,
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			ClientID:       r.GitHub.ClientID,
			ClientSecret:   r.GitHub.ClientSecret,
			Scopes:         r.GitHub.Scopes,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
			Retry: RetryConfig{
				MaxAttempts:    r.GitHub.Retry.MaxAttempts,
				InitialBackoff: r.GitHub.Retry.InitialBackoff.Duration,
				MaxBackoff:     r.GitHub.Retry.MaxBackoff.Duration,
			},
			RateLimit: RateLimitConfig{
				MinRemainingThreshold: r.GitHub.RateLimit.MinRemainingThreshold,
				MinResetBuffer:        r.GitHub.RateLimit.MinResetBuffer.Duration,
				SecondaryLimitBackoff: r.GitHub.RateLimit.SecondaryLimitBackoff.Duration,
			},
		},
		Session: SessionConfig{
			Secret:     r.Session.Secret,
			TTL:        r.Session.TTL.Duration,
			CookieName: r.Session.CookieName,
		},
		Aggregation: AggregationConfig{
			CommitsPerRepo: r.Aggregation.CommitsPerRepo,
			RecentLimit:    r.Aggregation.RecentLimit,
			RepoWorkers:    r.Aggregation.RepoWorkers,
			StatWorkers:    r.Aggregation.StatWorkers,
			PartialResults: r.Aggregation.PartialResults,
		},
		Activity: r.Activity,
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
