package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/salesdesk/salesdesk/internal/storage"
)

// Config is the full runtime configuration for salesdesk.
//
// Sources are applied in order: defaults, YAML file, .env file, SALESDESK_*
// environment variables. The result is validated once at the end.
type Config struct {
	// ListenAddr is the HTTP gateway address. Default: ":8080"
	ListenAddr string

	Storage StorageConfig

	// LeaseDuration is how long a claim is held. Default: 30m, Range: 1m-24h
	LeaseDuration time.Duration
	// SweepInterval is how often lapsed claims are released. Default: 1m, Range: 1s-1h
	SweepInterval time.Duration
	// HeartbeatInterval is how often alert_update is broadcast. Default: 30s, Range: 1s-1h
	HeartbeatInterval time.Duration
	// PollInterval is the dashboard reconciliation poll. Default: 30s, Range: 1s-1h
	PollInterval time.Duration

	// EventRetention is how long the claim journal keeps records.
	// Default: 168h (7 days), Range: 0 (keep forever) or 1h-8760h
	EventRetention time.Duration

	// Timezone decides calendar days for alerts and stats. Default: "Local"
	Timezone string

	AI    AIConfig
	Redis RedisConfig

	// MetricsEnabled exposes /metrics on the gateway. Default: true
	MetricsEnabled bool
	// AllowedOrigins are websocket origin patterns. Default: none (same origin only)
	AllowedOrigins []string
}

// StorageConfig selects the schedule store backend
type StorageConfig struct {
	// Backend is "memory" or "sqlite". Default: "memory"
	Backend string
	// Path is the SQLite database path. Default: ":memory:"
	Path string
	// Latency simulates store round-trips. Default: 0, Range: 0-5s
	Latency time.Duration
}

// AIConfig configures the AI text service
type AIConfig struct {
	// APIKey enables the Anthropic client. Empty means offline templates.
	APIKey string
	// Model is the Anthropic model name
	Model string
	// Timeout bounds one AI call. Default: 10s, Range: 1s-2m
	Timeout time.Duration
	// MaxConcurrent limits in-flight AI calls. Default: 3, Range: 1-50
	MaxConcurrent int
	// RequestsPerSecond limits the AI call rate. Default: 2, Range: 0.1-100
	RequestsPerSecond float64
	// MaxTokensPerHour caps input plus output tokens per hour. 0 = unlimited. Default: 200000
	MaxTokensPerHour int64
	// MaxCostPerHour caps estimated USD spend per hour. 0 = unlimited. Default: 2.00
	MaxCostPerHour float64
}

// RedisConfig configures the optional event mirror
type RedisConfig struct {
	// URL enables mirroring when set, e.g. redis://localhost:6379/0
	URL string
	// Channel is the pub/sub channel. Default: "salesdesk:events"
	Channel string
}

// Default returns the default configuration
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Storage: StorageConfig{
			Backend: storage.BackendMemory,
			Path:    ":memory:",
		},
		LeaseDuration:     30 * time.Minute,
		SweepInterval:     time.Minute,
		HeartbeatInterval: 30 * time.Second,
		PollInterval:      30 * time.Second,
		EventRetention:    7 * 24 * time.Hour,
		Timezone:          "Local",
		AI: AIConfig{
			Model:             "claude-sonnet-4-5-20250929",
			Timeout:           10 * time.Second,
			MaxConcurrent:     3,
			RequestsPerSecond: 2,
			MaxTokensPerHour:  200000,
			MaxCostPerHour:    2.00,
		},
		Redis: RedisConfig{
			Channel: "salesdesk:events",
		},
		MetricsEnabled: true,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("listen_addr is required")
	}

	switch c.Storage.Backend {
	case storage.BackendMemory, storage.BackendSQLite:
	default:
		return fmt.Errorf("storage.backend must be %q or %q (got %q)", storage.BackendMemory, storage.BackendSQLite, c.Storage.Backend)
	}
	if c.Storage.Latency < 0 || c.Storage.Latency > 5*time.Second {
		return fmt.Errorf("storage.latency must be between 0 and 5s (got %v)", c.Storage.Latency)
	}

	if c.LeaseDuration < time.Minute || c.LeaseDuration > 24*time.Hour {
		return fmt.Errorf("lease_duration must be between 1m and 24h (got %v)", c.LeaseDuration)
	}
	for name, d := range map[string]time.Duration{
		"sweep_interval":     c.SweepInterval,
		"heartbeat_interval": c.HeartbeatInterval,
		"poll_interval":      c.PollInterval,
	} {
		if d < time.Second || d > time.Hour {
			return fmt.Errorf("%s must be between 1s and 1h (got %v)", name, d)
		}
	}

	if c.EventRetention != 0 && (c.EventRetention < time.Hour || c.EventRetention > 365*24*time.Hour) {
		return fmt.Errorf("event_retention must be 0 or between 1h and 8760h (got %v)", c.EventRetention)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.AI.Timeout < time.Second || c.AI.Timeout > 2*time.Minute {
		return fmt.Errorf("ai.timeout must be between 1s and 2m (got %v)", c.AI.Timeout)
	}
	if c.AI.MaxConcurrent < 1 || c.AI.MaxConcurrent > 50 {
		return fmt.Errorf("ai.max_concurrent must be between 1 and 50 (got %d)", c.AI.MaxConcurrent)
	}
	if c.AI.RequestsPerSecond < 0.1 || c.AI.RequestsPerSecond > 100 {
		return fmt.Errorf("ai.requests_per_second must be between 0.1 and 100 (got %v)", c.AI.RequestsPerSecond)
	}
	if c.AI.MaxTokensPerHour < 0 {
		return fmt.Errorf("ai.max_tokens_per_hour must be non-negative (got %d)", c.AI.MaxTokensPerHour)
	}
	if c.AI.MaxCostPerHour < 0 {
		return fmt.Errorf("ai.max_cost_per_hour must be non-negative (got %v)", c.AI.MaxCostPerHour)
	}
	if c.AI.APIKey != "" && c.AI.Model == "" {
		return errors.New("ai.model is required when an API key is set")
	}

	if c.Redis.URL != "" && c.Redis.Channel == "" {
		return errors.New("redis.channel is required when redis.url is set")
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// StorageOptions converts to the storage package's config.
func (c Config) StorageOptions() *storage.Config {
	return &storage.Config{
		Backend: c.Storage.Backend,
		Path:    c.Storage.Path,
		Latency: c.Storage.Latency,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when empty), then envFile (skipped when missing), then the
// environment.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the environment
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// fileConfig is the YAML layout. Durations are strings like "30m".
type fileConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Storage    struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
		Latency string `yaml:"latency"`
	} `yaml:"storage"`
	LeaseDuration     string `yaml:"lease_duration"`
	SweepInterval     string `yaml:"sweep_interval"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	PollInterval      string `yaml:"poll_interval"`
	EventRetention    string `yaml:"event_retention"`
	Timezone          string `yaml:"timezone"`
	AI                struct {
		APIKey            string   `yaml:"api_key"`
		Model             string   `yaml:"model"`
		Timeout           string   `yaml:"timeout"`
		MaxConcurrent     int      `yaml:"max_concurrent"`
		RequestsPerSecond float64  `yaml:"requests_per_second"`
		MaxTokensPerHour  *int64   `yaml:"max_tokens_per_hour"`
		MaxCostPerHour    *float64 `yaml:"max_cost_per_hour"`
	} `yaml:"ai"`
	Redis struct {
		URL     string `yaml:"url"`
		Channel string `yaml:"channel"`
	} `yaml:"redis"`
	MetricsEnabled *bool    `yaml:"metrics_enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.ListenAddr, f.ListenAddr)
	setString(&c.Storage.Backend, f.Storage.Backend)
	setString(&c.Storage.Path, f.Storage.Path)
	setString(&c.Timezone, f.Timezone)
	setString(&c.AI.APIKey, f.AI.APIKey)
	setString(&c.AI.Model, f.AI.Model)
	setString(&c.Redis.URL, f.Redis.URL)
	setString(&c.Redis.Channel, f.Redis.Channel)
	if f.AI.MaxConcurrent != 0 {
		c.AI.MaxConcurrent = f.AI.MaxConcurrent
	}
	if f.AI.RequestsPerSecond != 0 {
		c.AI.RequestsPerSecond = f.AI.RequestsPerSecond
	}
	// Pointers so an explicit 0 can lift a limit
	if f.AI.MaxTokensPerHour != nil {
		c.AI.MaxTokensPerHour = *f.AI.MaxTokensPerHour
	}
	if f.AI.MaxCostPerHour != nil {
		c.AI.MaxCostPerHour = *f.AI.MaxCostPerHour
	}
	if f.MetricsEnabled != nil {
		c.MetricsEnabled = *f.MetricsEnabled
	}
	if len(f.AllowedOrigins) > 0 {
		c.AllowedOrigins = f.AllowedOrigins
	}

	durations := []struct {
		key   string
		value string
		dest  *time.Duration
	}{
		{"storage.latency", f.Storage.Latency, &c.Storage.Latency},
		{"lease_duration", f.LeaseDuration, &c.LeaseDuration},
		{"sweep_interval", f.SweepInterval, &c.SweepInterval},
		{"heartbeat_interval", f.HeartbeatInterval, &c.HeartbeatInterval},
		{"poll_interval", f.PollInterval, &c.PollInterval},
		{"event_retention", f.EventRetention, &c.EventRetention},
		{"ai.timeout", f.AI.Timeout, &c.AI.Timeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", d.key, path, err)
		}
		*d.dest = parsed
	}
	return nil
}

func setString(dest *string, value string) {
	if value != "" {
		*dest = value
	}
}
