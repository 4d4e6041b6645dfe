package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overrides fields from SALESDESK_* environment variables.
//
// Environment variables:
//   - SALESDESK_LISTEN_ADDR
//   - SALESDESK_STORAGE_BACKEND, SALESDESK_STORAGE_PATH, SALESDESK_STORAGE_LATENCY
//   - SALESDESK_LEASE_DURATION, SALESDESK_SWEEP_INTERVAL, SALESDESK_HEARTBEAT_INTERVAL,
//     SALESDESK_POLL_INTERVAL, SALESDESK_EVENT_RETENTION (Go durations, e.g. "30m")
//   - SALESDESK_TIMEZONE
//   - SALESDESK_AI_API_KEY (falls back to ANTHROPIC_API_KEY), SALESDESK_AI_MODEL,
//     SALESDESK_AI_TIMEOUT, SALESDESK_AI_MAX_CONCURRENT, SALESDESK_AI_RPS,
//     SALESDESK_AI_MAX_TOKENS_PER_HOUR, SALESDESK_AI_MAX_COST_PER_HOUR
//   - SALESDESK_REDIS_URL, SALESDESK_REDIS_CHANNEL
//   - SALESDESK_METRICS_ENABLED
//   - SALESDESK_ALLOWED_ORIGINS (comma separated)
func (c *Config) applyEnv() error {
	parseEnvString("SALESDESK_LISTEN_ADDR", &c.ListenAddr)
	parseEnvString("SALESDESK_STORAGE_BACKEND", &c.Storage.Backend)
	parseEnvString("SALESDESK_STORAGE_PATH", &c.Storage.Path)
	parseEnvString("SALESDESK_TIMEZONE", &c.Timezone)
	parseEnvString("ANTHROPIC_API_KEY", &c.AI.APIKey)
	parseEnvString("SALESDESK_AI_API_KEY", &c.AI.APIKey)
	parseEnvString("SALESDESK_AI_MODEL", &c.AI.Model)
	parseEnvString("SALESDESK_REDIS_URL", &c.Redis.URL)
	parseEnvString("SALESDESK_REDIS_CHANNEL", &c.Redis.Channel)

	if v := os.Getenv("SALESDESK_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, origin)
			}
		}
	}

	durations := map[string]*time.Duration{
		"SALESDESK_STORAGE_LATENCY":    &c.Storage.Latency,
		"SALESDESK_LEASE_DURATION":     &c.LeaseDuration,
		"SALESDESK_SWEEP_INTERVAL":     &c.SweepInterval,
		"SALESDESK_HEARTBEAT_INTERVAL": &c.HeartbeatInterval,
		"SALESDESK_POLL_INTERVAL":      &c.PollInterval,
		"SALESDESK_EVENT_RETENTION":    &c.EventRetention,
		"SALESDESK_AI_TIMEOUT":         &c.AI.Timeout,
	}
	for key, dest := range durations {
		if err := parseEnvDuration(key, dest); err != nil {
			return err
		}
	}

	if err := parseEnvInt("SALESDESK_AI_MAX_CONCURRENT", &c.AI.MaxConcurrent); err != nil {
		return err
	}
	if err := parseEnvFloat("SALESDESK_AI_RPS", &c.AI.RequestsPerSecond); err != nil {
		return err
	}
	if err := parseEnvInt64("SALESDESK_AI_MAX_TOKENS_PER_HOUR", &c.AI.MaxTokensPerHour); err != nil {
		return err
	}
	if err := parseEnvFloat("SALESDESK_AI_MAX_COST_PER_HOUR", &c.AI.MaxCostPerHour); err != nil {
		return err
	}
	if err := parseEnvBool("SALESDESK_METRICS_ENABLED", &c.MetricsEnabled); err != nil {
		return err
	}
	return nil
}

// parseEnvInt parses an integer from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt64 parses a 64-bit integer from an environment variable
func parseEnvInt64(key string, dest *int64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a Go duration string from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString copies a non-empty environment variable into dest
func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}
