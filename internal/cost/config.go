package cost

import (
	"fmt"
	"time"
)

// Config holds AI spend budgeting configuration
type Config struct {
	// MaxTokensPerHour is the maximum number of tokens (input + output) per window
	// 0 = unlimited
	// Default: 200000
	MaxTokensPerHour int64

	// MaxCostPerHour is the maximum spend in USD per window
	// 0.0 = unlimited (use token limits instead)
	// Default: 2.00
	MaxCostPerHour float64

	// AlertThreshold is the fraction of either limit that triggers a warning
	// Default: 0.80
	AlertThreshold float64

	// Window is how often the hourly budget resets
	// Default: 1 hour
	Window time.Duration

	// InputTokenCost is the cost per 1M input tokens (in USD)
	// Default: $3.00
	InputTokenCost float64

	// OutputTokenCost is the cost per 1M output tokens (in USD)
	// Default: $15.00
	OutputTokenCost float64
}

// DefaultConfig returns default AI budgeting configuration
func DefaultConfig() Config {
	return Config{
		MaxTokensPerHour: 200000,
		MaxCostPerHour:   2.00,
		AlertThreshold:   0.80,
		Window:           time.Hour,
		InputTokenCost:   3.00,
		OutputTokenCost:  15.00,
	}
}

// Limited reports whether any limit is set.
func (c Config) Limited() bool {
	return c.MaxTokensPerHour > 0 || c.MaxCostPerHour > 0
}

// Validate checks that the configuration has safe and reasonable values
func (c Config) Validate() error {
	if c.MaxTokensPerHour < 0 {
		return fmt.Errorf("max_tokens_per_hour must be non-negative, got %d", c.MaxTokensPerHour)
	}
	if c.MaxCostPerHour < 0 {
		return fmt.Errorf("max_cost_per_hour must be non-negative, got %.2f", c.MaxCostPerHour)
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1.0 {
		return fmt.Errorf("alert_threshold must be between 0 and 1, got %.2f", c.AlertThreshold)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %v", c.Window)
	}
	if c.InputTokenCost < 0 || c.OutputTokenCost < 0 {
		return fmt.Errorf("token costs must be non-negative, got %.2f/%.2f", c.InputTokenCost, c.OutputTokenCost)
	}
	return nil
}
