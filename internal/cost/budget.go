// Package cost guards AI spend with an hourly token and dollar budget.
package cost

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/salesdesk/salesdesk/internal/metrics"
)

// ErrBudgetExceeded is returned by Allow once a limit is hit for the window.
var ErrBudgetExceeded = errors.New("AI budget exceeded")

// BudgetStatus represents the current budget state
type BudgetStatus int

const (
	// BudgetHealthy indicates normal operation - under budget limits
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning indicates usage past AlertThreshold of a limit
	BudgetWarning
	// BudgetExceeded indicates a limit has been reached
	BudgetExceeded
)

// String returns a human-readable string representation of the budget status
func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Stats is a point-in-time view of the budget.
type Stats struct {
	Status       BudgetStatus     `json:"status"`
	WindowTokens int64            `json:"window_tokens"`
	WindowCost   float64          `json:"window_cost"`
	TotalTokens  int64            `json:"total_tokens"`
	TotalCost    float64          `json:"total_cost"`
	WindowStart  time.Time        `json:"window_start"`
	ByOperation  map[string]int64 `json:"by_operation"`
}

// Tracker tracks AI usage against the budget. It is safe for concurrent use.
type Tracker struct {
	cfg  Config
	now  func() time.Time
	logf func(format string, args ...any)

	mu           sync.Mutex
	windowStart  time.Time
	windowTokens int64
	windowCost   float64
	totalTokens  int64
	totalCost    float64
	byOperation  map[string]int64
	lastStatus   BudgetStatus
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogf routes budget alerts. Defaults to stderr.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(t *Tracker) { t.logf = logf }
}

// NewTracker creates a new budget tracker
func NewTracker(cfg Config, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cost config: %w", err)
	}
	t := &Tracker{
		cfg: cfg,
		now: time.Now,
		logf: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		},
		byOperation: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.windowStart = t.now()
	return t, nil
}

// Allow returns ErrBudgetExceeded, wrapped with the limit that was hit, when
// no further calls may be made in the current window.
func (t *Tracker) Allow() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetWindowLocked()

	if t.cfg.MaxTokensPerHour > 0 && t.windowTokens >= t.cfg.MaxTokensPerHour {
		return fmt.Errorf("%w: %d/%d tokens used this window", ErrBudgetExceeded, t.windowTokens, t.cfg.MaxTokensPerHour)
	}
	if t.cfg.MaxCostPerHour > 0 && t.windowCost >= t.cfg.MaxCostPerHour {
		return fmt.Errorf("%w: $%.2f/$%.2f spent this window", ErrBudgetExceeded, t.windowCost, t.cfg.MaxCostPerHour)
	}
	return nil
}

// RecordUsage adds one call's tokens and returns the resulting status.
func (t *Tracker) RecordUsage(operation string, inputTokens, outputTokens int64) BudgetStatus {
	metrics.AITokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	metrics.AITokensTotal.WithLabelValues("output").Add(float64(outputTokens))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetWindowLocked()

	tokens := inputTokens + outputTokens
	spend := t.calculateCost(inputTokens, outputTokens)
	t.windowTokens += tokens
	t.windowCost += spend
	t.totalTokens += tokens
	t.totalCost += spend
	t.byOperation[operation] += tokens

	status := t.statusLocked()
	if status != t.lastStatus {
		switch status {
		case BudgetWarning:
			t.logf("warning: AI budget at %.0f%% of the hourly limit ($%.2f, %d tokens)",
				t.usageFractionLocked()*100, t.windowCost, t.windowTokens)
		case BudgetExceeded:
			t.logf("warning: AI budget exceeded ($%.2f, %d tokens), using templates until %s",
				t.windowCost, t.windowTokens, t.windowStart.Add(t.cfg.Window).Format("15:04"))
		}
		t.lastStatus = status
	}
	metrics.AIBudgetStatus.Set(float64(status))
	return status
}

// Status returns the current budget status without recording usage.
func (t *Tracker) Status() BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetWindowLocked()
	return t.statusLocked()
}

// Stats returns a snapshot of usage.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetWindowLocked()

	byOp := make(map[string]int64, len(t.byOperation))
	for op, n := range t.byOperation {
		byOp[op] = n
	}
	return Stats{
		Status:       t.statusLocked(),
		WindowTokens: t.windowTokens,
		WindowCost:   t.windowCost,
		TotalTokens:  t.totalTokens,
		TotalCost:    t.totalCost,
		WindowStart:  t.windowStart,
		ByOperation:  byOp,
	}
}

func (t *Tracker) statusLocked() BudgetStatus {
	frac := t.usageFractionLocked()
	switch {
	case frac >= 1:
		return BudgetExceeded
	case frac >= t.cfg.AlertThreshold:
		return BudgetWarning
	default:
		return BudgetHealthy
	}
}

// usageFractionLocked is the larger of the token and cost usage ratios.
func (t *Tracker) usageFractionLocked() float64 {
	var frac float64
	if t.cfg.MaxTokensPerHour > 0 {
		frac = float64(t.windowTokens) / float64(t.cfg.MaxTokensPerHour)
	}
	if t.cfg.MaxCostPerHour > 0 {
		frac = max(frac, t.windowCost/t.cfg.MaxCostPerHour)
	}
	return frac
}

func (t *Tracker) calculateCost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1_000_000*t.cfg.InputTokenCost +
		float64(outputTokens)/1_000_000*t.cfg.OutputTokenCost
}

func (t *Tracker) resetWindowLocked() {
	now := t.now()
	if now.Sub(t.windowStart) < t.cfg.Window {
		return
	}
	t.windowStart = now
	t.windowTokens = 0
	t.windowCost = 0
	if t.lastStatus != BudgetHealthy {
		t.lastStatus = BudgetHealthy
		metrics.AIBudgetStatus.Set(float64(BudgetHealthy))
	}
}
