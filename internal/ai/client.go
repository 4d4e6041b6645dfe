package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/salesdesk/salesdesk/internal/cost"
	"github.com/salesdesk/salesdesk/internal/metrics"
	"github.com/salesdesk/salesdesk/internal/types"
)

// ClientConfig configures the Anthropic-backed TextService.
type ClientConfig struct {
	APIKey string
	Model  string
	// MaxTokens caps each response. Default: 1024
	MaxTokens int
	// MaxConcurrent limits in-flight calls. Default: 3
	MaxConcurrent int
	// RequestsPerSecond limits the call rate. Default: 2
	RequestsPerSecond float64
	Retry             RetryConfig
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
	// Budget, when set, refuses calls once the hourly spend is used up.
	Budget *cost.Tracker
}

// Client generates text with the Anthropic Messages API.
type Client struct {
	client         *anthropic.Client
	model          string
	maxTokens      int
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	limiter        *rate.Limiter
	budget         *cost.Tracker
}

var _ TextService = (*Client)(nil)

// NewClient creates a Client. An API key and model are required.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	// Retries are ours; the SDK's own retry loop would hide failures from
	// the circuit breaker.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	c := &Client{
		client:         &client,
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		retry:          cfg.Retry,
		concurrencySem: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.MaxConcurrent),
		budget:         cfg.Budget,
	}
	if cfg.Retry.CircuitBreakerEnabled {
		c.circuitBreaker = NewCircuitBreaker(cfg.Retry.FailureThreshold, cfg.Retry.SuccessThreshold, cfg.Retry.OpenTimeout)
	}
	return c, nil
}

// CircuitBreaker exposes the breaker for health reporting. Nil when disabled.
func (c *Client) CircuitBreaker() *CircuitBreaker {
	return c.circuitBreaker
}

func (c *Client) GenerateLeadSummary(ctx context.Context, notes, vehicle string) (string, error) {
	prompt := fmt.Sprintf(`You are helping a Skoda dealership sales team prepare for a follow-up call.

Vehicle of interest: %s
Lead notes: %s

Summarize the customer's interest in two or three sentences, then suggest how the
sales executive should approach the follow-up call. Plain text, no headings.`, vehicle, notes)
	return c.complete(ctx, OpLeadSummary, prompt)
}

func (c *Client) GenerateFollowUpScript(ctx context.Context, feedback string) (string, error) {
	prompt := fmt.Sprintf(`Write a short follow-up phone script for a sales executive at Mahavir Skoda.

Customer feedback from the last call: %q

Use [Customer Name] and [Your Name] as placeholders. Address the concerns in the
feedback, list three or four talking points and close by offering a showroom visit
or a test drive.`, feedback)
	return c.complete(ctx, OpFollowUpScript, prompt)
}

func (c *Client) AnalyzeFeedbackTrends(ctx context.Context, feedback string) (string, error) {
	prompt := fmt.Sprintf(`Analyze this customer feedback from a car dealership call.

Feedback: %q

Report sentiment, engagement level, purchase intent and follow-up priority, each on
its own line, followed by up to three recommended actions.`, feedback)
	return c.complete(ctx, OpFeedbackTrends, prompt)
}

// complete runs one prompt through the concurrency limit, the rate limiter
// and the retry loop.
func (c *Client) complete(ctx context.Context, operation, prompt string) (string, error) {
	start := time.Now()
	text, err := c.completeOnce(ctx, operation, prompt)
	metrics.AIRequestDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("%w: %w", types.ErrAIService, err)
	}
	metrics.AIRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return text, nil
}

func (c *Client) completeOnce(ctx context.Context, operation, prompt string) (string, error) {
	if c.budget != nil {
		if err := c.budget.Allow(); err != nil {
			return "", err
		}
	}
	if err := c.concurrencySem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire concurrency slot for %s: %w", operation, err)
	}
	defer c.concurrencySem.Release(1)

	var text string
	err := retryWithBackoff(ctx, c.retry, c.circuitBreaker, operation, func(attemptCtx context.Context) error {
		if err := c.limiter.Wait(attemptCtx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		resp, err := c.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: int64(c.maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return err
		}
		if c.budget != nil {
			c.budget.RecordUsage(operation, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		}

		var b strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		text = strings.TrimSpace(b.String())
		if text == "" {
			return errors.New("response contained no text")
		}
		return nil
	})
	return text, err
}
