// Package ai produces the free text shown next to leads and schedules:
// lead summaries, follow-up call scripts and feedback analyses.
//
// Two implementations exist. Client calls the Anthropic Messages API behind
// a retry loop, circuit breaker, concurrency limit and rate limiter. Templates
// renders fixed per-vehicle text and needs no network. Fallback combines the
// two so callers always get text back.
package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/salesdesk/salesdesk/internal/metrics"
)

// TextService generates dashboard text. Errors wrap types.ErrAIService.
type TextService interface {
	GenerateLeadSummary(ctx context.Context, notes, vehicle string) (string, error)
	GenerateFollowUpScript(ctx context.Context, feedback string) (string, error)
	AnalyzeFeedbackTrends(ctx context.Context, feedback string) (string, error)
}

// Operation names used in logs and metrics.
const (
	OpLeadSummary    = "lead_summary"
	OpFollowUpScript = "followup_script"
	OpFeedbackTrends = "feedback_trends"
)

// Fallback asks Primary first and falls back to Secondary when it fails.
// The primary error is logged, never returned, unless Secondary fails too.
type Fallback struct {
	Primary   TextService
	Secondary TextService
	Logf      func(format string, args ...any)
}

// NewFallback wraps primary with the offline templates.
func NewFallback(primary TextService) *Fallback {
	return &Fallback{Primary: primary, Secondary: Templates{}}
}

func (f *Fallback) GenerateLeadSummary(ctx context.Context, notes, vehicle string) (string, error) {
	return f.do(OpLeadSummary, func(s TextService) (string, error) {
		return s.GenerateLeadSummary(ctx, notes, vehicle)
	})
}

func (f *Fallback) GenerateFollowUpScript(ctx context.Context, feedback string) (string, error) {
	return f.do(OpFollowUpScript, func(s TextService) (string, error) {
		return s.GenerateFollowUpScript(ctx, feedback)
	})
}

func (f *Fallback) AnalyzeFeedbackTrends(ctx context.Context, feedback string) (string, error) {
	return f.do(OpFeedbackTrends, func(s TextService) (string, error) {
		return s.AnalyzeFeedbackTrends(ctx, feedback)
	})
}

func (f *Fallback) do(op string, call func(TextService) (string, error)) (string, error) {
	text, err := call(f.Primary)
	if err == nil {
		return text, nil
	}
	f.logf("warning: AI %s failed, using template: %v", op, err)
	metrics.AIRequestsTotal.WithLabelValues(op, "fallback").Inc()

	text, secondErr := call(f.Secondary)
	if secondErr != nil {
		return "", fmt.Errorf("%s: primary failed (%v) and fallback failed: %w", op, err, secondErr)
	}
	return text, nil
}

func (f *Fallback) logf(format string, args ...any) {
	if f.Logf != nil {
		f.Logf(format, args...)
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
