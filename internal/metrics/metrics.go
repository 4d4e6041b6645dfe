// Package metrics provides Prometheus metrics for the claim coordination core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for our application
var Registry = prometheus.NewRegistry()

// factory allows us to register metrics to our custom Registry directly
var factory = promauto.With(Registry)

// Claim results recorded on ClaimAttemptsTotal.
const (
	ResultWon      = "won"
	ResultLost     = "lost"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// =============================================================================
// Claim protocol
// =============================================================================

// ClaimAttemptsTotal counts claim attempts by outcome. A high lost/won ratio
// means executives are racing for the same slots.
var ClaimAttemptsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "salesdesk",
	Name:      "claim_attempts_total",
	Help:      "Claim attempts by result (won, lost, not_found, error)",
}, []string{"result"})

// ClaimsCompletedTotal counts claims closed as completed.
var ClaimsCompletedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "salesdesk",
	Name:      "claims_completed_total",
	Help:      "Claims that were completed by their claimant",
})

// ClaimsExpiredTotal counts claims closed in the terminal expired state.
var ClaimsExpiredTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "salesdesk",
	Name:      "claims_expired_total",
	Help:      "Claims moved to the terminal expired state",
})

// ClaimsReleasedTotal counts lapsed claims the sweep returned to the pool.
var ClaimsReleasedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "salesdesk",
	Name:      "claims_released_total",
	Help:      "Lapsed claims returned to pending by the expiry sweep",
})

// SweepDurationSeconds tracks how long each expiry sweep takes.
var SweepDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "salesdesk",
	Name:      "sweep_duration_seconds",
	Help:      "Time taken by one expiry sweep",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
})

// =============================================================================
// Schedules and notifications
// =============================================================================

// SchedulesCreatedTotal counts schedules created through the scheduling service.
var SchedulesCreatedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "salesdesk",
	Name:      "schedules_created_total",
	Help:      "Schedules created",
})

// EventsPublishedTotal counts bus publications by event name.
var EventsPublishedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "notify",
	Name:      "events_published_total",
	Help:      "Events published on the notification bus",
}, []string{"event"})

// HandlerFailuresTotal counts handlers that returned an error or panicked.
var HandlerFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "notify",
	Name:      "handler_failures_total",
	Help:      "Notification handlers that failed, by event name",
}, []string{"event"})

// WebsocketClients tracks connected dashboard websockets.
var WebsocketClients = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "gateway",
	Name:      "websocket_clients",
	Help:      "Dashboard websocket connections currently open",
})

// =============================================================================
// AI text service
// =============================================================================

// AIRequestsTotal counts AI calls by operation and result (ok, error, fallback).
var AIRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ai",
	Name:      "requests_total",
	Help:      "AI text requests by operation and result",
}, []string{"operation", "result"})

// AIRequestDurationSeconds tracks AI call latency.
var AIRequestDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ai",
	Name:      "request_duration_seconds",
	Help:      "Time taken by AI text requests",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
})

// AITokensTotal counts tokens billed by the AI provider, by direction (input, output).
var AITokensTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ai",
	Name:      "tokens_total",
	Help:      "Tokens used by AI requests, by direction",
}, []string{"direction"})

// AIBudgetStatus is the spend guard state: 0 healthy, 1 warning, 2 exceeded.
var AIBudgetStatus = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "ai",
	Name:      "budget_status",
	Help:      "AI budget status (0 healthy, 1 warning, 2 exceeded)",
})

// =============================================================================
// Helper Functions
// =============================================================================

// RecordClaim records one claim attempt outcome.
func RecordClaim(result string) {
	ClaimAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordHandlerFailure is shaped for notify.WithFailureHook.
func RecordHandlerFailure(event string) {
	HandlerFailuresTotal.WithLabelValues(event).Inc()
}
