package notify

import (
	"fmt"
	"time"
)

// EventName identifies a channel on the bus.
type EventName string

const (
	// EventNewAlert is published when a schedule is created
	EventNewAlert EventName = "new_alert"
	// EventClaimUpdate is published when a claim succeeds
	EventClaimUpdate EventName = "claim_update"
	// EventAlertUpdate is the periodic reconciliation heartbeat
	EventAlertUpdate EventName = "alert_update"
	// EventClaimReleased is published when the sweep returns a lapsed claim to the pool
	EventClaimReleased EventName = "claim_released"
	// EventScheduleCompleted is published when a claimant completes a schedule
	EventScheduleCompleted EventName = "schedule_completed"
	// EventScheduleExpired is published when a claim is closed as expired
	EventScheduleExpired EventName = "schedule_expired"
)

// Event is one delivery on the bus.
type Event struct {
	Name      EventName `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewAlertPayload carries the schedule identity and the fields a dashboard
// needs to render the new alert without a round-trip.
type NewAlertPayload struct {
	ScheduleID    string `json:"scheduleId"`
	ExecutiveID   string `json:"executiveId,omitempty"`
	CustomerName  string `json:"customerName"`
	Vehicle       string `json:"vehicle"`
	LeadID        string `json:"leadId"`
	ScheduledTime string `json:"scheduledTime"`
}

type ClaimUpdatePayload struct {
	ScheduleID string `json:"scheduleId"`
	ClaimedBy  string `json:"claimedBy"`
}

// AlertUpdatePayload is the heartbeat body. Readers re-project on receipt.
type AlertUpdatePayload struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type ClaimReleasedPayload struct {
	ScheduleID string    `json:"scheduleId"`
	ReleasedAt time.Time `json:"releasedAt"`
}

type ScheduleCompletedPayload struct {
	ScheduleID  string    `json:"scheduleId"`
	CompletedBy string    `json:"completedBy"`
	CompletedAt time.Time `json:"completedAt"`
}

type ScheduleExpiredPayload struct {
	ScheduleID string    `json:"scheduleId"`
	ExpiredAt  time.Time `json:"expiredAt"`
}

// Topic binds an event name to its payload type so publishers and
// subscribers agree on the shape at compile time.
type Topic[T any] struct {
	Name EventName
}

var (
	NewAlert          = Topic[NewAlertPayload]{Name: EventNewAlert}
	ClaimUpdate       = Topic[ClaimUpdatePayload]{Name: EventClaimUpdate}
	AlertUpdate       = Topic[AlertUpdatePayload]{Name: EventAlertUpdate}
	ClaimReleased     = Topic[ClaimReleasedPayload]{Name: EventClaimReleased}
	ScheduleCompleted = Topic[ScheduleCompletedPayload]{Name: EventScheduleCompleted}
	ScheduleExpired   = Topic[ScheduleExpiredPayload]{Name: EventScheduleExpired}
)

// Publish sends payload on the topic. See Bus.Publish.
func (t Topic[T]) Publish(b *Bus, payload T) int {
	return b.Publish(t.Name, payload)
}

// Subscribe registers a handler that receives the decoded payload. A payload
// of the wrong type is reported as a handler failure.
func (t Topic[T]) Subscribe(b *Bus, fn func(T) error) Subscription {
	return b.Subscribe(t.Name, func(e Event) error {
		p, ok := e.Payload.(T)
		if !ok {
			return fmt.Errorf("event %s: unexpected payload type %T", e.Name, e.Payload)
		}
		return fn(p)
	})
}
