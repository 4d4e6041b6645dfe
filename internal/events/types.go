// Package events is the durable claim journal: every schedule and claim
// change announced on the bus is kept as a Record so the history of a slot
// can be replayed after the live push is gone.
package events

import (
	"encoding/json"
	"time"
)

// Record is one journaled bus event.
type Record struct {
	// ID is the unique identifier for this record
	ID string `json:"id"`
	// Type is the bus event name, e.g. "claim_update"
	Type string `json:"type"`
	// Timestamp is when the event was published
	Timestamp time.Time `json:"timestamp"`
	// ScheduleID is the schedule the event concerns, if any
	ScheduleID string `json:"schedule_id,omitempty"`
	// Actor is the executive who caused the event, if known
	Actor string `json:"actor,omitempty"`
	// Message is a one-line human-readable description
	Message string `json:"message"`
	// Data is the event payload as published
	Data json.RawMessage `json:"data,omitempty"`
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	ScheduleID string
	Type       string
	// After and Before bound Timestamp exclusively
	After  time.Time
	Before time.Time
	// Limit caps the result; 0 means no cap
	Limit int
}

// Matches reports whether r passes the filter, ignoring Limit.
func (f Filter) Matches(r *Record) bool {
	if f.ScheduleID != "" && r.ScheduleID != f.ScheduleID {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if !f.After.IsZero() && !r.Timestamp.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !r.Timestamp.Before(f.Before) {
		return false
	}
	return true
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	if r.Data != nil {
		c.Data = append(json.RawMessage(nil), r.Data...)
	}
	return &c
}
