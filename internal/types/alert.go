package types

import (
	"math"
	"time"
)

// ClaimStatus is the display-level claim state of an Alert.
type ClaimStatus string

const (
	ClaimUnclaimed ClaimStatus = "unclaimed"
	ClaimClaimed   ClaimStatus = "claimed"
)

// DefaultPrepNotes is shown when a schedule carries no AI prep notes.
const DefaultPrepNotes = "No prep notes available"

// Alert is the read-only dashboard view of a Schedule for one day.
type Alert struct {
	ID             string      `json:"id"`
	ScheduleID     string      `json:"schedule_id"`
	CustomerName   string      `json:"customer_name"`
	LeadID         string      `json:"lead_id"`
	Vehicle        string      `json:"vehicle"`
	ScheduledTime  string      `json:"scheduled_time"`
	AIPrepNotes    string      `json:"ai_prep_notes"`
	ClaimStatus    ClaimStatus `json:"claim_status"`
	ClaimedBy      string      `json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time  `json:"claimed_at,omitempty"`
	ClaimExpiresAt *time.Time  `json:"claim_timeout,omitempty"`
}

// AlertFromSchedule derives the Alert for s.
func AlertFromSchedule(s *Schedule) Alert {
	a := Alert{
		ID:             "alert_" + s.ID,
		ScheduleID:     s.ID,
		CustomerName:   s.CustomerName,
		LeadID:         s.LeadID,
		Vehicle:        s.VehicleInterest,
		ScheduledTime:  s.Date + " " + s.Time,
		AIPrepNotes:    s.AIPrepNotes,
		ClaimStatus:    ClaimUnclaimed,
		ClaimedBy:      s.ClaimedBy,
		ClaimedAt:      cloneTime(s.ClaimedAt),
		ClaimExpiresAt: cloneTime(s.ClaimExpiresAt),
	}
	if a.AIPrepNotes == "" {
		a.AIPrepNotes = DefaultPrepNotes
	}
	if s.ClaimedBy != "" {
		a.ClaimStatus = ClaimClaimed
	}
	return a
}

// ExecutiveStats aggregates one executive's claims for one calendar day.
type ExecutiveStats struct {
	ExecutiveID    string  `json:"executive_id"`
	Date           string  `json:"date"`
	ClaimedCount   int     `json:"claimed_count"`
	CompletedCount int     `json:"completed_count"`
	SuccessRate    float64 `json:"success_rate"` // percent
}

// Recompute refreshes SuccessRate from the counters.
func (s *ExecutiveStats) Recompute() {
	if s.ClaimedCount <= 0 {
		s.SuccessRate = 0
		return
	}
	rate := float64(s.CompletedCount) / float64(s.ClaimedCount) * 100
	s.SuccessRate = math.Round(rate*100) / 100
}

// Clone returns a copy of the stats record.
func (s *ExecutiveStats) Clone() *ExecutiveStats {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
