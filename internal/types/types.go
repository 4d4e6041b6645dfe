package types

import (
	"fmt"
	"strings"
	"time"
)

// Schedule is a claimable customer-contact slot.
//
// Claim invariant: ClaimedBy is non-empty if and only if ClaimExpiresAt is set,
// and both hold exactly when Status is StatusClaimed. Only the claim
// coordinator may change the claim fields.
type Schedule struct {
	ID              string    `json:"id"`
	ExecutiveID     string    `json:"executive_id"`
	Date            string    `json:"date"` // YYYY-MM-DD
	Time            string    `json:"time"` // HH:MM
	Summary         string    `json:"summary"`
	CustomerName    string    `json:"customer_name"`
	VehicleInterest string    `json:"vehicle_interest"`
	LeadID          string    `json:"lead_id"`
	AISummary       string    `json:"ai_summary,omitempty"`
	AIPrepNotes     string    `json:"ai_prep_notes,omitempty"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`

	// Claim fields
	ClaimedBy      string     `json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	ClaimExpiresAt *time.Time `json:"claim_timeout,omitempty"`
	Status         Status     `json:"status"`

	// Set once a claim is completed; the claimant field itself is cleared.
	CompletedBy string     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so callers never share pointers with a store.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	c := *s
	c.ClaimedAt = cloneTime(s.ClaimedAt)
	c.ClaimExpiresAt = cloneTime(s.ClaimExpiresAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	return &c
}

// IsClaimed reports whether the schedule currently holds a live claim.
func (s *Schedule) IsClaimed() bool {
	return s.ClaimedBy != ""
}

// CheckClaimInvariant verifies claimant, expiry and status agree with each other.
func (s *Schedule) CheckClaimInvariant() error {
	hasClaimant := s.ClaimedBy != ""
	hasExpiry := s.ClaimExpiresAt != nil
	isClaimed := s.Status == StatusClaimed
	if hasClaimant != hasExpiry || hasClaimant != isClaimed {
		return fmt.Errorf("schedule %s violates claim invariant (claimed_by=%q, expiry_set=%t, status=%s)",
			s.ID, s.ClaimedBy, hasExpiry, s.Status)
	}
	return nil
}

// ClaimDay returns the calendar day the current or last claim was taken on,
// falling back to the schedule date.
func (s *Schedule) ClaimDay(loc *time.Location) string {
	if s.ClaimedAt != nil {
		return DateOf(*s.ClaimedAt, loc)
	}
	return s.Date
}

// Status is the lifecycle state of a schedule.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusClaimed, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// IsOpen reports whether the slot is still actionable (pending or claimed).
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusClaimed
}

// pending -> claimed -> {completed, expired}; claimed -> pending on lease release.
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusClaimed: true,
	},
	StatusClaimed: {
		StatusPending:   true,
		StatusCompleted: true,
		StatusExpired:   true,
	},
}

// ValidateTransition returns an ErrInvalidState error when from -> to is not allowed.
func ValidateTransition(from, to Status) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: cannot transition from terminal status %q", ErrInvalidState, from)
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, from)
	}
	if !allowed[to] {
		return fmt.Errorf("%w: invalid schedule transition %q -> %q", ErrInvalidState, from, to)
	}
	return nil
}

// NewSchedule holds the producer-supplied fields for creating a schedule.
type NewSchedule struct {
	ExecutiveID     string `json:"executive_id"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Summary         string `json:"summary"`
	CustomerName    string `json:"customer_name"`
	VehicleInterest string `json:"vehicle_interest"`
	LeadID          string `json:"lead_id"`
	AISummary       string `json:"ai_summary,omitempty"`
	AIPrepNotes     string `json:"ai_prep_notes,omitempty"`
	CreatedBy       string `json:"created_by"`
}

// Validate checks required-field presence only.
func (n *NewSchedule) Validate() error {
	var missing []string
	if strings.TrimSpace(n.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(n.Time) == "" {
		missing = append(missing, "time")
	}
	if strings.TrimSpace(n.CustomerName) == "" {
		missing = append(missing, "customer_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required field(s): %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// ScheduleUpdate is a partial update of the non-claim fields. A nil field is
// left unchanged. Claim fields are deliberately absent.
type ScheduleUpdate struct {
	ExecutiveID     *string `json:"executive_id,omitempty"`
	Date            *string `json:"date,omitempty"`
	Time            *string `json:"time,omitempty"`
	Summary         *string `json:"summary,omitempty"`
	CustomerName    *string `json:"customer_name,omitempty"`
	VehicleInterest *string `json:"vehicle_interest,omitempty"`
	LeadID          *string `json:"lead_id,omitempty"`
	AISummary       *string `json:"ai_summary,omitempty"`
	AIPrepNotes     *string `json:"ai_prep_notes,omitempty"`
}

// Apply merges the update into s.
func (u ScheduleUpdate) Apply(s *Schedule) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&s.ExecutiveID, u.ExecutiveID)
	set(&s.Date, u.Date)
	set(&s.Time, u.Time)
	set(&s.Summary, u.Summary)
	set(&s.CustomerName, u.CustomerName)
	set(&s.VehicleInterest, u.VehicleInterest)
	set(&s.LeadID, u.LeadID)
	set(&s.AISummary, u.AISummary)
	set(&s.AIPrepNotes, u.AIPrepNotes)
}

// Validate rejects updates that would blank a required field.
func (u ScheduleUpdate) Validate() error {
	blank := func(p *string) bool { return p != nil && strings.TrimSpace(*p) == "" }
	if blank(u.Date) || blank(u.Time) || blank(u.CustomerName) {
		return fmt.Errorf("%w: date, time and customer_name cannot be cleared", ErrValidation)
	}
	return nil
}

// ScheduleFilter narrows ListSchedules. Empty fields match everything.
type ScheduleFilter struct {
	// ExecutiveID matches the owning executive or the current claimant.
	ExecutiveID string
	Date        string
	Status      Status
}

// Matches reports whether s passes the filter.
func (f ScheduleFilter) Matches(s *Schedule) bool {
	if f.ExecutiveID != "" && s.ExecutiveID != f.ExecutiveID && s.ClaimedBy != f.ExecutiveID {
		return false
	}
	if f.Date != "" && s.Date != f.Date {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

// DateLayout is the calendar-day format used for Schedule.Date and stats keys.
const DateLayout = "2006-01-02"

// DateOf formats t as a calendar day in loc (UTC when loc is nil).
func DateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
