package types

import (
	"fmt"
	"time"
)

// Role is the dashboard role a principal signs in with.
type Role string

const (
	RoleMarketing Role = "Marketing Team"
	RoleCRT       Role = "CRT"
	RoleSales     Role = "Sales Executive"
	RoleAdmin     Role = "IT Admin"
)

// IsValid checks if the role value is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleMarketing, RoleCRT, RoleSales, RoleAdmin:
		return true
	}
	return false
}

// CanSchedule reports whether the role may create follow-up slots.
func (r Role) CanSchedule() bool {
	return r.IsValid()
}

// CanClaim reports whether the role may claim, complete or expire slots.
func (r Role) CanClaim() bool {
	return r == RoleSales || r == RoleAdmin
}

// Principal is a pre-authenticated caller identity. The core treats it as opaque.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Validate checks the principal carries an id and a known role.
func (p Principal) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: principal id is required", ErrForbidden)
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, p.Role)
	}
	return nil
}

// Lead is a prospective customer captured by marketing. Leads only feed the
// denormalized customer fields and prep notes of schedules.
type Lead struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email"`
	VehicleInterest string    `json:"vehicle_interest"`
	SourceEvent     string    `json:"source_event"`
	AssignedTo      string    `json:"assigned_to,omitempty"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LeadScore       int       `json:"lead_score"`
	LastContact     time.Time `json:"last_contact"`
	Concerns        []string  `json:"concerns,omitempty"`
}
