// Package scheduling creates follow-up slots on behalf of CRT and marketing
// users, enriches them with an AI lead summary and announces them.
package scheduling

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/salesdesk/salesdesk/internal/ai"
	"github.com/salesdesk/salesdesk/internal/metrics"
	"github.com/salesdesk/salesdesk/internal/notify"
	"github.com/salesdesk/salesdesk/internal/types"
)

// DefaultSummaryTimeout bounds the AI lead summary call.
const DefaultSummaryTimeout = 10 * time.Second

// Creator is the write side of the schedule store.
type Creator interface {
	CreateSchedule(ctx context.Context, in types.NewSchedule) (*types.Schedule, error)
}

// Request is a schedule creation request. Notes are the lead notes the AI
// summary is generated from; they are not stored themselves.
type Request struct {
	types.NewSchedule
	Notes string `json:"notes,omitempty"`
}

// Config holds service configuration
type Config struct {
	// SummaryTimeout bounds the AI call. Default: 10s
	SummaryTimeout time.Duration
	// Logf receives warnings. Default: stderr
	Logf func(format string, args ...any)
}

// Service creates schedules.
type Service struct {
	store Creator
	bus   *notify.Bus
	text  ai.TextService
	cfg   Config
}

// NewService wires a scheduling service. text may be nil to skip summaries;
// bus may be nil to skip announcements.
func NewService(store Creator, bus *notify.Bus, text ai.TextService, cfg Config) *Service {
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = DefaultSummaryTimeout
	}
	if cfg.Logf == nil {
		cfg.Logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	return &Service{store: store, bus: bus, text: text, cfg: cfg}
}

// CreateSchedule validates req, asks for a lead summary when notes are given
// and none was supplied, stores the schedule and publishes new_alert.
//
// A failed or slow summary never fails creation; the schedule is stored
// without one.
func (s *Service) CreateSchedule(ctx context.Context, req Request) (*types.Schedule, error) {
	in := req.NewSchedule
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if in.AISummary == "" && strings.TrimSpace(req.Notes) != "" && s.text != nil {
		in.AISummary = s.summarize(ctx, req.Notes, in.VehicleInterest)
	}

	sched, err := s.store.CreateSchedule(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}
	metrics.SchedulesCreatedTotal.Inc()

	if s.bus != nil {
		notify.NewAlert.Publish(s.bus, notify.NewAlertPayload{
			ScheduleID:    sched.ID,
			ExecutiveID:   sched.ExecutiveID,
			CustomerName:  sched.CustomerName,
			Vehicle:       sched.VehicleInterest,
			LeadID:        sched.LeadID,
			ScheduledTime: sched.Date + " " + sched.Time,
		})
	}
	return sched, nil
}

func (s *Service) summarize(ctx context.Context, notes, vehicle string) string {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SummaryTimeout)
	defer cancel()

	summary, err := s.text.GenerateLeadSummary(ctx, notes, vehicle)
	if err != nil {
		s.cfg.Logf("warning: lead summary for %q unavailable: %v", vehicle, err)
		return ""
	}
	return summary
}
