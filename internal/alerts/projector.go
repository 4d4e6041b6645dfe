// Package alerts derives the dashboard Alert view from schedule state.
// Nothing here is cached or written back; every call re-reads the store.
package alerts

import (
	"context"
	"fmt"
	"sort"

	"github.com/salesdesk/salesdesk/internal/types"
)

// Lister is the read side of the schedule store.
type Lister interface {
	ListSchedules(ctx context.Context, filter types.ScheduleFilter) ([]*types.Schedule, error)
}

// Projector turns schedules into alerts.
type Projector struct {
	store Lister
}

func NewProjector(store Lister) *Projector {
	return &Projector{store: store}
}

// ProjectForDate returns one alert per open (pending or claimed) schedule on
// date, in store order. Completed and expired slots are not actionable and
// are left out.
func (p *Projector) ProjectForDate(ctx context.Context, date string) ([]types.Alert, error) {
	schedules, err := p.store.ListSchedules(ctx, types.ScheduleFilter{Date: date})
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules for %s: %w", date, err)
	}

	out := make([]types.Alert, 0, len(schedules))
	for _, s := range schedules {
		if !s.Status.IsOpen() {
			continue
		}
		out = append(out, types.AlertFromSchedule(s))
	}
	return out, nil
}

// MyAlerts returns the alerts executiveID holds plus every unclaimed alert.
func (p *Projector) MyAlerts(ctx context.Context, date, executiveID string) ([]types.Alert, error) {
	all, err := p.ProjectForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return filter(all, func(a types.Alert) bool {
		return a.ClaimedBy == executiveID || a.ClaimStatus == types.ClaimUnclaimed
	}), nil
}

// TeamAlerts returns the unclaimed alerts.
func (p *Projector) TeamAlerts(ctx context.Context, date string) ([]types.Alert, error) {
	all, err := p.ProjectForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return filter(all, func(a types.Alert) bool {
		return a.ClaimStatus == types.ClaimUnclaimed
	}), nil
}

func filter(alerts []types.Alert, keep func(types.Alert) bool) []types.Alert {
	out := make([]types.Alert, 0, len(alerts))
	for _, a := range alerts {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// SortByTime orders alerts by scheduled time for display, keeping store order
// among equal times.
func SortByTime(alerts []types.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].ScheduledTime < alerts[j].ScheduledTime
	})
}
