// Package claims implements the appointment lease protocol.
//
// A schedule is claimed by at most one executive at a time. A claim is a
// lease: it lapses LeaseDuration after it was taken unless the claimant
// completes it first, and the expiry sweep returns lapsed slots to the
// pending pool. The Coordinator is the only writer of claim fields and of
// ExecutiveStats.
package claims

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/salesdesk/salesdesk/internal/lock"
	"github.com/salesdesk/salesdesk/internal/metrics"
	"github.com/salesdesk/salesdesk/internal/notify"
	"github.com/salesdesk/salesdesk/internal/storage"
	"github.com/salesdesk/salesdesk/internal/types"
)

// DefaultLeaseDuration is how long a claim is held before the sweep may release it.
const DefaultLeaseDuration = 30 * time.Minute

// Store is the slice of storage the coordinator needs.
type Store interface {
	GetSchedule(ctx context.Context, id string) (*types.Schedule, error)
	storage.ClaimStore
	storage.StatsStore
}

// Config holds coordinator configuration
type Config struct {
	// LeaseDuration is the claim window. Default: 30m, Range: 1m-24h
	LeaseDuration time.Duration
	// Location decides which calendar day a claim is counted on. Default: time.Local
	Location *time.Location
	// Now is the clock. Default: time.Now
	Now func() time.Time
	// Logf receives progress and warning lines. Default: stderr
	Logf func(format string, args ...any)
}

// DefaultConfig returns the default coordinator configuration
func DefaultConfig() Config {
	return Config{
		LeaseDuration: DefaultLeaseDuration,
		Location:      time.Local,
		Now:           time.Now,
		Logf: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		},
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.LeaseDuration < time.Minute || c.LeaseDuration > 24*time.Hour {
		return fmt.Errorf("lease_duration must be between 1m and 24h (got %v)", c.LeaseDuration)
	}
	return nil
}

// Coordinator enforces the at-most-one-claimant protocol.
type Coordinator struct {
	store Store
	bus   *notify.Bus
	locks *lock.MutexMap
	cfg   Config
}

// NewCoordinator wires a coordinator over store. bus may be nil, in which
// case nothing is announced. Zero-valued config fields take their defaults.
func NewCoordinator(store Store, bus *notify.Bus, cfg Config) (*Coordinator, error) {
	def := DefaultConfig()
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = def.LeaseDuration
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.Logf == nil {
		cfg.Logf = def.Logf
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid coordinator config: %w", err)
	}
	return &Coordinator{
		store: store,
		bus:   bus,
		locks: lock.NewMutexMap(),
		cfg:   cfg,
	}, nil
}

// LeaseDuration returns the configured claim window.
func (c *Coordinator) LeaseDuration() time.Duration {
	return c.cfg.LeaseDuration
}

// Today returns the current calendar day in the coordinator's location.
func (c *Coordinator) Today() string {
	return types.DateOf(c.cfg.Now(), c.cfg.Location)
}

// Claim tries to take the lease on scheduleID for executiveID.
//
// It returns true only when the schedule was pending and unclaimed. A
// schedule that is already claimed, by anyone including executiveID, or is
// closed yields false with a nil error and no state change. An unknown id is
// types.ErrNotFound.
func (c *Coordinator) Claim(ctx context.Context, scheduleID, executiveID string) (bool, error) {
	if executiveID == "" {
		return false, fmt.Errorf("%w: executive id is required", types.ErrValidation)
	}

	won, err := c.claimLocked(ctx, scheduleID, executiveID)
	if err != nil || !won {
		return false, err
	}

	c.publish(func(b *notify.Bus) {
		notify.ClaimUpdate.Publish(b, notify.ClaimUpdatePayload{
			ScheduleID: scheduleID,
			ClaimedBy:  executiveID,
		})
	})
	return true, nil
}

func (c *Coordinator) claimLocked(ctx context.Context, scheduleID, executiveID string) (bool, error) {
	c.locks.Lock(scheduleID)
	defer c.locks.Unlock(scheduleID)

	now := c.cfg.Now()
	won, err := c.store.ClaimSchedule(ctx, scheduleID, executiveID, now, now.Add(c.cfg.LeaseDuration))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			metrics.RecordClaim(metrics.ResultNotFound)
		} else {
			metrics.RecordClaim(metrics.ResultError)
		}
		return false, fmt.Errorf("claim %s: %w", scheduleID, err)
	}
	if !won {
		metrics.RecordClaim(metrics.ResultLost)
		return false, nil
	}
	metrics.RecordClaim(metrics.ResultWon)

	// The claim already stands; a stats failure must not undo it
	day := types.DateOf(now, c.cfg.Location)
	if _, err := c.store.IncrementClaimed(ctx, executiveID, day); err != nil {
		c.cfg.Logf("warning: failed to record claim of %s for %s on %s: %v", scheduleID, executiveID, day, err)
	}
	return true, nil
}

// Complete closes the live claim on scheduleID as completed and credits the
// claimant on the day the claim was taken. Any schedule that is not
// currently claimed, including one the sweep already released, is
// types.ErrInvalidState. A non-empty claimant must hold the claim, otherwise
// the call is types.ErrForbidden; empty closes whoever holds it.
func (c *Coordinator) Complete(ctx context.Context, scheduleID, claimant string) (*types.Schedule, error) {
	sched, err := c.completeLocked(ctx, scheduleID, claimant)
	if err != nil {
		return nil, err
	}

	completedAt := c.cfg.Now()
	if sched.CompletedAt != nil {
		completedAt = *sched.CompletedAt
	}
	c.publish(func(b *notify.Bus) {
		notify.ScheduleCompleted.Publish(b, notify.ScheduleCompletedPayload{
			ScheduleID:  sched.ID,
			CompletedBy: sched.CompletedBy,
			CompletedAt: completedAt,
		})
	})
	return sched, nil
}

func (c *Coordinator) completeLocked(ctx context.Context, scheduleID, claimant string) (*types.Schedule, error) {
	c.locks.Lock(scheduleID)
	defer c.locks.Unlock(scheduleID)

	if err := c.checkClaimant(ctx, scheduleID, claimant); err != nil {
		return nil, fmt.Errorf("complete %s: %w", scheduleID, err)
	}
	sched, err := c.store.CompleteSchedule(ctx, scheduleID, c.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("complete %s: %w", scheduleID, err)
	}
	metrics.ClaimsCompletedTotal.Inc()

	day := sched.ClaimDay(c.cfg.Location)
	if _, err := c.store.IncrementCompleted(ctx, sched.CompletedBy, day); err != nil {
		c.cfg.Logf("warning: failed to record completion of %s for %s on %s: %v", scheduleID, sched.CompletedBy, day, err)
	}
	return sched, nil
}

// Expire closes the live claim on scheduleID in the terminal expired state.
// The slot does not return to the pool. Non-claimed schedules are
// types.ErrInvalidState. claimant is checked as in Complete.
func (c *Coordinator) Expire(ctx context.Context, scheduleID, claimant string) (*types.Schedule, error) {
	now := c.cfg.Now()
	var sched *types.Schedule
	err := c.locks.With(scheduleID, func() error {
		if err := c.checkClaimant(ctx, scheduleID, claimant); err != nil {
			return err
		}
		var err error
		sched, err = c.store.ExpireSchedule(ctx, scheduleID, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("expire %s: %w", scheduleID, err)
	}
	metrics.ClaimsExpiredTotal.Inc()

	c.publish(func(b *notify.Bus) {
		notify.ScheduleExpired.Publish(b, notify.ScheduleExpiredPayload{
			ScheduleID: scheduleID,
			ExpiredAt:  now,
		})
	})
	return sched, nil
}

// SweepExpired returns every claim whose expiry is before now to the pending
// pool and reports the released ids. Sweeping is idempotent: a second call
// with the same now releases nothing. Stats are not decremented.
func (c *Coordinator) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	start := time.Now()
	released, err := c.store.ReleaseExpiredClaims(ctx, now)
	metrics.SweepDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("sweep expired claims: %w", err)
	}
	if len(released) == 0 {
		return nil, nil
	}

	metrics.ClaimsReleasedTotal.Add(float64(len(released)))
	c.cfg.Logf("Released %d expired claim(s)", len(released))

	c.publish(func(b *notify.Bus) {
		for _, id := range released {
			notify.ClaimReleased.Publish(b, notify.ClaimReleasedPayload{
				ScheduleID: id,
				ReleasedAt: now,
			})
		}
	})
	return released, nil
}

// Sweep runs SweepExpired at the coordinator's current time.
func (c *Coordinator) Sweep(ctx context.Context) ([]string, error) {
	return c.SweepExpired(ctx, c.cfg.Now())
}

// Stats returns executiveID's counters for date, today when date is empty.
// An executive with no claims that day gets a zero record.
func (c *Coordinator) Stats(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error) {
	if date == "" {
		date = c.Today()
	}
	st, err := c.store.GetExecutiveStats(ctx, executiveID, date)
	if err != nil {
		return nil, fmt.Errorf("stats for %s: %w", executiveID, err)
	}
	return st, nil
}

// TeamStats returns every executive's counters for date, today when empty.
func (c *Coordinator) TeamStats(ctx context.Context, date string) ([]*types.ExecutiveStats, error) {
	if date == "" {
		date = c.Today()
	}
	all, err := c.store.ListExecutiveStats(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("team stats for %s: %w", date, err)
	}
	return all, nil
}

// checkClaimant must run under the schedule's lock so no claim can change
// hands between the check and the close. Unclaimed schedules pass through
// and are rejected by the store as types.ErrInvalidState.
func (c *Coordinator) checkClaimant(ctx context.Context, scheduleID, claimant string) error {
	if claimant == "" {
		return nil
	}
	current, err := c.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if current.IsClaimed() && current.ClaimedBy != claimant {
		return fmt.Errorf("%w: schedule %s is claimed by another executive", types.ErrForbidden, scheduleID)
	}
	return nil
}

func (c *Coordinator) publish(fn func(*notify.Bus)) {
	if c.bus != nil {
		fn(c.bus)
	}
}
