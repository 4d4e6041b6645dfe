package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/salesdesk/salesdesk/internal/notify"
)

// HeartbeatType is the payload type of the periodic alert_update event.
const HeartbeatType = "heartbeat"

// Sweeper is the part of the claim coordinator the sweep job needs.
type Sweeper interface {
	Sweep(ctx context.Context) ([]string, error)
}

// SweepJob releases lapsed claims. The coordinator announces each release.
func SweepJob(s Sweeper) Func {
	return func(ctx context.Context) error {
		if _, err := s.Sweep(ctx); err != nil {
			return fmt.Errorf("expiry sweep: %w", err)
		}
		return nil
	}
}

// HeartbeatJob publishes alert_update so every reader re-projects.
func HeartbeatJob(bus *notify.Bus, now func() time.Time) Func {
	if now == nil {
		now = time.Now
	}
	return func(context.Context) error {
		notify.AlertUpdate.Publish(bus, notify.AlertUpdatePayload{
			Type:      HeartbeatType,
			Timestamp: now(),
		})
		return nil
	}
}

// PruneBatchSize is how many journal rows one prune statement removes.
const PruneBatchSize = 500

// Pruner is the journal store's retention side.
type Pruner interface {
	PruneEvents(ctx context.Context, before time.Time, batchSize int) (int, error)
}

// PruneJob deletes journal records older than retention.
func PruneJob(p Pruner, retention time.Duration, now func() time.Time, logf func(format string, args ...any)) Func {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) error {
		removed, err := p.PruneEvents(ctx, now().Add(-retention), PruneBatchSize)
		if err != nil {
			return fmt.Errorf("event prune: %w", err)
		}
		if removed > 0 && logf != nil {
			logf("Pruned %d journal event(s) older than %v", removed, retention)
		}
		return nil
	}
}

// Intervals groups the schedule of the standard jobs.
type Intervals struct {
	Sweep     time.Duration
	Heartbeat time.Duration
	// Prune is how often the journal is trimmed. Zero disables pruning.
	Prune time.Duration
	// Retention is how long journal records are kept.
	Retention time.Duration
}

// Standard builds a runner with the sweep and heartbeat jobs registered, plus
// the journal prune when iv.Prune and iv.Retention are set.
func Standard(loc *time.Location, sweeper Sweeper, bus *notify.Bus, pruner Pruner, iv Intervals, opts ...Option) (*Runner, error) {
	r := NewRunner(loc, opts...)
	if err := r.Every("sweep", iv.Sweep, SweepJob(sweeper)); err != nil {
		return nil, err
	}
	if err := r.Every("heartbeat", iv.Heartbeat, HeartbeatJob(bus, nil)); err != nil {
		return nil, err
	}
	if pruner != nil && iv.Prune > 0 && iv.Retention > 0 {
		if err := r.Every("prune", iv.Prune, PruneJob(pruner, iv.Retention, nil, r.logf)); err != nil {
			return nil, err
		}
	}
	return r, nil
}
