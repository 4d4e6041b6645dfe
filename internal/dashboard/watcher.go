// Package dashboard keeps one executive's alert panel current.
//
// A Watcher loads the panel once, then reloads it on a fixed poll interval
// and whenever the bus announces a schedule or claim change. Bursts of
// events collapse into a single reload.
package dashboard

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/salesdesk/salesdesk/internal/notify"
	"github.com/salesdesk/salesdesk/internal/types"
)

// DefaultPollInterval is the reconciliation poll.
const DefaultPollInterval = 30 * time.Second

// Refresh reasons reported on Snapshot.Trigger.
const (
	TriggerInitial = "initial"
	TriggerPoll    = "poll"
	TriggerManual  = "manual"
)

// refreshEvents are the bus events that make the panel stale.
var refreshEvents = []notify.EventName{
	notify.EventNewAlert,
	notify.EventClaimUpdate,
	notify.EventAlertUpdate,
	notify.EventClaimReleased,
	notify.EventScheduleCompleted,
	notify.EventScheduleExpired,
}

// AlertSource is the alert projector.
type AlertSource interface {
	MyAlerts(ctx context.Context, date, executiveID string) ([]types.Alert, error)
	TeamAlerts(ctx context.Context, date string) ([]types.Alert, error)
}

// StatsSource is the claim coordinator's read side.
type StatsSource interface {
	Stats(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error)
}

// Snapshot is one consistent rendering of the panel.
type Snapshot struct {
	Date        string                `json:"date"`
	ExecutiveID string                `json:"executive_id"`
	MyAlerts    []types.Alert         `json:"my_alerts"`
	TeamAlerts  []types.Alert         `json:"team_alerts"`
	Stats       *types.ExecutiveStats `json:"stats"`
	RefreshedAt time.Time             `json:"refreshed_at"`
	Trigger     string                `json:"trigger"`
}

// Config holds watcher configuration
type Config struct {
	ExecutiveID string
	// PollInterval is the periodic reload. Default: 30s
	PollInterval time.Duration
	// Today returns the calendar day to show. Required.
	Today func() string
	Now   func() time.Time
	// OnSnapshot receives every successful reload, from the Run goroutine.
	OnSnapshot func(Snapshot)
	Logf       func(format string, args ...any)
}

// Watcher reloads a Snapshot on poll ticks and bus events.
type Watcher struct {
	alerts AlertSource
	stats  StatsSource
	bus    *notify.Bus
	cfg    Config

	pending chan string

	mu     sync.RWMutex
	latest Snapshot
	loaded bool
}

// NewWatcher creates a watcher. bus may be nil for poll-only operation.
func NewWatcher(alerts AlertSource, stats StatsSource, bus *notify.Bus, cfg Config) (*Watcher, error) {
	if cfg.ExecutiveID == "" {
		return nil, fmt.Errorf("%w: executive id is required", types.ErrValidation)
	}
	if cfg.Today == nil {
		return nil, fmt.Errorf("%w: today func is required", types.ErrValidation)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logf == nil {
		cfg.Logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	return &Watcher{
		alerts:  alerts,
		stats:   stats,
		bus:     bus,
		cfg:     cfg,
		pending: make(chan string, 1),
	}, nil
}

// Run loads the panel and keeps it current until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	if w.bus != nil {
		for _, name := range refreshEvents {
			reason := string(name)
			sub := w.bus.Subscribe(name, func(notify.Event) error {
				w.Poke(reason)
				return nil
			})
			defer w.bus.Unsubscribe(sub)
		}
	}

	w.reload(ctx, TriggerInitial)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.reload(ctx, TriggerPoll)
		case reason := <-w.pending:
			w.reload(ctx, reason)
		}
	}
}

// Poke requests a reload. It never blocks; a reload already requested
// absorbs this one.
func (w *Watcher) Poke(reason string) {
	select {
	case w.pending <- reason:
	default:
	}
}

// Latest returns the most recent snapshot and whether one has loaded yet.
func (w *Watcher) Latest() (Snapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest, w.loaded
}

// Load builds a fresh snapshot without publishing it.
func (w *Watcher) Load(ctx context.Context, trigger string) (Snapshot, error) {
	date := w.cfg.Today()
	mine, err := w.alerts.MyAlerts(ctx, date, w.cfg.ExecutiveID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load my alerts: %w", err)
	}
	team, err := w.alerts.TeamAlerts(ctx, date)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load team alerts: %w", err)
	}
	stats, err := w.stats.Stats(ctx, w.cfg.ExecutiveID, date)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load stats: %w", err)
	}
	return Snapshot{
		Date:        date,
		ExecutiveID: w.cfg.ExecutiveID,
		MyAlerts:    mine,
		TeamAlerts:  team,
		Stats:       stats,
		RefreshedAt: w.cfg.Now(),
		Trigger:     trigger,
	}, nil
}

// reload keeps the previous snapshot when loading fails.
func (w *Watcher) reload(ctx context.Context, trigger string) {
	snap, err := w.Load(ctx, trigger)
	if err != nil {
		if ctx.Err() == nil {
			w.cfg.Logf("warning: dashboard refresh (%s) failed: %v", trigger, err)
		}
		return
	}

	w.mu.Lock()
	w.latest = snap
	w.loaded = true
	w.mu.Unlock()

	if w.cfg.OnSnapshot != nil {
		w.cfg.OnSnapshot(snap)
	}
}
