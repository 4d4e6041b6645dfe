package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/alerts"
	"github.com/salesdesk/salesdesk/internal/claims"
	"github.com/salesdesk/salesdesk/internal/notify"
	"github.com/salesdesk/salesdesk/internal/storage/memory"
	"github.com/salesdesk/salesdesk/internal/types"
)

const today = "2025-01-15"

func quiet(string, ...any) {}

type fixture struct {
	store *memory.Store
	bus   *notify.Bus
	coord *claims.Coordinator
	proj  *alerts.Projector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	store := memory.New()
	bus := notify.NewBus(notify.WithLogf(quiet))
	coord, err := claims.NewCoordinator(store, bus, claims.Config{
		Location: time.UTC,
		Now:      func() time.Time { return clock },
		Logf:     quiet,
	})
	require.NoError(t, err)
	return &fixture{store: store, bus: bus, coord: coord, proj: alerts.NewProjector(store)}
}

func (f *fixture) create(t *testing.T, at, customer string) *types.Schedule {
	t.Helper()
	s, err := f.store.CreateSchedule(context.Background(), types.NewSchedule{Date: today, Time: at, CustomerName: customer})
	require.NoError(t, err)
	return s
}

// start runs a watcher for exec and returns its snapshot stream.
func (f *fixture) start(t *testing.T, exec string, poll time.Duration) (*Watcher, <-chan Snapshot) {
	t.Helper()
	snaps := make(chan Snapshot, 32)
	w, err := NewWatcher(f.proj, f.coord, f.bus, Config{
		ExecutiveID:  exec,
		PollInterval: poll,
		Today:        func() string { return today },
		OnSnapshot:   func(s Snapshot) { snaps <- s },
		Logf:         quiet,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, snaps
}

func next(t *testing.T, snaps <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s := <-snaps:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot")
		return Snapshot{}
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	f := newFixture(t)
	f.create(t, "09:00", "Ravi")
	f.create(t, "10:00", "Meera")

	w, snaps := f.start(t, "E1", time.Hour)
	s := next(t, snaps)
	assert.Equal(t, TriggerInitial, s.Trigger)
	assert.Equal(t, today, s.Date)
	assert.Len(t, s.MyAlerts, 2)
	assert.Len(t, s.TeamAlerts, 2)
	require.NotNil(t, s.Stats)
	assert.Zero(t, s.Stats.ClaimedCount)

	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, s, latest)
}

func TestWatcherRefreshesOnClaim(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "09:00", "Ravi")
	f.create(t, "10:00", "Meera")

	_, snaps := f.start(t, "E1", time.Hour)
	next(t, snaps)

	ok, err := f.coord.Claim(context.Background(), a.ID, "E1")
	require.NoError(t, err)
	require.True(t, ok)

	s := next(t, snaps)
	assert.Equal(t, string(notify.EventClaimUpdate), s.Trigger)
	assert.Len(t, s.MyAlerts, 2, "mine plus unclaimed")
	assert.Len(t, s.TeamAlerts, 1)
	assert.Equal(t, 1, s.Stats.ClaimedCount)
}

func TestWatcherSeesOtherExecutivesClaims(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "09:00", "Ravi")

	_, snaps := f.start(t, "E1", time.Hour)
	next(t, snaps)

	_, err := f.coord.Claim(context.Background(), a.ID, "E2")
	require.NoError(t, err)

	s := next(t, snaps)
	assert.Empty(t, s.MyAlerts)
	assert.Empty(t, s.TeamAlerts)
}

func TestWatcherPolls(t *testing.T) {
	f := newFixture(t)
	_, snaps := f.start(t, "E1", 20*time.Millisecond)
	next(t, snaps)

	// Written straight to the store: no event, only the poll notices
	f.create(t, "11:00", "Imran")
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-snaps:
			if len(s.TeamAlerts) == 1 {
				assert.Equal(t, TriggerPoll, s.Trigger)
				return
			}
		case <-deadline:
			t.Fatal("poll never picked up the new schedule")
		}
	}
}

func TestPokeCoalesces(t *testing.T) {
	f := newFixture(t)
	w, err := NewWatcher(f.proj, f.coord, nil, Config{ExecutiveID: "E1", Today: func() string { return today }})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		w.Poke(TriggerManual)
	}
	assert.Len(t, w.pending, 1)
}

type countingAlerts struct {
	AlertSource
	calls atomic.Int32
	fail  bool
}

func (c *countingAlerts) MyAlerts(ctx context.Context, date, exec string) ([]types.Alert, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("store unavailable")
	}
	return c.AlertSource.MyAlerts(ctx, date, exec)
}

func TestWatcherKeepsLastSnapshotOnError(t *testing.T) {
	f := newFixture(t)
	src := &countingAlerts{AlertSource: f.proj}

	var warnings atomic.Int32
	w, err := NewWatcher(src, f.coord, nil, Config{
		ExecutiveID: "E1",
		Today:       func() string { return today },
		Logf:        func(string, ...any) { warnings.Add(1) },
	})
	require.NoError(t, err)

	ctx := context.Background()
	w.reload(ctx, TriggerManual)
	first, ok := w.Latest()
	require.True(t, ok)

	src.fail = true
	w.reload(ctx, TriggerManual)
	second, _ := w.Latest()
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), warnings.Load())
}

func TestNewWatcherValidates(t *testing.T) {
	f := newFixture(t)
	_, err := NewWatcher(f.proj, f.coord, nil, Config{Today: func() string { return today }})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = NewWatcher(f.proj, f.coord, nil, Config{ExecutiveID: "E1"})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRunUnsubscribesOnExit(t *testing.T) {
	f := newFixture(t)
	w, err := NewWatcher(f.proj, f.coord, f.bus, Config{
		ExecutiveID:  "E1",
		PollInterval: time.Hour,
		Today:        func() string { return today },
		Logf:         quiet,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.bus.HandlerCount(notify.EventClaimUpdate) == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	for _, name := range refreshEvents {
		assert.Zero(t, f.bus.HandlerCount(name), string(name))
	}
}
