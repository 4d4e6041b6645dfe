package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/claims"
	"github.com/salesdesk/salesdesk/internal/notify"
	"github.com/salesdesk/salesdesk/internal/storage/memory"
	"github.com/salesdesk/salesdesk/internal/types"
)

func quiet(string, ...any) {}

func TestRunnerRejectsBadSchedules(t *testing.T) {
	r := NewRunner(time.UTC, WithLogf(quiet))
	noop := func(context.Context) error { return nil }

	assert.Error(t, r.Every("fast", 10*time.Millisecond, noop))
	assert.Error(t, r.Add("bad", "every tuesday", noop))
	assert.Error(t, r.Add("nil", "@every 1s", nil))
	require.NoError(t, r.Add("ok", "*/5 * * * *", noop))

	jobs := r.Jobs()
	assert.Contains(t, jobs, "ok")
	assert.Len(t, jobs, 1)
}

func TestRunnerRunsAndStops(t *testing.T) {
	var mu sync.Mutex
	var logged []string
	r := NewRunner(time.UTC, WithLogf(func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		logged = append(logged, format)
	}))

	var runs atomic.Int32
	ran := make(chan struct{}, 10)
	require.NoError(t, r.Every("tick", time.Second, func(context.Context) error {
		runs.Add(1)
		ran <- struct{}{}
		return errors.New("boom")
	}))
	r.Start()
	r.Start()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))

	after := runs.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, logged)
	assert.Contains(t, logged[0], "job %s failed")
}

func TestStopCancelsRunningJob(t *testing.T) {
	r := NewRunner(time.UTC, WithLogf(quiet))
	started := make(chan struct{})
	require.NoError(t, r.Every("block", time.Second, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	r.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, r.Stop(ctx))
}

func TestSweepJobReleasesLapsedClaims(t *testing.T) {
	clock := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	store := memory.New()
	bus := notify.NewBus(notify.WithLogf(quiet))
	coord, err := claims.NewCoordinator(store, bus, claims.Config{
		Location: time.UTC,
		Now:      func() time.Time { return clock },
		Logf:     quiet,
	})
	require.NoError(t, err)

	ctx := context.Background()
	s, err := store.CreateSchedule(ctx, types.NewSchedule{Date: "2025-01-15", Time: "10:00", CustomerName: "Ravi"})
	require.NoError(t, err)
	ok, err := coord.Claim(ctx, s.ID, "E1")
	require.NoError(t, err)
	require.True(t, ok)

	var released []string
	notify.ClaimReleased.Subscribe(bus, func(p notify.ClaimReleasedPayload) error {
		released = append(released, p.ScheduleID)
		return nil
	})

	job := SweepJob(coord)
	require.NoError(t, job(ctx))
	assert.Empty(t, released, "lease still live")

	clock = clock.Add(31 * time.Minute)
	require.NoError(t, job(ctx))
	assert.Equal(t, []string{s.ID}, released)

	got, err := store.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
}

type failingSweeper struct{}

func (failingSweeper) Sweep(context.Context) ([]string, error) {
	return nil, errors.New("store unavailable")
}

func TestSweepJobWrapsErrors(t *testing.T) {
	err := SweepJob(failingSweeper{})(context.Background())
	assert.ErrorContains(t, err, "expiry sweep: store unavailable")
}

func TestHeartbeatJob(t *testing.T) {
	bus := notify.NewBus(notify.WithLogf(quiet))
	at := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)

	var got []notify.AlertUpdatePayload
	notify.AlertUpdate.Subscribe(bus, func(p notify.AlertUpdatePayload) error {
		got = append(got, p)
		return nil
	})

	require.NoError(t, HeartbeatJob(bus, func() time.Time { return at })(context.Background()))
	assert.Equal(t, []notify.AlertUpdatePayload{{Type: HeartbeatType, Timestamp: at}}, got)
}

func TestStandardRegistersJobs(t *testing.T) {
	bus := notify.NewBus(notify.WithLogf(quiet))
	r, err := Standard(time.UTC, failingSweeper{}, bus, nil, Intervals{Sweep: time.Minute, Heartbeat: 30 * time.Second}, WithLogf(quiet))
	require.NoError(t, err)
	jobs := r.Jobs()
	assert.Contains(t, jobs, "sweep")
	assert.Contains(t, jobs, "heartbeat")
	assert.NotContains(t, jobs, "prune")

	r, err = Standard(time.UTC, failingSweeper{}, bus, &fakePruner{}, Intervals{
		Sweep: time.Minute, Heartbeat: 30 * time.Second, Prune: time.Hour, Retention: 24 * time.Hour,
	}, WithLogf(quiet))
	require.NoError(t, err)
	assert.Contains(t, r.Jobs(), "prune")

	_, err = Standard(time.UTC, failingSweeper{}, bus, nil, Intervals{Sweep: time.Minute}, WithLogf(quiet))
	assert.Error(t, err, "zero heartbeat interval")
}

type fakePruner struct {
	before  time.Time
	batch   int
	removed int
	err     error
}

func (p *fakePruner) PruneEvents(_ context.Context, before time.Time, batchSize int) (int, error) {
	p.before = before
	p.batch = batchSize
	return p.removed, p.err
}

func TestPruneJob(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	p := &fakePruner{removed: 3}

	var logged []string
	job := PruneJob(p, 48*time.Hour, func() time.Time { return now }, func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	})
	require.NoError(t, job(context.Background()))
	assert.True(t, p.before.Equal(now.Add(-48*time.Hour)))
	assert.Equal(t, PruneBatchSize, p.batch)
	assert.Equal(t, []string{"Pruned 3 journal event(s) older than 48h0m0s"}, logged)

	p.err = errors.New("locked")
	err := job(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event prune")
}
