package alerts_test

import (
	"context"
	"errors"
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

func newFixture(t *testing.T) (*memory.Store, *notify.Bus, *claims.Coordinator, *alerts.Projector) {
	t.Helper()
	clock := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	store := memory.New()
	bus := notify.NewBus(notify.WithLogf(func(string, ...any) {}))
	coord, err := claims.NewCoordinator(store, bus, claims.Config{
		Location: time.UTC,
		Now:      func() time.Time { return clock },
		Logf:     func(string, ...any) {},
	})
	require.NoError(t, err)
	return store, bus, coord, alerts.NewProjector(store)
}

func create(t *testing.T, store *memory.Store, date, at, customer string) *types.Schedule {
	t.Helper()
	sched, err := store.CreateSchedule(context.Background(), types.NewSchedule{
		Date:            date,
		Time:            at,
		CustomerName:    customer,
		VehicleInterest: "Skoda Octavia",
		LeadID:          "lead-" + customer,
	})
	require.NoError(t, err)
	return sched
}

func ids(list []types.Alert) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.ScheduleID)
	}
	return out
}

func TestProjectForDate(t *testing.T) {
	store, _, _, projector := newFixture(t)
	ctx := context.Background()

	late := create(t, store, today, "17:00", "Ravi")
	early := create(t, store, today, "09:00", "Meera")
	create(t, store, "2025-01-16", "09:00", "Tomorrow")

	notes := "Lead Score: 91/100. Concerns: price. Suggest test drive comparison."
	_, err := store.UpdateSchedule(ctx, early.ID, types.ScheduleUpdate{AIPrepNotes: &notes})
	require.NoError(t, err)

	list, err := projector.ProjectForDate(ctx, today)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{late.ID, early.ID}, ids(list), "store order, not time order")

	a := list[0]
	assert.Equal(t, "alert_"+late.ID, a.ID)
	assert.Equal(t, "2025-01-15 17:00", a.ScheduledTime)
	assert.Equal(t, types.DefaultPrepNotes, a.AIPrepNotes)
	assert.Equal(t, types.ClaimUnclaimed, a.ClaimStatus)
	assert.Equal(t, notes, list[1].AIPrepNotes)

	alerts.SortByTime(list)
	assert.Equal(t, []string{early.ID, late.ID}, ids(list))
}

func TestProjectForDateIsPure(t *testing.T) {
	store, _, coord, projector := newFixture(t)
	ctx := context.Background()

	a := create(t, store, today, "09:00", "Ravi")
	create(t, store, today, "10:00", "Meera")
	_, err := coord.Claim(ctx, a.ID, "exec-1")
	require.NoError(t, err)

	first, err := projector.ProjectForDate(ctx, today)
	require.NoError(t, err)
	second, err := projector.ProjectForDate(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Fresh slices: mutating one result must not leak into the next
	first[0].CustomerName = "changed"
	third, err := projector.ProjectForDate(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, second, third)
}

func TestProjectForDateSkipsClosedSchedules(t *testing.T) {
	store, _, coord, projector := newFixture(t)
	ctx := context.Background()

	done := create(t, store, today, "09:00", "Ravi")
	open := create(t, store, today, "10:00", "Meera")
	ok, err := coord.Claim(ctx, done.ID, "exec-1")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = coord.Complete(ctx, done.ID, "")
	require.NoError(t, err)

	list, err := projector.ProjectForDate(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, []string{open.ID}, ids(list))
}

func TestClaimScenario(t *testing.T) {
	store, bus, coord, projector := newFixture(t)
	ctx := context.Background()

	s := create(t, store, today, "10:30", "Ravi")

	team, err := projector.TeamAlerts(ctx, today)
	require.NoError(t, err)
	require.Equal(t, []string{s.ID}, ids(team))
	assert.Equal(t, types.ClaimUnclaimed, team[0].ClaimStatus)

	var updates []notify.ClaimUpdatePayload
	notify.ClaimUpdate.Subscribe(bus, func(p notify.ClaimUpdatePayload) error {
		updates = append(updates, p)
		return nil
	})

	ok, err := coord.Claim(ctx, s.ID, "E1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []notify.ClaimUpdatePayload{{ScheduleID: s.ID, ClaimedBy: "E1"}}, updates)

	team, err = projector.TeamAlerts(ctx, today)
	require.NoError(t, err)
	assert.Empty(t, team)

	mine, err := projector.MyAlerts(ctx, today, "E1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, s.ID, mine[0].ScheduleID)
	assert.Equal(t, types.ClaimClaimed, mine[0].ClaimStatus)
	assert.Equal(t, "E1", mine[0].ClaimedBy)

	theirs, err := projector.MyAlerts(ctx, today, "E2")
	require.NoError(t, err)
	assert.Empty(t, theirs, "another executive's claim is hidden")
}

func TestMyAlertsIncludesUnclaimed(t *testing.T) {
	store, _, coord, projector := newFixture(t)
	ctx := context.Background()

	mine := create(t, store, today, "09:00", "Ravi")
	theirs := create(t, store, today, "10:00", "Meera")
	free := create(t, store, today, "11:00", "Imran")

	_, err := coord.Claim(ctx, mine.ID, "E1")
	require.NoError(t, err)
	_, err = coord.Claim(ctx, theirs.ID, "E2")
	require.NoError(t, err)

	list, err := projector.MyAlerts(ctx, today, "E1")
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID, free.ID}, ids(list))
}

type failingLister struct{}

func (failingLister) ListSchedules(context.Context, types.ScheduleFilter) ([]*types.Schedule, error) {
	return nil, errors.New("store unavailable")
}

func TestProjectorPropagatesStoreErrors(t *testing.T) {
	projector := alerts.NewProjector(failingLister{})
	_, err := projector.TeamAlerts(context.Background(), today)
	assert.ErrorContains(t, err, "store unavailable")
}
