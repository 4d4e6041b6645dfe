package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/types"
)

func newSchedule(customer string) types.NewSchedule {
	return types.NewSchedule{Date: "2025-01-15", Time: "10:30", CustomerName: customer}
}

func TestLatencyHonoursContext(t *testing.T) {
	s := New(WithLatency(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.CreateSchedule(ctx, newSchedule("Ravi"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	_, err = New().GetSchedule(cancelled, "sched-1")
	assert.True(t, errors.Is(err, context.Canceled), "a dead context fails even without latency")

	// Nothing was written by the timed-out call
	assert.Empty(t, s.order)
}

func TestOptionsControlIDsAndClock(t *testing.T) {
	at := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	s := New(
		WithClock(func() time.Time { return at }),
		WithIDGenerator(func() string { return "sched-fixed" }),
	)
	ctx := context.Background()

	sched, err := s.CreateSchedule(ctx, newSchedule("Ravi"))
	require.NoError(t, err)
	assert.Equal(t, "sched-fixed", sched.ID)
	assert.True(t, sched.CreatedAt.Equal(at))

	_, err = s.CreateSchedule(ctx, newSchedule("Meera"))
	assert.ErrorContains(t, err, "collision")
}

func TestReturnedSchedulesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	sched, err := s.CreateSchedule(ctx, newSchedule("Ravi"))
	require.NoError(t, err)
	sched.CustomerName = "changed"
	sched.Status = types.StatusClaimed

	got, err := s.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ravi", got.CustomerName)
	assert.Equal(t, types.StatusPending, got.Status)

	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	ok, err := s.ClaimSchedule(ctx, sched.ID, "exec-1", now, now.Add(30*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	got, err = s.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	*got.ClaimExpiresAt = now
	again, err := s.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.True(t, again.ClaimExpiresAt.Equal(now.Add(30*time.Minute)), "expiry pointer is not shared")
}
