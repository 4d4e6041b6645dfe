package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisMirrorRequiresURL(t *testing.T) {
	_, err := NewRedisMirror(context.Background(), "  ", "")
	assert.Error(t, err)

	_, err = NewRedisMirror(context.Background(), "not-a-url", "")
	assert.Error(t, err)
}

func TestRedisMirrorRelaysEvents(t *testing.T) {
	url := os.Getenv("SALESDESK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SALESDESK_TEST_REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := "salesdesk:test:" + time.Now().Format("150405.000000")
	mirror, err := NewRedisMirror(ctx, url, channel)
	require.NoError(t, err)
	defer mirror.Close()

	tailer, err := NewRedisMirror(ctx, url, channel)
	require.NoError(t, err)
	defer tailer.Close()

	got := make(chan WireEvent, 1)
	tailCtx, stopTail := context.WithCancel(ctx)
	defer stopTail()
	go func() {
		_ = tailer.Tail(tailCtx, func(e WireEvent) {
			select {
			case got <- e:
			default:
			}
		})
	}()

	bus, _ := quietBus()
	mirror.Attach(bus)

	// Retry until the tailer's subscription is live
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		ClaimUpdate.Publish(bus, ClaimUpdatePayload{ScheduleID: "s1", ClaimedBy: "e1"})
		select {
		case e := <-got:
			assert.Equal(t, EventClaimUpdate, e.Type)
			assert.JSONEq(t, `{"scheduleId":"s1","claimedBy":"e1"}`, string(e.Payload))
			return
		case <-deadline:
			t.Fatal("event never arrived on redis channel")
		case <-tick.C:
		}
	}
}
