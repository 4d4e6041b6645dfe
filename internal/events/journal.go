package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/salesdesk/salesdesk/internal/notify"
)

// DefaultWriteTimeout bounds one journal append.
const DefaultWriteTimeout = 2 * time.Second

// Appender is the write side of the journal store.
type Appender interface {
	AppendEvent(ctx context.Context, rec *Record) error
}

// Journal subscribes to the bus and appends each event to a store.
// Heartbeats are not journaled.
type Journal struct {
	store   Appender
	timeout time.Duration
	newID   func() string

	bus *notify.Bus
	sub notify.Subscription
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) JournalOption {
	return func(j *Journal) { j.timeout = d }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(gen func() string) JournalOption {
	return func(j *Journal) { j.newID = gen }
}

// NewJournal creates a journal writing to store.
func NewJournal(store Appender, opts ...JournalOption) *Journal {
	j := &Journal{
		store:   store,
		timeout: DefaultWriteTimeout,
		newID:   func() string { return "evt-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Attach subscribes the journal to every event on bus. A failed append is
// reported through the bus's handler failure path.
func (j *Journal) Attach(bus *notify.Bus) {
	j.bus = bus
	j.sub = bus.SubscribeAll(j.record)
}

// Close detaches from the bus.
func (j *Journal) Close() {
	if j.bus != nil {
		j.bus.Unsubscribe(j.sub)
		j.bus = nil
	}
}

func (j *Journal) record(e notify.Event) error {
	if e.Name == notify.EventAlertUpdate {
		return nil
	}
	rec, err := FromBusEvent(e)
	if err != nil {
		return err
	}
	rec.ID = j.newID()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.store.AppendEvent(ctx, rec); err != nil {
		return fmt.Errorf("failed to journal %s: %w", e.Name, err)
	}
	return nil
}

// FromBusEvent converts a bus event into a record without an ID.
func FromBusEvent(e notify.Event) (*Record, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", e.Name, err)
	}
	rec := &Record{
		Type:      string(e.Name),
		Timestamp: e.Timestamp,
		Data:      data,
	}

	switch p := e.Payload.(type) {
	case notify.NewAlertPayload:
		rec.ScheduleID = p.ScheduleID
		rec.Message = fmt.Sprintf("New alert for %s (%s) at %s", p.CustomerName, p.Vehicle, p.ScheduledTime)
	case notify.ClaimUpdatePayload:
		rec.ScheduleID = p.ScheduleID
		rec.Actor = p.ClaimedBy
		rec.Message = "Claimed by " + p.ClaimedBy
	case notify.ScheduleCompletedPayload:
		rec.ScheduleID = p.ScheduleID
		rec.Actor = p.CompletedBy
		rec.Message = "Completed by " + p.CompletedBy
	case notify.ClaimReleasedPayload:
		rec.ScheduleID = p.ScheduleID
		rec.Message = "Claim lapsed, released to the pool"
	case notify.ScheduleExpiredPayload:
		rec.ScheduleID = p.ScheduleID
		rec.Message = "Closed as expired"
	default:
		rec.Message = string(e.Name)
	}
	return rec, nil
}
