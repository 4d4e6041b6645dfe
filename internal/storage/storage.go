package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/salesdesk/salesdesk/internal/events"
	"github.com/salesdesk/salesdesk/internal/storage/memory"
	"github.com/salesdesk/salesdesk/internal/storage/sqlite"
	"github.com/salesdesk/salesdesk/internal/types"
)

// ScheduleStore is the producer/reader side of the schedule table.
// It cannot touch claim fields: ScheduleUpdate carries none.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, in types.NewSchedule) (*types.Schedule, error)
	GetSchedule(ctx context.Context, id string) (*types.Schedule, error)
	ListSchedules(ctx context.Context, filter types.ScheduleFilter) ([]*types.Schedule, error)
	UpdateSchedule(ctx context.Context, id string, update types.ScheduleUpdate) (*types.Schedule, error)
}

// ClaimStore holds the compare-and-set primitives over the claim fields.
// Each call is atomic within the backend. Only the claim coordinator uses it.
type ClaimStore interface {
	// ClaimSchedule sets the claimant if the schedule is pending and unclaimed.
	// Returns false (no error) when someone already holds it or it is closed.
	ClaimSchedule(ctx context.Context, id, executiveID string, claimedAt, expiresAt time.Time) (bool, error)
	// CompleteSchedule moves a claimed schedule to completed and returns the
	// resulting record. ErrInvalidState when it is not claimed.
	CompleteSchedule(ctx context.Context, id string, at time.Time) (*types.Schedule, error)
	// ExpireSchedule moves a claimed schedule to the terminal expired state.
	ExpireSchedule(ctx context.Context, id string, at time.Time) (*types.Schedule, error)
	// ReleaseExpiredClaims returns every claimed schedule whose expiry is
	// before now to pending, and reports the released ids.
	ReleaseExpiredClaims(ctx context.Context, now time.Time) ([]string, error)
}

// StatsStore keeps per-(executive, day) claim counters.
type StatsStore interface {
	IncrementClaimed(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error)
	IncrementCompleted(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error)
	// GetExecutiveStats returns a zero-valued record when none exists yet.
	GetExecutiveStats(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error)
	ListExecutiveStats(ctx context.Context, date string) ([]*types.ExecutiveStats, error)
}

// EventStore is the claim journal.
type EventStore interface {
	AppendEvent(ctx context.Context, rec *events.Record) error
	// ListEvents returns matching records newest first.
	ListEvents(ctx context.Context, filter events.Filter) ([]*events.Record, error)
	// PruneEvents deletes records older than before, batchSize rows at a
	// time, and reports how many were removed.
	PruneEvents(ctx context.Context, before time.Time, batchSize int) (int, error)
}

// Storage is the full backend contract.
type Storage interface {
	ScheduleStore
	ClaimStore
	StatsStore
	EventStore

	// Lifecycle
	Close() error
}

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds storage configuration
type Config struct {
	// Backend is "memory" (default) or "sqlite"
	Backend string
	// Path is the SQLite database path. Default ":memory:".
	Path string
	// Latency simulates I/O delay on every store call (memory backend only).
	Latency time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendMemory,
		Path:    ":memory:",
	}
}

// NewStorage creates the configured backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case "", BackendMemory:
		return memory.New(memory.WithLatency(cfg.Latency)), nil
	case BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		return sqlite.New(ctx, path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
