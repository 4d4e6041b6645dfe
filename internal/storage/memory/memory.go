// Package memory is the process-local schedule store. All state lives in maps
// guarded by a single mutex, so every claim primitive is a plain
// check-then-set under the lock.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/salesdesk/salesdesk/internal/events"
	"github.com/salesdesk/salesdesk/internal/types"
)

// Store implements storage.Storage in memory.
type Store struct {
	mu        sync.RWMutex
	schedules map[string]*types.Schedule
	order     []string
	stats     map[statsKey]*types.ExecutiveStats
	statsKeys []statsKey
	journal   []*events.Record

	latency time.Duration
	now     func() time.Time
	newID   func() string
}

type statsKey struct {
	executiveID string
	date        string
}

// Option configures a Store.
type Option func(*Store)

// WithLatency delays every call by d before it touches state, standing in for
// database round-trips. The delay never happens while the lock is held.
func WithLatency(d time.Duration) Option {
	return func(s *Store) { s.latency = d }
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides schedule id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		schedules: make(map[string]*types.Schedule),
		stats:     make(map[statsKey]*types.ExecutiveStats),
		now:       time.Now,
		newID:     func() string { return "sched-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CreateSchedule stores a new pending schedule.
func (s *Store) CreateSchedule(ctx context.Context, in types.NewSchedule) (*types.Schedule, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if _, exists := s.schedules[id]; exists {
		return nil, fmt.Errorf("schedule id collision: %s", id)
	}
	sched := &types.Schedule{
		ID:              id,
		ExecutiveID:     in.ExecutiveID,
		Date:            in.Date,
		Time:            in.Time,
		Summary:         in.Summary,
		CustomerName:    in.CustomerName,
		VehicleInterest: in.VehicleInterest,
		LeadID:          in.LeadID,
		AISummary:       in.AISummary,
		AIPrepNotes:     in.AIPrepNotes,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       s.now(),
		Status:          types.StatusPending,
	}
	s.schedules[id] = sched
	s.order = append(s.order, id)
	return sched.Clone(), nil
}

// GetSchedule returns a copy of the schedule.
func (s *Store) GetSchedule(ctx context.Context, id string) (*types.Schedule, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, notFound(id)
	}
	return sched.Clone(), nil
}

// ListSchedules returns copies in insertion order.
func (s *Store) ListSchedules(ctx context.Context, filter types.ScheduleFilter) ([]*types.Schedule, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Schedule, 0, len(s.order))
	for _, id := range s.order {
		sched := s.schedules[id]
		if filter.Matches(sched) {
			out = append(out, sched.Clone())
		}
	}
	return out, nil
}

// UpdateSchedule merges non-claim fields.
func (s *Store) UpdateSchedule(ctx context.Context, id string, update types.ScheduleUpdate) (*types.Schedule, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, notFound(id)
	}
	update.Apply(sched)
	return sched.Clone(), nil
}

// ClaimSchedule takes the lease when the schedule is pending and unclaimed.
func (s *Store) ClaimSchedule(ctx context.Context, id, executiveID string, claimedAt, expiresAt time.Time) (bool, error) {
	if err := s.wait(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return false, notFound(id)
	}
	if sched.ClaimedBy != "" || sched.Status != types.StatusPending {
		return false, nil
	}
	sched.ClaimedBy = executiveID
	sched.ClaimedAt = &claimedAt
	sched.ClaimExpiresAt = &expiresAt
	sched.Status = types.StatusClaimed
	return true, nil
}

// CompleteSchedule closes a live claim as completed.
func (s *Store) CompleteSchedule(ctx context.Context, id string, at time.Time) (*types.Schedule, error) {
	return s.closeClaim(ctx, id, types.StatusCompleted, at)
}

// ExpireSchedule closes a live claim as expired.
func (s *Store) ExpireSchedule(ctx context.Context, id string, at time.Time) (*types.Schedule, error) {
	return s.closeClaim(ctx, id, types.StatusExpired, at)
}

func (s *Store) closeClaim(ctx context.Context, id string, to types.Status, at time.Time) (*types.Schedule, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, notFound(id)
	}
	if err := types.ValidateTransition(sched.Status, to); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", id, err)
	}
	if to == types.StatusCompleted {
		sched.CompletedBy = sched.ClaimedBy
		sched.CompletedAt = &at
	}
	sched.ClaimedBy = ""
	sched.ClaimExpiresAt = nil
	sched.Status = to
	return sched.Clone(), nil
}

// ReleaseExpiredClaims returns lapsed claims to the pending pool.
func (s *Store) ReleaseExpiredClaims(ctx context.Context, now time.Time) ([]string, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var released []string
	for _, id := range s.order {
		sched := s.schedules[id]
		if sched.Status != types.StatusClaimed || sched.ClaimExpiresAt == nil {
			continue
		}
		if !sched.ClaimExpiresAt.Before(now) {
			continue
		}
		sched.ClaimedBy = ""
		sched.ClaimedAt = nil
		sched.ClaimExpiresAt = nil
		sched.Status = types.StatusPending
		released = append(released, id)
	}
	return released, nil
}

// IncrementClaimed bumps the claimed counter, creating the record on first use.
func (s *Store) IncrementClaimed(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error) {
	return s.bump(ctx, executiveID, date, func(st *types.ExecutiveStats) { st.ClaimedCount++ })
}

// IncrementCompleted bumps the completed counter.
func (s *Store) IncrementCompleted(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error) {
	return s.bump(ctx, executiveID, date, func(st *types.ExecutiveStats) { st.CompletedCount++ })
}

func (s *Store) bump(ctx context.Context, executiveID, date string, fn func(*types.ExecutiveStats)) (*types.ExecutiveStats, error) {
	if executiveID == "" {
		return nil, fmt.Errorf("%w: executive id is required", types.ErrValidation)
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := statsKey{executiveID: executiveID, date: date}
	st, ok := s.stats[key]
	if !ok {
		st = &types.ExecutiveStats{ExecutiveID: executiveID, Date: date}
		s.stats[key] = st
		s.statsKeys = append(s.statsKeys, key)
	}
	fn(st)
	st.Recompute()
	return st.Clone(), nil
}

// GetExecutiveStats returns the day's record, or a zero record.
func (s *Store) GetExecutiveStats(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.stats[statsKey{executiveID: executiveID, date: date}]; ok {
		return st.Clone(), nil
	}
	return &types.ExecutiveStats{ExecutiveID: executiveID, Date: date}, nil
}

// ListExecutiveStats returns every record for date in creation order.
func (s *Store) ListExecutiveStats(ctx context.Context, date string) ([]*types.ExecutiveStats, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.ExecutiveStats
	for _, key := range s.statsKeys {
		if date != "" && key.date != date {
			continue
		}
		out = append(out, s.stats[key].Clone())
	}
	return out, nil
}

// AppendEvent adds a journal record.
func (s *Store) AppendEvent(ctx context.Context, rec *events.Record) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = append(s.journal, rec.Clone())
	return nil
}

// ListEvents returns matching records newest first. Records with equal
// timestamps keep reverse append order.
func (s *Store) ListEvents(ctx context.Context, filter events.Filter) ([]*events.Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*events.Record, 0)
	for i := len(s.journal) - 1; i >= 0; i-- {
		if rec := s.journal[i]; filter.Matches(rec) {
			matched = append(matched, rec.Clone())
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// PruneEvents drops records older than before. batchSize only needs to be
// positive; the whole prune happens under one lock.
func (s *Store) PruneEvents(ctx context.Context, before time.Time, batchSize int) (int, error) {
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.journal[:0]
	for _, rec := range s.journal {
		if rec.Timestamp.Before(before) {
			continue
		}
		kept = append(kept, rec)
	}
	removed := len(s.journal) - len(kept)
	clear(s.journal[len(kept):])
	s.journal = kept
	return removed, nil
}

// Close is a no-op; the store dies with the process.
func (s *Store) Close() error {
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("schedule %s: %w", id, types.ErrNotFound)
}
