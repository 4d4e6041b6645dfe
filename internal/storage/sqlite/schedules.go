package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/salesdesk/salesdesk/internal/types"
)

const scheduleColumns = `id, executive_id, date, time, summary, customer_name, vehicle_interest,
	lead_id, ai_summary, ai_prep_notes, created_by, created_at,
	claimed_by, claimed_at, claim_expires_at, status, completed_by, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*types.Schedule, error) {
	var (
		s                               types.Schedule
		createdAt                       int64
		claimedBy                       sql.NullString
		claimedAt, expiresAt, completed sql.NullInt64
		status                          string
	)
	err := row.Scan(
		&s.ID, &s.ExecutiveID, &s.Date, &s.Time, &s.Summary, &s.CustomerName, &s.VehicleInterest,
		&s.LeadID, &s.AISummary, &s.AIPrepNotes, &s.CreatedBy, &createdAt,
		&claimedBy, &claimedAt, &expiresAt, &status, &s.CompletedBy, &completed,
	)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = time.Unix(0, createdAt)
	s.ClaimedBy = claimedBy.String
	s.ClaimedAt = fromNanos(claimedAt)
	s.ClaimExpiresAt = fromNanos(expiresAt)
	s.CompletedAt = fromNanos(completed)
	s.Status = types.Status(status)
	return &s, nil
}

// CreateSchedule inserts a new pending schedule
func (s *SQLiteStorage) CreateSchedule(ctx context.Context, in types.NewSchedule) (*types.Schedule, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	id := s.newID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (
			id, executive_id, date, time, summary, customer_name, vehicle_interest,
			lead_id, ai_summary, ai_prep_notes, created_by, created_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, in.ExecutiveID, in.Date, in.Time, in.Summary, in.CustomerName, in.VehicleInterest,
		in.LeadID, in.AISummary, in.AIPrepNotes, in.CreatedBy, toNanos(s.now()), types.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to insert schedule: %w", err)
	}

	return s.GetSchedule(ctx, id)
}

// GetSchedule retrieves a schedule by ID
func (s *SQLiteStorage) GetSchedule(ctx context.Context, id string) (*types.Schedule, error) {
	return getSchedule(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSchedule(ctx context.Context, q queryer, id string) (*types.Schedule, error) {
	row := q.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return sched, nil
}

// ListSchedules returns schedules matching filter in insertion order
func (s *SQLiteStorage) ListSchedules(ctx context.Context, filter types.ScheduleFilter) ([]*types.Schedule, error) {
	var (
		where []string
		args  []any
	)
	if filter.ExecutiveID != "" {
		where = append(where, "(executive_id = ? OR claimed_by = ?)")
		args = append(args, filter.ExecutiveID, filter.ExecutiveID)
	}
	if filter.Date != "" {
		where = append(where, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var out []*types.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}
	return out, nil
}

// UpdateSchedule merges non-claim fields into an existing schedule
func (s *SQLiteStorage) UpdateSchedule(ctx context.Context, id string, update types.ScheduleUpdate) (*types.Schedule, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sched, err := getSchedule(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	update.Apply(sched)

	_, err = tx.ExecContext(ctx, `
		UPDATE schedules SET
			executive_id = ?, date = ?, time = ?, summary = ?, customer_name = ?,
			vehicle_interest = ?, lead_id = ?, ai_summary = ?, ai_prep_notes = ?
		WHERE id = ?
	`, sched.ExecutiveID, sched.Date, sched.Time, sched.Summary, sched.CustomerName,
		sched.VehicleInterest, sched.LeadID, sched.AISummary, sched.AIPrepNotes, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return sched, nil
}

// ClaimSchedule atomically claims a pending schedule.
// The WHERE clause is the compare half of the compare-and-set: only one
// concurrent UPDATE can match a pending, unclaimed row.
func (s *SQLiteStorage) ClaimSchedule(ctx context.Context, id, executiveID string, claimedAt, expiresAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE schedules
		SET claimed_by = ?, claimed_at = ?, claim_expires_at = ?, status = ?
		WHERE id = ? AND status = ? AND claimed_by IS NULL
	`, executiveID, toNanos(claimedAt), toNanos(expiresAt), types.StatusClaimed, id, types.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim schedule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return true, nil
	}

	// Lost the race or the schedule doesn't exist
	if _, err := s.GetSchedule(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// CompleteSchedule closes a live claim as completed
func (s *SQLiteStorage) CompleteSchedule(ctx context.Context, id string, at time.Time) (*types.Schedule, error) {
	return s.closeClaim(ctx, id, types.StatusCompleted, at)
}

// ExpireSchedule closes a live claim as expired
func (s *SQLiteStorage) ExpireSchedule(ctx context.Context, id string, at time.Time) (*types.Schedule, error) {
	return s.closeClaim(ctx, id, types.StatusExpired, at)
}

func (s *SQLiteStorage) closeClaim(ctx context.Context, id string, to types.Status, at time.Time) (*types.Schedule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getSchedule(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateTransition(current.Status, to); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", id, err)
	}

	completedBy := current.CompletedBy
	var completedAt sql.NullInt64
	if current.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: toNanos(*current.CompletedAt), Valid: true}
	}
	if to == types.StatusCompleted {
		completedBy = current.ClaimedBy
		completedAt = sql.NullInt64{Int64: toNanos(at), Valid: true}
	}

	// Guard on the state we validated against so a concurrent change is detected
	result, err := tx.ExecContext(ctx, `
		UPDATE schedules
		SET status = ?, claimed_by = NULL, claim_expires_at = NULL, completed_by = ?, completed_at = ?
		WHERE id = ? AND status = ? AND claimed_by = ?
	`, to, completedBy, completedAt, id, current.Status, current.ClaimedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to update schedule status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("schedule %s: %w: concurrent claim modification", id, types.ErrInvalidState)
	}

	updated, err := getSchedule(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}
	return updated, nil
}

// ReleaseExpiredClaims returns lapsed claims to pending
func (s *SQLiteStorage) ReleaseExpiredClaims(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := toNanos(now)
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM schedules
		WHERE status = ? AND claim_expires_at IS NOT NULL AND claim_expires_at < ?
		ORDER BY seq
	`, types.StatusClaimed, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired claims: %w", err)
	}
	var released []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expired claim: %w", err)
		}
		released = append(released, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate expired claims: %w", err)
	}
	rows.Close()

	if len(released) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE schedules
		SET claimed_by = NULL, claimed_at = NULL, claim_expires_at = NULL, status = ?
		WHERE status = ? AND claim_expires_at IS NOT NULL AND claim_expires_at < ?
	`, types.StatusPending, types.StatusClaimed, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to release expired claims: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit release: %w", err)
	}
	return released, nil
}
