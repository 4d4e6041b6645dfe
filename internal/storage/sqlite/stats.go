package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/salesdesk/salesdesk/internal/types"
)

// IncrementClaimed bumps claimed_count, creating the row on first claim of the day
func (s *SQLiteStorage) IncrementClaimed(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error) {
	return s.bump(ctx, executiveID, date, `
		INSERT INTO executive_stats (executive_id, date, claimed_count, completed_count)
		VALUES (?, ?, 1, 0)
		ON CONFLICT(executive_id, date) DO UPDATE SET claimed_count = claimed_count + 1
	`)
}

// IncrementCompleted bumps completed_count
func (s *SQLiteStorage) IncrementCompleted(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error) {
	return s.bump(ctx, executiveID, date, `
		INSERT INTO executive_stats (executive_id, date, claimed_count, completed_count)
		VALUES (?, ?, 0, 1)
		ON CONFLICT(executive_id, date) DO UPDATE SET completed_count = completed_count + 1
	`)
}

func (s *SQLiteStorage) bump(ctx context.Context, executiveID, date, upsert string) (*types.ExecutiveStats, error) {
	if executiveID == "" {
		return nil, fmt.Errorf("%w: executive id is required", types.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsert, executiveID, date); err != nil {
		return nil, fmt.Errorf("failed to update executive stats: %w", err)
	}

	st, err := getStats(ctx, tx, executiveID, date)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit stats: %w", err)
	}
	return st, nil
}

// GetExecutiveStats returns the day's stats, or a zero record if none exist
func (s *SQLiteStorage) GetExecutiveStats(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error) {
	st, err := getStats(ctx, s.db, executiveID, date)
	if errors.Is(err, types.ErrNotFound) {
		return &types.ExecutiveStats{ExecutiveID: executiveID, Date: date}, nil
	}
	return st, err
}

func getStats(ctx context.Context, q queryer, executiveID, date string) (*types.ExecutiveStats, error) {
	st := &types.ExecutiveStats{ExecutiveID: executiveID, Date: date}
	err := q.QueryRowContext(ctx, `
		SELECT claimed_count, completed_count FROM executive_stats
		WHERE executive_id = ? AND date = ?
	`, executiveID, date).Scan(&st.ClaimedCount, &st.CompletedCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stats for %s on %s: %w", executiveID, date, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get executive stats: %w", err)
	}
	st.Recompute()
	return st, nil
}

// ListExecutiveStats returns all stats rows for date (all dates when empty)
func (s *SQLiteStorage) ListExecutiveStats(ctx context.Context, date string) ([]*types.ExecutiveStats, error) {
	query := `SELECT executive_id, date, claimed_count, completed_count FROM executive_stats`
	var args []any
	if date != "" {
		query += ` WHERE date = ?`
		args = append(args, date)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executive stats: %w", err)
	}
	defer rows.Close()

	var out []*types.ExecutiveStats
	for rows.Next() {
		st := &types.ExecutiveStats{}
		if err := rows.Scan(&st.ExecutiveID, &st.Date, &st.ClaimedCount, &st.CompletedCount); err != nil {
			return nil, fmt.Errorf("failed to scan executive stats: %w", err)
		}
		st.Recompute()
		out = append(out, st)
	}
	return out, rows.Err()
}
