package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/salesdesk/salesdesk/internal/events"
)

// AppendEvent stores a journal record
func (s *SQLiteStorage) AppendEvent(ctx context.Context, rec *events.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO claim_events (id, type, timestamp, schedule_id, actor, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Type,
		toNanos(rec.Timestamp),
		rec.ScheduleID,
		rec.Actor,
		rec.Message,
		string(rec.Data),
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, schedule=%s): %w", rec.Type, rec.ScheduleID, err)
	}
	return nil
}

// ListEvents retrieves records matching the filter, most recent first
func (s *SQLiteStorage) ListEvents(ctx context.Context, filter events.Filter) ([]*events.Record, error) {
	query := `
		SELECT id, type, timestamp, schedule_id, actor, message, data
		FROM claim_events
		WHERE 1=1
	`
	var args []any

	if filter.ScheduleID != "" {
		query += " AND schedule_id = ?"
		args = append(args, filter.ScheduleID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if !filter.After.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, toNanos(filter.After))
	}
	if !filter.Before.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, toNanos(filter.Before))
	}

	query += " ORDER BY timestamp DESC, seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*events.Record, error) {
	var result []*events.Record
	for rows.Next() {
		var (
			rec   events.Record
			nanos int64
			data  string
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &nanos, &rec.ScheduleID, &rec.Actor, &rec.Message, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.Timestamp = time.Unix(0, nanos)
		if data != "" {
			rec.Data = json.RawMessage(data)
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return result, nil
}

// PruneEvents deletes records older than before in batches of batchSize
func (s *SQLiteStorage) PruneEvents(ctx context.Context, before time.Time, batchSize int) (int, error) {
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		result, err := s.db.ExecContext(ctx, `
			DELETE FROM claim_events
			WHERE seq IN (
				SELECT seq FROM claim_events
				WHERE timestamp < ?
				ORDER BY timestamp ASC
				LIMIT ?
			)
		`, toNanos(before), batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to prune events: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += int(n)

		// A short batch means nothing older is left
		if n < int64(batchSize) {
			return total, nil
		}
	}
}
