package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kehsibha/walter/internal/models"
)

// AppendJobEvent inserts one append-only event for a job. Events are never
// updated or deleted after insertion.
func (db *DB) AppendJobEvent(ctx context.Context, jobID uuid.UUID, kind models.EventKind, message string, items []string) error {
	if items == nil {
		items = []string{}
	}

	query := `
		INSERT INTO generation_job_events (job_id, kind, message, items)
		VALUES ($1, $2, $3, $4)
	`
	_, err := db.ExecContext(ctx, query, jobID, kind, message, pq.Array(items))
	if err != nil {
		return fmt.Errorf("failed to append job event: %w", err)
	}
	return nil
}

// GetRecentJobEvents returns up to limit of the newest events for a job,
// in chronological order.
func (db *DB) GetRecentJobEvents(ctx context.Context, jobID uuid.UUID, limit int) ([]models.JobEvent, error) {
	query := `
		SELECT id, job_id, kind, message, items, created_at
		FROM generation_job_events
		WHERE job_id = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query job events: %w", err)
	}
	defer rows.Close()

	var events []models.JobEvent
	for rows.Next() {
		var ev models.JobEvent
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.Kind, &ev.Message, pq.Array(&ev.Items), &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job events: %w", err)
	}

	// Newest-first from the query; observers want chronological order.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	return events, nil
}
