package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kehsibha/walter/internal/models"
)

const jobColumns = `id, owner_id, status, step, progress, error, payload, created_at, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	err := row.Scan(
		&job.ID, &job.Owner, &job.Status, &job.Step, &job.Progress,
		&job.Error, &job.Payload, &job.CreatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// CreateJob inserts a new queued job for the given owner.
func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO generation_jobs (id, owner_id, status, step, progress, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.Owner, job.Status, job.Step, job.Progress, job.Payload,
	).Scan(&job.CreatedAt)
}

// FindOldestQueuedJob returns the oldest job still in queued state, or nil
// when the queue is empty. Claiming is a separate conditional write; two
// workers may observe the same job here and only one will win the claim.
func (db *DB) FindOldestQueuedJob(ctx context.Context) (*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT 1
	`

	job, err := scanJob(db.QueryRowContext(ctx, query, models.JobStatusQueued))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find queued job: %w", err)
	}

	return job, nil
}

// ClaimJob attempts the queued->running transition for exactly this job,
// conditioned on the job still being queued at the time of the write.
// Returns the updated job when the condition held, nil when another worker
// already claimed it. A plain read-then-write here would let two workers run
// the same job and duplicate every external side effect.
func (db *DB) ClaimJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `
		UPDATE generation_jobs
		SET status = $1, started_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING ` + jobColumns

	job, err := scanJob(db.QueryRowContext(ctx, query, models.JobStatusRunning, id, models.JobStatusQueued))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return job, nil
}

// UpdateJobProgress records the current step label, progress percentage, and
// last-message payload snapshot. Idempotent on retry.
func (db *DB) UpdateJobProgress(ctx context.Context, id uuid.UUID, step string, progress int, payload models.JSONB) error {
	query := `
		UPDATE generation_jobs
		SET step = $1, progress = $2, payload = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, step, progress, payload, id)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// FinalizeJob terminates a job as succeeded or failed, pinning progress to
// 100 and recording the error message (already redacted by the caller).
func (db *DB) FinalizeJob(ctx context.Context, id uuid.UUID, status models.JobStatus, errMsg string) error {
	var errVal *string
	if errMsg != "" {
		errVal = &errMsg
	}

	query := `
		UPDATE generation_jobs
		SET status = $1, error = $2, progress = 100, finished_at = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, status, errVal, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1`

	job, err := scanJob(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// GetLatestJobForOwner returns the most recently created job for an owner,
// or nil when the owner has never submitted one.
func (db *DB) GetLatestJobForOwner(ctx context.Context, owner uuid.UUID) (*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	job, err := scanJob(db.QueryRowContext(ctx, query, owner))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}

	return job, nil
}
