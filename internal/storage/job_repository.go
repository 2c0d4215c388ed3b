package storage

import (
	"context"
	"fmt"

	"github.com/addrtx/scanner/internal/job"
	"github.com/addrtx/scanner/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobRepository persists gap backfill jobs, satisfying job.Repository.
// Completed and failed rows stay in the table until TrimTail removes all
// but the most recent ones; no component in this module calls TrimTail.
// Queued and in-progress jobs are kept until they resolve.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository builds a JobRepository over pool.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// InsertBatch inserts jobs in a single bulk operation. A job whose key
// already exists is left untouched, so resubmitting a gap that is
// already queued or in flight is a no-op.
func (r *JobRepository) InsertBatch(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, j := range jobs {
		batch.Queue(`
			INSERT INTO job (
				key, address, from_block, to_block, total_jobs, current_job,
				priority, status, attempts, run_after, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (key) DO NOTHING`,
			j.Key, string(j.Address), j.FromBlock, j.ToBlock, j.TotalJobs, j.CurrentJob,
			j.Priority, string(j.Status), j.Attempts, j.RunAfter, j.CreatedAt,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert jobs: %w", err)
	}
	return nil
}

// GetQueued returns up to limit jobs with status queued, ordered by
// priority then run_after, for loading the in-memory scheduler on
// startup.
func (r *JobRepository) GetQueued(ctx context.Context, limit int) ([]*job.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT key, address, from_block, to_block, total_jobs, current_job,
			priority, status, attempts, run_after, created_at
		FROM job
		WHERE status = $1
		ORDER BY priority DESC, run_after ASC
		LIMIT $2`,
		string(job.StatusQueued), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get queued jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j := &job.Job{}
		var address, status string
		if err := rows.Scan(
			&j.Key, &address, &j.FromBlock, &j.ToBlock, &j.TotalJobs, &j.CurrentJob,
			&j.Priority, &status, &j.Attempts, &j.RunAfter, &j.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		j.Address = types.Address(address)
		j.Status = job.Status(status)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

// UpdateStatus transitions a job's status and attempt count, recording
// errMsg when present.
func (r *JobRepository) UpdateStatus(ctx context.Context, key string, status job.Status, attempts int, errMsg *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE job SET status = $1, attempts = $2, error = $3,
			started_at = CASE WHEN $1 = 'in_progress' AND started_at IS NULL THEN now() ELSE started_at END,
			completed_at = CASE WHEN $1 IN ('completed', 'failed') THEN now() ELSE completed_at END
		WHERE key = $4`,
		string(status), attempts, errMsg, key,
	)
	if err != nil {
		return fmt.Errorf("update job status for %s: %w", key, err)
	}
	return nil
}

// TrimTail deletes completed rows beyond the most recent keepCompleted
// and failed rows beyond the most recent keepFailed, by completion time.
// Queued and in-progress rows are never touched.
func (r *JobRepository) TrimTail(ctx context.Context, keepCompleted, keepFailed int) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM job WHERE key IN (
			SELECT key FROM job WHERE status = 'completed'
			ORDER BY completed_at DESC OFFSET $1
		)`, keepCompleted)
	if err != nil {
		return fmt.Errorf("trim completed job tail: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		DELETE FROM job WHERE key IN (
			SELECT key FROM job WHERE status = 'failed'
			ORDER BY completed_at DESC OFFSET $1
		)`, keepFailed)
	if err != nil {
		return fmt.Errorf("trim failed job tail: %w", err)
	}
	return nil
}
