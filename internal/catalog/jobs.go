package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"imagegen/internal/models"
)

// CreateJob records a pending generation job and returns its id.
func (c *Catalog) CreateJob(ctx context.Context, model, prompt string, tags []string, source models.JobSource, refCount int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var tagsJSON *string
	if len(tags) > 0 {
		raw, err := json.Marshal(tags)
		if err != nil {
			return 0, fmt.Errorf("failed to encode job tags: %w", err)
		}
		s := string(raw)
		tagsJSON = &s
	}

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO generation_jobs (status, model, prompt, tags, source, ref_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		models.JobStatusPending, model, prompt, tagsJSON, source, refCount, now())
	if err != nil {
		return 0, fmt.Errorf("failed to create job: %w", err)
	}
	return res.LastInsertId()
}

// MarkJobRunning transitions pending -> running. Any other current state
// yields ErrJobTerminal; a missing job yields ErrNotFound.
func (c *Catalog) MarkJobRunning(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		"UPDATE generation_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?",
		models.JobStatusRunning, now(), id, models.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	return c.checkTransition(ctx, res, id)
}

// MarkJobCompleted transitions a non-terminal job to completed and links the
// resulting generation.
func (c *Catalog) MarkJobCompleted(ctx context.Context, id, generationID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		`UPDATE generation_jobs SET status = ?, completed_at = ?, generation_id = ?
		 WHERE id = ? AND status IN (?, ?)`,
		models.JobStatusCompleted, now(), generationID,
		id, models.JobStatusPending, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return c.checkTransition(ctx, res, id)
}

// MarkJobFailed transitions a non-terminal job to failed, recording the
// error message.
func (c *Catalog) MarkJobFailed(ctx context.Context, id int64, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markJobFailed(ctx, id, message)
}

func (c *Catalog) markJobFailed(ctx context.Context, id int64, message string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE generation_jobs SET status = ?, completed_at = ?, error = ?
		 WHERE id = ? AND status IN (?, ?)`,
		models.JobStatusFailed, now(), message,
		id, models.JobStatusPending, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return c.checkTransition(ctx, res, id)
}

// checkTransition distinguishes "no such job" from "job already terminal"
// when a guarded update touched no rows.
func (c *Catalog) checkTransition(ctx context.Context, res sql.Result, id int64) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	var exists int64
	err = c.db.QueryRowContext(ctx,
		"SELECT 1 FROM generation_jobs WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrJobTerminal
}

// GetJob returns a job by id or ErrNotFound.
func (c *Catalog) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRowContext(ctx,
		jobSelect+" WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// ListActiveJobs returns pending and running jobs, oldest first.
func (c *Catalog) ListActiveJobs(ctx context.Context) ([]*models.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryJobs(ctx,
		jobSelect+" WHERE status IN (?, ?) ORDER BY created_at, id",
		models.JobStatusPending, models.JobStatusRunning)
}

// ListRecentFailedJobs returns jobs that failed within the last two hours,
// newest first.
func (c *Catalog) ListRecentFailedJobs(ctx context.Context) ([]*models.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-2 * time.Hour).Format(models.TimestampLayout)
	return c.queryJobs(ctx,
		jobSelect+" WHERE status = ? AND completed_at >= ? ORDER BY completed_at DESC, id DESC",
		models.JobStatusFailed, cutoff)
}

// CleanupOldJobs deletes terminal jobs older than the given age (zero means
// all of them), returning how many were removed.
func (c *Catalog) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).Format(models.TimestampLayout)
	res, err := c.db.ExecContext(ctx,
		"DELETE FROM generation_jobs WHERE status IN (?, ?) AND created_at <= ?",
		models.JobStatusCompleted, models.JobStatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up jobs: %w", err)
	}
	return res.RowsAffected()
}

// CleanupStalledJobs fails every pending or running job older than the
// threshold. Jobs orphaned by a crash mid-dispatch never leave the active
// set otherwise.
func (c *Catalog) CleanupStalledJobs(ctx context.Context, threshold time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-threshold).Format(models.TimestampLayout)
	rows, err := c.db.QueryContext(ctx,
		"SELECT id FROM generation_jobs WHERE status IN (?, ?) AND created_at < ?",
		models.JobStatusPending, models.JobStatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to find stalled jobs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	message := fmt.Sprintf("Job timed out after %d minutes", int64(threshold.Minutes()))
	for _, id := range ids {
		if err := c.markJobFailed(ctx, id, message); err != nil {
			return 0, err
		}
	}
	return int64(len(ids)), nil
}

const jobSelect = `SELECT id, status, model, prompt, tags, source, ref_count,
	created_at, started_at, completed_at, generation_id, error FROM generation_jobs`

func scanJob(row scanner) (*models.Job, error) {
	var (
		job          models.Job
		status       string
		source       string
		tagsJSON     sql.NullString
		startedAt    sql.NullString
		completedAt  sql.NullString
		generationID sql.NullInt64
		errMsg       sql.NullString
	)

	err := row.Scan(&job.ID, &status, &job.Model, &job.Prompt, &tagsJSON, &source,
		&job.RefCount, &job.CreatedAt, &startedAt, &completedAt, &generationID, &errMsg)
	if err != nil {
		return nil, err
	}

	if job.Status, err = models.ParseJobStatus(status); err != nil {
		return nil, fmt.Errorf("corrupt job row %d: %w", job.ID, err)
	}
	if job.Source, err = models.ParseJobSource(source); err != nil {
		return nil, fmt.Errorf("corrupt job row %d: %w", job.ID, err)
	}

	job.Tags = []string{}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &job.Tags); err != nil {
			return nil, fmt.Errorf("corrupt job row %d: %w", job.ID, err)
		}
	}

	job.StartedAt = nullToPtr(startedAt.Valid, startedAt.String)
	job.CompletedAt = nullToPtr(completedAt.Valid, completedAt.String)
	job.GenerationID = nullToPtr(generationID.Valid, generationID.Int64)
	job.Error = nullToPtr(errMsg.Valid, errMsg.String)
	return &job, nil
}

func (c *Catalog) queryJobs(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
