package catalog

import (
	"context"
	"testing"
	"time"

	"imagegen/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLifecycle(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	jobID, err := c.CreateJob(ctx, "gemini-flash", "a red fox", []string{"animal"}, models.JobSourceCLI, 2)
	require.NoError(t, err)

	job, err := c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, []string{"animal"}, job.Tags)
	assert.Equal(t, int64(2), job.RefCount)
	assert.Nil(t, job.StartedAt)

	require.NoError(t, c.MarkJobRunning(ctx, jobID))
	job, err = c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)

	genID := insertTestGeneration(t, c, nil)
	require.NoError(t, c.MarkJobCompleted(ctx, jobID, genID))
	job, err = c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.GenerationID)
	assert.Equal(t, genID, *job.GenerationID)
}

func TestJobTerminalGuard(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	jobID, err := c.CreateJob(ctx, "gemini-flash", "p", nil, models.JobSourceGUI, 0)
	require.NoError(t, err)
	require.NoError(t, c.MarkJobFailed(ctx, jobID, "provider unreachable"))

	// Terminal jobs admit no further transitions.
	assert.ErrorIs(t, c.MarkJobRunning(ctx, jobID), ErrJobTerminal)
	assert.ErrorIs(t, c.MarkJobCompleted(ctx, jobID, 1), ErrJobTerminal)
	assert.ErrorIs(t, c.MarkJobFailed(ctx, jobID, "again"), ErrJobTerminal)

	job, err := c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "provider unreachable", *job.Error)

	assert.ErrorIs(t, c.MarkJobRunning(ctx, 9999), ErrNotFound)
	_, err = c.GetJob(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkJobRunningRequiresPending(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	jobID, err := c.CreateJob(ctx, "gemini-flash", "p", nil, models.JobSourceCLI, 0)
	require.NoError(t, err)
	require.NoError(t, c.MarkJobRunning(ctx, jobID))

	assert.ErrorIs(t, c.MarkJobRunning(ctx, jobID), ErrJobTerminal)

	// A running job may still fail directly, skipping was never an option.
	require.NoError(t, c.MarkJobFailed(ctx, jobID, "stream cut"))
}

func TestGetJobRejectsUnknownStatus(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO generation_jobs (status, model, prompt, source, created_at)
		 VALUES ('queued', 'gemini-flash', 'p', 'cli', ?)`, now())
	require.NoError(t, err)

	_, err = c.GetJob(ctx, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job status")
}

func TestListActiveAndFailedJobs(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	pending, err := c.CreateJob(ctx, "gemini-flash", "one", nil, models.JobSourceCLI, 0)
	require.NoError(t, err)
	running, err := c.CreateJob(ctx, "gemini-flash", "two", nil, models.JobSourceCLI, 0)
	require.NoError(t, err)
	require.NoError(t, c.MarkJobRunning(ctx, running))
	failed, err := c.CreateJob(ctx, "gemini-flash", "three", nil, models.JobSourceCLI, 0)
	require.NoError(t, err)
	require.NoError(t, c.MarkJobFailed(ctx, failed, "boom"))

	active, err := c.ListActiveJobs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, pending, active[0].ID)
	assert.Equal(t, running, active[1].ID)

	recent, err := c.ListRecentFailedJobs(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, failed, recent[0].ID)

	// Failures older than two hours fall off the recent list.
	old := time.Now().Add(-3 * time.Hour).Format(models.TimestampLayout)
	_, err = c.db.ExecContext(ctx,
		"UPDATE generation_jobs SET completed_at = ? WHERE id = ?", old, failed)
	require.NoError(t, err)

	recent, err = c.ListRecentFailedJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestCleanupOldJobs(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	keep, err := c.CreateJob(ctx, "gemini-flash", "active", nil, models.JobSourceCLI, 0)
	require.NoError(t, err)
	done, err := c.CreateJob(ctx, "gemini-flash", "done", nil, models.JobSourceCLI, 0)
	require.NoError(t, err)
	require.NoError(t, c.MarkJobFailed(ctx, done, "boom"))

	// An age floor keeps recent terminal jobs around.
	n, err := c.CleanupOldJobs(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = c.CleanupOldJobs(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = c.GetJob(ctx, keep)
	require.NoError(t, err)
	_, err = c.GetJob(ctx, done)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupStalledJobs(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	stalled, err := c.CreateJob(ctx, "gemini-flash", "stuck", nil, models.JobSourceCLI, 0)
	require.NoError(t, err)
	require.NoError(t, c.MarkJobRunning(ctx, stalled))
	fresh, err := c.CreateJob(ctx, "gemini-flash", "fresh", nil, models.JobSourceCLI, 0)
	require.NoError(t, err)

	// Backdate the stalled job past the threshold.
	old := time.Now().Add(-time.Hour).Format(models.TimestampLayout)
	_, err = c.db.ExecContext(ctx,
		"UPDATE generation_jobs SET created_at = ? WHERE id = ?", old, stalled)
	require.NoError(t, err)

	n, err := c.CleanupStalledJobs(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job, err := c.GetJob(ctx, stalled)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "Job timed out after 30 minutes", *job.Error)

	job, err = c.GetJob(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
}
