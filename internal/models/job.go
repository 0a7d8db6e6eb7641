package models

import "fmt"

// JobStatus is the lifecycle state of a generation job. The only legal path
// is pending -> running -> completed|failed; completed and failed are
// terminal.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ParseJobStatus maps a persisted status string back to its variant. Unknown
// strings are an error, never silently coerced.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return JobStatus(s), nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobSource records which collaborator submitted the job.
type JobSource string

const (
	JobSourceCLI JobSource = "cli"
	JobSourceGUI JobSource = "gui"
)

func ParseJobSource(s string) (JobSource, error) {
	switch JobSource(s) {
	case JobSourceCLI, JobSourceGUI:
		return JobSource(s), nil
	}
	return "", fmt.Errorf("unknown job source %q", s)
}

// Job tracks one generation request from submission to terminal outcome.
type Job struct {
	ID           int64     `json:"id"`
	Status       JobStatus `json:"status"`
	Model        string    `json:"model"`
	Prompt       string    `json:"prompt"`
	Tags         []string  `json:"tags,omitempty"`
	Source       JobSource `json:"source"`
	RefCount     int64     `json:"ref_count"`
	CreatedAt    string    `json:"created_at"`
	StartedAt    *string   `json:"started_at,omitempty"`
	CompletedAt  *string   `json:"completed_at,omitempty"`
	GenerationID *int64    `json:"generation_id,omitempty"`
	Error        *string   `json:"error,omitempty"`
}
