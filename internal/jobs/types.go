package jobs

import (
	"context"
	"time"
)

// JobKind represents the kind of pipeline job to be executed.
type JobKind string

const (
	// JobKindDrain runs batch cycles until the pending backlog is exhausted.
	JobKindDrain JobKind = "drain"
	// JobKindReprocess resets one user's records and then drains.
	JobKindReprocess JobKind = "reprocess"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// PipelineJob represents one asynchronous pipeline invocation. The pipeline
// performs no automatic retries; a failed job is retried only by a caller
// submitting a new one.
type PipelineJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Kind selects what the job does.
	Kind JobKind `json:"kind"`

	// UserID scopes reprocess jobs to one user. Empty for drain jobs.
	UserID string `json:"user_id,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Processed, Deleted and Errored total what the drain reported.
	Processed int `json:"processed"`
	Deleted   int `json:"deleted"`
	Errored   int `json:"errored"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// JobHandler processes a single job. Handlers update the job's result
// counters in place.
type JobHandler func(ctx context.Context, job *PipelineJob) error

// Publisher enqueues jobs for asynchronous processing.
type Publisher interface {
	Publish(ctx context.Context, job *PipelineJob) error
}

// Consumer pulls jobs off the queue and runs them through a handler.
type Consumer interface {
	Start(ctx context.Context, handler JobHandler) error
	Stop(ctx context.Context) error
	Close() error
}

// JobStore persists job state for status queries.
type JobStore interface {
	SaveJob(ctx context.Context, job *PipelineJob) error
	GetJob(ctx context.Context, jobID string) (*PipelineJob, error)
}
