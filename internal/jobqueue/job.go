// Package jobqueue runs the asynchronous work behind uploads, row
// submissions and exports: a persistent job table plus in-process
// workers. Jobs are either standalone or children of a grouping parent
// whose progress aggregates theirs.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether a job in this status will never run again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Job kinds dispatched by the runner.
const (
	KindParseUpload = "parse_upload"
	KindSubmitRow   = "submit_row"
	KindExportSheet = "export_sheet"
	KindGroup       = "group"
)

// DefaultPriority applies to user-facing work; lower numbers run no
// differently today but are recorded for queue introspection.
const DefaultPriority = 5

// ErrJobNotRunnable is returned when a status transition loses the race:
// the job was already started, finished or cancelled elsewhere.
var ErrJobNotRunnable = errors.New("job is not in a runnable state")

// ErrJobNotFound is returned for lookups of unknown jobs.
var ErrJobNotFound = errors.New("job not found")

// Job is one unit of asynchronous work.
type Job struct {
	ID       uuid.UUID `json:"id"`
	OrgID    uuid.UUID `json:"org_id"`
	ParentID uuid.UUID `json:"parent_id,omitempty"`
	Kind     string    `json:"kind"`
	Platform string    `json:"platform,omitempty"`
	DataType string    `json:"data_type,omitempty"`
	// RowNum ties a submit_row job to its stored worksheet row.
	RowNum   int `json:"row_num,omitempty"`
	Priority int `json:"priority"`
	// Params carries handler-specific input, persisted with the job.
	Params json.RawMessage `json:"params,omitempty"`

	Status Status `json:"status"`
	// Done/Total drive the progress percentage for long jobs.
	Done  int `json:"done"`
	Total int `json:"total"`
	// Result holds the handler's output for terminal jobs.
	Result json.RawMessage `json:"result,omitempty"`
	// Error holds the user-facing failure message.
	Error string `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ProgressPercent derives the 0-100 progress figure shown to operators.
func (j Job) ProgressPercent() int {
	if j.Status.Terminal() {
		return 100
	}
	if j.Total <= 0 {
		return 0
	}
	percent := j.Done * 100 / j.Total
	if percent > 99 {
		// Never show 100% for a job that has not finished.
		percent = 99
	}
	return percent
}

// RetentionPolicy sets how long finished and stuck jobs are kept before
// the sweeper removes them.
type RetentionPolicy struct {
	// QueuedTTL bounds how long a job may sit queued; stale queued jobs
	// are cancelled (the process that owned them is gone).
	QueuedTTL time.Duration
	// RunningTimeout bounds a single run; overrunning jobs are failed.
	RunningTimeout time.Duration
	// ResultTTL is how long terminal jobs are kept for polling.
	ResultTTL time.Duration
	// FailureTTL is how long failed jobs are kept; typically longer than
	// ResultTTL so operators can review what went wrong.
	FailureTTL time.Duration
}

// Repository is the job store contract. Status transitions are
// compare-and-swap: transitioning a job that is not in the expected
// state returns ErrJobNotRunnable.
type Repository interface {
	Create(ctx context.Context, job Job) (Job, error)
	Get(ctx context.Context, id uuid.UUID) (Job, error)
	Children(ctx context.Context, parentID uuid.UUID) ([]Job, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID, limit int) ([]Job, error)

	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, done, total int) error

	Sweep(ctx context.Context, policy RetentionPolicy) (int64, error)
}
