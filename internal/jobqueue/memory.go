package jobqueue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/ucprov/internal/faults"
)

// MemoryRepository is an in-memory job store for tests and
// single-process deployments.
type MemoryRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job

	now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs: make(map[uuid.UUID]*Job),
		now:  time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, job Job) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Priority == 0 {
		job.Priority = DefaultPriority
	}
	job.Status = StatusQueued
	job.CreatedAt = r.now().UTC()

	stored := job
	r.jobs[job.ID] = &stored
	return job, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

func (r *MemoryRepository) Children(_ context.Context, parentID uuid.UUID) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var children []Job
	for _, job := range r.jobs {
		if job.ParentID == parentID {
			children = append(children, *job)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].CreatedAt.Before(children[j].CreatedAt)
	})
	return children, nil
}

func (r *MemoryRepository) ListByOrg(_ context.Context, orgID uuid.UUID, limit int) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var jobs []Job
	for _, job := range r.jobs {
		if job.OrgID == orgID {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[j].CreatedAt.Before(jobs[i].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *MemoryRepository) transition(id uuid.UUID, from []Status, apply func(*Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	for _, status := range from {
		if job.Status == status {
			apply(job)
			return nil
		}
	}
	return ErrJobNotRunnable
}

func (r *MemoryRepository) MarkRunning(_ context.Context, id uuid.UUID) error {
	return r.transition(id, []Status{StatusQueued}, func(job *Job) {
		now := r.now().UTC()
		job.Status = StatusRunning
		job.StartedAt = &now
	})
}

func (r *MemoryRepository) MarkCompleted(_ context.Context, id uuid.UUID, result json.RawMessage) error {
	return r.transition(id, []Status{StatusRunning}, func(job *Job) {
		now := r.now().UTC()
		job.Status = StatusSucceeded
		job.Result = result
		job.FinishedAt = &now
	})
}

func (r *MemoryRepository) MarkFailed(_ context.Context, id uuid.UUID, message string) error {
	return r.transition(id, []Status{StatusQueued, StatusRunning}, func(job *Job) {
		now := r.now().UTC()
		job.Status = StatusFailed
		job.Error = message
		job.FinishedAt = &now
	})
}

func (r *MemoryRepository) MarkCancelled(_ context.Context, id uuid.UUID) error {
	return r.transition(id, []Status{StatusQueued, StatusRunning}, func(job *Job) {
		now := r.now().UTC()
		job.Status = StatusCancelled
		job.FinishedAt = &now
	})
}

func (r *MemoryRepository) UpdateProgress(_ context.Context, id uuid.UUID, done, total int) error {
	return r.transition(id, []Status{StatusRunning}, func(job *Job) {
		job.Done = done
		job.Total = total
	})
}

func (r *MemoryRepository) Sweep(_ context.Context, policy RetentionPolicy) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	var removed int64
	for id, job := range r.jobs {
		// A job running past its timeout lost its worker (or the worker's
		// terminal write never landed); fail it so pollers see an end state.
		if job.Status == StatusRunning && policy.RunningTimeout > 0 &&
			job.StartedAt != nil && now.Sub(*job.StartedAt) > policy.RunningTimeout {
			finished := now
			job.Status = StatusFailed
			job.Error = faults.GenericUserMessage
			job.FinishedAt = &finished
			continue
		}

		var keepUntil time.Time
		switch job.Status {
		case StatusQueued:
			keepUntil = job.CreatedAt.Add(policy.QueuedTTL)
		case StatusFailed:
			keepUntil = job.FinishedAt.Add(policy.FailureTTL)
		case StatusSucceeded, StatusCancelled:
			keepUntil = job.FinishedAt.Add(policy.ResultTTL)
		default:
			continue
		}
		if now.After(keepUntil) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed, nil
}
