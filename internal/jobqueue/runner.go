package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/ucprov/internal/faults"
)

// Handler executes one job kind. The reported done/total feed the
// progress figure polled by the browser.
type Handler func(ctx context.Context, job Job, report func(done, total int)) (json.RawMessage, error)

// Runner launches a goroutine per enqueued job and tracks cancellation
// functions so in-flight work can be stopped on request.
type Runner struct {
	repo    Repository
	log     *slog.Logger
	timeout time.Duration

	handlers map[string]Handler

	// workerCancels maps job ID -> context.CancelFunc for running jobs.
	workerCancels sync.Map
	wg            sync.WaitGroup
}

func NewRunner(repo Repository, timeout time.Duration, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		repo:     repo,
		log:      log,
		timeout:  timeout,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job kind. Call before Enqueue; the
// handler table is not guarded after startup.
func (r *Runner) Register(kind string, handler Handler) {
	r.handlers[kind] = handler
}

// Enqueue persists a job and starts a worker for it.
func (r *Runner) Enqueue(ctx context.Context, job Job) (Job, error) {
	if _, ok := r.handlers[job.Kind]; ok || job.Kind == KindGroup {
		created, err := r.repo.Create(ctx, job)
		if err != nil {
			return Job{}, err
		}
		if job.Kind != KindGroup {
			r.launchWorker(created)
		}
		return created, nil
	}
	return Job{}, fmt.Errorf("no handler registered for job kind %q", job.Kind)
}

// EnqueueGroup persists a parent job plus one child per entry. The
// parent never runs a handler; it finishes when its children do.
func (r *Runner) EnqueueGroup(ctx context.Context, parent Job, children []Job) (Job, []Job, error) {
	parent.Kind = KindGroup
	parent.Total = len(children)
	created, err := r.repo.Create(ctx, parent)
	if err != nil {
		return Job{}, nil, err
	}
	if err := r.repo.MarkRunning(ctx, created.ID); err != nil {
		return Job{}, nil, err
	}

	launched := make([]Job, 0, len(children))
	for _, child := range children {
		child.ParentID = created.ID
		child.OrgID = created.OrgID
		enqueued, err := r.Enqueue(ctx, child)
		if err != nil {
			return Job{}, nil, err
		}
		launched = append(launched, enqueued)
	}
	return created, launched, nil
}

func (r *Runner) launchWorker(job Job) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.workerCancels.Store(job.ID, cancel)
		defer r.workerCancels.Delete(job.ID)

		log := r.log.With("job_id", job.ID, "kind", job.Kind)

		if err := r.repo.MarkRunning(ctx, job.ID); err != nil {
			// Cancelled (or already claimed) between enqueue and start.
			log.Info("job not runnable, skipping", "error", err)
			return
		}

		defer func() {
			if p := recover(); p != nil {
				log.Error("job panicked", "panic", p)
				if err := r.markFailed(job.ID, "Internal error while processing the job."); err != nil {
					log.Error("failed to mark panicked job failed", "error", err)
				}
				r.finishParent(job)
			}
		}()

		handler := r.handlers[job.Kind]
		report := func(done, total int) {
			if err := r.repo.UpdateProgress(ctx, job.ID, done, total); err != nil {
				log.Warn("failed to update job progress", "error", err)
			}
		}

		result, err := handler(ctx, job, report)
		switch {
		case err != nil && errors.Is(ctx.Err(), context.Canceled):
			// Cancel() already marked the job; nothing left to record.
			log.Info("job cancelled", "error", err)
		case err != nil:
			message := err.Error()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				// The deadline detail stays in the logs.
				log.Warn("job timed out", "timeout", r.timeout, "error", err)
				message = faults.GenericUserMessage
			} else {
				log.Warn("job failed", "error", err)
			}
			if markErr := r.markFailed(job.ID, message); markErr != nil {
				log.Error("failed to mark job failed", "error", markErr)
			}
		default:
			if markErr := r.markCompleted(job.ID, result); markErr != nil {
				log.Error("failed to mark job completed", "error", markErr)
			} else {
				log.Info("job completed")
			}
		}

		r.finishParent(job)
	}()
}

// markFailed and markCompleted write terminal states on their own
// context: the worker context may already be past its deadline, and the
// write must still land.
func (r *Runner) markFailed(id uuid.UUID, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.repo.MarkFailed(ctx, id, message)
}

func (r *Runner) markCompleted(id uuid.UUID, result json.RawMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.repo.MarkCompleted(ctx, id, result)
}

// finishParent recomputes a grouping parent after a child reaches a
// terminal state. The parent fails only when every child failed;
// partial success is still success, with per-child detail in the
// result for the operator to review.
func (r *Runner) finishParent(child Job) {
	if child.ParentID == uuid.Nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	children, err := r.repo.Children(ctx, child.ParentID)
	if err != nil {
		r.log.Error("failed to load sibling jobs", "parent_id", child.ParentID, "error", err)
		return
	}

	done, failed := 0, 0
	for _, sibling := range children {
		if sibling.Status.Terminal() {
			done++
		}
		if sibling.Status == StatusFailed {
			failed++
		}
	}

	if err := r.repo.UpdateProgress(ctx, child.ParentID, done, len(children)); err != nil {
		// Another child's worker may have already finished the parent.
		return
	}
	if done < len(children) {
		return
	}

	summary, _ := json.Marshal(map[string]any{
		"children": len(children),
		"failed":   failed,
	})
	if failed == len(children) && len(children) > 0 {
		err = r.repo.MarkFailed(ctx, child.ParentID, "All items failed.")
	} else {
		err = r.repo.MarkCompleted(ctx, child.ParentID, summary)
	}
	if err != nil && err != ErrJobNotRunnable {
		r.log.Error("failed to finish parent job", "parent_id", child.ParentID, "error", err)
	}
}

// Cancel stops a job best-effort: queued jobs are marked cancelled so
// their worker skips them, running jobs get their context cancelled.
// Work a handler has already sent to a vendor is not undone.
func (r *Runner) Cancel(ctx context.Context, id uuid.UUID) error {
	job, err := r.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobNotRunnable
	}

	if cancel, ok := r.workerCancels.Load(id); ok {
		cancel.(context.CancelFunc)()
	}
	if err := r.repo.MarkCancelled(ctx, id); err != nil {
		return err
	}

	// Cancelling a group cancels any still-pending children.
	if job.Kind == KindGroup {
		children, err := r.repo.Children(ctx, id)
		if err != nil {
			return err
		}
		for _, childJob := range children {
			if childJob.Status.Terminal() {
				continue
			}
			if cancel, ok := r.workerCancels.Load(childJob.ID); ok {
				cancel.(context.CancelFunc)()
			}
			if err := r.repo.MarkCancelled(ctx, childJob.ID); err != nil && err != ErrJobNotRunnable {
				r.log.Warn("failed to cancel child job", "job_id", childJob.ID, "error", err)
			}
		}
	}
	return nil
}

// Wait blocks until every launched worker has returned. Used by tests
// and graceful shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}
