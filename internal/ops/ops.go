// Package ops defines the bulk operation contract: a single provisioning
// action for one workbook row, with compensating rollback for multi-step
// operations that fail partway.
package ops

import (
	"context"
	"log/slog"

	"github.com/rpattn/ucprov/internal/faults"
	"github.com/rpattn/ucprov/internal/platforms/api"
	"github.com/rpattn/ucprov/internal/rowmodel"
)

// Operation performs one action for one row. Implementations are
// stateless and shared; per-run state belongs on the Context.
type Operation interface {
	Run(ctx context.Context, oc *Context) error
}

// OperationFunc adapts a function to the Operation interface.
type OperationFunc func(ctx context.Context, oc *Context) error

func (f OperationFunc) Run(ctx context.Context, oc *Context) error {
	return f(ctx, oc)
}

// State is the terminal outcome of an operation run.
type State string

const (
	StateSucceeded        State = "SUCCEEDED"
	StateFailedRolledBack State = "FAILED_ROLLED_BACK"
	StateFailedNoRollback State = "FAILED_NO_ROLLBACK_NEEDED"
)

// Task records one completed provisioning step and how to undo it.
type Task struct {
	Name     string
	Rollback func(ctx context.Context) error
}

// Context carries the row, the tenant-scoped vendor client and the
// completed-step ledger through one operation run.
type Context struct {
	Record *rowmodel.Record
	Client api.Client
	Log    *slog.Logger

	completed []Task
}

// Completed appends a finished step. Steps are compensated in reverse
// completion order if a later step fails.
func (c *Context) Completed(task Task) {
	c.completed = append(c.completed, task)
}

// CompletedCount reports how many steps have finished so far.
func (c *Context) CompletedCount() int { return len(c.completed) }

// Result is the outcome of a single operation run, with a message safe
// to show to the operator.
type Result struct {
	State   State
	Message string
	Err     error
}

// Succeeded reports whether the run finished without error.
func (r Result) Succeeded() bool { return r.State == StateSucceeded }

// Run executes an operation and, on failure, rolls back every completed
// step in reverse order. Rollback failures are logged and do not stop
// the remaining compensations: a half-undone row is better than an
// abandoned one.
func Run(ctx context.Context, op Operation, oc *Context) Result {
	if oc.Log == nil {
		oc.Log = slog.Default()
	}
	log := oc.Log

	err := op.Run(ctx, oc)
	if err == nil {
		return Result{State: StateSucceeded}
	}

	message := faults.UserMessage(err)
	if len(oc.completed) == 0 {
		return Result{State: StateFailedNoRollback, Message: message, Err: err}
	}

	log.Warn("operation failed, rolling back completed steps",
		"steps", len(oc.completed), "error", err)
	for i := len(oc.completed) - 1; i >= 0; i-- {
		task := oc.completed[i]
		if rbErr := task.Rollback(ctx); rbErr != nil {
			log.Error("rollback step failed",
				"step", task.Name, "error", rbErr)
			continue
		}
		log.Info("rolled back step", "step", task.Name)
	}

	return Result{
		State:   StateFailedRolledBack,
		Message: message + " All completed steps were rolled back.",
		Err:     err,
	}
}
