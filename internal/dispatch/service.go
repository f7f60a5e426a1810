// Package dispatch runs submitted workbook rows: it fetches the stored
// row, applies any action override, resolves the registered operation
// and executes it against the tenant's vendor API, recording the
// outcome in the event ledger. Each row runs as its own job so a slow
// vendor call never holds up the rest of a submission.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rpattn/ucprov/internal/faults"
	"github.com/rpattn/ucprov/internal/jobqueue"
	"github.com/rpattn/ucprov/internal/ledger"
	"github.com/rpattn/ucprov/internal/logging"
	"github.com/rpattn/ucprov/internal/ops"
	"github.com/rpattn/ucprov/internal/platforms/api"
	"github.com/rpattn/ucprov/internal/registry"
	"github.com/rpattn/ucprov/internal/rowmodel"
	"github.com/rpattn/ucprov/internal/rowstore"
)

// Submission identifies one stored row to run, with an optional action
// override chosen in the browser after upload.
type Submission struct {
	UploadJobID uuid.UUID       `json:"upload_job_id"`
	Platform    string          `json:"platform"`
	DataType    string          `json:"data_type"`
	RowNum      int             `json:"row_num"`
	Action      rowmodel.Action `json:"action,omitempty"`
}

// RowOutcome is the terminal result of one submitted row.
type RowOutcome struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// StateIgnored marks a row whose action was IGNORE: a successful no-op
// that touches no vendor API and writes no event.
const StateIgnored = "IGNORED"

// Service executes row submissions.
type Service struct {
	registry *registry.Registry
	store    rowstore.Store
	clients  api.Clients
	events   ledger.Repository
	runner   *jobqueue.Runner
}

func NewService(reg *registry.Registry, store rowstore.Store, clients api.Clients, events ledger.Repository, runner *jobqueue.Runner) *Service {
	svc := &Service{
		registry: reg,
		store:    store,
		clients:  clients,
		events:   events,
		runner:   runner,
	}
	runner.Register(jobqueue.KindSubmitRow, svc.handleJob)
	return svc
}

// Submit enqueues one job per row. Rows are independent: a failure in
// one never stops the others.
func (s *Service) Submit(ctx context.Context, orgID uuid.UUID, submissions []Submission) ([]jobqueue.Job, error) {
	jobs := make([]jobqueue.Job, 0, len(submissions))
	for _, submission := range submissions {
		params, err := json.Marshal(submission)
		if err != nil {
			return nil, fmt.Errorf("encode submission: %w", err)
		}
		job, err := s.runner.Enqueue(ctx, jobqueue.Job{
			OrgID:    orgID,
			Kind:     jobqueue.KindSubmitRow,
			Platform: submission.Platform,
			DataType: submission.DataType,
			RowNum:   submission.RowNum,
			Priority: jobqueue.DefaultPriority,
			Params:   params,
		})
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Service) handleJob(ctx context.Context, job jobqueue.Job, _ func(done, total int)) (json.RawMessage, error) {
	var submission Submission
	if err := json.Unmarshal(job.Params, &submission); err != nil {
		return nil, fmt.Errorf("decode submission params: %w", err)
	}

	outcome := s.RunRow(ctx, job.OrgID, job.ID, submission)
	if outcome.State == string(ops.StateSucceeded) || outcome.State == StateIgnored {
		return json.Marshal(outcome)
	}
	return nil, errors.New(outcome.Message)
}

// RunRow executes one submission to a terminal outcome. Every outcome
// except IGNORE is recorded in the event ledger.
func (s *Service) RunRow(ctx context.Context, orgID, jobID uuid.UUID, submission Submission) RowOutcome {
	log := logging.FromContext(ctx).With(
		"platform", submission.Platform,
		"data_type", submission.DataType,
		"row_num", submission.RowNum,
	)

	schema, ok := s.registry.Schema(submission.Platform, submission.DataType)
	if !ok {
		message := fmt.Sprintf("Data type '%s' is not supported.", submission.DataType)
		s.recordFailure(ctx, orgID, jobID, submission, "", message)
		return RowOutcome{State: string(ops.StateFailedNoRollback), Message: message}
	}

	record, err := s.loadRecord(ctx, schema, submission)
	if err != nil {
		message := faults.UserMessage(err)
		s.recordFailure(ctx, orgID, jobID, submission, "", message)
		return RowOutcome{State: string(ops.StateFailedNoRollback), Message: message}
	}
	target := record.Get(schema.TargetField)

	if submission.Action != "" && submission.Action != record.Action() {
		record, err = record.WithAction(submission.Action)
		if err != nil {
			message := faults.UserMessage(err)
			s.recordFailure(ctx, orgID, jobID, submission, target, message)
			return RowOutcome{State: string(ops.StateFailedNoRollback), Message: message}
		}
	}

	// IGNORE is a deliberate no-op: nothing runs, nothing is logged to
	// the ledger, and re-submitting changes nothing.
	if record.Action() == rowmodel.ActionIgnore {
		return RowOutcome{State: StateIgnored}
	}

	operation, err := s.registry.Operation(submission.Platform, submission.DataType, record.Action())
	if err != nil {
		message := faults.UserMessage(err)
		s.recordFailure(ctx, orgID, jobID, submission, target, message)
		return RowOutcome{State: string(ops.StateFailedNoRollback), Message: message}
	}

	client, err := s.clients.For(ctx, orgID.String(), submission.Platform)
	if err != nil {
		log.Error("no vendor client available", "error", err)
		s.recordFailure(ctx, orgID, jobID, submission, target, faults.GenericUserMessage)
		return RowOutcome{State: string(ops.StateFailedNoRollback), Message: faults.GenericUserMessage}
	}

	result := ops.Run(ctx, operation, &ops.Context{
		Record: record,
		Client: client,
		Log:    log,
	})

	event := ledger.Event{
		OrgID:    orgID,
		Actor:    "system",
		Platform: submission.Platform,
		DataType: submission.DataType,
		Action:   string(record.Action()),
		JobID:    jobID,
		RowNum:   submission.RowNum,
		Target:   target,
		Outcome:  ledger.OutcomeSucceeded,
	}
	if !result.Succeeded() {
		event.Outcome = ledger.OutcomeFailed
		event.Detail = result.Message
	}
	if _, err := s.events.Append(ctx, event); err != nil {
		log.Error("failed to append ledger event", "error", err)
	}

	return RowOutcome{State: string(result.State), Message: result.Message}
}

func (s *Service) loadRecord(ctx context.Context, schema *rowmodel.Schema, submission Submission) (*rowmodel.Record, error) {
	raw, err := s.store.Row(ctx, submission.UploadJobID, schema.DataType, submission.RowNum)
	if err != nil {
		return nil, err
	}
	return rowmodel.DecodeRecord(schema, raw)
}

func (s *Service) recordFailure(ctx context.Context, orgID, jobID uuid.UUID, submission Submission, target, message string) {
	_, err := s.events.Append(ctx, ledger.Event{
		OrgID:    orgID,
		Actor:    "system",
		Platform: submission.Platform,
		DataType: submission.DataType,
		Action:   string(submission.Action),
		JobID:    jobID,
		RowNum:   submission.RowNum,
		Target:   target,
		Outcome:  ledger.OutcomeFailed,
		Detail:   message,
	})
	if err != nil {
		logging.FromContext(ctx).Error("failed to append ledger event", "error", err)
	}
}
