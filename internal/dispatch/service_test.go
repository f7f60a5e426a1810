package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/ucprov/internal/faults"
	"github.com/rpattn/ucprov/internal/jobqueue"
	"github.com/rpattn/ucprov/internal/ledger"
	"github.com/rpattn/ucprov/internal/ops"
	"github.com/rpattn/ucprov/internal/platforms/api"
	"github.com/rpattn/ucprov/internal/registry"
	"github.com/rpattn/ucprov/internal/rowmodel"
	"github.com/rpattn/ucprov/internal/rowstore"
)

type fixture struct {
	svc     *Service
	store   *rowstore.MemoryStore
	clients *api.FakeClients
	events  *ledger.MemoryRepository
	jobs    *jobqueue.MemoryRepository
	runner  *jobqueue.Runner
	schema  *rowmodel.Schema
	orgID   uuid.UUID
}

func addressSchema() *rowmodel.Schema {
	return &rowmodel.Schema{
		Platform:    "msteams",
		DataType:    "emergency_addresses",
		Title:       "Emergency Addresses",
		Supports:    []string{rowmodel.SupportsUpload, rowmodel.SupportsBulk},
		BulkActions: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionDelete},
		TargetField: "description",
		Fields: []rowmodel.Field{
			{Name: "description", WBKey: "Description", Required: true},
			{Name: "city", WBKey: "City",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
		},
	}
}

func newFixture(t *testing.T, op ops.Operation) *fixture {
	t.Helper()

	schema := addressSchema()
	reg := registry.New()
	entry, err := reg.Register(schema)
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if op != nil {
		if _, err := entry.Handle(rowmodel.ActionCreate, op); err != nil {
			t.Fatalf("Handle() error: %v", err)
		}
	}

	store := rowstore.NewMemoryStore(rowstore.Config{TTL: time.Hour})
	clients := api.NewFakeClients("msteams")
	events := ledger.NewMemoryRepository()
	jobs := jobqueue.NewMemoryRepository()
	runner := jobqueue.NewRunner(jobs, 5*time.Second, nil)

	return &fixture{
		svc:     NewService(reg, store, clients, events, runner),
		store:   store,
		clients: clients,
		events:  events,
		jobs:    jobs,
		runner:  runner,
		schema:  schema,
		orgID:   uuid.New(),
	}
}

func (f *fixture) storeRow(t *testing.T, uploadJobID uuid.UUID, rowNum int, cells map[string]string) {
	t.Helper()
	record, err := rowmodel.ParseRow(f.schema, cells)
	if err != nil {
		t.Fatalf("ParseRow() error: %v", err)
	}
	encoded, err := record.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}
	err = f.store.SaveSheet(context.Background(), uploadJobID, f.schema.DataType,
		map[int]json.RawMessage{rowNum: encoded})
	if err != nil {
		t.Fatalf("SaveSheet() error: %v", err)
	}
}

func submission(uploadJobID uuid.UUID, rowNum int) Submission {
	return Submission{
		UploadJobID: uploadJobID,
		Platform:    "msteams",
		DataType:    "emergency_addresses",
		RowNum:      rowNum,
	}
}

func TestRunRowSuccessRecordsEvent(t *testing.T) {
	ran := false
	f := newFixture(t, ops.OperationFunc(func(ctx context.Context, oc *ops.Context) error {
		ran = true
		if oc.Client == nil {
			t.Error("operation should receive the tenant client")
		}
		return nil
	}))
	uploadJobID := uuid.New()
	f.storeRow(t, uploadJobID, 2, map[string]string{
		"Action": "CREATE", "Description": "HQ", "City": "Leeds",
	})

	outcome := f.svc.RunRow(context.Background(), f.orgID, uuid.New(), submission(uploadJobID, 2))
	if outcome.State != string(ops.StateSucceeded) {
		t.Fatalf("outcome = %+v", outcome)
	}
	if !ran {
		t.Fatal("operation did not run")
	}

	events, _ := f.events.List(context.Background(), f.orgID, ledger.Filter{})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Outcome != ledger.OutcomeSucceeded || events[0].Target != "HQ" {
		t.Fatalf("event = %+v", events[0])
	}
}

func TestRunRowIgnoreIsSilentNoOp(t *testing.T) {
	f := newFixture(t, ops.OperationFunc(func(context.Context, *ops.Context) error {
		t.Fatal("operation must not run for IGNORE")
		return nil
	}))
	uploadJobID := uuid.New()
	f.storeRow(t, uploadJobID, 2, map[string]string{
		"Action": "IGNORE", "Description": "HQ",
	})

	// Running twice proves idempotence: same outcome, still no events.
	for i := 0; i < 2; i++ {
		outcome := f.svc.RunRow(context.Background(), f.orgID, uuid.New(), submission(uploadJobID, 2))
		if outcome.State != StateIgnored {
			t.Fatalf("outcome = %+v", outcome)
		}
	}

	events, _ := f.events.List(context.Background(), f.orgID, ledger.Filter{})
	if len(events) != 0 {
		t.Fatalf("IGNORE wrote %d events", len(events))
	}
	if calls := f.clients.Fakes["msteams"].Calls(); len(calls) != 0 {
		t.Fatalf("IGNORE touched the vendor API: %v", calls)
	}
}

func TestRunRowMissingRowAsksForReupload(t *testing.T) {
	f := newFixture(t, nil)

	outcome := f.svc.RunRow(context.Background(), f.orgID, uuid.New(), submission(uuid.New(), 2))
	if outcome.State != string(ops.StateFailedNoRollback) {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Message != "Row data not found. Please re-upload the workbook." {
		t.Fatalf("message = %q", outcome.Message)
	}

	events, _ := f.events.List(context.Background(), f.orgID, ledger.Filter{})
	if len(events) != 1 || events[0].Outcome != ledger.OutcomeFailed {
		t.Fatalf("events = %+v", events)
	}
}

func TestRunRowActionOverrideRevalidates(t *testing.T) {
	f := newFixture(t, nil)
	uploadJobID := uuid.New()
	// Valid as DELETE: City only matters for CREATE.
	f.storeRow(t, uploadJobID, 2, map[string]string{
		"Action": "DELETE", "Description": "HQ",
	})

	sub := submission(uploadJobID, 2)
	sub.Action = rowmodel.ActionCreate
	outcome := f.svc.RunRow(context.Background(), f.orgID, uuid.New(), sub)
	if outcome.State != string(ops.StateFailedNoRollback) {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Message != "'City' is required for CREATE operation." {
		t.Fatalf("message = %q", outcome.Message)
	}
}

func TestRunRowOverrideToIgnore(t *testing.T) {
	f := newFixture(t, ops.OperationFunc(func(context.Context, *ops.Context) error {
		t.Fatal("operation must not run")
		return nil
	}))
	uploadJobID := uuid.New()
	f.storeRow(t, uploadJobID, 2, map[string]string{
		"Action": "CREATE", "Description": "HQ", "City": "Leeds",
	})

	sub := submission(uploadJobID, 2)
	sub.Action = rowmodel.ActionIgnore
	outcome := f.svc.RunRow(context.Background(), f.orgID, uuid.New(), sub)
	if outcome.State != StateIgnored {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestRunRowUnregisteredAction(t *testing.T) {
	f := newFixture(t, nil) // DELETE declared but no operation registered
	uploadJobID := uuid.New()
	f.storeRow(t, uploadJobID, 2, map[string]string{
		"Action": "DELETE", "Description": "HQ",
	})

	outcome := f.svc.RunRow(context.Background(), f.orgID, uuid.New(), submission(uploadJobID, 2))
	if outcome.Message != "Bulk DELETE is not supported for Emergency Addresses." {
		t.Fatalf("message = %q", outcome.Message)
	}
}

func TestRunRowFailureMessageFromOperation(t *testing.T) {
	f := newFixture(t, ops.OperationFunc(func(context.Context, *ops.Context) error {
		return faults.NewBulkOpFailed("Address 'HQ' is in use.")
	}))
	uploadJobID := uuid.New()
	f.storeRow(t, uploadJobID, 2, map[string]string{
		"Action": "CREATE", "Description": "HQ", "City": "Leeds",
	})

	outcome := f.svc.RunRow(context.Background(), f.orgID, uuid.New(), submission(uploadJobID, 2))
	if outcome.Message != "Address 'HQ' is in use." {
		t.Fatalf("message = %q", outcome.Message)
	}

	events, _ := f.events.List(context.Background(), f.orgID, ledger.Filter{Outcome: ledger.OutcomeFailed})
	if len(events) != 1 || events[0].Detail != "Address 'HQ' is in use." {
		t.Fatalf("events = %+v", events)
	}
}

func TestSubmitRunsOneJobPerRow(t *testing.T) {
	f := newFixture(t, ops.OperationFunc(func(context.Context, *ops.Context) error {
		return nil
	}))
	uploadJobID := uuid.New()
	f.storeRow(t, uploadJobID, 2, map[string]string{
		"Action": "CREATE", "Description": "HQ", "City": "Leeds",
	})

	jobs, err := f.svc.Submit(context.Background(), f.orgID, []Submission{
		submission(uploadJobID, 2),
		{UploadJobID: uploadJobID, Platform: "msteams",
			DataType: "emergency_addresses", RowNum: 99}, // row never stored
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	f.runner.Wait()

	first, _ := f.jobs.Get(context.Background(), jobs[0].ID)
	if first.Status != jobqueue.StatusSucceeded {
		t.Fatalf("first job = %s (%s)", first.Status, first.Error)
	}

	second, _ := f.jobs.Get(context.Background(), jobs[1].ID)
	if second.Status != jobqueue.StatusFailed {
		t.Fatalf("second job = %s, want FAILED", second.Status)
	}
	if second.Error != "Row data not found. Please re-upload the workbook." {
		t.Fatalf("second job error = %q", second.Error)
	}
}
