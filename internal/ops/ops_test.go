package ops

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rpattn/ucprov/internal/faults"
)

func TestRunSuccess(t *testing.T) {
	op := OperationFunc(func(ctx context.Context, oc *Context) error {
		oc.Completed(Task{Name: "step", Rollback: func(context.Context) error {
			t.Fatal("rollback must not run on success")
			return nil
		}})
		return nil
	})

	result := Run(context.Background(), op, &Context{})
	if result.State != StateSucceeded {
		t.Fatalf("state = %s, want SUCCEEDED", result.State)
	}
}

func TestRunFailureBeforeFirstStep(t *testing.T) {
	op := OperationFunc(func(ctx context.Context, oc *Context) error {
		return faults.NewBulkOpFailed("Location 'HQ' does not exist.")
	})

	result := Run(context.Background(), op, &Context{})
	if result.State != StateFailedNoRollback {
		t.Fatalf("state = %s, want FAILED_NO_ROLLBACK_NEEDED", result.State)
	}
	if result.Message != "Location 'HQ' does not exist." {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestRunRollsBackInReverseOrder(t *testing.T) {
	var rolledBack []string
	op := OperationFunc(func(ctx context.Context, oc *Context) error {
		for _, name := range []string{"one", "two", "three"} {
			step := name
			oc.Completed(Task{Name: step, Rollback: func(context.Context) error {
				rolledBack = append(rolledBack, step)
				return nil
			}})
		}
		return errors.New("step four blew up")
	})

	result := Run(context.Background(), op, &Context{})
	if result.State != StateFailedRolledBack {
		t.Fatalf("state = %s, want FAILED_ROLLED_BACK", result.State)
	}
	want := []string{"three", "two", "one"}
	for i, name := range want {
		if rolledBack[i] != name {
			t.Fatalf("rollback order = %v, want %v", rolledBack, want)
		}
	}
	if !strings.Contains(result.Message, "rolled back") {
		t.Fatalf("message should mention rollback: %q", result.Message)
	}
	// Internal error text never reaches the operator.
	if strings.Contains(result.Message, "blew up") {
		t.Fatalf("internal detail leaked: %q", result.Message)
	}
}

func TestRunRollbackFailureDoesNotStopRemaining(t *testing.T) {
	var rolledBack []string
	op := OperationFunc(func(ctx context.Context, oc *Context) error {
		oc.Completed(Task{Name: "one", Rollback: func(context.Context) error {
			rolledBack = append(rolledBack, "one")
			return nil
		}})
		oc.Completed(Task{Name: "two", Rollback: func(context.Context) error {
			return errors.New("undo failed")
		}})
		return errors.New("boom")
	})

	result := Run(context.Background(), op, &Context{})
	if result.State != StateFailedRolledBack {
		t.Fatalf("state = %s, want FAILED_ROLLED_BACK", result.State)
	}
	if len(rolledBack) != 1 || rolledBack[0] != "one" {
		t.Fatalf("earlier step not compensated after a rollback failure: %v", rolledBack)
	}
}

func TestLookupOne(t *testing.T) {
	entries := []map[string]any{
		{"name": "HQ", "id": "loc-1"},
		{"name": "Branch", "id": "loc-2"},
	}
	match := func(name string) func(map[string]any) bool {
		return func(entry map[string]any) bool { return entry["name"] == name }
	}

	found, err := NewLookup("location", "HQ", entries, match("HQ")).One()
	if err != nil {
		t.Fatalf("One() error: %v", err)
	}
	if found["id"] != "loc-1" {
		t.Fatalf("wrong entry: %v", found)
	}

	_, err = NewLookup("location", "Warehouse", entries, match("Warehouse")).One()
	if err == nil || !strings.Contains(err.Error(), "No location found matching 'Warehouse'.") {
		t.Fatalf("unexpected not-found error: %v", err)
	}

	dupes := append(entries, map[string]any{"name": "HQ", "id": "loc-3"})
	_, err = NewLookup("location", "HQ", dupes, match("HQ")).One()
	if err == nil || !strings.Contains(err.Error(), "Multiple matches") {
		t.Fatalf("unexpected ambiguity error: %v", err)
	}
}

func TestLookupNoneOrOne(t *testing.T) {
	entries := []map[string]any{{"name": "HQ"}}

	found, err := NewLookup("address", "Nowhere", entries,
		func(map[string]any) bool { return false }).NoneOrOne()
	if err != nil || found != nil {
		t.Fatalf("NoneOrOne() = %v, %v; want nil, nil", found, err)
	}
}
