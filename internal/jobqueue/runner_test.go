package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/ucprov/internal/faults"
)

// deadlineRepo refuses writes on an expired context, the way a real
// database driver does.
type deadlineRepo struct {
	*MemoryRepository
}

func (r *deadlineRepo) MarkCompleted(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MemoryRepository.MarkCompleted(ctx, id, result)
}

func (r *deadlineRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MemoryRepository.MarkFailed(ctx, id, message)
}

func newTestRunner(t *testing.T) (*Runner, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	runner := NewRunner(repo, 5*time.Second, nil)
	return runner, repo
}

func TestRunnerCompletesJob(t *testing.T) {
	runner, repo := newTestRunner(t)
	runner.Register(KindSubmitRow, func(ctx context.Context, job Job, report func(int, int)) (json.RawMessage, error) {
		report(1, 1)
		return json.RawMessage(`{"ok":true}`), nil
	})

	job, err := runner.Enqueue(context.Background(), Job{OrgID: uuid.New(), Kind: KindSubmitRow})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	runner.Wait()

	stored, err := repo.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Status != StatusSucceeded {
		t.Fatalf("status = %s, want SUCCEEDED", stored.Status)
	}
	if string(stored.Result) != `{"ok":true}` {
		t.Fatalf("result = %s", stored.Result)
	}
	if stored.ProgressPercent() != 100 {
		t.Fatalf("progress = %d, want 100", stored.ProgressPercent())
	}
}

func TestRunnerRecordsFailureMessage(t *testing.T) {
	runner, repo := newTestRunner(t)
	runner.Register(KindSubmitRow, func(ctx context.Context, job Job, report func(int, int)) (json.RawMessage, error) {
		return nil, errors.New("Location 'HQ' does not exist.")
	})

	job, err := runner.Enqueue(context.Background(), Job{OrgID: uuid.New(), Kind: KindSubmitRow})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	runner.Wait()

	stored, _ := repo.Get(context.Background(), job.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
	if stored.Error != "Location 'HQ' does not exist." {
		t.Fatalf("error = %q", stored.Error)
	}
}

func TestRunnerSurvivesPanic(t *testing.T) {
	runner, repo := newTestRunner(t)
	runner.Register(KindSubmitRow, func(ctx context.Context, job Job, report func(int, int)) (json.RawMessage, error) {
		panic("handler bug")
	})

	job, err := runner.Enqueue(context.Background(), Job{OrgID: uuid.New(), Kind: KindSubmitRow})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	runner.Wait()

	stored, _ := repo.Get(context.Background(), job.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED after panic", stored.Status)
	}
}

func TestRunnerTimeoutMarksJobFailed(t *testing.T) {
	repo := &deadlineRepo{MemoryRepository: NewMemoryRepository()}
	runner := NewRunner(repo, 50*time.Millisecond, nil)
	runner.Register(KindSubmitRow, func(ctx context.Context, job Job, report func(int, int)) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	job, err := runner.Enqueue(context.Background(), Job{OrgID: uuid.New(), Kind: KindSubmitRow})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	runner.Wait()

	// The worker context is dead by now; the terminal write must still
	// land, and the deadline detail must not reach the job record.
	stored, err := repo.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED after timeout", stored.Status)
	}
	if stored.Error != faults.GenericUserMessage {
		t.Fatalf("error = %q, want %q", stored.Error, faults.GenericUserMessage)
	}
}

func TestRunnerRejectsUnknownKind(t *testing.T) {
	runner, _ := newTestRunner(t)
	if _, err := runner.Enqueue(context.Background(), Job{Kind: "mystery"}); err == nil {
		t.Fatal("expected error for unregistered job kind")
	}
}

func TestRunnerGroupAggregatesChildren(t *testing.T) {
	runner, repo := newTestRunner(t)
	runner.Register(KindExportSheet, func(ctx context.Context, job Job, report func(int, int)) (json.RawMessage, error) {
		if job.DataType == "broken" {
			return nil, errors.New("vendor listing failed")
		}
		return json.RawMessage(`{}`), nil
	})

	parent, children, err := runner.EnqueueGroup(context.Background(),
		Job{OrgID: uuid.New()},
		[]Job{
			{Kind: KindExportSheet, DataType: "numbers"},
			{Kind: KindExportSheet, DataType: "broken"},
			{Kind: KindExportSheet, DataType: "locations"},
		})
	if err != nil {
		t.Fatalf("EnqueueGroup() error: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("launched %d children, want 3", len(children))
	}
	runner.Wait()

	// One failing data type must not block the others.
	succeeded := 0
	for _, child := range children {
		stored, _ := repo.Get(context.Background(), child.ID)
		if stored.Status == StatusSucceeded {
			succeeded++
		}
	}
	if succeeded != 2 {
		t.Fatalf("succeeded children = %d, want 2", succeeded)
	}

	stored, _ := repo.Get(context.Background(), parent.ID)
	if stored.Status != StatusSucceeded {
		t.Fatalf("parent status = %s, want SUCCEEDED for partial success", stored.Status)
	}
	var summary struct {
		Children int `json:"children"`
		Failed   int `json:"failed"`
	}
	if err := json.Unmarshal(stored.Result, &summary); err != nil {
		t.Fatalf("parent result not decodable: %v", err)
	}
	if summary.Children != 3 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunnerGroupFailsWhenAllChildrenFail(t *testing.T) {
	runner, repo := newTestRunner(t)
	runner.Register(KindExportSheet, func(ctx context.Context, job Job, report func(int, int)) (json.RawMessage, error) {
		return nil, errors.New("nope")
	})

	parent, _, err := runner.EnqueueGroup(context.Background(),
		Job{OrgID: uuid.New()},
		[]Job{{Kind: KindExportSheet, DataType: "numbers"}})
	if err != nil {
		t.Fatalf("EnqueueGroup() error: %v", err)
	}
	runner.Wait()

	stored, _ := repo.Get(context.Background(), parent.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("parent status = %s, want FAILED", stored.Status)
	}
}

func TestRunnerCancelRunningJob(t *testing.T) {
	runner, repo := newTestRunner(t)
	started := make(chan struct{})
	runner.Register(KindExportSheet, func(ctx context.Context, job Job, report func(int, int)) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	job, err := runner.Enqueue(context.Background(), Job{OrgID: uuid.New(), Kind: KindExportSheet})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	<-started

	if err := runner.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	runner.Wait()

	stored, _ := repo.Get(context.Background(), job.ID)
	if stored.Status != StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", stored.Status)
	}
}

func TestRunnerCancelTerminalJobFails(t *testing.T) {
	runner, _ := newTestRunner(t)
	runner.Register(KindSubmitRow, func(ctx context.Context, job Job, report func(int, int)) (json.RawMessage, error) {
		return nil, nil
	})

	job, err := runner.Enqueue(context.Background(), Job{OrgID: uuid.New(), Kind: KindSubmitRow})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	runner.Wait()

	if err := runner.Cancel(context.Background(), job.ID); !errors.Is(err, ErrJobNotRunnable) {
		t.Fatalf("error = %v, want ErrJobNotRunnable", err)
	}
}
