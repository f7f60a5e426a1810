package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func seedEvents(t *testing.T, repo *MemoryRepository, orgID uuid.UUID) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	events := []Event{
		{OrgID: orgID, OccurredAt: base, Platform: "wbxc", DataType: "numbers",
			Action: "CREATE", Outcome: OutcomeSucceeded, Target: "+15550001"},
		{OrgID: orgID, OccurredAt: base.Add(time.Minute), Platform: "wbxc", DataType: "numbers",
			Action: "CREATE", Outcome: OutcomeFailed, Detail: "duplicate number"},
		{OrgID: orgID, OccurredAt: base.Add(2 * time.Minute), Platform: "msteams",
			DataType: "emergency_addresses", Action: "DELETE", Outcome: OutcomeSucceeded},
	}
	for _, event := range events {
		if _, err := repo.Append(ctx, event); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}
}

func TestListDefaultsNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	orgID := uuid.New()
	seedEvents(t, repo, orgID)

	events, err := repo.List(context.Background(), orgID, Filter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Platform != "msteams" {
		t.Fatalf("newest event first, got %s", events[0].Platform)
	}

	ascending, err := repo.List(context.Background(), orgID, Filter{Ascending: true})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if ascending[0].Target != "+15550001" {
		t.Fatalf("oldest event first, got %v", ascending[0])
	}
}

func TestListFilters(t *testing.T) {
	repo := NewMemoryRepository()
	orgID := uuid.New()
	seedEvents(t, repo, orgID)

	events, err := repo.List(context.Background(), orgID, Filter{
		Platform: "wbxc",
		Outcome:  OutcomeFailed,
	})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(events) != 1 || events[0].Detail != "duplicate number" {
		t.Fatalf("filter returned %v", events)
	}
}

func TestListScopedToOrganization(t *testing.T) {
	repo := NewMemoryRepository()
	orgA, orgB := uuid.New(), uuid.New()
	seedEvents(t, repo, orgA)

	events, err := repo.List(context.Background(), orgB, Filter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events leaked across tenants: %v", events)
	}
}

func TestListTimeWindowAndPaging(t *testing.T) {
	repo := NewMemoryRepository()
	orgID := uuid.New()
	seedEvents(t, repo, orgID)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events, err := repo.List(context.Background(), orgID, Filter{
		Since:     base.Add(30 * time.Second),
		Until:     base.Add(90 * time.Second),
		Ascending: true,
	})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(events) != 1 || events[0].Outcome != OutcomeFailed {
		t.Fatalf("time window returned %v", events)
	}

	paged, err := repo.List(context.Background(), orgID, Filter{
		Ascending: true, Limit: 1, Offset: 1,
	})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(paged) != 1 || paged[0].Outcome != OutcomeFailed {
		t.Fatalf("paging returned %v", paged)
	}
}

func TestAppendFillsDefaults(t *testing.T) {
	repo := NewMemoryRepository()
	event, err := repo.Append(context.Background(), Event{OrgID: uuid.New(), Outcome: OutcomeInfo})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if event.ID == uuid.Nil {
		t.Error("event ID not assigned")
	}
	if event.OccurredAt.IsZero() {
		t.Error("occurred_at not assigned")
	}
}

func TestOrgRepository(t *testing.T) {
	repo := NewMemoryOrgRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, "acme")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	byName, err := repo.GetByName(ctx, "acme")
	if err != nil || byName.ID != created.ID {
		t.Fatalf("GetByName() = %v, %v", byName, err)
	}

	if _, err := repo.Get(ctx, uuid.New()); err != ErrOrganizationNotFound {
		t.Fatalf("error = %v, want ErrOrganizationNotFound", err)
	}
}
