package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory event store for tests and
// single-process deployments.
type MemoryRepository struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Append(_ context.Context, event Event) (Event, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return event, nil
}

func (r *MemoryRepository) List(_ context.Context, orgID uuid.UUID, filter Filter) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Event
	for _, event := range r.events {
		if event.OrgID != orgID {
			continue
		}
		if filter.Platform != "" && event.Platform != filter.Platform {
			continue
		}
		if filter.DataType != "" && event.DataType != filter.DataType {
			continue
		}
		if filter.Action != "" && event.Action != filter.Action {
			continue
		}
		if filter.Outcome != "" && event.Outcome != filter.Outcome {
			continue
		}
		if filter.JobID != uuid.Nil && event.JobID != filter.JobID {
			continue
		}
		if !filter.Since.IsZero() && event.OccurredAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && !event.OccurredAt.Before(filter.Until) {
			continue
		}
		matched = append(matched, event)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if filter.Ascending {
			return matched[i].OccurredAt.Before(matched[j].OccurredAt)
		}
		return matched[j].OccurredAt.Before(matched[i].OccurredAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// MemoryOrgRepository is an in-memory tenant store for tests.
type MemoryOrgRepository struct {
	mu   sync.Mutex
	orgs []Organization
}

func NewMemoryOrgRepository() *MemoryOrgRepository {
	return &MemoryOrgRepository{}
}

func (r *MemoryOrgRepository) Create(_ context.Context, name string) (Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	org := Organization{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	r.orgs = append(r.orgs, org)
	return org, nil
}

func (r *MemoryOrgRepository) Get(_ context.Context, id uuid.UUID) (Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, org := range r.orgs {
		if org.ID == id {
			return org, nil
		}
	}
	return Organization{}, ErrOrganizationNotFound
}

func (r *MemoryOrgRepository) GetByName(_ context.Context, name string) (Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, org := range r.orgs {
		if org.Name == name {
			return org, nil
		}
	}
	return Organization{}, ErrOrganizationNotFound
}

func (r *MemoryOrgRepository) List(_ context.Context) ([]Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	orgs := append([]Organization(nil), r.orgs...)
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}
