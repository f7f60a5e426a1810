// Package ledger records what the provisioning engine did: one event
// per finished bulk operation plus notable lifecycle actions (uploads,
// exports, cancellations). Events are append-only and queried with
// simple filters for the activity views.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcomes recorded against events.
const (
	OutcomeSucceeded = "SUCCEEDED"
	OutcomeFailed    = "FAILED"
	OutcomeInfo      = "INFO"
)

// Event is one ledger entry.
type Event struct {
	ID         uuid.UUID `json:"id"`
	OrgID      uuid.UUID `json:"org_id"`
	OccurredAt time.Time `json:"occurred_at"`
	// Actor is the user (or "system") that triggered the action.
	Actor    string `json:"actor"`
	Platform string `json:"platform,omitempty"`
	DataType string `json:"data_type,omitempty"`
	Action   string `json:"action,omitempty"`
	// JobID and RowNum tie operation events back to their submission.
	JobID  uuid.UUID `json:"job_id,omitempty"`
	RowNum int       `json:"row_num,omitempty"`
	// Target identifies the affected resource in vendor terms, e.g. a
	// phone number or an address name.
	Target  string `json:"target,omitempty"`
	Outcome string `json:"outcome"`
	// Detail carries the user-facing message for failures.
	Detail string `json:"detail,omitempty"`
}

// Filter narrows a ledger listing. Zero values mean "no constraint".
type Filter struct {
	Platform string
	DataType string
	Action   string
	Outcome  string
	JobID    uuid.UUID
	Since    time.Time
	Until    time.Time
	// Ascending orders oldest-first; the default is newest-first.
	Ascending bool
	Limit     int
	Offset    int
}

// Repository is the event store contract.
type Repository interface {
	Append(ctx context.Context, event Event) (Event, error)
	List(ctx context.Context, orgID uuid.UUID, filter Filter) ([]Event, error)
}

// Organization is one tenant of the provisioning engine.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// OrgRepository manages tenants.
type OrgRepository interface {
	Create(ctx context.Context, name string) (Organization, error)
	Get(ctx context.Context, id uuid.UUID) (Organization, error)
	GetByName(ctx context.Context, name string) (Organization, error)
	List(ctx context.Context) ([]Organization, error)
}
