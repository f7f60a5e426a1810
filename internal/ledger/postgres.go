package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/ucprov/internal/db"
)

// ErrOrganizationNotFound is returned for lookups of unknown tenants.
var ErrOrganizationNotFound = errors.New("organization not found")

// PostgresRepository stores events in the events table.
type PostgresRepository struct {
	conn *db.Connection
}

func NewPostgresRepository(conn *db.Connection) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

func (r *PostgresRepository) Append(ctx context.Context, event Event) (Event, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	_, err := r.conn.Pool.Exec(ctx,
		`INSERT INTO events
		   (id, org_id, occurred_at, actor, platform, data_type, action,
		    job_id, row_num, target, outcome, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID, event.OrgID, event.OccurredAt, event.Actor, event.Platform,
		event.DataType, event.Action, nullUUID(event.JobID), event.RowNum,
		event.Target, event.Outcome, event.Detail)
	if err != nil {
		return Event{}, fmt.Errorf("append event: %w", err)
	}
	return event, nil
}

func (r *PostgresRepository) List(ctx context.Context, orgID uuid.UUID, filter Filter) ([]Event, error) {
	query := strings.Builder{}
	query.WriteString(
		`SELECT id, org_id, occurred_at, actor, platform, data_type, action,
		        job_id, row_num, target, outcome, detail
		 FROM events WHERE org_id = $1`)
	args := []any{orgID}

	addFilter := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		fmt.Fprintf(&query, " AND %s = $%d", column, len(args))
	}
	addFilter("platform", filter.Platform)
	addFilter("data_type", filter.DataType)
	addFilter("action", filter.Action)
	addFilter("outcome", filter.Outcome)

	if filter.JobID != uuid.Nil {
		args = append(args, filter.JobID)
		fmt.Fprintf(&query, " AND job_id = $%d", len(args))
	}

	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		fmt.Fprintf(&query, " AND occurred_at >= $%d", len(args))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		fmt.Fprintf(&query, " AND occurred_at < $%d", len(args))
	}

	if filter.Ascending {
		query.WriteString(" ORDER BY occurred_at ASC, id ASC")
	} else {
		query.WriteString(" ORDER BY occurred_at DESC, id DESC")
	}

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&query, " LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&query, " OFFSET $%d", len(args))
	}

	rows, err := r.conn.Pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var jobID *uuid.UUID
		err := rows.Scan(&event.ID, &event.OrgID, &event.OccurredAt, &event.Actor,
			&event.Platform, &event.DataType, &event.Action, &jobID,
			&event.RowNum, &event.Target, &event.Outcome, &event.Detail)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if jobID != nil {
			event.JobID = *jobID
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// PostgresOrgRepository stores tenants in the organizations table.
type PostgresOrgRepository struct {
	conn *db.Connection
}

func NewPostgresOrgRepository(conn *db.Connection) *PostgresOrgRepository {
	return &PostgresOrgRepository{conn: conn}
}

func (r *PostgresOrgRepository) Create(ctx context.Context, name string) (Organization, error) {
	org := Organization{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := r.conn.Pool.Exec(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		org.ID, org.Name, org.CreatedAt)
	if err != nil {
		return Organization{}, fmt.Errorf("create organization: %w", err)
	}
	return org, nil
}

func (r *PostgresOrgRepository) Get(ctx context.Context, id uuid.UUID) (Organization, error) {
	return r.scanOne(r.conn.Pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM organizations WHERE id = $1`, id))
}

func (r *PostgresOrgRepository) GetByName(ctx context.Context, name string) (Organization, error) {
	return r.scanOne(r.conn.Pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM organizations WHERE name = $1`, name))
}

func (r *PostgresOrgRepository) scanOne(row pgx.Row) (Organization, error) {
	var org Organization
	err := row.Scan(&org.ID, &org.Name, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, ErrOrganizationNotFound
	}
	if err != nil {
		return Organization{}, fmt.Errorf("load organization: %w", err)
	}
	return org, nil
}

func (r *PostgresOrgRepository) List(ctx context.Context) ([]Organization, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT id, name, created_at FROM organizations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}
