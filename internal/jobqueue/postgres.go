package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/ucprov/internal/db"
	"github.com/rpattn/ucprov/internal/faults"
)

// PostgresRepository stores jobs in the jobs table. Status transitions
// use conditional updates so concurrent workers and cancellation cannot
// double-run a job.
type PostgresRepository struct {
	conn *db.Connection
}

func NewPostgresRepository(conn *db.Connection) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

const jobColumns = `id, org_id, parent_id, kind, platform, data_type, row_num,
	priority, params, status, done, total, result, error, created_at, started_at, finished_at`

func (r *PostgresRepository) Create(ctx context.Context, job Job) (Job, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Priority == 0 {
		job.Priority = DefaultPriority
	}
	job.Status = StatusQueued
	job.CreatedAt = time.Now().UTC()

	_, err := r.conn.Pool.Exec(ctx,
		`INSERT INTO jobs
		   (id, org_id, parent_id, kind, platform, data_type, row_num,
		    priority, params, status, done, total, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID, job.OrgID, nullableID(job.ParentID), job.Kind, job.Platform,
		job.DataType, job.RowNum, job.Priority, job.Params, job.Status,
		job.Done, job.Total, job.CreatedAt)
	if err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	row := r.conn.Pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (r *PostgresRepository) Children(ctx context.Context, parentID uuid.UUID) ([]Job, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE parent_id = $1 ORDER BY created_at`,
		parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID uuid.UUID, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE org_id = $1 ORDER BY created_at DESC LIMIT $2`,
		orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *PostgresRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return r.conditionalUpdate(ctx, id,
		`UPDATE jobs SET status = $2, started_at = now()
		 WHERE id = $1 AND status = $3`,
		StatusRunning, StatusQueued)
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	tag, err := r.conn.Pool.Exec(ctx,
		`UPDATE jobs SET status = $2, result = $3, finished_at = now()
		 WHERE id = $1 AND status = $4`,
		id, StatusSucceeded, result, StatusRunning)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotRunnable
	}
	return nil
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := r.conn.Pool.Exec(ctx,
		`UPDATE jobs SET status = $2, error = $3, finished_at = now()
		 WHERE id = $1 AND status IN ($4, $5)`,
		id, StatusFailed, message, StatusQueued, StatusRunning)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotRunnable
	}
	return nil
}

func (r *PostgresRepository) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Pool.Exec(ctx,
		`UPDATE jobs SET status = $2, finished_at = now()
		 WHERE id = $1 AND status IN ($3, $4)`,
		id, StatusCancelled, StatusQueued, StatusRunning)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotRunnable
	}
	return nil
}

func (r *PostgresRepository) UpdateProgress(ctx context.Context, id uuid.UUID, done, total int) error {
	return r.conditionalUpdate(ctx, id,
		`UPDATE jobs SET done = $2, total = $3
		 WHERE id = $1 AND status = $4`,
		done, total, StatusRunning)
}

func (r *PostgresRepository) conditionalUpdate(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	tag, err := r.conn.Pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotRunnable
	}
	return nil
}

// Sweep removes aged terminal jobs, fails jobs running past their
// timeout and cancels queued jobs whose owning process is long gone.
func (r *PostgresRepository) Sweep(ctx context.Context, policy RetentionPolicy) (int64, error) {
	var removed int64

	tag, err := r.conn.Pool.Exec(ctx,
		`DELETE FROM jobs
		 WHERE (status = $1 AND finished_at < now() - $2::interval)
		    OR (status IN ($3, $4) AND finished_at < now() - $5::interval)`,
		StatusFailed, policy.FailureTTL,
		StatusSucceeded, StatusCancelled, policy.ResultTTL)
	if err != nil {
		return 0, fmt.Errorf("sweep terminal jobs: %w", err)
	}
	removed += tag.RowsAffected()

	if policy.RunningTimeout > 0 {
		_, err = r.conn.Pool.Exec(ctx,
			`UPDATE jobs SET status = $1, error = $2, finished_at = now()
			 WHERE status = $3 AND started_at < now() - $4::interval`,
			StatusFailed, faults.GenericUserMessage,
			StatusRunning, policy.RunningTimeout)
		if err != nil {
			return removed, fmt.Errorf("sweep overrunning jobs: %w", err)
		}
	}

	_, err = r.conn.Pool.Exec(ctx,
		`UPDATE jobs SET status = $1, finished_at = now()
		 WHERE status = $2 AND created_at < now() - $3::interval`,
		StatusCancelled, StatusQueued, policy.QueuedTTL)
	if err != nil {
		return removed, fmt.Errorf("sweep stale queued jobs: %w", err)
	}
	return removed, nil
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func scanJob(row pgx.Row) (Job, error) {
	var job Job
	var parentID *uuid.UUID
	err := row.Scan(&job.ID, &job.OrgID, &parentID, &job.Kind, &job.Platform,
		&job.DataType, &job.RowNum, &job.Priority, &job.Params, &job.Status,
		&job.Done, &job.Total, &job.Result, &job.Error, &job.CreatedAt,
		&job.StartedAt, &job.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("scan job: %w", err)
	}
	if parentID != nil {
		job.ParentID = *parentID
	}
	return job, nil
}

func scanJobs(rows pgx.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
