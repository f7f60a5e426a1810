package rowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/ucprov/internal/db"
	"github.com/rpattn/ucprov/internal/faults"
)

// PostgresStore keeps rows in the stored_rows table with an explicit
// expires_at column. Expiry is enforced on read; Sweep removes aged rows
// so the table does not grow without bound.
type PostgresStore struct {
	conn *db.Connection
	cfg  Config
}

func NewPostgresStore(conn *db.Connection, cfg Config) *PostgresStore {
	return &PostgresStore{conn: conn, cfg: cfg}
}

func (s *PostgresStore) SaveSheet(ctx context.Context, jobID uuid.UUID, dataType string, rows map[int]json.RawMessage) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM stored_rows WHERE job_id = $1 AND data_type = $2`,
			jobID, dataType)
		if err != nil {
			return fmt.Errorf("clear previous sheet: %w", err)
		}

		for rowNum, row := range rows {
			_, err := tx.Exec(ctx,
				`INSERT INTO stored_rows (job_id, data_type, row_num, payload, expires_at)
				 VALUES ($1, $2, $3, $4, now() + $5)`,
				jobID, dataType, rowNum, row, s.cfg.TTL)
			if err != nil {
				return fmt.Errorf("insert row %d: %w", rowNum, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Sheet(ctx context.Context, jobID uuid.UUID, dataType string) (map[int]json.RawMessage, error) {
	rows, err := s.conn.Pool.Query(ctx,
		`SELECT row_num, payload
		 FROM stored_rows
		 WHERE job_id = $1 AND data_type = $2 AND expires_at > now()`,
		jobID, dataType)
	if err != nil {
		return nil, fmt.Errorf("load sheet: %w", err)
	}
	defer rows.Close()

	sheet := make(map[int]json.RawMessage)
	for rows.Next() {
		var rowNum int
		var payload json.RawMessage
		if err := rows.Scan(&rowNum, &payload); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sheet[rowNum] = payload
	}
	return sheet, rows.Err()
}

func (s *PostgresStore) Row(ctx context.Context, jobID uuid.UUID, dataType string, rowNum int) (json.RawMessage, error) {
	var payload json.RawMessage
	err := s.conn.Pool.QueryRow(ctx,
		`SELECT payload
		 FROM stored_rows
		 WHERE job_id = $1 AND data_type = $2 AND row_num = $3 AND expires_at > now()`,
		jobID, dataType, rowNum).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, faults.ErrRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load row %d: %w", rowNum, err)
	}
	return payload, nil
}

func (s *PostgresStore) Delete(ctx context.Context, jobID uuid.UUID, dataType string) error {
	_, err := s.conn.Pool.Exec(ctx,
		`DELETE FROM stored_rows WHERE job_id = $1 AND data_type = $2`,
		jobID, dataType)
	if err != nil {
		return fmt.Errorf("delete sheet: %w", err)
	}
	return nil
}

// Sweep removes expired rows. Called periodically by the server.
func (s *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.conn.Pool.Exec(ctx,
		`DELETE FROM stored_rows WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("sweep expired rows: %w", err)
	}
	return tag.RowsAffected(), nil
}
