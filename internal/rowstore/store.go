// Package rowstore persists validated workbook rows between upload and
// submission. Rows live under a (job, data type) key with one entry per
// worksheet row number, and every write refreshes a TTL so abandoned
// uploads age out on their own.
//
// Three backends share one interface: Redis (the default), Postgres and
// an in-memory store for single-process deployments and tests. Rows are
// stored as opaque JSON; callers serialize records on the way in and
// rebind schemas on the way out.
package rowstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Store is the row persistence contract.
type Store interface {
	// SaveSheet writes every row of one worksheet under the job/data type
	// key, replacing any previous upload, and (re)starts the TTL.
	SaveSheet(ctx context.Context, jobID uuid.UUID, dataType string, rows map[int]json.RawMessage) error

	// Sheet returns all stored rows for the job/data type, keyed by
	// worksheet row number. Missing or expired sheets return an empty map.
	Sheet(ctx context.Context, jobID uuid.UUID, dataType string) (map[int]json.RawMessage, error)

	// Row returns one stored row. Missing and expired rows both return
	// faults.ErrRowNotFound; callers cannot tell the difference and should
	// ask the operator to re-upload either way.
	Row(ctx context.Context, jobID uuid.UUID, dataType string, rowNum int) (json.RawMessage, error)

	// Delete removes a whole stored sheet.
	Delete(ctx context.Context, jobID uuid.UUID, dataType string) error
}

// Config selects and tunes a backend.
type Config struct {
	// TTL applied to every sheet write.
	TTL time.Duration
}

func sheetKey(jobID uuid.UUID, dataType string) string {
	return jobID.String() + ":" + dataType
}
