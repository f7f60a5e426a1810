package rowstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/ucprov/internal/faults"
)

type memorySheet struct {
	rows      map[int]json.RawMessage
	expiresAt time.Time
}

// MemoryStore keeps rows in process memory. Suitable for tests and
// single-instance deployments; rows do not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	ttl    time.Duration
	sheets map[string]memorySheet

	// now is swappable for TTL tests.
	now func() time.Time
}

func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		ttl:    cfg.TTL,
		sheets: make(map[string]memorySheet),
		now:    time.Now,
	}
}

func (s *MemoryStore) SaveSheet(_ context.Context, jobID uuid.UUID, dataType string, rows map[int]json.RawMessage) error {
	copied := make(map[int]json.RawMessage, len(rows))
	for rowNum, row := range rows {
		copied[rowNum] = append(json.RawMessage(nil), row...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[sheetKey(jobID, dataType)] = memorySheet{
		rows:      copied,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Sheet(_ context.Context, jobID uuid.UUID, dataType string) (map[int]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sheet, ok := s.sheets[sheetKey(jobID, dataType)]
	if !ok || s.now().After(sheet.expiresAt) {
		return map[int]json.RawMessage{}, nil
	}

	rows := make(map[int]json.RawMessage, len(sheet.rows))
	for rowNum, row := range sheet.rows {
		rows[rowNum] = row
	}
	return rows, nil
}

func (s *MemoryStore) Row(_ context.Context, jobID uuid.UUID, dataType string, rowNum int) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sheet, ok := s.sheets[sheetKey(jobID, dataType)]
	if !ok || s.now().After(sheet.expiresAt) {
		return nil, faults.ErrRowNotFound
	}
	row, ok := sheet.rows[rowNum]
	if !ok {
		return nil, faults.ErrRowNotFound
	}
	return row, nil
}

func (s *MemoryStore) Delete(_ context.Context, jobID uuid.UUID, dataType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sheets, sheetKey(jobID, dataType))
	return nil
}
