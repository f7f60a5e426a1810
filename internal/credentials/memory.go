package credentials

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory credential store for tests and
// single-process development.
type MemoryRepository struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{creds: make(map[string]Credential)}
}

func credKey(orgID uuid.UUID, platform string) string {
	return orgID.String() + "/" + strings.ToLower(platform)
}

func (r *MemoryRepository) Upsert(_ context.Context, cred Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred.Platform = strings.ToLower(cred.Platform)
	r.creds[credKey(cred.OrgID, cred.Platform)] = cred
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, orgID uuid.UUID, platform string) (Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.creds[credKey(orgID, platform)]
	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrNotConfigured, platform)
	}
	return cred, nil
}

func (r *MemoryRepository) ListByOrg(_ context.Context, orgID uuid.UUID) ([]Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var creds []Credential
	for _, cred := range r.creds {
		if cred.OrgID == orgID {
			creds = append(creds, cred)
		}
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Platform < creds[j].Platform })
	return creds, nil
}
