// Package credentials stores per-tenant vendor API access: which base
// URL and token to use for each (organization, platform) pair. It backs
// the client factory the dispatch and export services resolve vendors
// through.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rpattn/ucprov/internal/platforms/api"
)

// ErrNotConfigured is returned when an organization has no credential
// for the requested platform.
var ErrNotConfigured = errors.New("platform credentials not configured")

// Credential is one organization's access to one vendor platform.
// Tokens are stored as provided; rotation happens by upserting.
type Credential struct {
	OrgID    uuid.UUID `json:"org_id"`
	Platform string    `json:"platform"`
	BaseURL  string    `json:"base_url"`
	Token    string    `json:"-"`
}

// Repository is the credential store contract.
type Repository interface {
	Upsert(ctx context.Context, cred Credential) error
	Get(ctx context.Context, orgID uuid.UUID, platform string) (Credential, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]Credential, error)
}

// Clients resolves vendor API clients from stored credentials.
type Clients struct {
	repo Repository
}

func NewClients(repo Repository) *Clients {
	return &Clients{repo: repo}
}

func (c *Clients) For(ctx context.Context, orgID string, platform string) (api.Client, error) {
	id, err := uuid.Parse(orgID)
	if err != nil {
		return nil, fmt.Errorf("invalid organization id %q: %w", orgID, err)
	}
	cred, err := c.repo.Get(ctx, id, platform)
	if err != nil {
		return nil, err
	}
	return api.NewHTTPClient(cred.BaseURL, cred.Token), nil
}
