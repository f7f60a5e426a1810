package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestClientsResolveFromStore(t *testing.T) {
	repo := NewMemoryRepository()
	orgID := uuid.New()
	err := repo.Upsert(context.Background(), Credential{
		OrgID:    orgID,
		Platform: "WBXC",
		BaseURL:  "https://api.example.com/v1",
		Token:    "secret",
	})
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	clients := NewClients(repo)
	if _, err := clients.For(context.Background(), orgID.String(), "wbxc"); err != nil {
		t.Fatalf("For() error: %v", err)
	}

	// Platforms are matched case-insensitively but stored lower-cased.
	creds, err := repo.ListByOrg(context.Background(), orgID)
	if err != nil {
		t.Fatalf("ListByOrg() error: %v", err)
	}
	if len(creds) != 1 || creds[0].Platform != "wbxc" {
		t.Fatalf("creds = %+v", creds)
	}
}

func TestClientsUnconfiguredPlatform(t *testing.T) {
	clients := NewClients(NewMemoryRepository())
	_, err := clients.For(context.Background(), uuid.New().String(), "zoom")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
}

func TestClientsInvalidOrgID(t *testing.T) {
	clients := NewClients(NewMemoryRepository())
	if _, err := clients.For(context.Background(), "not-a-uuid", "zoom"); err == nil {
		t.Fatal("invalid organization id accepted")
	}
}

func TestUpsertRotatesToken(t *testing.T) {
	repo := NewMemoryRepository()
	orgID := uuid.New()
	ctx := context.Background()

	_ = repo.Upsert(ctx, Credential{OrgID: orgID, Platform: "zoom", Token: "old"})
	_ = repo.Upsert(ctx, Credential{OrgID: orgID, Platform: "zoom", Token: "new"})

	cred, err := repo.Get(ctx, orgID, "zoom")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if cred.Token != "new" {
		t.Fatalf("token = %q, want the rotated value", cred.Token)
	}
}
