// Package api provides the thin REST surface the bulk operations use to
// talk to vendor platforms. Each client is already scoped to one
// organization's tenant; operations never see credentials.
package api

import (
	"context"
	"fmt"
	"net/url"
)

// ServerFault is a non-2xx response from a vendor API. Operations
// inspect the status code to turn known vendor errors into friendly
// messages; anything unhandled collapses to the generic failure text.
type ServerFault struct {
	StatusCode int
	Body       string
}

func (e *ServerFault) Error() string {
	return fmt.Sprintf("vendor API returned %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is a ServerFault with the given status.
func IsStatus(err error, statusCode int) bool {
	fault, ok := AsServerFault(err)
	return ok && fault.StatusCode == statusCode
}

// Client is the per-tenant vendor API surface.
type Client interface {
	// Get fetches a single resource.
	Get(ctx context.Context, path string, query url.Values) (map[string]any, error)
	// List fetches a collection, following pagination to exhaustion.
	List(ctx context.Context, path string, query url.Values) ([]map[string]any, error)
	// Create posts a new resource and returns the vendor's representation.
	Create(ctx context.Context, path string, payload map[string]any) (map[string]any, error)
	// Update patches an existing resource.
	Update(ctx context.Context, path string, payload map[string]any) (map[string]any, error)
	// Delete removes a resource.
	Delete(ctx context.Context, path string) error
}

// Clients resolves the vendor client for one organization and platform.
// Implementations own token refresh and per-tenant base URLs.
type Clients interface {
	For(ctx context.Context, orgID string, platform string) (Client, error)
}
