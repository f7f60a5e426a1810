// Package registry holds the explicit mapping from (platform, data type,
// action) to schemas and bulk operations. The registry is assembled once
// at startup by the platform packages; nothing registers itself as an
// import side effect, so the full surface is visible in one place.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rpattn/ucprov/internal/faults"
	"github.com/rpattn/ucprov/internal/ops"
	"github.com/rpattn/ucprov/internal/platforms/api"
	"github.com/rpattn/ucprov/internal/rowmodel"
)

// Exporter lists every object of a data type from the vendor API as
// records, plus per-object messages for entries it could not build.
type Exporter func(ctx context.Context, client api.Client) ([]*rowmodel.Record, []string, error)

// Entry binds one schema to its registered bulk operations and
// exporter.
type Entry struct {
	Schema     *rowmodel.Schema
	operations map[rowmodel.Action]ops.Operation
	exporter   Exporter
}

// Registry is the lookup table for every registered data type.
type Registry struct {
	entries []*Entry
	index   map[string]*Entry
}

func New() *Registry {
	return &Registry{index: make(map[string]*Entry)}
}

func key(platform, dataType string) string {
	return strings.ToLower(platform) + "/" + strings.ToLower(dataType)
}

// Register adds a schema. Duplicate (platform, data type) pairs are a
// wiring bug and fail loudly at startup.
func (r *Registry) Register(schema *rowmodel.Schema) (*Entry, error) {
	k := key(schema.Platform, schema.DataType)
	if _, exists := r.index[k]; exists {
		return nil, fmt.Errorf("data type %s already registered", k)
	}
	entry := &Entry{
		Schema:     schema,
		operations: make(map[rowmodel.Action]ops.Operation),
	}
	r.entries = append(r.entries, entry)
	r.index[k] = entry
	return entry, nil
}

// Handle attaches an operation for one action. The action must be one
// the schema declares for bulk submission.
func (e *Entry) Handle(action rowmodel.Action, op ops.Operation) (*Entry, error) {
	if !e.Schema.AllowsAction(action) || action == rowmodel.ActionIgnore {
		return nil, fmt.Errorf("schema %s does not declare bulk action %s",
			e.Schema.DataType, action)
	}
	if _, exists := e.operations[action]; exists {
		return nil, fmt.Errorf("action %s already registered for %s",
			action, e.Schema.DataType)
	}
	e.operations[action] = op
	return e, nil
}

// ExportWith attaches the exporter used for export and browse.
func (e *Entry) ExportWith(exporter Exporter) (*Entry, error) {
	if !e.Schema.SupportsOp(rowmodel.SupportsExport) && !e.Schema.SupportsOp(rowmodel.SupportsBrowse) {
		return nil, fmt.Errorf("schema %s supports neither export nor browse", e.Schema.DataType)
	}
	if e.exporter != nil {
		return nil, fmt.Errorf("exporter already registered for %s", e.Schema.DataType)
	}
	e.exporter = exporter
	return e, nil
}

// Exporter resolves the exporter for a data type.
func (r *Registry) Exporter(platform, dataType string) (Exporter, *rowmodel.Schema, error) {
	entry, ok := r.index[key(platform, dataType)]
	if !ok {
		return nil, nil, faults.NewBulkOpFailed("Data type '%s' is not supported.", dataType)
	}
	if entry.exporter == nil {
		return nil, nil, faults.NewBulkOpFailed("Export is not supported for %s.", entry.Schema.Title)
	}
	return entry.exporter, entry.Schema, nil
}

// Schema resolves a data type by internal name, case-insensitively.
func (r *Registry) Schema(platform, dataType string) (*rowmodel.Schema, bool) {
	entry, ok := r.index[key(platform, dataType)]
	if !ok {
		return nil, false
	}
	return entry.Schema, true
}

// SchemaForSheet resolves a worksheet name against a platform's
// uploadable data types. Both internal names and display titles match,
// ignoring case.
func (r *Registry) SchemaForSheet(platform, sheetName string) (*rowmodel.Schema, bool) {
	for _, entry := range r.entries {
		if strings.EqualFold(entry.Schema.Platform, platform) &&
			entry.Schema.SupportsOp(rowmodel.SupportsUpload) &&
			entry.Schema.MatchesSheet(sheetName) {
			return entry.Schema, true
		}
	}
	return nil, false
}

// Operation resolves the bulk operation for an action. Missing data
// types and unregistered actions surface as user-facing failures since
// they reach this point via submitted workbook rows.
func (r *Registry) Operation(platform, dataType string, action rowmodel.Action) (ops.Operation, error) {
	entry, ok := r.index[key(platform, dataType)]
	if !ok {
		return nil, faults.NewBulkOpFailed("Data type '%s' is not supported.", dataType)
	}
	op, ok := entry.operations[action]
	if !ok {
		return nil, faults.NewBulkOpFailed("Bulk %s is not supported for %s.",
			action, entry.Schema.Title)
	}
	return op, nil
}

// Schemas returns every schema for a platform, in registration order.
func (r *Registry) Schemas(platform string) []*rowmodel.Schema {
	var schemas []*rowmodel.Schema
	for _, entry := range r.entries {
		if strings.EqualFold(entry.Schema.Platform, platform) {
			schemas = append(schemas, entry.Schema)
		}
	}
	return schemas
}

// Platforms returns the distinct platform names, sorted.
func (r *Registry) Platforms() []string {
	seen := make(map[string]bool)
	var platforms []string
	for _, entry := range r.entries {
		name := strings.ToLower(entry.Schema.Platform)
		if !seen[name] {
			seen[name] = true
			platforms = append(platforms, name)
		}
	}
	sort.Strings(platforms)
	return platforms
}
