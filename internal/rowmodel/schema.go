package rowmodel

import (
	"strings"
	"sync"
)

// Operations a data type can support.
const (
	SupportsUpload = "upload"
	SupportsBulk   = "bulk"
	SupportsExport = "export"
	SupportsBrowse = "browse"
)

// Schema declares the shape of one workbook row for a (platform, data
// type) pair. Schemas are built once at startup and never mutated.
type Schema struct {
	// Platform is the owning tool: "wbxc", "msteams", "zoom", "five9".
	Platform string
	// DataType is the internal name, matched case-insensitively against
	// worksheet names.
	DataType string
	// Title is the display name, also accepted as a worksheet name and
	// used for template/export sheet titles.
	Title string
	// Description is shown on the data type reference page.
	Description string
	// Supports lists the operations available for this type.
	Supports []string
	// BulkActions lists the actions a bulk submission may request.
	// IGNORE is always accepted in addition to these.
	BulkActions []Action
	// Fields in declaration (and worksheet column) order. The Action
	// column is implicit and not listed here.
	Fields []Field
	// TargetField names the field whose value identifies the affected
	// resource in activity events (a phone number, an address name).
	TargetField string
	// UploadPriority orders worksheet parsing within one workbook when a
	// type's rows must load before another's. Lower parses first; the
	// default of zero keeps workbook order.
	UploadPriority int

	docOnce   sync.Once
	docFields []DocField
}

// Field returns the declared field with the given internal name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// SupportsOp reports whether the schema supports the named operation.
func (s *Schema) SupportsOp(op string) bool {
	for _, supported := range s.Supports {
		if strings.EqualFold(supported, op) {
			return true
		}
	}
	return false
}

// AllowsAction reports whether a bulk submission may request the action.
func (s *Schema) AllowsAction(action Action) bool {
	if action == ActionIgnore {
		return true
	}
	for _, allowed := range s.BulkActions {
		if allowed == action {
			return true
		}
	}
	return false
}

// MatchesSheet reports whether a worksheet name refers to this data type.
// Both the internal name and the display title match, ignoring case.
func (s *Schema) MatchesSheet(sheetName string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sheetName))
	return normalized == strings.ToLower(s.DataType) ||
		normalized == strings.ToLower(s.Title)
}
