package rowmodel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rpattn/ucprov/internal/faults"
)

// NotFound marks a required field that was absent from an API object
// during export. It is written to the workbook verbatim so the operator
// can see exactly which values the vendor did not return.
const NotFound = "NOTFOUND"

// Record is one validated workbook row bound to its schema. Records are
// immutable after construction; WithAction returns a revalidated copy.
type Record struct {
	schema *Schema
	action Action
	values map[string]string
	nested map[string]map[string]string
	groups map[string][]string
}

// ParseRow converts one worksheet row (header -> cell value) into a
// validated Record. Validation stops at the first failing field, in
// declaration order, so each bad row surfaces exactly one message.
func ParseRow(schema *Schema, row map[string]string) (*Record, error) {
	rawAction, ok := lookupHeader(row, ActionColumn)
	if !ok {
		return nil, faults.NewConversionError("Required column '%s' not found.", ActionColumn)
	}
	action, err := ParseAction(rawAction)
	if err != nil {
		return nil, err
	}

	record := &Record{
		schema: schema,
		action: action,
		values: make(map[string]string),
		nested: make(map[string]map[string]string),
		groups: make(map[string][]string),
	}

	for _, field := range schema.Fields {
		switch field.Kind {
		case KindNested:
			record.nested[field.Name] = collectNested(row, field.WBKey)
		case KindGroup:
			record.groups[field.Name] = collectGroup(row, field.WBKey)
		default:
			// Internal-only fields never appear in worksheets; they are
			// populated by SafeBuild from API objects.
			if field.WBKey == "" {
				record.values[field.Name] = ""
				continue
			}
			value, ok := lookupHeader(row, field.WBKey)
			if !ok {
				if field.Required {
					return nil, faults.NewConversionError(
						"Required column '%s' not found.", field.WBKey)
				}
				record.values[field.Name] = ""
				continue
			}
			stored, err := convertCell(field, strings.TrimSpace(value))
			if err != nil {
				return nil, faults.NewConversionError("'%s' %s", field.displayName(), err)
			}
			record.values[field.Name] = stored
		}
	}

	if err := record.validate(); err != nil {
		return nil, err
	}
	return record, nil
}

func convertCell(field Field, value string) (string, error) {
	if field.Kind == KindBool {
		return normalizeYN(value, field.Required)
	}
	return field.canonicalize(value)
}

// collectNested gathers every dotted column under the prefix, keeping the
// full header (prefix included) as the stored key.
func collectNested(row map[string]string, prefix string) map[string]string {
	nested := make(map[string]string)
	needle := strings.ToLower(prefix) + "."
	for header, value := range row {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(header)), needle) {
			nested[strings.TrimSpace(header)] = strings.TrimSpace(value)
		}
	}
	return nested
}

// collectGroup gathers "Base 1", "Base 2", ... columns into an ordered
// list. Blank cells are skipped so gaps in numbering do not matter.
func collectGroup(row map[string]string, base string) []string {
	pattern := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(base) + `\s+(\d+)$`)

	type indexed struct {
		index int
		value string
	}
	var found []indexed
	for header, value := range row {
		match := pattern.FindStringSubmatch(strings.TrimSpace(header))
		if match == nil {
			continue
		}
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		index, _ := strconv.Atoi(match[1])
		found = append(found, indexed{index: index, value: trimmed})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })

	values := make([]string, 0, len(found))
	for _, entry := range found {
		values = append(values, entry.value)
	}
	return values
}

// validate enforces the action-conditional constraints. Runs on parse and
// again whenever the action changes between upload and submission.
func (r *Record) validate() error {
	if !r.schema.AllowsAction(r.action) {
		return faults.NewConversionError(
			"Action '%s' is not supported for %s.", r.action, r.schema.Title)
	}
	for _, field := range r.schema.Fields {
		for _, required := range field.RequiredFor {
			if required == r.action && r.fieldEmpty(field) {
				return faults.NewConversionError(
					"'%s' is required for %s operation.", field.displayName(), r.action)
			}
		}
	}
	return nil
}

func (r *Record) fieldEmpty(field Field) bool {
	switch field.Kind {
	case KindNested:
		return len(r.nested[field.Name]) == 0
	case KindGroup:
		return len(r.groups[field.Name]) == 0
	default:
		return r.values[field.Name] == ""
	}
}

// Schema returns the schema the record was parsed against.
func (r *Record) Schema() *Schema { return r.schema }

// Action returns the action requested for the row.
func (r *Record) Action() Action { return r.action }

// Get returns the stored workbook value of a simple field.
func (r *Record) Get(name string) string { return r.values[name] }

// GetBool returns the payload form of a workbook boolean field:
// true, false or nil when unset.
func (r *Record) GetBool(name string) any { return YNToBool(r.values[name]) }

// Group returns the ordered values of a repeating field.
func (r *Record) Group(name string) []string {
	return append([]string(nil), r.groups[name]...)
}

// Nested returns the dotted-column values of a nested field.
func (r *Record) Nested(name string) map[string]string {
	out := make(map[string]string, len(r.nested[name]))
	for key, value := range r.nested[name] {
		out[key] = value
	}
	return out
}

// WithAction returns a copy of the record with the action replaced and
// the action-conditional constraints re-checked.
func (r *Record) WithAction(action Action) (*Record, error) {
	clone := &Record{
		schema: r.schema,
		action: action,
		values: make(map[string]string, len(r.values)),
		nested: make(map[string]map[string]string, len(r.nested)),
		groups: make(map[string][]string, len(r.groups)),
	}
	for name, value := range r.values {
		clone.values[name] = value
	}
	for name, nested := range r.nested {
		clone.nested[name] = make(map[string]string, len(nested))
		for key, value := range nested {
			clone.nested[name][key] = value
		}
	}
	for name, group := range r.groups {
		clone.groups[name] = append([]string(nil), group...)
	}
	if err := clone.validate(); err != nil {
		return nil, err
	}
	return clone, nil
}

// SafeBuild converts an API object into a Record for browse and export,
// never failing the whole object: a missing required field or an
// unconvertible value is stored as NOTFOUND and logged, so one bad
// vendor response cannot sink an export sheet. The action defaults to
// IGNORE. Later override maps win over earlier ones and the base object.
func SafeBuild(schema *Schema, obj map[string]any, overrides ...map[string]any) *Record {
	merged := make(map[string]any, len(obj))
	for key, value := range obj {
		merged[key] = value
	}
	for _, override := range overrides {
		for key, value := range override {
			merged[key] = value
		}
	}

	record := &Record{
		schema: schema,
		action: ActionIgnore,
		values: make(map[string]string),
		nested: make(map[string]map[string]string),
		groups: make(map[string][]string),
	}

	for _, field := range schema.Fields {
		value, ok := lookupAny(merged, field.Name)
		switch field.Kind {
		case KindNested:
			if nested, isMap := value.(map[string]any); ok && isMap {
				record.nested[field.Name] = Flatten(nested, field.WBKey)
			} else {
				record.nested[field.Name] = make(map[string]string)
			}
		case KindGroup:
			var values []string
			if list, isList := value.([]any); ok && isList {
				for _, item := range list {
					values = append(values, ToWBString(item))
				}
			}
			record.groups[field.Name] = values
		default:
			if !ok {
				if field.Required {
					slog.Warn("required field missing from API object",
						"data_type", schema.DataType, "field", field.Name)
					record.values[field.Name] = NotFound
				} else {
					record.values[field.Name] = ""
				}
				continue
			}
			stored, err := convertCell(field, ToWBString(value))
			if err != nil {
				slog.Warn("API object value failed conversion",
					"data_type", schema.DataType, "field", field.Name, "error", err)
				stored = NotFound
			}
			record.values[field.Name] = stored
		}
	}
	return record
}

// WorkbookRow renders the record in worksheet form: one header -> cell
// map including the Action column. Internal-only fields (empty WBKey)
// are omitted; nested fields expand to their dotted columns and
// repeating fields to numbered columns.
func (r *Record) WorkbookRow() map[string]string {
	row := map[string]string{ActionColumn: string(r.action)}
	for _, field := range r.schema.Fields {
		if field.WBKey == "" {
			continue
		}
		switch field.Kind {
		case KindNested:
			for key, value := range r.nested[field.Name] {
				row[key] = value
			}
		case KindGroup:
			for i, value := range r.groups[field.Name] {
				row[fmt.Sprintf("%s %d", field.WBKey, i+1)] = value
			}
		default:
			row[field.WBKey] = r.values[field.Name]
		}
	}
	return row
}

// PayloadOptions control payload rendering. Include, when non-empty,
// whitelists internal field names; Exclude removes fields after the
// include filter. DropUnset removes empty-equivalent values so partial
// updates only touch populated fields.
type PayloadOptions struct {
	DropUnset bool
	Include   []string
	Exclude   []string
}

// Payload renders the record as a vendor API request body. Workbook
// booleans become true/false/nil, nested columns are reassembled into
// their original structure and repeating fields become lists. The Action
// column is never part of a payload.
func (r *Record) Payload(opts PayloadOptions) (map[string]any, error) {
	include := toSet(opts.Include)
	exclude := toSet(opts.Exclude)

	payload := make(map[string]any)
	for _, field := range r.schema.Fields {
		if len(include) > 0 && !include[field.Name] {
			continue
		}
		if exclude[field.Name] {
			continue
		}

		switch field.Kind {
		case KindBool:
			value := YNToBool(r.values[field.Name])
			if value == nil && opts.DropUnset {
				continue
			}
			payload[field.Name] = value
		case KindNested:
			nested, err := Unflatten(r.nested[field.Name])
			if err != nil {
				return nil, faults.NewConversionError("'%s' %s", field.displayName(), err)
			}
			converted := ConvertPayloadValues(nested, opts.DropUnset)
			if len(converted) == 0 {
				if !opts.DropUnset {
					payload[field.Name] = map[string]any{}
				}
				continue
			}
			for key, value := range converted {
				payload[key] = value
			}
		case KindGroup:
			values := r.groups[field.Name]
			if len(values) == 0 && opts.DropUnset {
				continue
			}
			list := make([]any, len(values))
			for i, value := range values {
				list[i] = value
			}
			payload[field.Name] = list
		default:
			value := r.values[field.Name]
			if value == "" && opts.DropUnset {
				continue
			}
			payload[field.Name] = value
		}
	}
	return payload, nil
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

type recordJSON struct {
	Action Action                       `json:"action"`
	Values map[string]string            `json:"values,omitempty"`
	Nested map[string]map[string]string `json:"nested,omitempty"`
	Groups map[string][]string          `json:"groups,omitempty"`
}

// MarshalJSON serializes the record for the row stores. The schema is
// not embedded; DecodeRecord rebinds it on the way out.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Action: r.action,
		Values: r.values,
		Nested: r.nested,
		Groups: r.groups,
	})
}

// DecodeRecord rebuilds a stored record against its schema. Stored rows
// were validated at upload time, so no re-validation happens here.
func DecodeRecord(schema *Schema, data []byte) (*Record, error) {
	var stored recordJSON
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode stored row: %w", err)
	}
	record := &Record{
		schema: schema,
		action: stored.Action,
		values: stored.Values,
		nested: stored.Nested,
		groups: stored.Groups,
	}
	if record.values == nil {
		record.values = make(map[string]string)
	}
	if record.nested == nil {
		record.nested = make(map[string]map[string]string)
	}
	if record.groups == nil {
		record.groups = make(map[string][]string)
	}
	return record, nil
}

// lookupHeader finds a cell by header, tolerating case and surrounding
// whitespace differences in the worksheet.
func lookupHeader(row map[string]string, header string) (string, bool) {
	if value, ok := row[header]; ok {
		return value, true
	}
	for key, value := range row {
		if strings.EqualFold(strings.TrimSpace(key), header) {
			return value, true
		}
	}
	return "", false
}

// lookupAny finds an API object value by field name, ignoring case.
func lookupAny(obj map[string]any, name string) (any, bool) {
	if value, ok := obj[name]; ok {
		return value, true
	}
	for key, value := range obj {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return nil, false
}
