package rowmodel

import (
	"fmt"
	"strings"
)

// Kind selects the conversion behavior for a field.
type Kind int

const (
	// KindString passes cell values through as strings, optionally
	// constrained by an allowed-value set.
	KindString Kind = iota
	// KindBool stores workbook booleans as "Y", "N" or "".
	KindBool
	// KindNested represents an arbitrary-depth value spread across
	// dotted Parent.Child.Key columns.
	KindNested
	// KindGroup represents repeating numbered columns ("Dial String 1",
	// "Dial String 2", ...) assembled into an ordered list.
	KindGroup
)

// Field declares one schema field and its workbook mapping.
type Field struct {
	// Name is the internal field name and the API payload key.
	Name string
	// WBKey is the workbook column header. Empty means the field is
	// internal-only and never appears in worksheets. For KindNested it is
	// the dotted-path prefix; for KindGroup the numbered-column base.
	WBKey string
	// Required fields must have a column present at parse time.
	Required bool
	// RequiredFor lists actions for which the field value must be
	// non-empty. Checked on every (re)validation so action edits between
	// upload and submit re-run the constraint.
	RequiredFor []Action
	// OneOf constrains string values to an allowed set. Matching is
	// case-insensitive and canonicalizes to the declared casing.
	OneOf []string
	Kind  Kind

	// Doc holds help content used for template workbooks and the data
	// type reference tables.
	Doc FieldDoc
}

// FieldDoc is the human-readable documentation for one field.
type FieldDoc struct {
	Required string
	Value    string
	Notes    string
}

// displayName is the name shown in user-facing validation errors.
func (f Field) displayName() string {
	if f.WBKey != "" {
		return f.WBKey
	}
	return f.Name
}

// canonicalize validates value against the OneOf set, returning the
// declared casing on a match. An empty value is allowed unless the field
// is unconditionally required.
func (f Field) canonicalize(value string) (string, error) {
	if len(f.OneOf) == 0 {
		return value, nil
	}
	if value == "" && !f.Required {
		return "", nil
	}
	for _, allowed := range f.OneOf {
		if strings.EqualFold(allowed, value) {
			return allowed, nil
		}
	}
	quoted := make([]string, len(f.OneOf))
	for i, allowed := range f.OneOf {
		quoted[i] = fmt.Sprintf("'%s'", allowed)
	}
	allowed := strings.Join(quoted, ",")
	if !f.Required {
		allowed += " or empty string"
	}
	return "", fmt.Errorf("must be one of %s", allowed)
}

// normalizeYN canonicalizes common workbook boolean spellings to the
// stored "Y"/"N"/"" representation.
func normalizeYN(value string, required bool) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "y", "yes", "true", "t":
		return "Y", nil
	case "n", "no", "false", "f":
		return "N", nil
	case "", "none":
		if required {
			return "", fmt.Errorf("must be one of 'Y','N'")
		}
		return "", nil
	}
	if required {
		return "", fmt.Errorf("must be one of 'Y','N'")
	}
	return "", fmt.Errorf("must be one of 'Y','N' or empty string")
}

// YNToBool converts the stored workbook boolean representation to the
// payload value: "Y" -> true, "N" -> false, "" -> nil.
func YNToBool(value string) any {
	switch strings.ToLower(value) {
	case "y":
		return true
	case "n":
		return false
	case "":
		return nil
	}
	return value
}

// ToWBString converts an API response value to the workbook string
// representation: nil -> "", booleans -> "Y"/"N", numbers -> decimal
// strings, everything else via fmt.
func ToWBString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "Y"
		}
		return "N"
	case string:
		switch strings.ToLower(v) {
		case "true":
			return "Y"
		case "false":
			return "N"
		}
		return v
	case float64:
		// JSON numbers decode as float64; render integers without decimals.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
