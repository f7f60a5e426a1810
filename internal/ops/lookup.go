package ops

import (
	"github.com/rpattn/ucprov/internal/faults"
)

// Lookup is the outcome of resolving a user-supplied name against a
// vendor listing. Zero, one and many matches are all ordinary values;
// callers decide which cardinalities are acceptable.
type Lookup struct {
	// Kind names the resource for error messages ("location", "site").
	Kind string
	// Name is the value that was searched for.
	Name    string
	Matches []map[string]any
}

// NewLookup builds a Lookup over the listing entries whose match
// function returns true.
func NewLookup(kind, name string, entries []map[string]any, match func(map[string]any) bool) Lookup {
	lookup := Lookup{Kind: kind, Name: name}
	for _, entry := range entries {
		if match(entry) {
			lookup.Matches = append(lookup.Matches, entry)
		}
	}
	return lookup
}

// Found reports whether at least one entry matched.
func (l Lookup) Found() bool { return len(l.Matches) > 0 }

// One returns the single match. No match and multiple matches each fail
// with a user-facing message naming the resource.
func (l Lookup) One() (map[string]any, error) {
	switch len(l.Matches) {
	case 0:
		return nil, faults.NewBulkOpFailed("No %s found matching '%s'.", l.Kind, l.Name)
	case 1:
		return l.Matches[0], nil
	default:
		return nil, faults.NewBulkOpFailed(
			"Multiple matches found for %s '%s'. Provide a more specific value.", l.Kind, l.Name)
	}
}

// NoneOrOne returns the single match if present, nil if nothing matched,
// and fails only on ambiguity. Used for existence preconditions.
func (l Lookup) NoneOrOne() (map[string]any, error) {
	if len(l.Matches) > 1 {
		return nil, faults.NewBulkOpFailed(
			"Multiple matches found for %s '%s'. Provide a more specific value.", l.Kind, l.Name)
	}
	if len(l.Matches) == 1 {
		return l.Matches[0], nil
	}
	return nil, nil
}
