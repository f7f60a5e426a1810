package rowmodel

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var numericSegment = regexp.MustCompile(`^\d+$`)

// Flatten converts an arbitrary-depth value into the workbook
// representation: a single-level map of dotted-path keys to display
// strings. List elements use their numeric index as a path segment.
//
//	{"policy": {"vm": {"enabled": true}}} -> {"policy.vm.enabled": "Y"}
func Flatten(obj map[string]any, prefix ...string) map[string]string {
	flat := make(map[string]string)
	flattenInto(flat, obj, prefix)
	return flat
}

func flattenInto(flat map[string]string, obj map[string]any, path []string) {
	for key, value := range obj {
		flattenValue(flat, value, append(path, key))
	}
}

func flattenValue(flat map[string]string, value any, path []string) {
	switch v := value.(type) {
	case map[string]any:
		flattenInto(flat, v, path)
	case []any:
		for idx, item := range v {
			flattenValue(flat, item, append(path, strconv.Itoa(idx)))
		}
	default:
		flat[strings.Join(path, ".")] = ToWBString(v)
	}
}

// Unflatten converts a workbook-format map of dotted-path keys back into
// a nested structure. Numeric path segments become list indices. Keys are
// lower-cased on the way in, matching the vendor payload casing used by
// the request builders.
//
// Conflicting paths (a key used both as a leaf and as a parent, or a
// duplicate leaf) return an error naming the overlap.
func Unflatten(flat map[string]string) (map[string]any, error) {
	nested := make(map[string]any)

	// Deterministic order keeps list building and error messages stable.
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		segments := strings.Split(strings.ToLower(key), ".")
		if err := insertPath(nested, segments, flat[key], key); err != nil {
			return nil, err
		}
	}
	return nested, nil
}

func insertPath(node map[string]any, segments []string, value string, fullKey string) error {
	head := segments[0]
	rest := segments[1:]

	if len(rest) == 0 {
		if existing, ok := node[head]; ok {
			return fmt.Errorf("'%s' already set to '%v'", head, existing)
		}
		node[head] = value
		return nil
	}

	if numericSegment.MatchString(rest[0]) {
		list, _ := node[head].([]any)
		if node[head] != nil && list == nil {
			return fmt.Errorf("'%s' path overlaps with '%s'", fullKey, head)
		}
		index, _ := strconv.Atoi(rest[0])

		if len(rest) == 1 {
			list = appendAt(list, index, value)
			node[head] = list
			return nil
		}

		// List items are objects; extend the list as needed.
		for len(list) <= index {
			list = append(list, map[string]any{})
		}
		item, ok := list[index].(map[string]any)
		if !ok {
			return fmt.Errorf("'%s' path overlaps with '%s'", fullKey, head)
		}
		node[head] = list
		return insertPath(item, rest[1:], value, fullKey)
	}

	child, ok := node[head].(map[string]any)
	if node[head] != nil && !ok {
		return fmt.Errorf("'%s' path overlaps with '%s'", fullKey, head)
	}
	if child == nil {
		child = make(map[string]any)
		node[head] = child
	}
	return insertPath(child, rest, value, fullKey)
}

func appendAt(list []any, index int, value string) []any {
	for len(list) <= index {
		list = append(list, nil)
	}
	list[index] = value
	return list
}

// ConvertPayloadValues walks a nested structure produced by Unflatten and
// converts workbook boolean strings to their payload form (true/false/nil).
// When dropUnset is set, empty-equivalent values are removed entirely.
func ConvertPayloadValues(obj map[string]any, dropUnset bool) map[string]any {
	converted := make(map[string]any)
	for key, value := range obj {
		out, keep := convertPayloadValue(value, dropUnset)
		if !keep {
			continue
		}
		converted[key] = out
	}
	return converted
}

func convertPayloadValue(value any, dropUnset bool) (any, bool) {
	switch v := value.(type) {
	case map[string]any:
		nested := ConvertPayloadValues(v, dropUnset)
		if len(nested) == 0 && dropUnset {
			return nil, false
		}
		return nested, true
	case []any:
		items := make([]any, 0, len(v))
		for _, item := range v {
			out, keep := convertPayloadValue(item, dropUnset)
			if keep {
				items = append(items, out)
			}
		}
		if len(items) == 0 && dropUnset {
			return nil, false
		}
		return items, true
	case string:
		if v == "" && dropUnset {
			return nil, false
		}
		return YNToBool(v), true
	case nil:
		if dropUnset {
			return nil, false
		}
		return nil, true
	default:
		return v, true
	}
}
