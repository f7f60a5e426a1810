package rowmodel

import (
	"reflect"
	"testing"
)

func TestFlatten(t *testing.T) {
	obj := map[string]any{
		"vm": map[string]any{
			"enabled": true,
			"greetings": []any{
				map[string]any{"name": "default"},
				map[string]any{"name": "holiday"},
			},
		},
		"ring_count": float64(3),
	}

	flat := Flatten(obj, "Policy")

	want := map[string]string{
		"Policy.vm.enabled":          "Y",
		"Policy.vm.greetings.0.name": "default",
		"Policy.vm.greetings.1.name": "holiday",
		"Policy.ring_count":          "3",
	}
	if !reflect.DeepEqual(flat, want) {
		t.Fatalf("Flatten() = %v, want %v", flat, want)
	}
}

func TestUnflatten(t *testing.T) {
	flat := map[string]string{
		"Policy.vm.enabled":          "Y",
		"Policy.vm.greetings.0.name": "default",
		"Policy.vm.greetings.1.name": "holiday",
	}

	nested, err := Unflatten(flat)
	if err != nil {
		t.Fatalf("Unflatten() error: %v", err)
	}

	want := map[string]any{
		"policy": map[string]any{
			"vm": map[string]any{
				"enabled": "Y",
				"greetings": []any{
					map[string]any{"name": "default"},
					map[string]any{"name": "holiday"},
				},
			},
		},
	}
	if !reflect.DeepEqual(nested, want) {
		t.Fatalf("Unflatten() = %v, want %v", nested, want)
	}
}

func TestUnflattenScalarList(t *testing.T) {
	flat := map[string]string{
		"routing.members.0": "alice",
		"routing.members.1": "bob",
	}

	nested, err := Unflatten(flat)
	if err != nil {
		t.Fatalf("Unflatten() error: %v", err)
	}

	routing := nested["routing"].(map[string]any)
	members, ok := routing["members"].([]any)
	if !ok || len(members) != 2 {
		t.Fatalf("expected 2-element list, got %v", routing["members"])
	}
	if members[0] != "alice" || members[1] != "bob" {
		t.Fatalf("list out of order: %v", members)
	}
}

func TestUnflattenDuplicateLeaf(t *testing.T) {
	flat := map[string]string{
		"policy.vm": "Y",
		"Policy.VM": "N",
	}

	if _, err := Unflatten(flat); err == nil {
		t.Fatal("expected error for duplicate leaf, got nil")
	}
}

func TestUnflattenLeafParentConflict(t *testing.T) {
	flat := map[string]string{
		"policy.vm":         "Y",
		"policy.vm.enabled": "Y",
	}

	if _, err := Unflatten(flat); err == nil {
		t.Fatal("expected error for leaf/parent overlap, got nil")
	}
}

func TestConvertPayloadValuesDropUnset(t *testing.T) {
	obj := map[string]any{
		"enabled": "Y",
		"alias":   "",
		"policy": map[string]any{
			"fallback": "",
		},
	}

	converted := ConvertPayloadValues(obj, true)

	if converted["enabled"] != true {
		t.Fatalf("enabled = %v, want true", converted["enabled"])
	}
	if _, ok := converted["alias"]; ok {
		t.Fatal("empty alias should be dropped")
	}
	if _, ok := converted["policy"]; ok {
		t.Fatal("empty nested object should be dropped")
	}
}

func TestConvertPayloadValuesKeepUnset(t *testing.T) {
	obj := map[string]any{"enabled": "N", "alias": ""}

	converted := ConvertPayloadValues(obj, false)

	if converted["enabled"] != false {
		t.Fatalf("enabled = %v, want false", converted["enabled"])
	}
	if value, ok := converted["alias"]; !ok || value != nil {
		t.Fatalf("alias = %v, want explicit nil", value)
	}
}
