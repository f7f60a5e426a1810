package workbook

import (
	"testing"

	"github.com/rpattn/ucprov/internal/rowmodel"
)

func exportSchema() *rowmodel.Schema {
	return &rowmodel.Schema{
		Platform:    "zoom",
		DataType:    "phone_users",
		Title:       "Phone Users",
		Supports:    []string{rowmodel.SupportsExport},
		BulkActions: []rowmodel.Action{rowmodel.ActionUpdate},
		Fields: []rowmodel.Field{
			{Name: "email", WBKey: "Email", Required: true},
			{Name: "policy", WBKey: "Policy", Kind: rowmodel.KindNested},
			{Name: "dial_strings", WBKey: "Dial String", Kind: rowmodel.KindGroup},
			{Name: "user_id", Required: true},
		},
	}
}

func TestWriteSheetLaysOutColumns(t *testing.T) {
	schema := exportSchema()
	records := []*rowmodel.Record{
		rowmodel.SafeBuild(schema, map[string]any{
			"email":        "a@example.com",
			"policy":       map[string]any{"vm": map[string]any{"enabled": true}},
			"dial_strings": []any{"+1", "+2"},
			"user_id":      "u-1",
		}),
		rowmodel.SafeBuild(schema, map[string]any{
			"email":   "b@example.com",
			"user_id": "u-2",
		}),
	}

	f := New()
	if err := WriteSheet(f, 0, schema, records); err != nil {
		t.Fatalf("WriteSheet() error: %v", err)
	}

	rows, err := f.GetRows("Phone Users")
	if err != nil {
		t.Fatalf("GetRows() error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}

	headers := rows[0]
	wantHeaders := []string{"Action", "Email", "Policy.vm.enabled", "Dial String 1", "Dial String 2"}
	if len(headers) != len(wantHeaders) {
		t.Fatalf("headers = %v, want %v", headers, wantHeaders)
	}
	for i, want := range wantHeaders {
		if headers[i] != want {
			t.Fatalf("headers = %v, want %v", headers, wantHeaders)
		}
	}

	if rows[1][0] != "IGNORE" {
		t.Fatalf("exported action = %q, want IGNORE", rows[1][0])
	}
	if rows[1][2] != "Y" {
		t.Fatalf("nested cell = %q, want Y", rows[1][2])
	}
}

func TestWriteErrorSheet(t *testing.T) {
	f := New()
	if err := WriteErrorSheet(f, []string{"user u-9: listing failed"}); err != nil {
		t.Fatalf("WriteErrorSheet() error: %v", err)
	}

	rows, err := f.GetRows(ErrorSheetName)
	if err != nil {
		t.Fatalf("GetRows() error: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "user u-9: listing failed" {
		t.Fatalf("error sheet rows = %v", rows)
	}

	// No messages, no sheet.
	f2 := New()
	if err := WriteErrorSheet(f2, nil); err != nil {
		t.Fatalf("WriteErrorSheet() error: %v", err)
	}
	if _, err := f2.GetRows(ErrorSheetName); err == nil {
		t.Fatal("error sheet should not exist when there are no errors")
	}
}

func TestBuildTemplate(t *testing.T) {
	schema := exportSchema()
	f, err := BuildTemplate([]*rowmodel.Schema{schema})
	if err != nil {
		t.Fatalf("BuildTemplate() error: %v", err)
	}

	rows, err := f.GetRows("Phone Users")
	if err != nil {
		t.Fatalf("GetRows() error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("template sheet should only have a header row, got %d", len(rows))
	}
	if rows[0][0] != "Action" {
		t.Fatalf("first column = %q, want Action", rows[0][0])
	}
	// Repeating fields appear as their first numbered column.
	found := false
	for _, header := range rows[0] {
		if header == "Dial String 1" {
			found = true
		}
		if header == "user_id" {
			t.Fatal("internal-only field leaked into the template")
		}
	}
	if !found {
		t.Fatalf("headers = %v, want Dial String 1 present", rows[0])
	}

	if _, err := f.GetRows("Reference"); err != nil {
		t.Fatalf("reference sheet missing: %v", err)
	}
}

func TestSafeFileName(t *testing.T) {
	if got := SafeFileName("Phone Users / EU"); got != "Phone_Users__EU" {
		t.Fatalf("SafeFileName() = %q", got)
	}
	if got := SafeFileName("///"); got != "export" {
		t.Fatalf("SafeFileName() = %q", got)
	}
}
