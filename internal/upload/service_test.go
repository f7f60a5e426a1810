package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/ucprov/internal/jobqueue"
	"github.com/rpattn/ucprov/internal/ledger"
	"github.com/rpattn/ucprov/internal/registry"
	"github.com/rpattn/ucprov/internal/rowmodel"
	"github.com/rpattn/ucprov/internal/rowstore"
)

func numbersSchema() *rowmodel.Schema {
	return &rowmodel.Schema{
		Platform:    "wbxc",
		DataType:    "numbers",
		Title:       "Numbers",
		Supports:    []string{rowmodel.SupportsUpload, rowmodel.SupportsBulk},
		BulkActions: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionDelete},
		Fields: []rowmodel.Field{
			{Name: "location", WBKey: "Location", Required: true,
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
			{Name: "start", WBKey: "Start Number", Required: true,
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
			{Name: "end", WBKey: "End Number"},
		},
	}
}

func locationsSchema() *rowmodel.Schema {
	return &rowmodel.Schema{
		Platform:    "wbxc",
		DataType:    "locations",
		Title:       "Locations",
		Supports:    []string{rowmodel.SupportsUpload, rowmodel.SupportsBulk},
		BulkActions: []rowmodel.Action{rowmodel.ActionCreate},
		Fields: []rowmodel.Field{
			{Name: "name", WBKey: "Name", Required: true},
		},
	}
}

func testService(t *testing.T) (*Service, rowstore.Store, *jobqueue.MemoryRepository) {
	t.Helper()
	reg := registry.New()
	if _, err := reg.Register(numbersSchema()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if _, err := reg.Register(locationsSchema()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	store := rowstore.NewMemoryStore(rowstore.Config{TTL: time.Hour})
	jobs := jobqueue.NewMemoryRepository()
	runner := jobqueue.NewRunner(jobs, 5*time.Second, nil)
	svc := NewService(reg, store, runner, ledger.NewMemoryRepository())
	return svc, store, jobs
}

func workbook(t *testing.T, sheets map[string][][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	first := true
	for sheetName, rows := range sheets {
		if first {
			if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
				t.Fatalf("SetSheetName() error: %v", err)
			}
			first = false
		} else {
			if _, err := f.NewSheet(sheetName); err != nil {
				t.Fatalf("NewSheet() error: %v", err)
			}
		}
		for i, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
				t.Fatalf("SetSheetRow() error: %v", err)
			}
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	return buf.Bytes()
}

func TestParseWorkbookStoresValidRows(t *testing.T) {
	svc, store, _ := testService(t)
	jobID := uuid.New()

	data := workbook(t, map[string][][]string{
		"Numbers": {
			{"Action", "Location", "Start Number", "End Number"},
			{"CREATE", "HQ", "+15550001", "+15550005"},
			{"", "", "", ""},
			{"CREATE", "HQ", "", ""}, // missing required Start Number
			{"IGNORE", "HQ", "+15550009", ""},
		},
		"Notes": {
			{"whatever"},
		},
	})

	results, err := svc.ParseWorkbook(context.Background(), jobID, "wbxc", data, nil)
	if err != nil {
		t.Fatalf("ParseWorkbook() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d sheet results, want 1 (unknown sheet skipped)", len(results))
	}

	result := results[0]
	if result.Stored != 2 || result.Skipped != 1 || len(result.Errors) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.Errors[0].RowNum != 4 {
		t.Fatalf("error row = %d, want worksheet row 4", result.Errors[0].RowNum)
	}
	if !strings.Contains(result.Errors[0].Message, "required for CREATE") {
		t.Fatalf("error message = %q", result.Errors[0].Message)
	}

	// Row 2 was stored under its worksheet row number and round-trips.
	raw, err := store.Row(context.Background(), jobID, "numbers", 2)
	if err != nil {
		t.Fatalf("Row() error: %v", err)
	}
	record, err := rowmodel.DecodeRecord(numbersSchema(), raw)
	if err != nil {
		t.Fatalf("DecodeRecord() error: %v", err)
	}
	if record.Get("start") != "+15550001" {
		t.Fatalf("stored row diverged: %v", record.WorkbookRow())
	}
}

func TestParseWorkbookMatchesSheetByTitleCaseInsensitive(t *testing.T) {
	svc, _, _ := testService(t)

	data := workbook(t, map[string][][]string{
		"nUmBeRs": {
			{"Action", "Location", "Start Number"},
			{"DELETE", "HQ", "+15550001"},
		},
	})

	results, err := svc.ParseWorkbook(context.Background(), uuid.New(), "wbxc", data, nil)
	if err != nil {
		t.Fatalf("ParseWorkbook() error: %v", err)
	}
	if len(results) != 1 || results[0].Stored != 1 {
		t.Fatalf("results = %+v", results)
	}
}

func TestParseWorkbookDuplicateHeaderFailsSheetOnly(t *testing.T) {
	svc, _, _ := testService(t)

	data := workbook(t, map[string][][]string{
		"Numbers": {
			{"Action", "Location", "location", "Start Number"},
			{"CREATE", "HQ", "HQ", "+15550001"},
		},
		"Locations": {
			{"Action", "Name"},
			{"CREATE", "HQ"},
		},
	})

	results, err := svc.ParseWorkbook(context.Background(), uuid.New(), "wbxc", data, nil)
	if err != nil {
		t.Fatalf("ParseWorkbook() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d sheet results, want 2", len(results))
	}

	byType := make(map[string]SheetResult)
	for _, result := range results {
		byType[result.DataType] = result
	}
	numbers := byType["numbers"]
	if !strings.Contains(numbers.Error, "duplicate column 'Location'") || numbers.Stored != 0 {
		t.Fatalf("numbers result = %+v, want sheet-level duplicate column error", numbers)
	}
	if locations := byType["locations"]; locations.Error != "" || locations.Stored != 1 {
		t.Fatalf("locations result = %+v, want 1 stored row", locations)
	}
}

func TestParseWorkbookBlankHeaderOverDataFailsSheetOnly(t *testing.T) {
	svc, _, _ := testService(t)

	data := workbook(t, map[string][][]string{
		"Numbers": {
			{"Action", "Location", "", "Start Number"},
			{"CREATE", "HQ", "stray", "+15550001"},
		},
		"Locations": {
			{"Action", "Name", ""},
			{"CREATE", "HQ", ""},
		},
	})

	results, err := svc.ParseWorkbook(context.Background(), uuid.New(), "wbxc", data, nil)
	if err != nil {
		t.Fatalf("ParseWorkbook() error: %v", err)
	}

	byType := make(map[string]SheetResult)
	for _, result := range results {
		byType[result.DataType] = result
	}
	numbers := byType["numbers"]
	if !strings.Contains(numbers.Error, "blank header column C") || numbers.Stored != 0 {
		t.Fatalf("numbers result = %+v, want sheet-level blank header error", numbers)
	}
	// A blank header over an empty column is harmless.
	if locations := byType["locations"]; locations.Error != "" || locations.Stored != 1 {
		t.Fatalf("locations result = %+v, want 1 stored row", locations)
	}
}

func TestParseWorkbookNoImportableSheets(t *testing.T) {
	svc, _, _ := testService(t)

	data := workbook(t, map[string][][]string{
		"Scratch": {{"nothing"}},
	})

	_, err := svc.ParseWorkbook(context.Background(), uuid.New(), "wbxc", data, nil)
	if err == nil || !strings.Contains(err.Error(), "No importable worksheets found.") {
		t.Fatalf("error = %v", err)
	}
}

func TestParseWorkbookNoRows(t *testing.T) {
	svc, _, _ := testService(t)

	data := workbook(t, map[string][][]string{
		"Numbers": {
			{"Action", "Location", "Start Number"},
		},
	})

	_, err := svc.ParseWorkbook(context.Background(), uuid.New(), "wbxc", data, nil)
	if err == nil || !strings.Contains(err.Error(), "No importable rows found.") {
		t.Fatalf("error = %v", err)
	}
}

func TestEnqueueRunsParseJob(t *testing.T) {
	reg := registry.New()
	if _, err := reg.Register(numbersSchema()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	store := rowstore.NewMemoryStore(rowstore.Config{TTL: time.Hour})
	jobs := jobqueue.NewMemoryRepository()
	runner := jobqueue.NewRunner(jobs, 5*time.Second, nil)
	svc := NewService(reg, store, runner, ledger.NewMemoryRepository())

	data := workbook(t, map[string][][]string{
		"Numbers": {
			{"Action", "Location", "Start Number"},
			{"DELETE", "HQ", "+15550001"},
		},
	})

	job, err := svc.Enqueue(context.Background(), uuid.New(), "wbxc", data)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	runner.Wait()

	finished, err := jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if finished.Status != jobqueue.StatusSucceeded {
		t.Fatalf("status = %s (%s), want SUCCEEDED", finished.Status, finished.Error)
	}

	var results []SheetResult
	if err := json.Unmarshal(finished.Result, &results); err != nil {
		t.Fatalf("result not decodable: %v", err)
	}
	if len(results) != 1 || results[0].Stored != 1 {
		t.Fatalf("results = %+v", results)
	}

	// Stored rows are keyed by the parse job's ID.
	if _, err := store.Row(context.Background(), job.ID, "numbers", 2); err != nil {
		t.Fatalf("stored row missing: %v", err)
	}
}
