// Package upload turns uploaded workbooks into validated, stored rows.
// Parsing runs as a background job so large workbooks never block the
// request; the browser polls the job for per-sheet results.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/ucprov/internal/faults"
	"github.com/rpattn/ucprov/internal/jobqueue"
	"github.com/rpattn/ucprov/internal/ledger"
	"github.com/rpattn/ucprov/internal/logging"
	"github.com/rpattn/ucprov/internal/registry"
	"github.com/rpattn/ucprov/internal/rowmodel"
	"github.com/rpattn/ucprov/internal/rowstore"
)

// RowError is one rejected worksheet row.
type RowError struct {
	RowNum  int    `json:"row_num"`
	Message string `json:"message"`
}

// SheetResult summarizes one importable worksheet, in workbook order.
// Error is a sheet-level problem (bad header, unreadable sheet) that
// stopped this worksheet; other worksheets still parse.
type SheetResult struct {
	SheetName string     `json:"sheet_name"`
	DataType  string     `json:"data_type"`
	Title     string     `json:"title"`
	Stored    int        `json:"stored"`
	Skipped   int        `json:"skipped"`
	Error     string     `json:"error,omitempty"`
	Errors    []RowError `json:"errors,omitempty"`
}

// Service parses workbooks and stores their valid rows.
type Service struct {
	registry *registry.Registry
	store    rowstore.Store
	runner   *jobqueue.Runner
	events   ledger.Repository

	// payloads holds workbook bytes between enqueue and the worker
	// picking the job up. Keyed by job ID.
	payloads sync.Map
}

func NewService(reg *registry.Registry, store rowstore.Store, runner *jobqueue.Runner, events ledger.Repository) *Service {
	svc := &Service{
		registry: reg,
		store:    store,
		runner:   runner,
		events:   events,
	}
	runner.Register(jobqueue.KindParseUpload, svc.handleJob)
	return svc
}

// Enqueue schedules a workbook for parsing. The returned job's ID is
// also the key stored rows live under. The payload is stashed before
// the worker launches so it can never observe a missing workbook.
func (s *Service) Enqueue(ctx context.Context, orgID uuid.UUID, platform string, data []byte) (jobqueue.Job, error) {
	jobID := uuid.New()
	s.payloads.Store(jobID, data)

	job, err := s.runner.Enqueue(ctx, jobqueue.Job{
		ID:       jobID,
		OrgID:    orgID,
		Kind:     jobqueue.KindParseUpload,
		Platform: platform,
		Priority: jobqueue.DefaultPriority,
	})
	if err != nil {
		s.payloads.Delete(jobID)
		return jobqueue.Job{}, err
	}
	return job, nil
}

func (s *Service) handleJob(ctx context.Context, job jobqueue.Job, report func(done, total int)) (json.RawMessage, error) {
	payload, ok := s.payloads.LoadAndDelete(job.ID)
	if !ok {
		return nil, fmt.Errorf("workbook payload for job %s is gone", job.ID)
	}

	results, err := s.ParseWorkbook(ctx, job.ID, job.Platform, payload.([]byte), report)
	if err != nil {
		return nil, fmt.Errorf("%s", faults.UserMessage(err))
	}

	if s.events != nil {
		stored := 0
		for _, result := range results {
			stored += result.Stored
		}
		_, _ = s.events.Append(ctx, ledger.Event{
			OrgID:    job.OrgID,
			Actor:    "system",
			Platform: job.Platform,
			Action:   "UPLOAD",
			JobID:    job.ID,
			Outcome:  ledger.OutcomeInfo,
			Detail:   fmt.Sprintf("Parsed workbook: %d rows stored.", stored),
		})
	}

	return json.Marshal(results)
}

// ParseWorkbook validates every importable worksheet and stores the
// rows that pass. Worksheets that match no registered data type are
// skipped; results follow workbook sheet order.
func (s *Service) ParseWorkbook(ctx context.Context, jobID uuid.UUID, platform string, data []byte, report func(done, total int)) ([]SheetResult, error) {
	log := logging.FromContext(ctx).With("job_id", jobID, "platform", platform)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, faults.NewWorkbookError("The uploaded file is not a readable workbook.")
	}
	defer func() { _ = f.Close() }()

	type match struct {
		sheetName string
		schema    *rowmodel.Schema
	}
	var importable []match
	for _, sheetName := range f.GetSheetList() {
		if schema, ok := s.registry.SchemaForSheet(platform, sheetName); ok {
			importable = append(importable, match{sheetName: sheetName, schema: schema})
		}
	}
	if len(importable) == 0 {
		return nil, faults.NewWorkbookError("No importable worksheets found.")
	}

	// Parsing order follows schema priority so one type can rely on
	// another's rows being stored first; results keep workbook order.
	order := make([]int, len(importable))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return importable[order[a]].schema.UploadPriority < importable[order[b]].schema.UploadPriority
	})

	results := make([]SheetResult, len(importable))
	totalStored := 0
	for done, idx := range order {
		sheet := importable[idx]

		result, err := s.parseSheet(ctx, f, sheet.sheetName, jobID, sheet.schema)
		if err != nil {
			return nil, err
		}
		results[idx] = result
		totalStored += result.Stored

		if report != nil {
			report(done+1, len(importable))
		}
	}

	if totalStored == 0 && !anyErrors(results) {
		return nil, faults.NewWorkbookError("No importable rows found.")
	}

	log.Info("workbook parsed", "sheets", len(results), "rows_stored", totalStored)
	return results, nil
}

func anyErrors(results []SheetResult) bool {
	for _, result := range results {
		if result.Error != "" || len(result.Errors) > 0 {
			return true
		}
	}
	return false
}

func (s *Service) parseSheet(ctx context.Context, f *excelize.File, sheetName string, jobID uuid.UUID, schema *rowmodel.Schema) (SheetResult, error) {
	result := SheetResult{
		SheetName: sheetName,
		DataType:  schema.DataType,
		Title:     schema.Title,
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		result.Error = fmt.Sprintf("Worksheet '%s' could not be read.", sheetName)
		return result, nil
	}
	if len(rows) == 0 {
		return result, nil
	}

	// A broken header fails this worksheet only; the rest of the
	// workbook still parses.
	headers, err := sheetHeaders(sheetName, rows)
	if err != nil {
		result.Error = faults.UserMessage(err)
		return result, nil
	}

	stored := make(map[int]json.RawMessage)
	for idx, cells := range rows[1:] {
		rowNum := idx + 2 // worksheet numbering, header is row 1

		rowMap := make(map[string]string, len(headers))
		blank := true
		for col, header := range headers {
			value := ""
			if col < len(cells) {
				value = strings.TrimSpace(cells[col])
			}
			if header == "" {
				continue
			}
			if value != "" {
				blank = false
			}
			rowMap[header] = value
		}
		if blank {
			result.Skipped++
			continue
		}

		record, err := rowmodel.ParseRow(schema, rowMap)
		if err != nil {
			result.Errors = append(result.Errors, RowError{
				RowNum:  rowNum,
				Message: faults.UserMessage(err),
			})
			continue
		}

		encoded, err := record.MarshalJSON()
		if err != nil {
			return result, fmt.Errorf("encode row %d: %w", rowNum, err)
		}
		stored[rowNum] = encoded
	}

	if len(stored) > 0 {
		if err := s.store.SaveSheet(ctx, jobID, schema.DataType, stored); err != nil {
			return result, err
		}
	}
	result.Stored = len(stored)
	return result, nil
}

// sheetHeaders validates the header row: duplicates (ignoring case) and
// blank headers over populated columns are both sheet-level errors. A
// blank header over an empty column is tolerated.
func sheetHeaders(sheetName string, rows [][]string) ([]string, error) {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	seen := make(map[string]string)
	for col, raw := range headerRow {
		header := strings.TrimSpace(raw)
		headers[col] = header
		if header == "" {
			if columnPopulated(rows[1:], col) {
				return nil, blankHeaderError(sheetName, col)
			}
			continue
		}
		normalized := strings.ToLower(header)
		if first, dup := seen[normalized]; dup {
			return nil, faults.NewWorkbookError(
				"Worksheet '%s' has duplicate column '%s'.", sheetName, first)
		}
		seen[normalized] = header
	}

	// Data rows can be wider than the header row; cells out there have
	// no header either.
	for _, cells := range rows[1:] {
		for col := len(headerRow); col < len(cells); col++ {
			if strings.TrimSpace(cells[col]) != "" {
				return nil, blankHeaderError(sheetName, col)
			}
		}
	}
	return headers, nil
}

func columnPopulated(rows [][]string, col int) bool {
	for _, cells := range rows {
		if col < len(cells) && strings.TrimSpace(cells[col]) != "" {
			return true
		}
	}
	return false
}

func blankHeaderError(sheetName string, col int) error {
	name, err := excelize.ColumnNumberToName(col + 1)
	if err != nil {
		name = fmt.Sprintf("%d", col+1)
	}
	return faults.NewWorkbookError(
		"Worksheet '%s' has data under blank header column %s.", sheetName, name)
}
