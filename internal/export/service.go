// Package export builds workbooks from live vendor data. An export
// request fans out into one job per data type under a grouping parent,
// so one slow or failing listing never blocks the rest; each child
// writes its own xlsx file for download.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/ucprov/internal/faults"
	"github.com/rpattn/ucprov/internal/jobqueue"
	"github.com/rpattn/ucprov/internal/ledger"
	"github.com/rpattn/ucprov/internal/logging"
	"github.com/rpattn/ucprov/internal/platforms/api"
	"github.com/rpattn/ucprov/internal/registry"
	"github.com/rpattn/ucprov/internal/rowmodel"
	"github.com/rpattn/ucprov/internal/workbook"
)

// Result is the payload stored on a finished export child job.
type Result struct {
	File   string `json:"file"`
	Rows   int    `json:"rows"`
	Errors int    `json:"errors"`
}

// Service runs export jobs.
type Service struct {
	registry *registry.Registry
	clients  api.Clients
	runner   *jobqueue.Runner
	events   ledger.Repository
	dir      string
}

func NewService(reg *registry.Registry, clients api.Clients, runner *jobqueue.Runner, events ledger.Repository, dir string) *Service {
	svc := &Service{
		registry: reg,
		clients:  clients,
		runner:   runner,
		events:   events,
		dir:      dir,
	}
	runner.Register(jobqueue.KindExportSheet, svc.handleJob)
	return svc
}

// Start validates the requested data types and enqueues the export
// group. Every data type must support export before anything runs.
func (s *Service) Start(ctx context.Context, orgID uuid.UUID, platform string, dataTypes []string) (jobqueue.Job, []jobqueue.Job, error) {
	if len(dataTypes) == 0 {
		return jobqueue.Job{}, nil, faults.NewBulkOpFailed("Select at least one data type to export.")
	}

	children := make([]jobqueue.Job, 0, len(dataTypes))
	for _, dataType := range dataTypes {
		if _, _, err := s.registry.Exporter(platform, dataType); err != nil {
			return jobqueue.Job{}, nil, err
		}
		children = append(children, jobqueue.Job{
			Kind:     jobqueue.KindExportSheet,
			Platform: platform,
			DataType: dataType,
			Priority: jobqueue.DefaultPriority,
		})
	}

	parent, launched, err := s.runner.EnqueueGroup(ctx,
		jobqueue.Job{OrgID: orgID, Platform: platform}, children)
	if err != nil {
		return jobqueue.Job{}, nil, err
	}
	return parent, launched, nil
}

// Browse lists a data type's live vendor objects synchronously, without
// a job or a file. Uses the same safe-build listing as export, so one
// malformed upstream object degrades to a per-object message instead of
// failing the whole listing.
func (s *Service) Browse(ctx context.Context, orgID uuid.UUID, platform, dataType string) ([]*rowmodel.Record, []string, error) {
	exporter, _, err := s.registry.Exporter(platform, dataType)
	if err != nil {
		return nil, nil, err
	}
	client, err := s.clients.For(ctx, orgID.String(), platform)
	if err != nil {
		return nil, nil, err
	}
	return exporter(ctx, client)
}

func (s *Service) handleJob(ctx context.Context, job jobqueue.Job, report func(done, total int)) (json.RawMessage, error) {
	log := logging.FromContext(ctx).With(
		"platform", job.Platform, "data_type", job.DataType)

	exporter, schema, err := s.registry.Exporter(job.Platform, job.DataType)
	if err != nil {
		return nil, fmt.Errorf("%s", faults.UserMessage(err))
	}

	client, err := s.clients.For(ctx, job.OrgID.String(), job.Platform)
	if err != nil {
		log.Error("no vendor client available", "error", err)
		return nil, fmt.Errorf("%s", faults.GenericUserMessage)
	}

	records, buildErrors, err := exporter(ctx, client)
	if err != nil {
		log.Warn("export listing failed", "error", err)
		return nil, fmt.Errorf("%s", faults.UserMessage(err))
	}
	report(1, 2)

	f := workbook.New()
	if err := workbook.WriteSheet(f, 0, schema, records); err != nil {
		return nil, fmt.Errorf("%s", faults.GenericUserMessage)
	}
	if err := workbook.WriteErrorSheet(f, buildErrors); err != nil {
		return nil, fmt.Errorf("%s", faults.GenericUserMessage)
	}

	path, err := s.save(f, job, schema.Title)
	if err != nil {
		log.Error("failed to save export workbook", "error", err)
		return nil, fmt.Errorf("%s", faults.GenericUserMessage)
	}
	report(2, 2)

	if s.events != nil {
		_, _ = s.events.Append(ctx, ledger.Event{
			OrgID:    job.OrgID,
			Actor:    "system",
			Platform: job.Platform,
			DataType: job.DataType,
			Action:   "EXPORT",
			JobID:    job.ID,
			Outcome:  ledger.OutcomeInfo,
			Detail:   fmt.Sprintf("Exported %d rows.", len(records)),
		})
	}

	log.Info("export finished", "rows", len(records), "build_errors", len(buildErrors))
	return json.Marshal(Result{File: path, Rows: len(records), Errors: len(buildErrors)})
}

func (s *Service) save(f *excelize.File, job jobqueue.Job, title string) (string, error) {
	orgDir := filepath.Join(s.dir, job.OrgID.String())
	if err := os.MkdirAll(orgDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(orgDir,
		fmt.Sprintf("%s_%s.xlsx", workbook.SafeFileName(title), job.ID))
	if err := f.SaveAs(path); err != nil {
		return "", err
	}
	return path, nil
}

// ResultFile returns the saved workbook path for a finished export job,
// verifying the job belongs to the organization. A child job yields its
// per-type file; the parent yields one combined workbook stitched from
// every child, with an error sheet covering the types that failed.
func (s *Service) ResultFile(ctx context.Context, repo jobqueue.Repository, orgID, jobID uuid.UUID) (string, error) {
	job, err := repo.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.OrgID != orgID {
		return "", jobqueue.ErrJobNotFound
	}
	if job.Status != jobqueue.StatusSucceeded {
		return "", faults.NewBulkOpFailed("The export is not ready for download.")
	}

	switch job.Kind {
	case jobqueue.KindGroup:
		return s.combinedFile(ctx, repo, job)
	case jobqueue.KindExportSheet:
		var result Result
		if err := json.Unmarshal(job.Result, &result); err != nil {
			return "", fmt.Errorf("decode export result: %w", err)
		}
		return result.File, nil
	default:
		return "", faults.NewBulkOpFailed("The export is not ready for download.")
	}
}

// combinedFile stitches every finished child workbook into one file.
// Failed or cancelled types become rows on the error sheet so a partial
// export still downloads everything it managed to build.
func (s *Service) combinedFile(ctx context.Context, repo jobqueue.Repository, parent jobqueue.Job) (string, error) {
	orgDir := filepath.Join(s.dir, parent.OrgID.String())
	path := filepath.Join(orgDir, fmt.Sprintf("export_%s.xlsx", parent.ID))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	children, err := repo.Children(ctx, parent.ID)
	if err != nil {
		return "", err
	}

	f := workbook.New()
	sheetIndex := 0
	var failures []string
	for _, child := range children {
		if child.Status != jobqueue.StatusSucceeded {
			message := child.Error
			if message == "" {
				message = "The export was cancelled."
			}
			failures = append(failures, fmt.Sprintf("%s: %s", child.DataType, message))
			continue
		}

		var result Result
		if err := json.Unmarshal(child.Result, &result); err != nil {
			return "", fmt.Errorf("decode export result: %w", err)
		}
		title, rows, buildErrors, err := readResultSheet(result.File)
		if err != nil {
			return "", err
		}
		if err := workbook.WriteRawSheet(f, sheetIndex, title, rows); err != nil {
			return "", err
		}
		sheetIndex++
		failures = append(failures, buildErrors...)
	}

	if err := workbook.WriteErrorSheet(f, failures); err != nil {
		return "", err
	}
	if err := os.MkdirAll(orgDir, 0o755); err != nil {
		return "", err
	}
	if err := f.SaveAs(path); err != nil {
		return "", err
	}
	return path, nil
}

// readResultSheet loads a child export file: its data sheet plus any
// per-object errors recorded on the error sheet.
func readResultSheet(path string) (string, [][]string, []string, error) {
	src, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("open export file: %w", err)
	}
	defer func() { _ = src.Close() }()

	title := src.GetSheetName(0)
	rows, err := src.GetRows(title)
	if err != nil {
		return "", nil, nil, fmt.Errorf("read sheet %s: %w", title, err)
	}

	var buildErrors []string
	if errorRows, err := src.GetRows(workbook.ErrorSheetName); err == nil {
		for i, errorRow := range errorRows {
			if i == 0 || len(errorRow) == 0 {
				continue
			}
			buildErrors = append(buildErrors, errorRow[0])
		}
	}
	return title, rows, buildErrors, nil
}
