package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rpattn/ucprov/internal/faults"
	"github.com/rpattn/ucprov/internal/jobqueue"
)

type startExportPayload struct {
	Platform  string   `json:"platform"`
	DataTypes []string `json:"data_types"`
}

type startExportResponse struct {
	Parent   jobResponse   `json:"parent"`
	Children []jobResponse `json:"children"`
}

func (s *Server) handleStartExport(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromRequest(w, r)
	if !ok {
		return
	}

	defer r.Body.Close()
	var payload startExportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	parent, children, err := s.exports.Start(r.Context(), org.ID,
		strings.ToLower(strings.TrimSpace(payload.Platform)), payload.DataTypes)
	if err != nil {
		http.Error(w, faults.UserMessage(err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, startExportResponse{
		Parent:   toJobResponse(parent),
		Children: toJobResponses(children),
	})
}

type browseResponse struct {
	DataType string              `json:"data_type"`
	Title    string              `json:"title"`
	Rows     []map[string]string `json:"rows"`
	Errors   []string            `json:"errors,omitempty"`
}

// handleBrowse returns a data type's live vendor objects rendered as
// worksheet rows, for the on-screen table view.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromRequest(w, r)
	if !ok {
		return
	}
	platform := strings.ToLower(chi.URLParam(r, "platform"))
	dataType := chi.URLParam(r, "dataType")

	schema, ok := s.registry.Schema(platform, dataType)
	if !ok {
		http.Error(w, "unknown data type", http.StatusNotFound)
		return
	}

	records, buildErrors, err := s.exports.Browse(r.Context(), org.ID, platform, dataType)
	if err != nil {
		http.Error(w, faults.UserMessage(err), http.StatusBadRequest)
		return
	}

	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.WorkbookRow())
	}
	writeJSON(w, http.StatusOK, browseResponse{
		DataType: schema.DataType,
		Title:    schema.Title,
		Rows:     rows,
		Errors:   buildErrors,
	})
}

func (s *Server) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromRequest(w, r)
	if !ok {
		return
	}
	jobID, ok := jobIDFromRequest(w, r)
	if !ok {
		return
	}

	path, err := s.exports.ResultFile(r.Context(), s.jobs, org.ID, jobID)
	if err != nil {
		switch {
		case errors.Is(err, jobqueue.ErrJobNotFound):
			http.Error(w, "export not found", http.StatusNotFound)
		default:
			http.Error(w, faults.UserMessage(err), http.StatusConflict)
		}
		return
	}

	filename := filepath.Base(path)
	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}
