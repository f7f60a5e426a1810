package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rpattn/ucprov/internal/rowmodel"
	"github.com/rpattn/ucprov/internal/workbook"
)

func (s *Server) handleListPlatforms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Platforms())
}

// handleTemplate streams a blank upload workbook for every data type of
// the platform, header rows plus the Reference sheet.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	platform := strings.ToLower(chi.URLParam(r, "platform"))
	schemas := s.registry.Schemas(platform)
	uploadable := schemas[:0]
	for _, schema := range schemas {
		if schema.SupportsOp(rowmodel.SupportsUpload) {
			uploadable = append(uploadable, schema)
		}
	}
	if len(uploadable) == 0 {
		http.Error(w, fmt.Sprintf("unknown platform %q", platform), http.StatusNotFound)
		return
	}

	f, err := workbook.BuildTemplate(uploadable)
	if err != nil {
		http.Error(w, fmt.Sprintf("build template: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", platform+"_template.xlsx"))
	if err := f.Write(w); err != nil {
		// Headers are gone; nothing left to do but note it.
		return
	}
}

type referenceEntry struct {
	DataType    string              `json:"data_type"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Supports    []string            `json:"supports"`
	BulkActions []rowmodel.Action   `json:"bulk_actions"`
	Columns     []rowmodel.DocField `json:"columns"`
}

// handleReference returns the column documentation for every data type
// of the platform, the same content the template's Reference sheet
// renders.
func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	platform := strings.ToLower(chi.URLParam(r, "platform"))
	schemas := s.registry.Schemas(platform)
	if len(schemas) == 0 {
		http.Error(w, fmt.Sprintf("unknown platform %q", platform), http.StatusNotFound)
		return
	}

	entries := make([]referenceEntry, 0, len(schemas))
	for _, schema := range schemas {
		entries = append(entries, referenceEntry{
			DataType:    schema.DataType,
			Title:       schema.Title,
			Description: schema.Description,
			Supports:    schema.Supports,
			BulkActions: schema.BulkActions,
			Columns:     schema.DocFields(),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}
