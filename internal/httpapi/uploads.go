package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/ucprov/internal/dispatch"
	"github.com/rpattn/ucprov/internal/rowmodel"
)

const maxWorkbookBytes = 32 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromRequest(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxWorkbookBytes); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	platform := strings.ToLower(strings.TrimSpace(r.FormValue("platform")))
	if platform == "" {
		http.Error(w, "platform is required", http.StatusBadRequest)
		return
	}
	if len(s.registry.Schemas(platform)) == 0 {
		http.Error(w, fmt.Sprintf("unknown platform %q", platform), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	job, err := s.uploads.Enqueue(r.Context(), org.ID, platform, data)
	if err != nil {
		http.Error(w, fmt.Sprintf("enqueue upload: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

type submitRowPayload struct {
	DataType string `json:"data_type"`
	RowNum   int    `json:"row_num"`
	Action   string `json:"action"`
}

type submitPayload struct {
	UploadJobID string             `json:"upload_job_id"`
	Platform    string             `json:"platform"`
	Rows        []submitRowPayload `json:"rows"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromRequest(w, r)
	if !ok {
		return
	}

	defer r.Body.Close()
	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	uploadJobID, err := uuid.Parse(strings.TrimSpace(payload.UploadJobID))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid upload_job_id: %v", err), http.StatusBadRequest)
		return
	}
	if len(payload.Rows) == 0 {
		http.Error(w, "rows is required", http.StatusBadRequest)
		return
	}

	submissions := make([]dispatch.Submission, 0, len(payload.Rows))
	for _, row := range payload.Rows {
		if _, ok := s.registry.Schema(payload.Platform, row.DataType); !ok {
			http.Error(w, fmt.Sprintf("unknown data type %q", row.DataType), http.StatusBadRequest)
			return
		}
		var action rowmodel.Action
		if strings.TrimSpace(row.Action) != "" {
			action, err = rowmodel.ParseAction(row.Action)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		submissions = append(submissions, dispatch.Submission{
			UploadJobID: uploadJobID,
			Platform:    payload.Platform,
			DataType:    row.DataType,
			RowNum:      row.RowNum,
			Action:      action,
		})
	}

	jobs, err := s.dispatch.Submit(r.Context(), org.ID, submissions)
	if err != nil {
		http.Error(w, fmt.Sprintf("enqueue submissions: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponses(jobs))
}
