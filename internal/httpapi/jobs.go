package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rpattn/ucprov/internal/jobqueue"
	"github.com/rpattn/ucprov/internal/ledger"
	"github.com/rpattn/ucprov/internal/logging"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromRequest(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}

	jobs, err := s.jobs.ListByOrg(r.Context(), org.ID, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("list jobs: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponses(jobs))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromRequest(w, r)
	if !ok {
		return
	}
	jobID, ok := jobIDFromRequest(w, r)
	if !ok {
		return
	}

	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil || job.OrgID != org.ID {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromRequest(w, r)
	if !ok {
		return
	}
	jobID, ok := jobIDFromRequest(w, r)
	if !ok {
		return
	}

	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil || job.OrgID != org.ID {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	if err := s.runner.Cancel(r.Context(), jobID); err != nil {
		if errors.Is(err, jobqueue.ErrJobNotRunnable) {
			http.Error(w, "job already finished", http.StatusConflict)
			return
		}
		http.Error(w, fmt.Sprintf("cancel job: %v", err), http.StatusInternalServerError)
		return
	}

	if _, err := s.events.Append(r.Context(), ledger.Event{
		OrgID:    org.ID,
		Actor:    "system",
		Platform: job.Platform,
		DataType: job.DataType,
		Action:   "CANCEL",
		JobID:    job.ID,
		Outcome:  ledger.OutcomeInfo,
		Detail:   fmt.Sprintf("Cancelled %s job.", job.Kind),
	}); err != nil {
		logging.FromContext(r.Context()).Error("failed to append ledger event", "error", err)
	}

	job, err = s.jobs.Get(r.Context(), jobID)
	if err != nil {
		http.Error(w, fmt.Sprintf("reload job: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}
