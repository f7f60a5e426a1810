// Package httpapi exposes the provisioning engine over REST: workbook
// uploads, row submissions, job polling, exports, the event ledger and
// tenant administration.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/rpattn/ucprov/internal/credentials"
	"github.com/rpattn/ucprov/internal/dispatch"
	"github.com/rpattn/ucprov/internal/export"
	"github.com/rpattn/ucprov/internal/jobqueue"
	"github.com/rpattn/ucprov/internal/ledger"
	"github.com/rpattn/ucprov/internal/logging"
	"github.com/rpattn/ucprov/internal/registry"
	"github.com/rpattn/ucprov/internal/upload"
)

// Server binds the HTTP routes to the services behind them.
type Server struct {
	registry *registry.Registry
	orgs     ledger.OrgRepository
	events   ledger.Repository
	jobs     jobqueue.Repository
	runner   *jobqueue.Runner
	uploads  *upload.Service
	dispatch *dispatch.Service
	exports  *export.Service
	creds    credentials.Repository
}

func NewServer(
	reg *registry.Registry,
	orgs ledger.OrgRepository,
	events ledger.Repository,
	jobs jobqueue.Repository,
	runner *jobqueue.Runner,
	uploads *upload.Service,
	dispatchSvc *dispatch.Service,
	exports *export.Service,
	creds credentials.Repository,
) *Server {
	return &Server{
		registry: reg,
		orgs:     orgs,
		events:   events,
		jobs:     jobs,
		runner:   runner,
		uploads:  uploads,
		dispatch: dispatchSvc,
		exports:  exports,
		creds:    creds,
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/platforms", s.handleListPlatforms)
		r.Get("/platforms/{platform}/template", s.handleTemplate)
		r.Get("/platforms/{platform}/reference", s.handleReference)

		r.Post("/orgs", s.handleCreateOrg)
		r.Get("/orgs", s.handleListOrgs)

		r.Route("/orgs/{orgID}", func(r chi.Router) {
			r.Put("/credentials/{platform}", s.handleUpsertCredential)
			r.Get("/credentials", s.handleListCredentials)

			r.Post("/uploads", s.handleUpload)
			r.Post("/submissions", s.handleSubmit)
			r.Post("/exports", s.handleStartExport)
			r.Get("/exports/{jobID}/file", s.handleDownloadExport)
			r.Get("/browse/{platform}/{dataType}", s.handleBrowse)

			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{jobID}", s.handleGetJob)
			r.Post("/jobs/{jobID}/cancel", s.handleCancelJob)

			r.Get("/events", s.handleListEvents)
		})
	})
	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.FromContext(r.Context()).Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// jobResponse is the job representation returned by every endpoint,
// with the derived progress percentage alongside the raw counters.
type jobResponse struct {
	jobqueue.Job
	Progress int `json:"progress"`
}

func toJobResponse(job jobqueue.Job) jobResponse {
	return jobResponse{Job: job, Progress: job.ProgressPercent()}
}

func toJobResponses(jobs []jobqueue.Job) []jobResponse {
	responses := make([]jobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = toJobResponse(job)
	}
	return responses
}

// orgFromRequest resolves the {orgID} path segment to a known tenant,
// writing the error response itself when that fails.
func (s *Server) orgFromRequest(w http.ResponseWriter, r *http.Request) (ledger.Organization, bool) {
	raw := chi.URLParam(r, "orgID")
	orgID, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid organization id", http.StatusBadRequest)
		return ledger.Organization{}, false
	}
	org, err := s.orgs.Get(r.Context(), orgID)
	if err != nil {
		http.Error(w, "organization not found", http.StatusNotFound)
		return ledger.Organization{}, false
	}
	return org, true
}

func jobIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return jobID, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		http.Error(w, name+" must be zero or a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return parsed, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
