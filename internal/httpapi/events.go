package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/ucprov/internal/ledger"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromRequest(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := ledger.Filter{
		Platform:  strings.TrimSpace(query.Get("platform")),
		DataType:  strings.TrimSpace(query.Get("data_type")),
		Action:    strings.ToUpper(strings.TrimSpace(query.Get("action"))),
		Outcome:   strings.ToUpper(strings.TrimSpace(query.Get("outcome"))),
		Ascending: strings.EqualFold(query.Get("order"), "asc"),
	}

	if raw := strings.TrimSpace(query.Get("job_id")); raw != "" {
		jobID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid job_id", http.StatusBadRequest)
			return
		}
		filter.JobID = jobID
	}

	if filter.Limit, ok = queryInt(w, r, "limit", 50); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, r, "offset", 0); !ok {
		return
	}

	var err error
	if filter.Since, err = queryTime(query.Get("since")); err != nil {
		http.Error(w, fmt.Sprintf("invalid since: %v", err), http.StatusBadRequest)
		return
	}
	if filter.Until, err = queryTime(query.Get("until")); err != nil {
		http.Error(w, fmt.Sprintf("invalid until: %v", err), http.StatusBadRequest)
		return
	}

	events, err := s.events.List(r.Context(), org.ID, filter)
	if err != nil {
		http.Error(w, fmt.Sprintf("list events: %v", err), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []ledger.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func queryTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
