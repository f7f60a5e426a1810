package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rpattn/ucprov/internal/credentials"
)

type createOrgPayload struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload createOrgPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	org, err := s.orgs.Create(r.Context(), name)
	if err != nil {
		http.Error(w, fmt.Sprintf("create organization: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (s *Server) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.orgs.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("list organizations: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

type upsertCredentialPayload struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

func (s *Server) handleUpsertCredential(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromRequest(w, r)
	if !ok {
		return
	}
	platform := strings.ToLower(chi.URLParam(r, "platform"))
	if len(s.registry.Schemas(platform)) == 0 {
		http.Error(w, fmt.Sprintf("unknown platform %q", platform), http.StatusNotFound)
		return
	}

	defer r.Body.Close()
	var payload upsertCredentialPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.BaseURL) == "" || strings.TrimSpace(payload.Token) == "" {
		http.Error(w, "base_url and token are required", http.StatusBadRequest)
		return
	}

	cred := credentials.Credential{
		OrgID:    org.ID,
		Platform: platform,
		BaseURL:  strings.TrimSpace(payload.BaseURL),
		Token:    strings.TrimSpace(payload.Token),
	}
	if err := s.creds.Upsert(r.Context(), cred); err != nil {
		http.Error(w, fmt.Sprintf("store credential: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	org, ok := s.orgFromRequest(w, r)
	if !ok {
		return
	}
	creds, err := s.creds.ListByOrg(r.Context(), org.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("list credentials: %v", err), http.StatusInternalServerError)
		return
	}
	// Tokens are never echoed back; the json tag on Credential drops them.
	writeJSON(w, http.StatusOK, creds)
}
