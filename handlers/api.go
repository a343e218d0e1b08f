package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/giygas/mini-emr/catalog"
	"github.com/giygas/mini-emr/logging"
	"github.com/giygas/mini-emr/metrics"
	"github.com/giygas/mini-emr/selector"
	"github.com/giygas/mini-emr/session"
	"github.com/giygas/mini-emr/store"
	"github.com/giygas/mini-emr/validation"
)

type patientSummary struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// ListPatients returns {"patients": [{id, email}]}
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.store.ListPatients(r.Context())
	if err != nil {
		logging.Error("Failed to list patients", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to fetch patients")
		return
	}

	out := make([]patientSummary, len(patients))
	for i, p := range patients {
		out[i] = patientSummary{ID: p.ID, Email: p.Email}
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"patients": out})
}

// Login checks a patient's password and sets the session cookie
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req validation.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if err := req.Validate(); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	p, err := h.store.GetPatientByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Error("Login lookup failed", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	if p == nil || p.PasswordHash == nil || !session.CheckPassword(*p.PasswordHash, req.Password) {
		logging.Warn("Failed login", "email", req.Email, "remote_addr", r.RemoteAddr)
		RespondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if _, err := h.sessions.Issue(w, p.ID, p.Email); err != nil {
		if errors.Is(err, session.ErrNoSecret) {
			logging.Error("SESSION_SECRET is not set, cannot issue sessions")
			RespondWithError(w, http.StatusInternalServerError, "Server misconfiguration")
			return
		}
		logging.Error("Failed to issue session", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	logging.Info("Patient logged in", "patient_id", p.ID)
	RespondWithJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	RespondWithJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Ping echoes the current session, null when anonymous
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"session": session.FromContext(r.Context()),
	})
}

type catalogResponse struct {
	Catalog     *catalog.Index `json:"catalog"`
	LastUpdated string         `json:"last_updated,omitempty"`
	NextRefresh string         `json:"next_refresh,omitempty"`
}

// Catalog returns the index currently served to the forms
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	resp := catalogResponse{Catalog: h.holder.GetIndex()}
	if last := h.holder.GetLastUpdated(); !last.IsZero() {
		resp.LastUpdated = last.Format(time.RFC3339)
	}
	if h.health != nil {
		resp.NextRefresh = h.health.CalculateNextRefresh().Format(time.RFC3339)
	}
	RespondWithJSON(w, http.StatusOK, resp)
}

type selectionResponse struct {
	Medication     string   `json:"medication"`
	Dosage         string   `json:"dosage"`
	Dosages        []string `json:"dosages"`
	DosageDisabled bool     `json:"dosageDisabled"`
}

// CatalogSelection resolves a (medication, dosage) choice the way the
// dosage picker does: an unknown dosage falls back to the first candidate,
// an unknown medication is rejected.
func (h *Handler) CatalogSelection(w http.ResponseWriter, r *http.Request) {
	idx := h.holder.GetIndex()
	medication := r.URL.Query().Get("medication")
	dosage := r.URL.Query().Get("dosage")

	if medication != "" && !idx.Has(medication) {
		metrics.SelectionRejections.WithLabelValues("api").Inc()
		RespondWithError(w, http.StatusUnprocessableEntity, selector.ErrInvalidSelection.Error()+": unknown medication "+medication)
		return
	}

	s := selector.New(idx, medication, dosage)
	st := s.State()
	RespondWithJSON(w, http.StatusOK, selectionResponse{
		Medication:     st.Medication,
		Dosage:         st.Dosage,
		Dosages:        s.Candidates(),
		DosageDisabled: s.DosageDisabled(),
	})
}

type healthResponse struct {
	Status      string         `json:"status"`
	NextRefresh string         `json:"next_refresh"`
	Data        map[string]any `json:"data"`
}

// HealthCheck reports store and catalog health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		RespondWithJSON(w, http.StatusOK, healthResponse{Status: "healthy", Data: map[string]any{}})
		return
	}
	status, data, code := h.health.HealthCheck(r.Context())
	RespondWithJSON(w, code, healthResponse{
		Status:      status,
		NextRefresh: h.health.CalculateNextRefresh().Format(time.RFC3339),
		Data:        data,
	})
}
