// Package handlers serves the admin and portal pages and the JSON API of the EMR.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/giygas/mini-emr/interfaces"
	"github.com/giygas/mini-emr/logging"
	"github.com/giygas/mini-emr/session"
	"github.com/giygas/mini-emr/store"
	"github.com/giygas/mini-emr/validation"
	"github.com/go-chi/chi/v5"
)

const defaultWindowDays = 7

// Options tunes rendering and the portal dashboard
type Options struct {
	// Location is used to read datetime-local inputs and to display dates
	Location   *time.Location
	WindowDays int
	Health     interfaces.HealthChecker
}

// Handler holds the dependencies shared by every route
type Handler struct {
	store      interfaces.RecordStore
	holder     interfaces.CatalogHolder
	sessions   *session.Manager
	health     interfaces.HealthChecker
	pages      *pageSet
	loc        *time.Location
	windowDays int
	now        func() time.Time
}

// NewHandler parses the page templates and returns a ready Handler
func NewHandler(rs interfaces.RecordStore, holder interfaces.CatalogHolder, sessions *session.Manager, opts Options) (*Handler, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = defaultWindowDays
	}

	pages, err := loadPages(opts.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	return &Handler{
		store:      rs,
		holder:     holder,
		sessions:   sessions,
		health:     opts.Health,
		pages:      pages,
		loc:        opts.Location,
		windowDays: opts.WindowDays,
		now:        time.Now,
	}, nil
}

// PageRoutes registers the landing, admin and portal pages
func (h *Handler) PageRoutes(r chi.Router) {
	r.Get("/", h.Home)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/", h.AdminHome)
		r.Get("/meds", h.AdminMeds)
		r.Get("/patients/new", h.NewPatientForm)
		r.Post("/patients", h.CreatePatient)
		r.Get("/patients/{id}", h.PatientDetail)
		r.Post("/patients/{id}", h.UpdatePatient)
		r.Post("/patients/{id}/appointments", h.CreateAppointment)
		r.Post("/patients/{id}/prescriptions", h.CreatePrescription)
		r.Post("/appointments/{id}", h.UpdateAppointment)
		r.Post("/appointments/{id}/delete", h.DeleteAppointment)
		r.Post("/prescriptions/{id}", h.UpdatePrescription)
		r.Post("/prescriptions/{id}/delete", h.DeletePrescription)
	})

	r.Route("/portal", func(r chi.Router) {
		r.Get("/", h.PortalDashboard)
		r.Get("/all", h.PortalAll)
		r.Get("/me", h.PortalMe)
		r.Get("/{id}", h.PortalPatient)
	})
}

// APIRoutes registers the JSON API relative to its mount point
func (h *Handler) APIRoutes(r chi.Router) {
	r.Get("/patients", h.ListPatients)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Get("/ping", h.Ping)
	r.Get("/catalog", h.Catalog)
	r.Get("/catalog/selection", h.CatalogSelection)
}

// RespondWithJSON writes payload as JSON with the given status
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(data)
}

// RespondWithError writes the {error, message, code} JSON error body
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	})
}

// idParam parses the {id} URL parameter
func idParam(r *http.Request) (int64, error) {
	return validation.ParseID(chi.URLParam(r, "id"))
}

// formStatus maps a form handling error to the status of the page shown for it
func formStatus(err error) int {
	switch {
	case validation.IsFieldError(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
