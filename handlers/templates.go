package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/giygas/mini-emr/entities"
	"github.com/giygas/mini-emr/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

const htmlContentType = "text/html; charset=utf-8"

var pageNames = []string{
	"home.html",
	"admin.html",
	"meds.html",
	"patient_new.html",
	"patient.html",
	"portal.html",
	"portal_all.html",
	"portal_patient.html",
	"error.html",
}

// scheduleOptions feeds the shared "schedule" select options
type scheduleOptions struct {
	Options []string
	Current string
}

func newScheduleOptions(options []string, current *string) scheduleOptions {
	return scheduleOptions{Options: options, Current: entities.StringValue(current)}
}

type pageSet struct {
	pages map[string]*template.Template
}

// loadPages parses every page against the shared base layout
func loadPages(loc *time.Location) (*pageSet, error) {
	funcs := template.FuncMap{
		"datetime": func(t time.Time) string { return t.In(loc).Format("Jan 2, 2006 3:04 PM") },
		"date":     func(t time.Time) string { return t.In(loc).Format("Jan 2, 2006") },
		"inputDateTime": func(t time.Time) string {
			return t.In(loc).Format("2006-01-02T15:04")
		},
		"inputDate": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.In(loc).Format("2006-01-02")
		},
		"str":             entities.StringValue,
		"scheduleOptions": newScheduleOptions,
		"qty": func(q *int) string {
			if q == nil {
				return ""
			}
			return strconv.Itoa(*q)
		},
	}

	base, err := template.New("base.html").Funcs(funcs).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, err
	}

	ps := &pageSet{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		page, err := clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		ps.pages[name] = page
	}
	return ps, nil
}

// render executes page inside the base layout
func (h *Handler) render(w http.ResponseWriter, code int, name string, data any) {
	page, ok := h.pages.pages[name]
	if !ok {
		logging.Error("Unknown page template", "page", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", htmlContentType)
	w.WriteHeader(code)
	if err := page.ExecuteTemplate(w, "base", data); err != nil {
		logging.Error("Failed to render template", "page", name, "error", err)
	}
}

type errorPage struct {
	Title     string
	Message   string
	BackURL   string
	BackLabel string
}

// renderError shows message on the error page and logs server-side failures
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, code int, message string, err error) {
	if code >= http.StatusInternalServerError && err != nil {
		logging.Error("Request failed", "path", r.URL.Path, "error", err)
	}

	page := errorPage{Title: http.StatusText(code), Message: message, BackURL: "/admin", BackLabel: "Back to Admin"}
	if strings.HasPrefix(r.URL.Path, "/portal") {
		page.BackURL, page.BackLabel = "/portal", "Back to Portal"
	}
	h.render(w, code, "error.html", page)
}

// formError renders the page for a failed form submission
func (h *Handler) formError(w http.ResponseWriter, r *http.Request, err error) {
	code := formStatus(err)
	message := err.Error()
	switch code {
	case http.StatusNotFound:
		message = "Record not found."
	case http.StatusConflict:
		message = "A record with these values already exists."
	case http.StatusInternalServerError:
		message = "Something went wrong."
	}
	h.renderError(w, r, code, message, err)
}
