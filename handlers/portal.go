package handlers

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/giygas/mini-emr/entities"
	"github.com/giygas/mini-emr/session"
	"github.com/giygas/mini-emr/window"
)

const (
	allViewAppointments  = 3
	allViewPrescriptions = 5
)

// portalCard is one patient's section on the portal overview pages
type portalCard struct {
	Patient       entities.Patient
	Appointments  []entities.Appointment
	Prescriptions []entities.Prescription
}

type portalPage struct {
	Cards []portalCard
	Days  int
}

type portalPatientPage struct {
	Patient       *entities.Patient
	Appointments  []entities.Appointment
	Prescriptions []entities.Prescription
}

func appointmentDate(a entities.Appointment) time.Time { return a.Date }
func refillDate(p entities.Prescription) *time.Time { return p.RefillDate }
func appointmentPatient(a entities.Appointment) int64 { return a.PatientID }
func prescriptionPatient(p entities.Prescription) int64 { return p.PatientID }

// groupBy keeps the input order within each group
func groupBy[T any](items []T, key func(T) int64) map[int64][]T {
	out := make(map[int64][]T)
	for _, item := range items {
		out[key(item)] = append(out[key(item)], item)
	}
	return out
}

// loadCards lists every patient with all their appointments and prescriptions
func (h *Handler) loadCards(r *http.Request) ([]entities.Patient, map[int64][]entities.Appointment, map[int64][]entities.Prescription, error) {
	patients, err := h.store.ListPatients(r.Context())
	if err != nil {
		return nil, nil, nil, err
	}
	appts, err := h.store.ListAppointments(r.Context(), 0)
	if err != nil {
		return nil, nil, nil, err
	}
	rx, err := h.store.ListPrescriptions(r.Context(), 0)
	if err != nil {
		return nil, nil, nil, err
	}
	return patients, groupBy(appts, appointmentPatient), groupBy(rx, prescriptionPatient), nil
}

// PortalDashboard shows, per patient, what happens within the dashboard window
func (h *Handler) PortalDashboard(w http.ResponseWriter, r *http.Request) {
	patients, appts, rx, err := h.loadCards(r)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Failed to load the portal.", err)
		return
	}

	win := window.NextDays(h.now(), h.windowDays)
	cards := make([]portalCard, len(patients))
	for i, p := range patients {
		refills := window.WithinNullable(rx[p.ID], win, refillDate)
		slices.SortStableFunc(refills, func(a, b entities.Prescription) int {
			return a.RefillDate.Compare(*b.RefillDate)
		})
		cards[i] = portalCard{
			Patient:       p,
			Appointments:  window.Within(appts[p.ID], win, appointmentDate),
			Prescriptions: refills,
		}
	}

	h.render(w, http.StatusOK, "portal.html", portalPage{Cards: cards, Days: h.windowDays})
}

// PortalAll shows, per patient, the next few appointments and first prescriptions
func (h *Handler) PortalAll(w http.ResponseWriter, r *http.Request) {
	patients, appts, rx, err := h.loadCards(r)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Failed to load the portal.", err)
		return
	}

	now := h.now()
	cards := make([]portalCard, len(patients))
	for i, p := range patients {
		cards[i] = portalCard{
			Patient:       p,
			Appointments:  window.Take(window.Upcoming(appts[p.ID], now, appointmentDate), allViewAppointments),
			Prescriptions: window.Take(rx[p.ID], allViewPrescriptions),
		}
	}

	h.render(w, http.StatusOK, "portal_all.html", portalPage{Cards: cards})
}

// PortalPatient shows one patient's upcoming appointments and every prescription
func (h *Handler) PortalPatient(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPatient(w, r)
	if !ok {
		return
	}

	appts, err := h.store.ListAppointments(r.Context(), p.ID)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Failed to load appointments.", err)
		return
	}
	rx, err := h.store.ListPrescriptions(r.Context(), p.ID)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Failed to load prescriptions.", err)
		return
	}

	h.render(w, http.StatusOK, "portal_patient.html", portalPatientPage{
		Patient:       p,
		Appointments:  window.Upcoming(appts, h.now(), appointmentDate),
		Prescriptions: rx,
	})
}

// PortalMe sends a logged-in patient to their own page
func (h *Handler) PortalMe(w http.ResponseWriter, r *http.Request) {
	claims := session.FromContext(r.Context())
	if claims == nil {
		http.Redirect(w, r, "/portal", http.StatusSeeOther)
		return
	}
	id, err := claims.PatientID()
	if err != nil {
		http.Redirect(w, r, "/portal", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/portal/%d", id), http.StatusSeeOther)
}

