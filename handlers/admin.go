package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/giygas/mini-emr/catalog"
	"github.com/giygas/mini-emr/entities"
	"github.com/giygas/mini-emr/logging"
	"github.com/giygas/mini-emr/metrics"
	"github.com/giygas/mini-emr/selector"
	"github.com/giygas/mini-emr/session"
	"github.com/giygas/mini-emr/store"
	"github.com/giygas/mini-emr/validation"
)

// Picker is the state of one medication/dosage control pair
type Picker struct {
	Medications []string
	Dosages     []string
	Medication  string
	Dosage      string
	Disabled    bool
}

func newPicker(idx *catalog.Index, medication, dosage string) Picker {
	s := selector.New(idx, medication, dosage)
	st := s.State()
	return Picker{
		Medications: s.Medications(),
		Dosages:     s.Candidates(),
		Medication:  st.Medication,
		Dosage:      st.Dosage,
		Disabled:    s.DosageDisabled(),
	}
}

type prescriptionRow struct {
	entities.Prescription
	Picker Picker
}

type patientPage struct {
	Patient       *entities.Patient
	Appointments  []entities.Appointment
	Prescriptions []prescriptionRow
	NewPicker     Picker
	Schedules     []string
}

var schedules = []string{entities.ScheduleWeekly, entities.ScheduleMonthly}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "home.html", nil)
}

// AdminHome lists every patient
func (h *Handler) AdminHome(w http.ResponseWriter, r *http.Request) {
	patients, err := h.store.ListPatients(r.Context())
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Failed to load patients.", err)
		return
	}
	h.render(w, http.StatusOK, "admin.html", patients)
}

// AdminMeds lists the catalog rows
func (h *Handler) AdminMeds(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListCatalog(r.Context())
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Failed to load the medication catalog.", err)
		return
	}
	h.render(w, http.StatusOK, "meds.html", rows)
}

func (h *Handler) NewPatientForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "patient_new.html", nil)
}

// CreatePatient inserts a patient and redirects to its page
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form.", err)
		return
	}
	in, err := validation.ParseNewPatient(r.PostForm)
	if err != nil {
		h.formError(w, r, err)
		return
	}

	p := &entities.Patient{Name: in.Name, Email: in.Email, Phone: in.Phone}
	if in.Password != "" {
		hash, err := session.HashPassword(in.Password)
		if err != nil {
			h.formError(w, r, err)
			return
		}
		p.PasswordHash = &hash
	}

	if err := h.store.CreatePatient(r.Context(), p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			h.renderError(w, r, http.StatusConflict, "A patient with this email already exists.", err)
			return
		}
		h.formError(w, r, err)
		return
	}

	logging.Info("Patient created", "patient_id", p.ID)
	redirectToPatient(w, r, p.ID)
}

// loadPatient resolves {id} to a patient, rendering the error page on failure
func (h *Handler) loadPatient(w http.ResponseWriter, r *http.Request) (*entities.Patient, bool) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid patient id.", nil)
		return nil, false
	}
	p, err := h.store.GetPatient(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		h.renderError(w, r, http.StatusNotFound, "Patient not found.", nil)
		return nil, false
	}
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Failed to load patient.", err)
		return nil, false
	}
	return p, true
}

// PatientDetail shows the patient header, appointments newest first and
// prescriptions with their dosage pickers
func (h *Handler) PatientDetail(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPatient(w, r)
	if !ok {
		return
	}

	appts, err := h.store.ListAppointments(r.Context(), p.ID)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Failed to load appointments.", err)
		return
	}
	slices.Reverse(appts)

	rx, err := h.store.ListPrescriptions(r.Context(), p.ID)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Failed to load prescriptions.", err)
		return
	}

	idx := h.holder.GetIndex()
	rows := make([]prescriptionRow, len(rx))
	for i, item := range rx {
		rows[i] = prescriptionRow{Prescription: item, Picker: newPicker(idx, item.Medication, item.Dosage)}
	}

	h.render(w, http.StatusOK, "patient.html", patientPage{
		Patient:       p,
		Appointments:  appts,
		Prescriptions: rows,
		NewPicker:     newPicker(idx, "", ""),
		Schedules:     schedules,
	})
}

// UpdatePatient edits name and phone
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid patient id.", nil)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form.", err)
		return
	}
	in, err := validation.ParsePatientUpdate(r.PostForm)
	if err != nil {
		h.formError(w, r, err)
		return
	}
	if err := h.store.UpdatePatient(r.Context(), id, in.Name, in.Phone); err != nil {
		h.formError(w, r, err)
		return
	}
	redirectToPatient(w, r, id)
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid patient id.", nil)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form.", err)
		return
	}
	a, err := validation.ParseAppointment(r.PostForm, h.loc)
	if err != nil {
		h.formError(w, r, err)
		return
	}
	a.PatientID = id
	if err := h.store.CreateAppointment(r.Context(), &a); err != nil {
		h.formError(w, r, err)
		return
	}
	redirectToPatient(w, r, id)
}

func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid appointment id.", nil)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form.", err)
		return
	}
	a, err := validation.ParseAppointment(r.PostForm, h.loc)
	if err != nil {
		h.formError(w, r, err)
		return
	}
	a.ID = id
	patientID, err := h.store.UpdateAppointment(r.Context(), &a)
	if err != nil {
		h.formError(w, r, err)
		return
	}
	redirectToPatient(w, r, patientID)
}

func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid appointment id.", nil)
		return
	}
	patientID, err := h.store.DeleteAppointment(r.Context(), id)
	if err != nil {
		h.formError(w, r, err)
		return
	}
	redirectToPatient(w, r, patientID)
}

// parsePrescription reads the form and checks the pair against the current index
func (h *Handler) parsePrescription(w http.ResponseWriter, r *http.Request) (entities.Prescription, bool) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form.", err)
		return entities.Prescription{}, false
	}
	p, err := validation.ParsePrescription(r.PostForm, h.loc)
	if err != nil {
		h.formError(w, r, err)
		return p, false
	}
	if err := selector.Validate(h.holder.GetIndex(), p.Medication, p.Dosage); err != nil {
		metrics.SelectionRejections.WithLabelValues("form").Inc()
		logging.Warn("Rejected prescription selection", "medication", p.Medication, "dosage", p.Dosage)
		h.renderError(w, r, http.StatusUnprocessableEntity,
			fmt.Sprintf("%s %s is not in the medication catalog.", p.Medication, p.Dosage), nil)
		return p, false
	}
	return p, true
}

func (h *Handler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid patient id.", nil)
		return
	}
	p, ok := h.parsePrescription(w, r)
	if !ok {
		return
	}
	p.PatientID = id
	if err := h.store.CreatePrescription(r.Context(), &p); err != nil {
		h.formError(w, r, err)
		return
	}
	redirectToPatient(w, r, id)
}

func (h *Handler) UpdatePrescription(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid prescription id.", nil)
		return
	}
	p, ok := h.parsePrescription(w, r)
	if !ok {
		return
	}
	p.ID = id
	patientID, err := h.store.UpdatePrescription(r.Context(), &p)
	if err != nil {
		h.formError(w, r, err)
		return
	}
	redirectToPatient(w, r, patientID)
}

func (h *Handler) DeletePrescription(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid prescription id.", nil)
		return
	}
	patientID, err := h.store.DeletePrescription(r.Context(), id)
	if err != nil {
		h.formError(w, r, err)
		return
	}
	redirectToPatient(w, r, patientID)
}

func redirectToPatient(w http.ResponseWriter, r *http.Request, id int64) {
	http.Redirect(w, r, fmt.Sprintf("/admin/patients/%d", id), http.StatusSeeOther)
}
