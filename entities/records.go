// Package entities defines the persisted records of the EMR: patients, their
// appointments and prescriptions, and the medication catalog reference rows.
package entities

import "time"

// Repeat and refill schedules accepted by the forms. An empty string means none.
const (
	ScheduleNone    = ""
	ScheduleWeekly  = "weekly"
	ScheduleMonthly = "monthly"
)

// ValidSchedule reports whether s is one of the accepted schedule values
func ValidSchedule(s string) bool {
	switch s {
	case ScheduleNone, ScheduleWeekly, ScheduleMonthly:
		return true
	}
	return false
}

type Patient struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Phone        *string `json:"phone,omitempty"`
	PasswordHash *string `json:"-"`
}

type Appointment struct {
	ID             int64      `json:"id"`
	PatientID      int64      `json:"patientId"`
	Date           time.Time  `json:"date"`
	Reason         *string    `json:"reason,omitempty"`
	Provider       *string    `json:"provider,omitempty"`
	RepeatSchedule *string    `json:"repeatSchedule,omitempty"`
	RepeatUntil    *time.Time `json:"repeatUntil,omitempty"`
}

type Prescription struct {
	ID             int64      `json:"id"`
	PatientID      int64      `json:"patientId"`
	Medication     string     `json:"medication"`
	Dosage         string     `json:"dosage"`
	Quantity       *int       `json:"quantity,omitempty"`
	RefillDate     *time.Time `json:"refillDate,omitempty"`
	RefillSchedule *string    `json:"refillSchedule,omitempty"`
}

// CatalogEntry is one (medication, dosage) row of the reference catalog.
// The pair is unique in storage.
type CatalogEntry struct {
	ID             int64  `json:"id"`
	MedicationName string `json:"medicationName"`
	Dosage         string `json:"dosage"`
}

// Counts summarises table sizes, used by the CLI and the health endpoint
type Counts struct {
	Patients      int `json:"patients"`
	Appointments  int `json:"appts"`
	Prescriptions int `json:"rx"`
	Medications   int `json:"meds"`
}

// StringPtr returns nil for an empty string, otherwise a pointer to s
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
