// Package validation parses and checks the admin forms and the login request
// before anything reaches the store.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/giygas/mini-emr/entities"
)

// Layouts accepted from the browser date inputs
const (
	DateTimeLayout = "2006-01-02T15:04"
	DateLayout     = "2006-01-02"
)

const maxTextLength = 200

// dangerousPatterns catches markup and script injection in free text.
// Output is escaped by the templates; this keeps it out of storage too.
var dangerousPatterns = []string{
	"<script", "</script>", "javascript:", "vbscript:", "data:text/html",
	"onload=", "onerror=", "onclick=", "onmouseover=", "onfocus=",
	"<iframe", "<object", "<embed", "expression(",
}

// FieldError names the form field that failed and why
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsFieldError reports whether err is (or wraps) a *FieldError
func IsFieldError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

func fieldErr(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParseID parses a positive integer path or form id
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fieldErr("id", "must be a positive integer")
	}
	return id, nil
}

// CheckText rejects overlong values and known injection patterns
func CheckText(field, value string) error {
	if len(value) > maxTextLength {
		return fieldErr(field, "must be at most %d characters", maxTextLength)
	}
	lower := strings.ToLower(value)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return fieldErr(field, "contains potentially dangerous content")
		}
	}
	return nil
}

func text(form url.Values, field string) (string, error) {
	v := strings.TrimSpace(form.Get(field))
	if err := CheckText(field, v); err != nil {
		return "", err
	}
	return v, nil
}

func required(form url.Values, field string) (string, error) {
	v, err := text(form, field)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fieldErr(field, "is required")
	}
	return v, nil
}

func optional(form url.Values, field string) (*string, error) {
	v, err := text(form, field)
	if err != nil {
		return nil, err
	}
	return entities.StringPtr(v), nil
}

func schedule(form url.Values, field string) (*string, error) {
	v := strings.ToLower(strings.TrimSpace(form.Get(field)))
	if !entities.ValidSchedule(v) {
		return nil, fieldErr(field, "must be one of none, weekly, monthly")
	}
	return entities.StringPtr(v), nil
}

// CheckEmail accepts a bare address such as jane@example.com
func CheckEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return fieldErr("email", "must be a valid email address")
	}
	return nil
}

// parseDateTime reads a datetime-local value in loc. RFC 3339 values keep their own offset.
func parseDateTime(field, raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{DateTimeLayout, DateTimeLayout + ":05"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fieldErr(field, "must be a date and time (YYYY-MM-DDTHH:MM)")
}

func parseOptionalDate(form url.Values, field string, loc *time.Location) (*time.Time, error) {
	raw := strings.TrimSpace(form.Get(field))
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return nil, fieldErr(field, "must be a date (YYYY-MM-DD)")
	}
	t = t.UTC()
	return &t, nil
}

// calendarDay returns the date of t as seen in loc, at midnight UTC
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PatientInput is a validated new-patient form
type PatientInput struct {
	Name     string
	Email    string
	Phone    *string
	Password string
}

// ParseNewPatient requires name and email. Password is optional; without
// one the patient cannot log in to the portal.
func ParseNewPatient(form url.Values) (PatientInput, error) {
	var in PatientInput
	var err error

	if in.Name, err = required(form, "name"); err != nil {
		return in, err
	}
	if in.Email, err = required(form, "email"); err != nil {
		return in, err
	}
	in.Email = strings.ToLower(in.Email)
	if err := CheckEmail(in.Email); err != nil {
		return in, err
	}
	if in.Phone, err = optional(form, "phone"); err != nil {
		return in, err
	}
	in.Password = form.Get("password")
	if in.Password != "" && len(in.Password) < 6 {
		return in, fieldErr("password", "must be at least 6 characters")
	}
	return in, nil
}

// PatientUpdate is a validated edit of the patient header
type PatientUpdate struct {
	Name  string
	Phone *string
}

// ParsePatientUpdate requires a name; an empty phone clears it
func ParsePatientUpdate(form url.Values) (PatientUpdate, error) {
	var in PatientUpdate
	var err error
	if in.Name, err = required(form, "name"); err != nil {
		return in, err
	}
	if in.Phone, err = optional(form, "phone"); err != nil {
		return in, err
	}
	return in, nil
}

// ParseAppointment reads the appointment form into a, leaving ID and
// PatientID to the caller. Date is required; times are read in loc.
func ParseAppointment(form url.Values, loc *time.Location) (entities.Appointment, error) {
	var a entities.Appointment
	var err error

	rawDate := strings.TrimSpace(form.Get("date"))
	if rawDate == "" {
		return a, fieldErr("date", "is required")
	}
	if a.Date, err = parseDateTime("date", rawDate, loc); err != nil {
		return a, err
	}
	if a.Reason, err = optional(form, "reason"); err != nil {
		return a, err
	}
	if a.Provider, err = optional(form, "provider"); err != nil {
		return a, err
	}
	if a.RepeatSchedule, err = schedule(form, "repeatSchedule"); err != nil {
		return a, err
	}
	if a.RepeatUntil, err = parseOptionalDate(form, "repeatUntil", loc); err != nil {
		return a, err
	}
	if a.RepeatUntil != nil && calendarDay(*a.RepeatUntil, loc).Before(calendarDay(a.Date, loc)) {
		return a, fieldErr("repeatUntil", "must not be before the appointment date")
	}
	return a, nil
}

// ParsePrescription reads the prescription form. Medication and dosage are
// required here; whether they form a valid catalog pair is checked by the caller.
func ParsePrescription(form url.Values, loc *time.Location) (entities.Prescription, error) {
	var p entities.Prescription
	var err error

	if p.Medication, err = required(form, "medication"); err != nil {
		return p, err
	}
	if p.Dosage, err = required(form, "dosage"); err != nil {
		return p, err
	}

	if raw := strings.TrimSpace(form.Get("quantity")); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil || q < 0 {
			return p, fieldErr("quantity", "must be a non-negative whole number")
		}
		p.Quantity = &q
	}
	if p.RefillDate, err = parseOptionalDate(form, "refillDate", loc); err != nil {
		return p, err
	}
	if p.RefillSchedule, err = schedule(form, "refillSchedule"); err != nil {
		return p, err
	}
	return p, nil
}

// LoginRequest is the JSON body of POST /api/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate requires both fields and normalizes the email
func (l *LoginRequest) Validate() error {
	l.Email = strings.ToLower(strings.TrimSpace(l.Email))
	if l.Email == "" || l.Password == "" {
		return &FieldError{Field: "email", Message: "Email and password are required"}
	}
	return nil
}
