package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/giygas/mini-emr/entities"
	"github.com/giygas/mini-emr/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "emr.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createPatient(t *testing.T, s *Store, name, email string) *entities.Patient {
	t.Helper()
	p := &entities.Patient{Name: name, Email: email}
	if err := s.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("CreatePatient(%s) failed: %v", email, err)
	}
	return p
}

func TestPatients(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	jane := createPatient(t, s, "Jane Doe", "jane@example.com")
	bob := createPatient(t, s, "Bob Nguyen", "bob@example.com")
	if jane.ID == 0 || bob.ID <= jane.ID {
		t.Fatalf("unexpected ids jane=%d bob=%d", jane.ID, bob.ID)
	}

	patients, err := s.ListPatients(ctx)
	if err != nil {
		t.Fatalf("ListPatients failed: %v", err)
	}
	if len(patients) != 2 || patients[0].Email != "jane@example.com" || patients[1].Email != "bob@example.com" {
		t.Errorf("ListPatients() = %+v, want jane then bob", patients)
	}

	phone := "555-123-4567"
	if err := s.UpdatePatient(ctx, jane.ID, "Jane Q. Doe", &phone); err != nil {
		t.Fatalf("UpdatePatient failed: %v", err)
	}
	got, err := s.GetPatient(ctx, jane.ID)
	if err != nil {
		t.Fatalf("GetPatient failed: %v", err)
	}
	if got.Name != "Jane Q. Doe" || entities.StringValue(got.Phone) != phone {
		t.Errorf("GetPatient() = %+v", got)
	}

	if err := s.UpdatePatient(ctx, jane.ID, "Jane Doe", nil); err != nil {
		t.Fatalf("UpdatePatient failed: %v", err)
	}
	got, _ = s.GetPatientByEmail(ctx, "jane@example.com")
	if got == nil || got.Phone != nil {
		t.Errorf("phone should be cleared, got %+v", got)
	}
}

func TestPatientErrors(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	createPatient(t, s, "Jane Doe", "jane@example.com")

	err := s.CreatePatient(ctx, &entities.Patient{Name: "Other", Email: "jane@example.com"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	if _, err := s.GetPatient(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetPatientByEmail(ctx, "nobody@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdatePatient(ctx, 999, "x", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertPatient(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	hash := "hash-1"
	p := &entities.Patient{Name: "Alice Carter", Email: "alice@example.com", PasswordHash: &hash}
	inserted, err := s.UpsertPatient(ctx, p)
	if err != nil || !inserted || p.ID == 0 {
		t.Fatalf("first UpsertPatient = %v, %v (id %d)", inserted, err, p.ID)
	}
	firstID := p.ID

	hash2 := "hash-2"
	again := &entities.Patient{Name: "Alice C.", Email: "alice@example.com", PasswordHash: &hash2}
	inserted, err = s.UpsertPatient(ctx, again)
	if err != nil || inserted {
		t.Fatalf("second UpsertPatient = %v, %v", inserted, err)
	}
	if again.ID != firstID {
		t.Errorf("upsert changed id: %d != %d", again.ID, firstID)
	}

	got, _ := s.GetPatient(ctx, firstID)
	if got.Name != "Alice C." || entities.StringValue(got.PasswordHash) != "hash-2" {
		t.Errorf("upsert did not update fields: %+v", got)
	}
}

func TestAppointments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	jane := createPatient(t, s, "Jane Doe", "jane@example.com")
	bob := createPatient(t, s, "Bob Nguyen", "bob@example.com")

	base := time.Date(2025, 10, 10, 10, 0, 0, 0, time.UTC)
	until := base.Add(60 * 24 * time.Hour)
	appts := []*entities.Appointment{
		{PatientID: jane.ID, Date: base.Add(48 * time.Hour), Reason: entities.StringPtr("Later")},
		{PatientID: jane.ID, Date: base, Reason: entities.StringPtr("General Checkup"), Provider: entities.StringPtr("Dr Kim"),
			RepeatSchedule: entities.StringPtr(entities.ScheduleMonthly), RepeatUntil: &until},
		{PatientID: bob.ID, Date: base.Add(time.Hour)},
	}
	for _, a := range appts {
		if err := s.CreateAppointment(ctx, a); err != nil {
			t.Fatalf("CreateAppointment failed: %v", err)
		}
	}

	list, err := s.ListAppointments(ctx, jane.ID)
	if err != nil {
		t.Fatalf("ListAppointments failed: %v", err)
	}
	if len(list) != 2 || entities.StringValue(list[0].Reason) != "General Checkup" {
		t.Fatalf("ListAppointments(jane) = %+v, want checkup first", list)
	}
	first := list[0]
	if !first.Date.Equal(base) || first.RepeatUntil == nil || !first.RepeatUntil.Equal(until) {
		t.Errorf("dates not preserved: %+v", first)
	}
	if entities.StringValue(first.Provider) != "Dr Kim" || entities.StringValue(first.RepeatSchedule) != "monthly" {
		t.Errorf("fields not preserved: %+v", first)
	}

	all, err := s.ListAppointments(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListAppointments(0) = %d rows, %v", len(all), err)
	}
	if all[1].PatientID != bob.ID {
		t.Errorf("all appointments should be date ordered, got %+v", all)
	}

	updated := *appts[0]
	updated.Reason = entities.StringPtr("Moved")
	updated.Date = base.Add(-time.Hour)
	owner, err := s.UpdateAppointment(ctx, &updated)
	if err != nil || owner != jane.ID {
		t.Fatalf("UpdateAppointment = %d, %v", owner, err)
	}
	list, _ = s.ListAppointments(ctx, jane.ID)
	if entities.StringValue(list[0].Reason) != "Moved" {
		t.Errorf("updated appointment should sort first, got %+v", list)
	}

	owner, err = s.DeleteAppointment(ctx, appts[2].ID)
	if err != nil || owner != bob.ID {
		t.Fatalf("DeleteAppointment = %d, %v", owner, err)
	}
	if _, err := s.DeleteAppointment(ctx, appts[2].ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
	if _, err := s.UpdateAppointment(ctx, &entities.Appointment{ID: 999, Date: base}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("update missing: expected ErrNotFound, got %v", err)
	}
}

func TestAppointmentUnknownPatient(t *testing.T) {
	s := openTestStore(t)
	err := s.CreateAppointment(context.Background(), &entities.Appointment{PatientID: 42, Date: time.Now()})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown patient, got %v", err)
	}
}

func TestPrescriptions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	jane := createPatient(t, s, "Jane Doe", "jane@example.com")

	qty := 30
	refill := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)
	rx := []*entities.Prescription{
		{PatientID: jane.ID, Medication: "Lisinopril", Dosage: "20mg"},
		{PatientID: jane.ID, Medication: "Atorvastatin", Dosage: "10mg", Quantity: &qty, RefillDate: &refill,
			RefillSchedule: entities.StringPtr(entities.ScheduleMonthly)},
	}
	for _, p := range rx {
		if err := s.CreatePrescription(ctx, p); err != nil {
			t.Fatalf("CreatePrescription failed: %v", err)
		}
	}

	list, err := s.ListPrescriptions(ctx, jane.ID)
	if err != nil {
		t.Fatalf("ListPrescriptions failed: %v", err)
	}
	if len(list) != 2 || list[0].Medication != "Atorvastatin" {
		t.Fatalf("ListPrescriptions() = %+v, want Atorvastatin first", list)
	}
	if list[0].Quantity == nil || *list[0].Quantity != 30 || list[0].RefillDate == nil || !list[0].RefillDate.Equal(refill) {
		t.Errorf("optional fields lost: %+v", list[0])
	}
	if list[1].Quantity != nil || list[1].RefillDate != nil || list[1].RefillSchedule != nil {
		t.Errorf("nil fields should stay nil: %+v", list[1])
	}

	change := *rx[0]
	change.Dosage = "10mg"
	owner, err := s.UpdatePrescription(ctx, &change)
	if err != nil || owner != jane.ID {
		t.Fatalf("UpdatePrescription = %d, %v", owner, err)
	}

	owner, err = s.DeletePrescription(ctx, rx[1].ID)
	if err != nil || owner != jane.ID {
		t.Fatalf("DeletePrescription = %d, %v", owner, err)
	}
	list, _ = s.ListPrescriptions(ctx, 0)
	if len(list) != 1 || list[0].Dosage != "10mg" {
		t.Errorf("after update/delete: %+v", list)
	}
}

func TestCatalogAndCounts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	pairs := [][2]string{{"Lisinopril", "20mg"}, {"Atorvastatin", "10mg"}, {"Lisinopril", "10mg"}}
	for _, p := range pairs {
		inserted, err := s.UpsertCatalogEntry(ctx, p[0], p[1])
		if err != nil || !inserted {
			t.Fatalf("UpsertCatalogEntry(%v) = %v, %v", p, inserted, err)
		}
	}
	inserted, err := s.UpsertCatalogEntry(ctx, "Lisinopril", "20mg")
	if err != nil || inserted {
		t.Errorf("duplicate pair: inserted=%v err=%v", inserted, err)
	}

	entries, err := s.ListCatalog(ctx)
	if err != nil {
		t.Fatalf("ListCatalog failed: %v", err)
	}
	want := []string{"Atorvastatin 10mg", "Lisinopril 10mg", "Lisinopril 20mg"}
	if len(entries) != len(want) {
		t.Fatalf("ListCatalog() = %+v", entries)
	}
	for i, e := range entries {
		if got := e.MedicationName + " " + e.Dosage; got != want[i] {
			t.Errorf("entry %d = %s, want %s", i, got, want[i])
		}
	}

	jane := createPatient(t, s, "Jane Doe", "jane@example.com")
	_ = s.CreateAppointment(ctx, &entities.Appointment{PatientID: jane.ID, Date: time.Now()})

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts != (entities.Counts{Patients: 1, Appointments: 1, Prescriptions: 0, Medications: 3}) {
		t.Errorf("Counts() = %+v", counts)
	}
}

func TestOpenInMemoryAndPing(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if _, err := Open(context.Background(), ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"emr.db", "file:emr.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"file:emr.db", "file:emr.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"file:emr.db?cache=shared", "file:emr.db?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"file:emr.db?_pragma=busy_timeout(100)", "file:emr.db?_pragma=busy_timeout(100)&_pragma=foreign_keys(1)"},
		{"file:emr.db?_pragma=foreign_keys(1)", "file:emr.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
	}
	for _, tt := range tests {
		if got := dsn(tt.in); got != tt.want {
			t.Errorf("dsn(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenFileURIEnforcesForeignKeys(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s, err := Open(context.Background(), "file:"+filepath.Join(dir, "emr.db")+"?_pragma=busy_timeout(1000)")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	err = s.CreateAppointment(context.Background(), &entities.Appointment{PatientID: 42, Date: time.Now()})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown patient, got %v", err)
	}
}

func TestListsSortByteWise(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	jane := createPatient(t, s, "Jane Doe", "jane@example.com")

	for _, name := range []string{"atorvastatin", "Lisinopril", "Zocor"} {
		if _, err := s.UpsertCatalogEntry(ctx, name, "10mg"); err != nil {
			t.Fatalf("UpsertCatalogEntry failed: %v", err)
		}
		if err := s.CreatePrescription(ctx, &entities.Prescription{PatientID: jane.ID, Medication: name, Dosage: "10mg"}); err != nil {
			t.Fatalf("CreatePrescription failed: %v", err)
		}
	}

	want := []string{"Lisinopril", "Zocor", "atorvastatin"}
	entries, err := s.ListCatalog(ctx)
	if err != nil {
		t.Fatalf("ListCatalog failed: %v", err)
	}
	rxs, err := s.ListPrescriptions(ctx, jane.ID)
	if err != nil {
		t.Fatalf("ListPrescriptions failed: %v", err)
	}
	for i, name := range want {
		if entries[i].MedicationName != name || rxs[i].Medication != name {
			t.Errorf("row %d = %s / %s, want %s", i, entries[i].MedicationName, rxs[i].Medication, name)
		}
	}
}
