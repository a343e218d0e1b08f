// Package sqlite implements interfaces.RecordStore on an embedded SQLite file
// through database/sql and the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/giygas/mini-emr/entities"
	"github.com/giygas/mini-emr/interfaces"
	"github.com/giygas/mini-emr/store"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var _ interfaces.RecordStore = (*Store)(nil)

// Timestamps are stored as INTEGER unix milliseconds (UTC)
const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	phone         TEXT,
	password_hash TEXT
);

CREATE TABLE IF NOT EXISTS appointments (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id      INTEGER NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	provider        TEXT,
	reason          TEXT,
	date            INTEGER NOT NULL,
	repeat_schedule TEXT,
	repeat_until    INTEGER
);
CREATE INDEX IF NOT EXISTS appointments_patient_date ON appointments(patient_id, date);

CREATE TABLE IF NOT EXISTS prescriptions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id      INTEGER NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	medication      TEXT NOT NULL,
	dosage          TEXT NOT NULL,
	quantity        INTEGER,
	refill_date     INTEGER,
	refill_schedule TEXT
);
CREATE INDEX IF NOT EXISTS prescriptions_patient ON prescriptions(patient_id);

CREATE TABLE IF NOT EXISTS medication_catalog (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	medication_name TEXT NOT NULL,
	dosage          TEXT NOT NULL,
	UNIQUE (medication_name, dosage)
);
`

// Store is the SQLite RecordStore
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the database file (and its directory) if needed and applies the schema.
// path may be ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if file := filePath(path); file != "" && file != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// requiredPragmas are appended to every DSN that does not set them itself
var requiredPragmas = []struct{ name, value string }{
	{"foreign_keys", "foreign_keys(1)"},
	{"busy_timeout", "busy_timeout(5000)"},
}

func dsn(path string) string {
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range requiredPragmas {
		if strings.Contains(path, "_pragma="+p.name) {
			continue
		}
		path += sep + "_pragma=" + p.value
		sep = "&"
	}
	return path
}

// filePath strips the file: scheme and query from a DSN
func filePath(path string) string {
	path = strings.TrimPrefix(path, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	return path
}

// Path returns the database location given to Open
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// translate maps driver errors onto the store sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var se *msqlite.Error
	if !errors.As(err, &se) || se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}
	switch {
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE, strings.Contains(err.Error(), "UNIQUE"):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, strings.Contains(err.Error(), "FOREIGN KEY"):
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}
	return err
}

// Patients

const patientColumns = `id, name, email, phone, password_hash`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (entities.Patient, error) {
	var p entities.Patient
	var phone, hash sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &phone, &hash); err != nil {
		return p, err
	}
	p.Phone = nullString(phone)
	p.PasswordHash = nullString(hash)
	return p, nil
}

func (s *Store) ListPatients(ctx context.Context) ([]entities.Patient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	patients := []entities.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func (s *Store) GetPatient(ctx context.Context, id int64) (*entities.Patient, error) {
	p, err := scanPatient(s.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id))
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) GetPatientByEmail(ctx context.Context, email string) (*entities.Patient, error) {
	p, err := scanPatient(s.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE email = ?`, email))
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) CreatePatient(ctx context.Context, p *entities.Patient) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO patients (name, email, phone, password_hash) VALUES (?, ?, ?, ?)`,
		p.Name, p.Email, p.Phone, p.PasswordHash)
	if err != nil {
		return fmt.Errorf("create patient: %w", translate(err))
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdatePatient(ctx context.Context, id int64, name string, phone *string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE patients SET name = ?, phone = ? WHERE id = ?`, name, phone, id)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) UpsertPatient(ctx context.Context, p *entities.Patient) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM patients WHERE email = ?`, p.Email).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO patients (name, email, phone, password_hash) VALUES (?, ?, ?, ?)`,
			p.Name, p.Email, p.Phone, p.PasswordHash)
		if err != nil {
			return false, fmt.Errorf("insert patient: %w", translate(err))
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return false, err
		}
		return true, tx.Commit()
	case err != nil:
		return false, fmt.Errorf("lookup patient: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE patients SET name = ?, phone = ?, password_hash = ? WHERE id = ?`,
		p.Name, p.Phone, p.PasswordHash, id); err != nil {
		return false, fmt.Errorf("update patient: %w", err)
	}
	p.ID = id
	return false, tx.Commit()
}

// Appointments

const appointmentColumns = `id, patient_id, provider, reason, date, repeat_schedule, repeat_until`

func scanAppointment(row rowScanner) (entities.Appointment, error) {
	var a entities.Appointment
	var provider, reason, schedule sql.NullString
	var date int64
	var until sql.NullInt64
	if err := row.Scan(&a.ID, &a.PatientID, &provider, &reason, &date, &schedule, &until); err != nil {
		return a, err
	}
	a.Provider = nullString(provider)
	a.Reason = nullString(reason)
	a.Date = store.FromMillis(date)
	a.RepeatSchedule = nullString(schedule)
	a.RepeatUntil = store.NullableTime(nullInt(until))
	return a, nil
}

func (s *Store) ListAppointments(ctx context.Context, patientID int64) ([]entities.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	var args []any
	if patientID != 0 {
		query += ` WHERE patient_id = ?`
		args = append(args, patientID)
	}
	query += ` ORDER BY date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	appts := []entities.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (s *Store) CreateAppointment(ctx context.Context, a *entities.Appointment) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO appointments (patient_id, provider, reason, date, repeat_schedule, repeat_until)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.PatientID, a.Provider, a.Reason, store.ToMillis(a.Date), a.RepeatSchedule, store.NullableMillis(a.RepeatUntil))
	if err != nil {
		return fmt.Errorf("create appointment: %w", translate(err))
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateAppointment(ctx context.Context, a *entities.Appointment) (int64, error) {
	var patientID int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE appointments SET provider = ?, reason = ?, date = ?, repeat_schedule = ?, repeat_until = ?
		 WHERE id = ? RETURNING patient_id`,
		a.Provider, a.Reason, store.ToMillis(a.Date), a.RepeatSchedule, store.NullableMillis(a.RepeatUntil), a.ID,
	).Scan(&patientID)
	if err != nil {
		return 0, translate(err)
	}
	a.PatientID = patientID
	return patientID, nil
}

func (s *Store) DeleteAppointment(ctx context.Context, id int64) (int64, error) {
	var patientID int64
	err := s.db.QueryRowContext(ctx, `DELETE FROM appointments WHERE id = ? RETURNING patient_id`, id).Scan(&patientID)
	if err != nil {
		return 0, translate(err)
	}
	return patientID, nil
}

// Prescriptions

const prescriptionColumns = `id, patient_id, medication, dosage, quantity, refill_date, refill_schedule`

func scanPrescription(row rowScanner) (entities.Prescription, error) {
	var p entities.Prescription
	var quantity, refill sql.NullInt64
	var schedule sql.NullString
	if err := row.Scan(&p.ID, &p.PatientID, &p.Medication, &p.Dosage, &quantity, &refill, &schedule); err != nil {
		return p, err
	}
	if quantity.Valid {
		q := int(quantity.Int64)
		p.Quantity = &q
	}
	p.RefillDate = store.NullableTime(nullInt(refill))
	p.RefillSchedule = nullString(schedule)
	return p, nil
}

func (s *Store) ListPrescriptions(ctx context.Context, patientID int64) ([]entities.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions`
	var args []any
	if patientID != 0 {
		query += ` WHERE patient_id = ?`
		args = append(args, patientID)
	}
	query += ` ORDER BY medication, dosage, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := []entities.Prescription{}
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (s *Store) CreatePrescription(ctx context.Context, p *entities.Prescription) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO prescriptions (patient_id, medication, dosage, quantity, refill_date, refill_schedule)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.PatientID, p.Medication, p.Dosage, p.Quantity, store.NullableMillis(p.RefillDate), p.RefillSchedule)
	if err != nil {
		return fmt.Errorf("create prescription: %w", translate(err))
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdatePrescription(ctx context.Context, p *entities.Prescription) (int64, error) {
	var patientID int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE prescriptions SET medication = ?, dosage = ?, quantity = ?, refill_date = ?, refill_schedule = ?
		 WHERE id = ? RETURNING patient_id`,
		p.Medication, p.Dosage, p.Quantity, store.NullableMillis(p.RefillDate), p.RefillSchedule, p.ID,
	).Scan(&patientID)
	if err != nil {
		return 0, translate(err)
	}
	p.PatientID = patientID
	return patientID, nil
}

func (s *Store) DeletePrescription(ctx context.Context, id int64) (int64, error) {
	var patientID int64
	err := s.db.QueryRowContext(ctx, `DELETE FROM prescriptions WHERE id = ? RETURNING patient_id`, id).Scan(&patientID)
	if err != nil {
		return 0, translate(err)
	}
	return patientID, nil
}

// Catalog

func (s *Store) ListCatalog(ctx context.Context) ([]entities.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, medication_name, dosage FROM medication_catalog ORDER BY medication_name, dosage`)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []entities.CatalogEntry{}
	for rows.Next() {
		var e entities.CatalogEntry
		if err := rows.Scan(&e.ID, &e.MedicationName, &e.Dosage); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) UpsertCatalogEntry(ctx context.Context, medication, dosage string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO medication_catalog (medication_name, dosage) VALUES (?, ?)
		 ON CONFLICT (medication_name, dosage) DO NOTHING`,
		medication, dosage)
	if err != nil {
		return false, fmt.Errorf("upsert catalog entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Counts(ctx context.Context) (entities.Counts, error) {
	var c entities.Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM patients),
		(SELECT COUNT(*) FROM appointments),
		(SELECT COUNT(*) FROM prescriptions),
		(SELECT COUNT(*) FROM medication_catalog)`,
	).Scan(&c.Patients, &c.Appointments, &c.Prescriptions, &c.Medications)
	if err != nil {
		return c, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}
