// Package postgres implements interfaces.RecordStore on PostgreSQL through a
// jackc/pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giygas/mini-emr/entities"
	"github.com/giygas/mini-emr/interfaces"
	"github.com/giygas/mini-emr/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ interfaces.RecordStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	phone         TEXT,
	password_hash TEXT
);

CREATE TABLE IF NOT EXISTS appointments (
	id              BIGSERIAL PRIMARY KEY,
	patient_id      BIGINT NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	provider        TEXT,
	reason          TEXT,
	date            TIMESTAMPTZ NOT NULL,
	repeat_schedule TEXT,
	repeat_until    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS appointments_patient_date ON appointments(patient_id, date);

CREATE TABLE IF NOT EXISTS prescriptions (
	id              BIGSERIAL PRIMARY KEY,
	patient_id      BIGINT NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	medication      TEXT NOT NULL,
	dosage          TEXT NOT NULL,
	quantity        INTEGER,
	refill_date     TIMESTAMPTZ,
	refill_schedule TEXT
);
CREATE INDEX IF NOT EXISTS prescriptions_patient ON prescriptions(patient_id);

CREATE TABLE IF NOT EXISTS medication_catalog (
	id              BIGSERIAL PRIMARY KEY,
	medication_name TEXT NOT NULL,
	dosage          TEXT NOT NULL,
	UNIQUE (medication_name, dosage)
);
`

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store is the PostgreSQL RecordStore
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, verifies the connection and applies the schema
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
		case foreignKeyViolation:
			return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

// utc normalizes driver times so both backends hand out UTC values
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Patients

const patientColumns = `id, name, email, phone, password_hash`

func scanPatient(row pgx.Row) (entities.Patient, error) {
	var p entities.Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.PasswordHash)
	return p, err
}

func (s *Store) ListPatients(ctx context.Context) ([]entities.Patient, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

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
	p, err := scanPatient(s.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) GetPatientByEmail(ctx context.Context, email string) (*entities.Patient, error) {
	p, err := scanPatient(s.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE email = $1`, email))
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) CreatePatient(ctx context.Context, p *entities.Patient) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO patients (name, email, phone, password_hash) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.Name, p.Email, p.Phone, p.PasswordHash).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create patient: %w", translate(err))
	}
	return nil
}

func (s *Store) UpdatePatient(ctx context.Context, id int64, name string, phone *string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE patients SET name = $1, phone = $2 WHERE id = $3`, name, phone, id)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertPatient(ctx context.Context, p *entities.Patient) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// xmax = 0 only for freshly inserted tuples
	var inserted bool
	err = tx.QueryRow(ctx,
		`INSERT INTO patients (name, email, phone, password_hash) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, password_hash = EXCLUDED.password_hash
		 RETURNING id, (xmax = 0)`,
		p.Name, p.Email, p.Phone, p.PasswordHash).Scan(&p.ID, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert patient: %w", translate(err))
	}
	return inserted, tx.Commit(ctx)
}

// Appointments

const appointmentColumns = `id, patient_id, provider, reason, date, repeat_schedule, repeat_until`

func scanAppointment(row pgx.Row) (entities.Appointment, error) {
	var a entities.Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.Provider, &a.Reason, &a.Date, &a.RepeatSchedule, &a.RepeatUntil)
	a.Date = a.Date.UTC()
	a.RepeatUntil = utc(a.RepeatUntil)
	return a, err
}

func (s *Store) ListAppointments(ctx context.Context, patientID int64) ([]entities.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	var args []any
	if patientID != 0 {
		query += ` WHERE patient_id = $1`
		args = append(args, patientID)
	}
	query += ` ORDER BY date, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

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
	err := s.pool.QueryRow(ctx,
		`INSERT INTO appointments (patient_id, provider, reason, date, repeat_schedule, repeat_until)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.PatientID, a.Provider, a.Reason, a.Date, a.RepeatSchedule, a.RepeatUntil).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("create appointment: %w", translate(err))
	}
	return nil
}

func (s *Store) UpdateAppointment(ctx context.Context, a *entities.Appointment) (int64, error) {
	err := s.pool.QueryRow(ctx,
		`UPDATE appointments SET provider = $1, reason = $2, date = $3, repeat_schedule = $4, repeat_until = $5
		 WHERE id = $6 RETURNING patient_id`,
		a.Provider, a.Reason, a.Date, a.RepeatSchedule, a.RepeatUntil, a.ID).Scan(&a.PatientID)
	if err != nil {
		return 0, translate(err)
	}
	return a.PatientID, nil
}

func (s *Store) DeleteAppointment(ctx context.Context, id int64) (int64, error) {
	var patientID int64
	err := s.pool.QueryRow(ctx, `DELETE FROM appointments WHERE id = $1 RETURNING patient_id`, id).Scan(&patientID)
	if err != nil {
		return 0, translate(err)
	}
	return patientID, nil
}

// Prescriptions

const prescriptionColumns = `id, patient_id, medication, dosage, quantity, refill_date, refill_schedule`

func scanPrescription(row pgx.Row) (entities.Prescription, error) {
	var p entities.Prescription
	var quantity *int32
	err := row.Scan(&p.ID, &p.PatientID, &p.Medication, &p.Dosage, &quantity, &p.RefillDate, &p.RefillSchedule)
	if quantity != nil {
		q := int(*quantity)
		p.Quantity = &q
	}
	p.RefillDate = utc(p.RefillDate)
	return p, err
}

func (s *Store) ListPrescriptions(ctx context.Context, patientID int64) ([]entities.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions`
	var args []any
	if patientID != 0 {
		query += ` WHERE patient_id = $1`
		args = append(args, patientID)
	}
	query += ` ORDER BY medication COLLATE "C", dosage COLLATE "C", id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

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
	err := s.pool.QueryRow(ctx,
		`INSERT INTO prescriptions (patient_id, medication, dosage, quantity, refill_date, refill_schedule)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.PatientID, p.Medication, p.Dosage, p.Quantity, p.RefillDate, p.RefillSchedule).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create prescription: %w", translate(err))
	}
	return nil
}

func (s *Store) UpdatePrescription(ctx context.Context, p *entities.Prescription) (int64, error) {
	err := s.pool.QueryRow(ctx,
		`UPDATE prescriptions SET medication = $1, dosage = $2, quantity = $3, refill_date = $4, refill_schedule = $5
		 WHERE id = $6 RETURNING patient_id`,
		p.Medication, p.Dosage, p.Quantity, p.RefillDate, p.RefillSchedule, p.ID).Scan(&p.PatientID)
	if err != nil {
		return 0, translate(err)
	}
	return p.PatientID, nil
}

func (s *Store) DeletePrescription(ctx context.Context, id int64) (int64, error) {
	var patientID int64
	err := s.pool.QueryRow(ctx, `DELETE FROM prescriptions WHERE id = $1 RETURNING patient_id`, id).Scan(&patientID)
	if err != nil {
		return 0, translate(err)
	}
	return patientID, nil
}

// Catalog

func (s *Store) ListCatalog(ctx context.Context) ([]entities.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, medication_name, dosage FROM medication_catalog ORDER BY medication_name COLLATE "C", dosage COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

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
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO medication_catalog (medication_name, dosage) VALUES ($1, $2)
		 ON CONFLICT (medication_name, dosage) DO NOTHING`,
		medication, dosage)
	if err != nil {
		return false, fmt.Errorf("upsert catalog entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Counts(ctx context.Context) (entities.Counts, error) {
	var c entities.Counts
	err := s.pool.QueryRow(ctx, `SELECT
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
