// Package interfaces defines the contracts between the EMR's storage, catalog
// refresh and HTTP layers so each can be replaced in tests.
package interfaces

import (
	"context"
	"time"

	"github.com/giygas/mini-emr/catalog"
	"github.com/giygas/mini-emr/entities"
)

// RecordStore is the relational storage of patients, appointments,
// prescriptions and the medication catalog. Lookups of missing rows return
// store.ErrNotFound; unique violations return store.ErrDuplicate.
type RecordStore interface {
	ListPatients(ctx context.Context) ([]entities.Patient, error)
	GetPatient(ctx context.Context, id int64) (*entities.Patient, error)
	GetPatientByEmail(ctx context.Context, email string) (*entities.Patient, error)
	// CreatePatient inserts p and sets p.ID
	CreatePatient(ctx context.Context, p *entities.Patient) error
	UpdatePatient(ctx context.Context, id int64, name string, phone *string) error
	// UpsertPatient inserts or updates by email and sets p.ID. It reports whether a row was inserted.
	UpsertPatient(ctx context.Context, p *entities.Patient) (bool, error)

	// ListAppointments returns appointments ordered by date then id.
	// patientID 0 lists every patient's appointments.
	ListAppointments(ctx context.Context, patientID int64) ([]entities.Appointment, error)
	CreateAppointment(ctx context.Context, a *entities.Appointment) error
	// UpdateAppointment rewrites the row with a.ID and returns its patient id
	UpdateAppointment(ctx context.Context, a *entities.Appointment) (int64, error)
	DeleteAppointment(ctx context.Context, id int64) (int64, error)

	// ListPrescriptions returns prescriptions ordered by medication, dosage and id.
	// patientID 0 lists every patient's prescriptions.
	ListPrescriptions(ctx context.Context, patientID int64) ([]entities.Prescription, error)
	CreatePrescription(ctx context.Context, p *entities.Prescription) error
	UpdatePrescription(ctx context.Context, p *entities.Prescription) (int64, error)
	DeletePrescription(ctx context.Context, id int64) (int64, error)

	// ListCatalog returns catalog rows ordered by medication name then dosage
	ListCatalog(ctx context.Context) ([]entities.CatalogEntry, error)
	// UpsertCatalogEntry reports whether the pair was new
	UpsertCatalogEntry(ctx context.Context, medication, dosage string) (bool, error)

	Counts(ctx context.Context) (entities.Counts, error)
	Ping(ctx context.Context) error
	Close() error
}

// CatalogHolder keeps the medication index currently served to the forms.
// Readers never block writers: the index is swapped atomically.
type CatalogHolder interface {
	GetIndex() *catalog.Index
	UpdateIndex(idx *catalog.Index)
	GetLastUpdated() time.Time
	GetServerStartTime() time.Time
	IsUpdating() bool
	BeginUpdate() bool
	EndUpdate()
}

// CatalogSource yields the published medication catalog
type CatalogSource interface {
	Fetch(ctx context.Context) ([]catalog.SourceMedication, error)
	Location() string
}

// Scheduler runs the periodic catalog jobs
type Scheduler interface {
	Start() error
	Stop()
	// NextRefresh returns when the index rebuild job fires next
	NextRefresh() time.Time
	Interval() time.Duration
}

// HealthChecker reports whether the service can answer requests
type HealthChecker interface {
	HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int)
	// CalculateNextRefresh returns when the catalog index will next be rebuilt
	CalculateNextRefresh() time.Time
}
