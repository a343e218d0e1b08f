package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/giygas/mini-emr/catalog"
	"github.com/giygas/mini-emr/config"
	"github.com/giygas/mini-emr/entities"
	"github.com/giygas/mini-emr/interfaces"
	"github.com/giygas/mini-emr/logging"
	"github.com/giygas/mini-emr/scheduler"
	"github.com/giygas/mini-emr/session"
	"github.com/spf13/cobra"
)

const defaultSeedSource = "https://gist.githubusercontent.com/sbraford/73f63d75bb995b6597754c1707e40cc2/raw/data.json"

type demoPatient struct {
	name     string
	email    string
	phone    string
	password string
}

var demoPatients = []demoPatient{
	{"Alice Carter", "alice@example.com", "555-000-0001", "alicepass"},
	{"Bob Nguyen", "bob@example.com", "555-000-0002", "bobpass"},
	{"Jane Doe", "jane@example.com", "555-123-4567", "janepass"},
}

var (
	demoAppointmentDate = time.Date(2025, 10, 10, 10, 0, 0, 0, time.UTC)
	demoMedication      = "Atorvastatin"
	demoDosage          = "10mg"
)

func newSeedCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the medication catalog and the demo patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, st interfaces.RecordStore) error {
				location := source
				if location == "" {
					location = cfg.CatalogSourceURL
				}
				if location == "" {
					location = defaultSeedSource
				}

				meds, err := catalog.NewSource(location).Fetch(ctx)
				if err != nil || len(meds) == 0 {
					logging.Warn("Failed to fetch catalog source, using fallback set", "source", location, "error", err)
					meds = catalog.FallbackMedications()
				}

				counts, err := seedDatabase(ctx, st, meds, cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("seed failed: %w", err)
				}
				return printCounts(cmd.OutOrStdout(), "Final counts:", counts)
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "catalog source URL or file path (defaults to CATALOG_SOURCE_URL, then the public demo list)")
	return cmd
}

// seedDatabase upserts the catalog and the demo records. Running it twice
// leaves the same rows.
func seedDatabase(ctx context.Context, st interfaces.RecordStore, meds []catalog.SourceMedication, out io.Writer) (entities.Counts, error) {
	result, err := scheduler.Import(ctx, st, meds)
	if err != nil {
		return entities.Counts{}, err
	}
	fmt.Fprintf(out, "Upserted catalog rows: %d (%d new)\n", result.Entries, result.Inserted)

	for _, d := range demoPatients {
		hash, err := session.HashPassword(d.password)
		if err != nil {
			return entities.Counts{}, err
		}
		p := &entities.Patient{
			Name:         d.name,
			Email:        d.email,
			Phone:        entities.StringPtr(d.phone),
			PasswordHash: &hash,
		}
		if _, err := st.UpsertPatient(ctx, p); err != nil {
			return entities.Counts{}, fmt.Errorf("failed to upsert patient %s: %w", d.email, err)
		}
		fmt.Fprintf(out, "Upserted patient: id=%d email=%s\n", p.ID, p.Email)
	}

	jane, err := st.GetPatientByEmail(ctx, "jane@example.com")
	if err != nil {
		return entities.Counts{}, fmt.Errorf("failed to load demo patient: %w", err)
	}

	appts, err := st.ListAppointments(ctx, jane.ID)
	if err != nil {
		return entities.Counts{}, err
	}
	if !hasAppointmentAt(appts, demoAppointmentDate) {
		if err := st.CreateAppointment(ctx, &entities.Appointment{
			PatientID: jane.ID,
			Date:      demoAppointmentDate,
			Reason:    entities.StringPtr("General Checkup"),
		}); err != nil {
			return entities.Counts{}, fmt.Errorf("failed to create demo appointment: %w", err)
		}
	}

	rxs, err := st.ListPrescriptions(ctx, jane.ID)
	if err != nil {
		return entities.Counts{}, err
	}
	if !hasPrescription(rxs, demoMedication, demoDosage) {
		if err := st.CreatePrescription(ctx, &entities.Prescription{
			PatientID:  jane.ID,
			Medication: demoMedication,
			Dosage:     demoDosage,
		}); err != nil {
			return entities.Counts{}, fmt.Errorf("failed to create demo prescription: %w", err)
		}
	}

	return st.Counts(ctx)
}

func hasAppointmentAt(appts []entities.Appointment, at time.Time) bool {
	for _, a := range appts {
		if a.Date.Equal(at) {
			return true
		}
	}
	return false
}

func hasPrescription(rxs []entities.Prescription, medication, dosage string) bool {
	for _, rx := range rxs {
		if rx.Medication == medication && rx.Dosage == dosage {
			return true
		}
	}
	return false
}

func newVerifyCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-counts",
		Short: "Print the number of rows in each table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, _ *config.Config, st interfaces.RecordStore) error {
				counts, err := st.Counts(ctx)
				if err != nil {
					return err
				}
				return printCounts(cmd.OutOrStdout(), "", counts)
			})
		},
	}
}

func printCounts(out io.Writer, label string, counts entities.Counts) error {
	if label != "" {
		fmt.Fprintln(out, label)
	}
	return json.NewEncoder(out).Encode(counts)
}

func newAddFutureApptsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "add-future-appts",
		Short: "Add a follow-up appointment for every patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 {
				return fmt.Errorf("--days must not be negative, got %d", days)
			}
			return withStore(cmd, func(ctx context.Context, _ *config.Config, st interfaces.RecordStore) error {
				created, err := addFutureAppointments(ctx, st, time.Now().Add(time.Duration(days)*24*time.Hour))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok - created %d appointment(s)\n", created)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "days from now")
	return cmd
}

// addFutureAppointments books a "Follow-up" at `at` for every patient
func addFutureAppointments(ctx context.Context, st interfaces.RecordStore, at time.Time) (int, error) {
	patients, err := st.ListPatients(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, p := range patients {
		if err := st.CreateAppointment(ctx, &entities.Appointment{
			PatientID: p.ID,
			Date:      at,
			Reason:    entities.StringPtr("Follow-up"),
		}); err != nil {
			return created, fmt.Errorf("failed to create appointment for patient %d: %w", p.ID, err)
		}
		created++
	}
	return created, nil
}
