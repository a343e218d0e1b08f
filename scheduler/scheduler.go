// Package scheduler keeps the served catalog index fresh. It rebuilds the
// index from storage on an interval, optionally imports the published catalog
// once a day, and warns when the index goes stale.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giygas/mini-emr/catalog"
	"github.com/giygas/mini-emr/interfaces"
	"github.com/giygas/mini-emr/logging"
	"github.com/giygas/mini-emr/metrics"
	"github.com/go-co-op/gocron"
)

var (
	_ interfaces.Scheduler     = (*Scheduler)(nil)
	_ interfaces.CatalogSource = (*catalog.Source)(nil)
)

// ErrNoSource is returned by SyncCatalog when no catalog source is configured
var ErrNoSource = errors.New("no catalog source configured")

// ErrRefreshSkipped is returned by SyncCatalog when the imported rows could
// not be indexed because another refresh held the update guard until ctx ended
var ErrRefreshSkipped = errors.New("catalog refresh skipped: another refresh is running")

const (
	jobTimeout     = 10 * time.Minute
	syncAt         = "06:00"
	staleThreshold = 3
	guardRetry     = 100 * time.Millisecond
)

// Options configures a Scheduler
type Options struct {
	RefreshInterval time.Duration
	// Source enables the daily import. Nil disables it.
	Source   interfaces.CatalogSource
	Location *time.Location
}

// Scheduler runs the catalog jobs on a gocron scheduler
type Scheduler struct {
	store    interfaces.RecordStore
	holder   interfaces.CatalogHolder
	source   interfaces.CatalogSource
	interval time.Duration
	cron     *gocron.Scheduler
	now      func() time.Time

	refreshJob *gocron.Job
}

// New returns a stopped scheduler
func New(store interfaces.RecordStore, holder interfaces.CatalogHolder, opts Options) *Scheduler {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 15 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Scheduler{
		store:    store,
		holder:   holder,
		source:   opts.Source,
		interval: opts.RefreshInterval,
		cron:     gocron.NewScheduler(opts.Location),
		now:      time.Now,
	}
}

// Start loads the index once, then schedules the refresh, the optional daily
// sync and the staleness monitor. A failed initial load aborts startup.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	err := s.RefreshCatalog(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("initial catalog load failed: %w", err)
	}

	refresh, err := s.cron.Every(s.interval).StartAt(s.now().Add(s.interval)).SingletonMode().Do(s.runJob("refresh", s.RefreshCatalog))
	if err != nil {
		return fmt.Errorf("failed to schedule catalog refresh: %w", err)
	}
	s.refreshJob = refresh

	if s.source != nil {
		syncJob := func(ctx context.Context) error {
			_, err := s.SyncCatalog(ctx)
			return err
		}
		if _, err := s.cron.Every(1).Day().At(syncAt).SingletonMode().Do(s.runJob("sync", syncJob)); err != nil {
			return fmt.Errorf("failed to schedule catalog sync: %w", err)
		}
		logging.Info("Daily catalog sync scheduled", "at", syncAt, "source", s.source.Location())
	}

	if _, err := s.cron.Every(time.Hour).StartAt(s.now().Add(time.Hour)).Do(s.checkStaleness); err != nil {
		return fmt.Errorf("failed to schedule staleness monitor: %w", err)
	}

	s.cron.StartAsync()
	return nil
}

// Stop halts every job
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) runJob(name string, job func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := job(ctx); err != nil {
			logging.Error("Catalog job failed", "job", name, "error", err)
		}
	}
}

// RefreshCatalog rebuilds the index from storage and installs it. It is a
// no-op when another refresh is already running.
func (s *Scheduler) RefreshCatalog(ctx context.Context) error {
	ran, err := s.rebuild(ctx)
	if err == nil && !ran {
		logging.Info("Catalog refresh already in progress, skipping")
	}
	return err
}

// refreshAfterImport rebuilds the index once the update guard is free. A
// refresh already running may have read the table before the import.
func (s *Scheduler) refreshAfterImport(ctx context.Context) error {
	ticker := time.NewTicker(guardRetry)
	defer ticker.Stop()

	for {
		ran, err := s.rebuild(ctx)
		if err != nil || ran {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrRefreshSkipped, ctx.Err())
		case <-ticker.C:
		}
	}
}

// rebuild reports false without touching the store when the guard is held
func (s *Scheduler) rebuild(ctx context.Context) (bool, error) {
	if !s.holder.BeginUpdate() {
		return false, nil
	}
	defer s.holder.EndUpdate()

	start := time.Now()
	rows, err := s.store.ListCatalog(ctx)
	if err != nil {
		metrics.RecordRefresh("refresh", err)
		return true, fmt.Errorf("failed to load catalog: %w", err)
	}

	idx := catalog.BuildIndex(catalog.FromRecords(rows))
	changed := !idx.Equal(s.holder.GetIndex())
	s.holder.UpdateIndex(idx)

	metrics.RecordRefresh("refresh", nil)
	metrics.RecordCatalog(idx.Len(), idx.EntryCount(), s.holder.GetLastUpdated())
	logging.Info("Catalog index refreshed",
		"medications", idx.Len(),
		"entries", idx.EntryCount(),
		"changed", changed,
		"duration", time.Since(start).String(),
	)
	return true, nil
}

// SyncResult summarises one import of the published catalog
type SyncResult struct {
	Medications int
	Entries     int
	Inserted    int
}

// SyncCatalog fetches the configured source, upserts its pairs and refreshes
// the index, waiting for a concurrent refresh to finish first
func (s *Scheduler) SyncCatalog(ctx context.Context) (SyncResult, error) {
	if s.source == nil {
		return SyncResult{}, ErrNoSource
	}

	meds, err := s.source.Fetch(ctx)
	if err != nil {
		metrics.RecordRefresh("sync", err)
		return SyncResult{}, fmt.Errorf("failed to fetch catalog from %s: %w", s.source.Location(), err)
	}

	result, err := Import(ctx, s.store, meds)
	metrics.RecordRefresh("sync", err)
	if err != nil {
		return result, err
	}
	logging.Info("Catalog synced",
		"source", s.source.Location(),
		"medications", result.Medications,
		"entries", result.Entries,
		"inserted", result.Inserted,
	)

	return result, s.refreshAfterImport(ctx)
}

// Import upserts every (medication, dosage) pair of meds into store
func Import(ctx context.Context, store interfaces.RecordStore, meds []catalog.SourceMedication) (SyncResult, error) {
	entries := catalog.Flatten(meds)
	result := SyncResult{Medications: len(meds), Entries: len(entries)}

	for _, e := range entries {
		inserted, err := store.UpsertCatalogEntry(ctx, e.MedicationName, e.Dosage)
		if err != nil {
			return result, fmt.Errorf("failed to import %s %s: %w", e.MedicationName, e.Dosage, err)
		}
		if inserted {
			result.Inserted++
		}
	}
	return result, nil
}

// checkStaleness warns when the index has not been rebuilt for several intervals
func (s *Scheduler) checkStaleness() {
	if s.isStale() {
		logging.Warn("Catalog index is stale",
			"last_updated", s.holder.GetLastUpdated().Format(time.RFC3339),
			"threshold", (staleThreshold * s.interval).String(),
		)
	}
}

func (s *Scheduler) isStale() bool {
	return s.now().Sub(s.holder.GetLastUpdated()) > staleThreshold*s.interval
}

// NextRefresh returns when the refresh job fires next. Before Start it
// estimates from the last update.
func (s *Scheduler) NextRefresh() time.Time {
	if s.refreshJob != nil {
		if next := s.refreshJob.NextRun(); !next.IsZero() {
			return next
		}
	}
	return s.holder.GetLastUpdated().Add(s.interval)
}

// Interval returns the refresh period
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
