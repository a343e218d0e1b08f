// Package health reports the state of the record store and the served catalog index.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/giygas/mini-emr/interfaces"
)

var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

const staleAfter = 3

// HealthCheckerImpl implements interfaces.HealthChecker
type HealthCheckerImpl struct {
	store     interfaces.RecordStore
	holder    interfaces.CatalogHolder
	scheduler interfaces.Scheduler
	interval  time.Duration
	now       func() time.Time
}

// NewHealthChecker returns a checker for store and the index in holder,
// which sched rebuilds. A nil sched assumes the default 15 minute interval.
func NewHealthChecker(store interfaces.RecordStore, holder interfaces.CatalogHolder, sched interfaces.Scheduler) *HealthCheckerImpl {
	interval := 15 * time.Minute
	if sched != nil && sched.Interval() > 0 {
		interval = sched.Interval()
	}
	return &HealthCheckerImpl{
		store:     store,
		holder:    holder,
		scheduler: sched,
		interval:  interval,
		now:       time.Now,
	}
}

// HealthCheck returns the status used by the /health endpoint.
//
//   - unhealthy (503): the database does not answer or the index was never loaded
//   - degraded (503): the index has not been rebuilt for several intervals
//   - degraded (200): the catalog is empty, forms render with no choices
//   - healthy (200) otherwise
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int) {
	idx := h.holder.GetIndex()
	lastUpdate := h.holder.GetLastUpdated()
	isUpdating := h.holder.IsUpdating()
	now := h.now()

	data = map[string]any{
		"medications":     idx.Len(),
		"catalog_entries": idx.EntryCount(),
		"is_updating":     isUpdating,
		"database":        "ok",
	}
	if !lastUpdate.IsZero() {
		data["last_update"] = lastUpdate.Format(time.RFC3339)
		data["index_age_minutes"] = math.Round(now.Sub(lastUpdate).Minutes()*10) / 10
	}
	if start := h.holder.GetServerStartTime(); !start.IsZero() {
		data["uptime"] = now.Sub(start).Round(time.Second).String()
	}

	if err := h.store.Ping(ctx); err != nil {
		data["database"] = "unreachable"
		return "unhealthy", data, http.StatusServiceUnavailable
	}
	if counts, err := h.store.Counts(ctx); err == nil {
		data["counts"] = counts
	}

	switch {
	case lastUpdate.IsZero():
		return "unhealthy", data, http.StatusServiceUnavailable
	case now.Sub(lastUpdate) > staleAfter*h.interval && !isUpdating:
		return "degraded", data, http.StatusServiceUnavailable
	case idx.Len() == 0:
		return "degraded", data, http.StatusOK
	default:
		return "healthy", data, http.StatusOK
	}
}

// CalculateNextRefresh returns the scheduler's next run. Before the job is
// scheduled it estimates from the last update.
func (h *HealthCheckerImpl) CalculateNextRefresh() time.Time {
	now := h.now()
	if h.scheduler != nil {
		if next := h.scheduler.NextRefresh(); !next.Before(now) {
			return next
		}
	}
	last := h.holder.GetLastUpdated()
	if last.IsZero() {
		return now
	}
	next := last.Add(h.interval)
	for next.Before(now) {
		next = next.Add(h.interval)
	}
	return next
}
