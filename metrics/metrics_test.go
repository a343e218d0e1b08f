package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/admin/patients/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues("GET", "/admin/patients/{id}", "404"))
	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/patients/"+id, nil))
	}
	after := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues("GET", "/admin/patients/{id}", "404"))

	if after-before != 2 {
		t.Errorf("expected 2 requests on the pattern series, got %v", after-before)
	}
	if got := testutil.ToFloat64(HTTPRequestInFlight); got != 0 {
		t.Errorf("in-flight gauge should return to 0, got %v", got)
	}
}

func TestMetricsMiddlewareWithoutRouter(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	before := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues("GET", "unmatched", "200"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	if got := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues("GET", "unmatched", "200")); got-before != 1 {
		t.Errorf("expected one unmatched request, got %v", got-before)
	}
}

func TestRecordCatalog(t *testing.T) {
	at := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	RecordCatalog(2, 3, at)

	if got := testutil.ToFloat64(CatalogMedications); got != 2 {
		t.Errorf("catalog_medications = %v", got)
	}
	if got := testutil.ToFloat64(CatalogEntries); got != 3 {
		t.Errorf("catalog_entries = %v", got)
	}
	if got := testutil.ToFloat64(CatalogLastRefresh); got != float64(at.Unix()) {
		t.Errorf("catalog_last_refresh = %v", got)
	}
}

func TestRecordRefresh(t *testing.T) {
	ok := testutil.ToFloat64(CatalogRefreshTotal.WithLabelValues("refresh", "success"))
	failed := testutil.ToFloat64(CatalogRefreshTotal.WithLabelValues("sync", "error"))

	RecordRefresh("refresh", nil)
	RecordRefresh("sync", errors.New("boom"))

	if got := testutil.ToFloat64(CatalogRefreshTotal.WithLabelValues("refresh", "success")); got-ok != 1 {
		t.Errorf("refresh success delta = %v", got-ok)
	}
	if got := testutil.ToFloat64(CatalogRefreshTotal.WithLabelValues("sync", "error")); got-failed != 1 {
		t.Errorf("sync error delta = %v", got-failed)
	}
}
