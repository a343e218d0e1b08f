package data

import (
	"sync"
	"testing"
	"time"

	"github.com/giygas/mini-emr/catalog"
)

func sampleIndex() *catalog.Index {
	return catalog.BuildIndex([]catalog.Entry{
		{MedicationName: "Lisinopril", Dosage: "20mg"},
		{MedicationName: "Atorvastatin", Dosage: "10mg"},
	})
}

func TestNewCatalogContainer(t *testing.T) {
	cc := NewCatalogContainer()

	if cc.IsUpdating() {
		t.Error("new container should not be updating")
	}
	if !cc.GetLastUpdated().IsZero() {
		t.Error("new container should have a zero lastUpdated time")
	}
	if !cc.GetServerStartTime().IsZero() {
		t.Error("new container should have a zero start time")
	}
	if idx := cc.GetIndex(); idx == nil || idx.Len() != 0 {
		t.Errorf("new container should serve an empty index, got %v", idx)
	}
}

func TestUpdateIndex(t *testing.T) {
	cc := NewCatalogContainer()
	before := time.Now()

	cc.UpdateIndex(sampleIndex())

	if got := cc.GetIndex().Names(); len(got) != 2 || got[0] != "Atorvastatin" {
		t.Errorf("GetIndex().Names() = %v", got)
	}
	if cc.GetLastUpdated().Before(before) {
		t.Error("lastUpdated should be stamped on update")
	}

	cc.UpdateIndex(nil)
	if idx := cc.GetIndex(); idx == nil || idx.Len() != 0 {
		t.Errorf("nil update should store an empty index, got %v", idx)
	}
}

func TestZeroValueContainer(t *testing.T) {
	var cc CatalogContainer

	if idx := cc.GetIndex(); idx == nil || idx.Len() != 0 {
		t.Error("zero container should fall back to an empty index")
	}
	if !cc.GetLastUpdated().IsZero() || !cc.GetServerStartTime().IsZero() {
		t.Error("zero container should report zero times")
	}
}

func TestServerStartTime(t *testing.T) {
	cc := NewCatalogContainer()
	start := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)

	cc.SetServerStartTime(start)

	if !cc.GetServerStartTime().Equal(start) {
		t.Errorf("GetServerStartTime() = %s, want %s", cc.GetServerStartTime(), start)
	}
}

func TestBeginEndUpdate(t *testing.T) {
	cc := NewCatalogContainer()

	if !cc.BeginUpdate() {
		t.Fatal("first BeginUpdate should succeed")
	}
	if !cc.IsUpdating() {
		t.Error("IsUpdating should be true while the guard is held")
	}
	if cc.BeginUpdate() {
		t.Error("second BeginUpdate should fail while the guard is held")
	}

	cc.EndUpdate()

	if cc.IsUpdating() {
		t.Error("IsUpdating should be false after EndUpdate")
	}
	if !cc.BeginUpdate() {
		t.Error("BeginUpdate should succeed after EndUpdate")
	}
}

func TestConcurrentBeginUpdate(t *testing.T) {
	cc := NewCatalogContainer()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cc.BeginUpdate() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("exactly one goroutine should take the guard, got %d", winners)
	}
}

func TestConcurrentReadsDuringUpdate(t *testing.T) {
	cc := NewCatalogContainer()
	cc.UpdateIndex(sampleIndex())

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range 100 {
				idx := cc.GetIndex()
				// every observed index is complete: either two names or the swapped-in one
				if n := idx.Len(); n != 2 && n != 1 {
					t.Errorf("reader %d saw a partial index with %d names", i, n)
					return
				}
			}
		}(i)
	}

	for range 50 {
		cc.UpdateIndex(catalog.BuildIndex([]catalog.Entry{{MedicationName: "Metformin", Dosage: "500mg"}}))
		cc.UpdateIndex(sampleIndex())
	}
	wg.Wait()
}
