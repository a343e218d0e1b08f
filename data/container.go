// Package data keeps the medication index served to the prescription forms.
// The index is swapped atomically so a refresh never blocks a page render.
package data

import (
	"sync/atomic"
	"time"

	"github.com/giygas/mini-emr/catalog"
	"github.com/giygas/mini-emr/interfaces"
	"github.com/giygas/mini-emr/logging"
)

var _ interfaces.CatalogHolder = (*CatalogContainer)(nil)

// CatalogContainer holds the current catalog index and its refresh bookkeeping
type CatalogContainer struct {
	index           atomic.Value // *catalog.Index
	lastUpdated     atomic.Value // time.Time
	serverStartTime atomic.Value // time.Time
	updating        atomic.Bool
}

// NewCatalogContainer starts with an empty index
func NewCatalogContainer() *CatalogContainer {
	cc := &CatalogContainer{}
	cc.index.Store(catalog.BuildIndex(nil))
	cc.lastUpdated.Store(time.Time{})
	cc.serverStartTime.Store(time.Time{})
	return cc
}

// GetIndex returns the index to render against. Callers must not retain it
// across requests if they want to see refreshes.
func (cc *CatalogContainer) GetIndex() *catalog.Index {
	if v := cc.index.Load(); v != nil {
		if idx, ok := v.(*catalog.Index); ok && idx != nil {
			return idx
		}
	}

	logging.Warn("Catalog index is empty or invalid")
	return catalog.BuildIndex(nil)
}

// UpdateIndex swaps in idx and stamps the update time. A nil index is stored
// as an empty one.
func (cc *CatalogContainer) UpdateIndex(idx *catalog.Index) {
	if idx == nil {
		idx = catalog.BuildIndex(nil)
	}
	cc.index.Store(idx)
	cc.lastUpdated.Store(time.Now())
}

// GetLastUpdated returns when the index was last replaced
func (cc *CatalogContainer) GetLastUpdated() time.Time {
	if v := cc.lastUpdated.Load(); v != nil {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

func (cc *CatalogContainer) SetServerStartTime(t time.Time) {
	cc.serverStartTime.Store(t)
}

func (cc *CatalogContainer) GetServerStartTime() time.Time {
	if v := cc.serverStartTime.Load(); v != nil {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// IsUpdating reports whether a refresh holds the update guard
func (cc *CatalogContainer) IsUpdating() bool {
	return cc.updating.Load()
}

// BeginUpdate takes the update guard. It returns false when another refresh holds it.
func (cc *CatalogContainer) BeginUpdate() bool {
	return cc.updating.CompareAndSwap(false, true)
}

// EndUpdate releases the update guard
func (cc *CatalogContainer) EndUpdate() {
	cc.updating.Store(false)
}
