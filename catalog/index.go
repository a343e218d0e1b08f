// Package catalog builds the medication lookup used by the prescription forms.
//
// The reference catalog is a flat list of (medication, dosage) rows. BuildIndex
// groups it by medication name into a sorted, duplicate-free dosage list per name
// plus a sorted list of all names. Ordering is plain byte-wise string ordering, so
// "100mg" sorts before "20mg".
package catalog

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/giygas/mini-emr/entities"
)

// Entry is a single catalog row
type Entry struct {
	MedicationName string `json:"medicationName"`
	Dosage         string `json:"dosage"`
}

// Index maps each medication name to its valid dosages.
// An Index is immutable once built and safe for concurrent readers.
// A nil *Index behaves as an empty catalog.
type Index struct {
	names   []string
	dosages map[string][]string
	entries int
}

// BuildIndex groups entries by medication name. The result does not depend on
// the order of entries. Empty names or dosages are indexed as given.
func BuildIndex(entries []Entry) *Index {
	groups := make(map[string]map[string]struct{})
	for _, e := range entries {
		set, ok := groups[e.MedicationName]
		if !ok {
			set = make(map[string]struct{})
			groups[e.MedicationName] = set
		}
		set[e.Dosage] = struct{}{}
	}

	idx := &Index{
		names:   slices.Sorted(maps.Keys(groups)),
		dosages: make(map[string][]string, len(groups)),
	}
	for name, set := range groups {
		list := slices.Sorted(maps.Keys(set))
		idx.dosages[name] = list
		idx.entries += len(list)
	}

	return idx
}

// FromRecords converts stored catalog rows into index entries
func FromRecords(records []entities.CatalogEntry) []Entry {
	entries := make([]Entry, len(records))
	for i, r := range records {
		entries[i] = Entry{MedicationName: r.MedicationName, Dosage: r.Dosage}
	}
	return entries
}

// Names returns all medication names in ascending order
func (idx *Index) Names() []string {
	if idx == nil || len(idx.names) == 0 {
		return []string{}
	}
	return slices.Clone(idx.names)
}

// Dosages returns the sorted dosages registered for name, or an empty slice
// when the name is unknown
func (idx *Index) Dosages(name string) []string {
	if idx == nil {
		return []string{}
	}
	list, ok := idx.dosages[name]
	if !ok || len(list) == 0 {
		return []string{}
	}
	return slices.Clone(list)
}

// Has reports whether name is a medication in the index
func (idx *Index) Has(name string) bool {
	if idx == nil {
		return false
	}
	_, ok := idx.dosages[name]
	return ok
}

// HasDosage reports whether dosage is registered for name
func (idx *Index) HasDosage(name, dosage string) bool {
	if idx == nil {
		return false
	}
	_, found := slices.BinarySearch(idx.dosages[name], dosage)
	return found
}

// First returns the lexicographically smallest medication name, or "" for an
// empty index
func (idx *Index) First() string {
	if idx == nil || len(idx.names) == 0 {
		return ""
	}
	return idx.names[0]
}

// Len returns the number of distinct medication names
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.names)
}

// EntryCount returns the number of distinct (medication, dosage) pairs
func (idx *Index) EntryCount() int {
	if idx == nil {
		return 0
	}
	return idx.entries
}

// Equal reports whether both indexes hold the same names and dosage lists
func (idx *Index) Equal(other *Index) bool {
	if !slices.Equal(idx.Names(), other.Names()) {
		return false
	}
	for _, name := range idx.Names() {
		if !slices.Equal(idx.Dosages(name), other.Dosages(name)) {
			return false
		}
	}
	return true
}

type indexJSON struct {
	Medications []string            `json:"medications"`
	Dosages     map[string][]string `json:"dosages"`
}

// MarshalJSON renders the index as {"medications": [...], "dosages": {name: [...]}}
func (idx *Index) MarshalJSON() ([]byte, error) {
	out := indexJSON{
		Medications: idx.Names(),
		Dosages:     make(map[string][]string, idx.Len()),
	}
	for _, name := range out.Medications {
		out.Dosages[name] = idx.Dosages(name)
	}
	return json.Marshal(out)
}
