// Package selector implements the two-stage medication → dosage picker used by
// the prescription forms.
//
// A Selector holds the chosen medication and dosage for one form. Choosing a
// medication narrows the dosages to those registered for it and picks a
// default. The pair it exposes is always jointly valid for the index it was
// built against: requests that would break that are rejected with
// ErrInvalidSelection and leave the state untouched.
package selector

import (
	"errors"
	"fmt"
	"slices"

	"github.com/giygas/mini-emr/catalog"
)

// ErrInvalidSelection is returned when a medication is not in the catalog or a
// dosage is not registered for the selected medication
var ErrInvalidSelection = errors.New("invalid selection")

// State is the pair submitted with a prescription form
type State struct {
	Medication string `json:"medication"`
	Dosage     string `json:"dosage"`
}

// Option configures a Selector
type Option func(*Selector)

// WithObserver registers fn to receive the state after every transition
func WithObserver(fn func(State)) Option {
	return func(s *Selector) {
		s.observers = append(s.observers, fn)
	}
}

// Selector is not safe for concurrent use; each form render or submission
// owns its own instance.
type Selector struct {
	index     *catalog.Index
	state     State
	observers []func(State)
}

// New initializes a selector. initialMedication is kept when it is in the
// index, otherwise the first medication name is used (or "" for an empty
// catalog). initialDosage is kept when it is valid for the chosen medication.
func New(idx *catalog.Index, initialMedication, initialDosage string, opts ...Option) *Selector {
	s := &Selector{}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset(idx, initialMedication, initialDosage)
	return s
}

// Reset re-initializes the selector against idx, typically after the catalog
// was reloaded. The dosage is always re-derived from the new index.
func (s *Selector) Reset(idx *catalog.Index, medication, dosage string) {
	s.index = idx
	if medication != "" && idx.Has(medication) {
		s.state.Medication = medication
	} else {
		s.state.Medication = idx.First()
	}
	s.DeriveDosage(dosage)
}

// SelectMedication switches to name and forces the default dosage for it.
// An empty name clears the selection.
func (s *Selector) SelectMedication(name string) error {
	if name != "" && !s.index.Has(name) {
		return fmt.Errorf("%w: unknown medication %q", ErrInvalidSelection, name)
	}
	s.state.Medication = name
	s.DeriveDosage("")
	return nil
}

// DeriveDosage sets the dosage to preferred when it is valid for the selected
// medication, otherwise to the first candidate, or "" when there is none.
func (s *Selector) DeriveDosage(preferred string) {
	candidates := s.Candidates()
	switch {
	case preferred != "" && slices.Contains(candidates, preferred):
		s.state.Dosage = preferred
	case len(candidates) > 0:
		s.state.Dosage = candidates[0]
	default:
		s.state.Dosage = ""
	}
	s.emit()
}

// SelectDosage sets the dosage without touching the medication
func (s *Selector) SelectDosage(dosage string) error {
	candidates := s.Candidates()
	if len(candidates) == 0 {
		if dosage != "" {
			return fmt.Errorf("%w: medication %q has no dosages", ErrInvalidSelection, s.state.Medication)
		}
	} else if !slices.Contains(candidates, dosage) {
		return fmt.Errorf("%w: dosage %q is not available for %q", ErrInvalidSelection, dosage, s.state.Medication)
	}
	s.state.Dosage = dosage
	s.emit()
	return nil
}

// State returns the current pair
func (s *Selector) State() State {
	return s.state
}

// Candidates returns the dosages selectable for the current medication
func (s *Selector) Candidates() []string {
	if s.state.Medication == "" {
		return []string{}
	}
	return s.index.Dosages(s.state.Medication)
}

// Medications returns every selectable medication name
func (s *Selector) Medications() []string {
	return s.index.Names()
}

// DosageDisabled reports whether the dosage control has nothing to offer
func (s *Selector) DosageDisabled() bool {
	return len(s.Candidates()) == 0
}

func (s *Selector) emit() {
	for _, fn := range s.observers {
		fn(s.state)
	}
}

// Validate checks that (medication, dosage) is a jointly valid pair in idx.
// It is the guard applied to submitted prescription forms.
// Unlike SelectMedication, an empty medication is rejected unless the index
// itself carries an empty name.
func Validate(idx *catalog.Index, medication, dosage string) error {
	if !idx.Has(medication) {
		return fmt.Errorf("%w: unknown medication %q", ErrInvalidSelection, medication)
	}
	return New(idx, medication, "").SelectDosage(dosage)
}
