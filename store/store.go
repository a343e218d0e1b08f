// Package store holds what the relational backends share: the sentinel errors
// returned through interfaces.RecordStore and the timestamp encoding.
package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique column (patient email, catalog pair) already holds the value
	ErrDuplicate = errors.New("record already exists")
)

// ToMillis encodes t as unix milliseconds for backends without a native timestamp type
func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis decodes a unix millisecond value into a UTC time
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// NullableMillis encodes an optional time, nil stays nil
func NullableMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := ToMillis(*t)
	return &ms
}

// NullableTime decodes an optional millisecond value
func NullableTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := FromMillis(*ms)
	return &t
}
