// Package window filters date-bearing records against a closed time interval,
// as used by the portal's "next 7 days" dashboard and upcoming views.
package window

import (
	"fmt"
	"time"
)

// Day is the length of one dashboard day
const Day = 24 * time.Hour

// Window is the closed interval [Start, End]
type Window struct {
	Start time.Time
	End   time.Time
}

// New returns the window [start, end]. start must not be after end.
func New(start, end time.Time) (Window, error) {
	if start.After(end) {
		return Window{}, fmt.Errorf("window start %s is after end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Window{Start: start, End: end}, nil
}

// NextDays returns the window from `from` to `days` whole days later
func NextDays(from time.Time, days int) Window {
	if days < 0 {
		days = 0
	}
	return Window{Start: from, End: from.Add(time.Duration(days) * Day)}
}

// Contains reports whether t lies inside the window, both ends included
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Within keeps the items whose date lies inside w, in their original order
func Within[T any](items []T, w Window, date func(T) time.Time) []T {
	return filter(items, func(item T) bool {
		return w.Contains(date(item))
	})
}

// Upcoming keeps the items dated at or after from, in their original order
func Upcoming[T any](items []T, from time.Time, date func(T) time.Time) []T {
	return filter(items, func(item T) bool {
		return !date(item).Before(from)
	})
}

// WithinNullable is Within for an optional date. Items without a date never match.
func WithinNullable[T any](items []T, w Window, date func(T) *time.Time) []T {
	return filter(items, func(item T) bool {
		d := date(item)
		return d != nil && w.Contains(*d)
	})
}

// UpcomingNullable is Upcoming for an optional date. Items without a date never match.
func UpcomingNullable[T any](items []T, from time.Time, date func(T) *time.Time) []T {
	return filter(items, func(item T) bool {
		d := date(item)
		return d != nil && !d.Before(from)
	})
}

// Take returns at most the first n items
func Take[T any](items []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
