package store

import (
	"testing"
	"time"
)

func TestMillisRoundTrip(t *testing.T) {
	in := time.Date(2025, 10, 10, 10, 0, 0, 123_000_000, time.FixedZone("CEST", 2*3600))

	got := FromMillis(ToMillis(in))
	if !got.Equal(in) {
		t.Errorf("FromMillis(ToMillis(%s)) = %s", in, got)
	}
	if got.Location() != time.UTC {
		t.Errorf("expected UTC, got %s", got.Location())
	}
}

func TestMillisTruncatesSubMillisecond(t *testing.T) {
	in := time.Date(2025, 1, 1, 0, 0, 0, 1_500_000, time.UTC)
	if got := FromMillis(ToMillis(in)); got.Nanosecond() != 1_000_000 {
		t.Errorf("expected truncation to 1ms, got %dns", got.Nanosecond())
	}
}

func TestNullable(t *testing.T) {
	if NullableMillis(nil) != nil {
		t.Error("NullableMillis(nil) should be nil")
	}
	if NullableTime(nil) != nil {
		t.Error("NullableTime(nil) should be nil")
	}

	in := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)
	out := NullableTime(NullableMillis(&in))
	if out == nil || !out.Equal(in) {
		t.Errorf("nullable round trip = %v, want %s", out, in)
	}
}
