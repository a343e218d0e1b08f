package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/giygas/mini-emr/logging"
	"github.com/sony/gobreaker"
	"golang.org/x/text/encoding/charmap"
)

// DefaultSourceURL is the published medication list used to seed the catalog
const DefaultSourceURL = "https://gist.githubusercontent.com/sbraford/73f63d75bb995b6597754c1707e40cc2/raw/data.json"

// maxSourceSize caps the catalog payload read from a remote source
const maxSourceSize = 10 * 1024 * 1024

var (
	medicationKeys = []string{"medications", "Medications", "meds", "MEDS"}
	dosageKeys     = []string{"dosages", "Dosages", "DOSAGES"}

	listSeparators = regexp.MustCompile(`[;,|]`)
)

// SourceMedication is a medication with its dosages as published by a source
type SourceMedication struct {
	Name    string   `json:"medicationName"`
	Dosages []string `json:"dosages"`
}

// ParseSource decodes a published catalog document.
//
// The medication list may live under any of the medicationKeys. Dosages are
// either an object keyed by medication name or a single list shared by all
// medications. Every value may be an array or a string separated by ; , or |.
// Payloads that are not valid UTF-8 are read as ISO-8859-1.
func ParseSource(raw []byte) ([]SourceMedication, error) {
	if !utf8.Valid(raw) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode catalog source: %w", err)
		}
		raw = decoded
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog source: %w", err)
	}

	names := toList(firstPresent(doc, medicationKeys))
	if len(names) == 0 {
		return []SourceMedication{}, nil
	}

	dosageSource := firstPresent(doc, dosageKeys)
	meds := make([]SourceMedication, 0, len(names))

	switch src := dosageSource.(type) {
	case map[string]any:
		for _, name := range names {
			meds = append(meds, SourceMedication{Name: name, Dosages: toList(src[name])})
		}
	case []any, string:
		common := toList(src)
		for _, name := range names {
			meds = append(meds, SourceMedication{Name: name, Dosages: common})
		}
	default:
		for _, name := range names {
			meds = append(meds, SourceMedication{Name: name, Dosages: []string{}})
		}
	}

	return meds, nil
}

func firstPresent(doc map[string]any, keys []string) any {
	for _, key := range keys {
		if v, ok := doc[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// toList normalises a JSON value into trimmed, non-empty strings
func toList(v any) []string {
	var raw []string
	switch x := v.(type) {
	case nil:
		return []string{}
	case []any:
		for _, item := range x {
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		raw = listSeparators.Split(x, -1)
	default:
		raw = []string{fmt.Sprint(x)}
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Flatten expands medications into catalog entries. Medications without any
// dosage are skipped.
func Flatten(meds []SourceMedication) []Entry {
	var entries []Entry
	for _, m := range meds {
		if len(m.Dosages) == 0 {
			logging.Warn("Skipping medication with no dosages", "medication", m.Name)
			continue
		}
		for _, d := range m.Dosages {
			entries = append(entries, Entry{MedicationName: m.Name, Dosage: d})
		}
	}
	return entries
}

// FallbackMedications is the minimal catalog used when the source is unreachable
func FallbackMedications() []SourceMedication {
	return []SourceMedication{
		{Name: "Atorvastatin", Dosages: []string{"10mg"}},
		{Name: "Lisinopril", Dosages: []string{"20mg"}},
	}
}

// Source fetches a published catalog from an http(s) URL or a local file.
// Remote fetches go through a circuit breaker so a dead upstream is not
// hammered by every scheduled sync.
type Source struct {
	location string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewSource creates a source for location
func NewSource(location string) *Source {
	return &Source{
		location: location,
		client:   &http.Client{Timeout: 5 * time.Minute},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "catalog-source",
			MaxRequests: 1,
			Interval:    time.Hour,
			Timeout:     10 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Location returns the URL or path the source reads from
func (s *Source) Location() string {
	return s.location
}

// Fetch reads and parses the source
func (s *Source) Fetch(ctx context.Context) ([]SourceMedication, error) {
	var raw []byte
	var err error

	if isRemote(s.location) {
		raw, err = s.fetchRemote(ctx)
	} else {
		raw, err = os.ReadFile(s.location)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog source %s: %w", s.location, err)
	}

	return ParseSource(raw)
}

func (s *Source) fetchRemote(ctx context.Context) ([]byte, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
		if err != nil {
			return nil, err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logging.Warn("Failed to close response body", "error", err)
			}
		}()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}

		return io.ReadAll(io.LimitReader(resp.Body, maxSourceSize))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("catalog source unavailable: %w", err)
	}
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
