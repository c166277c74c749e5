package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ezekaj/auto-scouter-sub000/pkg/pipeline"
	"github.com/ezekaj/auto-scouter-sub000/pkg/sources"
)

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// nameOnlyScraper is enough scraper for scheduling-state tests.
type nameOnlyScraper string

func (s nameOnlyScraper) Name() string { return string(s) }

func (nameOnlyScraper) Authenticate(context.Context, sources.AuthConfig) error {
	return nil
}

func (nameOnlyScraper) ListPageURLs(context.Context, sources.FetchOptions) ([]string, error) {
	return nil, nil
}

func (nameOnlyScraper) FetchPage(context.Context, string, sources.FetchOptions) (sources.PageResult, error) {
	return sources.PageResult{}, nil
}

func TestNextDigestTime(t *testing.T) {
	now := time.Date(2026, 8, 23, 7, 30, 0, 0, time.UTC)

	next, err := nextDigestTime(now, "08:00")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 8, 23, 8, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// Already past today's slot: roll over to tomorrow.
	next, err = nextDigestTime(now, "07:00")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// Exactly on the slot counts as past.
	next, err = nextDigestTime(now, "07:30")
	if err != nil {
		t.Fatal(err)
	}
	if next.Day() != 24 {
		t.Errorf("same-minute slot should roll over, got %v", next)
	}
}

func TestNextDigestTimeInvalid(t *testing.T) {
	for _, in := range []string{"", "8", "25:00", "08:61", "ab:cd", "08:00:00"} {
		if _, err := nextDigestTime(time.Now(), in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestTriggerUnknownSource(t *testing.T) {
	s := New(nil, nil, "", nopLogger{})
	_, err := s.Trigger(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

func TestSnapshotCoversAllSources(t *testing.T) {
	entries := []Entry{
		{Config: pipeline.SourceConfig{Scraper: nameOnlyScraper("a")}, Interval: time.Minute},
		{Config: pipeline.SourceConfig{Scraper: nameOnlyScraper("b")}, Interval: time.Minute},
	}
	s := New(entries, nil, "", nopLogger{})

	states := s.Snapshot()
	if len(states) != 2 {
		t.Fatalf("expected 2 states, got %d", len(states))
	}
	for _, st := range states {
		if st.Running {
			t.Errorf("source %s should start idle", st.Source)
		}
	}
}
