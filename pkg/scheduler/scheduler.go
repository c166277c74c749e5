// Package scheduler fires periodic scrape cycles, one interval timer per
// configured source. Ticks that land while the source's previous cycle is
// still running are skipped, never queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ezekaj/auto-scouter-sub000/pkg/notify"
	"github.com/ezekaj/auto-scouter-sub000/pkg/pipeline"
	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
)

// zeroRecordWarnStreak is how many consecutive empty cycles trigger a
// layout-change warning.
const zeroRecordWarnStreak = 3

// Entry is one scheduled source.
type Entry struct {
	Config   pipeline.SourceConfig
	Interval time.Duration
	// MaxCycleDuration bounds one cycle; past it the context is cancelled,
	// the session fails with a timeout error and the next tick may run.
	MaxCycleDuration time.Duration
}

// SourceState is a snapshot of one source's scheduling state.
type SourceState struct {
	Source          string    `json:"source"`
	Running         bool      `json:"running"`
	LastSessionID   int64     `json:"last_session_id,omitempty"`
	LastStartedAt   time.Time `json:"last_started_at,omitempty"`
	LastCompletedAt time.Time `json:"last_completed_at,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	ZeroStreak      int       `json:"zero_streak,omitempty"`
}

type Scheduler struct {
	entries  map[string]Entry
	notifier *notify.Notifier
	digestAt string // HH:MM, empty disables the digest timer
	log      pipeline.Logger

	mu     sync.Mutex
	states map[string]*SourceState
}

// New builds a scheduler over the given sources. digestAt is the local
// HH:MM at which daily-digest notifications are flushed.
func New(entries []Entry, notifier *notify.Notifier, digestAt string, log pipeline.Logger) *Scheduler {
	byName := make(map[string]Entry, len(entries))
	states := make(map[string]*SourceState, len(entries))
	for _, e := range entries {
		name := e.Config.Scraper.Name()
		byName[name] = e
		states[name] = &SourceState{Source: name}
	}
	return &Scheduler{entries: byName, notifier: notifier, digestAt: digestAt, log: log, states: states}
}

// Start launches the per-source tickers and the digest timer. It returns
// immediately; goroutines stop when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for name, entry := range s.entries {
		go s.runSourceLoop(ctx, name, entry)
	}
	if s.digestAt != "" {
		go s.runDigestLoop(ctx)
	}
}

func (s *Scheduler) runSourceLoop(ctx context.Context, name string, entry Entry) {
	s.log.Infof("scheduler: %s every %s", name, entry.Interval)

	// First cycle right away, then on the interval.
	s.runOnce(ctx, name, entry, nil)

	ticker := time.NewTicker(entry.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, name, entry, nil)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, name string, entry Entry, onStart func(int64)) error {
	cctx := ctx
	var cancel context.CancelFunc
	if entry.MaxCycleDuration > 0 {
		cctx, cancel = context.WithTimeout(ctx, entry.MaxCycleDuration)
		defer cancel()
	}

	cfg := entry.Config
	cfg.StaleAfter = entry.MaxCycleDuration
	cfg.OnStart = func(id int64) {
		s.mu.Lock()
		st := s.states[name]
		st.Running = true
		st.LastSessionID = id
		st.LastStartedAt = time.Now().UTC()
		s.mu.Unlock()
		if onStart != nil {
			onStart(id)
		}
	}

	res, err := pipeline.RunCycle(cctx, cfg)
	if errors.Is(err, storage.ErrSessionRunning) {
		s.log.Infof("scheduler: %s still running, tick skipped", name)
		return err
	}

	s.mu.Lock()
	st := s.states[name]
	st.Running = false
	st.LastCompletedAt = time.Now().UTC()
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastError = ""
		if res.Found == 0 {
			st.ZeroStreak++
		} else {
			st.ZeroStreak = 0
		}
	}
	streak := st.ZeroStreak
	s.mu.Unlock()

	if streak >= zeroRecordWarnStreak {
		s.log.Warnf("scheduler: %s returned zero listings for %d consecutive cycles, the site layout may have changed", name, streak)
	}
	return err
}

// ErrUnknownSource is returned by Trigger for sources not configured.
var ErrUnknownSource = errors.New("unknown source")

// Trigger starts a cycle for one source on demand, returning the session id
// as soon as the session row exists. The cycle itself continues in the
// background. Returns storage.ErrSessionRunning if the source is busy.
func (s *Scheduler) Trigger(ctx context.Context, source string) (int64, error) {
	entry, ok := s.entries[source]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	started := make(chan int64, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.runOnce(context.WithoutCancel(ctx), source, entry, func(id int64) { started <- id })
	}()

	// The session row appears before any network I/O, so this resolves
	// quickly; if the cycle never started the goroutine finishes without
	// ever sending an id.
	select {
	case id := <-started:
		return id, nil
	case err := <-done:
		if err == nil {
			err = storage.ErrSessionRunning
		}
		return 0, err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Snapshot returns the current scheduling state of every source.
func (s *Scheduler) Snapshot() []SourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SourceState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, *st)
	}
	return out
}

func (s *Scheduler) runDigestLoop(ctx context.Context) {
	for {
		next, err := nextDigestTime(time.Now(), s.digestAt)
		if err != nil {
			s.log.Errorf("scheduler: invalid digest time %q: %v", s.digestAt, err)
			return
		}
		s.log.Debugf("scheduler: next digest flush at %s", next.Format(time.RFC3339))
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		if n, err := s.notifier.FlushDigest(ctx); err != nil {
			s.log.Warnf("scheduler: digest flush failed: %v", err)
		} else if n > 0 {
			s.log.Infof("scheduler: digest flushed %d notifications", n)
		}
		if n, err := s.notifier.RetryPending(ctx); err != nil {
			s.log.Warnf("scheduler: pending redelivery failed: %v", err)
		} else if n > 0 {
			s.log.Infof("scheduler: redelivered %d pending notifications", n)
		}
	}
}

func nextDigestTime(now time.Time, hhmm string) (time.Time, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return time.Time{}, errors.New("digest time must be HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return time.Time{}, errors.New("invalid hour")
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return time.Time{}, errors.New("invalid minute")
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if !t.After(now) {
		t = t.Add(24 * time.Hour)
	}
	return t, nil
}
