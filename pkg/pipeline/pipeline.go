// Package pipeline runs one scrape cycle for one source: session start,
// fetch+extract, reconcile, match, notify, session finalize. Stages run
// sequentially because each depends on the previous stage's output; page
// fetches within the fetch stage run on a worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ezekaj/auto-scouter-sub000/pkg/matcher"
	"github.com/ezekaj/auto-scouter-sub000/pkg/notify"
	"github.com/ezekaj/auto-scouter-sub000/pkg/sources"
	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
	"github.com/ezekaj/auto-scouter-sub000/pkg/vehicle"
	"github.com/ezekaj/auto-scouter-sub000/pkg/whttp"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// SourceConfig holds everything RunCycle needs for a single source.
type SourceConfig struct {
	Scraper  sources.Scraper
	Options  sources.FetchOptions
	Auth     sources.AuthConfig
	DB       *storage.DB
	Notifier *notify.Notifier

	Concurrency int           // page fetch workers, defaults to 3 if <= 0
	StaleAfter  time.Duration // running sessions older than this are taken over
	Log         Logger        // optional; nil = no logging

	// OnStart is called as soon as the session row exists, before any
	// fetching. Lets async triggers hand the session id back immediately.
	// Nil = no callback.
	OnStart func(sessionID int64)

	// OnCycleDone is called after the session is finalized, success or
	// failure. Enables the scheduler to stream results. Nil = no callback.
	OnCycleDone func(*CycleResult)
}

// CycleResult is the outcome of one scrape cycle.
type CycleResult struct {
	SessionID int64
	Source    string

	Found       int
	New         int
	Updated     int
	Reactivated int
	Deactivated int
	ParseErrors int

	NotificationsCreated int
	Suppressed           int
	Duplicates           int

	Err error
}

// RunCycle executes one full cycle. It returns storage.ErrSessionRunning
// without side effects when a cycle for the source is already in flight.
// A fatal stage error fails the session but keeps any reconciliation that
// already committed.
func RunCycle(ctx context.Context, cfg SourceConfig) (*CycleResult, error) {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	name := cfg.Scraper.Name()

	session, err := cfg.DB.StartSession(ctx, name, cfg.StaleAfter)
	if err != nil {
		return nil, err
	}

	if cfg.OnStart != nil {
		cfg.OnStart(session.ID)
	}

	result := &CycleResult{SessionID: session.ID, Source: name}
	err = runStages(ctx, cfg, log, result)

	counts := storage.SessionCounts{
		Found:       result.Found,
		New:         result.New,
		Updated:     result.Updated,
		Reactivated: result.Reactivated,
		Deactivated: result.Deactivated,
		ParseErrors: result.ParseErrors,
	}
	if err != nil {
		result.Err = err
		if ferr := cfg.DB.FailSession(context.WithoutCancel(ctx), session.ID, counts, err.Error()); ferr != nil {
			log.Warnf("pipeline: could not fail session %d: %v", session.ID, ferr)
		}
		log.Errorf("pipeline: cycle for %s failed: %v", name, err)
	} else {
		if cerr := cfg.DB.CompleteSession(ctx, session.ID, counts); cerr != nil {
			log.Warnf("pipeline: could not complete session %d: %v", session.ID, cerr)
		}
		log.Infof("pipeline: cycle for %s done: %d found, %d new, %d updated, %d reactivated, %d deactivated",
			name, result.Found, result.New, result.Updated, result.Reactivated, result.Deactivated)
	}

	if cfg.OnCycleDone != nil {
		cfg.OnCycleDone(result)
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

func runStages(ctx context.Context, cfg SourceConfig, log Logger, result *CycleResult) error {
	name := cfg.Scraper.Name()

	if err := cfg.Scraper.Authenticate(ctx, cfg.Auth); err != nil {
		return fmt.Errorf("authenticate %s: %w", name, err)
	}

	pageURLs, err := cfg.Scraper.ListPageURLs(ctx, cfg.Options)
	if err != nil {
		return fmt.Errorf("list pages for %s: %w", name, err)
	}

	records, skipped, err := fetchPages(ctx, cfg, log, pageURLs)
	if err != nil {
		return err
	}
	result.Found = len(records)
	result.ParseErrors = skipped

	recon, err := cfg.DB.ReconcileListings(ctx, name, records)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", name, err)
	}
	result.New = len(recon.New)
	result.Updated = len(recon.Updated)
	result.Reactivated = len(recon.Reactivated)
	result.Deactivated = recon.Deactivated

	delta := recon.Delta()
	if len(delta) == 0 {
		return nil
	}

	// Snapshot of active alerts, read once per cycle. An alert toggled while
	// the cycle runs may or may not be included; that race is accepted.
	alerts, err := cfg.DB.ListAlerts(ctx, true)
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}

	matches := matcher.Match(delta, alerts, time.Now().UTC())
	if len(matches) == 0 {
		return nil
	}

	nres, err := cfg.Notifier.Notify(ctx, matches)
	if err != nil {
		return err
	}
	result.NotificationsCreated = len(nres.Created)
	result.Suppressed = nres.Suppressed
	result.Duplicates = nres.Duplicates
	return nil
}

// fetchPages retrieves and extracts all result pages on a worker pool,
// preserving page order in the combined batch. Any page error is fatal to
// the cycle, except a 404 past the first page, which just means pagination
// ran off the end of the results.
func fetchPages(ctx context.Context, cfg SourceConfig, log Logger, pageURLs []string) ([]vehicle.Record, int, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	if concurrency > len(pageURLs) {
		concurrency = len(pageURLs)
	}
	if len(pageURLs) == 0 {
		return nil, 0, nil
	}

	type pageJob struct {
		index int
		url   string
	}
	jobs := make(chan pageJob, len(pageURLs))

	pages := make([]sources.PageResult, len(pageURLs))
	var mu sync.Mutex
	var firstErr error

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				pr, err := cfg.Scraper.FetchPage(ctx, job.url, cfg.Options)
				if err != nil {
					if job.index > 0 && isNotFound(err) {
						log.Debugf("pipeline: page %d of %s past end of results", job.index+1, cfg.Scraper.Name())
						continue
					}
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("fetch page %s: %w", job.url, err)
					}
					mu.Unlock()
					continue
				}
				mu.Lock()
				pages[job.index] = pr
				mu.Unlock()
			}
		}()
	}
	for i, u := range pageURLs {
		jobs <- pageJob{index: i, url: u}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, 0, firstErr
	}

	var records []vehicle.Record
	skipped := 0
	for _, pr := range pages {
		records = append(records, pr.Records...)
		skipped += pr.Skipped
	}
	return records, skipped, nil
}

func isNotFound(err error) bool {
	var fe *whttp.FetchError
	return errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound
}
