package pipeline

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ezekaj/auto-scouter-sub000/pkg/notify"
	"github.com/ezekaj/auto-scouter-sub000/pkg/sources"
	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
	"github.com/ezekaj/auto-scouter-sub000/pkg/vehicle"
	"github.com/ezekaj/auto-scouter-sub000/pkg/whttp"
)

// stubScraper serves canned pages so cycles run without network I/O.
type stubScraper struct {
	name    string
	pages   map[string]sources.PageResult
	errs    map[string]error
	urls    []string
	authErr error
}

func (s *stubScraper) Name() string { return s.name }

func (s *stubScraper) Authenticate(ctx context.Context, cfg sources.AuthConfig) error {
	return s.authErr
}

func (s *stubScraper) ListPageURLs(ctx context.Context, opts sources.FetchOptions) ([]string, error) {
	return s.urls, nil
}

func (s *stubScraper) FetchPage(ctx context.Context, pageURL string, opts sources.FetchOptions) (sources.PageResult, error) {
	if err, ok := s.errs[pageURL]; ok {
		return sources.PageResult{}, err
	}
	return s.pages[pageURL], nil
}

func rec(url string, price int) vehicle.Record {
	return vehicle.Record{
		Source: "stub", URL: url,
		Make: "BMW", Model: "320d", Year: 2019,
		Price: price, Currency: "EUR", Mileage: 80000,
	}
}

func strPtr(s string) *string { return &s }

func testConfig(t *testing.T, scraper *stubScraper) (SourceConfig, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return SourceConfig{
		Scraper:  scraper,
		DB:       db,
		Notifier: notify.New(db, nil),
	}, db
}

func TestRunCycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	scraper := &stubScraper{
		name: "stub",
		urls: []string{"p0", "p1"},
		pages: map[string]sources.PageResult{
			"p0": {Records: []vehicle.Record{rec("https://stub.test/a", 30000)}},
			"p1": {Records: []vehicle.Record{rec("https://stub.test/b", 60000)}, Skipped: 1},
		},
	}
	cfg, db := testConfig(t, scraper)

	alertID, err := db.CreateAlert(ctx, &storage.Alert{
		Name: "bmw under 50k", Make: strPtr("BMW"), MaxPrice: intp(50000),
	})
	require.NoError(t, err)

	// First cycle: both listings inserted, only the one under 50k notifies.
	res, err := RunCycle(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, res.Found)
	require.Equal(t, 2, res.New)
	require.Equal(t, 1, res.ParseErrors)
	require.Equal(t, 1, res.NotificationsCreated)

	session, err := db.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, storage.SessionCompleted, session.Status)
	require.Equal(t, 2, session.Found)

	// Second cycle: a drops in price, b is gone, c appears over budget.
	scraper.urls = []string{"p0"}
	scraper.pages = map[string]sources.PageResult{
		"p0": {Records: []vehicle.Record{
			rec("https://stub.test/a", 29000),
			rec("https://stub.test/c", 55000),
		}},
	}
	res, err = RunCycle(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, res.New)
	require.Equal(t, 1, res.Updated)
	require.Equal(t, 1, res.Deactivated)
	// a already notified this alert; c is over budget. No new notifications.
	require.Zero(t, res.NotificationsCreated)

	notifications, err := db.ListNotifications(ctx, storage.ListNotificationsOptions{AlertID: alertID})
	require.NoError(t, err)
	require.Len(t, notifications, 1)
}

func TestRunCycleNotFoundPastFirstPageEndsPagination(t *testing.T) {
	ctx := context.Background()
	scraper := &stubScraper{
		name: "stub",
		urls: []string{"p0", "p1", "p2"},
		pages: map[string]sources.PageResult{
			"p0": {Records: []vehicle.Record{rec("https://stub.test/a", 30000)}},
		},
		errs: map[string]error{
			"p1": &whttp.FetchError{URL: "p1", StatusCode: http.StatusNotFound},
			"p2": &whttp.FetchError{URL: "p2", StatusCode: http.StatusNotFound},
		},
	}
	cfg, _ := testConfig(t, scraper)

	res, err := RunCycle(ctx, cfg)
	require.NoError(t, err, "running off the end of pagination is not a failure")
	require.Equal(t, 1, res.Found)
}

func TestRunCycleNotFoundOnFirstPageFails(t *testing.T) {
	ctx := context.Background()
	scraper := &stubScraper{
		name: "stub",
		urls: []string{"p0"},
		errs: map[string]error{
			"p0": &whttp.FetchError{URL: "p0", StatusCode: http.StatusNotFound},
		},
	}
	cfg, db := testConfig(t, scraper)

	res, err := RunCycle(ctx, cfg)
	require.Error(t, err, "a 404 on the first page means the search URL itself broke")

	session, err := db.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, storage.SessionFailed, session.Status)
	require.NotEmpty(t, session.Error)
}

func TestRunCycleAuthFailureFailsSession(t *testing.T) {
	ctx := context.Background()
	scraper := &stubScraper{name: "stub", authErr: errors.New("bad credentials")}
	cfg, db := testConfig(t, scraper)

	res, err := RunCycle(ctx, cfg)
	require.Error(t, err)

	session, err := db.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, storage.SessionFailed, session.Status)
	require.Contains(t, session.Error, "bad credentials")
}

func TestRunCycleSkipsWhenSessionRunning(t *testing.T) {
	ctx := context.Background()
	scraper := &stubScraper{name: "stub"}
	cfg, db := testConfig(t, scraper)

	_, err := db.StartSession(ctx, "stub", 0)
	require.NoError(t, err)

	_, err = RunCycle(ctx, cfg)
	require.ErrorIs(t, err, storage.ErrSessionRunning)

	sessions, err := db.ListSessions(ctx, "stub", 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1, "a skipped cycle must not leave a session row")
}

func TestRunCycleCallbacks(t *testing.T) {
	ctx := context.Background()
	scraper := &stubScraper{
		name: "stub",
		urls: []string{"p0"},
		pages: map[string]sources.PageResult{
			"p0": {Records: []vehicle.Record{rec("https://stub.test/a", 30000)}},
		},
	}
	cfg, _ := testConfig(t, scraper)

	var startedID int64
	var doneRes *CycleResult
	cfg.OnStart = func(id int64) { startedID = id }
	cfg.OnCycleDone = func(r *CycleResult) { doneRes = r }

	res, err := RunCycle(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, res.SessionID, startedID)
	require.NotNil(t, doneRes)
	require.Equal(t, res.SessionID, doneRes.SessionID)
}

func intp(i int) *int { return &i }
