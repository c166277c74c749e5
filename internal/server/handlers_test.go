package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
	"github.com/ezekaj/auto-scouter-sub000/pkg/vehicle"
)

func testMux(t *testing.T, s *Server) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/listings", s.basicAuth(s.handleListings))
	mux.HandleFunc("GET /api/listings/{id}", s.basicAuth(s.handleListing))
	mux.HandleFunc("GET /api/listings/{id}/prices", s.basicAuth(s.handlePriceHistory))
	mux.HandleFunc("GET /api/alerts", s.basicAuth(s.handleListAlerts))
	mux.HandleFunc("POST /api/alerts", s.basicAuth(s.handleCreateAlert))
	mux.HandleFunc("DELETE /api/alerts/{id}", s.basicAuth(s.handleDeleteAlert))
	mux.HandleFunc("POST /api/alerts/{id}/toggle", s.basicAuth(s.handleToggleAlert))
	mux.HandleFunc("GET /api/notifications", s.basicAuth(s.handleNotifications))
	mux.HandleFunc("POST /api/notifications/{id}/read", s.basicAuth(s.handleMarkRead))
	mux.HandleFunc("POST /api/scrape", s.basicAuth(s.handleScrape))
	mux.HandleFunc("GET /api/stats", s.basicAuth(s.handleStats))
	return mux
}

func newTestServer(t *testing.T) (*Server, http.Handler, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := New(db, nil, nil, "", "")
	return s, testMux(t, s), db
}

func seedListing(t *testing.T, db *storage.DB, url string, price int) storage.Listing {
	t.Helper()
	res, err := db.ReconcileListings(context.Background(), "autoscout24", []vehicle.Record{{
		Source: "autoscout24", URL: url,
		Make: "BMW", Model: "320d", Year: 2019, Price: price, Currency: "EUR",
	}})
	require.NoError(t, err)
	require.Len(t, res.New, 1)
	return res.New[0]
}

func TestAlertAPILifecycle(t *testing.T) {
	_, mux, _ := newTestServer(t)

	body := []byte(`{"name":"bmw","make":"BMW","max_price":50000}`)
	req := httptest.NewRequest(http.MethodPost, "/api/alerts", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created storage.Alert
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotZero(t, created.ID)
	require.Equal(t, "BMW", *created.Make)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var alerts []storage.Alert
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/alerts/1/toggle", bytes.NewReader([]byte(`{"active":false}`))))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/alerts?active=true", nil))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &alerts))
	require.Empty(t, alerts)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/alerts/1", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/alerts/1", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateAlertRejectsDegenerate(t *testing.T) {
	_, mux, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts", bytes.NewReader([]byte(`{"name":"everything"}`)))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListingsAPI(t *testing.T) {
	_, mux, db := newTestServer(t)
	listing := seedListing(t, db, "https://example.com/offer/a", 30000)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/listings?make=bmw", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var listings []storage.Listing
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listings))
	require.Len(t, listings, 1)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/listings?min_price=40000", nil))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listings))
	require.Empty(t, listings)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/listings/999", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/listings/1/prices", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var points []storage.PricePoint
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &points))
	require.Len(t, points, 1)
	require.Equal(t, listing.Price, points[0].Price)
}

func TestNotificationsAPI(t *testing.T) {
	_, mux, db := newTestServer(t)
	ctx := context.Background()

	mk := "BMW"
	alertID, err := db.CreateAlert(ctx, &storage.Alert{Name: "bmw", Make: &mk})
	require.NoError(t, err)
	_, _, err = db.CreateNotification(ctx, alertID, 1, "BMW 320d", 0.1, 0)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/notifications?unread=true", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var notifications []storage.Notification
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &notifications))
	require.Len(t, notifications, 1)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/notifications/1/read", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/notifications?unread=true", nil))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &notifications))
	require.Empty(t, notifications)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/notifications/999/read", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestScrapeWithoutScheduler(t *testing.T) {
	_, mux, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/scrape?source=autoscout24", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestStatsAPI(t *testing.T) {
	_, mux, db := newTestServer(t)
	seedListing(t, db, "https://example.com/offer/a", 30000)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Len(t, stats.Listings, 1)
	require.Equal(t, 1, stats.Listings[0].Active)
}

func TestBasicAuth(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := New(db, nil, nil, "admin", "secret")
	mux := testMux(t, s)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	req.SetBasicAuth("admin", "secret")
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
