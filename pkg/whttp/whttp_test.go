package whttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(5*time.Second, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestDoClassifiesStatusCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			fmt.Fprint(w, "<html><head><title>Results</title></head><body>hi</body></html>")
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/throttled":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/denied":
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	c := newTestClient(t)
	ctx := context.Background()

	res, err := c.Do(ctx, &Req{URL: srv.URL + "/ok"})
	if err != nil {
		t.Fatalf("200 should not error: %v", err)
	}
	if res.HTTPTitle != "Results" {
		t.Errorf("title = %q", res.HTTPTitle)
	}
	if res.BodyString == "" {
		t.Error("body should be captured")
	}

	tests := []struct {
		path      string
		status    int
		transient bool
	}{
		{"/gone", http.StatusNotFound, false},
		{"/denied", http.StatusForbidden, false},
		{"/throttled", http.StatusTooManyRequests, true},
	}
	for _, tt := range tests {
		_, err := c.Do(ctx, &Req{URL: srv.URL + tt.path})
		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("%s: expected FetchError, got %v", tt.path, err)
		}
		if fe.StatusCode != tt.status {
			t.Errorf("%s: status = %d", tt.path, fe.StatusCode)
		}
		if fe.Transient != tt.transient {
			t.Errorf("%s: transient = %v, want %v", tt.path, fe.Transient, tt.transient)
		}
		if IsTransient(err) != tt.transient {
			t.Errorf("%s: IsTransient mismatch", tt.path)
		}
	}
}

func TestDoConnectionFailureIsTransient(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Do(context.Background(), &Req{URL: "http://127.0.0.1:1/unreachable"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("connection failure should be transient, got %v", err)
	}
}

func TestFetchErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := fmt.Errorf("fetch page: %w", &FetchError{URL: "x", Transient: true, Err: inner})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatal("FetchError should survive wrapping")
	}
	if !errors.Is(err, inner) {
		t.Error("inner error should be reachable")
	}
	if !IsTransient(err) {
		t.Error("IsTransient should see through wrapping")
	}
}

func TestRateLimiterSpacesSameDomain(t *testing.T) {
	rl := NewRateLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx, "https://www.autoscout24.com/lst?page=1"); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("three same-domain requests finished in %v, want >= 100ms", elapsed)
	}
}

func TestRateLimiterIndependentDomains(t *testing.T) {
	rl := NewRateLimiter(time.Hour)
	ctx := context.Background()

	if err := rl.Wait(ctx, "https://www.autoscout24.com/lst"); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- rl.Wait(ctx, "https://carmarket.ayvens.com/en/findvehicle") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("different domain should not wait on the first domain's slot")
	}
}

func TestRateLimiterHonorsContext(t *testing.T) {
	rl := NewRateLimiter(time.Hour)
	ctx := context.Background()
	if err := rl.Wait(ctx, "https://www.autoscout24.com/a"); err != nil {
		t.Fatal(err)
	}

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(cctx, "https://www.autoscout24.com/b"); err == nil {
		t.Error("expected context deadline error while waiting for the slot")
	}
}
