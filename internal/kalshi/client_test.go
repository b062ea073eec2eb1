package kalshi_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"kalshidune/internal/kalshi"
)

// ─────────────────────────────────────────────────────────────
// Pagination
// ─────────────────────────────────────────────────────────────

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newClient(baseURL string, maxRetries int) *kalshi.Client {
	return kalshi.New(kalshi.Options{
		BaseURL:      baseURL,
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
		Logger:       quietLogger(),
	})
}

func eventsPage(n int, cursor string) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"event_ticker":"KX%d","title":"Event %d"}`, i, i)
	}
	return fmt.Sprintf(`{"events":[%s],"cursor":%q}`, strings.Join(items, ","), cursor)
}

func TestFetchAll_PaginatesUntilEmptyCursor(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, eventsPage(3, "page2"))
		case "page2":
			fmt.Fprint(w, eventsPage(2, ""))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	data, err := newClient(srv.URL, 0).FetchAll(context.Background(), kalshi.ResourceEvents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 5 {
		t.Errorf("expected 5 records across pages, got %d", len(data))
	}
	if requests != 2 {
		t.Errorf("expected pagination to stop after the empty cursor, got %d requests", requests)
	}
}

func TestFetchAll_StopsOnEmptyPage(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			fmt.Fprint(w, eventsPage(2, "more"))
			return
		}
		fmt.Fprint(w, eventsPage(0, "evenmore"))
	}))
	defer srv.Close()

	data, err := newClient(srv.URL, 0).FetchAll(context.Background(), kalshi.ResourceEvents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 2 || requests != 2 {
		t.Errorf("expected 2 records / 2 requests, got %d / %d", len(data), requests)
	}
}

func TestFetchAll_MaxPagesSafetyBound(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, eventsPage(1, "next"))
	}))
	defer srv.Close()

	c := kalshi.New(kalshi.Options{
		BaseURL:  srv.URL,
		MaxPages: 3,
		Logger:   quietLogger(),
	})
	data, err := c.FetchAll(context.Background(), kalshi.ResourceEvents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requests != 3 {
		t.Errorf("expected the safety bound to stop at 3 requests, got %d", requests)
	}
	if len(data) != 3 {
		t.Errorf("expected 3 records, got %d", len(data))
	}
}

// ─────────────────────────────────────────────────────────────
// Failure handling
// ─────────────────────────────────────────────────────────────

func TestFetchAll_KeepsPartialDataOnPageFailure(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Query().Get("cursor") == "" {
			fmt.Fprint(w, eventsPage(4, "page2"))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	data, err := newClient(srv.URL, 0).FetchAll(context.Background(), kalshi.ResourceEvents)
	if err != nil {
		t.Fatalf("page failures must not surface as errors, got %v", err)
	}
	if len(data) != 4 {
		t.Errorf("expected the 4 records from page 1, got %d", len(data))
	}
}

func TestFetchAll_FirstPageFailureReturnsEmpty(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	data, err := newClient(srv.URL, 2).FetchAll(context.Background(), kalshi.ResourceEvents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected no records, got %d", len(data))
	}
	if requests != 1 {
		t.Errorf("a 404 must not be retried, got %d requests", requests)
	}
}

func TestFetchAll_RetriesServerErrors(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, eventsPage(2, ""))
	}))
	defer srv.Close()

	data, err := newClient(srv.URL, 1).FetchAll(context.Background(), kalshi.ResourceEvents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requests != 2 {
		t.Errorf("expected one retry after the 500, got %d requests", requests)
	}
	if len(data) != 2 {
		t.Errorf("expected 2 records after retry, got %d", len(data))
	}
}

func TestFetchAll_UnknownResource(t *testing.T) {
	_, err := newClient("http://unused", 0).FetchAll(context.Background(), "trades")
	if err == nil || !strings.Contains(err.Error(), `unknown resource "trades"`) {
		t.Fatalf("expected unknown resource error, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────
// Request shape
// ─────────────────────────────────────────────────────────────

func TestFetchAll_QueryParams(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"markets":[{"ticker":"KXA"}],"cursor":""}`)
	}))
	defer srv.Close()

	if _, err := newClient(srv.URL, 0).FetchAll(context.Background(), kalshi.ResourceMarkets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/markets" {
		t.Errorf("expected /markets path, got %q", gotPath)
	}
	if got := gotQuery["status"]; len(got) != 1 || got[0] != "open" {
		t.Errorf("expected status=open, got %v", got)
	}
	if got := gotQuery["limit"]; len(got) != 1 || got[0] != "1000" {
		t.Errorf("expected markets limit=1000, got %v", got)
	}
}

func TestFetchAll_EventLimitDefault(t *testing.T) {
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		fmt.Fprint(w, eventsPage(1, ""))
	}))
	defer srv.Close()

	if _, err := newClient(srv.URL, 0).FetchAll(context.Background(), kalshi.ResourceEvents); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != "200" {
		t.Errorf("expected events limit=200, got %q", gotLimit)
	}
}

func TestResources_Order(t *testing.T) {
	got := kalshi.Resources()
	if len(got) != 2 || got[0] != kalshi.ResourceEvents || got[1] != kalshi.ResourceMarkets {
		t.Errorf("expected [events markets], got %v", got)
	}
}
