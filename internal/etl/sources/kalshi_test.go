package sources_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"kalshidune/internal/etl"
	"kalshidune/internal/etl/sources"
)

// ─────────────────────────────────────────────────────────────
// Kalshi listing source
// ─────────────────────────────────────────────────────────────

type fakeFetcher struct {
	items    []map[string]any
	err      error
	resource string
}

func (f *fakeFetcher) FetchAll(ctx context.Context, resource string) ([]map[string]any, error) {
	f.resource = resource
	return f.items, f.err
}

func drain(t *testing.T, cfg etl.SourceConfig) ([]etl.Record, error) {
	t.Helper()
	src, err := etl.GetSource("kalshi")
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	recCh, errCh := src.Read(context.Background(), cfg)
	var records []etl.Record
	for rec := range recCh {
		records = append(records, rec)
	}
	return records, <-errCh
}

func TestKalshiSource_StampsCollectionFields(t *testing.T) {
	fetcher := &fakeFetcher{items: []map[string]any{
		{"event_ticker": "KXELECTION", "volume": 1200.0},
		{"event_ticker": "KXRATES", "volume": 300.0},
	}}
	sources.SetListingFetcher(fetcher)

	records, err := drain(t, etl.SourceConfig{
		"resource":    "events",
		"collectedAt": "2025-08-25T06:00:00Z",
		"date":        "2025-08-25",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.resource != "events" {
		t.Errorf("expected fetcher called with events, got %q", fetcher.resource)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.Data["collection_date"] != "2025-08-25T06:00:00Z" {
			t.Errorf("expected collection_date stamp, got %v", rec.Data["collection_date"])
		}
		if rec.Data["DATE"] != "2025-08-25" {
			t.Errorf("expected DATE stamp, got %v", rec.Data["DATE"])
		}
	}
}

func TestKalshiSource_FlattensNestedValues(t *testing.T) {
	sources.SetListingFetcher(&fakeFetcher{items: []map[string]any{
		{
			"ticker":     "KXA",
			"settlement": map[string]any{"kind": "binary"},
			"tags":       []any{"politics", "us"},
			"yes_bid":    0.42,
			"active":     true,
			"strike":     nil,
		},
	}})

	records, err := drain(t, etl.SourceConfig{"resource": "markets"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := records[0].Data

	settlement, ok := data["settlement"].(string)
	if !ok || !strings.Contains(settlement, `"kind":"binary"`) {
		t.Errorf("expected nested object serialized to JSON, got %v", data["settlement"])
	}
	if tags, ok := data["tags"].(string); !ok || !strings.Contains(tags, "politics") {
		t.Errorf("expected array serialized to JSON, got %v", data["tags"])
	}
	if data["yes_bid"] != 0.42 || data["active"] != true || data["strike"] != nil {
		t.Errorf("scalars must pass through untouched: %v", data)
	}
}

func TestKalshiSource_FetchError(t *testing.T) {
	sources.SetListingFetcher(&fakeFetcher{err: errors.New("rate limited")})

	records, err := drain(t, etl.SourceConfig{"resource": "events"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records on fetch error, got %d", len(records))
	}
}

func TestKalshiSource_MissingResource(t *testing.T) {
	sources.SetListingFetcher(&fakeFetcher{})

	_, err := drain(t, etl.SourceConfig{})
	if err == nil || !strings.Contains(err.Error(), "resource is required") {
		t.Fatalf("expected resource error, got %v", err)
	}
}

func TestKalshiSource_NoFetcherConfigured(t *testing.T) {
	sources.SetListingFetcher(nil)
	t.Cleanup(func() { sources.SetListingFetcher(nil) })

	_, err := drain(t, etl.SourceConfig{"resource": "events"})
	if err == nil || !strings.Contains(err.Error(), "no listing fetcher") {
		t.Fatalf("expected fetcher error, got %v", err)
	}
}
