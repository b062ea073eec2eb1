package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"kalshidune/internal/etl"
)

// ── Kalshi Listing Source ───────────────────────────────────
// Streams the full paginated listing of one resource type (events or
// markets) and stamps each record with the run's collection fields.

// ListingFetcher pulls every page of raw listing records for a resource
// type. Implemented by the kalshi API client.
type ListingFetcher interface {
	FetchAll(ctx context.Context, resource string) ([]map[string]any, error)
}

var listingFetcher ListingFetcher

// SetListingFetcher is called by the app at startup.
func SetListingFetcher(f ListingFetcher) { listingFetcher = f }

type kalshiSource struct{}

func init() { etl.RegisterSource(&kalshiSource{}) }

func (s *kalshiSource) Type() string { return "kalshi" }

func (s *kalshiSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if listingFetcher == nil {
			errCh <- fmt.Errorf("no listing fetcher configured")
			return
		}
		resource, _ := cfg["resource"].(string)
		if resource == "" {
			errCh <- fmt.Errorf("resource is required")
			return
		}
		collectedAt, _ := cfg["collectedAt"].(string) // full ISO timestamp
		date, _ := cfg["date"].(string)               // YYYY-MM-DD

		items, err := listingFetcher.FetchAll(ctx, resource)
		if err != nil {
			errCh <- err
			return
		}

		for _, item := range items {
			data := flattenMap(item)
			data["collection_date"] = collectedAt
			data["DATE"] = date
			select {
			case out <- etl.Record{Data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}

// flattenMap keeps only scalar values (string, number, bool) from a map.
// Nested objects/arrays are serialized as JSON strings.
func flattenMap(m map[string]any) map[string]any {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		switch v.(type) {
		case string, float64, bool, nil:
			flat[k] = v
		default:
			// Serialize complex values.
			b, _ := json.Marshal(v)
			flat[k] = string(b)
		}
	}
	return flat
}
