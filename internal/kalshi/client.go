// Package kalshi is a minimal client for the public Kalshi trade API,
// covering the listing endpoints the collector needs.
package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the public trade API host.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

// Resource types served by the listing endpoints.
const (
	ResourceEvents  = "events"
	ResourceMarkets = "markets"
)

// Resources lists the resource types in processing order.
func Resources() []string {
	return []string{ResourceEvents, ResourceMarkets}
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL      string
	Status       string        // listing status filter, default "open"
	MaxPages     int           // pagination safety bound, default 50
	Sleep        time.Duration // fixed delay between page requests, default 1.5s
	MaxRetries   int           // extra attempts per request on transient failures
	RetryBackoff time.Duration // base backoff between attempts, default 1s
	Timeout      time.Duration // per-request timeout, default 30s
	EventLimit   int           // page size for /events, default 200
	MarketLimit  int           // page size for /markets, default 1000
	Logger       *logrus.Logger
}

// Client fetches cursor-paginated listings from the Kalshi API.
type Client struct {
	baseURL      string
	status       string
	maxPages     int
	sleep        time.Duration
	maxRetries   int
	retryBackoff time.Duration
	limits       map[string]int
	http         *http.Client
	log          *logrus.Logger
}

// New creates a Client from the given options.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Status == "" {
		opts.Status = "open"
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 50
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.EventLimit <= 0 {
		opts.EventLimit = 200
	}
	if opts.MarketLimit <= 0 {
		opts.MarketLimit = 1000
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL:      opts.BaseURL,
		status:       opts.Status,
		maxPages:     opts.MaxPages,
		sleep:        opts.Sleep,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		limits: map[string]int{
			ResourceEvents:  opts.EventLimit,
			ResourceMarkets: opts.MarketLimit,
		},
		http: &http.Client{Timeout: opts.Timeout},
		log:  opts.Logger,
	}
}

// listingPage is one page of a paginated listing response. The item key
// matches the resource name; an empty cursor ends the sequence.
type listingPage struct {
	Events  []map[string]any `json:"events"`
	Markets []map[string]any `json:"markets"`
	Cursor  string           `json:"cursor"`
}

func (p *listingPage) items(resource string) []map[string]any {
	if resource == ResourceEvents {
		return p.Events
	}
	return p.Markets
}

// FetchAll pulls every page of the given resource listing. A failed page
// ends pagination early with a logged error; records gathered from prior
// pages are returned as-is, so callers always get the partial dataset.
func (c *Client) FetchAll(ctx context.Context, resource string) ([]map[string]any, error) {
	limit, ok := c.limits[resource]
	if !ok {
		return nil, fmt.Errorf("unknown resource %q", resource)
	}

	var data []map[string]any
	cursor := ""
	for page := 1; ; page++ {
		if page > 1 && c.sleep > 0 {
			if err := sleepCtx(ctx, c.sleep); err != nil {
				return data, err
			}
		}

		c.log.Infof("kalshi: fetching %s page %d", resource, page)
		p, err := c.fetchPage(ctx, resource, limit, cursor)
		if err != nil {
			c.log.Errorf("kalshi: %s page %d failed: %v", resource, page, err)
			break
		}

		items := p.items(resource)
		if len(items) == 0 {
			c.log.Infof("kalshi: no %s returned on page %d", resource, page)
			break
		}
		data = append(data, items...)
		c.log.Infof("kalshi: page %d: %d records, total %d", page, len(items), len(data))

		if p.Cursor == "" {
			c.log.Infof("kalshi: completed %s: %d total records", resource, len(data))
			break
		}
		cursor = p.Cursor

		if page >= c.maxPages {
			c.log.Warnf("kalshi: stopped %s at page %d, safety limit reached", resource, page)
			break
		}
	}
	return data, nil
}

// fetchPage issues one listing request, retrying transient failures.
// Application-level 4xx responses are returned immediately.
func (c *Client) fetchPage(ctx context.Context, resource string, limit int, cursor string) (*listingPage, error) {
	q := url.Values{}
	q.Set("status", c.status)
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, resource, q.Encode())

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Warnf("kalshi: retrying %s (attempt %d): %v", resource, attempt+1, lastErr)
			if err := sleepCtx(ctx, c.retryBackoff*time.Duration(1<<(attempt-1))); err != nil {
				return nil, err
			}
		}

		p, retryable, err := c.doPage(ctx, endpoint)
		if err == nil {
			return p, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) doPage(ctx context.Context, endpoint string) (*listingPage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "kalshidune/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var p listingPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, false, fmt.Errorf("parse response: %w", err)
	}
	return &p, false, nil
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
