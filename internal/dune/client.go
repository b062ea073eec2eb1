// Package dune is a client for the Dune Analytics table endpoints:
// idempotent table creation, full clears, and CSV bulk inserts.
package dune

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"kalshidune/internal/schema"
)

// DefaultBaseURL is the Dune API host.
const DefaultBaseURL = "https://api.dune.com/api/v1"

// DefaultNamespace is the community dataset namespace the tables live under.
const DefaultNamespace = "ghost_in_the_code"

// CreateResult is the outcome of an EnsureTable call.
type CreateResult string

const (
	Created       CreateResult = "created"
	AlreadyExists CreateResult = "already_exists"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL      string
	APIKey       string
	Namespace    string
	MaxRetries   int           // extra attempts on transient failures
	RetryBackoff time.Duration // base backoff between attempts, default 1s
	Timeout      time.Duration // per-request timeout, default 60s
	Logger       *logrus.Logger
}

// Client talks to the Dune table API.
type Client struct {
	baseURL      string
	apiKey       string
	namespace    string
	maxRetries   int
	retryBackoff time.Duration
	http         *http.Client
	log          *logrus.Logger
}

// New creates a Client from the given options.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL:      opts.BaseURL,
		apiKey:       opts.APIKey,
		namespace:    opts.Namespace,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		http:         &http.Client{Timeout: opts.Timeout},
		log:          opts.Logger,
	}
}

// Namespace returns the configured destination namespace.
func (c *Client) Namespace() string { return c.namespace }

// EnsureTable creates the table if it does not exist. A conflict
// response means the table is already there and counts as success;
// creation is idempotent. Any other non-2xx response is a hard failure.
func (c *Client) EnsureTable(ctx context.Context, table schema.Table) (CreateResult, error) {
	c.log.Infof("dune: creating table if not exists: %s", table.Name)

	payload, err := json.Marshal(map[string]any{
		"namespace":   c.namespace,
		"table_name":  table.Name,
		"description": table.Description,
		"is_private":  false,
		"schema":      table.Columns,
	})
	if err != nil {
		return "", fmt.Errorf("marshal create payload: %w", err)
	}

	status, body, err := c.post(ctx, "/table/create", "application/json", payload)
	if err != nil {
		return "", fmt.Errorf("create table %s: %w", table.Name, err)
	}
	switch {
	case status == http.StatusConflict:
		c.log.Infof("dune: table %s already exists, ready for inserts", table.Name)
		return AlreadyExists, nil
	case status >= 200 && status < 300:
		c.log.Infof("dune: created table %s.%s", c.namespace, table.Name)
		return Created, nil
	default:
		c.log.Errorf("dune: create table %s failed: http %d: %s", table.Name, status, body)
		return "", fmt.Errorf("create table %s: http %d: %s", table.Name, status, body)
	}
}

// ClearTable wipes all rows from the table.
func (c *Client) ClearTable(ctx context.Context, tableName string) error {
	c.log.Infof("dune: clearing all data from %s", tableName)

	endpoint := fmt.Sprintf("/table/%s/%s/clear", c.namespace, tableName)
	status, body, err := c.post(ctx, endpoint, "", nil)
	if err != nil {
		return fmt.Errorf("clear table %s: %w", tableName, err)
	}
	if status < 200 || status >= 300 {
		c.log.Errorf("dune: clear table %s failed: http %d: %s", tableName, status, body)
		return fmt.Errorf("clear table %s: http %d: %s", tableName, status, body)
	}
	c.log.Infof("dune: cleared %s.%s", c.namespace, tableName)
	return nil
}

// InsertCSV bulk-loads a headered CSV payload into the table.
func (c *Client) InsertCSV(ctx context.Context, tableName string, csvData []byte) error {
	endpoint := fmt.Sprintf("/table/%s/%s/insert", c.namespace, tableName)
	status, body, err := c.post(ctx, endpoint, "text/csv", csvData)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", tableName, err)
	}
	if status < 200 || status >= 300 {
		c.log.Errorf("dune: insert into %s failed: http %d: %s", tableName, status, body)
		return fmt.Errorf("insert into %s: http %d: %s", tableName, status, body)
	}
	return nil
}

// post sends one API request, retrying transient failures (network
// errors, 429, 5xx) with exponential backoff. Application-level 4xx
// statuses, including the create conflict, are returned to the caller
// without retry.
func (c *Client) post(ctx context.Context, endpoint, contentType string, payload []byte) (int, string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Warnf("dune: retrying %s (attempt %d): %v", endpoint, attempt+1, lastErr)
			if err := sleepCtx(ctx, c.retryBackoff*time.Duration(1<<(attempt-1))); err != nil {
				return 0, "", err
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bodyReader)
		if err != nil {
			return 0, "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("X-DUNE-API-KEY", c.apiKey)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
			continue
		}
		return resp.StatusCode, string(body), nil
	}
	return 0, "", lastErr
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
