// Package wayback talks to the Internet Archive: CDX index queries for
// snapshot listings and raw content fetches for individual captures.
package wayback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://web.archive.org"

	cdxPath = "/cdx/search/cdx"

	maxAttempts = 3
	backoffStep = 2 * time.Second
)

var retryableStatuses = map[int]bool{
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// StatusError is a terminal non-success response from the archive.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Config tunes the archive client. Zero values fall back to defaults;
// RequestsPerSecond <= 0 disables client-side throttling.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Cache             SnapshotCache
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	cache      SnapshotCache
	backoff    time.Duration
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		userAgent:  cfg.UserAgent,
		limiter:    limiter,
		cache:      cfg.Cache,
		backoff:    backoffStep,
		logger:     logger,
	}
}

// SnapshotOptions narrow a CDX index query. Zero dates mean unbounded,
// Limit <= 0 means no limit, empty StatusFilter defaults to 200.
type SnapshotOptions struct {
	From         civil.Date
	To           civil.Date
	Limit        int
	StatusFilter string
}

// GetSnapshots queries the CDX index for captures of pageURL, collapsed
// by digest so consecutive identical captures appear once. Results come
// back in the archive's chronological order. An empty index response
// yields an empty list, not an error.
func (c *Client) GetSnapshots(ctx context.Context, pageURL string, opts SnapshotOptions) ([]model.WaybackSnapshot, error) {
	statusFilter := opts.StatusFilter
	if statusFilter == "" {
		statusFilter = "200"
	}

	q := url.Values{}
	q.Set("url", pageURL)
	q.Set("output", "json")
	q.Set("fl", "timestamp,original,mimetype,statuscode,digest")
	q.Set("collapse", "digest")
	q.Set("filter", "statuscode:"+statusFilter)
	if opts.From.IsValid() {
		q.Set("from", cdxDate(opts.From))
	}
	if opts.To.IsValid() {
		q.Set("to", cdxDate(opts.To))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	body, err := c.get(ctx, c.baseURL+cdxPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to query CDX index for %s: %w", pageURL, err)
	}

	snapshots, err := parseCDXResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CDX response for %s: %w", pageURL, err)
	}

	c.logger.Debug("fetched snapshot index",
		zap.String("url", pageURL),
		zap.Int("snapshots", len(snapshots)))
	return snapshots, nil
}

// FetchSnapshot downloads the raw archived content of one capture,
// using the id_ URL flavour so the archive serves the original bytes
// without its toolbar markup. Content is cached by digest when a cache
// is configured; archived captures never change, so hits are always valid.
func (c *Client) FetchSnapshot(ctx context.Context, snap model.WaybackSnapshot) ([]byte, error) {
	if c.cache != nil {
		if content, ok := c.cache.Get(ctx, snap.Digest); ok {
			c.logger.Debug("snapshot cache hit", zap.String("digest", snap.Digest))
			return content, nil
		}
	}

	contentURL := fmt.Sprintf("%s/web/%sid_/%s", c.baseURL, snap.Timestamp, snap.URL)
	body, err := c.get(ctx, contentURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot %s of %s: %w", snap.Timestamp, snap.URL, err)
	}

	if c.cache != nil {
		c.cache.Put(ctx, snap.Digest, body)
	}
	return body, nil
}

// get performs one throttled GET with retries. Transport failures and
// gateway-flavoured statuses (502/503/504) retry with linear backoff;
// any other non-2xx status is terminal and surfaces as a StatusError.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.backoff):
			}
			c.logger.Debug("retrying archive request",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt))
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		body, err := c.doOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !retryableStatuses[statusErr.StatusCode] {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}

// parseCDXResponse decodes the archive's row-oriented JSON. The first
// row is the column header; with a fixed fl parameter the column order
// is known. Rows with an unexpected shape are skipped.
func parseCDXResponse(body []byte) ([]model.WaybackSnapshot, error) {
	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	if len(rows) <= 1 {
		return []model.WaybackSnapshot{}, nil
	}

	snapshots := make([]model.WaybackSnapshot, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != 5 {
			continue
		}
		status, err := strconv.Atoi(row[3])
		if err != nil {
			status = 0
		}
		snapshots = append(snapshots, model.WaybackSnapshot{
			Timestamp:  row[0],
			URL:        row[1],
			MimeType:   row[2],
			StatusCode: status,
			Digest:     row[4],
		})
	}
	return snapshots, nil
}

func cdxDate(d civil.Date) string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}
