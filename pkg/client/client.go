// Package client provides the HTTP client for the records API: one bounded
// page request per call, error classification, and request metrics.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/dataset-sync/pkg/dataset"
)

// Prometheus metrics for source API operations.
var (
	sourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "source_requests_total",
		Help: "Total source API requests by status",
	}, []string{"status"})

	sourceRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "source_request_duration_seconds",
		Help:    "Source API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	sourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "source_errors_total",
		Help: "Total source API errors by class",
	}, []string{"class"})
)

// recordsPath is the paginated listing endpoint of the records API.
const recordsPath = "/api/records"

// sortKey is the fixed sort order sent with every page request. Paging over
// a changing collection is only stable if every request uses the same total
// order with a unique tie-breaking key.
const sortKey = "id"

// Config holds the client configuration.
type Config struct {
	// BaseURL of the records API.
	BaseURL string

	// Token is the API credential, sent as the api_key request parameter.
	Token string

	// UserAgent header for all requests.
	UserAgent string

	// PageSize is the fixed limit sent with every page request.
	PageSize int

	// Timeout per request.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing requests when > 0.
	RequestsPerSecond float64
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:   baseURL,
		Token:     token,
		UserAgent: "dataset-sync/0.1.0",
		PageSize:  100,
		Timeout:   30 * time.Second,
	}
}

// Client is the records API client.
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// New creates a new records API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("api token is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be > 0 (got %d)", cfg.PageSize)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config:  cfg,
		limiter: limiter,
		logger:  log.With().Str("component", "source-client").Logger(),
	}, nil
}

// pageBody is the wire shape of one page response.
type pageBody struct {
	Items      []dataset.Record `json:"items"`
	Count      int              `json:"count"`
	TotalCount int              `json:"totalCount"`
}

// FetchPage issues a single bounded page request at the given offset and
// returns the page. There is no retry here: a failed fetch aborts the whole
// run by contract, so the first error is returned as-is — a *FetchError for
// a non-2xx response, a *DecodeError for an unparseable body.
func (c *Client) FetchPage(ctx context.Context, offset int) (*dataset.Page, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset must be >= 0 (got %d)", offset)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := c.newPageRequest(ctx, offset)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	sourceRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		sourceErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		sourceRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Int("offset", offset).Msg("Page request failed")
		return nil, fmt.Errorf("fetch offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	sourceRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		sourceErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Int("offset", offset).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Source returned error status")
		return nil, &FetchError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Offset:     offset,
		}
	}

	var body pageBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		sourceErrorsTotal.WithLabelValues("decode").Inc()
		c.logger.Error().Err(err).Int("offset", offset).Msg("Page body decode failed")
		return nil, &DecodeError{Offset: offset, Err: err}
	}

	c.logger.Debug().
		Int("offset", offset).
		Int("count", body.Count).
		Int("total_count", body.TotalCount).
		Dur("duration", time.Since(start)).
		Msg("Page fetched")

	return &dataset.Page{
		Offset:     offset,
		Items:      body.Items,
		Count:      body.Count,
		TotalCount: body.TotalCount,
	}, nil
}

// PageSize returns the fixed page size this client requests with.
func (c *Client) PageSize() int {
	return c.config.PageSize
}

// newPageRequest builds the GET request for one page. The credential rides
// as a query parameter, so only the endpoint path may appear in logs.
func (c *Client) newPageRequest(ctx context.Context, offset int) (*http.Request, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	u.Path = recordsPath

	q := u.Query()
	q.Set("limit", strconv.Itoa(c.config.PageSize))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("sort", sortKey)
	q.Set("api_key", c.config.Token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
