// Package client provides the screener request dispatcher: one form POST per
// page with identity headers, status classification, an optional retry
// policy, and an optional shared request budget.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/screener-client/pkg/criteria"
	"github.com/Sternrassler/screener-client/pkg/logging"
	"github.com/Sternrassler/screener-client/pkg/ratelimit"
	"github.com/Sternrassler/screener-client/pkg/sentinel"
)

// DefaultEndpoint is the stock screener search service.
const DefaultEndpoint = "https://www.investing.com/stock-screener/Service/SearchStocks"

// Prometheus metrics for dispatcher operations.
var (
	screenerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_requests_total",
		Help: "Total screener page requests by status",
	}, []string{"status"})

	screenerRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "screener_request_duration_seconds",
		Help:    "Screener page request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	screenerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_errors_total",
		Help: "Total screener request errors by class",
	}, []string{"class"})
)

// Client is the screener request dispatcher.
type Client struct {
	httpClient *http.Client
	budget     *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the search service URL receiving the form POSTs.
	Endpoint string

	// UserAgents supplies the identity header (REQUIRED).
	UserAgents UserAgentProvider

	// Timeout bounds a single HTTP round-trip.
	Timeout time.Duration

	// Retry is the per-page retry policy. The zero value means no retry.
	Retry RetryPolicy

	// Budget optionally gates every attempt through a shared request budget.
	Budget *ratelimit.Tracker

	// MaxBodyBytes caps the size of a response body.
	MaxBodyBytes int64
}

// DefaultConfig returns the default configuration: rotating identities,
// 30s timeout, no retry, no budget.
func DefaultConfig() Config {
	return Config{
		Endpoint:     DefaultEndpoint,
		UserAgents:   DefaultUserAgents,
		Timeout:      30 * time.Second,
		Retry:        NoRetry(),
		MaxBodyBytes: 32 << 20,
	}
}

// New creates a new dispatcher.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute URL (got %q)", cfg.Endpoint)
	}

	if cfg.UserAgents == nil {
		return nil, fmt.Errorf("user-agent provider is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}

	logger := logging.NewLogger("screener-client")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		budget: cfg.Budget,
		config: cfg,
		logger: logger,
	}, nil
}

// Dispatch POSTs form to the endpoint and returns the response body.
// Any non-2xx status, or a transport failure, yields a *StatusError.
func (c *Client) Dispatch(ctx context.Context, form url.Values) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		screenerRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	page := form.Get(criteria.PageField)
	encoded := form.Encode()

	var body []byte

	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		if c.budget != nil {
			if err := c.budget.Acquire(ctx); err != nil {
				return fmt.Errorf("request budget: %w", err)
			}
		}

		var attemptErr error
		body, attemptErr = c.do(ctx, encoded, page)
		return attemptErr
	}, func(err error) ErrorClass {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return statusErr.ErrorClass
		}
		return ""
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

// do executes one attempt.
func (c *Client) do(ctx context.Context, encoded, page string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, strings.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.config.UserAgents.UserAgent())
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json, text/html")
	req.Header.Set("Connection", "keep-alive")

	c.logger.Debug().
		Str("page", page).
		Str("method", req.Method).
		Msg("Executing screener request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("screener request: %w", ctxErr)
		}
		c.logger.Error().Err(err).Str("page", page).Msg("HTTP request failed")
		screenerErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		screenerRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &StatusError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errClass := classifyStatus(resp.StatusCode)
		screenerErrorsTotal.WithLabelValues(string(errClass)).Inc()
		screenerRequestsTotal.WithLabelValues(status).Inc()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		c.logger.Warn().
			Str("page", page).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Screener request error")

		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		screenerErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		screenerRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", sentinel.ErrDecoding, c.config.MaxBodyBytes)
	}

	screenerRequestsTotal.WithLabelValues(status).Inc()
	return body, nil
}
