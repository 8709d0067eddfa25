// Package client provides the paged fetch client for the comments endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/comment-scroll/pkg/comments"
	"github.com/Sternrassler/comment-scroll/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for comment page requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comments_requests_total",
		Help: "Total comment page requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "comments_request_duration_seconds",
		Help:    "Comment page request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comments_errors_total",
		Help: "Total comment page errors by class",
	}, []string{"class"})

	cancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comments_cancelled_total",
		Help: "Total comment page requests abandoned because their context was cancelled",
	})
)

// ErrorClass represents a classification of transport errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and requests blocked by the rate limit gate.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassParse represents response bodies that are not a comment array.
	ErrorClassParse ErrorClass = "parse"
)

// Client fetches pages of comments.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	endpoint    *url.URL
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root; pages are read from {BaseURL}/comments.
	BaseURL string

	// PageSize is the number of comments requested per page (_limit), fixed for the session.
	PageSize int

	// UserAgent header sent with every request.
	UserAgent string

	// RateLimiter gates requests on the advertised API budget (optional).
	RateLimiter *ratelimit.Tracker

	// Logger overrides the component logger (optional).
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration for the given API root.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		PageSize:  10,
		UserAgent: "comment-scroll/0.1.0",
	}
}

// New creates a new comments client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	endpoint, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/comments")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("page_size must be >= 1 (got %d)", cfg.PageSize)
	}

	logger := log.With().Str("component", "comments-client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		// No timeout: a hung request keeps the page loading until its context is cancelled.
		httpClient:  &http.Client{},
		rateLimiter: cfg.RateLimiter,
		config:      cfg,
		endpoint:    endpoint,
		logger:      logger,
	}, nil
}

// PageURL returns the request URL for a page.
func (c *Client) PageURL(page int) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("_page", strconv.Itoa(page))
	q.Set("_limit", strconv.Itoa(c.config.PageSize))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage performs exactly one request for the given page.
//
// An empty page is a normal result meaning end-of-data. Failures are a *TransportError
// (non-2xx status or network failure), a *ParseError (unexpected body) or, once ctx is
// cancelled, a *CancelledError. A cancelled request never returns a page.
func (c *Client) FetchPage(ctx context.Context, page int) (comments.Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidPage, page)
	}
	if err := ctx.Err(); err != nil {
		return nil, c.cancelled(page, err)
	}

	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if ctx.Err() != nil {
			return nil, c.cancelled(page, ctx.Err())
		}
		if err != nil {
			c.logger.Error().Err(err).Msg("Rate limit check failed")
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().Int("page", page).Msg("Request blocked by rate limiter")
			requestsTotal.WithLabelValues("rate_limited").Inc()
			errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, &TransportError{
				ErrorClass: ErrorClassRateLimit,
				Message:    "request blocked: rate limit exhausted",
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PageURL(page), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Int("page", page).
		Str("url", req.URL.String()).
		Msg("Fetching comments page")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.cancelled(page, ctx.Err())
		}
		errClass := c.classifyError(nil, err)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Int("page", page).Msg("HTTP request failed")
		return nil, &TransportError{
			ErrorClass: errClass,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errClass := c.classifyError(resp, nil)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Int("page", page).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Comments request error")
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.cancelled(page, ctx.Err())
		}
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	result, err := decodePage(body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassParse)).Inc()
		c.logger.Warn().Err(err).Int("page", page).Msg("Unexpected comments payload")
		return nil, &ParseError{Page: page, Err: err}
	}

	// The response may have completed just as the caller gave up on it.
	if err := ctx.Err(); err != nil {
		return nil, c.cancelled(page, err)
	}

	c.logger.Debug().
		Int("page", page).
		Int("count", len(result)).
		Dur("duration", time.Since(startTime)).
		Msg("Fetched comments page")

	return result, nil
}

// cancelled records and builds a cancellation error.
func (c *Client) cancelled(page int, err error) error {
	cancelledTotal.Inc()
	c.logger.Debug().Int("page", page).Err(err).Msg("Comments request cancelled")
	return &CancelledError{Page: page, Err: err}
}

// classifyError categorizes a failure for observability.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx that the transport did not resolve; treat as a server-side problem.
		return ErrorClassServer
	}
}

// wireComment mirrors comments.Comment with a pointer ID so a missing id is detectable.
type wireComment struct {
	ID     *int   `json:"id"`
	PostID int    `json:"postId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Body   string `json:"body"`
}

// decodePage parses a JSON array of comments. Anything else is rejected.
func decodePage(body []byte) (comments.Page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("response body is not a JSON array")
	}

	var wire []wireComment
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}

	page := make(comments.Page, 0, len(wire))
	for i, w := range wire {
		if w.ID == nil {
			return nil, fmt.Errorf("comment %d has no id", i)
		}
		page = append(page, comments.Comment{
			ID:     *w.ID,
			PostID: w.PostID,
			Name:   w.Name,
			Email:  w.Email,
			Body:   w.Body,
		})
	}
	return page, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
