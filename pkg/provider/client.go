// Package provider implements the HTTP client for the social data provider
// with retry, backoff, and rate-limit cooldown handling.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scrapeworks/follower-enrich/pkg/ratelimit"
)

// Prometheus metrics for provider client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_requests_total",
		Help: "Total provider requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_request_duration_seconds",
		Help:    "Provider request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_errors_total",
		Help: "Total provider errors by class",
	}, []string{"class"})
)

// Provider API endpoints.
const (
	endpointUserByUsername = "/v1/user/by/username"
	endpointUserByID       = "/v1/user/by/id"
	endpointFollowersChunk = "/v1/user/followers/chunk"
)

// DefaultBaseURL is the production provider API.
const DefaultBaseURL = "https://api.hikerapi.com"

// Config holds the provider client configuration.
type Config struct {
	// BaseURL of the provider API (default: DefaultBaseURL).
	BaseURL string

	// AccessKey is attached to every request as the access_key query
	// parameter (REQUIRED by the provider).
	AccessKey string

	// Timeout per HTTP request.
	Timeout time.Duration

	// Retry controls the retry/backoff behavior for transient failures.
	Retry RetryConfig

	// RateLimiter is the optional shared cooldown tracker. When set,
	// concurrent 429 observations cool down all in-flight workers.
	RateLimiter *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(accessKey string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		AccessKey: accessKey,
		Timeout:   40 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client is the social data provider client. Both calls it exposes apply
// the retry policy transparently: callers see either a successful result
// or a terminal *Error / ErrRetryExhausted.
type Client struct {
	httpClient *http.Client
	baseURL    string
	accessKey  string
	retry      RetryConfig
	limiter    *ratelimit.Tracker
	logger     zerolog.Logger
}

// New creates a new provider client.
func New(cfg Config) (*Client, error) {
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("access key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 40 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	logger := log.With().Str("component", "provider-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   cfg.BaseURL,
		accessKey: cfg.AccessKey,
		retry:     cfg.Retry,
		limiter:   cfg.RateLimiter,
		logger:    logger,
	}, nil
}

// ListFollowers fetches one page of followers for a user.
// The cursor is passed through opaquely; an empty cursor requests the
// first page. The returned page's NextCursor is empty at the end of
// pagination.
func (c *Client) ListFollowers(ctx context.Context, userID string, pageSize int, cursor string) (*FollowerPage, error) {
	params := url.Values{}
	params.Set("user_id", userID)
	// The chunk endpoint expects 'count', not 'page_size'.
	params.Set("count", strconv.Itoa(pageSize))
	if cursor != "" {
		params.Set("max_id", cursor)
	}

	body, err := c.get(ctx, endpointFollowersChunk, params)
	if err != nil {
		return nil, err
	}

	page, err := normalizeFollowerPage(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("user_id", userID).
		Int("followers", len(page.Followers)).
		Bool("has_next_cursor", page.NextCursor != "").
		Msg("Fetched follower page")

	return page, nil
}

// LookupUser fetches the detail record for a single user identifier.
func (c *Client) LookupUser(ctx context.Context, id string) (*UserDetail, error) {
	params := url.Values{}
	params.Set("id", id)

	body, err := c.get(ctx, endpointUserByID, params)
	if err != nil {
		return nil, err
	}

	return normalizeUserDetail(body, id, "")
}

// ResolveUsername resolves an account handle to a user identifier.
func (c *Client) ResolveUsername(ctx context.Context, username string) (string, error) {
	params := url.Values{}
	params.Set("username", username)

	body, err := c.get(ctx, endpointUserByUsername, params)
	if err != nil {
		return "", err
	}

	detail, err := normalizeUserDetail(body, "", username)
	if err != nil {
		return "", err
	}
	if detail.ID == "" {
		return "", fmt.Errorf("could not resolve user id for username %q", username)
	}

	return detail.ID, nil
}

// get performs a GET request against a provider endpoint with rate-limit
// gating, retry, and error classification. It returns the response body
// on success.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	qp := url.Values{}
	for key, values := range params {
		qp[key] = values
	}
	qp.Set("access_key", c.accessKey)

	requestURL := c.baseURL + endpoint + "?" + qp.Encode()

	var body []byte

	retryErr := retryWithBackoff(ctx, c.retry, c.logger, func() error {
		// Honor any active cooldown before issuing the request so that
		// concurrent 429 observations slow down the whole pool.
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "read_error").Inc()
			return fmt.Errorf("read response body: %w", err)
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			errClass := classifyStatus(resp.StatusCode)
			errorsTotal.WithLabelValues(string(errClass)).Inc()

			if errClass == ErrorClassRateLimit && c.limiter != nil {
				c.limiter.ObserveRateLimit(ctx, retryAfter(resp.Header))
			}

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Provider request error")

			return &Error{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				Message:    resp.Status,
				Body:       truncate(string(data), 200),
			}
		}

		body = data
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return body, nil
}

// classifyStatus categorizes a non-2xx HTTP status code.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// retryAfter parses the Retry-After header, if present, as a delay.
func retryAfter(headers http.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
