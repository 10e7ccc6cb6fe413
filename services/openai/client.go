package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	gopenai "github.com/sashabaranov/go-openai"
)

const (
	// BaseURL is the OpenAI API base URL
	BaseURL = "https://api.openai.com"
	// DefaultTimeout is the default HTTP client timeout for API calls
	DefaultTimeout = 60 * time.Second
	// AssistantsBetaHeader is required by the assistants-era endpoints
	AssistantsBetaHeader = "assistants=v2"
	// MaxListPages bounds pagination when following has_more cursors so a
	// misbehaving remote can never drive unbounded request loops
	MaxListPages = 20
)

// Client handles all OpenAI API interactions. Raw requests cover the legacy
// endpoint shapes; the official SDK covers the current ones. Both apply the
// same retry policy and rate limiter, the SDK path through retryTransport.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	sdk         *gopenai.Client
	retryConfig RetryConfig
	rateLimiter *RateLimiter
}

// Config holds configuration for the OpenAI client
type Config struct {
	APIKey            string
	Timeout           time.Duration
	BaseURL           string
	RetryConfig       *RetryConfig
	RateLimiterConfig *RateLimiterConfig
}

// RetryConfig holds retry configuration for failed requests
type RetryConfig struct {
	MaxRetries     int           // Maximum number of retry attempts (default: 2)
	InitialBackoff time.Duration // Initial backoff duration (default: 500ms)
	MaxBackoff     time.Duration // Maximum backoff duration (default: 30s)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// NewClient creates a new OpenAI API client
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	retryConfig := DefaultRetryConfig()
	if config.RetryConfig != nil {
		retryConfig = *config.RetryConfig
	}

	rateLimiterConfig := DefaultRateLimiterConfig()
	if config.RateLimiterConfig != nil {
		rateLimiterConfig = *config.RateLimiterConfig
	}

	rateLimiter := NewRateLimiter(rateLimiterConfig)

	// The raw path drives its own retry loop, so its client stays plain
	httpClient := &http.Client{
		Timeout: config.Timeout,
	}

	sdkConfig := gopenai.DefaultConfig(config.APIKey)
	sdkConfig.BaseURL = config.BaseURL + "/v1"
	sdkConfig.HTTPClient = &http.Client{
		Timeout: config.Timeout,
		Transport: &retryTransport{
			base:        http.DefaultTransport,
			retryConfig: retryConfig,
			rateLimiter: rateLimiter,
		},
	}
	sdkConfig.AssistantVersion = "v2"

	return &Client{
		apiKey:      config.APIKey,
		baseURL:     config.BaseURL,
		httpClient:  httpClient,
		sdk:         gopenai.NewClientWithConfig(sdkConfig),
		retryConfig: retryConfig,
		rateLimiter: rateLimiter,
	}
}

// retryTransport applies the client's rate limiter and retry policy to every
// SDK-routed request, so transient failures behave the same no matter which
// path produced the call
type retryTransport struct {
	base        http.RoundTripper
	retryConfig RetryConfig
	rateLimiter *RateLimiter
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// A body without GetBody cannot be replayed, so no retry is possible
	if req.Body != nil && req.GetBody == nil {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	if t.rateLimiter != nil {
		if err := t.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
		}
	}

	var resp *http.Response
	var err error
	for attempt := 0; attempt <= t.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			if req.Body != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return nil, fmt.Errorf("failed to rewind request body: %w", bodyErr)
				}
				req.Body = body
			}
			backoff := CalculateBackoff(attempt-1, t.retryConfig)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err = t.base.RoundTrip(req)
		if err != nil {
			// Network failures are transient until proven otherwise
			continue
		}
		if !IsRetryableStatusCode(resp.StatusCode) || attempt == t.retryConfig.MaxRetries {
			return resp, nil
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if retryAfter := ParseRetryAfter(resp); retryAfter > 0 {
				log.Printf("OpenAI client: rate limited on %s, Retry-After %v", req.URL.Path, retryAfter)
			}
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return resp, err
}

// GetRetryConfig returns the retry configuration
func (c *Client) GetRetryConfig() RetryConfig {
	return c.retryConfig
}

// GetRateLimiter returns the rate limiter
func (c *Client) GetRateLimiter() *RateLimiter {
	return c.rateLimiter
}

// IsRetryableStatusCode checks if an HTTP status code should trigger a retry.
// 409 is included because the provider rejects concurrent runs on one thread
// with a conflict that resolves once the active run finishes.
func IsRetryableStatusCode(statusCode int) bool {
	return statusCode == 408 || statusCode == 409 || statusCode == 429 || statusCode >= 500
}

// CalculateBackoff returns the backoff duration for a given retry attempt
// using exponential backoff: initialBackoff * 2^attempt, capped at maxBackoff
func CalculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := config.InitialBackoff * time.Duration(1<<uint(attempt))
	if backoff > config.MaxBackoff {
		return config.MaxBackoff
	}
	return backoff
}

// ParseRetryAfter extracts the Retry-After header value from a response.
// Returns 0 if the header is not present or cannot be parsed.
func ParseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		duration := time.Until(t)
		if duration > 0 {
			return duration
		}
	}

	return 0
}

// doRequest performs a raw HTTP request without the assistants beta header
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	return c.doRequestWithOptions(ctx, method, endpoint, body, result, false)
}

// doRequestBeta performs a raw HTTP request with the assistants beta header,
// which the legacy vector-store endpoints demand on some API revisions
func (c *Client) doRequestBeta(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	return c.doRequestWithOptions(ctx, method, endpoint, body, result, true)
}

func (c *Client) doRequestWithOptions(ctx context.Context, method, endpoint string, body interface{}, result interface{}, betaHeader bool) error {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait cancelled: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := CalculateBackoff(attempt-1, c.retryConfig)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		retryable, err := c.doRequestOnce(ctx, method, endpoint, body, result, betaHeader)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}

	return lastErr
}

// doRequestOnce performs one HTTP exchange. The bool return reports whether
// the failure is worth retrying.
func (c *Client) doRequestOnce(ctx context.Context, method, endpoint string, body interface{}, result interface{}, betaHeader bool) (bool, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if betaHeader {
		req.Header.Set("OpenAI-Beta", AssistantsBetaHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures are transient until proven otherwise
		return true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusTooManyRequests {
			if retryAfter := ParseRetryAfter(resp); retryAfter > 0 {
				log.Printf("OpenAI client: rate limited on %s, Retry-After %v", endpoint, retryAfter)
			}
		}

		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if jsonErr := json.Unmarshal(respBody, &envelope); jsonErr != nil || envelope.Error == nil {
			apiErr.Message = string(respBody)
		} else {
			apiErr.Message = envelope.Error.Message
			apiErr.Type = envelope.Error.Type
			apiErr.Code = envelope.Error.Code
		}
		return IsRetryableStatusCode(resp.StatusCode), apiErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return false, nil
}

// APIError represents an OpenAI API error response
type APIError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	StatusCode int    `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("OpenAI API error (status %d): %s", e.StatusCode, e.Message)
}

// normalizeError converts SDK errors into *APIError so callers classify
// transport failures the same way regardless of which path produced them
func normalizeError(err error) error {
	if err == nil {
		return nil
	}

	var sdkErr *gopenai.APIError
	if errors.As(err, &sdkErr) {
		code := ""
		if s, ok := sdkErr.Code.(string); ok {
			code = s
		}
		return &APIError{
			Message:    sdkErr.Message,
			Type:       sdkErr.Type,
			Code:       code,
			StatusCode: sdkErr.HTTPStatusCode,
		}
	}

	var reqErr *gopenai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{
			Message:    reqErr.Error(),
			StatusCode: reqErr.HTTPStatusCode,
		}
	}

	return err
}

// StatusCodeOf extracts the HTTP status from an error, or 0 for non-API errors
func StatusCodeOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether the error is a remote 404
func IsNotFound(err error) bool {
	return StatusCodeOf(err) == http.StatusNotFound
}

// IsAuthError reports whether the error is a remote 401/403
func IsAuthError(err error) bool {
	code := StatusCodeOf(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsRetryable reports whether the error is worth retrying
func IsRetryable(err error) bool {
	code := StatusCodeOf(err)
	return code != 0 && IsRetryableStatusCode(code)
}
