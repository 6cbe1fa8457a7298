package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/witanlabs/witan-assist/action"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 200 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
	defaultUserAgent   = "witan-assist/dev"
)

// Client classifies text against a remote /analyze endpoint. It implements
// action.Classifier.
type Client struct {
	BaseURL    string
	APIKey     string
	Locale     string
	UserAgent  string
	HTTPClient *http.Client
	// Cache stores classifications by text. nil disables caching.
	Cache *ResponseCache
	// Timeout bounds each attempt. Zero leaves the caller's context in charge.
	Timeout time.Duration

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	sleep       func(context.Context, time.Duration) error
	randInt63n  func(int64) int64
	now         func() time.Time
}

type rawResponse struct {
	StatusCode  int
	ContentType string
	RetryAfter  string
	Body        []byte
}

// New creates a client for the classifier service at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		UserAgent:   defaultUserAgent,
		HTTPClient:  &http.Client{},
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		sleep:       sleepContext,
		randInt63n:  rand.Int63n,
		now:         time.Now,
	}
}

// Classify implements action.Classifier. Unknown action names from the
// service map to action.Unsupported.
func (c *Client) Classify(ctx context.Context, text string) (action.Classification, error) {
	key := CacheKey(c.BaseURL, c.Locale, text)
	if c.Cache != nil {
		if e, ok := c.Cache.Get(key); ok {
			return classification(e.Action, e.Description, c.Locale), nil
		}
	}

	resp, err := c.Analyze(ctx, AnalyzeRequest{Message: text, Locale: c.Locale})
	if err != nil {
		return action.Classification{}, err
	}
	if c.Cache != nil {
		c.Cache.Put(key, CacheEntry{Action: resp.Action, Description: resp.Description, Locale: c.Locale})
	}
	return classification(resp.Action, resp.Description, c.Locale), nil
}

func classification(kind, description, locale string) action.Classification {
	a := action.FromKind(kind)
	if description == "" {
		description = action.DefaultCatalog().Describe(locale, a.Kind())
	}
	return action.Classification{Action: a, Description: description}
}

// Analyze posts req to /analyze.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling analyze request: %w", err)
	}

	raw, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		httpReq, err := http.NewRequest("POST", c.BaseURL+"/analyze", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		c.setCommonHeaders(httpReq)
		return httpReq, nil
	})
	if err != nil {
		return nil, err
	}
	if raw.StatusCode != http.StatusOK {
		return nil, parseAPIError(raw.StatusCode, raw.Body, raw.RetryAfter)
	}

	var result AnalyzeResponse
	if err := json.Unmarshal(raw.Body, &result); err != nil {
		return nil, fmt.Errorf("parsing analyze response: %w", err)
	}
	return &result, nil
}

func (c *Client) doWithRetry(ctx context.Context, makeRequest func() (*http.Request, error)) (*rawResponse, error) {
	maxAttempts := c.maxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := makeRequest()
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		}
		req = req.WithContext(attemptCtx)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			cancel()
			if attempt < maxAttempts && ctx.Err() == nil && isRetryableTransportError(err) {
				if err := c.sleepWithBackoff(ctx, attempt, ""); err != nil {
					return nil, fmt.Errorf("classifier request cancelled: %w", err)
				}
				continue
			}
			return nil, fmt.Errorf("classifier request failed after %d attempt(s): %w", attempt, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		if readErr != nil {
			if attempt < maxAttempts && ctx.Err() == nil && isRetryableTransportError(readErr) {
				if err := c.sleepWithBackoff(ctx, attempt, ""); err != nil {
					return nil, fmt.Errorf("classifier request cancelled: %w", err)
				}
				continue
			}
			return nil, fmt.Errorf("reading response after %d attempt(s): %w", attempt, readErr)
		}

		if attempt < maxAttempts && ctx.Err() == nil && shouldRetryStatus(resp.StatusCode) {
			if err := c.sleepWithBackoff(ctx, attempt, resp.Header.Get("Retry-After")); err != nil {
				return nil, fmt.Errorf("classifier request cancelled: %w", err)
			}
			continue
		}

		return &rawResponse{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			RetryAfter:  resp.Header.Get("Retry-After"),
			Body:        body,
		}, nil
	}

	return nil, fmt.Errorf("classifier request failed after %d attempt(s)", maxAttempts)
}

func isRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func shouldRetryStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// sleepWithBackoff waits before the next attempt. Retry-After is honoured up
// to maxBackoff; otherwise the delay is exponential with full jitter. It
// returns early with ctx's error when ctx is done.
func (c *Client) sleepWithBackoff(ctx context.Context, attempt int, retryAfterHeader string) error {
	maxBackoff := c.maxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	if d, ok := c.parseRetryAfter(retryAfterHeader); ok {
		return c.sleep(ctx, min(d, maxBackoff))
	}

	base := c.baseBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay <= 0 {
			delay = defaultMaxBackoff
			break
		}
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	if delay <= 0 {
		return nil
	}

	// Full jitter in [0, delay).
	if c.randInt63n != nil {
		delay = time.Duration(c.randInt63n(int64(delay)))
	}
	return c.sleep(ctx, delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) parseRetryAfter(headerValue string) (time.Duration, bool) {
	v := strings.TrimSpace(headerValue)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		now := time.Now
		if c.now != nil {
			now = c.now
		}
		d := t.Sub(now())
		if d > 0 {
			return d, true
		}
	}
	return 0, false
}

// APIError is a non-200 reply from the classifier service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter string
}

func (e *APIError) Error() string {
	if friendly := friendlyErrorMessage(e.StatusCode, e.Code, e.Message, e.RetryAfter); friendly != "" {
		return friendly
	}
	if e.Code != "" {
		return fmt.Sprintf("classifier error %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("classifier error %d: %s", e.StatusCode, e.Message)
}

func friendlyErrorMessage(statusCode int, code, message, retryAfter string) string {
	if statusCode == http.StatusTooManyRequests {
		if retryAfter != "" {
			return fmt.Sprintf("rate limited by classifier; retry after %s", retryAfter)
		}
		return "rate limited by classifier; retry in a moment"
	}
	if statusCode == http.StatusUnauthorized {
		return "classifier rejected the API key; check --api-key or `witan-assist config set api-key`"
	}
	if statusCode == http.StatusBadRequest && message != "" && code == "" {
		return message
	}
	return ""
}

// IsBadRequest reports whether err is a 400 APIError.
func IsBadRequest(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusBadRequest
	}
	return false
}

func parseAPIError(statusCode int, body []byte, retryAfter string) error {
	var flat ErrorResponse
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return &APIError{StatusCode: statusCode, Message: flat.Error, RetryAfter: retryAfter}
	}
	var nested errorEnvelope
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return &APIError{
			StatusCode: statusCode,
			Code:       nested.Error.Code,
			Message:    nested.Error.Message,
			RetryAfter: retryAfter,
		}
	}
	return &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body)), RetryAfter: retryAfter}
}

func (c *Client) setCommonHeaders(req *http.Request) {
	userAgent := strings.TrimSpace(c.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	if c.APIKey == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
}
