package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/irfndi/funding-collector/internal/utils"
)

// DefaultTimeout applies when a request carries no timeout of its own.
const DefaultTimeout = 7 * time.Second

// Options configures a Client.
type Options struct {
	UserAgent string
	// RateLimit caps outgoing requests per second. Zero disables limiting.
	RateLimit float64
	Transport http.RoundTripper
	Logger    *logrus.Logger
}

// RequestOptions describes one JSON request.
type RequestOptions struct {
	Method  string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
	Timeout time.Duration
}

// Client fetches JSON documents from exchange REST APIs.
type Client struct {
	HTTPClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewClient creates a new JSON HTTP client.
func NewClient(opts Options) *Client {
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		HTTPClient: &http.Client{Transport: opts.Transport},
		userAgent:  opts.UserAgent,
		limiter:    limiter,
		logger:     logger,
	}
}

// FetchJSON performs the request and returns the raw JSON body.
//
// A request that gets no response within opts.Timeout is cancelled and fails
// with *utils.TimeoutError. A non-2xx status fails with *utils.HTTPError whose
// snippet holds at most utils.SnippetLimit bytes of the body. A 2xx body that
// is not JSON fails with *utils.ShapeError.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, opts RequestOptions) (json.RawMessage, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	target, err := buildURL(rawURL, opts.Query)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if opts.Body != nil {
		jsonData, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, reqCtx, target, timeout, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Debug("Error closing response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, reqCtx, target, timeout, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &utils.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        target,
			Snippet:    utils.Truncate(string(respBody), utils.SnippetLimit),
		}
	}

	trimmed := bytes.TrimSpace(respBody)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, utils.NewShapeError(target, "response is not valid JSON", respBody)
	}

	return json.RawMessage(trimmed), nil
}

// classify maps transport failures onto the error taxonomy. Only the
// per-request deadline becomes a TimeoutError; a cancelled parent context is
// returned as-is so callers can stop retrying.
func (c *Client) classify(parent, reqCtx context.Context, target string, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("request to %s: %w", target, parent.Err())
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return &utils.TimeoutError{URL: target, Timeout: timeout}
	}
	return fmt.Errorf("failed to make request to %s: %w", target, err)
}

func buildURL(rawURL string, query url.Values) (string, error) {
	if len(query) == 0 {
		return rawURL, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	values := parsed.Query()
	for key, vals := range query {
		for _, v := range vals {
			values.Add(key, v)
		}
	}
	parsed.RawQuery = values.Encode()
	return parsed.String(), nil
}

// JoinURL appends path to base without doubling the slash.
func JoinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

// Decode unmarshals raw into v, reporting failures as *utils.ShapeError.
func Decode(label string, raw []byte, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return utils.NewShapeError(label, err.Error(), raw)
	}
	return nil
}
