// Package client triggers the clock-driven endpoints of a remote server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"uptimewatch/internal/models"
)

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = 500 * time.Millisecond
	defaultRetryWaitMax = 5 * time.Second
	defaultTimeout      = 5 * time.Minute
	maxErrorBody        = 64 << 10
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s: %s", e.Status, e.Code, e.Message)
}

// Options tune retries. Zero values select the defaults.
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

// Client calls the cron and archive endpoints with the cron secret.
type Client struct {
	base   *url.URL
	secret string
	http   *retryablehttp.Client
}

// New creates a client for the server at baseURL.
func New(baseURL, secret string, opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid server address %q", baseURL)
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = defaultRetryMax
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = defaultRetryWaitMin
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = defaultRetryWaitMax
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = opts.RetryWaitMin
	rc.RetryWaitMax = opts.RetryWaitMax
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = nil
	rc.CheckRetry = retryTransportErrors
	return &Client{base: base, secret: secret, http: rc}, nil
}

// retryTransportErrors retries only when no response was received. Any
// answer from the server, including 5xx, is final because the cron run may
// already have happened.
func retryTransportErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		return false, nil
	}
	if err != nil {
		return true, nil //nolint:nilerr // retryablehttp reports the final error
	}
	return false, nil
}

// TriggerCron runs the cron endpoint. force requests an archival pass
// regardless of the time of day.
func (c *Client) TriggerCron(ctx context.Context, force bool) (*models.CronReport, error) {
	path := "/cron"
	if force {
		path += "?archive=force"
	}
	var report models.CronReport
	if err := c.do(ctx, http.MethodPost, path, &report, http.StatusInternalServerError); err != nil {
		return nil, err
	}
	return &report, nil
}

// Archive runs an archival pass.
func (c *Client) Archive(ctx context.Context) (models.ArchiveResult, error) {
	var result models.ArchiveResult
	err := c.do(ctx, http.MethodPost, "/archive", &result)
	return result, err
}

// ArchiveStatus reports the archive backlog.
func (c *Client) ArchiveStatus(ctx context.Context) (models.ArchiveStatus, error) {
	var status models.ArchiveStatus
	err := c.do(ctx, http.MethodGet, "/archive", &status)
	return status, err
}

// do sends the request and decodes a JSON answer into dst. Statuses listed
// in decodable are decoded like successes.
func (c *Client) do(ctx context.Context, method, path string, dst any, decodable ...int) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base.String()+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, code := range decodable {
		if resp.StatusCode == code {
			ok = true
		}
	}
	if !ok {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if json.Unmarshal(b, &body) == nil {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
	}
	return apiErr
}
