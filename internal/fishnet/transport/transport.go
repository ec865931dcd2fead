// Package transport implements the thin HTTP wrapper the worker loop and
// progress reporter post through: persistent connection reuse, a single
// bounded retry on transient transport errors, a fixed request timeout and a
// client-identifying User-Agent, plus the status-class classification that
// turns a raw HTTP response into a decision the caller can act on.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/seekerror/logw"
)

// RequestTimeout bounds every HTTP call the client makes, per spec §4.7.
const RequestTimeout = 15 * time.Second

// MaxRetries is the number of additional attempts made after a transient
// transport error (connection refused, timeout, reset) before giving up and
// surfacing the error to the caller for its own backoff.
const MaxRetries = 2

// UpdateRequiredMarker is the substring the coordinator's 4xx error body
// carries when the client must self-update before it can be issued more
// work, per spec §4.5 and §7.
const UpdateRequiredMarker = "Please restart"

// ErrUpdateRequired is the error the worker loop returns when Classify
// reports OutcomeUpdateRequired, i.e. the coordinator's error body carries
// UpdateRequiredMarker.
var ErrUpdateRequired = fmt.Errorf("update required")

// Response is the raw status and body of one request, carrying everything
// Classify and the worker loop's switch in spec §4.5 need.
type Response struct {
	Status int
	Body   []byte
}

// ErrorBody is the shape of a 4xx/5xx JSON error body.
type ErrorBody struct {
	Error string `json:"error"`
}

// Client wraps an *http.Client with the fishnet protocol's timeout, retry and
// User-Agent conventions.
type Client struct {
	endpoint  string
	userAgent string
	http      *http.Client
}

// New returns a Client posting to endpoint (joined with request paths) and
// identifying itself as userAgent, e.g. "fishnet-go/1.0.0".
func New(endpoint, userAgent string) *Client {
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return &Client{
		endpoint:  endpoint,
		userAgent: userAgent,
		http: &http.Client{
			Timeout: RequestTimeout,
		},
	}
}

// Post sends body as a JSON-typed POST to <endpoint>/<path>, retrying
// transient transport errors a bounded number of times, and returns the raw
// status and body for the caller to classify.
func (c *Client) Post(ctx context.Context, path string, body []byte) (int, error) {
	resp, err := c.do(ctx, path, body)
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}

// Do is the richer entry point used by the worker loop, which needs both the
// status and the response body to decide between job/no-job/error handling.
func (c *Client) Do(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.do(ctx, path, body)
}

func (c *Client) do(ctx context.Context, path string, body []byte) (*Response, error) {
	url := c.endpoint + strings.TrimPrefix(path, "/")

	var resp *Response
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		r, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer r.Body.Close()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		resp = &Response{Status: r.StatusCode, Body: data}
		return nil
	}

	b := backoff.WithMaxRetries(backoff.WithContext(backoff.NewExponentialBackOff(), ctx), MaxRetries)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, fmt.Errorf("transport: post %v: %w", path, err)
	}
	return resp, nil
}

// Get issues a GET to <endpoint>/<path>, used only by the "key" validation
// endpoint (from the configure wizard and from run's config resolution).
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	url := c.endpoint + strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	r, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: get %v: %w", path, err)
	}
	defer r.Body.Close()

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: r.StatusCode, Body: data}, nil
}

// Outcome classifies a Response per spec §4.5/§7: whether it carries a job,
// should be treated as no-job, is a recoverable error, or requires the
// client to update and exit.
type Outcome int

const (
	OutcomeJob Outcome = iota
	OutcomeNoJob
	OutcomeRecoverable
	OutcomeRateLimited
	OutcomeUpdateRequired
)

// Classify maps a raw status code to an Outcome. The caller is expected to
// parse resp.Body into a Job only when Outcome is OutcomeJob.
func Classify(ctx context.Context, resp *Response) Outcome {
	switch {
	case resp.Status == 204:
		return OutcomeNoJob
	case resp.Status == 202 || resp.Status == 200:
		return OutcomeJob
	case resp.Status == 429:
		return OutcomeRateLimited
	case resp.Status >= 500:
		logw.Errorf(ctx, "Server error: %v", resp.Status)
		return OutcomeRecoverable
	case resp.Status >= 400:
		var body ErrorBody
		if err := json.Unmarshal(resp.Body, &body); err == nil && strings.Contains(body.Error, UpdateRequiredMarker) {
			logw.Errorf(ctx, "Update required: %v", body.Error)
			return OutcomeUpdateRequired
		}
		logw.Errorf(ctx, "Client error %v: %s", resp.Status, resp.Body)
		return OutcomeRecoverable
	default:
		logw.Warningf(ctx, "Unexpected status: %v", resp.Status)
		return OutcomeRecoverable
	}
}
