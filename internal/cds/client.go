package cds

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

	"github.com/ligustah/cdsfetch/internal/logger"
)

// Common errors.
var (
	ErrUnauthorized = errors.New("cds: unauthorized")
	ErrForbidden    = errors.New("cds: access forbidden")
	ErrNotFound     = errors.New("cds: resource not found")
	ErrRateLimited  = errors.New("cds: rate limited")
	ErrServerError  = errors.New("cds: server error")
	ErrShortBody    = errors.New("cds: archive shorter than announced")
)

// Task states reported by the API.
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// TaskError is returned when the service reports a retrieval as failed.
type TaskError struct {
	RequestID string
	Message   string
	Reason    string
}

func (e *TaskError) Error() string {
	msg := fmt.Sprintf("cds: request %s failed: %s", e.RequestID, e.Message)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// Options configures the CDS client.
type Options struct {
	// Timeout for individual API calls. The archive download itself is
	// bounded only by the caller's context.
	// Default: 60s
	Timeout time.Duration

	// PollInterval is the first wait between task status checks.
	// Default: 1s
	PollInterval time.Duration

	// MaxPollInterval caps the wait between status checks.
	// Default: 120s
	MaxPollInterval time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// RequestID, when set, is sent as X-Request-ID.
	RequestID string

	// HTTPClient replaces the client built from the options.
	HTTPClient *http.Client

	// Logger receives debug output. May be nil.
	Logger *logger.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:         60 * time.Second,
		PollInterval:    time.Second,
		MaxPollInterval: 120 * time.Second,
		UserAgent:       "cdsfetch/1.0",
	}
}

// taskReply is the JSON body returned by /resources and /tasks.
type taskReply struct {
	State         string      `json:"state"`
	RequestID     string      `json:"request_id"`
	Location      string      `json:"location"`
	ContentLength int64       `json:"content_length"`
	ContentType   string      `json:"content_type"`
	Error         *replyError `json:"error"`
}

type replyError struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// Client talks to the CDS API. Each Client owns its own transport, so a
// new Client is a new connection handle.
type Client struct {
	api      *http.Client
	download *http.Client
	creds    Credentials
	opts     Options
	log      *logger.Logger
}

// NewClient creates a client for the given account.
func NewClient(creds Credentials, opts Options) *Client {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.MaxPollInterval <= 0 {
		opts.MaxPollInterval = defaults.MaxPollInterval
	}
	if opts.MaxPollInterval < opts.PollInterval {
		opts.MaxPollInterval = opts.PollInterval
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}

	c := &Client{
		creds: creds,
		opts:  opts,
		log:   opts.Logger,
	}

	if opts.HTTPClient != nil {
		c.api = opts.HTTPClient
		c.download = opts.HTTPClient
		return c
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // archives are already compressed
	}
	c.api = &http.Client{Transport: transport, Timeout: opts.Timeout}
	c.download = &http.Client{Transport: transport}
	return c
}

// Retrieve submits req for dataset, waits for the service to prepare the
// result, and streams it to w. It returns the number of bytes written.
// No step is retried.
func (c *Client) Retrieve(ctx context.Context, dataset string, req Request, w io.Writer) (int64, error) {
	reply, err := c.submit(ctx, dataset, req)
	if err != nil {
		return 0, fmt.Errorf("submit request: %w", err)
	}
	if reply.RequestID != "" {
		defer c.deleteTask(ctx, reply.RequestID)
	}

	reply, err = c.wait(ctx, reply)
	if err != nil {
		return 0, err
	}

	n, err := c.fetchResult(ctx, reply, w)
	if err != nil {
		return n, fmt.Errorf("download result: %w", err)
	}
	return n, nil
}

func (c *Client) submit(ctx context.Context, dataset string, req Request) (*taskReply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.call(ctx, http.MethodPost, c.endpoint("resources", dataset), body)
}

func (c *Client) status(ctx context.Context, requestID string) (*taskReply, error) {
	return c.call(ctx, http.MethodGet, c.endpoint("tasks", requestID), nil)
}

// wait polls the task until it leaves the queued/running states.
func (c *Client) wait(ctx context.Context, reply *taskReply) (*taskReply, error) {
	sleep := c.opts.PollInterval

	for {
		switch reply.State {
		case StateCompleted:
			return reply, nil
		case StateFailed:
			te := &TaskError{RequestID: reply.RequestID, Message: "no message"}
			if reply.Error != nil {
				te.Message = reply.Error.Message
				te.Reason = reply.Error.Reason
			}
			return nil, te
		case StateQueued, StateRunning:
		default:
			return nil, fmt.Errorf("cds: unexpected task state %q", reply.State)
		}

		if reply.RequestID == "" {
			return nil, fmt.Errorf("cds: task in state %q has no request_id", reply.State)
		}

		c.log.Debug("request %s is %s, next check in %s", reply.RequestID, reply.State, sleep)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}

		sleep = sleep * 3 / 2
		if sleep > c.opts.MaxPollInterval {
			sleep = c.opts.MaxPollInterval
		}

		next, err := c.status(ctx, reply.RequestID)
		if err != nil {
			return nil, fmt.Errorf("check request %s: %w", reply.RequestID, err)
		}
		if next.RequestID == "" {
			next.RequestID = reply.RequestID
		}
		reply = next
	}
}

// fetchResult streams the completed task's result file to w.
func (c *Client) fetchResult(ctx context.Context, reply *taskReply, w io.Writer) (int64, error) {
	if reply.Location == "" {
		return 0, errors.New("cds: completed task has no location")
	}

	location, err := c.resolve(reply.Location)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.decorate(req)

	resp, err := c.download.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := checkStatusCode(resp.StatusCode); err != nil {
		return 0, fmt.Errorf("%w: %s", err, readMessage(resp.Body))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, err
	}

	expected := reply.ContentLength
	if expected <= 0 {
		expected = resp.ContentLength
	}
	if expected > 0 && n != expected {
		return n, fmt.Errorf("%w: expected %d bytes, got %d", ErrShortBody, expected, n)
	}
	return n, nil
}

// deleteTask releases the result on the server. Failures are only logged.
func (c *Client) deleteTask(ctx context.Context, requestID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("tasks", requestID), nil)
	if err != nil {
		return
	}
	c.decorate(req)

	resp, err := c.api.Do(req)
	if err != nil {
		c.log.Debug("delete request %s: %v", requestID, err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if err := checkStatusCode(resp.StatusCode); err != nil {
		c.log.Debug("delete request %s: %v", requestID, err)
	}
}

// call performs an API request and decodes the task reply.
func (c *Client) call(ctx context.Context, method, endpoint string, body []byte) (*taskReply, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.decorate(req)

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatusCode(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%w: %s", err, readMessage(resp.Body))
	}

	var reply taskReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &reply, nil
}

func (c *Client) decorate(req *http.Request) {
	user, password := c.creds.basicAuth()
	req.SetBasicAuth(user, password)
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if c.opts.RequestID != "" {
		req.Header.Set("X-Request-ID", c.opts.RequestID)
	}
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.TrimRight(c.creds.URL, "/") + "/" + strings.Join(escaped, "/")
}

// resolve turns a possibly relative result location into an absolute URL.
func (c *Client) resolve(location string) (string, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse location: %w", err)
	}
	if loc.IsAbs() {
		return location, nil
	}
	base, err := url.Parse(strings.TrimRight(c.creds.URL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	return base.ResolveReference(loc).String(), nil
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrServerError, code)
	default:
		return fmt.Errorf("cds: unexpected status code: %d", code)
	}
}

// readMessage extracts a human-readable message from an error body.
func readMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64*1024))

	var e replyError
	if err := json.Unmarshal(data, &e); err == nil && e.Message != "" {
		if e.Reason != "" {
			return e.Message + " (" + e.Reason + ")"
		}
		return e.Message
	}

	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return "no message"
	}
	return msg
}
