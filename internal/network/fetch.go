// File: internal/network/fetch.go
package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReasonTimedOut is the Response.Err value for calls that hit their deadline.
const ReasonTimedOut = "timed out"

// Request describes one outbound call.
type Request struct {
	Method  string
	URL     string
	Header  map[string]string
	Body    []byte
	Timeout time.Duration
}

// Response is the outcome of a Fetch. Fetch never returns a Go error: a
// transport failure, abort or timeout is folded into Err (and TimedOut), so a
// caller only ever needs to look at one value.
type Response struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	Attempts int
	TimedOut bool
	Err      string
}

// OK reports a 2xx response.
func (r *Response) OK() bool {
	return r != nil && r.Err == "" && r.Status >= 200 && r.Status < 300
}

// Reason summarizes why a response is unusable, for Absent results.
func (r *Response) Reason() string {
	switch {
	case r == nil:
		return "no response"
	case r.Err != "":
		return r.Err
	case r.Status == http.StatusNotFound:
		return "not found"
	default:
		return fmt.Sprintf("http %d", r.Status)
	}
}

// Fetcher is the transport helper shared by all provider adapters. It is
// safe for concurrent use.
type Fetcher struct {
	client       *http.Client
	logger       *zap.Logger
	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
	maxBody      int64
	userAgent    string
	// sleep is swapped out in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher builds a Fetcher over client using the network config section.
func NewFetcher(client *http.Client, cfg config.NetworkConfig, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = NewClient(ClientConfigFrom(cfg, logger))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 4 << 20
	}
	return &Fetcher{
		client:       client,
		logger:       logger.Named("fetcher"),
		timeout:      orDefault(cfg.Timeout, 15*time.Second),
		maxRetries:   cfg.MaxRetries,
		retryBackoff: orDefault(cfg.RetryBackoff, 750*time.Millisecond),
		maxBody:      maxBody,
		userAgent:    cfg.UserAgent,
		sleep:        sleepCtx,
	}
}

// Client exposes the underlying HTTP client for SDKs that need one.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Timeout is the default per-call timeout.
func (f *Fetcher) Timeout() time.Duration {
	return f.timeout
}

// Get is a convenience wrapper for a GET request.
func (f *Fetcher) Get(ctx context.Context, url string, header map[string]string) *Response {
	return f.Fetch(ctx, Request{Method: http.MethodGet, URL: url, Header: header})
}

// Head is a convenience wrapper for a HEAD request.
func (f *Fetcher) Head(ctx context.Context, url string) *Response {
	return f.Fetch(ctx, Request{Method: http.MethodHead, URL: url})
}

// GetJSON performs a GET and decodes a 2xx body into out. A decode failure
// is reported through Response.Err.
func (f *Fetcher) GetJSON(ctx context.Context, url string, header map[string]string, out interface{}) *Response {
	h := map[string]string{"Accept": "application/json"}
	for k, v := range header {
		h[k] = v
	}
	resp := f.Get(ctx, url, h)
	if !resp.OK() {
		return resp
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		resp.Err = fmt.Sprintf("decode: %v", err)
	}
	return resp
}

// Fetch performs req with a per-call timeout. 429 and 403 responses are
// retried up to maxRetries times with linear backoff (backoff * attempt).
func (f *Fetcher) Fetch(ctx context.Context, req Request) *Response {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var resp *Response
	for attempt := 1; ; attempt++ {
		resp = f.once(ctx, req, timeout)
		resp.Attempts = attempt

		if resp.Err != "" || !retryable(resp.Status) || attempt > f.maxRetries {
			break
		}
		wait := time.Duration(attempt) * f.retryBackoff
		f.logger.Debug("Retrying throttled request",
			zap.String("url", req.URL), zap.Int("status", resp.Status),
			zap.Int("attempt", attempt), zap.Duration("wait", wait))
		if err := f.sleep(ctx, wait); err != nil {
			return &Response{URL: req.URL, Attempts: attempt, TimedOut: true, Err: ReasonTimedOut}
		}
	}
	return resp
}

func (f *Fetcher) once(ctx context.Context, req Request, timeout time.Duration) *Response {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, req.URL, body)
	if err != nil {
		return &Response{URL: req.URL, Err: fmt.Sprintf("build request: %v", err)}
	}
	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return failure(req.URL, err)
	}
	defer httpResp.Body.Close()

	out := &Response{URL: req.URL, Status: httpResp.StatusCode, Header: httpResp.Header}
	if req.Method == http.MethodHead {
		return out
	}
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, f.maxBody))
	if err != nil {
		failed := failure(req.URL, err)
		failed.Status = httpResp.StatusCode
		return failed
	}
	out.Body = data
	return out
}

func failure(url string, err error) *Response {
	if isTimeout(err) {
		return &Response{URL: url, TimedOut: true, Err: ReasonTimedOut}
	}
	return &Response{URL: url, Err: err.Error()}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusForbidden
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
