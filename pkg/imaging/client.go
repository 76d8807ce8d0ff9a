// Package imaging is the client of the remote imaging service that stores
// volumes and produces slices, meshes, lesion coordinates and exports.
package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Client
type Options struct {
	// BaseURL is the root of the service, e.g. http://localhost:5000
	BaseURL string

	// RequestTimeout bounds ordinary requests; ExportTimeout bounds exports
	RequestTimeout time.Duration
	ExportTimeout  time.Duration

	// HTTPClient overrides the transport, mainly for tests
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// Client talks to the imaging service over HTTP with bearer authentication
type Client struct {
	baseURL        *url.URL
	http           *http.Client
	creds          *Credentials
	requestTimeout time.Duration
	exportTimeout  time.Duration
	log            zerolog.Logger
}

// New creates a client. creds may be nil for an unauthenticated client.
func New(opts Options, creds *Credentials) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", opts.BaseURL)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.ExportTimeout <= 0 {
		opts.ExportTimeout = 2 * time.Minute
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if creds == nil {
		creds = NewCredentials("")
	}
	return &Client{
		baseURL:        base,
		http:           opts.HTTPClient,
		creds:          creds,
		requestTimeout: opts.RequestTimeout,
		exportTimeout:  opts.ExportTimeout,
		log:            opts.Logger.With().Str("component", "imaging").Logger(),
	}, nil
}

// Credentials returns the token store used by the client
func (c *Client) Credentials() *Credentials {
	return c.creds
}

// request describes one call to the service
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	timeout     time.Duration
}

// response is a fully read reply
type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends the request and reads the whole reply within the request budget.
// Transport failures, timeouts, 401 and non-2xx statuses are turned into the
// package's typed errors.
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.requestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = c.baseURL.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, r.method, u.String(), r.body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if token, ok := c.creds.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	c.log.Debug().Str("method", r.method).Str("path", r.path).Msg("request")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, r, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, r, err)
	}

	c.log.Debug().
		Str("method", r.method).
		Str("path", r.path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("response")

	if resp.StatusCode == http.StatusUnauthorized {
		c.creds.Invalidate()
		msg := errorMessage(body)
		c.log.Warn().Str("path", r.path).Str("reason", msg).Msg("session invalidated")
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrSessionExpired, msg)
		}
		return nil, ErrSessionExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &BackendError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func (c *Client) transportError(ctx context.Context, r request, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		c.log.Warn().Str("path", r.path).Msg("request timed out")
		return fmt.Errorf("%w: %s %s", ErrTimeout, r.method, r.path)
	}
	c.log.Warn().Err(err).Str("path", r.path).Msg("request failed")
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// getJSON issues a GET and decodes the JSON reply into out
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: path, query: query})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// postJSON encodes in as the request body and decodes the reply into out
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        path,
		body:        bytes.NewReader(payload),
		contentType: "application/json",
	})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// decode unmarshals a reply and honours an explicit success:false
func decode(resp *response, out any) error {
	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Success != nil && !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return &BackendError{Status: resp.status, Message: msg}
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// errorMessage extracts the error text of a failure reply, if any
func errorMessage(body []byte) string {
	var env envelope
	if json.Unmarshal(body, &env) != nil {
		return strings.TrimSpace(string(body))
	}
	if env.Error != "" {
		return env.Error
	}
	return env.Message
}

func escape(s string) string {
	return url.PathEscape(s)
}
