// Package telex is a small Telegram Bot API client that uploads every
// request as a streamed multipart/form-data body.
package telex

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tutuna/telex/internals/multipart"
)

const (
	// DefaultBaseURL is the public Bot API server.
	DefaultBaseURL = "https://api.telegram.org"

	maxResponseBytes = 10 << 20
)

// ErrMissingToken is returned by New when no bot token is given.
var ErrMissingToken = errors.New("telex: bot token is required")

// Doer sends HTTP requests. *http.Client satisfies it; tests swap in fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls Bot API methods for a single bot token.
type Client struct {
	token     string
	baseURL   string
	http      Doer
	chunkSize int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different Bot API server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the transport used for requests.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.http = d
		}
	}
}

// WithChunkSize sets the read buffer used for file uploads.
func WithChunkSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// New creates a client for token.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	c := &Client{
		token:     token,
		baseURL:   DefaultBaseURL,
		http:      &http.Client{Timeout: 60 * time.Second},
		chunkSize: multipart.DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the URL of a Bot API method.
func (c *Client) Endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// FileURL returns the download URL for a file_path obtained from getFile.
func (c *Client) FileURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, filePath)
}

// Response is the raw outcome of a Bot API call. The body is not decoded.
//
// BodyBytes counts the request body bytes the transport pulled from the
// encoder before the call finished. It is not an acknowledgement: a server
// that answers early, e.g. with 413, may have discarded most of them.
type Response struct {
	Method    string
	Status    int
	Body      string
	Boundary  string
	Parts     int
	BodyBytes int64
	Duration  time.Duration
}

// OK reports whether the server answered with a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Result is delivered by SendAsync.
type Result struct {
	Response *Response
	Err      error
}

// Encode builds the multipart body for payload.
func (c *Client) Encode(payload Payload) (*multipart.Encoder, *multipart.Stream, error) {
	return payload.Build(multipart.WithChunkSize(c.chunkSize))
}

// NewRequest builds a POST request for method whose body streams payload.
// The body is closed by the transport once the request is done.
func (c *Client) NewRequest(ctx context.Context, method string, payload Payload) (*http.Request, error) {
	req, _, _, err := c.newRequest(ctx, method, payload)
	return req, err
}

func (c *Client) newRequest(ctx context.Context, method string, payload Payload) (*http.Request, *multipart.Encoder, *multipart.Stream, error) {
	if method == "" {
		return nil, nil, nil, errors.New("telex: method is required")
	}
	enc, stream, err := c.Encode(payload)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "telex: encode %s payload", method)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(method), stream)
	if err != nil {
		stream.Close()
		return nil, nil, nil, errors.Wrapf(err, "telex: create %s request", method)
	}
	req.Header.Set("Content-Type", enc.ContentType())
	return req, enc, stream, nil
}

// Do calls a Bot API method with a multipart body streamed from payload.
// The body is produced while the transport sends it, so file contents are
// never held in memory as a whole. The stream is closed before Do returns,
// which releases any file or download still open when the upload aborts.
//
// Parameters:
//
//	ctx     - bounds the whole call, including reads from URL sources.
//	method  - Bot API method name such as "sendDocument"; must not be empty.
//	payload - ordered fields; see Payload for how values are converted.
//
// Non-2xx statuses are not treated as errors; check Response.OK. An error is
// returned when the payload cannot be encoded (including multipart.ErrEmptyBody),
// when the transport fails, or when a byte source fails mid-upload. In the
// last case the error wraps a *multipart.ResourceOpenError or
// *multipart.ResourceReadError.
func (c *Client) Do(ctx context.Context, method string, payload Payload) (*Response, error) {
	req, enc, stream, err := c.newRequest(ctx, method, payload)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	log.Printf("Sending %s with %d parts", method, enc.Len())
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "telex: %s request failed", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "telex: read %s response", method)
	}

	out := &Response{
		Method:    method,
		Status:    resp.StatusCode,
		Body:      string(body),
		Boundary:  enc.Boundary(),
		Parts:     enc.Len(),
		BodyBytes: stream.Emitted(),
		Duration:  time.Since(start),
	}
	log.Printf("Telegram %s responded %d after %s (%d body bytes produced)", method, out.Status, out.Duration, out.BodyBytes)
	return out, nil
}

// Send calls method and returns the response body.
func (c *Client) Send(ctx context.Context, method string, payload Payload) (string, error) {
	resp, err := c.Do(ctx, method, payload)
	if err != nil {
		return "", err
	}
	return resp.Body, nil
}

// SendAsync runs Do on its own goroutine. The channel receives exactly one
// Result and is then closed.
func (c *Client) SendAsync(ctx context.Context, method string, payload Payload) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		resp, err := c.Do(ctx, method, payload)
		ch <- Result{Response: resp, Err: err}
	}()
	return ch
}
