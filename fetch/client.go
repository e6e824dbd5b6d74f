// Package fetch provides the transport used by the loaders: plain GETs for
// JSON documents and verified binary downloads for asset payloads.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"
	"oras.land/oras-go/v2/registry/remote/retry"

	"ocm.software/open-component-model/streaming/streamable"
)

const (
	defaultUserAgent = "ocm-streaming"
	defaultMaxBytes  = 64 << 20
)

// Client fetches remote content. Errors are *streamable.FetchError.
type Client interface {
	// Fetch returns the body of url.
	Fetch(ctx context.Context, url string) ([]byte, error)
	// FetchAssetBinary returns the body of url and verifies it against hash
	// when hash is a digest this client understands.
	FetchAssetBinary(ctx context.Context, url, hash string) ([]byte, error)
}

// HTTPClientOptions holds configuration for creating an HTTP client.
type HTTPClientOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	maxBytes   int64
	logger     logr.Logger
}

// HTTPClientOption is a functional option for NewHTTPClient.
type HTTPClientOption func(*HTTPClientOptions)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(o *HTTPClientOptions) {
		o.httpClient = client
	}
}

// WithTimeout sets the overall timeout of a single request.
func WithTimeout(timeout time.Duration) HTTPClientOption {
	return func(o *HTTPClientOptions) {
		o.timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header for HTTP requests.
func WithUserAgent(userAgent string) HTTPClientOption {
	return func(o *HTTPClientOptions) {
		o.userAgent = userAgent
	}
}

// WithMaxBytes bounds the size of a response body.
func WithMaxBytes(n int64) HTTPClientOption {
	return func(o *HTTPClientOptions) {
		o.maxBytes = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger logr.Logger) HTTPClientOption {
	return func(o *HTTPClientOptions) {
		o.logger = logger
	}
}

// userAgentTransport wraps an http.RoundTripper and injects a User-Agent header.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// HTTPClient is a Client over HTTP. Concurrent requests for the same URL share one round trip.
type HTTPClient struct {
	HTTPClientOptions
	sf *singleflight.Group
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client with the given options applied.
// Transient server errors are retried by the transport.
func NewHTTPClient(opts ...HTTPClientOption) *HTTPClient {
	options := HTTPClientOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if options.logger.GetSink() == nil {
		options.logger = logr.Discard()
	}
	if options.userAgent == "" {
		options.userAgent = defaultUserAgent
	}
	if options.maxBytes <= 0 {
		options.maxBytes = defaultMaxBytes
	}
	if options.httpClient == nil {
		options.httpClient = &http.Client{
			Transport: &userAgentTransport{
				base:      retry.NewTransport(http.DefaultTransport),
				userAgent: options.userAgent,
			},
			Timeout: options.timeout,
		}
	}

	return &HTTPClient{
		HTTPClientOptions: options,
		sf:                &singleflight.Group{},
	}
}

func (c *HTTPClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	return c.shared(ctx, url)
}

func (c *HTTPClient) FetchAssetBinary(ctx context.Context, url, hash string) ([]byte, error) {
	data, err := c.shared(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := verify(data, hash); err != nil {
		return nil, &streamable.FetchError{URL: url, Err: err}
	}
	return data, nil
}

// shared deduplicates concurrent requests for the same url. The request keeps
// running when one caller gives up, the caller returns immediately.
func (c *HTTPClient) shared(ctx context.Context, url string) ([]byte, error) {
	ch := c.sf.DoChan(url, func() (any, error) {
		return c.get(context.WithoutCancel(ctx), url)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.V(1).Info("shared request", "url", url)
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, &streamable.FetchError{URL: url, Err: ctx.Err()}
	}
}

func (c *HTTPClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &streamable.FetchError{URL: url, Err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &streamable.FetchError{URL: url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &streamable.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", string(body)),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &streamable.FetchError{URL: url, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(data)) > c.maxBytes {
		return nil, &streamable.FetchError{URL: url, Err: fmt.Errorf("body exceeds %d bytes", c.maxBytes)}
	}

	c.logger.V(1).Info("fetched", "url", url, "bytes", len(data), "duration", time.Since(start).Seconds())
	return data, nil
}

// ErrDigestMismatch is returned when a payload does not match its content hash.
var ErrDigestMismatch = errors.New("digest mismatch")

// verify checks data against hash when hash is an OCI digest. Content
// identifiers in other formats cannot be verified locally and are accepted.
func verify(data []byte, hash string) error {
	if hash == "" {
		return nil
	}
	dig, err := digest.Parse(hash)
	if err != nil {
		return nil
	}
	verifier := dig.Verifier()
	if _, err := verifier.Write(data); err != nil {
		return fmt.Errorf("failed to verify %s: %w", dig, err)
	}
	if !verifier.Verified() {
		return fmt.Errorf("%w: expected %s", ErrDigestMismatch, dig)
	}
	return nil
}
