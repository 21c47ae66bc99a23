package webcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent is sent when no other User-Agent is configured
const DefaultUserAgent = "callcache/1.0"

// ErrBodyTooLarge is returned for pages longer than the configured limit
var ErrBodyTooLarge = errors.New("response body too large")

// Fetcher retrieves remote content. Implementations return an error for
// network failures and non-2xx responses.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, url string) (string, error)

// Fetch implements Fetcher
func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) { return f(ctx, url) }

// HTTPError captures an unexpected status code and the response body
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

// userAgentRoundTripper adds a User-Agent header to every request
type userAgentRoundTripper struct {
	wrapped   http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.userAgent)
	return rt.wrapped.RoundTrip(clone)
}

// HTTPFetcher fetches pages with a plain GET
type HTTPFetcher struct {
	http      *http.Client
	userAgent string
	timeout   time.Duration
	maxBody   int64
}

// FetcherOption configures an HTTPFetcher
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient replaces the underlying client
func WithHTTPClient(h *http.Client) FetcherOption {
	return func(f *HTTPFetcher) { f.http = h }
}

// WithUserAgent sets the User-Agent header; empty keeps DefaultUserAgent
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) { f.timeout = d }
}

// WithMaxBody limits the page size; longer pages fail with ErrBodyTooLarge
func WithMaxBody(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// NewHTTPFetcher creates a fetcher with a 10s timeout
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		http:      &http.Client{},
		userAgent: DefaultUserAgent,
		timeout:   10 * time.Second,
		maxBody:   10 << 20,
	}
	for _, o := range opts {
		o(f)
	}

	base := f.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client := *f.http
	if f.timeout > 0 {
		client.Timeout = f.timeout
	}
	client.Transport = &userAgentRoundTripper{wrapped: base, userAgent: f.userAgent}
	f.http = &client
	return f
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return "", err
	}
	tooLarge := int64(len(body)) > f.maxBody
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: body[:min(int64(len(body)), f.maxBody)]}
	}
	if tooLarge {
		return "", fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.maxBody)
	}
	return string(body), nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
