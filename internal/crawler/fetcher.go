package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Response is the raw result of a successful fetch.
type Response struct {
	Body        []byte
	FinalURL    string
	ContentType string
	StatusCode  int
}

// Fetcher performs single HTTP GET requests. It does no rate limiting;
// callers go through a Governor first.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	headers     map[string]string
	cookie      string
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodySize limits the body read per response. Zero means unlimited.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *Fetcher) {
		f.maxBodySize = size
	}
}

// WithHeaders adds headers to every request. A User-Agent header here wins
// over WithUserAgent.
func WithHeaders(headers map[string]string) FetcherOption {
	return func(f *Fetcher) {
		f.headers = headers
	}
}

// WithCookie sets a raw Cookie header sent with every request.
func WithCookie(cookie string) FetcherOption {
	return func(f *Fetcher) {
		f.cookie = cookie
	}
}

// WithTimeout sets the per-request timeout on the client.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.client.Timeout = d
	}
}

// NewFetcher creates a Fetcher using client. A nil client gets a fresh
// http.Client. The client is copied, so WithTimeout never mutates the
// caller's value.
func NewFetcher(client *http.Client, opts ...FetcherOption) *Fetcher {
	c := &http.Client{}
	if client != nil {
		copied := *client
		c = &copied
	}
	f := &Fetcher{
		client: c,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves rawURL. Non-2xx responses, network failures, timeouts and
// oversized bodies are returned as *FetchError. If ctx itself is cancelled,
// ctx.Err() is returned unwrapped so callers can tell shutdown from failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchTransient, URL: rawURL, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.classify(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Kind: FetchStatus, URL: rawURL, Status: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if f.maxBodySize > 0 {
		reader = io.LimitReader(resp.Body, f.maxBodySize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, f.classify(ctx, rawURL, err)
	}
	if f.maxBodySize > 0 && int64(len(body)) > f.maxBodySize {
		return nil, &FetchError{
			Kind: FetchTooLarge,
			URL:  rawURL,
			Err:  fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.maxBodySize),
		}
	}

	return &Response{
		Body:        body,
		FinalURL:    finalURL,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}

func (f *Fetcher) classify(ctx context.Context, rawURL string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: FetchTimeout, URL: rawURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: FetchTimeout, URL: rawURL, Err: err}
	}
	return &FetchError{Kind: FetchTransient, URL: rawURL, Err: err}
}
