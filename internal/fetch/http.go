package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPProvider fetches pages over plain HTTP
type HTTPProvider struct {
	client         *http.Client
	userAgent      string
	browserHeaders bool
	timeout        time.Duration
}

// HTTPOption configures an HTTPProvider
type HTTPOption func(*HTTPProvider)

// WithClient replaces the underlying http.Client
func WithClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.client = c }
}

// WithUserAgent sets the User-Agent sent with every request
func WithUserAgent(ua string) HTTPOption {
	return func(p *HTTPProvider) { p.userAgent = ua }
}

// WithBrowserHeaders toggles the Accept/Accept-Language headers a browser would send
func WithBrowserHeaders(enabled bool) HTTPOption {
	return func(p *HTTPProvider) { p.browserHeaders = enabled }
}

// WithDefaultTimeout bounds requests that carry no explicit timeout
func WithDefaultTimeout(d time.Duration) HTTPOption {
	return func(p *HTTPProvider) { p.timeout = d }
}

// NewHTTPClient returns a client with a tuned transport
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// NewHTTPProvider creates a provider that mimics a browser by default
func NewHTTPProvider(opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		userAgent:      DefaultUserAgent,
		browserHeaders: true,
		timeout:        30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewHTTPClient(0)
	}
	return p
}

// NewAltHTTPProvider creates a bare provider that sends no browser headers
func NewAltHTTPProvider(opts ...HTTPOption) *HTTPProvider {
	return NewHTTPProvider(append([]HTTPOption{WithBrowserHeaders(false)}, opts...)...)
}

// Get fetches url and returns the body of a 2xx response
func (p *HTTPProvider) Get(ctx context.Context, url string, opts ...Option) (string, error) {
	resp, err := p.Do(ctx, &Request{Method: http.MethodGet, URL: url}, opts...)
	if err != nil {
		return "", err
	}
	return resp.Body, nil
}

// Do issues req. Non-2xx responses yield a *StatusError.
func (p *HTTPProvider) Do(ctx context.Context, req *Request, opts ...Option) (*Response, error) {
	o := Apply(opts...)
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if p.userAgent != "" {
		httpReq.Header.Set("User-Agent", p.userAgent)
	}
	if p.browserHeaders {
		httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		httpReq.Header.Set("Accept-Language", "en-US,en;q=0.5")
		httpReq.Header.Set("Connection", "keep-alive")
		httpReq.Header.Set("Upgrade-Insecure-Requests", "1")
	}
	for key, values := range req.Header {
		httpReq.Header[key] = values
	}
	for key, values := range o.Header {
		httpReq.Header[key] = values
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(data),
	}, nil
}
