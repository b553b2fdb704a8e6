package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Well known provider names
const (
	DefaultHTTP = "default-http"
	AltHTTP     = "alt-http"
	Headless    = "headless"
	OAuth2HTTP  = "oauth2-http"
	Custom      = "custom"
)

// Options tune a single fetch
type Options struct {
	Timeout time.Duration
	Header  http.Header
}

// Option mutates Options
type Option func(*Options)

// WithTimeout bounds the fetch duration
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithHeader sets a request header, replacing any provider default
func WithHeader(key, value string) Option {
	return func(o *Options) {
		if o.Header == nil {
			o.Header = make(http.Header)
		}
		o.Header.Set(key, value)
	}
}

// Apply folds opts into a fresh Options value
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Provider retrieves the body behind a URL
type Provider interface {
	Get(ctx context.Context, url string, opts ...Option) (string, error)
}

// Request describes a non-GET fetch
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

// Response is the outcome of Do
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// Requester is implemented by providers that can issue arbitrary requests
type Requester interface {
	Provider
	Do(ctx context.Context, req *Request, opts ...Option) (*Response, error)
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d from %s", e.StatusCode, e.URL)
}

// Temporary reports whether retrying the request may succeed
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Registry maps provider names to implementations
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider
func (r *Registry) Register(name string, p Provider) error {
	if p == nil {
		return fmt.Errorf("provider %q is nil", name)
	}
	name = normalizeName(name)
	if name == "" {
		return fmt.Errorf("provider name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	return nil
}

// Get resolves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("unknown fetch provider: %s", name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a registry holding the same providers
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewRegistry()
	for name, p := range r.providers {
		c.providers[name] = p
	}
	return c
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
