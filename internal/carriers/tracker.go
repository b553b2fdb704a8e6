package carriers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"shipment-tracker/internal/fetch"
)

// Deps are the collaborators handed to tracker factories
type Deps struct {
	Providers *fetch.Registry
	Logger    *slog.Logger
	// APIKeys holds carrier credentials keyed by carrier name
	APIKeys map[string]string
}

// APIKey returns the configured key for carrier, or an empty string
func (d *Deps) APIKey(carrier string) string {
	if d == nil {
		return ""
	}
	return d.APIKeys[normalizeName(carrier)]
}

// Hooks are the carrier specific steps of a tracking call
type Hooks struct {
	// DefaultLanguage is used when the caller passes no language
	DefaultLanguage string
	// DefaultProvider names the fetch provider used unless overridden
	DefaultProvider string
	// TrackingURL builds the human facing URL
	TrackingURL func(c *Call) string
	// EndpointURL builds the URL that is fetched. Defaults to TrackingURL.
	EndpointURL func(c *Call) string
	// Fetch retrieves the raw response. Defaults to a GET through the provider.
	Fetch func(ctx context.Context, c *Call, endpoint string) (string, error)
	// Parse turns the raw response into a track
	Parse func(ctx context.Context, c *Call, body string) (*Track, error)
}

// TrackOptions tune a single Track call
type TrackOptions struct {
	// Provider overrides the tracker's provider for this call only
	Provider string
}

// TrackOption mutates TrackOptions
type TrackOption func(*TrackOptions)

// WithProvider fetches through the named provider for one call without
// changing the tracker's default
func WithProvider(name string) TrackOption {
	return func(o *TrackOptions) { o.Provider = name }
}

// ApplyTrackOptions folds opts into a fresh TrackOptions value
func ApplyTrackOptions(opts ...TrackOption) TrackOptions {
	var o TrackOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Call is the state of a single tracking call. A new one is built for every
// Track invocation so nothing leaks between calls.
type Call struct {
	Carrier        string
	Number         string
	Language       string
	TrackingParams url.Values
	EndpointParams url.Values

	provider fetch.Provider
	memo     map[string]any
}

// Get fetches url through the provider selected for this call
func (c *Call) Get(ctx context.Context, rawURL string, opts ...fetch.Option) (string, error) {
	if c.provider == nil {
		return "", fetchError(c, errors.New("no fetch provider"))
	}
	body, err := c.provider.Get(ctx, rawURL, opts...)
	if err != nil {
		return "", fetchError(c, err)
	}
	return body, nil
}

// Do issues a custom request. The provider must implement fetch.Requester.
func (c *Call) Do(ctx context.Context, req *fetch.Request, opts ...fetch.Option) (*fetch.Response, error) {
	r, ok := c.provider.(fetch.Requester)
	if !ok {
		return nil, fetchError(c, fmt.Errorf("provider cannot issue %s requests", req.Method))
	}
	resp, err := r.Do(ctx, req, opts...)
	if err != nil {
		return nil, fetchError(c, err)
	}
	return resp, nil
}

// Memo returns the value cached under key, computing it with fn on first use
func (c *Call) Memo(key string, fn func() (any, error)) (any, error) {
	if v, ok := c.memo[key]; ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return nil, err
	}
	if c.memo == nil {
		c.memo = make(map[string]any)
	}
	c.memo[key] = v
	return v, nil
}

// Adapter runs the fixed tracking sequence over a carrier's hooks
type Adapter struct {
	name      string
	hooks     Hooks
	providers *fetch.Registry
	logger    *slog.Logger

	mu       sync.RWMutex
	provider string
}

// NewAdapter creates an adapter for the carrier described by hooks
func NewAdapter(name string, hooks Hooks, deps *Deps) *Adapter {
	if deps == nil {
		deps = &Deps{}
	}
	providers := deps.Providers
	if providers == nil {
		providers = fetch.NewRegistry()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	provider := hooks.DefaultProvider
	if provider == "" {
		provider = fetch.DefaultHTTP
	}

	return &Adapter{
		name:      name,
		hooks:     hooks,
		providers: providers,
		logger:    logger.With("carrier", name),
		provider:  provider,
	}
}

// withDeps returns a copy of a resolving providers and logging through deps.
// The copy starts from a's current provider and is independent afterwards.
func (a *Adapter) withDeps(deps *Deps) *Adapter {
	c := NewAdapter(a.name, a.hooks, deps)
	c.provider = a.Provider()
	return c
}

func (a *Adapter) Name() string {
	return a.name
}

func (a *Adapter) UseProvider(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.provider = name
}

func (a *Adapter) Provider() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.provider
}

// TrackingURL builds the carrier's tracking page URL. Invalid params or
// languages fall back to the defaults since no error can be reported.
func (a *Adapter) TrackingURL(number, language string, params map[string]any) string {
	c := &Call{Carrier: a.name, Number: number, Language: a.hooks.DefaultLanguage}
	if lang, err := normalizeLanguage(language); err == nil && lang != "" {
		c.Language = lang
	}
	if tracking, _, err := partitionParams(params); err == nil {
		c.TrackingParams = tracking
	} else {
		c.TrackingParams = url.Values{}
	}
	return a.hooks.TrackingURL(c)
}

// Track fetches and parses the shipment history for number
func (a *Adapter) Track(ctx context.Context, number, language string, params map[string]any, opts ...TrackOption) (*Track, error) {
	c := &Call{Carrier: a.name, Number: number, Language: a.hooks.DefaultLanguage}

	tracking, endpoint, err := partitionParams(params)
	if err != nil {
		return nil, a.invalidArgument(c, err)
	}
	c.TrackingParams, c.EndpointParams = tracking, endpoint

	lang, err := normalizeLanguage(language)
	if err != nil {
		return nil, a.invalidArgument(c, err)
	}
	if lang != "" {
		c.Language = lang
	}

	endpointURL := a.endpointURL(c)

	providerName := a.Provider()
	if o := ApplyTrackOptions(opts...); o.Provider != "" {
		providerName = o.Provider
	}
	provider, err := a.providers.Get(providerName)
	if err != nil {
		return nil, fetchError(c, err)
	}
	c.provider = provider

	start := time.Now()
	body, err := a.fetch(ctx, c, endpointURL)
	if err != nil {
		a.logger.Debug("Fetch failed", "tracking_number", number, "provider", providerName, "error", err)
		return nil, err
	}
	a.logger.Debug("Fetched tracking data", "tracking_number", number, "provider", providerName,
		"bytes", len(body), "duration", time.Since(start))

	track, err := a.hooks.Parse(ctx, c, body)
	if err != nil {
		var carrierErr *CarrierError
		if !errors.As(err, &carrierErr) {
			err = &CarrierError{Carrier: a.name, TrackingNumber: number, Kind: ErrParse, Err: err}
		}
		a.logger.Debug("Parse failed", "tracking_number", number, "error", err)
		return nil, err
	}

	track.SortEvents()
	a.logger.Debug("Parsed tracking data", "tracking_number", number,
		"events", len(track.events), "status", track.CurrentStatus())
	return track, nil
}

func (a *Adapter) endpointURL(c *Call) string {
	if a.hooks.EndpointURL != nil {
		return a.hooks.EndpointURL(c)
	}
	return a.hooks.TrackingURL(&Call{
		Carrier:        c.Carrier,
		Number:         c.Number,
		Language:       c.Language,
		TrackingParams: c.EndpointParams,
	})
}

func (a *Adapter) fetch(ctx context.Context, c *Call, endpointURL string) (string, error) {
	if a.hooks.Fetch != nil {
		return a.hooks.Fetch(ctx, c, endpointURL)
	}
	return c.Get(ctx, endpointURL)
}

func (a *Adapter) invalidArgument(c *Call, err error) error {
	return &CarrierError{
		Carrier:        a.name,
		TrackingNumber: c.Number,
		Kind:           ErrInvalidArgument,
		Message:        strings.TrimPrefix(err.Error(), ErrInvalidArgument.Error()+": "),
	}
}

// normalizeLanguage lower-cases a two letter language code. An empty input
// yields an empty result.
func normalizeLanguage(language string) (string, error) {
	if language == "" {
		return "", nil
	}
	if utf8.RuneCountInString(language) != 2 {
		return "", fmt.Errorf("%w: language must be a two letter code, got %q", ErrInvalidArgument, language)
	}
	for _, r := range language {
		if !unicode.IsLetter(r) {
			return "", fmt.Errorf("%w: language must be a two letter code, got %q", ErrInvalidArgument, language)
		}
	}
	return strings.ToLower(language), nil
}
