package carriers

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"shipment-tracker/internal/fetch"
)

// Factory builds a tracker for one call site
type Factory func(deps *Deps) Tracker

// Registry resolves carrier names to trackers
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	names     map[string]string
	// shared marks names registered with a Tracker value returned as is
	shared map[string]bool
	deps      Deps
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithLogger sets the logger handed to trackers
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.deps.Logger = logger }
}

// WithAPIKey sets a credential for carrier
func WithAPIKey(carrier, key string) RegistryOption {
	return func(r *Registry) {
		if r.deps.APIKeys == nil {
			r.deps.APIKeys = make(map[string]string)
		}
		r.deps.APIKeys[normalizeName(carrier)] = key
	}
}

// NewRegistry creates a registry with every built-in carrier registered
func NewRegistry(providers *fetch.Registry, opts ...RegistryOption) *Registry {
	r := NewEmptyRegistry(providers, opts...)
	for _, c := range builtins {
		r.register(c.name, c.factory)
	}
	return r
}

// NewEmptyRegistry creates a registry without any carriers
func NewEmptyRegistry(providers *fetch.Registry, opts ...RegistryOption) *Registry {
	if providers == nil {
		providers = fetch.NewRegistry()
	}
	r := &Registry{
		factories: make(map[string]Factory),
		names:     make(map[string]string),
		shared:    make(map[string]bool),
		deps:      Deps{Providers: providers},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.deps.Logger == nil {
		r.deps.Logger = slog.New(slog.DiscardHandler)
	}
	return r
}

var builtins = []struct {
	name    string
	factory Factory
}{
	{"DHL", func(d *Deps) Tracker { return NewDHL(d) }},
	{"DHLExpress", func(d *Deps) Tracker { return NewDHLExpress(d) }},
	{"UPS", func(d *Deps) Tracker { return NewUPS(d) }},
	{"USPS", func(d *Deps) Tracker { return NewUSPS(d) }},
	{"GLS", func(d *Deps) Tracker { return NewGLS(d) }},
	{"Fedex", func(d *Deps) Tracker { return NewFedex(d) }},
	{"PostAT", func(d *Deps) Tracker { return NewPostAT(d) }},
	{"PostCH", func(d *Deps) Tracker { return NewPostCH(d) }},
	{"PostNord", func(d *Deps) Tracker { return NewPostNord(d) }},
	{"Dachser", func(d *Deps) Tracker { return NewDachser(d) }},
}

// Get returns a fresh tracker for name
func (r *Registry) Get(name string) (Tracker, error) {
	r.mu.RLock()
	factory, ok := r.factories[normalizeName(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, &CarrierError{Carrier: name, Kind: ErrUnknownCarrier, Message: fmt.Sprintf("unsupported carrier: %s", name)}
	}
	deps := r.deps
	return factory(&deps), nil
}

// GetWithProvider returns a tracker that fetches through provider. The
// provider is registered as "custom" on a copy of the provider registry so
// other trackers are unaffected. Tracker values shared through Set are
// rejected.
func (r *Registry) GetWithProvider(name string, provider fetch.Provider) (Tracker, error) {
	if provider == nil {
		return nil, &CarrierError{Carrier: name, Kind: ErrInvalidArgument, Message: "custom provider is nil"}
	}

	r.mu.RLock()
	factory, ok := r.factories[normalizeName(name)]
	shared := r.shared[normalizeName(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, &CarrierError{Carrier: name, Kind: ErrUnknownCarrier, Message: fmt.Sprintf("unsupported carrier: %s", name)}
	}
	if shared {
		return nil, &CarrierError{Carrier: name, Kind: ErrInvalidArgument,
			Message: "a shared tracker cannot take a custom provider, register a Factory instead"}
	}

	deps := r.deps
	deps.Providers = r.deps.Providers.Clone()
	if err := deps.Providers.Register(fetch.Custom, provider); err != nil {
		return nil, &CarrierError{Carrier: name, Kind: ErrInvalidArgument, Err: err}
	}

	t := factory(&deps)
	t.UseProvider(fetch.Custom)
	return t, nil
}

// Set registers impl under name, replacing any existing tracker. impl must be
// a Factory, a func(*Deps) Tracker or a Tracker value. An *Adapter value is
// copied for every Get and resolves providers through the registry; any
// other Tracker value is shared by every Get.
func (r *Registry) Set(name string, impl any) error {
	var (
		factory Factory
		shared  bool
	)
	switch v := impl.(type) {
	case Factory:
		factory = v
	case func(*Deps) Tracker:
		factory = v
	case *Adapter:
		if v != nil {
			factory = func(deps *Deps) Tracker { return v.withDeps(deps) }
		}
	case Tracker:
		factory = func(*Deps) Tracker { return v }
		shared = true
	}
	if factory == nil {
		return &CarrierError{Carrier: name, Kind: ErrInvalidArgument, Message: fmt.Sprintf("%T is not a tracker", impl)}
	}
	if normalizeName(name) == "" {
		return &CarrierError{Carrier: name, Kind: ErrInvalidArgument, Message: "carrier name is empty"}
	}

	r.register(name, factory)
	r.mu.Lock()
	r.shared[normalizeName(name)] = shared
	r.mu.Unlock()
	return nil
}

// Names returns the display names of all registered carriers, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.names))
	for _, display := range r.names {
		names = append(names, display)
	}
	sort.Strings(names)
	return names
}

// Providers returns the fetch provider registry trackers resolve against
func (r *Registry) Providers() *fetch.Registry {
	return r.deps.Providers
}

func (r *Registry) register(name string, factory Factory) {
	key := normalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = factory
	r.names[key] = name
}

// normalizeName makes carrier names case and punctuation insensitive, so
// "PostCH", "post-ch" and "postch" are the same carrier
func normalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, name)
}
