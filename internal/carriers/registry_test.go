package carriers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipment-tracker/internal/fetch"
)

func TestRegistry_Builtins(t *testing.T) {
	registry := NewRegistry(nil)

	assert.Equal(t, []string{
		"DHL", "DHLExpress", "Dachser", "Fedex", "GLS",
		"PostAT", "PostCH", "PostNord", "UPS", "USPS",
	}, registry.Names())

	for _, name := range registry.Names() {
		tracker, err := registry.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, tracker.Name())
		assert.NotEmpty(t, tracker.TrackingURL("123", "", nil), name)
	}
}

func TestRegistry_NamesAreNormalized(t *testing.T) {
	registry := NewRegistry(nil)

	for _, name := range []string{"dhl", "DHL", "post-ch", "Post CH", "postnord", "DHL_Express"} {
		_, err := registry.Get(name)
		assert.NoError(t, err, name)
	}
}

func TestRegistry_UnknownCarrier(t *testing.T) {
	_, err := NewRegistry(nil).Get("RoyalMail")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCarrier)
	assert.Contains(t, err.Error(), "unsupported carrier: RoyalMail")

	_, err = NewRegistry(nil).GetWithProvider("RoyalMail", &fixtureProvider{})
	assert.ErrorIs(t, err, ErrUnknownCarrier)
}

func TestRegistry_GetReturnsFreshTrackers(t *testing.T) {
	registry := NewRegistry(nil)

	first, err := registry.Get("DHL")
	require.NoError(t, err)
	first.UseProvider(fetch.Headless)

	second, err := registry.Get("DHL")
	require.NoError(t, err)
	assert.Equal(t, fetch.DefaultHTTP, second.Provider())
}

type staticTracker struct {
	provider string
}

func (s *staticTracker) Name() string { return "Static" }
func (s *staticTracker) TrackingURL(number, _ string, _ map[string]any) string {
	return "https://static.example.com/" + number
}
func (s *staticTracker) Track(context.Context, string, string, map[string]any, ...TrackOption) (*Track, error) {
	return NewTrack(), nil
}
func (s *staticTracker) UseProvider(name string) { s.provider = name }
func (s *staticTracker) Provider() string        { return s.provider }

func TestRegistry_Set(t *testing.T) {
	registry := NewEmptyRegistry(nil)
	assert.Empty(t, registry.Names())

	tests := []struct {
		name string
		impl any
	}{
		{"Static", &staticTracker{}},
		{"StaticFunc", func(*Deps) Tracker { return &staticTracker{} }},
		{"StaticFactory", Factory(func(*Deps) Tracker { return &staticTracker{} })},
	}
	for _, tt := range tests {
		require.NoError(t, registry.Set(tt.name, tt.impl), tt.name)

		tracker, err := registry.Get(tt.name)
		require.NoError(t, err)
		assert.Equal(t, "https://static.example.com/1", tracker.TrackingURL("1", "", nil))
	}

	assert.Equal(t, []string{"Static", "StaticFactory", "StaticFunc"}, registry.Names())
}

func TestRegistry_SetReplacesBuiltin(t *testing.T) {
	registry := NewRegistry(nil)
	require.NoError(t, registry.Set("dhl", &staticTracker{}))

	tracker, err := registry.Get("DHL")
	require.NoError(t, err)
	assert.Equal(t, "Static", tracker.Name())
}

func TestRegistry_SetRejectsInvalid(t *testing.T) {
	registry := NewEmptyRegistry(nil)

	err := registry.Set("Broken", "not a tracker")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = registry.Set("Broken", func() Tracker { return nil })
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = registry.Set("--", &staticTracker{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Empty(t, registry.Names())
}

func TestRegistry_GetWithProviderIsIsolated(t *testing.T) {
	registry := NewRegistry(nil)

	tracker, err := registry.GetWithProvider("GLS", &fixtureProvider{})
	require.NoError(t, err)
	assert.Equal(t, fetch.Custom, tracker.Provider())

	_, err = registry.Providers().Get(fetch.Custom)
	assert.Error(t, err, "the shared provider registry must not see the custom provider")

	_, err = registry.GetWithProvider("GLS", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegistry_SetAdapterIsCopiedPerGet(t *testing.T) {
	primary := &fixtureProvider{fallback: "<html></html>"}
	alternate := &fixtureProvider{fallback: "<html></html>"}
	providers := fetch.NewRegistry()
	require.NoError(t, providers.Register(fetch.DefaultHTTP, primary))
	require.NoError(t, providers.Register(fetch.AltHTTP, alternate))

	registry := NewEmptyRegistry(providers)
	require.NoError(t, registry.Set("mydhl", NewDHL(nil)))

	tracker, err := registry.Get("mydhl")
	require.NoError(t, err)
	_, _ = tracker.Track(context.Background(), "123", "", nil, WithProvider(fetch.AltHTTP))
	assert.Len(t, alternate.urls, 1)
	assert.Empty(t, primary.urls)
	assert.Equal(t, fetch.DefaultHTTP, tracker.Provider(), "a per call provider leaves the tracker alone")

	tracker.UseProvider(fetch.AltHTTP)
	fresh, err := registry.Get("mydhl")
	require.NoError(t, err)
	assert.Equal(t, fetch.DefaultHTTP, fresh.Provider())

	custom, err := registry.GetWithProvider("mydhl", &fixtureProvider{})
	require.NoError(t, err)
	assert.Equal(t, fetch.Custom, custom.Provider())

	fresh, err = registry.Get("mydhl")
	require.NoError(t, err)
	assert.Equal(t, fetch.DefaultHTTP, fresh.Provider())
}

func TestRegistry_GetWithProviderRejectsSharedValue(t *testing.T) {
	registry := NewEmptyRegistry(nil)
	shared := &staticTracker{provider: fetch.DefaultHTTP}
	require.NoError(t, registry.Set("Static", shared))

	_, err := registry.GetWithProvider("Static", &fixtureProvider{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, fetch.DefaultHTTP, shared.Provider())
}

func TestDeps_APIKey(t *testing.T) {
	var nilDeps *Deps
	assert.Empty(t, nilDeps.APIKey("postnord"))

	deps := &Deps{APIKeys: map[string]string{"postnord": "k"}}
	assert.Equal(t, "k", deps.APIKey("PostNord"))
	assert.Empty(t, deps.APIKey("dhl"))
}
