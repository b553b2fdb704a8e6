package carriers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipment-tracker/internal/fetch"
)

func newTestAdapter(t *testing.T, provider fetch.Provider, parse func(context.Context, *Call, string) (*Track, error)) *Adapter {
	t.Helper()
	providers := fetch.NewRegistry()
	require.NoError(t, providers.Register(fetch.DefaultHTTP, provider))

	return NewAdapter("Test", Hooks{
		DefaultLanguage: "de",
		TrackingURL: func(c *Call) string {
			return buildURL("https://track.example.com/", map[string][]string{"id": {c.Number}, "lang": {c.Language}}, c.TrackingParams)
		},
		Parse: parse,
	}, &Deps{Providers: providers})
}

func parseNothing(context.Context, *Call, string) (*Track, error) {
	return NewTrack(), nil
}

func TestAdapter_InvalidLanguageSkipsFetch(t *testing.T) {
	provider := &fixtureProvider{fallback: "{}"}
	adapter := newTestAdapter(t, provider, parseNothing)

	for _, lang := range []string{"deu", "d", "1a", "d-"} {
		_, err := adapter.Track(context.Background(), "123", lang, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument, lang)
	}
	assert.Zero(t, provider.calls())
}

func TestAdapter_LanguageIsNormalized(t *testing.T) {
	provider := &fixtureProvider{fallback: "{}"}
	adapter := newTestAdapter(t, provider, parseNothing)

	_, err := adapter.Track(context.Background(), "123", "EN", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://track.example.com/?id=123&lang=en"}, provider.urls)
}

func TestAdapter_InvalidParamsSkipFetch(t *testing.T) {
	provider := &fixtureProvider{fallback: "{}"}
	adapter := newTestAdapter(t, provider, parseNothing)

	_, err := adapter.Track(context.Background(), "123", "", map[string]any{"tracking_url": 42})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, provider.calls())
}

func TestAdapter_SplitParams(t *testing.T) {
	provider := &fixtureProvider{fallback: "{}"}
	adapter := newTestAdapter(t, provider, parseNothing)
	params := map[string]any{
		"tracking_url": map[string]any{"utm": "mail"},
		"endpoint_url": map[string]any{"format": "json"},
	}

	_, err := adapter.Track(context.Background(), "123", "", params)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://track.example.com/?format=json&id=123&lang=de"}, provider.urls)
	assert.Equal(t, "https://track.example.com/?id=123&lang=de&utm=mail", adapter.TrackingURL("123", "", params))
}

func TestAdapter_FetchFailure(t *testing.T) {
	provider := &fixtureProvider{err: errUpstream}
	adapter := newTestAdapter(t, provider, parseNothing)

	_, err := adapter.Track(context.Background(), "123", "", nil)
	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, errUpstream)
}

func TestAdapter_UnknownProvider(t *testing.T) {
	adapter := newTestAdapter(t, &fixtureProvider{}, parseNothing)
	adapter.UseProvider("carrier-pigeon")

	assert.Equal(t, "carrier-pigeon", adapter.Provider())
	_, err := adapter.Track(context.Background(), "123", "", nil)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestAdapter_ParseErrorsAreWrapped(t *testing.T) {
	boom := errors.New("unexpected layout")
	adapter := newTestAdapter(t, &fixtureProvider{fallback: "<html/>"}, func(context.Context, *Call, string) (*Track, error) {
		return nil, boom
	})

	_, err := adapter.Track(context.Background(), "123", "", nil)
	assert.ErrorIs(t, err, ErrParse)
	assert.ErrorIs(t, err, boom)

	var carrierErr *CarrierError
	require.ErrorAs(t, err, &carrierErr)
	assert.Equal(t, "Test", carrierErr.Carrier)
	assert.Equal(t, "123", carrierErr.TrackingNumber)
}

func TestAdapter_TrackSortsEvents(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	adapter := newTestAdapter(t, &fixtureProvider{fallback: "{}"}, func(context.Context, *Call, string) (*Track, error) {
		return NewTrack().
			AddEvent(NewEvent(base, StatusInTransit, "", "first")).
			AddEvent(NewEvent(base.Add(time.Hour), StatusDelivered, "", "second")), nil
	})

	track, err := adapter.Track(context.Background(), "123", "", nil)
	require.NoError(t, err)
	assert.True(t, track.Sorted())
	assert.Equal(t, StatusDelivered, track.CurrentStatus())
}

func TestAdapter_TrackingURLPerformsNoIO(t *testing.T) {
	provider := &fixtureProvider{}
	adapter := newTestAdapter(t, provider, parseNothing)

	assert.Equal(t, "https://track.example.com/?id=123&lang=de", adapter.TrackingURL("123", "", nil))
	assert.Equal(t, "https://track.example.com/?id=123&lang=de", adapter.TrackingURL("123", "deu", nil))
	assert.Zero(t, provider.calls())
}

func TestAdapter_NoStateBetweenCalls(t *testing.T) {
	var languages []string
	adapter := newTestAdapter(t, &fixtureProvider{fallback: "{}"}, func(_ context.Context, c *Call, _ string) (*Track, error) {
		languages = append(languages, c.Language)
		_, err := c.Memo("once", func() (any, error) { return c.Number, nil })
		return NewTrack(), err
	})

	_, err := adapter.Track(context.Background(), "1", "en", nil)
	require.NoError(t, err)
	_, err = adapter.Track(context.Background(), "2", "", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "de"}, languages)
}

func TestCall_Memo(t *testing.T) {
	c := &Call{}
	calls := 0
	fn := func() (any, error) {
		calls++
		return "shop", nil
	}

	v, err := c.Memo("k", fn)
	require.NoError(t, err)
	assert.Equal(t, "shop", v)
	_, _ = c.Memo("k", fn)
	assert.Equal(t, 1, calls)

	_, err = c.Memo("failing", func() (any, error) { return nil, errUpstream })
	assert.ErrorIs(t, err, errUpstream)
	_, err = c.Memo("failing", func() (any, error) { return "ok", nil })
	assert.NoError(t, err, "failures are not memoized")
}

func TestCall_DoRequiresRequester(t *testing.T) {
	c := &Call{Carrier: "Test", Number: "1", provider: getOnly{}}

	_, err := c.Do(context.Background(), &fetch.Request{Method: "POST", URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrFetch)
}

type getOnly struct{}

func (getOnly) Get(context.Context, string, ...fetch.Option) (string, error) { return "", nil }

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"de", "de", false},
		{"EN", "en", false},
		{"Fr", "fr", false},
		{"deu", "", true},
		{"e", "", true},
		{"e1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeLanguage(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
