package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipment-tracker/internal/cache"
	"shipment-tracker/internal/carriers"
	"shipment-tracker/internal/database"
	"shipment-tracker/internal/fetch"
	"shipment-tracker/internal/metrics"
	"shipment-tracker/internal/tracking"
)

// recordingTracker answers every call with a delivered track and remembers
// the params it saw
type recordingTracker struct {
	mu     sync.Mutex
	name   string
	err    error
	params []map[string]any
	calls  int
}

func (r *recordingTracker) Name() string { return r.name }

func (r *recordingTracker) TrackingURL(number, language string, _ map[string]any) string {
	return "https://track.example.com/" + number + "?lang=" + language
}

func (r *recordingTracker) Track(_ context.Context, number, _ string, params map[string]any, _ ...carriers.TrackOption) (*carriers.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.params = append(r.params, params)
	if r.err != nil {
		return nil, r.err
	}
	date := time.Date(2016, 7, 18, 12, 0, 0, 0, time.UTC)
	return carriers.NewTrack().
		AddEvent(carriers.NewEvent(date, carriers.StatusDelivered, "Hamburg", "delivered "+number)).
		SortEvents(), nil
}

func (r *recordingTracker) UseProvider(string) {}
func (r *recordingTracker) Provider() string  { return "default-http" }

func (r *recordingTracker) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type testServer struct {
	handler  http.Handler
	stub     *recordingTracker
	registry *prometheus.Registry
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	manager := cache.NewManager(db.TrackCache, cache.Options{TTL: time.Minute, Metrics: m}, nil)
	t.Cleanup(manager.Close)

	stub := &recordingTracker{name: "Stub"}
	registry := carriers.NewRegistry(nil)
	require.NoError(t, registry.Set("Stub", carriers.Tracker(stub)))
	require.NoError(t, registry.Set("Broken", carriers.Tracker(&recordingTracker{
		name: "Broken",
		err:  &carriers.CarrierError{Carrier: "Broken", Kind: carriers.ErrFetch, Err: errors.New("connection refused")},
	})))

	service := tracking.NewService(registry, manager, tracking.Options{Metrics: m}, nil)

	return &testServer{
		handler: NewRouter(Options{
			Service:  service,
			DB:       db,
			Metrics:  m,
			Gatherer: reg,
			APIKey:   apiKey,
		}),
		stub:     stub,
		registry: reg,
	}
}

func (s *testServer) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	resp := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Database)
}

type unhealthyDB struct{}

func (unhealthyDB) IsHealthy() error { return errors.New("database is locked") }

func TestHealthCheck_Unhealthy(t *testing.T) {
	h := NewHandler(nil, unhealthyDB{}, nil)

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "database is locked", resp.Message)
}

func TestGetCarriers(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/api/carriers", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[map[string][]string](t, w)
	assert.Contains(t, resp["carriers"], "DHL")
	assert.Contains(t, resp["carriers"], "Stub")
	assert.NotNil(t, resp["providers"])
}

func TestGetTrackingURL(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/api/carriers/stub/url/123?lang=de", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[map[string]string](t, w)
	assert.Equal(t, "https://track.example.com/123?lang=de", resp["tracking_url"])
	assert.Equal(t, 0, s.stub.callCount(), "building the URL must not fetch")

	w = s.do(t, http.MethodGet, "/api/carriers/gls/url/12345", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeBody[map[string]string](t, w)["tracking_url"], "12345")
}

func TestTrackShipment(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/api/carriers/Stub/track/123", "")
	require.Equal(t, http.StatusOK, w.Code)

	result := decodeBody[tracking.Result](t, w)
	assert.Equal(t, "Stub", result.Carrier)
	assert.False(t, result.Cached)
	require.NotNil(t, result.Track)
	assert.True(t, result.Track.Delivered())

	w = s.do(t, http.MethodGet, "/api/carriers/Stub/track/123", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[tracking.Result](t, w).Cached)

	w = s.do(t, http.MethodGet, "/api/carriers/Stub/track/123?refresh=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeBody[tracking.Result](t, w).Cached)
	assert.Equal(t, 2, s.stub.callCount())
}

func TestTrackShipment_Params(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/api/carriers/Stub/track/1?a=1&a=2&b=x", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/carriers/Stub/track/2?lang=en&tracking_url.utm=mail&endpoint_url.format=json", "")
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, s.stub.params, 2)
	assert.Equal(t, map[string]any{"a": []string{"1", "2"}, "b": "x"}, s.stub.params[0])
	assert.Equal(t, map[string]any{
		"tracking_url": map[string]any{"utm": "mail"},
		"endpoint_url": map[string]any{"format": "json"},
	}, s.stub.params[1])
}

func TestTrackShipment_Errors(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		name   string
		target string
		status int
		kind   string
	}{
		{"unknown carrier", "/api/carriers/nope/track/1", http.StatusNotFound, "unknown_carrier"},
		{"fetch failure", "/api/carriers/broken/track/1", http.StatusBadGateway, "fetch_failure"},
		{"invalid refresh", "/api/carriers/stub/track/1?refresh=maybe", http.StatusBadRequest, "invalid_argument"},
		{"empty param name", "/api/carriers/stub/track/1?tracking_url.=x", http.StatusBadRequest, "invalid_argument"},
		{"bare tracking_url", "/api/carriers/stub/track/1?tracking_url=x&tracking_url.a=b", http.StatusBadRequest, "invalid_argument"},
		{"bare endpoint_url", "/api/carriers/stub/track/1?endpoint_url=x", http.StatusBadRequest, "invalid_argument"},
		{"bare group on url route", "/api/carriers/stub/url/1?tracking_url.a=b&tracking_url=x", http.StatusBadRequest, "invalid_argument"},
		{"invalid language", "/api/carriers/gls/track/1?lang=german", http.StatusBadRequest, "invalid_argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, w.Code)

			resp := decodeBody[ErrorResponse](t, w)
			assert.Equal(t, tt.status, resp.Code)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestTrackBatch(t *testing.T) {
	s := newTestServer(t, "")

	body := `{"requests":[
		{"carrier":"Stub","tracking_number":"1"},
		{"carrier":"Nope","tracking_number":"2"},
		{"carrier":"Broken","tracking_number":"3"}
	]}`
	w := s.do(t, http.MethodPost, "/api/track", body)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[BatchResponse](t, w)
	require.Len(t, resp.Results, 3)
	assert.Empty(t, resp.Results[0].Error)
	assert.True(t, resp.Results[0].Track.Delivered())
	assert.Equal(t, "unknown_carrier", resp.Results[1].Kind)
	assert.Equal(t, "fetch_failure", resp.Results[2].Kind)
}

func TestTrackBatch_Validation(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"requests":`, "Invalid JSON"},
		{"no requests", `{"requests":[]}`, "Requests must contain between 1 and 50 items"},
		{"missing carrier", `{"requests":[{"tracking_number":"1"}]}`, "Requests[0].Carrier is required"},
		{"bad language", `{"requests":[{"carrier":"Stub","tracking_number":"1","language":"deu"}]}`, "Requests[0].Language"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/track", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decodeBody[ErrorResponse](t, w).Message, tt.want)
		})
	}
	assert.Equal(t, 0, s.stub.callCount())
}

func TestTrackBatch_TooMany(t *testing.T) {
	s := newTestServer(t, "")

	reqs := make([]string, maxBatchSize+1)
	for i := range reqs {
		reqs[i] = `{"carrier":"Stub","tracking_number":"1"}`
	}
	w := s.do(t, http.MethodPost, "/api/track", `{"requests":[`+strings.Join(reqs, ",")+`]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthenticatedRoutes(t *testing.T) {
	s := newTestServer(t, "secret")
	body := `{"requests":[{"carrier":"Stub","tracking_number":"1"}]}`

	w := s.do(t, http.MethodPost, "/api/track", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/track", body, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/track", body, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, w.Code)

	// Reads stay public
	w = s.do(t, http.MethodGet, "/api/carriers/Stub/track/1", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvalidateShipment(t *testing.T) {
	s := newTestServer(t, "")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/carriers/Stub/track/1", "").Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/carriers/Stub/track/1?lang=de", "").Code)

	w := s.do(t, http.MethodDelete, "/api/carriers/stub/track/1/cache", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decodeBody[map[string]int](t, w)["removed"])

	w = s.do(t, http.MethodGet, "/api/carriers/Stub/track/1", "")
	assert.False(t, decodeBody[tracking.Result](t, w).Cached)

	w = s.do(t, http.MethodGet, "/api/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeBody[cache.CacheStats](t, w)
	assert.Equal(t, 1, stats.DatabaseTotal)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "")

	s.do(t, http.MethodGet, "/api/carriers/Stub/track/1", "")
	s.do(t, http.MethodGet, "/api/carriers/nope/track/1", "")

	w := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `shipment_tracker_tracks_total{carrier="stub",outcome="ok"} 1`)
	assert.Contains(t, body, `shipment_tracker_tracks_total{carrier="nope",outcome="unknown_carrier"} 1`)
	assert.Contains(t, body, `shipment_tracker_http_requests_total{code="404",method="GET",route="/api/carriers/{carrier}/track/{number}"} 1`)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeBody[ErrorResponse](t, w).Kind)

	w = s.do(t, http.MethodPut, "/api/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// pageProvider answers every fetch with body and records the URLs
type pageProvider struct {
	mu   sync.Mutex
	body string
	urls []string
}

func (p *pageProvider) Get(_ context.Context, url string, _ ...fetch.Option) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, url)
	return p.body, nil
}

func TestPostNordAPIKeyIsNotExposed(t *testing.T) {
	const secret = "SECRET-PN-KEY"

	provider := &pageProvider{body: `{"TrackingInformationResponse":{"shipments":[{"items":[{"events":[
		{"eventDescription":"Delivered","eventTime":"2016-07-21T16:30:00","status":"DELIVERED","location":{"city":"Stockholm"}}
	]}]}]}}`}
	providers := fetch.NewRegistry()
	require.NoError(t, providers.Register(fetch.DefaultHTTP, provider))

	registry := carriers.NewRegistry(providers, carriers.WithAPIKey("postnord", secret))
	handler := NewRouter(Options{
		Service: tracking.NewService(registry, nil, tracking.Options{}, nil),
		APIKey:  "admin",
	})
	s := &testServer{handler: handler}

	w := s.do(t, http.MethodGet, "/api/carriers/postnord/url/84971563697SE", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), secret)
	assert.Contains(t, w.Body.String(), "tracking.postnord.com")

	w = s.do(t, http.MethodGet, "/api/carriers/postnord/track/84971563697SE", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), secret)
	assert.True(t, decodeBody[tracking.Result](t, w).Track.Delivered())

	require.Len(t, provider.urls, 1)
	assert.Contains(t, provider.urls[0], "apikey="+secret, "the key still reaches the API")
}
