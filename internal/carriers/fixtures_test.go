package carriers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"shipment-tracker/internal/fetch"
)

// fixtureProvider answers fetches from testdata files. Routes are matched by
// URL prefix; unmatched URLs get the fallback body.
type fixtureProvider struct {
	mu       sync.Mutex
	routes   map[string]string
	fallback string
	err      error
	urls     []string
	requests []*fetch.Request
}

func newFixtureProvider(t *testing.T, fixture string) *fixtureProvider {
	t.Helper()
	return &fixtureProvider{fallback: readFixture(t, fixture), routes: map[string]string{}}
}

func (p *fixtureProvider) route(t *testing.T, prefix, fixture string) *fixtureProvider {
	t.Helper()
	p.routes[prefix] = readFixture(t, fixture)
	return p
}

func (p *fixtureProvider) Get(_ context.Context, url string, _ ...fetch.Option) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.urls = append(p.urls, url)
	if p.err != nil {
		return "", p.err
	}
	for prefix, body := range p.routes {
		if strings.HasPrefix(url, prefix) {
			return body, nil
		}
	}
	return p.fallback, nil
}

func (p *fixtureProvider) Do(ctx context.Context, req *fetch.Request, opts ...fetch.Option) (*fetch.Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	body, err := p.Get(ctx, req.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &fetch.Response{StatusCode: 200, Body: body}, nil
}

func (p *fixtureProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.urls)
}

var errUpstream = errors.New("connection refused")

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return string(data)
}

// trackFixture runs a registered carrier against a fixture through the
// custom provider hook
func trackFixture(t *testing.T, carrier, number string, p *fixtureProvider) *Track {
	t.Helper()
	tracker, err := NewRegistry(nil).GetWithProvider(carrier, p)
	if err != nil {
		t.Fatalf("GetWithProvider(%s) failed: %v", carrier, err)
	}
	track, err := tracker.Track(context.Background(), number, "", nil)
	if err != nil {
		t.Fatalf("Track(%s) failed: %v", number, err)
	}
	return track
}
