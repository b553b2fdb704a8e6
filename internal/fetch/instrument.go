package fetch

import (
	"context"
	"errors"
	"time"

	"shipment-tracker/internal/metrics"
)

// InstrumentedProvider records request counts and latency of the wrapped provider
type InstrumentedProvider struct {
	name    string
	next    Provider
	metrics *metrics.Metrics
}

// Instrument wraps next. A nil m returns next unchanged.
func Instrument(name string, next Provider, m *metrics.Metrics) Provider {
	if m == nil {
		return next
	}
	return &InstrumentedProvider{name: name, next: next, metrics: m}
}

func (p *InstrumentedProvider) Get(ctx context.Context, url string, opts ...Option) (string, error) {
	start := time.Now()
	body, err := p.next.Get(ctx, url, opts...)
	p.observe(start, err)
	return body, err
}

func (p *InstrumentedProvider) Do(ctx context.Context, req *Request, opts ...Option) (*Response, error) {
	r, ok := p.next.(Requester)
	if !ok {
		return nil, errors.New("wrapped provider does not support custom requests")
	}
	start := time.Now()
	resp, err := r.Do(ctx, req, opts...)
	p.observe(start, err)
	return resp, err
}

func (p *InstrumentedProvider) observe(start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			outcome = "http_error"
		}
	}
	p.metrics.FetchRequestsTotal.WithLabelValues(p.name, outcome).Inc()
	p.metrics.FetchDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
}
