package fetch

import (
	"context"
	"errors"
	"net"
	"time"
)

// RetryConfig bounds the backoff of a RetryProvider
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig returns three attempts starting at 200ms
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// RetryProvider retries transient failures of the wrapped provider.
// Only GET requests are retried; Do with any other method runs once.
type RetryProvider struct {
	next Provider
	cfg  RetryConfig
}

// NewRetryProvider wraps next
func NewRetryProvider(next Provider, cfg RetryConfig) *RetryProvider {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	return &RetryProvider{next: next, cfg: cfg}
}

func (p *RetryProvider) Get(ctx context.Context, url string, opts ...Option) (string, error) {
	var body string
	err := retry(ctx, p.cfg, func() error {
		var err error
		body, err = p.next.Get(ctx, url, opts...)
		return err
	})
	return body, err
}

// Do forwards to the wrapped provider when it implements Requester
func (p *RetryProvider) Do(ctx context.Context, req *Request, opts ...Option) (*Response, error) {
	r, ok := p.next.(Requester)
	if !ok {
		return nil, errors.New("wrapped provider does not support custom requests")
	}
	if req.Method != "" && req.Method != "GET" {
		return r.Do(ctx, req, opts...)
	}

	var resp *Response
	err := retry(ctx, p.cfg, func() error {
		var err error
		resp, err = r.Do(ctx, req, opts...)
		return err
	})
	return resp, err
}

func retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts || !Retryable(err) {
			return err
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}

// Retryable reports whether err is worth another attempt
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
