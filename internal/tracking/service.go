// Package tracking runs tracking calls for the CLI and the HTTP API. It puts
// the result cache and metrics in front of the carrier registry.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"shipment-tracker/internal/cache"
	"shipment-tracker/internal/carriers"
	"shipment-tracker/internal/metrics"
)

// Request describes one tracking call
type Request struct {
	Carrier        string         `json:"carrier" validate:"required"`
	TrackingNumber string         `json:"tracking_number" validate:"required"`
	Language       string         `json:"language,omitempty" validate:"omitempty,len=2,alpha"`
	Provider       string         `json:"provider,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
	Refresh        bool           `json:"refresh,omitempty"`
}

// Result is the outcome of one tracking call
type Result struct {
	Carrier        string          `json:"carrier"`
	TrackingNumber string          `json:"tracking_number"`
	TrackingURL    string          `json:"tracking_url,omitempty"`
	Track          *carriers.Track `json:"track,omitempty"`
	Cached         bool            `json:"cached"`
	CachedAt       *time.Time      `json:"cached_at,omitempty"`
	// Error carries Err across the HTTP API
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Err   error  `json:"-"`
}

// Options tune a Service
type Options struct {
	// Concurrency bounds the parallel calls of TrackMany
	Concurrency int
	Metrics     *metrics.Metrics
}

// Service tracks shipments through the carrier registry
type Service struct {
	registry    *carriers.Registry
	cache       *cache.Manager
	metrics     *metrics.Metrics
	logger      *slog.Logger
	concurrency int
}

// NewService creates a service. A nil cache manager disables caching.
func NewService(registry *carriers.Registry, cacheManager *cache.Manager, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cacheManager == nil {
		cacheManager = cache.NewManager(nil, cache.Options{Disabled: true}, logger)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Service{
		registry:    registry,
		cache:       cacheManager,
		metrics:     opts.Metrics,
		logger:      logger,
		concurrency: opts.Concurrency,
	}
}

// Track runs a single tracking call, serving it from the cache unless
// req.Refresh is set
func (s *Service) Track(ctx context.Context, req Request) (*Result, error) {
	tracker, err := s.registry.Get(req.Carrier)
	if err != nil {
		s.record(req.Carrier, nil, err)
		return nil, err
	}
	provider := tracker.Provider()
	var opts []carriers.TrackOption
	if req.Provider != "" {
		provider = req.Provider
		opts = append(opts, carriers.WithProvider(req.Provider))
	}

	result := &Result{
		Carrier:        tracker.Name(),
		TrackingNumber: req.TrackingNumber,
		TrackingURL:    tracker.TrackingURL(req.TrackingNumber, req.Language, req.Params),
	}
	key := cache.Key(tracker.Name(), req.TrackingNumber, req.Language, provider, req.Params)

	if !req.Refresh {
		entry, err := s.cache.Get(key)
		if err != nil {
			s.logger.Warn("Cache lookup failed", "carrier", result.Carrier, "tracking_number", req.TrackingNumber, "error", err)
		} else if entry != nil {
			s.logger.Debug("Serving cached track", "carrier", result.Carrier, "tracking_number", req.TrackingNumber)
			result.Track = entry.Track
			result.Cached = true
			cachedAt := entry.CachedAt
			result.CachedAt = &cachedAt
			return result, nil
		}
	}

	start := time.Now()
	track, err := tracker.Track(ctx, req.TrackingNumber, req.Language, req.Params, opts...)
	s.record(result.Carrier, track, err)
	if err != nil {
		s.logger.Info("Tracking failed", "carrier", result.Carrier, "tracking_number", req.TrackingNumber,
			"provider", provider, "error", err)
		return nil, err
	}
	s.logger.Info("Tracked shipment", "carrier", result.Carrier, "tracking_number", req.TrackingNumber,
		"status", track.CurrentStatus(), "events", len(track.Events()), "duration", time.Since(start))

	if err := s.cache.Set(key, result.Carrier, req.TrackingNumber, track); err != nil {
		s.logger.Warn("Failed to cache track", "carrier", result.Carrier, "tracking_number", req.TrackingNumber, "error", err)
	}

	result.Track = track
	return result, nil
}

// TrackMany runs the requests concurrently. Results are returned in request
// order; a failed call sets Result.Err instead of aborting the batch.
func (s *Service) TrackMany(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.Track(ctx, req)
			if err != nil {
				results[i] = Result{
					Carrier:        req.Carrier,
					TrackingNumber: req.TrackingNumber,
					Error:          err.Error(),
					Kind:           Outcome(err),
					Err:            err,
				}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// TrackingURL returns the public tracking page of a shipment
func (s *Service) TrackingURL(carrier, trackingNumber, language string, params map[string]any) (string, error) {
	tracker, err := s.registry.Get(carrier)
	if err != nil {
		return "", err
	}
	return tracker.TrackingURL(trackingNumber, language, params), nil
}

// Carriers returns the names of all supported carriers
func (s *Service) Carriers() []string {
	return s.registry.Names()
}

// Providers returns the names of the registered fetch providers
func (s *Service) Providers() []string {
	return s.registry.Providers().Names()
}

// Invalidate drops all cached results of a shipment
func (s *Service) Invalidate(carrier, trackingNumber string) (int, error) {
	tracker, err := s.registry.Get(carrier)
	if err != nil {
		return 0, err
	}
	return s.cache.Invalidate(tracker.Name(), trackingNumber)
}

// CacheStats reports the state of the result cache
func (s *Service) CacheStats() (cache.CacheStats, error) {
	return s.cache.GetStats()
}

func (s *Service) record(carrier string, track *carriers.Track, err error) {
	if s.metrics == nil {
		return
	}
	carrier = strings.ToLower(carrier)
	s.metrics.TracksTotal.WithLabelValues(carrier, Outcome(err)).Inc()
	if err == nil && track != nil {
		s.metrics.TrackStatusTotal.WithLabelValues(carrier, string(track.CurrentStatus())).Inc()
	}
}

// Outcome classifies err for metrics and logs
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, carriers.ErrUnknownCarrier):
		return "unknown_carrier"
	case errors.Is(err, carriers.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, carriers.ErrFetch):
		return "fetch_failure"
	case errors.Is(err, carriers.ErrParse):
		return "parse_failure"
	case errors.Is(err, carriers.ErrDecode):
		return "decode_failure"
	default:
		return "error"
	}
}
