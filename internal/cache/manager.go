package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"shipment-tracker/internal/carriers"
	"shipment-tracker/internal/database"
	"shipment-tracker/internal/metrics"
)

// Store is the persistent layer behind the in-memory cache
type Store interface {
	Get(key string) (*database.TrackCacheEntry, error)
	Set(key, carrier, trackingNumber string, track *carriers.Track, ttl time.Duration) (*database.TrackCacheEntry, error)
	Delete(key string) error
	DeleteShipment(carrier, trackingNumber string) (int64, error)
	DeleteExpired() (int64, error)
	LoadAll() (map[string]*database.TrackCacheEntry, int, error)
	GetStats() (int, int, error)
}

// Options configures a Manager
type Options struct {
	Disabled        bool
	TTL             time.Duration
	CleanupInterval time.Duration
	Metrics         *metrics.Metrics
}

// Manager manages both in-memory and persistent caching of tracking results
type Manager struct {
	store    Store
	memory   sync.Map // map[string]*database.TrackCacheEntry
	disabled bool
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// Cleanup goroutine control
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a new cache manager. A nil store disables the cache.
func NewManager(store Store, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	manager := &Manager{
		store:    store,
		disabled: opts.Disabled || store == nil,
		ttl:      opts.TTL,
		logger:   logger,
		metrics:  opts.Metrics,
		ctx:      ctx,
		cancel:   cancel,
	}

	if !manager.disabled {
		if err := manager.loadFromDatabase(); err != nil {
			logger.Warn("Failed to load cache from database", "error", err)
		}
		go manager.cleanupLoop(opts.CleanupInterval)
	}

	return manager
}

// Key builds the cache key of a tracking call. Params are encoded as JSON,
// which sorts map keys, so equal params always produce equal keys.
func Key(carrier, trackingNumber, language, provider string, params map[string]any) string {
	encoded := "{}"
	if len(params) > 0 {
		if data, err := json.Marshal(params); err == nil {
			encoded = string(data)
		} else {
			encoded = fmt.Sprint(params)
		}
	}
	return strings.Join([]string{
		strings.ToLower(carrier),
		trackingNumber,
		strings.ToLower(language),
		strings.ToLower(provider),
		encoded,
	}, "|")
}

// Get retrieves a cached track. A miss returns nil, nil.
func (m *Manager) Get(key string) (*database.TrackCacheEntry, error) {
	if m.disabled {
		return nil, nil
	}

	if value, ok := m.memory.Load(key); ok {
		entry := value.(*database.TrackCacheEntry)
		if !entry.Expired(time.Now()) {
			m.observe("hit")
			return entry, nil
		}
		m.memory.Delete(key)
	}

	entry, err := m.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get from database cache: %w", err)
	}
	if entry == nil {
		m.observe("miss")
		return nil, nil
	}

	m.memory.Store(key, entry)
	m.observe("hit")
	return entry, nil
}

// Set stores a track in both memory and database
func (m *Manager) Set(key, carrier, trackingNumber string, track *carriers.Track) error {
	if m.disabled {
		return nil
	}

	entry, err := m.store.Set(key, carrier, trackingNumber, track, m.ttl)
	if err != nil {
		return fmt.Errorf("failed to store in database cache: %w", err)
	}
	m.memory.Store(key, entry)
	return nil
}

// Delete removes a cached track from both memory and database
func (m *Manager) Delete(key string) error {
	if m.disabled {
		return nil
	}

	m.memory.Delete(key)
	if err := m.store.Delete(key); err != nil {
		return fmt.Errorf("failed to delete from database cache: %w", err)
	}
	return nil
}

// ForceInvalidate removes a cached track to force a fresh fetch.
// Returns the age of the entry that was invalidated, or nil if none existed.
func (m *Manager) ForceInvalidate(key string) (*time.Duration, error) {
	if m.disabled {
		return nil, nil
	}

	var cacheAge *time.Duration
	if value, ok := m.memory.Load(key); ok {
		age := time.Since(value.(*database.TrackCacheEntry).CachedAt)
		cacheAge = &age
	} else {
		entry, err := m.store.Get(key)
		if err != nil {
			return nil, fmt.Errorf("failed to check database cache age: %w", err)
		}
		if entry != nil {
			age := time.Since(entry.CachedAt)
			cacheAge = &age
		}
	}

	if err := m.Delete(key); err != nil {
		return cacheAge, fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return cacheAge, nil
}

// Invalidate drops every cached result of one shipment
func (m *Manager) Invalidate(carrier, trackingNumber string) (int, error) {
	if m.disabled {
		return 0, nil
	}

	m.memory.Range(func(key, value any) bool {
		entry := value.(*database.TrackCacheEntry)
		if strings.EqualFold(entry.Carrier, carrier) && entry.TrackingNumber == trackingNumber {
			m.memory.Delete(key)
		}
		return true
	})

	removed, err := m.store.DeleteShipment(carrier, trackingNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return int(removed), nil
}

// IsEnabled returns true if caching is enabled
func (m *Manager) IsEnabled() bool {
	return !m.disabled
}

// GetTTL returns the cache TTL duration
func (m *Manager) GetTTL() time.Duration {
	return m.ttl
}

// loadFromDatabase warms the memory cache with all non-expired entries
func (m *Manager) loadFromDatabase() error {
	entries, skipped, err := m.store.LoadAll()
	if err != nil {
		return err
	}

	for key, entry := range entries {
		m.memory.Store(key, entry)
	}

	if len(entries) > 0 || skipped > 0 {
		m.logger.Info("Loaded cache entries from database", "loaded", len(entries), "skipped", skipped)
	}
	return nil
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

// cleanup removes expired entries from both memory and database
func (m *Manager) cleanup() {
	now := time.Now()
	memoryCount := 0
	m.memory.Range(func(key, value any) bool {
		if value.(*database.TrackCacheEntry).Expired(now) {
			m.memory.Delete(key)
			memoryCount++
		}
		return true
	})

	removed, err := m.store.DeleteExpired()
	if err != nil {
		m.logger.Warn("Failed to clean up expired database cache entries", "error", err)
	}

	if memoryCount > 0 || removed > 0 {
		m.logger.Debug("Cleaned up expired cache entries", "memory", memoryCount, "database", removed)
	}
}

func (m *Manager) observe(result string) {
	if m.metrics != nil {
		m.metrics.CacheLookupsTotal.WithLabelValues(result).Inc()
	}
}

// GetStats returns cache statistics
func (m *Manager) GetStats() (CacheStats, error) {
	stats := CacheStats{
		Disabled: m.disabled,
		TTL:      m.ttl,
	}
	if m.disabled {
		return stats, nil
	}

	now := time.Now()
	m.memory.Range(func(_, value any) bool {
		stats.MemoryTotal++
		if value.(*database.TrackCacheEntry).Expired(now) {
			stats.MemoryExpired++
		}
		return true
	})

	dbTotal, dbExpired, err := m.store.GetStats()
	if err != nil {
		return stats, fmt.Errorf("failed to get database stats: %w", err)
	}
	stats.DatabaseTotal = dbTotal
	stats.DatabaseExpired = dbExpired

	return stats, nil
}

// Close shuts down the cache manager and cleanup goroutine
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

// CacheStats represents cache statistics
type CacheStats struct {
	Disabled        bool          `json:"disabled"`
	TTL             time.Duration `json:"ttl"`
	MemoryTotal     int           `json:"memory_total"`
	MemoryExpired   int           `json:"memory_expired"`
	DatabaseTotal   int           `json:"database_total"`
	DatabaseExpired int           `json:"database_expired"`
}
