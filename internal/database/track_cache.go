package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shipment-tracker/internal/carriers"
)

// TrackCacheEntry is a cached tracking result
type TrackCacheEntry struct {
	Key            string          `json:"key"`
	Carrier        string          `json:"carrier"`
	TrackingNumber string          `json:"tracking_number"`
	Track          *carriers.Track `json:"track"`
	CachedAt       time.Time       `json:"cached_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at now
func (e *TrackCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TrackCacheStore handles database operations for the track cache
type TrackCacheStore struct {
	db *sql.DB
}

// NewTrackCacheStore creates a new track cache store
func NewTrackCacheStore(db *sql.DB) *TrackCacheStore {
	return &TrackCacheStore{db: db}
}

// Get retrieves a cached track. A miss or an expired entry returns nil, nil.
func (s *TrackCacheStore) Get(key string) (*TrackCacheEntry, error) {
	query := `SELECT carrier, tracking_number, response_data, cached_at, expires_at
		FROM track_cache WHERE cache_key = ?`

	entry := &TrackCacheEntry{Key: key}
	var data string
	err := s.db.QueryRow(query, key).Scan(&entry.Carrier, &entry.TrackingNumber, &data, &entry.CachedAt, &entry.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached track: %w", err)
	}

	if entry.Expired(time.Now()) {
		if err := s.Delete(key); err != nil {
			return nil, err
		}
		return nil, nil
	}

	entry.Track = &carriers.Track{}
	if err := json.Unmarshal([]byte(data), entry.Track); err != nil {
		return nil, fmt.Errorf("failed to deserialize cached track: %w", err)
	}
	return entry, nil
}

// Set stores a track under key for ttl, replacing any previous entry
func (s *TrackCacheStore) Set(key, carrier, trackingNumber string, track *carriers.Track, ttl time.Duration) (*TrackCacheEntry, error) {
	data, err := json.Marshal(track)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize track: %w", err)
	}

	now := time.Now().UTC()
	entry := &TrackCacheEntry{
		Key:            key,
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		Track:          track,
		CachedAt:       now,
		ExpiresAt:      now.Add(ttl),
	}

	query := `INSERT OR REPLACE INTO track_cache (cache_key, carrier, tracking_number, response_data, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Exec(query, key, carrier, trackingNumber, string(data), entry.CachedAt, entry.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to cache track: %w", err)
	}
	return entry, nil
}

// Delete removes the entry stored under key
func (s *TrackCacheStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM track_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cached track: %w", err)
	}
	return nil
}

// DeleteShipment removes every entry cached for a carrier and tracking
// number, whatever language, provider or params they were fetched with
func (s *TrackCacheStore) DeleteShipment(carrier, trackingNumber string) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM track_cache WHERE carrier = ? AND tracking_number = ?`, carrier, trackingNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cached tracks: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExpired removes all expired entries and returns how many were removed
func (s *TrackCacheStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM track_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}
	return result.RowsAffected()
}

// LoadAll loads all non-expired entries. Entries that no longer decode are
// skipped and counted in the second return value.
func (s *TrackCacheStore) LoadAll() (map[string]*TrackCacheEntry, int, error) {
	query := `SELECT cache_key, carrier, tracking_number, response_data, cached_at, expires_at
		FROM track_cache WHERE expires_at > ?`

	rows, err := s.db.Query(query, time.Now().UTC())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load cache entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]*TrackCacheEntry)
	skipped := 0
	for rows.Next() {
		entry := &TrackCacheEntry{}
		var data string
		if err := rows.Scan(&entry.Key, &entry.Carrier, &entry.TrackingNumber, &data, &entry.CachedAt, &entry.ExpiresAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan cache entry: %w", err)
		}

		entry.Track = &carriers.Track{}
		if err := json.Unmarshal([]byte(data), entry.Track); err != nil {
			skipped++
			continue
		}
		entries[entry.Key] = entry
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating cache entries: %w", err)
	}
	return entries, skipped, nil
}

// GetStats returns the total and expired entry counts
func (s *TrackCacheStore) GetStats() (int, int, error) {
	var total, expired int

	if err := s.db.QueryRow("SELECT COUNT(*) FROM track_cache").Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("failed to get total cache entries: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM track_cache WHERE expires_at <= ?", time.Now().UTC()).Scan(&expired); err != nil {
		return 0, 0, fmt.Errorf("failed to get expired cache entries: %w", err)
	}
	return total, expired, nil
}
