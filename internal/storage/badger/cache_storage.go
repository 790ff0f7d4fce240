package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/models"
)

// storedEntry wraps a CacheEntry with its fingerprint so imported files
// round-trip under the key they were minted with.
type storedEntry struct {
	Fingerprint string `badgerhold:"key"`
	Entry       models.CacheEntry
}

// CacheStorage implements interfaces.CacheStorage over Badger. Entries are
// stored under their fingerprint so lookups never scan.
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an entry by fingerprint
func (s *CacheStorage) Get(key string) (*models.CacheEntry, error) {
	var stored storedEntry
	err := s.db.Store().Get(key, &stored)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	entry := stored.Entry
	return &entry, nil
}

// Set inserts or replaces an entry under the given fingerprint
func (s *CacheStorage) Set(key string, entry *models.CacheEntry) error {
	if err := s.db.Store().Upsert(key, &storedEntry{Fingerprint: key, Entry: *entry}); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// SetAll bulk-inserts entries keyed by fingerprint
func (s *CacheStorage) SetAll(entries map[string]*models.CacheEntry) error {
	for key, entry := range entries {
		if err := s.db.Store().Upsert(key, &storedEntry{Fingerprint: key, Entry: *entry}); err != nil {
			return fmt.Errorf("failed to set cache entry %s: %w", key, err)
		}
	}
	return nil
}

// GetAll returns every stored entry keyed by fingerprint
func (s *CacheStorage) GetAll() (map[string]*models.CacheEntry, error) {
	var stored []storedEntry
	if err := s.db.Store().Find(&stored, nil); err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}

	result := make(map[string]*models.CacheEntry, len(stored))
	for _, rec := range stored {
		entry := rec.Entry
		result[rec.Fingerprint] = &entry
	}
	return result, nil
}

// Keys returns all stored fingerprints
func (s *CacheStorage) Keys() ([]string, error) {
	var stored []storedEntry
	if err := s.db.Store().Find(&stored, nil); err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}

	keys := make([]string, 0, len(stored))
	for _, rec := range stored {
		keys = append(keys, rec.Fingerprint)
	}
	return keys, nil
}

// Count returns the number of stored entries
func (s *CacheStorage) Count() (int, error) {
	count, err := s.db.Store().Count(&storedEntry{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return int(count), nil
}

// Delete removes an entry by fingerprint
func (s *CacheStorage) Delete(key string) error {
	err := s.db.Store().Delete(key, &storedEntry{})
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *CacheStorage) Close() error {
	return s.db.Close()
}
