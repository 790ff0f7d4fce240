package interfaces

import (
	"errors"

	"github.com/nurv/edsl/internal/models"
)

// ErrKeyNotFound is returned when a fingerprint is not present in the store
var ErrKeyNotFound = errors.New("key not found")

// CacheStorage defines operations for the cache backend. Keys are entry
// fingerprints; values are the entries themselves. Implementations must be
// safe for concurrent readers with serialized writers.
type CacheStorage interface {
	// Get retrieves an entry by fingerprint, ErrKeyNotFound when absent
	Get(key string) (*models.CacheEntry, error)

	// Set inserts or replaces the entry under the given fingerprint
	Set(key string, entry *models.CacheEntry) error

	// SetAll bulk-inserts entries keyed by fingerprint
	SetAll(entries map[string]*models.CacheEntry) error

	// GetAll returns every stored entry keyed by fingerprint
	GetAll() (map[string]*models.CacheEntry, error)

	// Keys returns all stored fingerprints
	Keys() ([]string, error)

	// Count returns the number of stored entries
	Count() (int, error)

	// Delete removes an entry, ErrKeyNotFound when absent
	Delete(key string) error

	// Close releases the underlying database
	Close() error
}
