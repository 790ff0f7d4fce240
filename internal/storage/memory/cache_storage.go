// -----------------------------------------------------------------------
// In-memory cache storage, used when no database path is configured
// -----------------------------------------------------------------------

package memory

import (
	"sync"

	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/models"
)

// CacheStorage keeps entries in a plain map guarded by a RWMutex. Entries
// are append-oriented and never mutated after insertion, so values are
// shared rather than copied.
type CacheStorage struct {
	mu      sync.RWMutex
	entries map[string]*models.CacheEntry
}

// NewCacheStorage creates an empty in-memory storage.
func NewCacheStorage() *CacheStorage {
	return &CacheStorage{
		entries: make(map[string]*models.CacheEntry),
	}
}

func (s *CacheStorage) Get(key string) (*models.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, interfaces.ErrKeyNotFound
	}
	return entry, nil
}

func (s *CacheStorage) Set(key string, entry *models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry
	return nil
}

func (s *CacheStorage) SetAll(entries map[string]*models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range entries {
		s.entries[key] = entry
	}
	return nil
}

func (s *CacheStorage) GetAll() (map[string]*models.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.CacheEntry, len(s.entries))
	for key, entry := range s.entries {
		out[key] = entry
	}
	return out, nil
}

func (s *CacheStorage) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *CacheStorage) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries), nil
}

func (s *CacheStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *CacheStorage) Close() error {
	return nil
}
