// -----------------------------------------------------------------------
// Response cache: fingerprint -> CacheEntry with deferred-write support
// -----------------------------------------------------------------------

package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/models"
	"github.com/nurv/edsl/internal/storage/memory"
	"github.com/ternarybob/arbor"
)

// ErrKeyConflict is returned by bulk adds when an incoming key already
// exists locally with a different entry body.
var ErrKeyConflict = errors.New("cache key exists with a different entry")

// Cache maps fingerprints to CacheEntry records over a pluggable storage
// backend. Alongside the persisted data it tracks two session maps:
// newEntries (everything stored this session, for remote upload) and
// deferredEntries (writes staged until Exit when immediate write is off).
type Cache struct {
	storage         interfaces.CacheStorage
	remote          interfaces.RemoteCache
	newEntries      map[string]*models.CacheEntry
	deferredEntries map[string]*models.CacheEntry
	immediateWrite  bool
	logger          arbor.ILogger
	mu              sync.Mutex
}

// New creates an in-memory cache. With immediateWrite disabled, Store
// stages entries in deferredEntries until Exit commits them.
func New(immediateWrite bool, logger arbor.ILogger) *Cache {
	return NewWithStorage(memory.NewCacheStorage(), immediateWrite, logger)
}

// NewWithStorage creates a cache over the given backend, typically the
// badger store at the configured database path.
func NewWithStorage(storage interfaces.CacheStorage, immediateWrite bool, logger arbor.ILogger) *Cache {
	return &Cache{
		storage:         storage,
		newEntries:      make(map[string]*models.CacheEntry),
		deferredEntries: make(map[string]*models.CacheEntry),
		immediateWrite:  immediateWrite,
		logger:          logger,
	}
}

// NewFromRemote downloads the full remote cache into storage and returns a
// cache over it. Unlike session syncs, a failure here is returned to the
// caller since the cache would otherwise start empty by accident.
func NewFromRemote(ctx context.Context, remote interfaces.RemoteCache, storage interfaces.CacheStorage, logger arbor.ILogger) (*Cache, error) {
	entries, err := remote.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to download remote cache: %w", err)
	}
	if err := storage.SetAll(entries); err != nil {
		return nil, fmt.Errorf("failed to persist remote cache entries: %w", err)
	}

	c := NewWithStorage(storage, true, logger)
	c.remote = remote
	logger.Info().Int("entries", len(entries)).Msg("Cache initialized from remote")
	return c, nil
}

// SetRemote enables remote backups for this cache. Enter and Exit become
// no-ops with respect to the network when no remote is set.
func (c *Cache) SetRemote(remote interfaces.RemoteCache) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = remote
}

// Fetch returns the cached output for the given call signature. The second
// return reports whether the entry was found. Fetch never fails: backend
// read errors are logged and reported as a miss.
func (c *Cache) Fetch(model, parameters, systemPrompt, userPrompt string, iteration int) (string, bool) {
	key := models.Fingerprint(model, parameters, systemPrompt, userPrompt, iteration)

	entry, err := c.storage.Get(key)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, treating as miss")
		}
		return "", false
	}
	return entry.Output, true
}

// Store serializes the response to JSON and records it under the call's
// fingerprint. The entry always lands in newEntries; it reaches data
// immediately iff immediate write is enabled, otherwise it is staged in
// deferredEntries until Exit. Returns the fingerprint.
func (c *Cache) Store(model, parameters, systemPrompt, userPrompt string, response any, iteration int) (string, error) {
	raw, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to serialize response: %w", err)
	}

	entry := models.NewCacheEntry(model, parameters, systemPrompt, userPrompt, string(raw), iteration)
	key := entry.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.newEntries[key] = entry
	if !c.immediateWrite {
		c.deferredEntries[key] = entry
		return key, nil
	}
	if err := c.storage.Set(key, entry); err != nil {
		return key, fmt.Errorf("failed to persist cache entry %s: %w", key, err)
	}
	return key, nil
}

// AddFromDict bulk-adds entries. Every incoming key is validated before
// anything is written, so a conflict leaves the cache untouched.
func (c *Cache) AddFromDict(entries map[string]*models.CacheEntry, writeNow bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range entries {
		if entry == nil {
			return fmt.Errorf("invalid cache entry for key %s", key)
		}
		existing, err := c.storage.Get(key)
		if err != nil {
			if errors.Is(err, interfaces.ErrKeyNotFound) {
				continue
			}
			return fmt.Errorf("failed to check cache key %s: %w", key, err)
		}
		if !existing.Equals(entry) {
			return fmt.Errorf("%w: %s", ErrKeyConflict, key)
		}
	}

	for key, entry := range entries {
		c.newEntries[key] = entry
	}
	if writeNow {
		if err := c.storage.SetAll(entries); err != nil {
			return fmt.Errorf("failed to persist cache entries: %w", err)
		}
		return nil
	}
	for key, entry := range entries {
		c.deferredEntries[key] = entry
	}
	return nil
}

// AddFromStorage bulk-adds every entry held by another backend, with the
// same conflict semantics as AddFromDict.
func (c *Cache) AddFromStorage(source interfaces.CacheStorage, writeNow bool) error {
	entries, err := source.GetAll()
	if err != nil {
		return fmt.Errorf("failed to read source storage: %w", err)
	}
	return c.AddFromDict(entries, writeNow)
}

// CopyTo exports every committed entry into the target backend.
func (c *Cache) CopyTo(target interfaces.CacheStorage) error {
	entries, err := c.storage.GetAll()
	if err != nil {
		return fmt.Errorf("failed to read cache entries: %w", err)
	}
	if err := target.SetAll(entries); err != nil {
		return fmt.Errorf("failed to write cache entries: %w", err)
	}
	return nil
}

// Enter begins a cache session. When a remote is configured the local and
// remote caches are reconciled: entries missing locally are downloaded,
// entries missing remotely are uploaded. Remote failures are logged and
// never block local operation.
func (c *Cache) Enter(ctx context.Context) {
	if c.remoteClient() == nil {
		return
	}
	c.syncWithRemote(ctx)
}

// Exit ends a cache session: deferred entries are committed to data and,
// when a remote is configured, newEntries are uploaded. Callers should
// arrange Exit via defer so it runs on all paths.
func (c *Cache) Exit(ctx context.Context) {
	c.mu.Lock()
	if len(c.deferredEntries) > 0 {
		if err := c.storage.SetAll(c.deferredEntries); err != nil {
			c.logger.Error().Err(err).Msg("Failed to commit deferred cache entries")
		} else {
			c.logger.Debug().Int("entries", len(c.deferredEntries)).Msg("Committed deferred cache entries")
		}
	}
	upload := make(map[string]*models.CacheEntry, len(c.newEntries))
	for key, entry := range c.newEntries {
		upload[key] = entry
	}
	remote := c.remote
	c.mu.Unlock()

	if remote == nil || len(upload) == 0 {
		return
	}
	if err := remote.SendBatch(ctx, upload); err != nil {
		c.logger.Warn().Err(err).Int("entries", len(upload)).Msg("Failed to upload new cache entries to remote")
		return
	}
	c.logger.Info().Int("entries", len(upload)).Msg("Uploaded new cache entries to remote")
}

func (c *Cache) remoteClient() interfaces.RemoteCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *Cache) syncWithRemote(ctx context.Context) {
	remote := c.remoteClient()

	match, err := remote.CompareHash(ctx, c.AllKeyHash())
	if err != nil {
		c.logger.Warn().Err(err).Msg("Remote cache hash compare failed")
		return
	}
	if match {
		c.logger.Debug().Msg("Remote and local caches already match")
		return
	}

	remoteEntries, err := remote.GetAll(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Remote cache download failed")
		return
	}

	missing := make(map[string]*models.CacheEntry)
	for key, entry := range remoteEntries {
		if _, err := c.storage.Get(key); errors.Is(err, interfaces.ErrKeyNotFound) {
			missing[key] = entry
		}
	}
	if len(missing) > 0 {
		if err := c.storage.SetAll(missing); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to store downloaded cache entries")
			return
		}
		c.logger.Info().Int("entries", len(missing)).Msg("Downloaded missing cache entries from remote")
	}

	local, err := c.storage.GetAll()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read local cache for remote upload")
		return
	}
	toSend := make(map[string]*models.CacheEntry)
	for key, entry := range local {
		if _, ok := remoteEntries[key]; !ok {
			toSend[key] = entry
		}
	}
	if len(toSend) == 0 {
		return
	}
	if err := remote.SendBatch(ctx, toSend); err != nil {
		c.logger.Warn().Err(err).Int("entries", len(toSend)).Msg("Failed to upload local cache entries to remote")
		return
	}
	c.logger.Info().Int("entries", len(toSend)).Msg("Uploaded local-only cache entries to remote")
}

// Keys returns the fingerprints of all committed entries.
func (c *Cache) Keys() []string {
	keys, err := c.storage.Keys()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to list cache keys")
		return nil
	}
	return keys
}

// Values returns all committed entries.
func (c *Cache) Values() []*models.CacheEntry {
	entries, err := c.storage.GetAll()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read cache entries")
		return nil
	}
	values := make([]*models.CacheEntry, 0, len(entries))
	for _, entry := range entries {
		values = append(values, entry)
	}
	return values
}

// Len returns the number of committed entries.
func (c *Cache) Len() int {
	count, err := c.storage.Count()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to count cache entries")
		return 0
	}
	return count
}

// NewEntries returns the entries recorded during this session.
func (c *Cache) NewEntries() map[string]*models.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]*models.CacheEntry, len(c.newEntries))
	for key, entry := range c.newEntries {
		out[key] = entry
	}
	return out
}

// DeferredEntries returns the entries staged for commit at session exit.
func (c *Cache) DeferredEntries() map[string]*models.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]*models.CacheEntry, len(c.deferredEntries))
	for key, entry := range c.deferredEntries {
		out[key] = entry
	}
	return out
}

// Equals reports whether two caches hold the same key set. Entry bodies
// are not compared.
func (c *Cache) Equals(other *Cache) bool {
	if other == nil {
		return false
	}
	mine := c.Keys()
	theirs := other.Keys()
	if len(mine) != len(theirs) {
		return false
	}
	set := make(map[string]struct{}, len(mine))
	for _, key := range mine {
		set[key] = struct{}{}
	}
	for _, key := range theirs {
		if _, ok := set[key]; !ok {
			return false
		}
	}
	return true
}

// Merge copies every committed entry from the other cache into this one,
// overwriting on key collisions.
func (c *Cache) Merge(other *Cache) error {
	entries, err := other.storage.GetAll()
	if err != nil {
		return fmt.Errorf("failed to read cache entries: %w", err)
	}
	if err := c.storage.SetAll(entries); err != nil {
		return fmt.Errorf("failed to merge cache entries: %w", err)
	}
	return nil
}

// AllKeyHash returns the md5 hash of this cache's sorted key set.
func (c *Cache) AllKeyHash() string {
	return AllKeyHash(c.Keys())
}

// AllKeyHash hashes a key set: md5 over the sorted keys concatenated with
// no separator. Two caches with the same keys hash identically regardless
// of entry bodies.
func AllKeyHash(keys []string) string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	sum := md5.Sum([]byte(strings.Join(sorted, "")))
	return hex.EncodeToString(sum[:])
}

// ToDict serializes all committed entries keyed by fingerprint.
func (c *Cache) ToDict() map[string]map[string]any {
	entries, err := c.storage.GetAll()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read cache entries")
		return map[string]map[string]any{}
	}
	out := make(map[string]map[string]any, len(entries))
	for key, entry := range entries {
		out[key] = entry.ToDict()
	}
	return out
}

// NewFromDict builds an in-memory cache from serialized entries.
func NewFromDict(data map[string]map[string]any, logger arbor.ILogger) (*Cache, error) {
	c := New(true, logger)
	entries := make(map[string]*models.CacheEntry, len(data))
	for key, dict := range data {
		entry, err := models.CacheEntryFromDict(dict)
		if err != nil {
			return nil, fmt.Errorf("invalid cache entry %s: %w", key, err)
		}
		entries[key] = entry
	}
	if err := c.AddFromDict(entries, true); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the underlying storage backend.
func (c *Cache) Close() error {
	return c.storage.Close()
}
