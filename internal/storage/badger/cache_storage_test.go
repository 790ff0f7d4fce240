package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/models"
)

func newTestStorage(t *testing.T) interfaces.CacheStorage {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.CacheConfig{Path: t.TempDir() + "/cache.db"})
	require.NoError(t, err, "Failed to open badger")
	storage := NewCacheStorage(db, logger)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func testEntry(iteration int) *models.CacheEntry {
	return models.NewCacheEntry(
		"gpt-4o",
		`{"temperature":0.5}`,
		"You are an agent.",
		"How are you?",
		`{"choices":[{"message":{"content":"Fine."}}]}`,
		iteration,
	)
}

func TestCacheStorageSetGet(t *testing.T) {
	storage := newTestStorage(t)

	entry := testEntry(0)
	require.NoError(t, storage.Set(entry.Key(), entry))

	got, err := storage.Get(entry.Key())
	require.NoError(t, err)
	assert.True(t, got.Equals(entry), "Round-tripped entry differs")
}

func TestCacheStorageGetMissing(t *testing.T) {
	storage := newTestStorage(t)

	_, err := storage.Get("0123456789abcdef0123456789abcdef")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestCacheStorageSetAllGetAll(t *testing.T) {
	storage := newTestStorage(t)

	entries := map[string]*models.CacheEntry{}
	for i := 0; i < 3; i++ {
		e := testEntry(i)
		entries[e.Key()] = e
	}
	require.NoError(t, storage.SetAll(entries))

	all, err := storage.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	for key, want := range entries {
		got, ok := all[key]
		require.True(t, ok, "Missing key %s", key)
		assert.True(t, got.Equals(want), "Entry %s differs after round trip", key)
	}
}

func TestCacheStorageKeysAndCount(t *testing.T) {
	storage := newTestStorage(t)

	count, err := storage.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	e1 := testEntry(0)
	e2 := testEntry(1)
	require.NoError(t, storage.Set(e1.Key(), e1))
	require.NoError(t, storage.Set(e2.Key(), e2))

	keys, err := storage.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	count, err = storage.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCacheStorageOverwrite(t *testing.T) {
	storage := newTestStorage(t)

	entry := testEntry(0)
	require.NoError(t, storage.Set(entry.Key(), entry))

	updated := *entry
	updated.Output = `{"choices":[{"message":{"content":"Better."}}]}`
	require.NoError(t, storage.Set(updated.Key(), &updated))

	got, err := storage.Get(entry.Key())
	require.NoError(t, err)
	assert.Equal(t, updated.Output, got.Output)

	count, err := storage.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "Overwrite should not add a row")
}

func TestCacheStorageDelete(t *testing.T) {
	storage := newTestStorage(t)

	entry := testEntry(0)
	require.NoError(t, storage.Set(entry.Key(), entry))

	require.NoError(t, storage.Delete(entry.Key()))
	_, err := storage.Get(entry.Key())
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}
