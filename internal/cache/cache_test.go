package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nurv/edsl/internal/models"
	"github.com/nurv/edsl/internal/storage/memory"
	"github.com/ternarybob/arbor"
)

func storeArgs(iteration int) (string, string, string, string, int) {
	return "gpt-4o", `{"temperature":0.5}`, "You are an agent.", "How are you?", iteration
}

func TestFetchMissReturnsNotFound(t *testing.T) {
	c := New(true, arbor.NewLogger())

	model, params, sys, user, iter := storeArgs(0)
	output, ok := c.Fetch(model, params, sys, user, iter)
	if ok {
		t.Error("Expected miss on empty cache")
	}
	if output != "" {
		t.Errorf("Expected empty output on miss, got %q", output)
	}
}

func TestStoreThenFetch(t *testing.T) {
	c := New(true, arbor.NewLogger())

	model, params, sys, user, iter := storeArgs(0)
	response := map[string]any{"answer": "Fine."}
	key, err := c.Store(model, params, sys, user, response, iter)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if key != models.Fingerprint(model, params, sys, user, iter) {
		t.Errorf("Store returned wrong key %s", key)
	}

	output, ok := c.Fetch(model, params, sys, user, iter)
	if !ok {
		t.Fatal("Expected hit after store")
	}
	if output != `{"answer":"Fine."}` {
		t.Errorf("Unexpected cached output %q", output)
	}

	if _, ok := c.NewEntries()[key]; !ok {
		t.Error("Store must record the entry in newEntries")
	}
}

func TestDeferredWriteCommitsOnExit(t *testing.T) {
	c := New(false, arbor.NewLogger())

	model, params, sys, user, iter := storeArgs(0)
	key, err := c.Store(model, params, sys, user, "raw", iter)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if _, ok := c.Fetch(model, params, sys, user, iter); ok {
		t.Error("Deferred entry must not be fetchable before Exit")
	}
	if c.Len() != 0 {
		t.Errorf("Expected empty data before Exit, got %d entries", c.Len())
	}
	if _, ok := c.DeferredEntries()[key]; !ok {
		t.Error("Entry missing from deferredEntries")
	}
	if _, ok := c.NewEntries()[key]; !ok {
		t.Error("Entry missing from newEntries")
	}

	c.Exit(context.Background())

	if _, ok := c.Fetch(model, params, sys, user, iter); !ok {
		t.Error("Entry must be fetchable after Exit")
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 committed entry after Exit, got %d", c.Len())
	}
}

func TestAddFromDictConflict(t *testing.T) {
	c := New(true, arbor.NewLogger())

	model, params, sys, user, iter := storeArgs(0)
	entry := models.NewCacheEntry(model, params, sys, user, `"raw"`, iter)
	if err := c.AddFromDict(map[string]*models.CacheEntry{entry.Key(): entry}, true); err != nil {
		t.Fatalf("Initial add failed: %v", err)
	}

	// Same key, same body: no conflict.
	same := *entry
	if err := c.AddFromDict(map[string]*models.CacheEntry{entry.Key(): &same}, true); err != nil {
		t.Errorf("Identical re-add must succeed, got %v", err)
	}

	// Same key, different body: fatal to the add.
	conflicting := *entry
	conflicting.Output = `"different"`
	err := c.AddFromDict(map[string]*models.CacheEntry{entry.Key(): &conflicting}, true)
	if !errors.Is(err, ErrKeyConflict) {
		t.Errorf("Expected ErrKeyConflict, got %v", err)
	}
}

func TestAddFromDictDeferred(t *testing.T) {
	c := New(true, arbor.NewLogger())

	model, params, sys, user, iter := storeArgs(0)
	entry := models.NewCacheEntry(model, params, sys, user, `"raw"`, iter)
	if err := c.AddFromDict(map[string]*models.CacheEntry{entry.Key(): entry}, false); err != nil {
		t.Fatalf("AddFromDict failed: %v", err)
	}
	if c.Len() != 0 {
		t.Error("writeNow=false must not commit immediately")
	}
	c.Exit(context.Background())
	if c.Len() != 1 {
		t.Error("Exit must commit deferred bulk adds")
	}
}

func TestJSONLRoundTrip(t *testing.T) {
	c := New(true, arbor.NewLogger())
	for i := 0; i < 4; i++ {
		model, params, sys, user, _ := storeArgs(i)
		if _, err := c.Store(model, params, sys, user, map[string]any{"n": i}, i); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "cache.jsonl")
	if err := c.WriteJSONL(path); err != nil {
		t.Fatalf("WriteJSONL failed: %v", err)
	}

	loaded, err := NewFromJSONL(path, arbor.NewLogger())
	if err != nil {
		t.Fatalf("NewFromJSONL failed: %v", err)
	}
	if !c.Equals(loaded) {
		t.Error("Cache must compare equal after JSONL round trip")
	}
	if loaded.Len() != 4 {
		t.Errorf("Expected 4 entries after reload, got %d", loaded.Len())
	}

	model, params, sys, user, iter := storeArgs(2)
	output, ok := loaded.Fetch(model, params, sys, user, iter)
	if !ok {
		t.Fatal("Expected hit in reloaded cache")
	}
	if output != `{"n":2}` {
		t.Errorf("Unexpected output after reload: %q", output)
	}
}

func TestEqualsComparesKeySetsOnly(t *testing.T) {
	a := New(true, arbor.NewLogger())
	b := New(true, arbor.NewLogger())

	model, params, sys, user, iter := storeArgs(0)
	a.Store(model, params, sys, user, "one", iter)
	b.Store(model, params, sys, user, "two", iter)

	if !a.Equals(b) {
		t.Error("Caches with the same key set must compare equal")
	}

	b.Store(model, params, sys, user, "three", iter+1)
	if a.Equals(b) {
		t.Error("Caches with different key sets must not compare equal")
	}
}

func TestAllKeyHash(t *testing.T) {
	a := New(true, arbor.NewLogger())
	b := New(true, arbor.NewLogger())

	for i := 0; i < 3; i++ {
		model, params, sys, user, _ := storeArgs(i)
		a.Store(model, params, sys, user, "a-value", i)
		b.Store(model, params, sys, user, "b-value", i)
	}
	if a.AllKeyHash() != b.AllKeyHash() {
		t.Error("Identical key sets must hash identically regardless of values")
	}

	model, params, sys, user, _ := storeArgs(99)
	b.Store(model, params, sys, user, "extra", 99)
	if a.AllKeyHash() == b.AllKeyHash() {
		t.Error("Different key sets must hash differently")
	}

	if AllKeyHash([]string{"b", "a"}) != AllKeyHash([]string{"a", "b"}) {
		t.Error("Hash must not depend on key order")
	}
}

func TestMerge(t *testing.T) {
	a := New(true, arbor.NewLogger())
	b := New(true, arbor.NewLogger())

	m1, p1, s1, u1, i1 := storeArgs(0)
	a.Store(m1, p1, s1, u1, "a", i1)
	m2, p2, s2, u2, i2 := storeArgs(1)
	b.Store(m2, p2, s2, u2, "b", i2)

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if a.Len() != 2 {
		t.Errorf("Expected 2 entries after merge, got %d", a.Len())
	}
}

// fakeRemote implements interfaces.RemoteCache in memory.
type fakeRemote struct {
	entries   map[string]*models.CacheEntry
	sent      []map[string]*models.CacheEntry
	failAll   bool
	compareOK bool
}

func (f *fakeRemote) GetAll(ctx context.Context) (map[string]*models.CacheEntry, error) {
	if f.failAll {
		return nil, errors.New("remote unavailable")
	}
	out := make(map[string]*models.CacheEntry, len(f.entries))
	for k, v := range f.entries {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRemote) SendBatch(ctx context.Context, entries map[string]*models.CacheEntry) error {
	if f.failAll {
		return errors.New("remote unavailable")
	}
	f.sent = append(f.sent, entries)
	for k, v := range entries {
		f.entries[k] = v
	}
	return nil
}

func (f *fakeRemote) CompareHash(ctx context.Context, hash string) (bool, error) {
	if f.failAll {
		return false, errors.New("remote unavailable")
	}
	return f.compareOK, nil
}

func TestEnterPullsMissingEntries(t *testing.T) {
	model, params, sys, user, iter := storeArgs(0)
	remoteEntry := models.NewCacheEntry(model, params, sys, user, `"remote"`, iter)
	remote := &fakeRemote{entries: map[string]*models.CacheEntry{remoteEntry.Key(): remoteEntry}}

	c := New(true, arbor.NewLogger())
	c.SetRemote(remote)
	c.Enter(context.Background())

	output, ok := c.Fetch(model, params, sys, user, iter)
	if !ok {
		t.Fatal("Enter must download entries missing locally")
	}
	if output != `"remote"` {
		t.Errorf("Unexpected downloaded output %q", output)
	}
}

func TestEnterUploadsLocalOnlyEntries(t *testing.T) {
	remote := &fakeRemote{entries: map[string]*models.CacheEntry{}}

	c := New(true, arbor.NewLogger())
	model, params, sys, user, iter := storeArgs(0)
	key, _ := c.Store(model, params, sys, user, "local", iter)

	c.SetRemote(remote)
	c.Enter(context.Background())

	if _, ok := remote.entries[key]; !ok {
		t.Error("Enter must upload entries the remote is missing")
	}
}

func TestEnterSkipsSyncWhenHashesMatch(t *testing.T) {
	remote := &fakeRemote{entries: map[string]*models.CacheEntry{}, compareOK: true}

	c := New(true, arbor.NewLogger())
	model, params, sys, user, iter := storeArgs(0)
	c.Store(model, params, sys, user, "local", iter)

	c.SetRemote(remote)
	c.Enter(context.Background())

	if len(remote.sent) != 0 {
		t.Error("Matching hashes must skip the sync entirely")
	}
}

func TestExitUploadsNewEntries(t *testing.T) {
	remote := &fakeRemote{entries: map[string]*models.CacheEntry{}}

	c := New(false, arbor.NewLogger())
	c.SetRemote(remote)
	model, params, sys, user, iter := storeArgs(0)
	key, _ := c.Store(model, params, sys, user, "fresh", iter)

	c.Exit(context.Background())

	if _, ok := remote.entries[key]; !ok {
		t.Error("Exit must upload newEntries to the remote")
	}
	if c.Len() != 1 {
		t.Error("Exit must commit deferred entries even with a remote configured")
	}
}

func TestRemoteFailuresAreNonFatal(t *testing.T) {
	remote := &fakeRemote{entries: map[string]*models.CacheEntry{}, failAll: true}

	c := New(false, arbor.NewLogger())
	c.SetRemote(remote)
	model, params, sys, user, iter := storeArgs(0)
	c.Store(model, params, sys, user, "fresh", iter)

	c.Enter(context.Background())
	c.Exit(context.Background())

	if c.Len() != 1 {
		t.Error("Local commit must proceed when the remote is unavailable")
	}
}

func TestNewFromRemote(t *testing.T) {
	model, params, sys, user, iter := storeArgs(0)
	entry := models.NewCacheEntry(model, params, sys, user, `"remote"`, iter)
	remote := &fakeRemote{entries: map[string]*models.CacheEntry{entry.Key(): entry}}

	c, err := NewFromRemote(context.Background(), remote, memory.NewCacheStorage(), arbor.NewLogger())
	if err != nil {
		t.Fatalf("NewFromRemote failed: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", c.Len())
	}

	remote.failAll = true
	if _, err := NewFromRemote(context.Background(), remote, memory.NewCacheStorage(), arbor.NewLogger()); err == nil {
		t.Error("NewFromRemote must fail when the remote is unreachable")
	}
}
