package cache

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nurv/edsl/internal/models"
	"github.com/ternarybob/arbor"
)

// WriteJSONL exports every committed entry, one JSON object per line in
// the shape {"<fingerprint>": {entry fields}}.
func (c *Cache) WriteJSONL(path string) error {
	entries, err := c.storage.GetAll()
	if err != nil {
		return fmt.Errorf("failed to read cache entries: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for key, entry := range entries {
		line, err := json.Marshal(map[string]map[string]any{key: entry.ToDict()})
		if err != nil {
			return fmt.Errorf("failed to serialize cache entry %s: %w", key, err)
		}
		if _, err := writer.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}

// AddFromJSONL bulk-adds entries from a JSONL export, with the same
// conflict semantics as AddFromDict. Blank lines are skipped.
func (c *Cache) AddFromJSONL(path string, writeNow bool) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	entries := make(map[string]*models.CacheEntry)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record map[string]map[string]any
		if err := json.Unmarshal(line, &record); err != nil {
			return fmt.Errorf("invalid JSONL at %s line %d: %w", path, lineNo, err)
		}
		for key, dict := range record {
			entry, err := models.CacheEntryFromDict(dict)
			if err != nil {
				return fmt.Errorf("invalid cache entry at %s line %d: %w", path, lineNo, err)
			}
			entries[key] = entry
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	return c.AddFromDict(entries, writeNow)
}

// NewFromJSONL builds an in-memory cache from a JSONL export.
func NewFromJSONL(path string, logger arbor.ILogger) (*Cache, error) {
	c := New(true, logger)
	if err := c.AddFromJSONL(path, true); err != nil {
		return nil, err
	}
	return c, nil
}
