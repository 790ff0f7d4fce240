package models

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// CacheEntry is an immutable record of one LM call. The five key fields
// (model, parameters, system prompt, user prompt, iteration) identify the
// call; Output holds the raw response serialized to JSON.
type CacheEntry struct {
	Model        string `json:"model"`
	Parameters   string `json:"parameters"`
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	Output       string `json:"output"`
	Iteration    int    `json:"iteration"`
	Timestamp    int64  `json:"timestamp"`
}

// NewCacheEntry builds an entry with the timestamp set to now.
func NewCacheEntry(model, parameters, systemPrompt, userPrompt, output string, iteration int) *CacheEntry {
	return &CacheEntry{
		Model:        model,
		Parameters:   parameters,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Output:       output,
		Iteration:    iteration,
		Timestamp:    time.Now().Unix(),
	}
}

// Fingerprint derives the content-addressed cache key: the md5 of the five
// key fields concatenated with no separator, iteration as a decimal string,
// encoded as lowercase hex.
func Fingerprint(model, parameters, systemPrompt, userPrompt string, iteration int) string {
	sum := md5.Sum([]byte(model + parameters + systemPrompt + userPrompt + strconv.Itoa(iteration)))
	return hex.EncodeToString(sum[:])
}

// Key returns the entry's fingerprint.
func (e CacheEntry) Key() string {
	return Fingerprint(e.Model, e.Parameters, e.SystemPrompt, e.UserPrompt, e.Iteration)
}

// Equals compares the key fields plus output and timestamp.
func (e *CacheEntry) Equals(other *CacheEntry) bool {
	if other == nil {
		return false
	}
	return *e == *other
}

// ToDict serializes the entry to a flat map matching the JSONL field names.
func (e CacheEntry) ToDict() map[string]any {
	return map[string]any{
		"model":         e.Model,
		"parameters":    e.Parameters,
		"system_prompt": e.SystemPrompt,
		"user_prompt":   e.UserPrompt,
		"output":        e.Output,
		"iteration":     e.Iteration,
		"timestamp":     e.Timestamp,
	}
}

// CacheEntryFromDict rebuilds an entry from a decoded JSON map. Numeric
// fields arrive as float64 from encoding/json.
func CacheEntryFromDict(d map[string]any) (*CacheEntry, error) {
	entry := &CacheEntry{}

	str := func(key string) (string, error) {
		v, ok := d[key]
		if !ok {
			return "", fmt.Errorf("cache entry missing field %q", key)
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("cache entry field %q is not a string", key)
		}
		return s, nil
	}
	num := func(key string) (int64, error) {
		v, ok := d[key]
		if !ok {
			return 0, fmt.Errorf("cache entry missing field %q", key)
		}
		switch n := v.(type) {
		case float64:
			return int64(n), nil
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case json.Number:
			return n.Int64()
		default:
			return 0, fmt.Errorf("cache entry field %q is not numeric", key)
		}
	}

	var err error
	if entry.Model, err = str("model"); err != nil {
		return nil, err
	}
	if entry.Parameters, err = str("parameters"); err != nil {
		return nil, err
	}
	if entry.SystemPrompt, err = str("system_prompt"); err != nil {
		return nil, err
	}
	if entry.UserPrompt, err = str("user_prompt"); err != nil {
		return nil, err
	}
	if entry.Output, err = str("output"); err != nil {
		return nil, err
	}

	iteration, err := num("iteration")
	if err != nil {
		return nil, err
	}
	entry.Iteration = int(iteration)

	if entry.Timestamp, err = num("timestamp"); err != nil {
		return nil, err
	}

	return entry, nil
}

// CanonicalParameters renders a sampler-parameter set into the single
// canonical string form used for fingerprinting: compact JSON with keys in
// sorted order. encoding/json already sorts map keys; this wrapper exists so
// every adapter produces parameters the same way.
func CanonicalParameters(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	data, err := json.Marshal(params)
	if err != nil {
		// Fall back to a deterministic textual rendering for unmarshalable
		// values; parameters are caller-supplied scalars in practice.
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ","
			}
			out += fmt.Sprintf("%q:%v", k, params[k])
		}
		return out + "}"
	}
	return string(data)
}
