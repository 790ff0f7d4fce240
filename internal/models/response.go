package models

import (
	"encoding/json"
)

// RawResponse is the provider's wire response decoded into a generic map.
// The core never inspects it beyond JSON round-tripping; adapters own the
// shape.
type RawResponse map[string]any

// JSON serializes the raw response for cache storage.
func (r RawResponse) JSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RawResponseFromJSON decodes a cached output string back into a map.
func RawResponseFromJSON(s string) (RawResponse, error) {
	var r RawResponse
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, err
	}
	return r, nil
}

// RateLimits is a provider's advertised request and token budget per minute.
type RateLimits struct {
	RPM int `json:"rpm"`
	TPM int `json:"tpm"`
}
