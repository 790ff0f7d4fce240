package language_models

import (
	"fmt"

	"github.com/nurv/edsl/internal/models"
)

// dig walks a decoded JSON value through a mixed path of map keys (string)
// and array indices (int).
func dig(value any, path ...any) (any, error) {
	current := value
	for _, step := range path {
		switch key := step.(type) {
		case string:
			m, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected object at %v", step)
			}
			current, ok = m[key]
			if !ok {
				return nil, fmt.Errorf("missing field %q", key)
			}
		case int:
			arr, ok := current.([]any)
			if !ok {
				return nil, fmt.Errorf("expected array at %v", step)
			}
			if key < 0 || key >= len(arr) {
				return nil, fmt.Errorf("index %d out of range (len %d)", key, len(arr))
			}
			current = arr[key]
		default:
			return nil, fmt.Errorf("unsupported path step %T", step)
		}
	}
	return current, nil
}

// digString walks raw and asserts the leaf is a string.
func digString(raw models.RawResponse, path ...any) (string, error) {
	value, err := dig(map[string]any(raw), path...)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string at end of path, got %T", value)
	}
	return s, nil
}
