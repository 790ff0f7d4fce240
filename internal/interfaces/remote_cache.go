package interfaces

import (
	"context"

	"github.com/nurv/edsl/internal/models"
)

// RemoteCache is the client contract for a shared remote response cache.
// Implementations talk to the coop server; the cache layer only sees this
// interface so local operation never depends on network availability.
type RemoteCache interface {
	// GetAll downloads every entry held by the remote cache.
	GetAll(ctx context.Context) (map[string]*models.CacheEntry, error)

	// SendBatch uploads entries to the remote cache.
	SendBatch(ctx context.Context, entries map[string]*models.CacheEntry) error

	// CompareHash reports whether the remote key set hashes to the given value.
	CompareHash(ctx context.Context, hash string) (bool, error)
}
