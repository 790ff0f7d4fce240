package interfaces

import (
	"context"

	"github.com/nurv/edsl/internal/models"
)

// LanguageModel is the narrow contract the interview engine consumes from a
// model driver. Adapters are stateless with respect to the engine: the same
// prompts always produce one call, and the raw response is treated as an
// opaque JSON-serializable value.
type LanguageModel interface {
	// Call executes one completion request. Cancellation and per-call
	// timeouts arrive through ctx. Errors must be classified by the adapter
	// as transient or permanent (language_models.IsTransient / IsPermanent).
	Call(ctx context.Context, userPrompt, systemPrompt string) (models.RawResponse, error)

	// Parse extracts the generated text from a raw response.
	Parse(raw models.RawResponse) (string, error)

	// RateLimits returns the provider's advertised requests/minute and
	// tokens/minute, or the configured fallback when nothing is advertised.
	RateLimits() models.RateLimits

	// ModelName identifies the model for bucket sharing and cache keys.
	ModelName() string

	// Parameters returns the canonical sampler-parameter string hashed into
	// cache fingerprints (see models.CanonicalParameters).
	Parameters() string
}
