package buckets

import (
	"sync"

	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// DefaultBurstFactor scales bucket capacity relative to the per-second
// refill rate. A factor of 1 means at most one second of budget can be
// consumed instantaneously.
const DefaultBurstFactor = 1.0

// ModelBuckets pairs the two buckets metering one model: API requests and
// prompt tokens.
type ModelBuckets struct {
	Requests *TokenBucket
	Tokens   *TokenBucket
}

// BucketCollection holds one ModelBuckets per model name. Buckets are
// created lazily and shared by every interview using that model, so rate
// limits hold across the whole run.
type BucketCollection struct {
	mu          sync.Mutex
	buckets     map[string]*ModelBuckets
	burstFactor float64
	logger      arbor.ILogger
}

// NewBucketCollection creates an empty collection with the default burst
// factor.
func NewBucketCollection(logger arbor.ILogger) *BucketCollection {
	return &BucketCollection{
		buckets:     make(map[string]*ModelBuckets),
		burstFactor: DefaultBurstFactor,
		logger:      logger,
	}
}

// SetBurstFactor adjusts capacity scaling for buckets created afterwards.
func (c *BucketCollection) SetBurstFactor(factor float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if factor > 0 {
		c.burstFactor = factor
	}
}

// AddModel returns the buckets for the model, creating them on first use
// from the model's advertised rate limits. Idempotent: later calls for the
// same model name return the same buckets regardless of the advertised
// limits at that point.
func (c *BucketCollection) AddModel(model interfaces.LanguageModel) *ModelBuckets {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := model.ModelName()
	if existing, ok := c.buckets[name]; ok {
		return existing
	}

	limits := model.RateLimits()
	rpm := float64(limits.RPM)
	if rpm <= 0 {
		rpm = common.DefaultRPM
	}
	tpm := float64(limits.TPM)
	if tpm <= 0 {
		tpm = common.DefaultTPM
	}

	requestsPerSecond := rpm / 60.0
	tokensPerSecond := tpm / 60.0
	mb := &ModelBuckets{
		Requests: NewTokenBucket(requestsPerSecond*c.burstFactor, requestsPerSecond),
		Tokens:   NewTokenBucket(tokensPerSecond*c.burstFactor, tokensPerSecond),
	}
	c.buckets[name] = mb

	c.logger.Debug().
		Str("model", name).
		Float64("rpm", rpm).
		Float64("tpm", tpm).
		Msg("Created rate limit buckets")
	return mb
}

// Get returns the buckets for a model name, if they exist.
func (c *BucketCollection) Get(modelName string) (*ModelBuckets, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mb, ok := c.buckets[modelName]
	return mb, ok
}

// ModelNames lists the models with buckets, for diagnostics.
func (c *BucketCollection) ModelNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.buckets))
	for name := range c.buckets {
		names = append(names, name)
	}
	return names
}
