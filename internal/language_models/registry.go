// -----------------------------------------------------------------------
// Explicit adapter registry keyed by provider string
// -----------------------------------------------------------------------

package language_models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/interfaces"
)

// Spec describes one model to instantiate: the provider key, the provider's
// model name, sampler parameters, and optional rate-limit overrides.
type Spec struct {
	Provider   string         `toml:"provider" yaml:"provider" validate:"required"`
	Model      string         `toml:"model" yaml:"model" validate:"required"`
	Parameters map[string]any `toml:"parameters" yaml:"parameters"`
	RPM        int            `toml:"rpm" yaml:"rpm" validate:"min=0"`
	TPM        int            `toml:"tpm" yaml:"tpm" validate:"min=0"`
}

// Factory builds an adapter from a spec and the provider configuration.
type Factory func(spec Spec, cfg *common.ModelsConfig, logger arbor.ILogger) (interfaces.LanguageModel, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a provider factory under the given key. Later registrations
// replace earlier ones, which lets tests swap in stubs.
func Register(provider string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[provider] = factory
}

// New instantiates the adapter for a spec via its registered factory.
func New(spec Spec, cfg *common.ModelsConfig, logger arbor.ILogger) (interfaces.LanguageModel, error) {
	registryMu.RLock()
	factory, ok := registry[spec.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model provider %q (registered: %v)", spec.Provider, Providers())
	}
	return factory(spec, cfg, logger)
}

// Providers lists the registered provider keys, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for key := range registry {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	Register("openai", newOpenAIModel)
	Register("deep_infra", newDeepInfraModel)
	Register("anthropic", newAnthropicModel)
	Register("gemini", newGeminiModel)
	Register("test", newTestModelFromSpec)
}

// resolveLimits merges a spec's rate-limit overrides with the global
// fallbacks.
func resolveLimits(spec Spec, cfg *common.ModelsConfig) (int, int) {
	rpm := spec.RPM
	if rpm <= 0 && cfg != nil {
		rpm = cfg.DefaultRPM
	}
	if rpm <= 0 {
		rpm = common.DefaultRPM
	}
	tpm := spec.TPM
	if tpm <= 0 && cfg != nil {
		tpm = cfg.DefaultTPM
	}
	if tpm <= 0 {
		tpm = common.DefaultTPM
	}
	return rpm, tpm
}
