package language_models

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/models"
)

// anthropicDefaultMaxTokens applies when neither config nor parameters set
// a ceiling; the messages API requires one.
const anthropicDefaultMaxTokens = 1024

// AnthropicModel adapts the Anthropic messages API to the LanguageModel
// contract.
type AnthropicModel struct {
	client     anthropic.Client
	name       string
	parameters string
	params     map[string]any
	maxTokens  int
	limits     models.RateLimits
	logger     arbor.ILogger
}

func newAnthropicModel(spec Spec, cfg *common.ModelsConfig, logger arbor.ILogger) (interfaces.LanguageModel, error) {
	apiKey, err := common.ResolveAPIKey("anthropic_api_key", cfg.Anthropic.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or models.anthropic.api_key in config): %w", err)
	}

	maxTokens := cfg.Anthropic.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	rpm, tpm := resolveLimits(spec, cfg)
	return &AnthropicModel{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		name:       spec.Model,
		parameters: models.CanonicalParameters(spec.Parameters),
		params:     spec.Parameters,
		maxTokens:  maxTokens,
		limits:     models.RateLimits{RPM: rpm, TPM: tpm},
		logger:     logger,
	}, nil
}

// Call executes one messages request and returns the wire response decoded
// into a map.
func (m *AnthropicModel) Call(ctx context.Context, userPrompt, systemPrompt string) (models.RawResponse, error) {
	maxTokens := m.maxTokens
	if override, ok := intParam(m.params, "max_tokens"); ok {
		maxTokens = override
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.name),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if temp, ok := floatParam(m.params, "temperature"); ok {
		params.Temperature = anthropic.Float(temp)
	}
	if topP, ok := floatParam(m.params, "top_p"); ok {
		params.TopP = anthropic.Float(topP)
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, ClassifyError("anthropic", m.name, err)
	}

	var raw models.RawResponse
	if err := json.Unmarshal([]byte(message.RawJSON()), &raw); err != nil {
		return nil, PermanentError("anthropic", m.name, fmt.Errorf("failed to decode message: %w", err))
	}
	return raw, nil
}

// Parse extracts the generated text from a raw messages response.
func (m *AnthropicModel) Parse(raw models.RawResponse) (string, error) {
	text, err := digString(raw, "content", 0, "text")
	if err != nil {
		return "", fmt.Errorf("unexpected anthropic response shape: %w", err)
	}
	return text, nil
}

// RateLimits returns the configured requests and tokens per minute.
func (m *AnthropicModel) RateLimits() models.RateLimits {
	return m.limits
}

// ModelName returns the provider's model identifier.
func (m *AnthropicModel) ModelName() string {
	return m.name
}

// Parameters returns the canonical sampler-parameter string.
func (m *AnthropicModel) Parameters() string {
	return m.parameters
}
