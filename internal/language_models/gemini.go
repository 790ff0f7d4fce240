package language_models

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/models"
)

// GeminiModel adapts the Google Gemini API to the LanguageModel contract.
type GeminiModel struct {
	client     *genai.Client
	name       string
	parameters string
	params     map[string]any
	maxTokens  int
	limits     models.RateLimits
	logger     arbor.ILogger
}

func newGeminiModel(spec Spec, cfg *common.ModelsConfig, logger arbor.ILogger) (interfaces.LanguageModel, error) {
	apiKey, err := common.ResolveAPIKey("gemini_api_key", cfg.Gemini.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or models.gemini.api_key in config): %w", err)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	rpm, tpm := resolveLimits(spec, cfg)
	return &GeminiModel{
		client:     client,
		name:       spec.Model,
		parameters: models.CanonicalParameters(spec.Parameters),
		params:     spec.Parameters,
		maxTokens:  cfg.Gemini.MaxTokens,
		limits:     models.RateLimits{RPM: rpm, TPM: tpm},
		logger:     logger,
	}, nil
}

// Call executes one content generation and returns the wire response
// decoded into a map.
func (m *GeminiModel) Call(ctx context.Context, userPrompt, systemPrompt string) (models.RawResponse, error) {
	config := &genai.GenerateContentConfig{}
	if temp, ok := floatParam(m.params, "temperature"); ok {
		config.Temperature = genai.Ptr(float32(temp))
	}
	if topP, ok := floatParam(m.params, "top_p"); ok {
		config.TopP = genai.Ptr(float32(topP))
	}
	maxTokens := m.maxTokens
	if override, ok := intParam(m.params, "max_tokens"); ok {
		maxTokens = override
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(systemPrompt)},
		}
	}

	result, err := m.client.Models.GenerateContent(ctx, m.name, genai.Text(userPrompt), config)
	if err != nil {
		return nil, ClassifyError("gemini", m.name, err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, PermanentError("gemini", m.name, fmt.Errorf("failed to encode response: %w", err))
	}
	var raw models.RawResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, PermanentError("gemini", m.name, fmt.Errorf("failed to decode response: %w", err))
	}
	return raw, nil
}

// Parse extracts the generated text from a raw generate-content response.
func (m *GeminiModel) Parse(raw models.RawResponse) (string, error) {
	text, err := digString(raw, "candidates", 0, "content", "parts", 0, "text")
	if err != nil {
		return "", fmt.Errorf("unexpected gemini response shape: %w", err)
	}
	return text, nil
}

// RateLimits returns the configured requests and tokens per minute.
func (m *GeminiModel) RateLimits() models.RateLimits {
	return m.limits
}

// ModelName returns the provider's model identifier.
func (m *GeminiModel) ModelName() string {
	return m.name
}

// Parameters returns the canonical sampler-parameter string.
func (m *GeminiModel) Parameters() string {
	return m.parameters
}
