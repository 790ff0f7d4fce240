package language_models

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/models"
)

// OpenAIModel adapts the OpenAI chat completions API to the LanguageModel
// contract. DeepInfra reuses it with a different base URL since its API is
// OpenAI-compatible.
type OpenAIModel struct {
	provider   string
	client     openai.Client
	name       string
	parameters string
	params     map[string]any
	maxTokens  int
	limits     models.RateLimits
	logger     arbor.ILogger
}

func newOpenAIModel(spec Spec, cfg *common.ModelsConfig, logger arbor.ILogger) (interfaces.LanguageModel, error) {
	apiKey, err := common.ResolveAPIKey("openai_api_key", cfg.OpenAI.APIKey)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY or models.openai.api_key in config): %w", err)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAI.BaseURL))
	}

	rpm, tpm := resolveLimits(spec, cfg)
	return &OpenAIModel{
		provider:   "openai",
		client:     openai.NewClient(opts...),
		name:       spec.Model,
		parameters: models.CanonicalParameters(spec.Parameters),
		params:     spec.Parameters,
		maxTokens:  cfg.OpenAI.MaxTokens,
		limits:     models.RateLimits{RPM: rpm, TPM: tpm},
		logger:     logger,
	}, nil
}

func newDeepInfraModel(spec Spec, cfg *common.ModelsConfig, logger arbor.ILogger) (interfaces.LanguageModel, error) {
	apiKey, err := common.ResolveAPIKey("deep_infra_api_key", cfg.DeepInfra.APIKey)
	if err != nil {
		return nil, fmt.Errorf("DeepInfra API key is required (set DEEP_INFRA_API_KEY or models.deep_infra.api_key in config): %w", err)
	}

	baseURL := cfg.DeepInfra.BaseURL
	if baseURL == "" {
		baseURL = common.DefaultDeepInfraBaseURL
	}

	rpm, tpm := resolveLimits(spec, cfg)
	return &OpenAIModel{
		provider:   "deep_infra",
		client:     openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)),
		name:       spec.Model,
		parameters: models.CanonicalParameters(spec.Parameters),
		params:     spec.Parameters,
		maxTokens:  cfg.DeepInfra.MaxTokens,
		limits:     models.RateLimits{RPM: rpm, TPM: tpm},
		logger:     logger,
	}, nil
}

// Call executes one chat completion and returns the provider's wire
// response decoded into a map.
func (m *OpenAIModel) Call(ctx context.Context, userPrompt, systemPrompt string) (models.RawResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: messages,
	}
	if temp, ok := floatParam(m.params, "temperature"); ok {
		params.Temperature = openai.Float(temp)
	}
	if topP, ok := floatParam(m.params, "top_p"); ok {
		params.TopP = openai.Float(topP)
	}
	maxTokens := m.maxTokens
	if override, ok := intParam(m.params, "max_tokens"); ok {
		maxTokens = override
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, ClassifyError(m.provider, m.name, err)
	}

	var raw models.RawResponse
	if err := json.Unmarshal([]byte(completion.RawJSON()), &raw); err != nil {
		return nil, PermanentError(m.provider, m.name, fmt.Errorf("failed to decode completion: %w", err))
	}
	return raw, nil
}

// Parse extracts the generated text from a raw chat completion.
func (m *OpenAIModel) Parse(raw models.RawResponse) (string, error) {
	text, err := digString(raw, "choices", 0, "message", "content")
	if err != nil {
		return "", fmt.Errorf("unexpected %s response shape: %w", m.provider, err)
	}
	return text, nil
}

// RateLimits returns the configured requests and tokens per minute.
func (m *OpenAIModel) RateLimits() models.RateLimits {
	return m.limits
}

// ModelName returns the provider's model identifier.
func (m *OpenAIModel) ModelName() string {
	return m.name
}

// Parameters returns the canonical sampler-parameter string.
func (m *OpenAIModel) Parameters() string {
	return m.parameters
}
