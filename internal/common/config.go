package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Cache       CacheConfig   `toml:"cache"`
	Coop        CoopConfig    `toml:"coop"`
	Run         RunConfig     `toml:"run"`
	Models      ModelsConfig  `toml:"models"`
	Logging     LoggingConfig `toml:"logging"`
}

// CacheConfig controls the local response cache.
type CacheConfig struct {
	Path           string `toml:"path"`             // Key-value database directory (default: .cache/data.db)
	ImmediateWrite bool   `toml:"immediate_write"`  // Commit entries as they are stored instead of at session exit
	RemoteBackups  bool   `toml:"remote_backups"`   // Upload new entries to the remote cache at session exit
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// CoopConfig holds the remote cache endpoint settings.
type CoopConfig struct {
	URL               string  `toml:"url"`                 // Remote cache base URL
	APIKey            string  `toml:"api_key"`             // Bearer token for the remote cache
	Timeout           string  `toml:"timeout"`             // HTTP timeout per remote call, e.g. "30s"
	RequestsPerSecond float64 `toml:"requests_per_second"` // Client-side request pacing
}

// RunConfig holds job runner behavior.
type RunConfig struct {
	Iterations      int     `toml:"iterations" validate:"min=1"`      // Answers per (agent, scenario, model) combination
	MaxConcurrent   int     `toml:"max_concurrent" validate:"min=1"`  // Worker pool size for concurrent interviews
	StopOnException bool    `toml:"stop_on_exception"`                // First failure cancels all peers
	ProgressBar     bool    `toml:"progress_bar"`                     // Print live progress counts
	TimeoutSeconds  int     `toml:"timeout_seconds" validate:"min=1"` // Per LM call timeout
	BurstFactor     float64 `toml:"burst_factor" validate:"gt=0"`     // Token bucket capacity multiplier
}

// ModelsConfig holds per-provider credentials and rate-limit fallbacks.
type ModelsConfig struct {
	DefaultRPM int            `toml:"default_rpm" validate:"min=1"` // Requests/minute when the provider advertises none
	DefaultTPM int            `toml:"default_tpm" validate:"min=1"` // Tokens/minute when the provider advertises none
	OpenAI     ProviderConfig `toml:"openai"`
	Anthropic  ProviderConfig `toml:"anthropic"`
	DeepInfra  ProviderConfig `toml:"deep_infra"`
	Gemini     ProviderConfig `toml:"gemini"`
}

// ProviderConfig is one LM provider's connection settings.
type ProviderConfig struct {
	APIKey    string `toml:"api_key"`    // Credential; environment variables take priority
	BaseURL   string `toml:"base_url"`   // Override endpoint (required for DeepInfra, optional elsewhere)
	MaxTokens int    `toml:"max_tokens"` // Completion token ceiling passed to the provider
}

// LoggingConfig controls arbor logger output.
type LoggingConfig struct {
	Level      string   `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for log lines
}

// NewDefaultConfig returns the built-in defaults, before any file or
// environment overrides.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Cache: CacheConfig{
			Path:           DefaultCachePath,
			ImmediateWrite: true,
			RemoteBackups:  false,
			ResetOnStartup: false,
		},
		Coop: CoopConfig{
			URL:               "",
			APIKey:            "",
			Timeout:           "30s",
			RequestsPerSecond: 10,
		},
		Run: RunConfig{
			Iterations:      1,
			MaxConcurrent:   DefaultMaxConcurrent,
			StopOnException: false,
			ProgressBar:     false,
			TimeoutSeconds:  DefaultCallTimeoutSeconds,
			BurstFactor:     1,
		},
		Models: ModelsConfig{
			DefaultRPM: DefaultRPM,
			DefaultTPM: DefaultTPM,
			OpenAI:     ProviderConfig{MaxTokens: 1000},
			Anthropic:  ProviderConfig{MaxTokens: 1000},
			DeepInfra:  ProviderConfig{BaseURL: DefaultDeepInfraBaseURL, MaxTokens: 1000},
			Gemini:     ProviderConfig{MaxTokens: 1000},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFile loads configuration from a single file path.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("EDSL_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Cache configuration
	if dbPath := os.Getenv("EDSL_DATABASE_PATH"); dbPath != "" {
		config.Cache.Path = dbPath
	}

	// Remote cache configuration
	if url := os.Getenv("EXPECTED_PARROT_CACHE_URL"); url != "" {
		config.Coop.URL = url
	}
	if key := os.Getenv("EXPECTED_PARROT_API_KEY"); key != "" {
		config.Coop.APIKey = key
	}

	// Provider credentials
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.Models.OpenAI.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Models.Anthropic.APIKey = key
	}
	if key := os.Getenv("DEEP_INFRA_API_KEY"); key != "" {
		config.Models.DeepInfra.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Models.Gemini.APIKey = key
	}

	// Runner configuration
	if n := os.Getenv("EDSL_RUN_ITERATIONS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			config.Run.Iterations = v
		}
	}
	if mc := os.Getenv("EDSL_RUN_MAX_CONCURRENT"); mc != "" {
		if v, err := strconv.Atoi(mc); err == nil {
			config.Run.MaxConcurrent = v
		}
	}

	// Logging configuration
	if level := os.Getenv("EDSL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("EDSL_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority).
// Zero values mean "flag not set" and leave the config untouched.
func ApplyFlagOverrides(config *Config, iterations int, maxConcurrent int, cachePath string) {
	if iterations > 0 {
		config.Run.Iterations = iterations
	}
	if maxConcurrent > 0 {
		config.Run.MaxConcurrent = maxConcurrent
	}
	if cachePath != "" {
		config.Cache.Path = cachePath
	}
}

// Validate checks the resolved configuration for invalid field values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ResolveAPIKey resolves a provider credential with priority:
// environment variable -> config fallback.
func ResolveAPIKey(name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"openai_api_key":     {"OPENAI_API_KEY"},
		"anthropic_api_key":  {"ANTHROPIC_API_KEY"},
		"deep_infra_api_key": {"DEEP_INFRA_API_KEY"},
		"gemini_api_key":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	}

	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}

// ValidateSyncSchedule validates a cron schedule expression for the cache
// sync tool and enforces a minimum 5-minute interval.
func ValidateSyncSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		if interval, err := strconv.Atoi(intervalStr); err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// DeepCloneConfig creates a deep copy of the Config struct so callers can
// mutate run options without touching the original.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	return &clone
}
