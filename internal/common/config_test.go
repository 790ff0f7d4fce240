package common

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Cache.Path != DefaultCachePath {
		t.Errorf("expected default cache path %q, got %q", DefaultCachePath, cfg.Cache.Path)
	}
	if !cfg.Cache.ImmediateWrite {
		t.Error("expected immediate_write to default to true")
	}
	if cfg.Run.Iterations != 1 {
		t.Errorf("expected 1 iteration by default, got %d", cfg.Run.Iterations)
	}
	if cfg.Run.TimeoutSeconds != DefaultCallTimeoutSeconds {
		t.Errorf("expected timeout %d, got %d", DefaultCallTimeoutSeconds, cfg.Run.TimeoutSeconds)
	}
	if cfg.Models.DefaultRPM != DefaultRPM || cfg.Models.DefaultTPM != DefaultTPM {
		t.Errorf("unexpected fallback rate limits: rpm=%d tpm=%d", cfg.Models.DefaultRPM, cfg.Models.DefaultTPM)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFromFilesMerge(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	if err := os.WriteFile(base, []byte(`
[cache]
path = "/tmp/base.db"
immediate_write = false

[run]
iterations = 3
`), 0644); err != nil {
		t.Fatal(err)
	}

	override := filepath.Join(dir, "override.toml")
	if err := os.WriteFile(override, []byte(`
[cache]
path = "/tmp/override.db"
`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}

	if cfg.Cache.Path != "/tmp/override.db" {
		t.Errorf("later file should win: got %q", cfg.Cache.Path)
	}
	if cfg.Cache.ImmediateWrite {
		t.Error("base file value should survive when override is silent")
	}
	if cfg.Run.Iterations != 3 {
		t.Errorf("expected iterations 3 from base file, got %d", cfg.Run.Iterations)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EDSL_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("EXPECTED_PARROT_CACHE_URL", "https://cache.example.com")
	t.Setenv("EXPECTED_PARROT_API_KEY", "ep-secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("EDSL_LOG_LEVEL", "warn")

	cfg, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}

	if cfg.Cache.Path != "/tmp/env.db" {
		t.Errorf("EDSL_DATABASE_PATH not applied: %q", cfg.Cache.Path)
	}
	if cfg.Coop.URL != "https://cache.example.com" {
		t.Errorf("EXPECTED_PARROT_CACHE_URL not applied: %q", cfg.Coop.URL)
	}
	if cfg.Coop.APIKey != "ep-secret" {
		t.Errorf("EXPECTED_PARROT_API_KEY not applied")
	}
	if cfg.Models.OpenAI.APIKey != "sk-test" {
		t.Errorf("OPENAI_API_KEY not applied")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("EDSL_LOG_LEVEL not applied: %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Run.Iterations = 0

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for iterations = 0")
	}

	cfg = NewDefaultConfig()
	cfg.Logging.Level = "shout"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown log level")
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	key, err := ResolveAPIKey("anthropic_api_key", "config-key")
	if err != nil {
		t.Fatalf("ResolveAPIKey failed: %v", err)
	}
	if key != "env-key" {
		t.Errorf("environment should win, got %q", key)
	}

	key, err = ResolveAPIKey("deep_infra_api_key", "config-key")
	if err != nil {
		t.Fatalf("ResolveAPIKey failed: %v", err)
	}
	if key != "config-key" {
		t.Errorf("config fallback should apply, got %q", key)
	}

	if _, err := ResolveAPIKey("openai_api_key", ""); err == nil {
		t.Error("expected error when no key is available")
	}
}

func TestValidateSyncSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"*/30 * * * *", false},
		{"0 2 * * *", false},
		{"*/5 * * * *", false},
		{"* * * * *", true},  // every minute
		{"*/2 * * * *", true}, // under 5 minutes
		{"bogus", true},
	}

	for _, tt := range tests {
		err := ValidateSyncSchedule(tt.schedule)
		if tt.wantErr && err == nil {
			t.Errorf("schedule %q: expected error", tt.schedule)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("schedule %q: unexpected error %v", tt.schedule, err)
		}
	}
}

func TestDeepCloneConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Logging.Output = []string{"stdout", "file"}

	clone := DeepCloneConfig(cfg)
	clone.Logging.Output[0] = "mutated"
	clone.Cache.Path = "/elsewhere"

	if cfg.Logging.Output[0] != "stdout" {
		t.Error("clone shares the output slice with the original")
	}
	if cfg.Cache.Path == "/elsewhere" {
		t.Error("clone shares scalar fields with the original")
	}
}
