package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultModelID, cfg.Primary.ModelID)
	assert.Equal(t, DefaultFallbackModelID, cfg.Fallback.ModelID)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.MinWait.Std())
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxWait.Std())
	require.NoError(t, cfg.Validate())
}

func TestGetModelProvider(t *testing.T) {
	tests := []struct {
		model    string
		provider string
		wantErr  bool
	}{
		{"claude-sonnet-4-5", ProviderAnthropic, false},
		{"global.anthropic.claude-haiku-4-5-20251001-v1:0", ProviderAnthropic, false},
		{"us.anthropic.claude-3-7-sonnet-20250219-v1:0", ProviderAnthropic, false},
		{"gpt-4o", ProviderOpenAI, false},
		{"o3-mini", ProviderOpenAI, false},
		{"gemini-2.5-flash", ProviderGoogle, false},
		{"llama3.1:8b", ProviderOllama, false},
		{"granite3:2b", ProviderOllama, false},
		{"ollama:phi4", ProviderOllama, false},
		{"mystery-model", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			provider, err := GetModelProvider(tt.model)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, provider)
		})
	}
}

func TestNormalizeModelID(t *testing.T) {
	tests := map[string]string{
		"global.anthropic.claude-haiku-4-5-20251001-v1:0":  "claude-haiku-4-5-20251001",
		"global.anthropic.claude-sonnet-4-5-20250929-v1:0": "claude-sonnet-4-5-20250929",
		"anthropic.claude-3-haiku-20240307-v1:0":           "claude-3-haiku-20240307",
		"claude-sonnet-4-5":                                "claude-sonnet-4-5",
		"ollama:phi4":                                      "phi4",
		"gpt-4o":                                           "gpt-4o",
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, NormalizeModelID(in))
		})
	}
}

func TestResolveProviderOverride(t *testing.T) {
	m := ModelConfig{ModelID: "my-finetune", Provider: ProviderOpenAI}
	provider, err := m.ResolveProvider()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, provider)

	_, err = ModelConfig{ModelID: "x", Provider: "bedrock"}.ResolveProvider()
	assert.Error(t, err)
}

func TestCredential(t *testing.T) {
	t.Setenv(EnvAnthropicAPIKey, "env-key")
	t.Setenv(EnvOllamaHost, "")

	key, err := ModelConfig{ModelID: "claude-sonnet-4-5"}.Credential()
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)

	key, err = ModelConfig{ModelID: "claude-sonnet-4-5", APIKey: "file-key"}.Credential()
	require.NoError(t, err)
	assert.Equal(t, "file-key", key)

	host, err := ModelConfig{ModelID: "llama3.1:8b"}.Credential()
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaHost, host)

	host, err = ModelConfig{ModelID: "llama3.1:8b", BaseURL: "http://gpu:11434"}.Credential()
	require.NoError(t, err)
	assert.Equal(t, "http://gpu:11434", host)

	t.Setenv(EnvOpenAIAPIKey, "")
	_, err = ModelConfig{ModelID: "gpt-4o"}.Credential()
	assert.ErrorContains(t, err, EnvOpenAIAPIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero retries allowed", func(c *Config) { c.Retry.MaxRetries = 0 }, ""},
		{"missing primary", func(c *Config) { c.Primary.ModelID = "" }, "primary.model_id"},
		{"missing fallback", func(c *Config) { c.Fallback.ModelID = "" }, "fallback.model_id"},
		{"unknown model", func(c *Config) { c.Fallback.ModelID = "mystery" }, "fallback"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "max_retries"},
		{"min above max", func(c *Config) { c.Retry.MinWait = Duration(time.Minute) }, "exceeds"},
		{"negative timeout", func(c *Config) { c.Resilience.Timeout = -1 }, "timeout"},
		{"temperature", func(c *Config) { c.Agent.Temperature = 3 }, "temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
