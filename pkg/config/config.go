// Package config provides configuration loading, validation and defaults for
// the agent. It handles JSON or YAML files, ${ENV} substitution, .env files and
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// Provider constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variables.
const (
	EnvModelID         = "MODEL_ID"
	EnvFallbackModelID = "FALLBACK_MODEL_ID"
	EnvMaxRetries      = "MAX_RETRIES"
	EnvMinWait         = "MIN_WAIT_SECONDS"
	EnvMaxWait         = "MAX_WAIT_SECONDS"
	EnvServerAddr      = "AGENT_ADDR"
	EnvLedgerPath      = "LEDGER_PATH"
	EnvDebug           = "DEBUG"
	EnvDebugDomains    = "DEBUG_DOMAINS"

	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// Defaults carried over from the deployed agent.
const (
	DefaultModelID         = "global.anthropic.claude-haiku-4-5-20251001-v1:0"
	DefaultFallbackModelID = "global.anthropic.claude-sonnet-4-5-20250929-v1:0"
	DefaultMaxRetries      = 3
	DefaultMinWait         = Duration(time.Second)
	DefaultMaxWait         = Duration(10 * time.Second)
	DefaultServerAddr      = ":8080"
	DefaultShutdownTimeout = Duration(10 * time.Second)
	DefaultRequestTimeout  = Duration(60 * time.Second)
	DefaultMaxReplyTokens  = 4096
	DefaultTemperature     = 0.3
	DefaultOllamaHost      = "http://localhost:11434"
)

// ModelConfig selects one backend.
type ModelConfig struct {
	ModelID  string `json:"model_id" yaml:"model_id"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"` // Inferred from ModelID when empty
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`   // Falls back to the provider's env var
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Endpoint override; Ollama host for ollama
}

// RetryConfig controls the primary retry loop.
type RetryConfig struct {
	MaxRetries int      `json:"max_retries" yaml:"max_retries"` // Extra primary attempts for retryable errors
	MinWait    Duration `json:"min_wait" yaml:"min_wait"`
	MaxWait    Duration `json:"max_wait" yaml:"max_wait"`
}

// CircuitBreakerConfig defines configuration for circuit breaker behavior.
type CircuitBreakerConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	FailureThreshold int      `json:"failure_threshold" yaml:"failure_threshold"` // Consecutive failures before opening
	SuccessThreshold int      `json:"success_threshold" yaml:"success_threshold"` // Successes to close from half-open
	Timeout          Duration `json:"timeout" yaml:"timeout"`                     // Time to wait before trying half-open
}

// RateLimitConfig limits each backend's token throughput. Zero values disable it.
type RateLimitConfig struct {
	TokensPerMinute int      `json:"tokens_per_minute" yaml:"tokens_per_minute"`
	MaxConcurrency  int      `json:"max_concurrency" yaml:"max_concurrency"`
	MaxWait         Duration `json:"max_wait" yaml:"max_wait"`
}

// ResilienceConfig bundles the per-backend middleware settings.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `json:"rate_limit" yaml:"rate_limit"`
	Timeout        Duration             `json:"timeout" yaml:"timeout"` // Per-call deadline; zero disables
}

// AgentConfig shapes the conversation sent to the backends.
type AgentConfig struct {
	SystemPrompt    string  `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	MaxPromptTokens int     `json:"max_prompt_tokens,omitempty" yaml:"max_prompt_tokens,omitempty"` // Zero disables the check
	MaxReplyTokens  int     `json:"max_reply_tokens" yaml:"max_reply_tokens"`
	Temperature     float32 `json:"temperature" yaml:"temperature"`
}

// ServerConfig configures the HTTP runtime.
type ServerConfig struct {
	Addr            string   `json:"addr" yaml:"addr"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LedgerConfig enables the SQLite invocation ledger when Path is set.
type LedgerConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// MetricsConfig defines configuration for metrics collection.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DebugConfig defines configuration for debug logging.
type DebugConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Domains []string `json:"domains,omitempty" yaml:"domains,omitempty"`
}

// Config is the complete agent configuration.
type Config struct {
	Primary    ModelConfig      `json:"primary" yaml:"primary"`
	Fallback   ModelConfig      `json:"fallback" yaml:"fallback"`
	Retry      RetryConfig      `json:"retry" yaml:"retry"`
	Resilience ResilienceConfig `json:"resilience" yaml:"resilience"`
	Agent      AgentConfig      `json:"agent" yaml:"agent"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	Debug      DebugConfig      `json:"debug" yaml:"debug"`
}

// Default returns the configuration used when no file or overrides are given.
func Default() *Config {
	return &Config{
		Primary:  ModelConfig{ModelID: DefaultModelID},
		Fallback: ModelConfig{ModelID: DefaultFallbackModelID},
		Retry: RetryConfig{
			MaxRetries: DefaultMaxRetries,
			MinWait:    DefaultMinWait,
			MaxWait:    DefaultMaxWait,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          Duration(30 * time.Second),
			},
			Timeout: DefaultRequestTimeout,
		},
		Agent: AgentConfig{
			MaxReplyTokens: DefaultMaxReplyTokens,
			Temperature:    DefaultTemperature,
		},
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate checks the configuration for values the agent cannot run with.
func (c *Config) Validate() error {
	if c.Primary.ModelID == "" {
		return fmt.Errorf("primary.model_id is required")
	}
	if c.Fallback.ModelID == "" {
		return fmt.Errorf("fallback.model_id is required")
	}
	for name, m := range map[string]ModelConfig{"primary": c.Primary, "fallback": c.Fallback} {
		if _, err := m.ResolveProvider(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.MinWait < 0 || c.Retry.MaxWait < 0 {
		return fmt.Errorf("retry waits must not be negative")
	}
	if c.Retry.MinWait > c.Retry.MaxWait {
		return fmt.Errorf("retry.min_wait (%v) exceeds retry.max_wait (%v)", c.Retry.MinWait, c.Retry.MaxWait)
	}
	if c.Resilience.Timeout < 0 {
		return fmt.Errorf("resilience.timeout must not be negative")
	}
	if rl := c.Resilience.RateLimit; rl.TokensPerMinute < 0 || rl.MaxConcurrency < 0 {
		return fmt.Errorf("resilience.rate_limit values must not be negative")
	}
	if c.Agent.MaxPromptTokens < 0 || c.Agent.MaxReplyTokens < 0 {
		return fmt.Errorf("agent token limits must not be negative")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return fmt.Errorf("agent.temperature must be between 0 and 2, got %v", c.Agent.Temperature)
	}
	return nil
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from model names.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama},
}

// bedrockModelID matches inference-profile style IDs such as
// "global.anthropic.claude-haiku-4-5-20251001-v1:0".
var bedrockModelID = regexp.MustCompile(`^(?:(?:global|us|eu|apac)\.)?anthropic\.(claude-[a-z0-9.-]+?)(?:-v\d+(?::\d+)?)?$`)

// NormalizeModelID maps Bedrock-style Anthropic model IDs to the name the
// Anthropic API expects. Other IDs are returned unchanged, except that an
// explicit "ollama:" prefix is stripped.
func NormalizeModelID(modelID string) string {
	if m := bedrockModelID.FindStringSubmatch(modelID); m != nil {
		return m[1]
	}
	return strings.TrimPrefix(modelID, "ollama:")
}

// GetModelProvider infers the API provider for a model ID.
func GetModelProvider(modelID string) (string, error) {
	if bedrockModelID.MatchString(modelID) {
		return ProviderAnthropic, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelID, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	// Ollama models are addressed as name:tag.
	if strings.Contains(modelID, ":") {
		return ProviderOllama, nil
	}
	return "", fmt.Errorf("unknown model '%s': no provider pattern matches, set provider explicitly", modelID)
}

// ResolveProvider returns the explicit provider or the one inferred from ModelID.
func (m ModelConfig) ResolveProvider() (string, error) {
	switch m.Provider {
	case "":
		return GetModelProvider(m.ModelID)
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
		return m.Provider, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", m.Provider)
	}
}

// GetAPIKey returns the API key for a provider from the environment.
// For Ollama, returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return DefaultOllamaHost, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: %s is not set", envVar)
}

// Credential returns the configured key, or the provider's environment value.
func (m ModelConfig) Credential() (string, error) {
	provider, err := m.ResolveProvider()
	if err != nil {
		return "", err
	}
	if provider == ProviderOllama {
		if m.BaseURL != "" {
			return m.BaseURL, nil
		}
		return GetAPIKey(provider)
	}
	if m.APIKey != "" {
		return m.APIKey, nil
	}
	return GetAPIKey(provider)
}
