package agent

import (
	"context"
	"fmt"
	"sync"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"

	"resilientagent/pkg/agent/internal/llmimpl/anthropic"
	"resilientagent/pkg/agent/internal/llmimpl/google"
	"resilientagent/pkg/agent/internal/llmimpl/ollama"
	"resilientagent/pkg/agent/internal/llmimpl/openaiofficial"
	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/middleware/metrics"
	"resilientagent/pkg/agent/middleware/resilience/circuit"
	"resilientagent/pkg/agent/middleware/resilience/ratelimit"
	"resilientagent/pkg/agent/middleware/resilience/timeout"
	"resilientagent/pkg/agent/middleware/validation"
	"resilientagent/pkg/agent/resilience/classify"
	"resilientagent/pkg/config"
	"resilientagent/pkg/logx"
)

// BackendFactory creates backends with properly configured middleware chains.
type BackendFactory struct {
	config          *config.Config
	metricsRecorder metrics.Recorder
	logger          *logx.Logger
	classifier      *classify.Classifier
	circuitBreakers map[string]circuit.Breaker // per-model circuit breakers
	limiters        map[string]*ratelimit.TokenBucketLimiter
	mu              sync.Mutex
}

// NewBackendFactory creates a factory for cfg. A nil recorder disables metrics.
func NewBackendFactory(cfg *config.Config, recorder metrics.Recorder) *BackendFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &BackendFactory{
		config:          cfg,
		metricsRecorder: recorder,
		logger:          logx.NewLogger("factory"),
		classifier:      classify.Default(),
		circuitBreakers: make(map[string]circuit.Breaker),
		limiters:        make(map[string]*ratelimit.TokenBucketLimiter),
	}
}

// Classifier returns the error classifier the circuit breakers judge failures with.
func (f *BackendFactory) Classifier() *classify.Classifier {
	return f.classifier
}

// CreateBackend creates the backend described by m with the full middleware chain.
// Credentials come from m or, failing that, from the provider's environment variable.
// ctx bounds the lifetime of background work such as rate limiter refills.
func (f *BackendFactory) CreateBackend(ctx context.Context, m config.ModelConfig) (llm.Backend, error) {
	raw, err := f.createRawBackend(m)
	if err != nil {
		return nil, err
	}
	return f.Wrap(ctx, raw), nil
}

// createRawBackend selects the provider adapter for m.
func (f *BackendFactory) createRawBackend(m config.ModelConfig) (llm.Backend, error) {
	provider, err := m.ResolveProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", m.ModelID, err)
	}

	credential, err := m.Credential()
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials for provider %s: %w", provider, err)
	}

	modelName := config.NormalizeModelID(m.ModelID)
	f.logger.Info("Creating %s backend for model %s", provider, modelName)

	switch provider {
	case config.ProviderAnthropic:
		var opts []anthropicopt.RequestOption
		if m.BaseURL != "" {
			opts = append(opts, anthropicopt.WithBaseURL(m.BaseURL))
		}
		return anthropic.NewClaudeClientWithModel(credential, modelName, opts...), nil
	case config.ProviderOpenAI:
		var opts []openaiopt.RequestOption
		if m.BaseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(m.BaseURL))
		}
		return openaiofficial.NewOfficialClientWithModel(credential, modelName, opts...), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(credential, modelName, m.BaseURL), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(credential, modelName), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// Wrap applies the configured middleware chain to raw.
func (f *BackendFactory) Wrap(ctx context.Context, raw llm.Backend) llm.Backend {
	res := f.config.Resilience
	modelName := raw.GetModelName()

	// Build the middleware chain in the correct order:
	// Metrics -> Validation -> CircuitBreaker -> RateLimit -> Timeout -> RawBackend
	mws := []llm.Middleware{
		metrics.Middleware(f.metricsRecorder, nil, f.logger.WithComponent("metrics")),
		validation.Middleware(f.logger.WithComponent("validation")),
	}
	if breaker := f.circuitBreaker(modelName); breaker != nil {
		mws = append(mws, circuit.Middleware(breaker, f.classifier))
	}
	if limiter := f.rateLimiter(ctx, modelName); limiter != nil {
		mws = append(mws, ratelimit.Middleware(limiter, nil))
	}
	mws = append(mws, timeout.Middleware(res.Timeout.Std()))

	return llm.Chain(raw, mws...)
}

// circuitBreaker returns the shared breaker for modelName, or nil when disabled.
func (f *BackendFactory) circuitBreaker(modelName string) circuit.Breaker {
	cb := f.config.Resilience.CircuitBreaker
	if !cb.Enabled {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if breaker, ok := f.circuitBreakers[modelName]; ok {
		return breaker
	}
	breaker := circuit.New(circuit.Config{
		FailureThreshold: cb.FailureThreshold,
		SuccessThreshold: cb.SuccessThreshold,
		Timeout:          cb.Timeout.Std(),
	})
	f.circuitBreakers[modelName] = breaker
	return breaker
}

// rateLimiter returns the shared limiter for modelName, or nil when disabled.
func (f *BackendFactory) rateLimiter(ctx context.Context, modelName string) *ratelimit.TokenBucketLimiter {
	rl := f.config.Resilience.RateLimit
	cfg := ratelimit.Config{
		TokensPerMinute: rl.TokensPerMinute,
		MaxConcurrency:  rl.MaxConcurrency,
		MaxWait:         rl.MaxWait.Std(),
	}
	if !cfg.Enabled() {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if limiter, ok := f.limiters[modelName]; ok {
		return limiter
	}
	limiter := ratelimit.NewTokenBucketLimiter(modelName, cfg, f.config.Resilience.Timeout.Std())
	limiter.Start(ctx)
	f.limiters[modelName] = limiter
	return limiter
}

// CircuitStates reports the state of every breaker created so far.
func (f *BackendFactory) CircuitStates() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	states := make(map[string]string, len(f.circuitBreakers))
	for model, breaker := range f.circuitBreakers {
		states[model] = breaker.GetState().String()
	}
	return states
}

// LimiterStats reports the statistics of every rate limiter created so far.
func (f *BackendFactory) LimiterStats() map[string]ratelimit.LimiterStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := make(map[string]ratelimit.LimiterStats, len(f.limiters))
	for model, limiter := range f.limiters {
		stats[model] = limiter.GetStats()
	}
	return stats
}
