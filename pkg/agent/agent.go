package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/middleware/metrics"
	"resilientagent/pkg/agent/middleware/resilience/ratelimit"
	"resilientagent/pkg/agent/resilience/backoff"
	"resilientagent/pkg/agent/resilience/failover"
	"resilientagent/pkg/config"
	"resilientagent/pkg/logx"
	"resilientagent/pkg/persistence"
	"resilientagent/pkg/utils"
)

// DefaultPrompt is sent when an invocation payload carries no prompt.
const DefaultPrompt = "No prompt found in input"

// Options carries collaborators owned by the caller. All fields are optional.
type Options struct {
	Registerer prometheus.Registerer // Receives Prometheus collectors when metrics are enabled
	Ledger     *persistence.Store    // Records every invocation outcome
	Tools      []llm.ToolDefinition
	Primary    llm.Backend        // Replaces the configured primary adapter; still wrapped in middleware
	Secondary  llm.Backend        // Replaces the configured fallback adapter; still wrapped in middleware
	Sleep      failover.SleepFunc // Backoff sleep override
}

// Agent wires configuration, backends, the resilient invoker and the chatbot.
type Agent struct {
	config  *config.Config
	factory *BackendFactory
	invoker *failover.Invoker
	chatbot *Chatbot
	stats   *metrics.InternalRecorder
	ledger  *persistence.Store
	logger  *logx.Logger
}

// Stats is a point-in-time view of the agent's counters.
type Stats struct {
	Metrics  metrics.Snapshot                  `json:"metrics"`
	Circuits map[string]string                 `json:"circuits"`
	Limiters map[string]ratelimit.LimiterStats `json:"limiters"`
}

// New builds an agent from cfg. ctx bounds background work started for the
// backends and should live as long as the agent.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Agent, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logx.SetDebugConfig(cfg.Debug.Enabled, cfg.Debug.Domains)

	stats := metrics.NewInternalRecorder()
	recorder := metrics.Tee{stats}
	if cfg.Metrics.Enabled && opts.Registerer != nil {
		recorder = append(recorder, metrics.NewPrometheusRecorder(opts.Registerer))
	}

	factory := NewBackendFactory(cfg, recorder)
	primary, err := factory.backend(ctx, cfg.Primary, opts.Primary)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary backend: %w", err)
	}
	secondary, err := factory.backend(ctx, cfg.Fallback, opts.Secondary)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback backend: %w", err)
	}

	observers := failover.Observers{
		failover.NewLogObserver(nil),
		metrics.NewObserver(recorder),
	}
	if opts.Ledger != nil {
		observers = append(observers, opts.Ledger)
	}

	policy := backoff.DefaultPolicy()
	policy.MinWait = cfg.Retry.MinWait.Std()
	policy.MaxWait = cfg.Retry.MaxWait.Std()

	invoker, err := failover.New(primary, secondary, failover.Config{
		Classifier: factory.Classifier(),
		Backoff:    policy,
		Observer:   observers,
		Sleep:      opts.Sleep,
		MaxRetries: cfg.Retry.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create invoker: %w", err)
	}

	logger := logx.NewLogger("agent")
	logger.Info("Agent ready: primary=%s fallback=%s max_retries=%d wait=%v..%v",
		primary.GetModelName(), secondary.GetModelName(), cfg.Retry.MaxRetries, policy.MinWait, policy.MaxWait)

	return &Agent{
		config:  cfg,
		factory: factory,
		invoker: invoker,
		chatbot: NewChatbot(invoker, ChatbotConfig{
			SystemPrompt:    cfg.Agent.SystemPrompt,
			Tools:           opts.Tools,
			MaxPromptTokens: cfg.Agent.MaxPromptTokens,
			MaxReplyTokens:  cfg.Agent.MaxReplyTokens,
			Temperature:     cfg.Agent.Temperature,
		}),
		stats:  stats,
		ledger: opts.Ledger,
		logger: logger,
	}, nil
}

// backend wraps override when set, otherwise creates the adapter for m.
func (f *BackendFactory) backend(ctx context.Context, m config.ModelConfig, override llm.Backend) (llm.Backend, error) {
	if override != nil {
		return f.Wrap(ctx, override), nil
	}
	return f.CreateBackend(ctx, m)
}

// Invoker returns the agent's resilient invoker.
func (a *Agent) Invoker() *failover.Invoker { return a.invoker }

// Chatbot returns the agent's chatbot.
func (a *Agent) Chatbot() *Chatbot { return a.chatbot }

// Ledger returns the invocation ledger, or nil when none is configured.
func (a *Agent) Ledger() *persistence.Store { return a.ledger }

// Stats returns the current metrics, circuit states and limiter statistics.
func (a *Agent) Stats() Stats {
	return Stats{
		Metrics:  a.stats.Snapshot(),
		Circuits: a.factory.CircuitStates(),
		Limiters: a.factory.LimiterStats(),
	}
}

// HandleInvocation answers a runtime payload of the form {"prompt": "..."}.
// It always returns {"result": ...}; failures are reported in the result text.
func (a *Agent) HandleInvocation(ctx context.Context, payload map[string]any) map[string]any {
	prompt := utils.GetMapFieldOr(payload, "prompt", "")
	if strings.TrimSpace(prompt) == "" {
		a.logger.Warn("No prompt found in payload, using default message")
		prompt = DefaultPrompt
	}

	a.logger.Info("Agent invocation started with prompt length: %d", len(prompt))

	reply, err := a.chatbot.Ask(ctx, prompt)
	if err != nil {
		a.logger.Error("Agent invocation failed: %v", err)
		return map[string]any{"result": fmt.Sprintf("Error processing request: %v", err)}
	}

	a.logger.Info("Agent invocation completed successfully")
	return map[string]any{"result": reply.Message.Content}
}
