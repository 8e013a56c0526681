package agent

import (
	"context"
	"fmt"
	"strings"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
	"resilientagent/pkg/agent/resilience/failover"
	"resilientagent/pkg/logx"
	"resilientagent/pkg/utils"
)

// Invoker is the resilient call path a Chatbot sends its requests through.
type Invoker interface {
	Invoke(ctx context.Context, req llm.CompletionRequest) (failover.Result, error)
}

// ChatbotConfig shapes every request a Chatbot sends.
type ChatbotConfig struct {
	SystemPrompt    string
	Tools           []llm.ToolDefinition // Declared to the model; calls are reported, never executed
	MaxPromptTokens int                  // Zero disables the prompt size check
	MaxReplyTokens  int                  // Zero uses llm.DefaultMaxTokens
	Temperature     float32
}

// Reply is the outcome of one chatbot turn.
//
//nolint:govet // fieldalignment: grouped by meaning
type Reply struct {
	Message         llm.CompletionMessage // Assistant message to append to the history
	ToolCalls       []llm.ToolCall
	StopReason      string
	Usage           llm.Usage
	Backend         string // Model that produced the answer
	PrimaryAttempts int
	UsedSecondary   bool
}

// HasToolCalls reports whether the model asked for at least one tool call.
func (r Reply) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Chatbot turns a conversation history into one resilient model call.
type Chatbot struct {
	invoker Invoker
	counter *utils.TokenCounter
	logger  *logx.Logger
	config  ChatbotConfig
}

// NewChatbot creates a chatbot calling through invoker.
func NewChatbot(invoker Invoker, cfg ChatbotConfig) *Chatbot {
	logger := logx.NewLogger("chatbot")
	counter, err := utils.NewTokenCounter("chatbot")
	if err != nil {
		logger.Warn("Token counter unavailable, prompt sizes will be estimated: %v", err)
	}
	return &Chatbot{
		invoker: invoker,
		counter: counter,
		logger:  logger,
		config:  cfg,
	}
}

// Respond sends history, prefixed by the configured system prompt, and
// returns the model's answer. Errors are the invoker's, or a ValidationException
// when the prompt exceeds MaxPromptTokens.
func (c *Chatbot) Respond(ctx context.Context, history []llm.CompletionMessage) (Reply, error) {
	c.logger.Info("Chatbot invoked with %d messages", len(history))

	req, err := c.buildRequest(history)
	if err != nil {
		return Reply{}, err
	}

	result, err := c.invoker.Invoke(ctx, req)
	if err != nil {
		return Reply{}, err //nolint:wrapcheck // invoker errors are already typed
	}

	if result.UsedSecondary {
		c.logger.Info("Response generated using fallback model %s", result.Backend)
	}
	resp := result.Response
	c.logger.Info("LLM response received, has tool calls: %t", resp.HasToolCalls())
	for _, call := range resp.ToolCalls {
		logx.Debug(ctx, "chatbot", "tool call %s (%s) with %d parameter(s)", call.Name, call.ID, len(call.Parameters))
	}

	return Reply{
		Message:         llm.NewAssistantMessage(resp.Content),
		ToolCalls:       resp.ToolCalls,
		StopReason:      resp.StopReason,
		Usage:           resp.Usage,
		Backend:         result.Backend,
		PrimaryAttempts: result.PrimaryAttempts,
		UsedSecondary:   result.UsedSecondary,
	}, nil
}

// Ask is Respond for a single user prompt.
func (c *Chatbot) Ask(ctx context.Context, prompt string) (Reply, error) {
	return c.Respond(ctx, []llm.CompletionMessage{llm.NewUserMessage(prompt)})
}

func (c *Chatbot) buildRequest(history []llm.CompletionMessage) (llm.CompletionRequest, error) {
	messages := make([]llm.CompletionMessage, 0, len(history)+1)
	if c.config.SystemPrompt != "" {
		messages = append(messages, llm.NewSystemMessage(c.config.SystemPrompt))
	}
	messages = append(messages, history...)

	if limit := c.config.MaxPromptTokens; limit > 0 {
		var sb strings.Builder
		for i := range messages {
			sb.WriteString(messages[i].Content)
			sb.WriteByte('\n')
		}
		if prompt := sb.String(); !c.counter.ValidateTokenLimit(prompt, limit) {
			return llm.CompletionRequest{}, llmerrors.NewError(llmerrors.CodeValidation,
				fmt.Sprintf("prompt has %d tokens, limit is %d", c.counter.CountTokens(prompt), limit))
		}
	}

	req := llm.NewCompletionRequest(messages)
	req.Tools = c.config.Tools
	if c.config.MaxReplyTokens > 0 {
		req.MaxTokens = c.config.MaxReplyTokens
	}
	if c.config.Temperature > 0 {
		req.Temperature = c.config.Temperature
	}
	return req, nil
}
