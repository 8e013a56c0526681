package agent

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
	"resilientagent/pkg/agent/resilience/failover"
	"resilientagent/pkg/logx"
)

// stubInvoker records requests and answers with a fixed result.
type stubInvoker struct {
	err      error
	requests []llm.CompletionRequest
	result   failover.Result
}

func (s *stubInvoker) Invoke(_ context.Context, req llm.CompletionRequest) (failover.Result, error) {
	s.requests = append(s.requests, req)
	return s.result, s.err
}

func TestChatbotBuildsRequest(t *testing.T) {
	inv := &stubInvoker{result: failover.Result{
		Response: llm.CompletionResponse{Content: "Paris", StopReason: "end_turn"},
		Backend:  "haiku",
	}}
	tools := []llm.ToolDefinition{{Name: "web_search", Description: "Search the web"}}
	bot := NewChatbot(inv, ChatbotConfig{
		SystemPrompt:   "Be brief.",
		Tools:          tools,
		MaxReplyTokens: 256,
		Temperature:    0.7,
	})

	history := []llm.CompletionMessage{
		llm.NewUserMessage("Capital of France?"),
	}
	reply, err := bot.Respond(context.Background(), history)
	require.NoError(t, err)

	require.Len(t, inv.requests, 1)
	req := inv.requests[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.NewSystemMessage("Be brief."), req.Messages[0])
	assert.Equal(t, history[0], req.Messages[1])
	assert.Equal(t, tools, req.Tools)
	assert.Equal(t, 256, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)

	assert.Equal(t, llm.NewAssistantMessage("Paris"), reply.Message)
	assert.Equal(t, "haiku", reply.Backend)
	assert.Equal(t, "end_turn", reply.StopReason)
	assert.False(t, reply.HasToolCalls())
}

func TestChatbotDefaults(t *testing.T) {
	inv := &stubInvoker{result: failover.Result{Response: llm.CompletionResponse{Content: "ok"}}}
	bot := NewChatbot(inv, ChatbotConfig{})

	_, err := bot.Ask(context.Background(), "hi")
	require.NoError(t, err)

	req := inv.requests[0]
	assert.Equal(t, []llm.CompletionMessage{llm.NewUserMessage("hi")}, req.Messages)
	assert.Equal(t, llm.DefaultMaxTokens, req.MaxTokens)
	assert.InDelta(t, llm.TemperatureDefault, req.Temperature, 1e-6)
	assert.Empty(t, req.Tools)
}

func TestChatbotRejectsOversizedPrompt(t *testing.T) {
	inv := &stubInvoker{}
	bot := NewChatbot(inv, ChatbotConfig{MaxPromptTokens: 5})

	_, err := bot.Ask(context.Background(), strings.Repeat("tokens and more tokens ", 20))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.CodeValidation))
	assert.Empty(t, inv.requests)
}

func TestChatbotReportsFallbackAndToolCalls(t *testing.T) {
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	t.Cleanup(func() { logx.SetOutput(nil) })

	inv := &stubInvoker{result: failover.Result{
		Response: llm.CompletionResponse{
			ToolCalls:  []llm.ToolCall{{ID: "1", Name: "web_search", Parameters: map[string]any{"query": "weather"}}},
			StopReason: "tool_use",
		},
		Backend:         "sonnet",
		PrimaryAttempts: 4,
		UsedSecondary:   true,
	}}
	bot := NewChatbot(inv, ChatbotConfig{})

	reply, err := bot.Ask(context.Background(), "weather?")
	require.NoError(t, err)

	assert.True(t, reply.UsedSecondary)
	assert.Equal(t, 4, reply.PrimaryAttempts)
	assert.True(t, reply.HasToolCalls())
	assert.Equal(t, "web_search", reply.ToolCalls[0].Name)

	out := buf.String()
	assert.Contains(t, out, "Response generated using fallback model sonnet")
	assert.Contains(t, out, "has tool calls: true")
}

func TestChatbotPassesInvokerErrors(t *testing.T) {
	want := &failover.Failure{
		Err:     llmerrors.NewError(llmerrors.CodeAccessDenied, "bad key"),
		Backend: "haiku",
		Code:    llmerrors.CodeAccessDenied,
	}
	bot := NewChatbot(&stubInvoker{err: want}, ChatbotConfig{})

	_, err := bot.Ask(context.Background(), "hi")
	var f *failover.Failure
	require.ErrorAs(t, err, &f)
	assert.Same(t, want, f)
}
