package mocks

import (
	"context"
	"strings"
	"sync"
	"time"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
)

// Step is one scripted reply of a MockBackend.
type Step func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

// Respond returns a step that answers with content.
func Respond(content string) Step {
	return func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{
			Content:    content,
			StopReason: "end_turn",
		}, nil
	}
}

// Fail returns a step that fails with the given error code.
func Fail(code llmerrors.ErrorCode) Step {
	return FailWith(llmerrors.NewError(code, "mock failure"))
}

// FailWith returns a step that fails with err.
func FailWith(err error) Step {
	return func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	}
}

// Block returns a step that waits for ctx to be done and reports its error.
func Block() Step {
	return func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		<-ctx.Done()
		return llm.CompletionResponse{}, ctx.Err()
	}
}

// Delay returns a step that waits d (or until ctx is done) before running next.
func Delay(d time.Duration, next Step) Step {
	return func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		select {
		case <-ctx.Done():
			return llm.CompletionResponse{}, ctx.Err()
		case <-time.After(d):
		}
		return next(ctx, req)
	}
}

// MockBackend implements llm.Backend for testing. Complete plays scripted
// steps in order and repeats the last one once the script is exhausted.
// It is safe for concurrent use.
//
//nolint:govet // fieldalignment: mock struct layout optimized for readability
type MockBackend struct {
	// CompleteCalls tracks all calls to Complete for verification.
	CompleteCalls []llm.CompletionRequest

	steps     []Step
	modelName string
	mu        sync.Mutex
}

// NewMockBackend creates a mock backend that answers "Mock response" until scripted otherwise.
func NewMockBackend(modelName string) *MockBackend {
	return &MockBackend{
		modelName: modelName,
		steps:     []Step{Respond("Mock response")},
	}
}

// Complete implements llm.Backend.
func (m *MockBackend) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	idx := len(m.CompleteCalls)
	m.CompleteCalls = append(m.CompleteCalls, req)
	if idx >= len(m.steps) {
		idx = len(m.steps) - 1
	}
	step := m.steps[idx]
	m.mu.Unlock()
	return step(ctx, req)
}

// GetModelName implements llm.Backend.
func (m *MockBackend) GetModelName() string {
	return m.modelName
}

// --- Configuration methods ---

// Script replaces the scripted steps. Call counting restarts at zero.
func (m *MockBackend) Script(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(steps) == 0 {
		steps = []Step{Respond("Mock response")}
	}
	m.steps = steps
	m.CompleteCalls = nil
}

// RespondWith configures every call to answer with content.
func (m *MockBackend) RespondWith(content string) {
	m.Script(Respond(content))
}

// FailCompleteWith configures every call to fail with err.
func (m *MockBackend) FailCompleteWith(err error) {
	m.Script(FailWith(err))
}

// RespondWithToolCall configures every call to return a single tool call.
func (m *MockBackend) RespondWithToolCall(toolName string, params map[string]any) {
	m.Script(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{
				{
					ID:         "mock-tool-call-1",
					Name:       toolName,
					Parameters: params,
				},
			},
			StopReason: "tool_use",
		}, nil
	})
}

// --- Verification helpers ---

// GetCompleteCallCount returns the number of times Complete was called.
func (m *MockBackend) GetCompleteCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompleteCalls)
}

// LastCompleteCall returns the most recent Complete call request, or nil if none.
func (m *MockBackend) LastCompleteCall() *llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.CompleteCalls) == 0 {
		return nil
	}
	req := m.CompleteCalls[len(m.CompleteCalls)-1]
	return &req
}

// AssertCompleteCalledWith reports whether any call carried a message containing substr.
func (m *MockBackend) AssertCompleteCalledWith(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.CompleteCalls {
		for _, msg := range call.Messages {
			if strings.Contains(msg.Content, substr) {
				return true
			}
		}
	}
	return false
}
