package validation

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resilientagent/internal/mocks"
	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
	"resilientagent/pkg/logx"
)

func TestMiddlewareRejectsInvalidRequest(t *testing.T) {
	base := mocks.NewMockBackend("haiku")
	backend := llm.Chain(base, Middleware(nil))

	_, err := backend.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.CodeValidation))
	assert.Equal(t, 0, base.GetCompleteCallCount())
}

func TestMiddlewareEmptyResponse(t *testing.T) {
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	t.Cleanup(func() { logx.SetOutput(nil) })

	tests := []struct {
		name      string
		setup     func(m *mocks.MockBackend)
		wantCode  llmerrors.ErrorCode
		wantEmpty bool
	}{
		{"blank content", func(m *mocks.MockBackend) { m.RespondWith("   ") }, llmerrors.CodeModelError, true},
		{"content", func(m *mocks.MockBackend) { m.RespondWith("hello") }, "", false},
		{"tool call only", func(m *mocks.MockBackend) {
			m.RespondWithToolCall("web_search", map[string]any{"query": "go"})
		}, "", false},
		{"backend error passes through", func(m *mocks.MockBackend) {
			m.FailCompleteWith(llmerrors.NewError(llmerrors.CodeThrottling, "slow down"))
		}, llmerrors.CodeThrottling, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			base := mocks.NewMockBackend("haiku")
			tt.setup(base)

			req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})
			_, err := llm.Chain(base, Middleware(nil)).Complete(context.Background(), req)

			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				assert.True(t, llmerrors.Is(err, tt.wantCode), "got %v", err)
			}
			assert.Equal(t, tt.wantEmpty, bytes.Contains(buf.Bytes(), []byte("Empty response from haiku")))
		})
	}
}
