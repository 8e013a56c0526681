package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resilientagent/internal/mocks"
	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
)

func request() llm.CompletionRequest {
	return llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})
}

func TestMiddlewareDeadlineBecomesModelTimeout(t *testing.T) {
	base := mocks.NewMockBackend("slow-model")
	base.Script(mocks.Block())

	_, err := llm.Chain(base, Middleware(10*time.Millisecond)).Complete(context.Background(), request())
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.CodeModelTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "slow-model did not answer within 10ms")
}

func TestMiddlewareCallerCancellationPassesThrough(t *testing.T) {
	base := mocks.NewMockBackend("slow-model")
	base.Script(mocks.Block())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := llm.Chain(base, Middleware(time.Hour)).Complete(ctx, request())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, llmerrors.Is(err, llmerrors.CodeModelTimeout))
}

func TestMiddlewareFastCallUntouched(t *testing.T) {
	base := mocks.NewMockBackend("fast-model")
	base.Script(mocks.Fail(llmerrors.CodeThrottling))

	_, err := llm.Chain(base, Middleware(time.Hour)).Complete(context.Background(), request())
	assert.True(t, llmerrors.Is(err, llmerrors.CodeThrottling))
}

func TestMiddlewareDisabled(t *testing.T) {
	base := mocks.NewMockBackend("m")
	assert.Equal(t, llm.Backend(base), Middleware(0)(base))
}
