// Package timeout provides per-call deadline middleware for backends.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
)

// Middleware returns a middleware function that bounds each backend call by duration.
// When the per-call deadline fires while the caller's context is still live, the
// failure is reported as ModelTimeoutException. A non-positive duration disables it.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.Backend) llm.Backend {
		if duration <= 0 {
			return next
		}
		return llm.WrapBackend(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				resp, err := next.Complete(timeoutCtx, req)
				if err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
					return resp, llmerrors.NewErrorWithCause(llmerrors.CodeModelTimeout, err,
						fmt.Sprintf("%s did not answer within %v", next.GetModelName(), duration))
				}
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
