package ratelimit

import (
	"context"

	"resilientagent/pkg/agent/llm"
)

// Middleware returns a middleware function that wraps a backend with rate limiting.
// It reserves the estimated prompt tokens plus MaxTokens before each call.
func Middleware(limiter Limiter, estimator TokenEstimator) llm.Middleware {
	if estimator == nil {
		estimator = NewDefaultTokenEstimator()
	}

	return func(next llm.Backend) llm.Backend {
		return llm.WrapBackend(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				totalTokens := estimator.EstimatePrompt(req) + req.MaxTokens

				release, err := limiter.Acquire(ctx, totalTokens)
				if err != nil {
					return llm.CompletionResponse{}, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}
				defer release()

				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}
}
