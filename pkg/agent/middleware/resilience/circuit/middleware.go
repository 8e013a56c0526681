package circuit

import (
	"context"
	"errors"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
	"resilientagent/pkg/agent/resilience/classify"
)

// Middleware returns a middleware function that wraps a backend with circuit breaker logic.
// While the circuit is OPEN, calls are rejected with CircuitOpenException without
// reaching the backend, which the invoker treats as a reason to fail over.
//
// Only errors the classifier does not consider Fatal count against the backend.
// A nil classifier counts every error. Caller cancellations are never counted.
func Middleware(breaker Breaker, classifier *classify.Classifier) llm.Middleware {
	return func(next llm.Backend) llm.Backend {
		return llm.WrapBackend(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					cause := &Error{Backend: next.GetModelName(), State: breaker.GetState()}
					return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.CodeCircuitOpen, cause, cause.Error())
				}

				resp, err := next.Complete(ctx, req)

				if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}
				breaker.Record(OutcomeOf(classifier, err))

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// OutcomeOf maps a call result to a breaker outcome. Fatal errors are Neutral:
// they fail identically on every backend, so they say nothing about this one.
func OutcomeOf(classifier *classify.Classifier, err error) Outcome {
	if err == nil {
		return Success
	}
	if classifier == nil {
		return Failure
	}
	if cl, _ := classifier.ClassifyError(err); cl == classify.Fatal {
		return Neutral
	}
	return Failure
}
