package llm

import (
	"context"
)

// Middleware represents a function that wraps a Backend with additional behavior.
// Middleware functions are composed using Chain() to create a processing pipeline.
type Middleware func(next Backend) Backend

// backendFunc is an adapter that allows plain functions to implement the Backend interface.
type backendFunc struct {
	complete  func(context.Context, CompletionRequest) (CompletionResponse, error)
	modelName func() string
}

func (f backendFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

// GetModelName delegates to the wrapped function.
func (f backendFunc) GetModelName() string {
	return f.modelName()
}

// WrapBackend creates a new Backend using the provided function implementations.
// This is a helper for middleware implementations that need to wrap behavior.
func WrapBackend(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	modelName func() string,
) Backend {
	return backendFunc{
		complete:  complete,
		modelName: modelName,
	}
}

// Chain composes multiple middlewares around a base Backend.
// Middlewares are applied in order, with earlier middlewares being outermost.
//
// For example: Chain(backend, mw1, mw2, mw3) creates the call stack:
//
//	mw1 -> mw2 -> mw3 -> backend
func Chain(base Backend, middlewares ...Middleware) Backend {
	backend := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		backend = middlewares[i](backend)
	}
	return backend
}
