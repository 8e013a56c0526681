package llm

import (
	"context"
	"fmt"
	"testing"
)

// stubBackend is a minimal Backend for chain tests.
type stubBackend struct {
	completeFunc func(context.Context, CompletionRequest) (CompletionResponse, error)
	model        string
}

func (s *stubBackend) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if s.completeFunc == nil {
		return CompletionResponse{}, nil
	}
	return s.completeFunc(ctx, req)
}

func (s *stubBackend) GetModelName() string {
	return s.model
}

// decorate returns a middleware that transforms successful response content.
func decorate(transform func(string) string) Middleware {
	return func(next Backend) Backend {
		return WrapBackend(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err
				}
				resp.Content = transform(resp.Content)
				return resp, nil
			},
			next.GetModelName,
		)
	}
}

// TestWrapBackend tests the WrapBackend helper function.
func TestWrapBackend(t *testing.T) {
	completeCalled := false

	backend := WrapBackend(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			completeCalled = true
			return CompletionResponse{Content: "wrapped"}, nil
		},
		func() string { return "wrapped-model" },
	)

	resp, err := backend.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("test")}))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !completeCalled {
		t.Error("Complete function was not called")
	}
	if resp.Content != "wrapped" {
		t.Errorf("expected 'wrapped', got %q", resp.Content)
	}
	if backend.GetModelName() != "wrapped-model" {
		t.Errorf("expected 'wrapped-model', got %q", backend.GetModelName())
	}
}

// TestChainMultipleMiddlewares tests that earlier middlewares are outermost.
func TestChainMultipleMiddlewares(t *testing.T) {
	base := &stubBackend{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: "base"}, nil
		},
	}

	backend := Chain(base,
		decorate(func(s string) string { return "mw1:" + s }),
		decorate(func(s string) string { return s + ":mw2" }),
		decorate(func(s string) string { return "[" + s + "]" }),
	)

	resp, err := backend.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("test")}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// base="base" -> mw3="[base]" -> mw2="[base]:mw2" -> mw1="mw1:[base]:mw2"
	if resp.Content != "mw1:[base]:mw2" {
		t.Errorf("expected %q, got %q", "mw1:[base]:mw2", resp.Content)
	}
}

// TestChainErrorHandling tests middleware error propagation.
func TestChainErrorHandling(t *testing.T) {
	base := &stubBackend{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{}, fmt.Errorf("base error")
		},
	}

	wrapErrors := func(next Backend) Backend {
		return WrapBackend(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, fmt.Errorf("middleware wrapper: %w", err)
				}
				return resp, nil
			},
			next.GetModelName,
		)
	}

	_, err := Chain(base, wrapErrors).Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("test")}))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "middleware wrapper: base error" {
		t.Errorf("expected 'middleware wrapper: base error', got %q", err.Error())
	}
}

// TestChainShortCircuit tests middleware that short-circuits the chain.
func TestChainShortCircuit(t *testing.T) {
	baseCalled := false
	base := &stubBackend{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			baseCalled = true
			return CompletionResponse{Content: "base"}, nil
		},
	}

	shortCircuit := func(next Backend) Backend {
		return WrapBackend(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				if len(req.Messages) > 0 && req.Messages[0].Content == "skip" {
					return CompletionResponse{Content: "short-circuited"}, nil
				}
				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}

	backend := Chain(base, shortCircuit)

	resp, err := backend.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("skip")}))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if resp.Content != "short-circuited" {
		t.Errorf("expected 'short-circuited', got %q", resp.Content)
	}
	if baseCalled {
		t.Error("base should not have been called (short-circuited)")
	}

	resp, err = backend.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("normal")}))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if resp.Content != "base" || !baseCalled {
		t.Errorf("expected base to answer, got %q (called=%v)", resp.Content, baseCalled)
	}
}

// TestChainModelNamePropagation tests GetModelName through the chain.
func TestChainModelNamePropagation(t *testing.T) {
	base := &stubBackend{model: "base-model-v1"}
	identity := decorate(func(s string) string { return s })

	backend := Chain(base, identity, identity)
	if backend.GetModelName() != "base-model-v1" {
		t.Errorf("expected 'base-model-v1', got %q", backend.GetModelName())
	}
}

// TestChainNoMiddlewares tests chain with no middlewares.
func TestChainNoMiddlewares(t *testing.T) {
	base := &stubBackend{model: "solo"}
	if Chain(base) != Backend(base) {
		t.Error("expected Chain with no middlewares to return the base backend")
	}
}
