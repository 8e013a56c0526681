package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
	"resilientagent/pkg/logx"
	"resilientagent/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor prefers provider-reported usage and falls back to
// TikToken estimates when the provider reported none.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}

	var prompt strings.Builder
	for i := range req.Messages {
		prompt.WriteString(req.Messages[i].Content)
		prompt.WriteString("\n")
	}
	promptTokens = utils.CountTokensSimple(prompt.String())
	completionTokens = utils.CountTokensSimple(resp.Content)

	return promptTokens, completionTokens
}

// Middleware returns a middleware function that records metrics for backend calls.
// It tracks request latency, token usage, success/failure rates, and error codes.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.Backend) llm.Backend {
		return llm.WrapBackend(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				errorCode := ""
				if err != nil {
					errorCode = errorLabel(err)
				}

				recorder.ObserveRequest(model, promptTokens, completionTokens, err == nil, errorCode, duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError + ":" + errorCode
					}
					logger.Info("Backend request: model=%s tokens=%d+%d=%d status=%s duration=%dms",
						model, promptTokens, completionTokens, promptTokens+completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// errorLabel returns the metric label for a failed call.
func errorLabel(err error) string {
	if code := llmerrors.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "untyped"
	}
}
