// Package validation checks requests before and responses after a backend call.
package validation

import (
	"context"
	"strings"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
	"resilientagent/pkg/logx"
)

// maxLoggedPromptChars bounds how much of a prompt is logged for an empty response.
const maxLoggedPromptChars = 2000

// Middleware returns a middleware function that rejects malformed requests with
// ValidationException before they reach the backend, and turns responses with
// neither content nor tool calls into ModelErrorException.
func Middleware(logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("validation")
	}

	return func(next llm.Backend) llm.Backend {
		return llm.WrapBackend(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if err := req.Validate(); err != nil {
					return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.CodeValidation, err, err.Error())
				}

				resp, err := next.Complete(ctx, req)
				if err != nil {
					//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
					return resp, err
				}

				if isEmptyResponse(resp) {
					logEmptyResponse(logger, next.GetModelName(), req, resp)
					return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.CodeModelError,
						"received empty response: no content and no tool calls")
				}
				return resp, nil
			},
			next.GetModelName,
		)
	}
}

// isEmptyResponse reports whether resp carries nothing usable.
func isEmptyResponse(resp llm.CompletionResponse) bool {
	return len(resp.ToolCalls) == 0 && strings.TrimSpace(resp.Content) == ""
}

//nolint:gocritic // request passed by value to match the Backend port
func logEmptyResponse(logger *logx.Logger, model string, req llm.CompletionRequest, resp llm.CompletionResponse) {
	logger.Warn("Empty response from %s (stop_reason=%q, messages=%d, tools=%d)",
		model, resp.StopReason, len(req.Messages), len(req.Tools))

	if !logx.IsDebugEnabledForDomain(logger.GetComponent()) {
		return
	}
	for i := range req.Messages {
		msg := &req.Messages[i]
		logger.Debug("  [%d] %s: %s", i, msg.Role, llmerrors.SanitizePrompt(msg.Content, maxLoggedPromptChars))
	}
}
