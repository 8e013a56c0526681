// Package ollama provides the Ollama backend.
// Ollama is a local LLM runtime that allows running open-source models.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
)

const (
	providerName = "ollama"

	// DefaultHost is used when no host URL is configured.
	DefaultHost = "http://localhost:11434"
)

// Client wraps the Ollama API client to implement llm.Backend.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewOllamaClientWithModel creates a new Ollama backend for model.
// hostURL should be the Ollama server URL (e.g., "http://localhost:11434").
func NewOllamaClientWithModel(hostURL, model string) llm.Backend {
	if hostURL == "" {
		hostURL = DefaultHost
	}
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		parsedURL, _ = url.Parse(DefaultHost)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		hostURL: hostURL,
	}
}

// Complete implements llm.Backend.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessagesToOllama(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.CodeValidation, err, fmt.Sprintf("message conversion error: %v", err))
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
	if len(in.Tools) > 0 && in.ToolChoice != "none" {
		tools, convErr := convertToolsToOllama(in.Tools)
		if convErr != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.CodeValidation, convErr, "tool conversion error")
		}
		req.Tools = tools
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	result := llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: getStopReason(&response),
		Usage: llm.Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}
	if len(response.Message.ToolCalls) > 0 {
		result.ToolCalls, err = convertToolCallsFromOllama(response.Message.ToolCalls)
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.CodeModelError, err, "failed to decode tool call arguments")
		}
	}

	return result, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// convertMessagesToOllama converts our message format to Ollama's Message format.
func convertMessagesToOllama(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	result := make([]api.Message, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		result = append(result, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return result, nil
}

// convertToolsToOllama converts our tool definitions to Ollama's Tool format.
// The definitions go through their JSON schema form, which is what Ollama's
// tool types decode from.
func convertToolsToOllama(toolDefs []llm.ToolDefinition) (api.Tools, error) {
	schemas := make([]map[string]any, len(toolDefs))
	for i := range toolDefs {
		td := &toolDefs[i]
		properties := make(map[string]any, len(td.InputSchema.Properties))
		for name := range td.InputSchema.Properties {
			prop := td.InputSchema.Properties[name]
			properties[name] = propertySchema(&prop)
		}
		schemaType := td.InputSchema.Type
		if schemaType == "" {
			schemaType = "object"
		}
		schemas[i] = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        td.Name,
				"description": td.Description,
				"parameters": map[string]any{
					"type":       schemaType,
					"properties": properties,
					"required":   td.InputSchema.Required,
				},
			},
		}
	}

	raw, err := json.Marshal(schemas)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tools: %w", err)
	}
	var tools api.Tools
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, fmt.Errorf("failed to decode tools: %w", err)
	}
	return tools, nil
}

func propertySchema(prop *llm.Property) map[string]any {
	schema := map[string]any{"type": prop.Type}
	if prop.Description != "" {
		schema["description"] = prop.Description
	}
	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}
	if prop.Items != nil {
		schema["items"] = propertySchema(prop.Items)
	}
	if len(prop.Properties) > 0 {
		nested := make(map[string]any, len(prop.Properties))
		for name, child := range prop.Properties {
			if child != nil {
				nested[name] = propertySchema(child)
			}
		}
		schema["properties"] = nested
	}
	return schema
}

// convertToolCallsFromOllama extracts tool calls from an Ollama response.
func convertToolCallsFromOllama(calls []api.ToolCall) ([]llm.ToolCall, error) {
	result := make([]llm.ToolCall, len(calls))

	for i := range calls {
		call := &calls[i]
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}

		raw, err := json.Marshal(call.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("tool call %s: %w", call.Function.Name, err)
		}
		var params map[string]any
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("tool call %s: %w", call.Function.Name, err)
		}

		result[i] = llm.ToolCall{
			ID:         id,
			Name:       call.Function.Name,
			Parameters: params,
		}
	}

	return result, nil
}

// getStopReason converts Ollama's done_reason to our stop reason format.
func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}

	switch resp.DoneReason {
	case "stop", "":
		if len(resp.Message.ToolCalls) > 0 {
			return "tool_use"
		}
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError maps Ollama errors to error codes. A missing model is a
// deployment problem on this host only, so it is reported as not ready.
func classifyError(err error) *llmerrors.Error {
	if err == nil {
		return nil
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusNotFound && strings.Contains(statusErr.ErrorMessage, "not found") {
			return llmerrors.NewErrorWithCause(llmerrors.CodeModelNotReady, err, fmt.Sprintf("Ollama model not found: %s", statusErr.ErrorMessage))
		}
		return llmerrors.FromStatus(statusErr.StatusCode, err, providerName)
	}
	if coded, ok := llmerrors.FromTransport(err, providerName); ok {
		return coded
	}
	if strings.Contains(err.Error(), "connection refused") {
		return llmerrors.NewErrorWithCause(llmerrors.CodeServiceUnavailable, err, "Ollama server not reachable")
	}
	return llmerrors.NewErrorWithCause(llmerrors.CodeUnknown, err, fmt.Sprintf("Ollama API error: %v", err))
}
