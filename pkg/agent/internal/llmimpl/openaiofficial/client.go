// Package openaiofficial provides the OpenAI backend using the official OpenAI Go package.
package openaiofficial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
)

const providerName = "openai"

// OpenAI error codes that need more than the HTTP status to classify.
const (
	codeInsufficientQuota = "insufficient_quota"
	codeServerOverloaded  = "server_is_overloaded"
)

// OfficialClient wraps the official OpenAI Go client to implement llm.Backend.
//
//nolint:govet // Simple struct, field alignment not critical
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates an OpenAI backend for model. SDK retries
// are disabled so that each Complete is exactly one API call.
func NewOfficialClientWithModel(apiKey, model string, opts ...option.RequestOption) llm.Backend {
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &OfficialClient{
		client: openai.NewClient(all...),
		model:  model,
	}
}

// convertPropertyToSchema recursively converts a Property to OpenAI schema format.
func convertPropertyToSchema(prop *llm.Property) map[string]any {
	schema := map[string]any{
		"type":        prop.Type,
		"description": prop.Description,
	}

	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}

	if prop.Type == "array" && prop.Items != nil {
		schema["items"] = convertPropertyToSchema(prop.Items)
	}

	if prop.Type == "object" && prop.Properties != nil {
		properties := make(map[string]any)
		for name, childProp := range prop.Properties {
			if childProp != nil {
				properties[name] = convertPropertyToSchema(childProp)
			}
		}
		schema["properties"] = properties
	}

	return schema
}

// buildInput flattens the conversation into Responses API instructions and input text.
func buildInput(messages []llm.CompletionMessage) (instructions, input string) {
	var system []string
	var b strings.Builder
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n\n", msg.Content)
		default:
			b.WriteString(msg.Content)
			b.WriteString("\n\n")
		}
	}
	return strings.Join(system, "\n\n"), strings.TrimSpace(b.String())
}

// Complete implements llm.Backend using the Responses API.
//
//nolint:gocritic // 80 bytes is reasonable for interface compliance
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	instructions, input := buildInput(in.Messages)
	if input == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.CodeValidation, "request has no user or assistant content")
	}

	params := responses.ResponseNewParams{
		Model: o.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if in.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(in.MaxTokens))
	}
	if len(in.Tools) > 0 {
		params.Tools = convertTools(in.Tools)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.CodeModelError, "empty response from OpenAI Responses API")
	}

	var toolCalls []llm.ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		funcItem := item.AsFunctionCall()
		var parameters map[string]any
		if funcItem.Arguments != "" {
			if err := json.Unmarshal([]byte(funcItem.Arguments), &parameters); err != nil {
				return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.CodeModelError, err, "failed to parse function call arguments")
			}
		}
		id := funcItem.CallID
		if id == "" {
			id = funcItem.ID
		}
		toolCalls = append(toolCalls, llm.ToolCall{ID: id, Name: funcItem.Name, Parameters: parameters})
	}

	stopReason := "end_turn"
	switch {
	case len(toolCalls) > 0:
		stopReason = "tool_use"
	case resp.Status == "incomplete":
		stopReason = "max_tokens"
	}

	return llm.CompletionResponse{
		Content:    resp.OutputText(),
		ToolCalls:  toolCalls,
		StopReason: stopReason,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

func convertTools(defs []llm.ToolDefinition) []responses.ToolUnionParam {
	tools := make([]responses.ToolUnionParam, len(defs))
	for i := range defs {
		tool := &defs[i]
		properties := make(map[string]any)
		for name := range tool.InputSchema.Properties {
			prop := tool.InputSchema.Properties[name]
			properties[name] = convertPropertyToSchema(&prop)
		}

		tools[i] = responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters: map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   tool.InputSchema.Required,
				},
			},
		}
	}
	return tools
}

// classifyError maps OpenAI SDK errors to error codes. Quota exhaustion is
// reported as 429 by OpenAI but will not clear with a retry.
func classifyError(err error) *llmerrors.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeInsufficientQuota:
			return llmerrors.NewErrorWithCause(llmerrors.CodeServiceQuotaExceeded, err, "OpenAI quota exhausted")
		case codeServerOverloaded:
			return llmerrors.NewErrorWithCause(llmerrors.CodeModelNotReady, err, "OpenAI model overloaded")
		}
		return llmerrors.FromStatus(apiErr.StatusCode, err, providerName)
	}
	if coded, ok := llmerrors.FromTransport(err, providerName); ok {
		return coded
	}
	return llmerrors.NewErrorWithCause(llmerrors.CodeUnknown, err, "unclassified OpenAI error")
}
