package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{"with message", NewError(CodeThrottling, "slow down"), "LLM error (ThrottlingException): slow down"},
		{"with cause", &Error{Code: CodeServiceUnavailable, Err: errors.New("dial tcp")}, "LLM error (ServiceUnavailable): dial tcp"},
		{"status only", &Error{Code: CodeInternalFailure, StatusCode: 500}, "LLM error (InternalFailure): status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestCodeOfThroughWrapping(t *testing.T) {
	base := NewErrorWithStatus(CodeModelNotReady, 529, "overloaded")
	wrapped := fmt.Errorf("anthropic call: %w", base)

	assert.Equal(t, CodeModelNotReady, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeModelNotReady))
	assert.False(t, Is(wrapped, CodeThrottling))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("boom")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewErrorWithCause(CodeServiceUnavailable, cause, "network failure")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "LLM error (ServiceUnavailable): network failure", err.Error())
}

func TestCodeForStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorCode
	}{
		{429, CodeThrottling},
		{500, CodeInternalFailure},
		{502, CodeServiceException},
		{503, CodeServiceUnavailable},
		{504, CodeRequestTimeout},
		{408, CodeRequestTimeout},
		{529, CodeModelNotReady},
		{401, CodeAccessDenied},
		{403, CodeAccessDenied},
		{400, CodeValidation},
		{413, CodeValidation},
		{422, CodeValidation},
		{404, CodeResourceNotFound},
		{418, CodeUnknown},
		{200, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, CodeForStatus(tt.status))
		})
	}
}

func TestSanitizePrompt(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, SanitizePrompt(short, 50))

	long := strings.Repeat("a", 150) + strings.Repeat("b", 150)
	out := SanitizePrompt(long, 50)
	assert.Contains(t, out, "[300 chars, hash:")
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 100)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 100)))
}

func TestFromTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		ok   bool
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), CodeRequestTimeout, true},
		{"canceled", context.Canceled, CodeUnknown, true},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, CodeServiceUnavailable, true},
		{"other", errors.New("boom"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromTransport(tt.err, "anthropic")
			require.Equal(t, tt.ok, ok)
			if !ok {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.code, got.Code)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestFromStatus(t *testing.T) {
	cause := errors.New("slow down")
	err := FromStatus(429, cause, "openai")

	assert.Equal(t, CodeThrottling, err.Code)
	assert.Equal(t, 429, err.StatusCode)
	assert.Equal(t, "LLM error (ThrottlingException): openai returned HTTP 429", err.Error())
	assert.ErrorIs(t, err, cause)
}
