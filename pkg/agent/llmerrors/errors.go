// Package llmerrors defines the coded error every backend adapter returns.
// Codes are opaque strings; the resilience classifier decides what each one means.
package llmerrors

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCode is a provider-neutral failure code carried on backend errors.
type ErrorCode string

// Retryable codes: transient conditions worth repeating against the same backend.
const (
	CodeThrottling         ErrorCode = "ThrottlingException"
	CodeServiceUnavailable ErrorCode = "ServiceUnavailable"
	CodeInternalFailure    ErrorCode = "InternalFailure"
	CodeServiceException   ErrorCode = "ServiceException"
	CodeRequestTimeout     ErrorCode = "RequestTimeout"
)

// Failover codes: the model itself is unhealthy, so another backend should be tried.
const (
	CodeModelNotReady        ErrorCode = "ModelNotReadyException"
	CodeModelStreamError     ErrorCode = "ModelStreamErrorException"
	CodeModelTimeout         ErrorCode = "ModelTimeoutException"
	CodeModelError           ErrorCode = "ModelErrorException"
	CodeServiceQuotaExceeded ErrorCode = "ServiceQuotaExceededException"
	CodeCircuitOpen          ErrorCode = "CircuitOpenException"
)

// Codes with no special handling. They end up Fatal.
const (
	CodeAccessDenied     ErrorCode = "AccessDeniedException"
	CodeValidation       ErrorCode = "ValidationException"
	CodeResourceNotFound ErrorCode = "ResourceNotFoundException"
	CodeUnknown          ErrorCode = "UnknownError"
)

// Error is a backend failure tagged with an error code.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	Code       ErrorCode // Provider-neutral error code
	StatusCode int       // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Code, e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if an error carries a specific code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the error code from err. Errors without a code yield the
// empty code, which the classifier treats as Fatal.
func CodeOf(err error) ErrorCode {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Code
	}
	return ""
}

// NewError creates a new coded LLM error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithStatus creates a new coded LLM error with HTTP status.
func NewErrorWithStatus(code ErrorCode, statusCode int, message string) *Error {
	return &Error{
		Code:       code,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewErrorWithCause creates a new coded LLM error wrapping another error.
func NewErrorWithCause(code ErrorCode, cause error, message string) *Error {
	return &Error{
		Code:    code,
		Err:     cause,
		Message: message,
	}
}

// CodeForStatus maps an HTTP status returned by a provider to an error code.
// Adapters refine this with provider-specific signals before falling back to it.
func CodeForStatus(status int) ErrorCode {
	switch status {
	case http.StatusTooManyRequests:
		return CodeThrottling
	case http.StatusInternalServerError:
		return CodeInternalFailure
	case http.StatusBadGateway:
		return CodeServiceException
	case http.StatusServiceUnavailable:
		return CodeServiceUnavailable
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return CodeRequestTimeout
	case 529: // Anthropic "overloaded"
		return CodeModelNotReady
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeAccessDenied
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusNotFound:
		return CodeResourceNotFound
	default:
		return CodeUnknown
	}
}

// FromTransport maps failures that happen before a provider answers: context
// expiry and network errors. ok is false for anything else.
func FromTransport(err error, provider string) (*Error, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewErrorWithCause(CodeRequestTimeout, err, provider+" request timed out"), true
	case errors.Is(err, context.Canceled):
		return NewErrorWithCause(CodeUnknown, err, provider+" request canceled"), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewErrorWithCause(CodeServiceUnavailable, err, provider+" unreachable"), true
	}
	return nil, false
}

// FromStatus builds an error for an HTTP status returned by provider.
func FromStatus(status int, cause error, provider string) *Error {
	return &Error{
		Code:       CodeForStatus(status),
		Err:        cause,
		StatusCode: status,
		Message:    fmt.Sprintf("%s returned HTTP %d", provider, status),
	}
}

// SanitizePrompt creates a safe representation of a prompt for logging.
// For large prompts, it returns first/last portions plus a hash of the full content.
func SanitizePrompt(prompt string, maxChars int) string {
	if len(prompt) <= maxChars {
		return prompt
	}

	halfMax := maxChars / 2
	if halfMax < 100 {
		halfMax = 100
	}
	if 2*halfMax >= len(prompt) {
		return prompt
	}

	first := prompt[:halfMax]
	last := prompt[len(prompt)-halfMax:]

	hash := sha256.Sum256([]byte(prompt))
	hashStr := fmt.Sprintf("%x", hash)[:16]

	return fmt.Sprintf("%s...[%d chars, hash:%s]...%s",
		first, len(prompt), hashStr, last)
}
