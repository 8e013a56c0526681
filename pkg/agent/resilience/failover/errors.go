package failover

import (
	"errors"
	"fmt"

	"resilientagent/pkg/agent/llmerrors"
	"resilientagent/pkg/agent/resilience/classify"
)

// ErrCanceled is returned when the caller's context ends during an invocation.
// The returned error also wraps the context error.
var ErrCanceled = errors.New("invocation canceled")

// Failure describes one backend's final failure within an invocation.
type Failure struct {
	Err            error                   // Underlying backend error
	Backend        string                  // Model name of the failing backend
	Code           llmerrors.ErrorCode     // Code carried by Err, empty if untyped
	Classification classify.Classification // How the invoker treated the failure
}

// Error implements the error interface.
func (f *Failure) Error() string {
	code := f.Code
	if code == "" {
		code = "untyped"
	}
	return fmt.Sprintf("backend %s failed (%s, %s): %v", f.Backend, code, f.Classification, f.Err)
}

// Unwrap returns the underlying backend error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// CombinedFailure is returned when the primary failed (after retries, or with
// a failover error) and the secondary failed too.
type CombinedFailure struct {
	Primary   *Failure
	Secondary *Failure
}

// Error implements the error interface.
func (c *CombinedFailure) Error() string {
	return fmt.Sprintf("both backends failed: primary: %v; secondary: %v", c.Primary, c.Secondary)
}

// Unwrap exposes both failures to errors.Is and errors.As.
func (c *CombinedFailure) Unwrap() []error {
	return []error{c.Primary, c.Secondary}
}

func canceled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}
