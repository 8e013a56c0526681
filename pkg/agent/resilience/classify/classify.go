// Package classify maps backend error codes to the action the invoker takes.
package classify

import (
	"resilientagent/pkg/agent/llmerrors"
)

// Classification determines how to handle a failed backend call.
type Classification int

const (
	// Fatal errors are returned to the caller immediately.
	Fatal Classification = iota
	// Retryable errors are repeated against the same backend with backoff.
	Retryable
	// Failover errors skip remaining retries and move to the secondary backend.
	Failover
)

// String returns the label used in logs and metrics.
func (c Classification) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case Failover:
		return "failover"
	case Fatal:
		return "fatal"
	default:
		return "invalid"
	}
}

// Table maps error codes to classifications. Codes absent from the table are Fatal.
type Table map[llmerrors.ErrorCode]Classification

// DefaultTable returns a fresh copy of the standard policy.
func DefaultTable() Table {
	return Table{
		llmerrors.CodeThrottling:         Retryable,
		llmerrors.CodeServiceUnavailable: Retryable,
		llmerrors.CodeInternalFailure:    Retryable,
		llmerrors.CodeServiceException:   Retryable,
		llmerrors.CodeRequestTimeout:     Retryable,

		llmerrors.CodeModelNotReady:        Failover,
		llmerrors.CodeModelStreamError:     Failover,
		llmerrors.CodeModelTimeout:         Failover,
		llmerrors.CodeModelError:           Failover,
		llmerrors.CodeServiceQuotaExceeded: Failover,
		llmerrors.CodeCircuitOpen:          Failover,

		llmerrors.CodeAccessDenied:     Fatal,
		llmerrors.CodeValidation:       Fatal,
		llmerrors.CodeResourceNotFound: Fatal,
	}
}

// Classifier is an immutable code-to-classification lookup. It is safe for
// concurrent use.
type Classifier struct {
	table Table
}

// New creates a classifier from a copy of table. A nil table yields a
// classifier that treats every code as Fatal.
func New(table Table) *Classifier {
	copied := make(Table, len(table))
	for code, c := range table {
		copied[code] = c
	}
	return &Classifier{table: copied}
}

// Default creates a classifier using DefaultTable.
func Default() *Classifier {
	return New(DefaultTable())
}

// Classify returns the classification for code. Unknown and empty codes are Fatal.
func (c *Classifier) Classify(code llmerrors.ErrorCode) Classification {
	if cl, ok := c.table[code]; ok {
		return cl
	}
	return Fatal
}

// ClassifyError classifies the code carried by err. Errors without a code are Fatal.
func (c *Classifier) ClassifyError(err error) (Classification, llmerrors.ErrorCode) {
	code := llmerrors.CodeOf(err)
	return c.Classify(code), code
}
