package persistence

import "time"

// Invocation is one ledger row: the outcome of a single resilient invocation.
//
//nolint:govet // struct alignment optimization not critical for this type
type Invocation struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	ID              string        `json:"id"`
	RequestID       string        `json:"request_id,omitempty"`
	PrimaryModel    string        `json:"primary_model"`
	SecondaryModel  string        `json:"secondary_model"`
	AnsweredBy      string        `json:"answered_by,omitempty"`
	Status          string        `json:"status"`
	ErrorCode       string        `json:"error_code,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	PrimaryAttempts int           `json:"primary_attempts"`
	UsedSecondary   bool          `json:"used_secondary"`
}

// StatusCount is the number of ledger rows with a given status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}
