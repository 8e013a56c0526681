// Package metrics records backend and invoker metrics.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording backend and invoker metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed backend call.
	ObserveRequest(
		model string,
		promptTokens, completionTokens int,
		success bool,
		errorCode string,
		duration time.Duration,
	)

	// IncRetry counts a primary retry triggered by errorCode.
	IncRetry(model, errorCode string)

	// IncFailover counts a switch to the secondary backend for reason.
	IncFailover(reason string)

	// IncOutcome counts a finished invocation by outcome status.
	IncOutcome(outcome string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_ string, _, _ int, _ bool, _ string, _ time.Duration) {}

// IncRetry does nothing in the no-op recorder.
func (n *NoopRecorder) IncRetry(_, _ string) {}

// IncFailover does nothing in the no-op recorder.
func (n *NoopRecorder) IncFailover(_ string) {}

// IncOutcome does nothing in the no-op recorder.
func (n *NoopRecorder) IncOutcome(_ string) {}

// Tee fans every observation out to several recorders.
type Tee []Recorder

// ObserveRequest forwards to every recorder.
func (t Tee) ObserveRequest(model string, promptTokens, completionTokens int, success bool, errorCode string, duration time.Duration) {
	for _, r := range t {
		r.ObserveRequest(model, promptTokens, completionTokens, success, errorCode, duration)
	}
}

// IncRetry forwards to every recorder.
func (t Tee) IncRetry(model, errorCode string) {
	for _, r := range t {
		r.IncRetry(model, errorCode)
	}
}

// IncFailover forwards to every recorder.
func (t Tee) IncFailover(reason string) {
	for _, r := range t {
		r.IncFailover(reason)
	}
}

// IncOutcome forwards to every recorder.
func (t Tee) IncOutcome(outcome string) {
	for _, r := range t {
		r.IncOutcome(outcome)
	}
}
