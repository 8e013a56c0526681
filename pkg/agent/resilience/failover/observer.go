package failover

import (
	"context"
	"time"

	"resilientagent/pkg/agent/llmerrors"
	"resilientagent/pkg/agent/resilience/classify"
	"resilientagent/pkg/logx"
)

// EventKind identifies a transition in the invocation state machine.
type EventKind string

// Event kinds.
const (
	EventPrimaryAttempt EventKind = "primary_attempt"
	EventRetry          EventKind = "retry"
	EventFailover       EventKind = "failover"
	EventOutcome        EventKind = "outcome"
)

// Outcome statuses reported on EventOutcome.
const (
	StatusSuccess         = "success"
	StatusFatal           = "fatal"
	StatusCombinedFailure = "combined_failure"
	StatusCanceled        = "canceled"
)

// Event is emitted at every state transition of Invoke.
//
//nolint:govet // fieldalignment: grouped by meaning
type Event struct {
	Kind            EventKind
	Primary         string // Primary model name
	Secondary       string // Secondary model name
	Attempt         int    // Primary attempt number (1-indexed) for PrimaryAttempt and Retry
	Code            llmerrors.ErrorCode
	Classification  classify.Classification
	Wait            time.Duration // Backoff chosen before a retry
	Err             error         // Triggering error, or the final error on Outcome
	Status          string        // Outcome status
	PrimaryAttempts int           // Outcome only
	UsedSecondary   bool          // Outcome only
	Started         time.Time     // Outcome only
	Duration        time.Duration // Outcome only
}

// Observer receives invocation events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans events out to several observers in order.
type Observers []Observer

// Observe forwards ev to every non-nil observer.
func (o Observers) Observe(ctx context.Context, ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, ev)
		}
	}
}

type noopObserver struct{}

func (noopObserver) Observe(context.Context, Event) {}

// LogObserver writes invocation events through a logx logger.
type LogObserver struct {
	logger *logx.Logger
}

// NewLogObserver creates an observer logging under the given logger.
// A nil logger uses the "invoker" component.
func NewLogObserver(logger *logx.Logger) *LogObserver {
	if logger == nil {
		logger = logx.NewLogger("invoker")
	}
	return &LogObserver{logger: logger}
}

// Observe implements Observer.
func (l *LogObserver) Observe(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventPrimaryAttempt:
		logx.Debug(ctx, l.logger.GetComponent(), "calling primary %s (attempt %d)", ev.Primary, ev.Attempt)
	case EventRetry:
		l.logger.Warn("primary %s failed with %s on attempt %d, retrying in %v", ev.Primary, ev.Code, ev.Attempt, ev.Wait)
	case EventFailover:
		l.logger.Warn("switching to secondary %s after primary %s failed with %s (%s)",
			ev.Secondary, ev.Primary, ev.Code, ev.Classification)
	case EventOutcome:
		switch ev.Status {
		case StatusSuccess:
			if ev.UsedSecondary {
				l.logger.Info("invocation answered by secondary %s in %v", ev.Secondary, ev.Duration)
			} else {
				l.logger.Info("invocation answered by primary %s after %d attempt(s) in %v", ev.Primary, ev.PrimaryAttempts, ev.Duration)
			}
		case StatusCanceled:
			l.logger.Warn("invocation canceled after %v: %v", ev.Duration, ev.Err)
		default:
			l.logger.Error("invocation failed (%s) after %v: %v", ev.Status, ev.Duration, ev.Err)
		}
	}
}
