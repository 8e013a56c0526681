package metrics

import (
	"context"

	"resilientagent/pkg/agent/resilience/failover"
)

// invokerObserver feeds invoker transitions into a Recorder.
type invokerObserver struct {
	recorder Recorder
}

// NewObserver adapts invoker events to recorder counters.
func NewObserver(recorder Recorder) failover.Observer {
	if recorder == nil {
		recorder = Nop()
	}
	return &invokerObserver{recorder: recorder}
}

func (o *invokerObserver) Observe(_ context.Context, ev failover.Event) {
	switch ev.Kind {
	case failover.EventRetry:
		o.recorder.IncRetry(ev.Primary, string(ev.Code))
	case failover.EventFailover:
		reason := string(ev.Code)
		if reason == "" {
			reason = "untyped"
		}
		o.recorder.IncFailover(reason)
	case failover.EventOutcome:
		outcome := ev.Status
		if ev.Status == failover.StatusSuccess && ev.UsedSecondary {
			outcome = "success_secondary"
		}
		o.recorder.IncOutcome(outcome)
	}
}
