// Package failover implements the resilient invoker: retry the primary
// backend with backoff, then fall back once to a secondary backend.
package failover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/resilience/backoff"
	"resilientagent/pkg/agent/resilience/classify"
)

// DefaultMaxRetries is the number of extra primary attempts for retryable errors.
const DefaultMaxRetries = 3

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config configures an Invoker. Zero values select defaults except
// MaxRetries, where zero means no retries.
type Config struct {
	Backoff    *backoff.Policy      // nil uses backoff.DefaultPolicy()
	Classifier *classify.Classifier // nil uses classify.Default()
	Observer   Observer             // nil discards events
	Sleep      SleepFunc            // nil uses a context-aware timer
	MaxRetries int                  // Extra primary attempts allowed for retryable errors
}

// Result is a successful invocation.
type Result struct {
	Response        llm.CompletionResponse
	Backend         string // Model name of the backend that answered
	PrimaryAttempts int    // Calls made to the primary
	UsedSecondary   bool
}

// Invoker routes a request across a primary and a secondary backend.
// It is immutable after New and safe for concurrent use.
type Invoker struct {
	primary    llm.Backend
	secondary  llm.Backend
	backoff    *backoff.Policy
	classifier *classify.Classifier
	observer   Observer
	sleep      SleepFunc
	maxRetries int
}

// New creates an invoker over primary and secondary.
func New(primary, secondary llm.Backend, cfg Config) (*Invoker, error) {
	if primary == nil {
		return nil, errors.New("primary backend is required")
	}
	if secondary == nil {
		return nil, errors.New("secondary backend is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", cfg.MaxRetries)
	}

	inv := &Invoker{
		primary:    primary,
		secondary:  secondary,
		backoff:    cfg.Backoff,
		classifier: cfg.Classifier,
		observer:   cfg.Observer,
		sleep:      cfg.Sleep,
		maxRetries: cfg.MaxRetries,
	}
	if inv.backoff == nil {
		inv.backoff = backoff.DefaultPolicy()
	} else {
		copied := *inv.backoff
		inv.backoff = &copied
	}
	if err := inv.backoff.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backoff policy: %w", err)
	}
	if inv.classifier == nil {
		inv.classifier = classify.Default()
	}
	if inv.observer == nil {
		inv.observer = noopObserver{}
	}
	if inv.sleep == nil {
		inv.sleep = sleepContext
	}
	return inv, nil
}

// Primary returns the primary backend.
func (inv *Invoker) Primary() llm.Backend { return inv.primary }

// Secondary returns the secondary backend.
func (inv *Invoker) Secondary() llm.Backend { return inv.secondary }

// Invoke sends req to the primary backend, retrying retryable failures with
// backoff up to MaxRetries times, and falls back once to the secondary when
// retries run out or the failure calls for failover. Fatal failures return
// immediately. The returned error is a *Failure, a *CombinedFailure or wraps
// ErrCanceled.
func (inv *Invoker) Invoke(ctx context.Context, req llm.CompletionRequest) (Result, error) {
	run := &invocation{inv: inv, ctx: ctx, started: time.Now()}

	if err := ctx.Err(); err != nil {
		return run.cancel(err)
	}

	result, primaryFailure, err := run.callPrimary(req)
	if primaryFailure == nil {
		return result, err
	}

	inv.observer.Observe(ctx, run.event(Event{
		Kind:           EventFailover,
		Code:           primaryFailure.Code,
		Classification: primaryFailure.Classification,
		Err:            primaryFailure.Err,
	}))

	resp, err := inv.secondary.Complete(ctx, req)
	if err == nil {
		run.usedSecondary = true
		return run.succeed(resp, inv.secondary.GetModelName())
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return run.cancel(ctxErr)
	}

	cl, code := inv.classifier.ClassifyError(err)
	combined := &CombinedFailure{
		Primary: primaryFailure,
		Secondary: &Failure{
			Err:            err,
			Backend:        inv.secondary.GetModelName(),
			Code:           code,
			Classification: cl,
		},
	}
	return run.fail(StatusCombinedFailure, combined)
}

// invocation holds the per-call state of one Invoke.
type invocation struct {
	inv           *Invoker
	ctx           context.Context //nolint:containedctx // scoped to a single Invoke
	started       time.Time
	attempts      int
	usedSecondary bool
}

// callPrimary runs the retry loop. A non-nil failure means the secondary
// should be tried; otherwise the invocation is finished.
func (r *invocation) callPrimary(req llm.CompletionRequest) (Result, *Failure, error) {
	inv := r.inv
	for {
		r.attempts++
		inv.observer.Observe(r.ctx, r.event(Event{Kind: EventPrimaryAttempt, Attempt: r.attempts}))

		resp, err := inv.primary.Complete(r.ctx, req)
		if err == nil {
			result, err := r.succeed(resp, inv.primary.GetModelName())
			return result, nil, err
		}
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			result, err := r.cancel(ctxErr)
			return result, nil, err
		}

		cl, code := inv.classifier.ClassifyError(err)
		failure := &Failure{
			Err:            err,
			Backend:        inv.primary.GetModelName(),
			Code:           code,
			Classification: cl,
		}

		switch cl {
		case classify.Fatal:
			result, err := r.fail(StatusFatal, failure)
			return result, nil, err
		case classify.Retryable:
			retry := r.attempts // retries performed so far + 1
			if retry > inv.maxRetries {
				return Result{}, failure, nil
			}
			wait := inv.backoff.WaitFor(retry)
			inv.observer.Observe(r.ctx, r.event(Event{
				Kind:           EventRetry,
				Attempt:        r.attempts,
				Code:           code,
				Classification: cl,
				Wait:           wait,
				Err:            err,
			}))
			if sleepErr := inv.sleep(r.ctx, wait); sleepErr != nil {
				result, err := r.cancel(sleepErr)
				return result, nil, err
			}
		default:
			return Result{}, failure, nil
		}
	}
}

func (r *invocation) event(ev Event) Event {
	ev.Primary = r.inv.primary.GetModelName()
	ev.Secondary = r.inv.secondary.GetModelName()
	return ev
}

func (r *invocation) outcome(status string, err error, ev Event) {
	ev.Kind = EventOutcome
	ev.Status = status
	ev.Err = err
	ev.PrimaryAttempts = r.attempts
	ev.UsedSecondary = r.usedSecondary
	ev.Started = r.started
	ev.Duration = time.Since(r.started)
	r.inv.observer.Observe(r.ctx, r.event(ev))
}

func (r *invocation) succeed(resp llm.CompletionResponse, backend string) (Result, error) {
	result := Result{
		Response:        resp,
		Backend:         backend,
		PrimaryAttempts: r.attempts,
		UsedSecondary:   r.usedSecondary,
	}
	r.outcome(StatusSuccess, nil, Event{})
	return result, nil
}

// fail reports the code and classification of the first failure in err,
// which for a CombinedFailure is the primary's.
func (r *invocation) fail(status string, err error) (Result, error) {
	var ev Event
	var f *Failure
	if errors.As(err, &f) {
		ev.Code = f.Code
		ev.Classification = f.Classification
	}
	r.outcome(status, err, ev)
	return Result{}, err
}

func (r *invocation) cancel(cause error) (Result, error) {
	err := canceled(cause)
	r.outcome(StatusCanceled, err, Event{})
	return Result{}, err
}

// sleepContext waits for d unless ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
