// Package backoff computes bounded exponential wait times with jitter.
// A Policy never sleeps; callers decide how to wait.
package backoff

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Source supplies uniformly distributed integers in [0, n).
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Int64N(n int64) int64
}

// globalSource draws from the concurrency-safe math/rand/v2 top-level generator.
type globalSource struct{}

func (globalSource) Int64N(n int64) int64 { return rand.Int64N(n) }

// Default wait bounds.
const (
	DefaultMinWait    = 1 * time.Second
	DefaultMaxWait    = 10 * time.Second
	DefaultMultiplier = 1 * time.Second
)

// Policy describes exponential backoff clamped to [MinWait, MaxWait].
// It is immutable after construction and safe for concurrent use when
// Source is (the default Source is).
type Policy struct {
	Source     Source        // Jitter source; nil uses the global generator
	MinWait    time.Duration // Lower bound on any wait
	MaxWait    time.Duration // Upper bound on any wait
	Multiplier time.Duration // Wait before jitter for the first retry
}

// DefaultPolicy returns the standard 1s..10s policy.
func DefaultPolicy() *Policy {
	return &Policy{
		MinWait:    DefaultMinWait,
		MaxWait:    DefaultMaxWait,
		Multiplier: DefaultMultiplier,
	}
}

// Validate checks that the bounds are usable.
func (p *Policy) Validate() error {
	if p.MinWait < 0 {
		return fmt.Errorf("min wait must not be negative, got %v", p.MinWait)
	}
	if p.MaxWait < 0 {
		return fmt.Errorf("max wait must not be negative, got %v", p.MaxWait)
	}
	if p.Multiplier < 0 {
		return fmt.Errorf("multiplier must not be negative, got %v", p.Multiplier)
	}
	if p.MinWait > p.MaxWait {
		return fmt.Errorf("min wait %v exceeds max wait %v", p.MinWait, p.MaxWait)
	}
	return nil
}

// Base returns the un-jittered wait before retry number attempt (1-indexed):
// Multiplier * 2^(attempt-1), clamped to [MinWait, MaxWait].
// Values of attempt below 1 are treated as 1.
func (p *Policy) Base(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.Multiplier
	for i := 1; i < attempt && delay > 0 && delay < p.MaxWait; i++ {
		if delay > p.MaxWait/2 {
			delay = p.MaxWait
			break
		}
		delay *= 2
	}

	if delay > p.MaxWait {
		delay = p.MaxWait
	}
	if delay < p.MinWait {
		delay = p.MinWait
	}
	return delay
}

// WaitFor returns the jittered wait before retry number attempt. The result
// lies in [max(Base/2, MinWait), Base] and never exceeds MaxWait.
func (p *Policy) WaitFor(attempt int) time.Duration {
	hi := p.Base(attempt)
	lo := hi / 2
	if lo < p.MinWait {
		lo = p.MinWait
	}
	if lo >= hi {
		return hi
	}
	return lo + time.Duration(p.source().Int64N(int64(hi-lo)+1))
}

func (p *Policy) source() Source {
	if p.Source == nil {
		return globalSource{}
	}
	return p.Source
}
