package backoff

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource always returns the same fraction of n.
type fixedSource struct {
	pick func(n int64) int64
}

func (f fixedSource) Int64N(n int64) int64 { return f.pick(n) }

func TestBase(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-3, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
		{1 << 20, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, p.Base(tt.attempt))
		})
	}
}

func TestBaseClampsToMinWait(t *testing.T) {
	p := &Policy{MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second, Multiplier: 100 * time.Millisecond}

	assert.Equal(t, 500*time.Millisecond, p.Base(1))
	assert.Equal(t, 500*time.Millisecond, p.Base(3)) // 400ms
	assert.Equal(t, 800*time.Millisecond, p.Base(4))
}

func TestBaseMonotonic(t *testing.T) {
	p := &Policy{MinWait: 10 * time.Millisecond, MaxWait: 3 * time.Second, Multiplier: 7 * time.Millisecond}

	prev := time.Duration(0)
	for attempt := 1; attempt < 100; attempt++ {
		b := p.Base(attempt)
		assert.GreaterOrEqual(t, b, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, b, p.MaxWait, "attempt %d", attempt)
		prev = b
	}
}

func TestWaitForBounds(t *testing.T) {
	p := DefaultPolicy()
	p.Source = rand.New(rand.NewPCG(1, 2))

	for attempt := 1; attempt <= 10; attempt++ {
		base := p.Base(attempt)
		lo := base / 2
		if lo < p.MinWait {
			lo = p.MinWait
		}
		for i := 0; i < 200; i++ {
			w := p.WaitFor(attempt)
			require.GreaterOrEqual(t, w, lo, "attempt %d", attempt)
			require.LessOrEqual(t, w, base, "attempt %d", attempt)
			require.LessOrEqual(t, w, p.MaxWait)
		}
	}
}

func TestWaitForDeterministicWithSeed(t *testing.T) {
	a := DefaultPolicy()
	a.Source = rand.New(rand.NewPCG(42, 7))
	b := DefaultPolicy()
	b.Source = rand.New(rand.NewPCG(42, 7))

	for attempt := 1; attempt <= 6; attempt++ {
		assert.Equal(t, a.WaitFor(attempt), b.WaitFor(attempt))
	}
}

func TestWaitForExtremes(t *testing.T) {
	p := DefaultPolicy()

	p.Source = fixedSource{pick: func(int64) int64 { return 0 }}
	assert.Equal(t, 2*time.Second, p.WaitFor(3)) // base 4s, lower half
	assert.Equal(t, 1*time.Second, p.WaitFor(1)) // base 1s, lo clamped to MinWait

	p.Source = fixedSource{pick: func(n int64) int64 { return n - 1 }}
	assert.Equal(t, 4*time.Second, p.WaitFor(3))
	assert.Equal(t, 10*time.Second, p.WaitFor(9))
}

func TestWaitForZeroPolicy(t *testing.T) {
	p := &Policy{}
	assert.Equal(t, time.Duration(0), p.WaitFor(1))
	assert.Equal(t, time.Duration(0), p.WaitFor(5))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"default", *DefaultPolicy(), false},
		{"zero", Policy{}, false},
		{"negative min", Policy{MinWait: -1}, true},
		{"negative max", Policy{MaxWait: -1}, true},
		{"negative multiplier", Policy{MaxWait: time.Second, Multiplier: -1}, true},
		{"min above max", Policy{MinWait: 2 * time.Second, MaxWait: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
