// Package ratelimit provides client-side token and concurrency limiting for backends.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"resilientagent/pkg/agent/llm"
	"resilientagent/pkg/agent/llmerrors"
	"resilientagent/pkg/logx"
	"resilientagent/pkg/utils"
)

// BufferFactor leaves headroom for token estimation inaccuracies.
const BufferFactor = 0.9

// DefaultMaxWait bounds how long Acquire waits before reporting throttling.
const DefaultMaxWait = time.Minute

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Acquire atomically acquires tokens and a concurrency slot.
	// Returns a release function that must be called to return the concurrency slot.
	// Blocks until both resources are available, MaxWait elapses or ctx is cancelled.
	Acquire(ctx context.Context, tokens int) (releaseFunc func(), err error)

	// GetStats returns current limiter statistics.
	GetStats() LimiterStats
}

// TokenEstimator estimates the number of tokens needed for a request.
type TokenEstimator interface {
	// EstimatePrompt estimates the number of prompt tokens for a request.
	EstimatePrompt(req llm.CompletionRequest) int
}

// Config defines rate limiting configuration for one backend.
type Config struct {
	TokensPerMinute int           `json:"tokens_per_minute" yaml:"tokens_per_minute"` // Rate limit in tokens per minute
	MaxConcurrency  int           `json:"max_concurrency" yaml:"max_concurrency"`     // Maximum concurrent requests
	MaxWait         time.Duration `json:"max_wait" yaml:"max_wait"`                   // Longest wait before ThrottlingException
}

// Enabled reports whether the config asks for limiting at all.
func (c Config) Enabled() bool {
	return c.TokensPerMinute > 0 && c.MaxConcurrency > 0
}

// DefaultTokenEstimator provides token estimation using TikToken.
type DefaultTokenEstimator struct{}

// NewDefaultTokenEstimator creates a new default token estimator.
func NewDefaultTokenEstimator() TokenEstimator {
	return &DefaultTokenEstimator{}
}

// EstimatePrompt estimates prompt tokens using TikToken-based counting.
//
//nolint:gocritic // request passed by value to match the Backend port
func (e *DefaultTokenEstimator) EstimatePrompt(req llm.CompletionRequest) int {
	var prompt strings.Builder
	for i := range req.Messages {
		prompt.WriteString(req.Messages[i].Content)
		prompt.WriteString("\n")
	}
	return utils.CountTokensSimple(prompt.String())
}

// acquisition tracks a single concurrency slot acquisition for cleanup purposes.
type acquisition struct {
	timestamp time.Time
	requestID string
}

// TokenBucketLimiter implements rate limiting using a token bucket algorithm
// combined with concurrency limiting (semaphore).
//
//nolint:govet // fieldalignment: Struct layout optimized for readability over memory
type TokenBucketLimiter struct {
	mu sync.Mutex

	backend string
	maxWait time.Duration

	// Token bucket state
	availableTokens int // Current tokens available
	tokensPerRefill int // Tokens added every refill (tokens_per_minute / 10)
	maxCapacity     int // Maximum bucket capacity (tokens_per_minute * BufferFactor)

	// Concurrency limiting
	activeRequests int
	maxConcurrency int
	acquisitions   []*acquisition
	releaseTimeout time.Duration // How long before auto-releasing stale acquisitions

	// Metrics
	tokenLimitHits  int64
	concurrencyHits int64
}

// LimiterStats represents current rate limiter statistics.
type LimiterStats struct {
	Backend             string `json:"backend"`
	AvailableTokens     int    `json:"available_tokens"`
	MaxCapacity         int    `json:"max_capacity"`
	ActiveRequests      int    `json:"active_requests"`
	MaxConcurrency      int    `json:"max_concurrency"`
	TokenLimitHits      int64  `json:"token_limit_hits"`
	ConcurrencyHits     int64  `json:"concurrency_hits"`
	TrackedAcquisitions int    `json:"tracked_acquisitions"`
}

// NewTokenBucketLimiter creates a token bucket limiter for one backend.
// requestTimeout sizes stale-slot detection (twice the per-call timeout).
func NewTokenBucketLimiter(backend string, cfg Config, requestTimeout time.Duration) *TokenBucketLimiter {
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	releaseTimeout := requestTimeout * 2
	if releaseTimeout <= 0 {
		releaseTimeout = 10 * time.Minute
	}
	maxCapacity := int(float64(cfg.TokensPerMinute) * BufferFactor)

	return &TokenBucketLimiter{
		backend:         backend,
		maxWait:         maxWait,
		availableTokens: maxCapacity, // Start with full bucket
		tokensPerRefill: cfg.TokensPerMinute / 10,
		maxCapacity:     maxCapacity,
		maxConcurrency:  cfg.MaxConcurrency,
		acquisitions:    make([]*acquisition, 0),
		releaseTimeout:  releaseTimeout,
	}
}

// Acquire atomically acquires both tokens and a concurrency slot.
// Returns a release function that MUST be called (via defer) to return the slot.
// A request larger than the bucket fails at once with ServiceQuotaExceededException;
// waiting past MaxWait fails with ThrottlingException.
func (l *TokenBucketLimiter) Acquire(ctx context.Context, tokens int) (func(), error) {
	if tokens > l.maxCapacity {
		return nil, llmerrors.NewError(llmerrors.CodeServiceQuotaExceeded,
			fmt.Sprintf("request needs %d tokens but %s allows at most %d per minute", tokens, l.backend, l.maxCapacity))
	}

	requestID := logx.RequestID(ctx)
	firstAttempt := true
	startTime := time.Now()

	for {
		l.mu.Lock()

		if l.activeRequests >= l.maxConcurrency {
			l.cleanStaleAcquisitions()
		}

		hasTokens := l.availableTokens >= tokens
		hasSlot := l.activeRequests < l.maxConcurrency

		if hasTokens && hasSlot {
			l.availableTokens -= tokens
			l.activeRequests++

			acq := &acquisition{
				timestamp: time.Now(),
				requestID: requestID,
			}
			l.acquisitions = append(l.acquisitions, acq)

			l.mu.Unlock()
			return func() { l.release(acq) }, nil
		}

		elapsed := time.Since(startTime)
		if elapsed > l.maxWait {
			l.mu.Unlock()
			return nil, llmerrors.NewError(llmerrors.CodeThrottling,
				fmt.Sprintf("rate limit acquisition timeout after %v (requested %d tokens, max capacity %d, backend: %s)",
					elapsed.Round(time.Millisecond), tokens, l.maxCapacity, l.backend))
		}

		// Record what blocked us only once per call to avoid log spam
		if firstAttempt {
			if !hasTokens {
				l.tokenLimitHits++
				logx.Infof("RATELIMIT: %s token limit hit, waiting for refill (need %d, have %d, request: %s)",
					l.backend, tokens, l.availableTokens, requestID)
			}
			if !hasSlot {
				l.concurrencyHits++
				logx.Infof("RATELIMIT: %s concurrency limit hit, waiting for slot (active: %d/%d, request: %s)",
					l.backend, l.activeRequests, l.maxConcurrency, requestID)
			}
			firstAttempt = false
		}

		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err() //nolint:wrapcheck // Context error propagated as-is
		case <-time.After(100 * time.Millisecond):
			continue
		}
	}
}

// release returns a concurrency slot (tokens are already consumed and not refunded).
func (l *TokenBucketLimiter) release(acq *acquisition) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, a := range l.acquisitions {
		if a == acq {
			l.acquisitions = append(l.acquisitions[:i], l.acquisitions[i+1:]...)
			l.activeRequests--
			return
		}
	}
	// Already force-released as stale
}

// cleanStaleAcquisitions removes acquisitions that have exceeded the release timeout.
// Called under lock when concurrency appears full.
func (l *TokenBucketLimiter) cleanStaleAcquisitions() {
	now := time.Now()
	cleaned := 0

	valid := make([]*acquisition, 0, len(l.acquisitions))
	for _, acq := range l.acquisitions {
		if now.Sub(acq.timestamp) > l.releaseTimeout {
			cleaned++
			l.activeRequests--
			_ = logx.Errorf("RATELIMIT: Force-released stale concurrency slot after %v (backend: %s, request: %s)",
				l.releaseTimeout, l.backend, acq.requestID)
		} else {
			valid = append(valid, acq)
		}
	}
	l.acquisitions = valid

	if cleaned > 0 {
		logx.Warnf("RATELIMIT: Cleaned %d stale concurrency slots for %s", cleaned, l.backend)
	}
}

// Start refills the bucket every 6 seconds until ctx is cancelled.
func (l *TokenBucketLimiter) Start(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.refill()
			}
		}
	}()
}

// refill adds tokens to the bucket up to max capacity.
func (l *TokenBucketLimiter) refill() {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.availableTokens
	l.availableTokens += l.tokensPerRefill
	if l.availableTokens > l.maxCapacity {
		l.availableTokens = l.maxCapacity
	}

	if l.availableTokens != old {
		logx.Debug(context.Background(), "ratelimit", "%s bucket refilled: %d -> %d tokens (max: %d)",
			l.backend, old, l.availableTokens, l.maxCapacity)
	}
}

// GetStats returns current limiter statistics (thread-safe).
func (l *TokenBucketLimiter) GetStats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStats{
		Backend:             l.backend,
		AvailableTokens:     l.availableTokens,
		MaxCapacity:         l.maxCapacity,
		ActiveRequests:      l.activeRequests,
		MaxConcurrency:      l.maxConcurrency,
		TokenLimitHits:      l.tokenLimitHits,
		ConcurrencyHits:     l.concurrencyHits,
		TrackedAcquisitions: len(l.acquisitions),
	}
}
