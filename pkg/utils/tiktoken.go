// Package utils provides tiktoken-based token counting and map helpers.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides approximate token counting for chat models.
type TokenCounter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // codec construction parses a large vocabulary; share one
var (
	defaultCounter     *TokenCounter
	defaultCounterErr  error
	defaultCounterOnce sync.Once
)

// NewTokenCounter creates a new token counter for the specified model.
// Every supported provider is approximated with the GPT-4 encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// ValidateTokenLimit reports whether text fits within limit tokens.
func (tc *TokenCounter) ValidateTokenLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}

// CountTokensSimple counts tokens with a shared GPT-4 counter.
func CountTokensSimple(text string) int {
	defaultCounterOnce.Do(func() {
		defaultCounter, defaultCounterErr = NewTokenCounter("gpt-4")
	})
	if defaultCounterErr != nil {
		return len(text) / 4
	}
	return defaultCounter.CountTokens(text)
}
