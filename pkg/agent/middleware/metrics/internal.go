package metrics

import (
	"sync"
	"time"
)

// InternalRecorder implements the Recorder interface using in-memory aggregation.
// It backs the /stats endpoint and the CLI summary without a Prometheus scrape.
type InternalRecorder struct {
	models    map[string]*ModelStats
	failovers map[string]int64
	outcomes  map[string]int64
	mu        sync.RWMutex
}

// ModelStats represents aggregated metrics for one backend model.
//
//nolint:govet
type ModelStats struct {
	Model            string           `json:"model"`
	RequestCount     int64            `json:"request_count"`
	ErrorCount       int64            `json:"error_count"`
	Retries          int64            `json:"retries"`
	PromptTokens     int64            `json:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens"`
	TotalLatency     time.Duration    `json:"total_latency_ns"`
	ErrorCodes       map[string]int64 `json:"error_codes,omitempty"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// Snapshot is a point-in-time copy of an InternalRecorder.
type Snapshot struct {
	Models    map[string]*ModelStats `json:"models"`
	Failovers map[string]int64       `json:"failovers"`
	Outcomes  map[string]int64       `json:"outcomes"`
}

// NewInternalRecorder returns an empty in-memory recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{
		models:    make(map[string]*ModelStats),
		failovers: make(map[string]int64),
		outcomes:  make(map[string]int64),
	}
}

// model returns the stats entry for name. Caller holds the write lock.
func (r *InternalRecorder) model(name string) *ModelStats {
	stats, exists := r.models[name]
	if !exists {
		stats = &ModelStats{Model: name}
		r.models[name] = stats
	}
	stats.LastUpdated = time.Now()
	return stats
}

// ObserveRequest records metrics for a completed backend call.
func (r *InternalRecorder) ObserveRequest(
	model string,
	promptTokens, completionTokens int,
	success bool,
	errorCode string,
	duration time.Duration,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.model(model)
	stats.RequestCount++
	stats.TotalLatency += duration
	if success {
		stats.PromptTokens += int64(promptTokens)
		stats.CompletionTokens += int64(completionTokens)
		return
	}
	stats.ErrorCount++
	if stats.ErrorCodes == nil {
		stats.ErrorCodes = make(map[string]int64)
	}
	stats.ErrorCodes[errorCode]++
}

// IncRetry counts a retry against model.
func (r *InternalRecorder) IncRetry(model, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model(model).Retries++
}

// IncFailover counts a failover by reason.
func (r *InternalRecorder) IncFailover(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failovers[reason]++
}

// IncOutcome counts a finished invocation.
func (r *InternalRecorder) IncOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

// GetModelStats returns a copy of the stats for model, or nil if unseen.
func (r *InternalRecorder) GetModelStats(model string) *ModelStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if stats, exists := r.models[model]; exists {
		return stats.clone()
	}
	return nil
}

// Snapshot returns a deep copy of everything recorded so far.
func (r *InternalRecorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Models:    make(map[string]*ModelStats, len(r.models)),
		Failovers: make(map[string]int64, len(r.failovers)),
		Outcomes:  make(map[string]int64, len(r.outcomes)),
	}
	for name, stats := range r.models {
		snap.Models[name] = stats.clone()
	}
	for k, v := range r.failovers {
		snap.Failovers[k] = v
	}
	for k, v := range r.outcomes {
		snap.Outcomes[k] = v
	}
	return snap
}

// Reset clears all metrics (useful for testing).
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = make(map[string]*ModelStats)
	r.failovers = make(map[string]int64)
	r.outcomes = make(map[string]int64)
}

func (s *ModelStats) clone() *ModelStats {
	c := *s
	if s.ErrorCodes != nil {
		c.ErrorCodes = make(map[string]int64, len(s.ErrorCodes))
		for k, v := range s.ErrorCodes {
			c.ErrorCodes[k] = v
		}
	}
	return &c
}
