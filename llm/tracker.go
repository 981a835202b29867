package llm

import "sync"

// TokenTracker accumulates token usage keyed by investigation stage,
// for example "hop-3" or "qa".
type TokenTracker struct {
	mu     sync.RWMutex
	stages map[string]TokenUsage
	total  TokenUsage
}

// NewTokenTracker returns an empty tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{
		stages: make(map[string]TokenUsage),
	}
}

// Add records usage under the given stage.
func (t *TokenTracker) Add(stage string, usage TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stages[stage] = t.stages[stage].Add(usage)
	t.total = t.total.Add(usage)
}

// Total returns the aggregate usage across all stages.
func (t *TokenTracker) Total() TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

// ByStage returns the usage recorded under one stage. A stage that was
// never recorded returns a zero TokenUsage.
func (t *TokenTracker) ByStage(stage string) TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stages[stage]
}

// Stages lists every stage with recorded usage, in no particular order.
func (t *TokenTracker) Stages() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stages := make([]string, 0, len(t.stages))
	for stage := range t.stages {
		stages = append(stages, stage)
	}
	return stages
}

// Reset clears all recorded usage.
func (t *TokenTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stages = make(map[string]TokenUsage)
	t.total = TokenUsage{}
}

// Snapshot is a read-only copy of a tracker's state.
type Snapshot struct {
	// Stages maps stage name to its accumulated usage.
	Stages map[string]TokenUsage

	// Total is the aggregate across all stages.
	Total TokenUsage
}

// Snapshot copies the current state for reporting.
func (t *TokenTracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stages := make(map[string]TokenUsage, len(t.stages))
	for stage, usage := range t.stages {
		stages[stage] = usage
	}
	return Snapshot{Stages: stages, Total: t.total}
}
