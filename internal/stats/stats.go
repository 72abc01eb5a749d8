// Package stats accumulates per-session and per-model completion records
// for one orchestrator run, and persists the all-time per-model
// leaderboard across runs.
package stats

import (
	"sync"
	"time"

	"github.com/foremanloop/foreman/internal/session"
)

// ModelRecord is one completion record used for model comparison.
type ModelRecord struct {
	Model      string        `json:"model"`
	Duration   time.Duration `json:"duration"`
	Passed     bool          `json:"passed"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Snapshot is an immutable read of the aggregator. Rolling figures
// (elapsed time) are computed at read time.
type Snapshot struct {
	StartedAt       time.Time
	Elapsed         time.Duration
	TokensIn        int
	TokensOut       int
	ToolCalls       int
	Sessions        int
	ItemsCompleted  int
	Reopened        int
	Escalated       int
	MaintenanceRuns map[string]int
	ModelRecords    []ModelRecord
}

// Aggregator is the process-wide statistics accumulator, explicitly owned
// and injected rather than ambient. Purely additive: updates append,
// reads snapshot. Only the dispatch loop writes to it.
type Aggregator struct {
	mu sync.Mutex

	startedAt       time.Time
	tokensIn        int
	tokensOut       int
	toolCalls       int
	sessions        int
	itemsCompleted  int
	reopened        int
	escalated       int
	maintenanceRuns map[string]int
	modelRecords    []ModelRecord
}

// NewAggregator creates an aggregator with its clock started.
func NewAggregator() *Aggregator {
	return &Aggregator{
		startedAt:       time.Now(),
		maintenanceRuns: make(map[string]int),
	}
}

// RecordSession folds one session record's aggregate fields in.
func (a *Aggregator) RecordSession(rec *session.Record) {
	if rec == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions++
	a.tokensIn += rec.TokensIn
	a.tokensOut += rec.TokensOut
	a.toolCalls += rec.ToolCalls
}

// RecordCompletion appends a per-model completion record.
func (a *Aggregator) RecordCompletion(model string, duration time.Duration, passed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modelRecords = append(a.modelRecords, ModelRecord{
		Model:      model,
		Duration:   duration,
		Passed:     passed,
		RecordedAt: time.Now(),
	})
}

// ItemCompleted counts one ticket closed by this run.
func (a *Aggregator) ItemCompleted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.itemsCompleted++
}

// ItemReopened counts one ticket reopened by this run.
func (a *Aggregator) ItemReopened() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reopened++
}

// CycleEscalated counts one cycle that ended in escalation.
func (a *Aggregator) CycleEscalated() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.escalated++
}

// MaintenanceRun counts one run of the named maintenance agent.
func (a *Aggregator) MaintenanceRun(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maintenanceRuns[name]++
}

// Snapshot returns an immutable copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	runs := make(map[string]int, len(a.maintenanceRuns))
	for k, v := range a.maintenanceRuns {
		runs[k] = v
	}
	records := make([]ModelRecord, len(a.modelRecords))
	copy(records, a.modelRecords)

	return Snapshot{
		StartedAt:       a.startedAt,
		Elapsed:         time.Since(a.startedAt),
		TokensIn:        a.tokensIn,
		TokensOut:       a.tokensOut,
		ToolCalls:       a.toolCalls,
		Sessions:        a.sessions,
		ItemsCompleted:  a.itemsCompleted,
		Reopened:        a.reopened,
		Escalated:       a.escalated,
		MaintenanceRuns: runs,
		ModelRecords:    records,
	}
}
