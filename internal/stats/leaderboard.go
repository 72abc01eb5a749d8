package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// LeaderboardEntry is the all-time accumulated record for one model.
// Historical entries are never rewritten; new completions append into
// the totals and the averages are recomputed on read.
type LeaderboardEntry struct {
	Model         string        `json:"model"`
	Runs          int           `json:"runs"`
	Passes        int           `json:"passes"`
	TotalDuration time.Duration `json:"total_duration"`
}

// SuccessRate returns the fraction of passing completions.
func (e *LeaderboardEntry) SuccessRate() float64 {
	if e.Runs == 0 {
		return 0
	}
	return float64(e.Passes) / float64(e.Runs)
}

// MeanDuration returns the mean completion duration.
func (e *LeaderboardEntry) MeanDuration() time.Duration {
	if e.Runs == 0 {
		return 0
	}
	return e.TotalDuration / time.Duration(e.Runs)
}

// Leaderboard is the persisted all-time per-model comparison, read at
// startup and rewritten on save.
type Leaderboard struct {
	path    string
	entries map[string]*LeaderboardEntry
}

// leaderboardFile is the on-disk shape.
type leaderboardFile struct {
	Models []LeaderboardEntry `json:"models"`
}

// LoadLeaderboard reads the leaderboard from path. A missing file yields
// an empty leaderboard, not an error.
func LoadLeaderboard(path string) (*Leaderboard, error) {
	lb := &Leaderboard{
		path:    path,
		entries: make(map[string]*LeaderboardEntry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lb, nil
		}
		return nil, fmt.Errorf("reading leaderboard: %w", err)
	}

	var file leaderboardFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing leaderboard: %w", err)
	}
	for i := range file.Models {
		e := file.Models[i]
		lb.entries[e.Model] = &e
	}
	return lb, nil
}

// Append folds one completion record into the model's totals.
func (l *Leaderboard) Append(rec ModelRecord) {
	if rec.Model == "" {
		return
	}
	e, ok := l.entries[rec.Model]
	if !ok {
		e = &LeaderboardEntry{Model: rec.Model}
		l.entries[rec.Model] = e
	}
	e.Runs++
	if rec.Passed {
		e.Passes++
	}
	e.TotalDuration += rec.Duration
}

// Entries returns all entries sorted by success rate, then mean duration.
func (l *Leaderboard) Entries() []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate() != out[j].SuccessRate() {
			return out[i].SuccessRate() > out[j].SuccessRate()
		}
		return out[i].MeanDuration() < out[j].MeanDuration()
	})
	return out
}

// Save rewrites the leaderboard file.
func (l *Leaderboard) Save() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("creating leaderboard dir: %w", err)
	}

	data, err := json.MarshalIndent(leaderboardFile{Models: l.Entries()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling leaderboard: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("writing leaderboard: %w", err)
	}
	return nil
}
