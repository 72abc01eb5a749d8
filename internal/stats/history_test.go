package stats

import (
	"path/filepath"
	"testing"
	"time"
)

func TestHistory_FlushAndRecentRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "history.db")

	h, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("OpenHistory() error = %v", err)
	}
	defer h.Close()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	first := Snapshot{
		StartedAt:      base,
		Elapsed:        time.Hour,
		TokensIn:       1000,
		TokensOut:      400,
		ToolCalls:      25,
		Sessions:       6,
		ItemsCompleted: 3,
		Reopened:       1,
		Escalated:      1,
		ModelRecords: []ModelRecord{
			{Model: "opus", Duration: 10 * time.Minute, Passed: true, RecordedAt: base},
		},
	}
	if err := h.Flush("run-1", first); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	second := first
	second.StartedAt = base.Add(2 * time.Hour)
	second.ItemsCompleted = 5
	if err := h.Flush("run-2", second); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	runs, err := h.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("RecentRuns() = %d runs, want 2", len(runs))
	}

	// Newest first.
	if runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Errorf("run order = [%s, %s], want [run-2, run-1]", runs[0].ID, runs[1].ID)
	}
	r := runs[1]
	if r.TokensIn != 1000 || r.TokensOut != 400 {
		t.Errorf("tokens = (%d, %d), want (1000, 400)", r.TokensIn, r.TokensOut)
	}
	if r.ItemsCompleted != 3 || r.Reopened != 1 || r.Escalated != 1 {
		t.Errorf("counters = %+v", r)
	}
}

func TestHistory_RecentRunsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("OpenHistory() error = %v", err)
	}
	defer h.Close()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		snap := Snapshot{StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := h.Flush(string(rune('a'+i)), snap); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
	}

	runs, err := h.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("RecentRuns(2) = %d runs, want 2", len(runs))
	}
}

func TestHistory_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	h, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("OpenHistory() error = %v", err)
	}
	if err := h.Flush("run-1", Snapshot{StartedAt: time.Now()}); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	h.Close()

	// The schema is idempotent across opens.
	h, err = OpenHistory(path)
	if err != nil {
		t.Fatalf("reopening history: %v", err)
	}
	defer h.Close()

	runs, err := h.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("RecentRuns() = %d runs, want 1", len(runs))
	}
}
