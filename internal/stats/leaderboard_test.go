package stats

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadLeaderboard_MissingFile(t *testing.T) {
	lb, err := LoadLeaderboard(filepath.Join(t.TempDir(), "leaderboard.json"))
	if err != nil {
		t.Fatalf("LoadLeaderboard() error = %v", err)
	}
	if len(lb.Entries()) != 0 {
		t.Errorf("fresh leaderboard has %d entries, want 0", len(lb.Entries()))
	}
}

func TestLeaderboard_Append(t *testing.T) {
	lb, _ := LoadLeaderboard(filepath.Join(t.TempDir(), "leaderboard.json"))

	lb.Append(ModelRecord{Model: "opus", Duration: 2 * time.Minute, Passed: true})
	lb.Append(ModelRecord{Model: "opus", Duration: 4 * time.Minute, Passed: false})
	lb.Append(ModelRecord{Model: "sonnet", Duration: time.Minute, Passed: true})
	lb.Append(ModelRecord{Duration: time.Minute, Passed: true}) // no model, dropped

	entries := lb.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() = %d entries, want 2", len(entries))
	}

	// sonnet sorts first: 100% success beats 50%.
	if entries[0].Model != "sonnet" {
		t.Errorf("entries[0].Model = %q, want sonnet", entries[0].Model)
	}
	opus := entries[1]
	if opus.Runs != 2 || opus.Passes != 1 {
		t.Errorf("opus = %+v", opus)
	}
	if opus.SuccessRate() != 0.5 {
		t.Errorf("opus.SuccessRate() = %v, want 0.5", opus.SuccessRate())
	}
	if opus.MeanDuration() != 3*time.Minute {
		t.Errorf("opus.MeanDuration() = %v, want 3m", opus.MeanDuration())
	}
}

func TestLeaderboard_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "leaderboard.json")

	lb, err := LoadLeaderboard(path)
	if err != nil {
		t.Fatalf("LoadLeaderboard() error = %v", err)
	}
	lb.Append(ModelRecord{Model: "opus", Duration: 2 * time.Minute, Passed: true})
	if err := lb.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// A later run loads the same file and keeps accumulating.
	reloaded, err := LoadLeaderboard(path)
	if err != nil {
		t.Fatalf("LoadLeaderboard() reload error = %v", err)
	}
	reloaded.Append(ModelRecord{Model: "opus", Duration: 4 * time.Minute, Passed: false})

	entries := reloaded.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() = %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Runs != 2 || e.Passes != 1 || e.TotalDuration != 6*time.Minute {
		t.Errorf("accumulated entry = %+v", e)
	}
}

func TestLeaderboardEntry_ZeroRuns(t *testing.T) {
	e := &LeaderboardEntry{Model: "opus"}
	if e.SuccessRate() != 0 {
		t.Errorf("SuccessRate() = %v, want 0", e.SuccessRate())
	}
	if e.MeanDuration() != 0 {
		t.Errorf("MeanDuration() = %v, want 0", e.MeanDuration())
	}
}
