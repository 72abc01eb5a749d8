package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Command != "tix" {
		t.Errorf("Store.Command = %q, want tix", cfg.Store.Command)
	}
	if cfg.Agent.Command != "claude" {
		t.Errorf("Agent.Command = %q, want claude", cfg.Agent.Command)
	}
	if cfg.Branches.Target != "main" {
		t.Errorf("Branches.Target = %q, want main", cfg.Branches.Target)
	}
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", cfg.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Timeout() != time.Duration(DefaultTimeoutMinutes)*time.Minute {
		t.Errorf("Timeout() = %v", cfg.Timeout())
	}
	if cfg.VerifyTimeout() != cfg.Timeout() {
		t.Errorf("VerifyTimeout() = %v, want same as Timeout()", cfg.VerifyTimeout())
	}
}

func TestLoad_ParsesYAML(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
store:
  command: /usr/local/bin/tix
agent:
  command: claude
  model: opus
verify:
  model: sonnet
  timeout_minutes: 10
branches:
  source: develop
  target: release
max_retries: 5
timeout_minutes: 45
maintenance:
  - name: refactor
    prompt: "Tidy up the worst file you can find."
    every: 10
    needs_workspace: true
    merge_back: true
  - name: groom
    prompt: "Close stale tickets."
    every: 25
`)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Command != "/usr/local/bin/tix" {
		t.Errorf("Store.Command = %q", cfg.Store.Command)
	}
	if cfg.Agent.Model != "opus" || cfg.Verify.Model != "sonnet" {
		t.Errorf("models = (%q, %q)", cfg.Agent.Model, cfg.Verify.Model)
	}
	if cfg.Branches.Source != "develop" || cfg.Branches.Target != "release" {
		t.Errorf("branches = %+v", cfg.Branches)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.Timeout() != 45*time.Minute {
		t.Errorf("Timeout() = %v, want 45m", cfg.Timeout())
	}
	if cfg.VerifyTimeout() != 10*time.Minute {
		t.Errorf("VerifyTimeout() = %v, want 10m", cfg.VerifyTimeout())
	}

	if len(cfg.Maintenance) != 2 {
		t.Fatalf("Maintenance = %d agents, want 2", len(cfg.Maintenance))
	}
	refactor := cfg.Maintenance[0]
	if refactor.Name != "refactor" || refactor.Every != 10 {
		t.Errorf("maintenance[0] = %+v", refactor)
	}
	if !refactor.NeedsWorkspace || !refactor.MergeBack {
		t.Errorf("maintenance[0] flags = %+v", refactor)
	}
	if cfg.Maintenance[1].NeedsWorkspace {
		t.Error("maintenance[1] should not need a workspace")
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			yaml:    "max_retries: [not a number",
			wantErr: "parsing config",
		},
		{
			name:    "negative retries",
			yaml:    "max_retries: -1",
			wantErr: "max_retries",
		},
		{
			name:    "negative timeout",
			yaml:    "timeout_minutes: -5",
			wantErr: "timeout_minutes",
		},
		{
			name: "maintenance agent without name",
			yaml: `
maintenance:
  - prompt: "do things"
    every: 5
`,
			wantErr: "has no name",
		},
		{
			name: "maintenance agent without cadence",
			yaml: `
maintenance:
  - name: groom
    prompt: "do things"
`,
			wantErr: "every must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, tt.yaml)

			_, err := Load(root)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	root := "/repo"

	if got := Path(root); got != "/repo/.foreman/config.yaml" {
		t.Errorf("Path() = %q", got)
	}
	if got := LogDir(root); got != "/repo/.foreman/logs" {
		t.Errorf("LogDir() = %q", got)
	}
	if got := TranscriptDir(root); got != "/repo/.foreman/logs/tickets" {
		t.Errorf("TranscriptDir() = %q", got)
	}
	if got := LeaderboardPath(root); got != "/repo/.foreman/leaderboard.json" {
		t.Errorf("LeaderboardPath() = %q", got)
	}
	if got := HistoryPath(root); got != "/repo/.foreman/history.db" {
		t.Errorf("HistoryPath() = %q", got)
	}
	if got := PromptDir(root); got != "/repo/.foreman/prompts" {
		t.Errorf("PromptDir() = %q", got)
	}
}

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, ".foreman")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}
