// Package config loads foreman's per-repository configuration from
// .foreman/config.yaml. Retry caps and timeouts are configuration
// inputs, never hard-coded; both must be finite.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foremanloop/foreman/internal/maintenance"
)

// Defaults applied to zero-valued fields after load.
const (
	DefaultMaxRetries     = 3
	DefaultTimeoutMinutes = 30
	DefaultTargetBranch   = "main"
)

// Config models .foreman/config.yaml.
type Config struct {
	Store struct {
		// Command is the tix binary path.
		Command string `yaml:"command"`
	} `yaml:"store"`

	Agent struct {
		// Command is the coding-agent binary path.
		Command string `yaml:"command"`
		// Model is the default model for work sessions.
		Model string `yaml:"model"`
	} `yaml:"agent"`

	Verify struct {
		// Model optionally overrides the model for verification sessions.
		Model string `yaml:"model"`
		// TimeoutMinutes bounds one verification session (0 = same as work).
		TimeoutMinutes int `yaml:"timeout_minutes"`
	} `yaml:"verify"`

	Branches struct {
		// Source is the branch workspaces are created from ("" = HEAD).
		Source string `yaml:"source"`
		// Target is the branch completed work merges into.
		Target string `yaml:"target"`
	} `yaml:"branches"`

	// MaxRetries caps retries per ticket cycle.
	MaxRetries int `yaml:"max_retries"`

	// TimeoutMinutes is the wall-clock limit per agent session.
	TimeoutMinutes int `yaml:"timeout_minutes"`

	// Maintenance lists the periodic housekeeping agents.
	Maintenance []maintenance.AgentSpec `yaml:"maintenance"`
}

// Path returns the config file path for a repository root.
func Path(repoRoot string) string {
	return filepath.Join(repoRoot, ".foreman", "config.yaml")
}

// StateDir returns foreman's local state directory for a repository.
func StateDir(repoRoot string) string {
	return filepath.Join(repoRoot, ".foreman")
}

// LogDir returns the run-log directory.
func LogDir(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "logs")
}

// TranscriptDir returns the per-ticket transcript directory.
func TranscriptDir(repoRoot string) string {
	return filepath.Join(LogDir(repoRoot), "tickets")
}

// LeaderboardPath returns the all-time per-model leaderboard file.
func LeaderboardPath(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "leaderboard.json")
}

// HistoryPath returns the run-history database file.
func HistoryPath(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "history.db")
}

// PromptDir returns the prompt-template override directory.
func PromptDir(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "prompts")
}

// Load reads the config for a repository. A missing file yields the
// defaults, not an error; malformed YAML or invalid values are errors.
func Load(repoRoot string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(Path(repoRoot))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills zero-valued fields.
func (c *Config) applyDefaults() {
	if c.Store.Command == "" {
		c.Store.Command = "tix"
	}
	if c.Agent.Command == "" {
		c.Agent.Command = "claude"
	}
	if c.Branches.Target == "" {
		c.Branches.Target = DefaultTargetBranch
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.TimeoutMinutes == 0 {
		c.TimeoutMinutes = DefaultTimeoutMinutes
	}
	if c.Verify.TimeoutMinutes == 0 {
		c.Verify.TimeoutMinutes = c.TimeoutMinutes
	}
}

// Validate rejects configurations that would break retry boundedness.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.TimeoutMinutes <= 0 {
		return fmt.Errorf("timeout_minutes must be positive, got %d", c.TimeoutMinutes)
	}
	for i := range c.Maintenance {
		m := &c.Maintenance[i]
		if m.Name == "" {
			return fmt.Errorf("maintenance agent %d has no name", i)
		}
		if m.Every <= 0 {
			return fmt.Errorf("maintenance agent %q: every must be positive", m.Name)
		}
	}
	return nil
}

// Timeout returns the per-session wall-clock limit.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// VerifyTimeout returns the verification-session wall-clock limit.
func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.Verify.TimeoutMinutes) * time.Minute
}
