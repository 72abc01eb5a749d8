// Package maintenance substitutes periodic housekeeping agents for normal
// ticket cycles on a completed-ticket cadence.
package maintenance

import "fmt"

// AgentSpec configures one maintenance agent. Differing lifecycle needs
// (workspace or not, merge-back or not) are explicit capability flags
// dispatched through one uniform runner, not per-agent code paths.
type AgentSpec struct {
	// Name identifies the agent in logs and statistics.
	Name string `yaml:"name"`

	// Prompt is the agent's fixed prompt text.
	Prompt string `yaml:"prompt"`

	// Every runs the agent after every N completed tickets.
	Every int `yaml:"every"`

	// Model optionally overrides the configured default model.
	Model string `yaml:"model,omitempty"`

	// NeedsWorkspace creates a full workspace for the cycle. A
	// backlog-grooming agent that only mutates the ticket store can
	// leave this false.
	NeedsWorkspace bool `yaml:"needs_workspace"`

	// MergeBack merges the workspace branch after a successful cycle.
	// Only meaningful when NeedsWorkspace is set.
	MergeBack bool `yaml:"merge_back"`
}

// WorkspaceID returns the deterministic ticket-style identifier used for
// the agent's workspace.
func (s *AgentSpec) WorkspaceID() string {
	return "maint-" + s.Name
}

// Scheduler decides, per completed-ticket count, whether the next cycle
// is a maintenance cycle.
type Scheduler struct {
	specs  []AgentSpec
	lastAt map[string]int // completed count at which each agent last ran
}

// NewScheduler validates the specs and creates a scheduler.
func NewScheduler(specs []AgentSpec) (*Scheduler, error) {
	for i := range specs {
		if specs[i].Name == "" {
			return nil, fmt.Errorf("maintenance agent %d has no name", i)
		}
		if specs[i].Every <= 0 {
			return nil, fmt.Errorf("maintenance agent %q: every must be positive", specs[i].Name)
		}
		if specs[i].MergeBack && !specs[i].NeedsWorkspace {
			return nil, fmt.Errorf("maintenance agent %q: merge_back requires needs_workspace", specs[i].Name)
		}
	}
	return &Scheduler{specs: specs, lastAt: make(map[string]int)}, nil
}

// Next returns the first maintenance agent due at the given completed
// count, or nil when none is due. The returned agent is marked as run at
// this count, so a second consultation at the same count moves on to the
// next due agent.
func (s *Scheduler) Next(completed int) *AgentSpec {
	if completed == 0 {
		return nil
	}
	for i := range s.specs {
		spec := &s.specs[i]
		last, ran := s.lastAt[spec.Name]
		if ran && last == completed {
			continue
		}
		if completed%spec.Every == 0 {
			s.lastAt[spec.Name] = completed
			return spec
		}
	}
	return nil
}
