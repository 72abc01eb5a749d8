// Package session runs external coding-agent processes bound to a
// workspace, classifies their line-oriented output, and reports a
// structured outcome plus usage statistics.
package session

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrTimeout is returned when an agent run exceeds its wall-clock timeout.
// The subprocess is terminated; the partial result is still returned.
var ErrTimeout = errors.New("agent run timed out")

// Outcome is the terminal state of one agent session.
type Outcome int

const (
	// OutcomeSuccess means the agent finished and claimed completion.
	OutcomeSuccess Outcome = iota

	// OutcomeFailure means the agent finished but reported it could not
	// complete the work.
	OutcomeFailure

	// OutcomeTimeout means the wall-clock timeout terminated the session.
	OutcomeTimeout

	// OutcomeCrashed means the process exited non-zero or matched a
	// crash signature.
	OutcomeCrashed
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Agent is an external AI coding agent invokable as a subprocess.
type Agent interface {
	// Name returns the agent's display name.
	Name() string

	// Available checks if the agent's CLI is installed and accessible.
	Available() bool

	// Run executes the agent with the given prompt and options.
	Run(ctx context.Context, prompt string, opts Options) (*Result, error)
}

// Options configures an agent run.
type Options struct {
	// WorkDir is the workspace directory the agent runs in.
	WorkDir string

	// AllowedDirs is the explicit allow-list of directories the agent may
	// access beyond WorkDir. Never ancestors or system directories.
	AllowedDirs []string

	// Model overrides the agent's default model when non-empty.
	Model string

	// Timeout is the hard wall-clock limit for the run. Zero means no
	// timeout beyond any context deadline.
	Timeout time.Duration

	// OnEvent receives classified events as they stream. Optional.
	OnEvent func(Event)

	// OnExchange receives collapsed tool call/result pairs. Optional.
	OnExchange func(Exchange)

	// Transcript receives every raw output line, appended verbatim.
	// Optional; used for the per-ticket log.
	Transcript io.Writer
}

// Record is the session record for one agent invocation. It is consumed
// by the dispatch loop and the statistics aggregator, then discarded
// except for its aggregate fields.
type Record struct {
	Prompt    string        `json:"prompt"`
	Model     string        `json:"model"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	TokensIn  int           `json:"tokens_in"`
	TokensOut int           `json:"tokens_out"`
	ToolCalls int           `json:"tool_calls"`
	Duration  time.Duration `json:"duration"`
	Outcome   Outcome       `json:"-"`
}

// Result contains the output and metrics from an agent run.
type Result struct {
	// Output is the full text output from the agent. On timeout it holds
	// whatever was captured before termination.
	Output string

	// Summary is the terminal summary line, if the agent emitted one.
	Summary string

	// Outcome is the terminal state of the session.
	Outcome Outcome

	// Record carries the session record for statistics.
	Record *Record
}
