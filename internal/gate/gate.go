// Package gate runs the independent verification session that confirms a
// work attempt actually satisfies its ticket before merging.
package gate

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/foremanloop/foreman/internal/prompt"
	"github.com/foremanloop/foreman/internal/session"
	"github.com/foremanloop/foreman/internal/tickets"
)

// Reason explains a verdict. The pass reasons are deliberately distinct:
// collapsing them would make the dispatch loop reopen tickets whose
// requirement the target branch already satisfies.
type Reason int

const (
	// ReasonNewWork means new work is present and correct.
	ReasonNewWork Reason = iota

	// ReasonAlreadySatisfied means no new work was needed; the target
	// state already satisfies the ticket.
	ReasonAlreadySatisfied

	// ReasonRejected means work is missing, incorrect, or tests fail.
	ReasonRejected
)

// String returns the snake_case reason code.
func (r Reason) String() string {
	switch r {
	case ReasonNewWork:
		return "new_work_verified"
	case ReasonAlreadySatisfied:
		return "already_satisfied"
	default:
		return "rejected"
	}
}

// Verdict is the structured outcome of one verification session.
type Verdict struct {
	Pass   bool
	Reason Reason
	Detail string
}

// Verdict tags the gate agent must emit. Same shape as the work agent's
// terminal markers: a single tagged line, parsed once at the boundary.
var (
	passPattern = regexp.MustCompile(`<verdict>pass:\s*(new_work|already_satisfied)\s*</verdict>`)
	failPattern = regexp.MustCompile(`<verdict>fail:\s*(.+?)</verdict>`)
)

// ParseVerdict scans agent output for a verdict tag. The second return
// value is false when no tag was found.
func ParseVerdict(output string) (Verdict, bool) {
	if m := passPattern.FindStringSubmatch(output); len(m) > 1 {
		reason := ReasonNewWork
		if m[1] == "already_satisfied" {
			reason = ReasonAlreadySatisfied
		}
		return Verdict{Pass: true, Reason: reason}, true
	}
	if m := failPattern.FindStringSubmatch(output); len(m) > 1 {
		return Verdict{Pass: false, Reason: ReasonRejected, Detail: m[1]}, true
	}
	return Verdict{}, false
}

// Gate invokes a second, narrowly-scoped agent session whose sole output
// is a pass/fail verdict plus a reason code.
type Gate struct {
	agent   session.Agent
	prompts *prompt.Builder

	// Model overrides the agent's default model for verification runs.
	Model string

	// Timeout bounds one verification session.
	Timeout time.Duration
}

// New creates a gate backed by the given agent.
func New(agent session.Agent, prompts *prompt.Builder) *Gate {
	return &Gate{agent: agent, prompts: prompts}
}

// Verify runs the verification session for a ticket's workspace and
// returns the structured verdict. A session that times out, crashes, or
// emits no verdict tag yields a rejection with an explanatory detail,
// never a silent pass.
func (g *Gate) Verify(ctx context.Context, t *tickets.Ticket, wsPath, repoRoot, targetBranch string, transcript io.Writer) (Verdict, *session.Record, error) {
	promptText, err := g.prompts.Gate(t, targetBranch)
	if err != nil {
		return Verdict{}, nil, err
	}

	result, runErr := g.agent.Run(ctx, promptText, session.Options{
		WorkDir:     wsPath,
		AllowedDirs: []string{repoRoot},
		Model:       g.Model,
		Timeout:     g.Timeout,
		Transcript:  transcript,
	})

	var record *session.Record
	if result != nil {
		record = result.Record
	}

	if runErr != nil {
		return Verdict{
			Pass:   false,
			Reason: ReasonRejected,
			Detail: fmt.Sprintf("verification session did not finish: %v", runErr),
		}, record, nil
	}

	verdict, found := ParseVerdict(result.Output)
	if !found {
		return Verdict{
			Pass:   false,
			Reason: ReasonRejected,
			Detail: "verification session emitted no structured verdict",
		}, record, nil
	}
	return verdict, record, nil
}
