// Package engine drives the dispatch loop: select a ticket, build its
// workspace, run the work agent, gate the result, merge and clean up,
// retrying with corrective context until the retry budget is spent.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/foremanloop/foreman/internal/gate"
	"github.com/foremanloop/foreman/internal/maintenance"
	"github.com/foremanloop/foreman/internal/prompt"
	"github.com/foremanloop/foreman/internal/session"
	"github.com/foremanloop/foreman/internal/stats"
	"github.com/foremanloop/foreman/internal/tickets"
	"github.com/foremanloop/foreman/internal/workspace"
)

// ErrRetryExhausted marks a cycle that spent its whole retry budget.
// The ticket is reopened with diagnostic notes, never silently dropped.
var ErrRetryExhausted = errors.New("retry budget exhausted")

// Store is the subset of the ticket store the loop mutates.
type Store interface {
	Claim(id, owner string) error
	Close(id, reason string) error
	Reopen(id, note string) error
}

// Selector picks the next eligible ticket.
type Selector interface {
	SelectNext() (*tickets.Ticket, error)
}

// Workspaces is the workspace manager surface the loop drives.
type Workspaces interface {
	Create(ticketID, sourceBranch string) (*workspace.Workspace, error)
	Destroy(ticketID string, force bool) error
	Merge(ticketID, targetBranch string) error
	RepoRoot() string
}

// Verifier is the verification gate.
type Verifier interface {
	Verify(ctx context.Context, t *tickets.Ticket, wsPath, repoRoot, targetBranch string, transcript io.Writer) (gate.Verdict, *session.Record, error)
}

// Config configures an engine run. Caps must be finite; every retry
// strictly consumes one unit of the budget.
type Config struct {
	// InstanceID is this orchestrator's claim identity, distinct per
	// process so instances never race on the same ticket.
	InstanceID string

	// MaxRetries caps retries per ticket cycle (attempts = retries + 1).
	MaxRetries int

	// Timeout is the wall-clock limit per work session.
	Timeout time.Duration

	// SourceBranch is what workspaces branch from ("" = HEAD).
	SourceBranch string

	// TargetBranch is what completed work merges into.
	TargetBranch string

	// Model is the default model for work sessions.
	Model string

	// TranscriptDir is where per-ticket transcripts are appended.
	TranscriptDir string

	// MaxCycles optionally bounds the run (0 = until no eligible ticket).
	MaxCycles int
}

// Engine is the orchestrator proper. One engine instance processes
// tickets strictly sequentially; cross-instance safety comes from the
// store's atomic claim plus deterministic workspace naming.
type Engine struct {
	agent      session.Agent
	store      Store
	selector   Selector
	workspaces Workspaces
	gate       Verifier
	scheduler  *maintenance.Scheduler
	stats      *stats.Aggregator
	prompts    *prompt.Builder
	log        *zap.Logger
}

// New creates an engine with the given collaborators.
func New(agent session.Agent, store Store, selector Selector, workspaces Workspaces,
	verifier Verifier, scheduler *maintenance.Scheduler, aggregator *stats.Aggregator,
	prompts *prompt.Builder, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		agent:      agent,
		store:      store,
		selector:   selector,
		workspaces: workspaces,
		gate:       verifier,
		scheduler:  scheduler,
		stats:      aggregator,
		prompts:    prompts,
		log:        log,
	}
}

// Result summarizes an engine run for the final report: tickets
// completed, reopened and escalated, plus why the run ended.
type Result struct {
	Cycles     int
	Completed  int
	Reopened   int
	Escalated  int
	Duration   time.Duration
	ExitReason string
}

// Run executes dispatch cycles until no eligible ticket remains, the
// optional cycle cap is reached, the context is cancelled, or an
// external collaborator becomes unreachable.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	start := time.Now()
	res := &Result{}

	finish := func(reason string) *Result {
		res.Duration = time.Since(start)
		res.ExitReason = reason
		return res
	}

	for {
		if ctx.Err() != nil {
			return finish("context cancelled"), ctx.Err()
		}
		if cfg.MaxCycles > 0 && res.Cycles >= cfg.MaxCycles {
			return finish(fmt.Sprintf("cycle cap (%d) reached", cfg.MaxCycles)), nil
		}

		// Maintenance cadence: every N completed tickets a housekeeping
		// agent substitutes for a normal ticket cycle.
		if e.scheduler != nil {
			if spec := e.scheduler.Next(res.Completed); spec != nil {
				res.Cycles++
				e.runMaintenance(ctx, spec, cfg)
				continue
			}
		}

		t, err := e.selector.SelectNext()
		if err != nil {
			if errors.Is(err, tickets.ErrStoreUnavailable) {
				return finish("ticket store unavailable"), err
			}
			return finish("ticket selection failed"), err
		}
		if t == nil {
			return finish("no eligible tickets"), nil
		}

		if err := e.store.Claim(t.ID, cfg.InstanceID); err != nil {
			if errors.Is(err, tickets.ErrTicketClaimed) {
				// Another instance won the race; move on.
				e.log.Info("lost claim race", zap.String("ticket", t.ID))
				continue
			}
			if errors.Is(err, tickets.ErrStoreUnavailable) {
				return finish("ticket store unavailable"), err
			}
			return finish("claiming ticket failed"), err
		}

		res.Cycles++
		cycle := e.runCycle(ctx, t, cfg)
		switch cycle.State {
		case StateDone:
			res.Completed++
		case StateEscalated:
			res.Escalated++
			if cycle.Reopened {
				res.Reopened++
			}
		}
		if cycle.Err != nil && isRunFatal(cycle.Err) {
			return finish("external collaborator failure"), cycle.Err
		}
	}
}

// isRunFatal reports whether a cycle error should halt the whole run.
// Only unreachable external collaborators qualify; everything else is
// absorbed and the loop proceeds to the next ticket.
func isRunFatal(err error) bool {
	return errors.Is(err, tickets.ErrStoreUnavailable)
}
