package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/foremanloop/foreman/internal/prompt"
	"github.com/foremanloop/foreman/internal/session"
	"github.com/foremanloop/foreman/internal/tickets"
	"github.com/foremanloop/foreman/internal/workspace"
)

// CycleState names a position in the per-ticket state machine.
type CycleState int

const (
	// StateSelected means the ticket is claimed but has no workspace yet.
	StateSelected CycleState = iota

	// StateWorkspaceReady means the isolated workspace exists.
	StateWorkspaceReady

	// StateAgentRunning means a work session is in flight.
	StateAgentRunning

	// StateGateCheck means the verification gate is judging the attempt.
	StateGateCheck

	// StateMerging means the workspace branch is being merged.
	StateMerging

	// StateCleanup means the workspace is being destroyed after a merge.
	StateCleanup

	// StateDone is the successful terminal state.
	StateDone

	// StateEscalated is the absorbing failure state: conflicts that
	// survived resolution, or an exhausted retry budget.
	StateEscalated
)

// String returns the state's name.
func (s CycleState) String() string {
	switch s {
	case StateSelected:
		return "selected"
	case StateWorkspaceReady:
		return "workspace_ready"
	case StateAgentRunning:
		return "agent_running"
	case StateGateCheck:
		return "gate_check"
	case StateMerging:
		return "merging"
	case StateCleanup:
		return "cleanup"
	case StateDone:
		return "done"
	case StateEscalated:
		return "escalated"
	default:
		return "unknown"
	}
}

// RetryContext tracks one cycle's retry budget. Reset at cycle start;
// grows by one assembled error summary per failed attempt.
type RetryContext struct {
	Attempt     int
	MaxAttempts int
	PriorErrors []string
}

// AddError records a failed attempt's summary for the next prompt.
func (r *RetryContext) AddError(summary string) {
	r.PriorErrors = append(r.PriorErrors, summary)
}

// Exhausted reports whether no attempts remain.
func (r *RetryContext) Exhausted() bool {
	return r.Attempt >= r.MaxAttempts
}

// CycleResult is the outcome of one ticket's full cycle.
type CycleResult struct {
	TicketID  string
	State     CycleState
	Attempts  int
	Reopened  bool
	StartedAt time.Time
	Err       error
}

// runCycle drives one ticket from claim through merge/cleanup or
// escalation. Failures local to one attempt are absorbed by the retry
// budget; failures that exhaust it surface as ticket-store mutations.
func (e *Engine) runCycle(ctx context.Context, t *tickets.Ticket, cfg Config) *CycleResult {
	res := &CycleResult{TicketID: t.ID, State: StateSelected, StartedAt: time.Now()}
	log := e.log.With(zap.String("ticket", t.ID))

	ws, err := e.createWorkspace(t.ID, cfg, log)
	if err != nil {
		res.Err = err
		e.escalate(res, t, cfg, fmt.Sprintf("workspace creation failed: %v", err), false, log)
		return res
	}
	res.State = StateWorkspaceReady
	log.Info("workspace ready", zap.String("path", ws.Path), zap.String("branch", ws.Branch))

	transcript, err := session.OpenTranscript(cfg.TranscriptDir, t.ID)
	if err != nil {
		log.Warn("transcript unavailable", zap.Error(err))
	}
	if transcript != nil {
		defer transcript.Close()
	}

	retry := &RetryContext{MaxAttempts: cfg.MaxRetries + 1}

	for {
		retry.Attempt++
		res.Attempts = retry.Attempt
		res.State = StateAgentRunning
		log.Info("attempt starting",
			zap.Int("attempt", retry.Attempt),
			zap.Int("max_attempts", retry.MaxAttempts))

		verdictDetail, ok := e.runAttempt(ctx, t, ws, retry, cfg, transcript, log, res)
		if ok {
			break // passed the gate
		}
		if verdictDetail != "" {
			retry.AddError(verdictDetail)
		}

		if retry.Exhausted() {
			res.Err = ErrRetryExhausted
			note := fmt.Sprintf("automation gave up after %d attempts: %s",
				retry.Attempt, strings.Join(retry.PriorErrors, "; "))
			e.escalate(res, t, cfg, note, true, log)
			return res
		}
		// Back to WORKSPACE_READY for the next attempt.
	}

	e.mergeAndCleanup(ctx, res, t, ws, retry, cfg, transcript, log)
	return res
}

// createWorkspace creates the ticket's workspace, treating a stale
// leftover as crash recovery: force-destroy and recreate, logged as a
// warning, not fatal.
func (e *Engine) createWorkspace(ticketID string, cfg Config, log *zap.Logger) (*workspace.Workspace, error) {
	ws, err := e.workspaces.Create(ticketID, cfg.SourceBranch)
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, workspace.ErrWorkspaceExists) {
		return nil, err
	}

	log.Warn("stale workspace found, recreating")
	if err := e.workspaces.Destroy(ticketID, true); err != nil {
		return nil, fmt.Errorf("destroying stale workspace: %w", err)
	}
	return e.workspaces.Create(ticketID, cfg.SourceBranch)
}

// runAttempt runs one work session and, if it succeeds, the gate check.
// Returns (detail, false) for a failed attempt, where detail is the
// corrective context for the next one, or ("", true) when the gate passed.
func (e *Engine) runAttempt(ctx context.Context, t *tickets.Ticket, ws *workspace.Workspace,
	retry *RetryContext, cfg Config, transcript *session.Transcript, log *zap.Logger, res *CycleResult) (string, bool) {

	promptText, err := e.prompts.Work(prompt.WorkContext{
		Ticket:       t,
		Attempt:      retry.Attempt,
		PriorErrors:  retry.PriorErrors,
		TargetBranch: cfg.TargetBranch,
	})
	if err != nil {
		return fmt.Sprintf("prompt rendering failed: %v", err), false
	}

	if transcript != nil {
		transcript.Mark(fmt.Sprintf("attempt %d", retry.Attempt))
	}

	opts := session.Options{
		WorkDir:     ws.Path,
		AllowedDirs: []string{e.workspaces.RepoRoot()},
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
	}
	if transcript != nil {
		opts.Transcript = transcript
	}

	result, runErr := e.agent.Run(ctx, promptText, opts)
	if result != nil {
		e.stats.RecordSession(result.Record)
	}

	if runErr != nil {
		if errors.Is(runErr, session.ErrTimeout) {
			log.Warn("attempt timed out",
				zap.Int("attempt", retry.Attempt),
				zap.Duration("timeout", cfg.Timeout))
			return timeoutNote(retry.Attempt, cfg.Timeout, partialOutput(result)), false
		}
		log.Warn("agent session crashed", zap.Int("attempt", retry.Attempt), zap.Error(runErr))
		return fmt.Sprintf("previous attempt did not finish (crashed: %v)", runErr), false
	}

	if result.Outcome == session.OutcomeFailure {
		log.Info("agent reported failure", zap.String("summary", result.Summary))
		return fmt.Sprintf("previous attempt reported failure: %s", result.Summary), false
	}

	// Agent claims completion: confirm it independently.
	res.State = StateGateCheck
	if transcript != nil {
		transcript.Mark(fmt.Sprintf("gate check, attempt %d", retry.Attempt))
	}

	var gateTranscript io.Writer
	if transcript != nil {
		gateTranscript = transcript
	}
	verdict, record, err := e.gate.Verify(ctx, t, ws.Path, e.workspaces.RepoRoot(), cfg.TargetBranch, gateTranscript)
	e.stats.RecordSession(record)
	if err != nil {
		log.Warn("gate check errored", zap.Error(err))
		return fmt.Sprintf("verification could not run: %v", err), false
	}

	log.Info("gate verdict",
		zap.Bool("pass", verdict.Pass),
		zap.String("reason", verdict.Reason.String()),
		zap.String("detail", verdict.Detail))

	if !verdict.Pass {
		return verdict.Detail, false
	}
	return "", true
}

// mergeAndCleanup attempts the merge, running one conflict-resolution
// cycle on conflict; a second conflict reopens the ticket and destroys
// the workspace without merging.
func (e *Engine) mergeAndCleanup(ctx context.Context, res *CycleResult, t *tickets.Ticket,
	ws *workspace.Workspace, retry *RetryContext, cfg Config, transcript *session.Transcript, log *zap.Logger) {

	res.State = StateMerging
	err := e.workspaces.Merge(t.ID, cfg.TargetBranch)

	var conflict *workspace.ConflictError
	if errors.As(err, &conflict) {
		log.Warn("merge conflict", zap.Strings("files", conflict.Files))
		resolved := e.resolveConflicts(ctx, t, ws, conflict, cfg, transcript, log)
		if resolved {
			err = e.workspaces.Merge(t.ID, cfg.TargetBranch)
		}
		var second *workspace.ConflictError
		if !resolved || errors.As(err, &second) {
			// Second conflict, or the resolution cycle itself failed:
			// reopen without merging and destroy the workspace.
			note := fmt.Sprintf("merge conflicts could not be resolved automatically (files: %s)",
				strings.Join(conflict.Files, ", "))
			res.Err = err
			e.escalate(res, t, cfg, note, true, log)
			return
		}
	}
	if err != nil {
		res.Err = err
		log.Error("merge failed", zap.Error(err))
		e.escalate(res, t, cfg, fmt.Sprintf("merge into %s failed: %v", cfg.TargetBranch, err), false, log)
		return
	}

	// Merged: close the ticket and record success before cleanup.
	if closeErr := e.store.Close(t.ID, fmt.Sprintf("completed in %d attempt(s)", retry.Attempt)); closeErr != nil {
		log.Error("closing ticket failed", zap.Error(closeErr))
		res.Err = closeErr
	}
	e.stats.ItemCompleted()
	e.stats.RecordCompletion(cfg.Model, time.Since(res.StartedAt), true)

	res.State = StateCleanup
	if destroyErr := e.workspaces.Destroy(t.ID, false); destroyErr != nil {
		if errors.Is(destroyErr, workspace.ErrUncommittedChanges) {
			// Anomaly, not a blocker: a later maintenance cycle
			// reconciles orphaned workspaces.
			log.Warn("workspace has uncommitted residue after merge, leaving for reconciliation")
		} else {
			log.Warn("workspace cleanup failed", zap.Error(destroyErr))
		}
	}

	res.State = StateDone
	log.Info("ticket completed", zap.Int("attempts", retry.Attempt))
}

// resolveConflicts runs a single conflict-focused agent cycle scoped to
// the conflicted files. Returns true if the cycle finished successfully.
func (e *Engine) resolveConflicts(ctx context.Context, t *tickets.Ticket, ws *workspace.Workspace,
	conflict *workspace.ConflictError, cfg Config, transcript *session.Transcript, log *zap.Logger) bool {

	promptText, err := e.prompts.Conflict(prompt.WorkContext{
		Ticket:        t,
		Attempt:       1,
		ConflictFiles: conflict.Files,
		TargetBranch:  cfg.TargetBranch,
	})
	if err != nil {
		log.Warn("conflict prompt rendering failed", zap.Error(err))
		return false
	}

	if transcript != nil {
		transcript.Mark("conflict resolution")
	}

	opts := session.Options{
		WorkDir:     ws.Path,
		AllowedDirs: []string{e.workspaces.RepoRoot()},
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
	}
	if transcript != nil {
		opts.Transcript = transcript
	}

	result, runErr := e.agent.Run(ctx, promptText, opts)
	if result != nil {
		e.stats.RecordSession(result.Record)
	}
	if runErr != nil {
		log.Warn("conflict resolution session failed", zap.Error(runErr))
		return false
	}
	return result.Outcome == session.OutcomeSuccess
}

// escalate moves the cycle into the absorbing failure state: reopen the
// ticket with a diagnostic note and optionally force-destroy the
// workspace. Escalations keep the orchestrator running.
func (e *Engine) escalate(res *CycleResult, t *tickets.Ticket, cfg Config, note string, destroyWorkspace bool, log *zap.Logger) {
	res.State = StateEscalated
	log.Warn("cycle escalated",
		zap.Int("attempts", res.Attempts),
		zap.String("note", note))

	if err := e.store.Reopen(t.ID, note); err != nil {
		log.Error("reopening ticket failed", zap.Error(err))
	} else {
		res.Reopened = true
		e.stats.ItemReopened()
	}
	e.stats.CycleEscalated()
	e.stats.RecordCompletion(cfg.Model, time.Since(res.StartedAt), false)

	if destroyWorkspace {
		if err := e.workspaces.Destroy(t.ID, true); err != nil &&
			!errors.Is(err, workspace.ErrWorkspaceNotFound) {
			log.Warn("destroying workspace after escalation failed", zap.Error(err))
		}
	}
}

// timeoutNote assembles the corrective note for a timed-out attempt,
// keeping the tail of the partial output as the most relevant part.
func timeoutNote(attempt int, timeout time.Duration, partial string) string {
	note := fmt.Sprintf("previous attempt (%d) did not finish: timed out after %v.", attempt, timeout)

	if partial == "" {
		return note + " No output captured before timeout."
	}

	const maxOutputLen = 500
	summary := partial
	if len(summary) > maxOutputLen {
		summary = "..." + summary[len(summary)-maxOutputLen:]
	}
	summary = strings.Join(strings.Fields(summary), " ")
	return note + " Partial output: " + summary
}

// partialOutput extracts whatever output a terminated session captured.
func partialOutput(result *session.Result) string {
	if result == nil {
		return ""
	}
	return result.Output
}
