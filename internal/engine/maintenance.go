package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/foremanloop/foreman/internal/maintenance"
	"github.com/foremanloop/foreman/internal/session"
	"github.com/foremanloop/foreman/internal/workspace"
)

// runMaintenance runs one housekeeping agent in place of a ticket cycle.
// Maintenance failures never stop the dispatch loop; they are logged and
// the loop moves on.
func (e *Engine) runMaintenance(ctx context.Context, spec *maintenance.AgentSpec, cfg Config) {
	log := e.log.With(zap.String("maintenance", spec.Name))
	log.Info("maintenance cycle starting",
		zap.Int("every", spec.Every),
		zap.Bool("needs_workspace", spec.NeedsWorkspace))

	e.stats.MaintenanceRun(spec.Name)

	workDir := e.workspaces.RepoRoot()
	var ws *workspace.Workspace
	if spec.NeedsWorkspace {
		var err error
		ws, err = e.createWorkspace(spec.WorkspaceID(), cfg, log)
		if err != nil {
			log.Error("maintenance workspace creation failed", zap.Error(err))
			return
		}
		workDir = ws.Path
		defer func() {
			if err := e.workspaces.Destroy(spec.WorkspaceID(), true); err != nil {
				log.Warn("maintenance workspace cleanup failed", zap.Error(err))
			}
		}()
	}

	model := spec.Model
	if model == "" {
		model = cfg.Model
	}

	result, err := e.agent.Run(ctx, spec.Prompt, session.Options{
		WorkDir:     workDir,
		AllowedDirs: []string{e.workspaces.RepoRoot()},
		Model:       model,
		Timeout:     cfg.Timeout,
	})
	if result != nil {
		e.stats.RecordSession(result.Record)
	}
	if err != nil {
		if errors.Is(err, session.ErrTimeout) {
			log.Warn("maintenance agent timed out", zap.Duration("timeout", cfg.Timeout))
		} else {
			log.Warn("maintenance agent crashed", zap.Error(err))
		}
		return
	}
	if result.Outcome != session.OutcomeSuccess {
		log.Warn("maintenance agent did not succeed", zap.String("summary", result.Summary))
		return
	}

	if spec.MergeBack && ws != nil {
		if err := e.workspaces.Merge(spec.WorkspaceID(), cfg.TargetBranch); err != nil {
			// No conflict-resolution cycle for maintenance work; the
			// branch is discarded with the workspace.
			log.Warn("maintenance merge failed, discarding branch", zap.Error(err))
			return
		}
		log.Info("maintenance work merged", zap.String("target", cfg.TargetBranch))
	}

	log.Info("maintenance cycle finished", zap.String("summary", result.Summary))
}
