// Package workspace manages isolated (branch, directory) pairs used to
// execute one ticket's changes without touching the shared working tree.
package workspace

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultWorkspaceDir is the default directory name for storing workspaces.
const DefaultWorkspaceDir = ".workspaces"

// BranchPrefix is the prefix for workspace branch names.
const BranchPrefix = "foreman/"

// SyncWorkspaceID names the reserved workspace used for ticket-store
// synchronization. It is permanently excluded from lifecycle management:
// never listed, merged or destroyed.
const SyncWorkspaceID = "store-sync"

// ErrNotGitRepo is returned when the directory is not a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

// ErrWorkspaceExists is returned when a workspace already exists for the ticket.
var ErrWorkspaceExists = errors.New("workspace already exists")

// ErrWorkspaceNotFound is returned when no workspace exists for the ticket.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// ErrUncommittedChanges is returned by Destroy without force when the
// workspace still holds unstaged or uncommitted modifications. Automation
// must never silently discard work; callers escalate or pass force.
var ErrUncommittedChanges = errors.New("workspace has uncommitted changes")

// ErrReservedWorkspace is returned for any lifecycle operation aimed at
// the store-sync workspace.
var ErrReservedWorkspace = errors.New("workspace is reserved for store synchronization")

// ConflictError reports a merge that stopped on conflicts. The merge is
// aborted before this is returned; resolving (or abandoning) is the
// caller's decision.
type ConflictError struct {
	Branch string
	Target string
	Files  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merging %s into %s: conflicts in %s",
		e.Branch, e.Target, strings.Join(e.Files, ", "))
}

// Workspace is an active workspace bound to one ticket.
type Workspace struct {
	Path     string    // Absolute path to workspace directory
	Branch   string    // Branch name (e.g., foreman/abc123)
	TicketID string    // Associated ticket ID
	Created  time.Time // When the workspace was created
}

// Manager owns all mutation of the repository's branch and worktree
// namespace. Branch names and directory paths are a deterministic function
// of the ticket ID, so a create after a crash detects the stale leftover
// instead of double-allocating.
type Manager struct {
	repoRoot     string // Root of main repository
	workspaceDir string // Base directory for workspaces (default: .workspaces)
}

// NewManager creates a workspace manager for the given repository.
// Returns ErrNotGitRepo if repoRoot is not a git repository.
func NewManager(repoRoot string) (*Manager, error) {
	gitDir := filepath.Join(repoRoot, ".git")
	info, err := os.Stat(gitDir)
	if err != nil {
		return nil, ErrNotGitRepo
	}
	// .git can be a directory (normal repo) or a file (worktree itself)
	if !info.IsDir() && !info.Mode().IsRegular() {
		return nil, ErrNotGitRepo
	}

	return &Manager{
		repoRoot:     repoRoot,
		workspaceDir: filepath.Join(repoRoot, DefaultWorkspaceDir),
	}, nil
}

// Create creates a new workspace for a ticket, branched from sourceBranch
// (or HEAD when sourceBranch is empty). Fails fast with ErrWorkspaceExists
// if the deterministic path is already occupied; the caller must destroy
// explicitly before recreating.
func (m *Manager) Create(ticketID, sourceBranch string) (*Workspace, error) {
	if ticketID == SyncWorkspaceID {
		return nil, ErrReservedWorkspace
	}

	wsPath := m.workspacePath(ticketID)
	branch := m.branchName(ticketID)

	if _, err := os.Stat(wsPath); err == nil {
		return nil, ErrWorkspaceExists
	}

	if _, err := EnsureGitignore(m.repoRoot); err != nil {
		return nil, fmt.Errorf("ensuring gitignore: %w", err)
	}

	if err := os.MkdirAll(m.workspaceDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}

	var cmd *exec.Cmd
	switch {
	case m.branchExists(branch):
		// Stale branch from an earlier cycle: reuse it.
		cmd = exec.Command("git", "worktree", "add", wsPath, branch)
	case sourceBranch != "":
		cmd = exec.Command("git", "worktree", "add", wsPath, "-b", branch, sourceBranch)
	default:
		cmd = exec.Command("git", "worktree", "add", wsPath, "-b", branch)
	}
	cmd.Dir = m.repoRoot

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %s: %w", strings.TrimSpace(string(output)), err)
	}

	return &Workspace{
		Path:     wsPath,
		Branch:   branch,
		TicketID: ticketID,
		Created:  time.Now(),
	}, nil
}

// Destroy removes a workspace and deletes its branch. Without force it
// refuses with ErrUncommittedChanges when the workspace holds unstaged or
// uncommitted modifications, leaving the workspace intact.
func (m *Manager) Destroy(ticketID string, force bool) error {
	if ticketID == SyncWorkspaceID {
		return ErrReservedWorkspace
	}

	wsPath := m.workspacePath(ticketID)
	branch := m.branchName(ticketID)

	if _, err := os.Stat(wsPath); os.IsNotExist(err) {
		return ErrWorkspaceNotFound
	}

	if !force {
		dirty, err := m.hasUncommittedChanges(wsPath)
		if err != nil {
			return fmt.Errorf("checking workspace state: %w", err)
		}
		if dirty {
			return ErrUncommittedChanges
		}
	}

	cmd := exec.Command("git", "worktree", "remove", wsPath, "--force")
	cmd.Dir = m.repoRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to remove workspace: %s: %w", strings.TrimSpace(string(output)), err)
	}

	if m.branchExists(branch) {
		cmd = exec.Command("git", "branch", "-D", branch)
		cmd.Dir = m.repoRoot
		output, err = cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("failed to delete branch: %s: %w", strings.TrimSpace(string(output)), err)
		}
	}

	return nil
}

// Merge merges the ticket's branch into targetBranch in the main working
// tree. On conflict the merge is aborted and a *ConflictError carrying the
// conflicted file set is returned; no automatic resolution is attempted.
func (m *Manager) Merge(ticketID, targetBranch string) error {
	if ticketID == SyncWorkspaceID {
		return ErrReservedWorkspace
	}

	branch := m.branchName(ticketID)
	if !m.branchExists(branch) {
		return ErrWorkspaceNotFound
	}

	if err := m.checkoutTarget(targetBranch); err != nil {
		return err
	}

	cmd := exec.Command("git", "merge", "--no-ff", "--no-edit", branch)
	cmd.Dir = m.repoRoot
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	files, listErr := m.conflictedFiles()
	if listErr != nil || len(files) == 0 {
		// Not a conflict stop; report the raw merge failure.
		m.abortMerge()
		return fmt.Errorf("failed to merge %s into %s: %s: %w",
			branch, targetBranch, strings.TrimSpace(string(output)), err)
	}

	m.abortMerge()
	return &ConflictError{Branch: branch, Target: targetBranch, Files: files}
}

// List enumerates active foreman workspaces, excluding the reserved
// store-sync workspace.
func (m *Manager) List() ([]*Workspace, error) {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = m.repoRoot

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	return m.parseWorktreeList(output)
}

// Get returns the workspace for a ticket, or nil if none exists.
func (m *Manager) Get(ticketID string) (*Workspace, error) {
	workspaces, err := m.List()
	if err != nil {
		return nil, err
	}

	for _, ws := range workspaces {
		if ws.TicketID == ticketID {
			return ws, nil
		}
	}

	return nil, nil
}

// Exists checks if a workspace exists for the ticket.
func (m *Manager) Exists(ticketID string) bool {
	_, err := os.Stat(m.workspacePath(ticketID))
	return err == nil
}

// RepoRoot returns the root of the main repository.
func (m *Manager) RepoRoot() string {
	return m.repoRoot
}

// workspacePath returns the deterministic path for a ticket's workspace.
func (m *Manager) workspacePath(ticketID string) string {
	return filepath.Join(m.workspaceDir, ticketID)
}

// branchName returns the deterministic branch name for a ticket.
func (m *Manager) branchName(ticketID string) string {
	return BranchPrefix + ticketID
}

// branchExists checks if a branch exists.
func (m *Manager) branchExists(branch string) bool {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = m.repoRoot
	return cmd.Run() == nil
}

// hasUncommittedChanges reports whether the working tree at dir is dirty.
func (m *Manager) hasUncommittedChanges(dir string) (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return false, err
	}
	return len(bytes.TrimSpace(output)) > 0, nil
}

// checkoutTarget ensures the main working tree has targetBranch checked out.
func (m *Manager) checkoutTarget(targetBranch string) error {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = m.repoRoot
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("resolving current branch: %w", err)
	}
	if strings.TrimSpace(string(output)) == targetBranch {
		return nil
	}

	cmd = exec.Command("git", "checkout", targetBranch)
	cmd.Dir = m.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to checkout %s: %s: %w", targetBranch, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// conflictedFiles lists paths with unresolved merge conflicts in the main tree.
func (m *Manager) conflictedFiles() ([]string, error) {
	cmd := exec.Command("git", "diff", "--name-only", "--diff-filter=U")
	cmd.Dir = m.repoRoot
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// abortMerge resets the main tree out of a stopped merge.
func (m *Manager) abortMerge() {
	cmd := exec.Command("git", "merge", "--abort")
	cmd.Dir = m.repoRoot
	_ = cmd.Run()
}

// parseWorktreeList parses the output of `git worktree list --porcelain`.
// Format:
//
//	worktree /path/to/worktree
//	HEAD <commit>
//	branch refs/heads/<branch>
//	<blank line>
func (m *Manager) parseWorktreeList(output []byte) ([]*Workspace, error) {
	var workspaces []*Workspace
	var current *Workspace

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "worktree ") {
			path := strings.TrimPrefix(line, "worktree ")
			current = &Workspace{Path: path}
		} else if strings.HasPrefix(line, "branch ") && current != nil {
			branch := strings.TrimPrefix(line, "branch refs/heads/")
			current.Branch = branch

			if strings.HasPrefix(branch, BranchPrefix) {
				id := strings.TrimPrefix(branch, BranchPrefix)
				if id != SyncWorkspaceID {
					current.TicketID = id
					workspaces = append(workspaces, current)
				}
			}
			current = nil
		} else if line == "" {
			current = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse worktree list: %w", err)
	}

	return workspaces, nil
}
