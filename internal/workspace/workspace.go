// Package workspace manages git-worktree workspaces for sessions: isolated
// checkouts on dedicated branches, merged back when a session completes.
//
// Worktrees live in a .braid-worktrees directory next to the repository,
// one per workspace ID, on a branch named braid/<session-name>. Each
// worktree carries a binding file recording where it came from so a
// workspace survives engine restarts.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/braidhq/braid/internal/errors"
	"github.com/braidhq/braid/internal/git"
	"github.com/braidhq/braid/internal/logger"
	"github.com/braidhq/braid/internal/session"
)

// WorktreesDirName is the directory holding engine-managed worktrees,
// created as a sibling of the repository.
const WorktreesDirName = ".braid-worktrees"

// BranchPrefix is prepended to workspace branch names.
const BranchPrefix = "braid/"

// Strategy decides how a new session gets a workspace.
type Strategy string

const (
	// StrategyCreate always creates a fresh worktree.
	StrategyCreate Strategy = "create"
	// StrategyUseExisting binds to an existing worktree path.
	StrategyUseExisting Strategy = "use-existing"
	// StrategyNever runs the session without any workspace.
	StrategyNever Strategy = "never"
	// StrategyAsk defers the decision to the caller.
	StrategyAsk Strategy = "ask"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCreate, StrategyUseExisting, StrategyNever, StrategyAsk:
		return true
	}
	return false
}

// ResolveStrategy picks the effective strategy: an explicit request wins,
// then the repository's configured default, then Create.
func ResolveStrategy(requested, repoDefault Strategy) Strategy {
	if requested != "" && requested.Valid() {
		return requested
	}
	if repoDefault != "" && repoDefault.Valid() {
		return repoDefault
	}
	return StrategyCreate
}

// Binding records a workspace and where it came from.
type Binding struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Path        string    `json:"path"`
	Branch      string    `json:"branch"`
	RepoRoot    string    `json:"repo_root"`
	BaseBranch  string    `json:"base_branch"`
	MergeTarget string    `json:"merge_target"`
	Temporary   bool      `json:"temporary"` // Created by the engine; removable on cleanup
	CreatedAt   time.Time `json:"created_at"`
}

// Ref converts the binding to the form stored in session metadata.
func (b *Binding) Ref() *session.WorkspaceRef {
	return &session.WorkspaceRef{
		Path:        b.Path,
		Branch:      b.Branch,
		RepoRoot:    b.RepoRoot,
		MergeTarget: b.MergeTarget,
		Temporary:   b.Temporary,
	}
}

// DefaultGitTimeout bounds each merge-workflow git invocation. A stuck
// subprocess fails with a timeout error instead of hanging its caller.
const DefaultGitTimeout = 60 * time.Second

// Manager creates, merges, and cleans up workspaces.
type Manager struct {
	git        *git.Service
	gitTimeout time.Duration
}

// NewManager creates a workspace manager over the given git service.
func NewManager(g *git.Service) *Manager {
	return &Manager{git: g, gitTimeout: DefaultGitTimeout}
}

// Create makes a new worktree for a session. The branch is
// braid/<name>; the worktree lives at <repoParent>/.braid-worktrees/<id>.
//
// Collisions are conflicts: an existing branch or worktree path fails
// without touching the repo. If worktree creation partially succeeds, the
// partial state is rolled back before the error returns.
func (m *Manager) Create(ctx context.Context, repoPath, sessionID, name string) (*Binding, error) {
	const op = errors.Op("workspace.Create")

	if err := m.git.ValidateRepo(ctx, repoPath); err != nil {
		return nil, err
	}
	repoRoot, err := m.git.RepoRoot(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	branch := BranchPrefix + name
	if err := git.ValidateBranchName(branch); err != nil {
		return nil, err
	}

	if m.git.BranchExists(ctx, repoRoot, branch) {
		return nil, errors.BranchExists(branch)
	}

	id := uuid.New().String()
	worktreePath := filepath.Join(filepath.Dir(repoRoot), WorktreesDirName, id)
	if _, err := os.Stat(worktreePath); err == nil {
		return nil, errors.WorkspaceExists(worktreePath)
	}

	baseBranch := m.git.DefaultBranch(ctx, repoRoot)

	logger.Info("Workspace: creating worktree branch=%s path=%s base=%s", branch, worktreePath, baseBranch)
	if err := m.git.AddWorktree(ctx, repoRoot, branch, worktreePath, "HEAD"); err != nil {
		// Roll back any partial state so a retry starts clean
		m.rollbackCreate(ctx, repoRoot, branch, worktreePath)
		return nil, err
	}

	binding := &Binding{
		ID:          id,
		SessionID:   sessionID,
		Path:        worktreePath,
		Branch:      branch,
		RepoRoot:    repoRoot,
		BaseBranch:  baseBranch,
		MergeTarget: baseBranch,
		Temporary:   true,
		CreatedAt:   time.Now().UTC(),
	}

	if err := m.PersistBinding(binding); err != nil {
		m.rollbackCreate(ctx, repoRoot, branch, worktreePath)
		return nil, errors.E(op, errors.KindIO, "failed to persist workspace binding", err)
	}
	return binding, nil
}

// rollbackCreate removes whatever a failed Create left behind.
func (m *Manager) rollbackCreate(ctx context.Context, repoRoot, branch, worktreePath string) {
	if _, err := os.Stat(worktreePath); err == nil {
		if err := m.git.RemoveWorktree(ctx, repoRoot, worktreePath); err != nil {
			logger.Warn("Workspace: rollback worktree removal failed: %v", err)
			os.RemoveAll(worktreePath)
		}
	}
	if m.git.BranchExists(ctx, repoRoot, branch) {
		if err := m.git.DeleteBranch(ctx, repoRoot, branch, true); err != nil {
			logger.Warn("Workspace: rollback branch deletion failed: %v", err)
		}
	}
}

// UseExisting binds a session to a worktree that already exists. The path
// must be a registered worktree of the repository.
func (m *Manager) UseExisting(ctx context.Context, repoPath, sessionID, path string) (*Binding, error) {
	const op = errors.Op("workspace.UseExisting")

	repoRoot, err := m.git.RepoRoot(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	worktrees, err := m.git.ListWorktrees(ctx, repoRoot)
	if err != nil {
		return nil, err
	}
	for _, wt := range worktrees {
		if wt.Path != path {
			continue
		}
		binding := &Binding{
			ID:          uuid.New().String(),
			SessionID:   sessionID,
			Path:        wt.Path,
			Branch:      wt.Branch,
			RepoRoot:    repoRoot,
			BaseBranch:  m.git.DefaultBranch(ctx, repoRoot),
			MergeTarget: m.git.DefaultBranch(ctx, repoRoot),
			Temporary:   false,
			CreatedAt:   time.Now().UTC(),
		}
		if err := m.PersistBinding(binding); err != nil {
			return nil, errors.E(op, errors.KindIO, "failed to persist workspace binding", err)
		}
		return binding, nil
	}
	return nil, errors.E(op, errors.KindNotFound, fmt.Sprintf("%s is not a worktree of %s", path, repoRoot))
}
