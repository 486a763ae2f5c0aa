package workspace

import (
	"context"
	"fmt"

	"github.com/braidhq/braid/internal/errors"
	"github.com/braidhq/braid/internal/logger"
	"github.com/braidhq/braid/internal/session"
)

// timeoutErr maps a git failure under an expired merge-workflow deadline
// to a typed timeout; any other failure passes through unchanged.
func (m *Manager) timeoutErr(op errors.Op, ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.E(op, errors.KindTimeout, fmt.Sprintf("git did not finish within %s", m.gitTimeout), err)
	}
	return err
}

// PrepareMerge verifies the workspace is ready to merge: the worktree must
// have no uncommitted changes.
func (m *Manager) PrepareMerge(ctx context.Context, b *Binding) error {
	const op = errors.Op("workspace.PrepareMerge")
	tctx, cancel := context.WithTimeout(ctx, m.gitTimeout)
	defer cancel()

	dirty, err := m.git.HasUncommittedChanges(tctx, b.Path)
	if err != nil {
		return m.timeoutErr(op, tctx, err)
	}
	if dirty {
		return errors.UncommittedChanges(b.Path)
	}
	return nil
}

// DetectConflicts dry-runs the merge of the workspace branch into its
// target and returns the conflicting paths. The repository is never
// modified.
func (m *Manager) DetectConflicts(ctx context.Context, b *Binding) ([]string, error) {
	const op = errors.Op("workspace.DetectConflicts")
	tctx, cancel := context.WithTimeout(ctx, m.gitTimeout)
	defer cancel()

	conflicts, err := m.git.MergeDryRun(tctx, b.RepoRoot, b.MergeTarget, b.Branch)
	if err != nil {
		return nil, m.timeoutErr(op, tctx, err)
	}
	return conflicts, nil
}

// Merge merges the workspace branch into its target with a merge commit.
//
// The repository's current branch is recorded first and restored
// afterwards; a failure at any step - checkout, merge, or restore - rolls
// the repository back to the recorded branch before the error returns, so
// a failed merge never strands the repository on the target branch.
//
// Each git invocation runs under the manager's timeout; a stuck
// subprocess returns a timeout error rather than blocking the caller. The
// abort and restore steps run on the parent context so a timed-out merge
// can still be rolled back.
func (m *Manager) Merge(ctx context.Context, b *Binding) error {
	const op = errors.Op("workspace.Merge")
	tctx, cancel := context.WithTimeout(ctx, m.gitTimeout)
	defer cancel()

	originalBranch, err := m.git.CurrentBranch(tctx, b.RepoRoot)
	if err != nil {
		return m.timeoutErr(op, tctx, err)
	}

	logger.Info("Workspace: merging %s into %s (repo on %s)", b.Branch, b.MergeTarget, originalBranch)

	if err := m.git.Checkout(tctx, b.RepoRoot, b.MergeTarget); err != nil {
		m.restoreBranch(ctx, b.RepoRoot, originalBranch)
		return m.timeoutErr(op, tctx, err)
	}

	if err := m.git.Merge(tctx, b.RepoRoot, b.Branch); err != nil {
		// Leave no half-merged state behind before switching back
		actx, acancel := context.WithTimeout(ctx, m.gitTimeout)
		m.git.AbortMerge(actx, b.RepoRoot)
		acancel()
		m.restoreBranch(ctx, b.RepoRoot, originalBranch)
		return m.timeoutErr(op, tctx, err)
	}

	m.restoreBranch(ctx, b.RepoRoot, originalBranch)
	logger.Info("Workspace: merged %s into %s", b.Branch, b.MergeTarget)
	return nil
}

// restoreBranch switches the repository back to branch, logging rather
// than failing: by this point the merge outcome is already decided.
func (m *Manager) restoreBranch(ctx context.Context, repoRoot, branch string) {
	if branch == "" || branch == "HEAD" {
		return
	}
	tctx, cancel := context.WithTimeout(ctx, m.gitTimeout)
	defer cancel()
	if err := m.git.Checkout(tctx, repoRoot, branch); err != nil {
		logger.Error("Workspace: failed to restore branch %s: %v", branch, err)
	}
}

// Cleanup removes a workspace's worktree and branch. It refuses unless the
// owning session has reached a terminal status and the caller has
// confirmed; a live session never loses its workspace to cleanup.
func (m *Manager) Cleanup(ctx context.Context, b *Binding, status session.Status, confirmed bool) error {
	const op = errors.Op("workspace.Cleanup")

	if !status.IsTerminal() {
		return errors.E(op, errors.KindPrecondition, "session has not terminated; refusing to remove workspace")
	}
	if !confirmed {
		return errors.E(op, errors.KindPrecondition, "cleanup requires confirmation")
	}
	if !b.Temporary {
		return errors.E(op, errors.KindPrecondition, "workspace was not created by the engine; refusing to remove")
	}

	if err := m.git.RemoveWorktree(ctx, b.RepoRoot, b.Path); err != nil {
		return err
	}

	// Branch deletion is best-effort; the worktree is already gone
	if err := m.git.DeleteBranch(ctx, b.RepoRoot, b.Branch, false); err != nil {
		logger.Warn("Workspace: failed to delete branch %s (may have unmerged commits): %v", b.Branch, err)
	}
	return nil
}
