package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/braidhq/braid/internal/logger"
)

// Orphan is a worktree in a .braid-worktrees directory with no live
// session binding.
type Orphan struct {
	Path     string // Full path to the worktree
	RepoRoot string // Repository the worktree belongs to
	ID       string // Workspace ID (directory name)
}

// FindOrphans scans the .braid-worktrees directories next to the given
// repositories for worktrees whose binding points at a session not in
// liveSessionIDs. Worktrees without a readable binding are orphans too.
func (m *Manager) FindOrphans(ctx context.Context, repoPaths []string, liveSessionIDs map[string]bool) ([]Orphan, error) {
	var orphans []Orphan

	checkedDirs := make(map[string]bool)
	for _, repoPath := range repoPaths {
		repoRoot, err := m.git.RepoRoot(ctx, repoPath)
		if err != nil {
			continue
		}
		worktreesDir := filepath.Join(filepath.Dir(repoRoot), WorktreesDirName)
		if checkedDirs[worktreesDir] {
			continue
		}
		checkedDirs[worktreesDir] = true

		entries, err := os.ReadDir(worktreesDir)
		if err != nil {
			continue // Directory doesn't exist or can't be read
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			path := filepath.Join(worktreesDir, entry.Name())

			binding, err := m.LoadBinding(path)
			if err == nil && liveSessionIDs[binding.SessionID] {
				continue
			}
			orphans = append(orphans, Orphan{
				Path:     path,
				RepoRoot: repoRoot,
				ID:       entry.Name(),
			})
		}
	}

	logger.Debug("Workspace: found %d orphaned worktree(s)", len(orphans))
	return orphans, nil
}

// PruneFailure records an orphan that could not be fully removed.
type PruneFailure struct {
	Path string
	Err  error
}

// PruneOrphans removes orphaned worktrees and their branches. Returns how
// many were fully removed, plus the failures: items whose removal failed
// keep going rather than aborting the sweep, and every failure is
// reported to the caller.
func (m *Manager) PruneOrphans(ctx context.Context, repoPaths []string, liveSessionIDs map[string]bool) (int, []PruneFailure, error) {
	orphans, err := m.FindOrphans(ctx, repoPaths, liveSessionIDs)
	if err != nil {
		return 0, nil, err
	}

	pruned := 0
	var failures []PruneFailure
	for _, orphan := range orphans {
		logger.Info("Workspace: pruning orphaned worktree %s", orphan.Path)

		// Remember the branch before the binding file disappears
		branch := ""
		if binding, err := m.LoadBinding(orphan.Path); err == nil {
			branch = binding.Branch
		}

		if err := m.git.RemoveWorktree(ctx, orphan.RepoRoot, orphan.Path); err != nil {
			// If git refuses, fall back to direct removal
			logger.Warn("Workspace: git worktree remove failed, trying direct removal: %v", err)
			if rmErr := os.RemoveAll(orphan.Path); rmErr != nil {
				logger.Error("Workspace: failed to remove orphan %s: %v", orphan.Path, rmErr)
				failures = append(failures, PruneFailure{Path: orphan.Path, Err: err})
				continue
			}
		}

		if branch != "" {
			if err := m.git.DeleteBranch(ctx, orphan.RepoRoot, branch, true); err != nil {
				logger.Warn("Workspace: failed to delete orphan branch %s: %v", branch, err)
				failures = append(failures, PruneFailure{
					Path: orphan.Path,
					Err:  fmt.Errorf("worktree removed but branch %s remains: %w", branch, err),
				})
			}
		}
		pruned++
	}

	return pruned, failures, nil
}
