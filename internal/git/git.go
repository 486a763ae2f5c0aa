// Package git wraps the git CLI operations the engine needs: branch and
// worktree management, merges, and repository inspection. All commands run
// through a swappable executor so tests and demos never spawn processes.
package git

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/braidhq/braid/internal/errors"
	pexec "github.com/braidhq/braid/internal/exec"
	"github.com/braidhq/braid/internal/logger"
)

// MaxBranchNameLength is the maximum length for user-provided branch names.
const MaxBranchNameLength = 100

// validBranchNameRegex matches valid git branch name characters
// Git branch names cannot contain: space, ~, ^, :, ?, *, [, \, or control characters
// They also cannot start with - or end with .lock
var validBranchNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/_.-]*$`)

// Service performs git operations against a repository or worktree.
type Service struct {
	executor pexec.CommandExecutor
}

// NewService creates a git service using the real command executor.
func NewService() *Service {
	return &Service{executor: pexec.NewRealExecutor()}
}

// NewServiceWithExecutor creates a git service with a custom executor.
// This is primarily used for testing and demo generation.
func NewServiceWithExecutor(e pexec.CommandExecutor) *Service {
	return &Service{executor: e}
}

// WorktreeInfo describes one entry from `git worktree list --porcelain`.
type WorktreeInfo struct {
	Path   string
	Head   string
	Branch string // Short branch name, empty for a detached HEAD
}

// ValidateBranchName checks if a branch name is valid for git
func ValidateBranchName(branch string) error {
	const op = errors.Op("git.ValidateBranchName")

	if branch == "" {
		return errors.E(op, errors.KindInvalid, "branch name cannot be empty")
	}

	if len(branch) > MaxBranchNameLength {
		return errors.E(op, errors.KindInvalid, fmt.Sprintf("branch name too long (max %d characters)", MaxBranchNameLength))
	}

	if strings.HasPrefix(branch, "-") {
		return errors.E(op, errors.KindInvalid, "branch name cannot start with '-'")
	}

	if strings.HasSuffix(branch, ".lock") {
		return errors.E(op, errors.KindInvalid, "branch name cannot end with '.lock'")
	}

	if strings.Contains(branch, "..") {
		return errors.E(op, errors.KindInvalid, "branch name cannot contain '..'")
	}

	if !validBranchNameRegex.MatchString(branch) {
		return errors.E(op, errors.KindInvalid, "branch name contains invalid characters (use letters, numbers, /, _, ., -)")
	}

	return nil
}

// ValidateRepo checks if a path is a valid git repository
func (s *Service) ValidateRepo(ctx context.Context, path string) error {
	if strings.HasPrefix(path, "~") {
		return errors.E(errors.Op("git.ValidateRepo"), errors.KindInvalid, "please use absolute path instead of ~")
	}

	output, err := s.executor.CombinedOutput(ctx, path, "git", "rev-parse", "--git-dir")
	if err != nil {
		logger.Debug("Git: not a repository: %s: %s", path, strings.TrimSpace(string(output)))
		return errors.GitNotRepo(path)
	}
	return nil
}

// RepoRoot returns the top-level directory of the repository containing path.
func (s *Service) RepoRoot(ctx context.Context, path string) (string, error) {
	output, err := s.executor.Output(ctx, path, "git", "rev-parse", "--show-toplevel")
	if err != nil {
		return "", errors.GitNotRepo(path)
	}
	return strings.TrimSpace(string(output)), nil
}

// CurrentBranch returns the branch currently checked out at dir.
// Returns "HEAD" for a detached HEAD.
func (s *Service) CurrentBranch(ctx context.Context, dir string) (string, error) {
	output, err := s.executor.Output(ctx, dir, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", errors.GitFailed(errors.Op("git.CurrentBranch"), fmt.Sprintf("failed to resolve HEAD in %s", dir), err)
	}
	branch := strings.TrimSpace(string(output))
	if branch == "" {
		return "HEAD", nil
	}
	return branch, nil
}

// DefaultBranch returns the default branch name for the repository
// (e.g., "main" or "master"). Returns "main" as fallback if it cannot
// be determined.
func (s *Service) DefaultBranch(ctx context.Context, repoPath string) string {
	// Try to get the default branch from origin's HEAD reference
	output, err := s.executor.Output(ctx, repoPath, "git", "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		// Output is like "refs/remotes/origin/main"
		ref := strings.TrimSpace(string(output))
		if strings.HasPrefix(ref, "refs/remotes/origin/") {
			return strings.TrimPrefix(ref, "refs/remotes/origin/")
		}
	}

	// Fallback: check if origin/main exists
	if _, _, err := s.executor.Run(ctx, repoPath, "git", "rev-parse", "--verify", "origin/main"); err == nil {
		return "main"
	}

	// Fallback: check if origin/master exists
	if _, _, err := s.executor.Run(ctx, repoPath, "git", "rev-parse", "--verify", "origin/master"); err == nil {
		return "master"
	}

	// Local-only repos: prefer whichever of main/master resolves
	if _, _, err := s.executor.Run(ctx, repoPath, "git", "rev-parse", "--verify", "main"); err == nil {
		return "main"
	}
	if _, _, err := s.executor.Run(ctx, repoPath, "git", "rev-parse", "--verify", "master"); err == nil {
		return "master"
	}

	return "main"
}

// BranchExists checks if a branch already exists in the repo
func (s *Service) BranchExists(ctx context.Context, repoPath, branch string) bool {
	_, _, err := s.executor.Run(ctx, repoPath, "git", "rev-parse", "--verify", "refs/heads/"+branch)
	return err == nil
}

// HasUncommittedChanges reports whether the working tree at dir has any
// staged or unstaged changes.
func (s *Service) HasUncommittedChanges(ctx context.Context, dir string) (bool, error) {
	output, err := s.executor.Output(ctx, dir, "git", "status", "--porcelain")
	if err != nil {
		return false, errors.GitFailed(errors.Op("git.HasUncommittedChanges"), fmt.Sprintf("git status failed in %s", dir), err)
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// Checkout switches the repository at repoPath to the given branch.
func (s *Service) Checkout(ctx context.Context, repoPath, branch string) error {
	output, err := s.executor.CombinedOutput(ctx, repoPath, "git", "checkout", branch)
	if err != nil {
		return errors.GitFailed(errors.Op("git.Checkout"), fmt.Sprintf("failed to checkout %s: %s", branch, strings.TrimSpace(string(output))), err)
	}
	return nil
}

// Merge merges branch into the currently checked-out branch with a merge
// commit, matching `git merge --no-ff -m "Merge branch '<branch>'"`.
func (s *Service) Merge(ctx context.Context, repoPath, branch string) error {
	msg := fmt.Sprintf("Merge branch '%s'", branch)
	output, err := s.executor.CombinedOutput(ctx, repoPath, "git", "merge", branch, "--no-ff", "-m", msg)
	if err != nil {
		return errors.GitFailed(errors.Op("git.Merge"), fmt.Sprintf("failed to merge %s: %s", branch, strings.TrimSpace(string(output))), err)
	}
	return nil
}

// AbortMerge aborts an in-progress merge. Best-effort: returns nil when no
// merge is in progress.
func (s *Service) AbortMerge(ctx context.Context, repoPath string) error {
	if output, err := s.executor.CombinedOutput(ctx, repoPath, "git", "merge", "--abort"); err != nil {
		logger.Debug("Git: merge --abort: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

// MergeDryRun checks whether merging branch into target would conflict,
// without touching the working tree. It returns the paths that would
// conflict, derived from `git merge-tree` stanzas marked "changed in both":
// the path is the last field of each indented base/our/their line under the
// stanza header.
func (s *Service) MergeDryRun(ctx context.Context, repoPath, target, branch string) ([]string, error) {
	output, err := s.executor.Output(ctx, repoPath, "git", "merge-tree", target, branch)
	if err != nil {
		return nil, errors.GitFailed(errors.Op("git.MergeDryRun"), fmt.Sprintf("merge-tree %s %s failed", target, branch), err)
	}

	var conflicts []string
	seen := make(map[string]bool)
	inConflict := false
	for _, line := range strings.Split(string(output), "\n") {
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			inConflict = strings.HasPrefix(line, "changed in both")
			continue
		}
		if !inConflict {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		path := fields[len(fields)-1]
		if !seen[path] {
			seen[path] = true
			conflicts = append(conflicts, path)
		}
	}
	return conflicts, nil
}

// AddWorktree creates a new worktree at path on a new branch, based on
// startPoint.
func (s *Service) AddWorktree(ctx context.Context, repoPath, branch, path, startPoint string) error {
	output, err := s.executor.CombinedOutput(ctx, repoPath, "git", "worktree", "add", "-b", branch, path, startPoint)
	if err != nil {
		return errors.GitFailed(errors.Op("git.AddWorktree"), fmt.Sprintf("failed to create worktree for %s: %s", branch, strings.TrimSpace(string(output))), err)
	}
	return nil
}

// RemoveWorktree removes the worktree at path and prunes stale references.
func (s *Service) RemoveWorktree(ctx context.Context, repoPath, path string) error {
	output, err := s.executor.CombinedOutput(ctx, repoPath, "git", "worktree", "remove", path, "--force")
	if err != nil {
		return errors.GitFailed(errors.Op("git.RemoveWorktree"), fmt.Sprintf("failed to remove worktree %s: %s", path, strings.TrimSpace(string(output))), err)
	}

	// Prune worktree references (best-effort cleanup)
	if output, err := s.executor.CombinedOutput(ctx, repoPath, "git", "worktree", "prune"); err != nil {
		logger.Warn("Git: worktree prune failed (best-effort): %s - %v", strings.TrimSpace(string(output)), err)
	}
	return nil
}

// ListWorktrees returns all worktrees registered for the repository,
// parsed from `git worktree list --porcelain`.
func (s *Service) ListWorktrees(ctx context.Context, repoPath string) ([]WorktreeInfo, error) {
	output, err := s.executor.Output(ctx, repoPath, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, errors.GitFailed(errors.Op("git.ListWorktrees"), "git worktree list failed", err)
	}
	return parseWorktreeList(string(output)), nil
}

// parseWorktreeList parses porcelain stanzas of the form:
//
//	worktree /path/to/tree
//	HEAD abc123
//	branch refs/heads/name
//
// separated by blank lines. Detached worktrees have no branch line.
func parseWorktreeList(output string) []WorktreeInfo {
	var worktrees []WorktreeInfo
	var current *WorktreeInfo

	flush := func() {
		if current != nil && current.Path != "" {
			worktrees = append(worktrees, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			current = &WorktreeInfo{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "HEAD "):
			if current != nil {
				current.Head = strings.TrimPrefix(line, "HEAD ")
			}
		case strings.HasPrefix(line, "branch "):
			if current != nil {
				ref := strings.TrimPrefix(line, "branch ")
				current.Branch = strings.TrimPrefix(ref, "refs/heads/")
			}
		}
	}
	flush()

	return worktrees
}

// DeleteBranch deletes a local branch. With force, uses -D.
func (s *Service) DeleteBranch(ctx context.Context, repoPath, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	output, err := s.executor.CombinedOutput(ctx, repoPath, "git", "branch", flag, branch)
	if err != nil {
		return errors.GitFailed(errors.Op("git.DeleteBranch"), fmt.Sprintf("failed to delete branch %s: %s", branch, strings.TrimSpace(string(output))), err)
	}
	return nil
}

// FetchOrigin fetches the latest changes from origin.
// Returns nil if there's no remote (local-only repo) or if the fetch fails;
// offline usage should never block engine operations.
func (s *Service) FetchOrigin(ctx context.Context, repoPath string) error {
	if _, _, err := s.executor.Run(ctx, repoPath, "git", "remote", "get-url", "origin"); err != nil {
		logger.Debug("Git: no origin remote, skipping fetch")
		return nil
	}

	output, err := s.executor.CombinedOutput(ctx, repoPath, "git", "fetch", "origin")
	if err != nil {
		logger.Warn("Git: failed to fetch from origin: %s", strings.TrimSpace(string(output)))
		return nil
	}
	return nil
}
