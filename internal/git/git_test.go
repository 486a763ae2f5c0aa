package git

import (
	"context"
	"errors"
	"strings"
	"testing"

	braiderrors "github.com/braidhq/braid/internal/errors"
	"github.com/braidhq/braid/internal/exec"
)

func TestValidateBranchName(t *testing.T) {
	tests := []struct {
		name    string
		branch  string
		wantErr bool
	}{
		{"simple", "feature", false},
		{"with slash", "braid/feature", false},
		{"with numbers", "fix-123", false},
		{"with dots", "v1.2.3", false},
		{"with underscore", "my_branch", false},
		{"empty", "", true},
		{"leading dash", "-feature", true},
		{"lock suffix", "feature.lock", true},
		{"double dot", "a..b", true},
		{"space", "my branch", true},
		{"tilde", "branch~1", true},
		{"colon", "a:b", true},
		{"asterisk", "a*b", true},
		{"question mark", "a?b", true},
		{"too long", strings.Repeat("a", MaxBranchNameLength+1), true},
		{"exactly max length", strings.Repeat("a", MaxBranchNameLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBranchName(tt.branch)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBranchName(%q) error = %v, wantErr %v", tt.branch, err, tt.wantErr)
			}
			if err != nil && !braiderrors.Is(err, braiderrors.KindInvalid) {
				t.Errorf("ValidateBranchName(%q) should return KindInvalid, got %v", tt.branch, err)
			}
		})
	}
}

func TestValidateRepo(t *testing.T) {
	t.Run("valid repo", func(t *testing.T) {
		mock := exec.NewMockExecutor(nil)
		mock.AddPrefixMatch("git", []string{"rev-parse", "--git-dir"}, exec.MockResponse{Stdout: []byte(".git\n")})
		s := NewServiceWithExecutor(mock)

		if err := s.ValidateRepo(context.Background(), "/repo"); err != nil {
			t.Errorf("ValidateRepo() error = %v", err)
		}
	})

	t.Run("not a repo", func(t *testing.T) {
		mock := exec.NewMockExecutor(nil)
		mock.AddPrefixMatch("git", []string{"rev-parse", "--git-dir"}, exec.MockResponse{
			Stderr: []byte("fatal: not a git repository"),
			Err:    errors.New("exit status 128"),
		})
		s := NewServiceWithExecutor(mock)

		err := s.ValidateRepo(context.Background(), "/not-a-repo")
		if !braiderrors.Is(err, braiderrors.KindInvalid) {
			t.Errorf("ValidateRepo() = %v, want KindInvalid", err)
		}
	})

	t.Run("tilde path rejected", func(t *testing.T) {
		s := NewServiceWithExecutor(exec.NewMockExecutor(nil))
		err := s.ValidateRepo(context.Background(), "~/repo")
		if !braiderrors.Is(err, braiderrors.KindInvalid) {
			t.Errorf("ValidateRepo(~) = %v, want KindInvalid", err)
		}
	})
}

func TestCurrentBranch(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"rev-parse", "--abbrev-ref", "HEAD"}, exec.MockResponse{Stdout: []byte("main\n")})
	s := NewServiceWithExecutor(mock)

	branch, err := s.CurrentBranch(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("CurrentBranch() error = %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch() = %q, want %q", branch, "main")
	}
}

func TestDefaultBranch(t *testing.T) {
	t.Run("from origin HEAD", func(t *testing.T) {
		mock := exec.NewMockExecutor(nil)
		mock.AddExactMatch("git", []string{"symbolic-ref", "refs/remotes/origin/HEAD"}, exec.MockResponse{
			Stdout: []byte("refs/remotes/origin/develop\n"),
		})
		s := NewServiceWithExecutor(mock)

		if got := s.DefaultBranch(context.Background(), "/repo"); got != "develop" {
			t.Errorf("DefaultBranch() = %q, want %q", got, "develop")
		}
	})

	t.Run("falls back to local master", func(t *testing.T) {
		fail := exec.MockResponse{Err: errors.New("exit status 128")}
		mock := exec.NewMockExecutor(nil)
		mock.AddPrefixMatch("git", []string{"symbolic-ref"}, fail)
		mock.AddExactMatch("git", []string{"rev-parse", "--verify", "origin/main"}, fail)
		mock.AddExactMatch("git", []string{"rev-parse", "--verify", "origin/master"}, fail)
		mock.AddExactMatch("git", []string{"rev-parse", "--verify", "main"}, fail)
		mock.AddExactMatch("git", []string{"rev-parse", "--verify", "master"}, exec.MockResponse{Stdout: []byte("abc123\n")})
		s := NewServiceWithExecutor(mock)

		if got := s.DefaultBranch(context.Background(), "/repo"); got != "master" {
			t.Errorf("DefaultBranch() = %q, want %q", got, "master")
		}
	})

	t.Run("main when nothing resolves", func(t *testing.T) {
		fail := exec.MockResponse{Err: errors.New("exit status 128")}
		mock := exec.NewMockExecutor(nil)
		mock.AddPrefixMatch("git", []string{"symbolic-ref"}, fail)
		mock.AddPrefixMatch("git", []string{"rev-parse"}, fail)
		s := NewServiceWithExecutor(mock)

		if got := s.DefaultBranch(context.Background(), "/repo"); got != "main" {
			t.Errorf("DefaultBranch() = %q, want %q", got, "main")
		}
	})
}

func TestBranchExists(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"rev-parse", "--verify", "refs/heads/feature"}, exec.MockResponse{Stdout: []byte("abc123\n")})
	mock.AddExactMatch("git", []string{"rev-parse", "--verify", "refs/heads/missing"}, exec.MockResponse{Err: errors.New("exit status 128")})
	s := NewServiceWithExecutor(mock)

	ctx := context.Background()
	if !s.BranchExists(ctx, "/repo", "feature") {
		t.Error("BranchExists(feature) = false, want true")
	}
	if s.BranchExists(ctx, "/repo", "missing") {
		t.Error("BranchExists(missing) = true, want false")
	}
}

func TestHasUncommittedChanges(t *testing.T) {
	t.Run("dirty", func(t *testing.T) {
		mock := exec.NewMockExecutor(nil)
		mock.AddExactMatch("git", []string{"status", "--porcelain"}, exec.MockResponse{Stdout: []byte(" M file.go\n?? new.go\n")})
		s := NewServiceWithExecutor(mock)

		dirty, err := s.HasUncommittedChanges(context.Background(), "/repo")
		if err != nil {
			t.Fatalf("HasUncommittedChanges() error = %v", err)
		}
		if !dirty {
			t.Error("HasUncommittedChanges() = false, want true")
		}
	})

	t.Run("clean", func(t *testing.T) {
		mock := exec.NewMockExecutor(nil)
		mock.AddExactMatch("git", []string{"status", "--porcelain"}, exec.MockResponse{Stdout: []byte("\n")})
		s := NewServiceWithExecutor(mock)

		dirty, err := s.HasUncommittedChanges(context.Background(), "/repo")
		if err != nil {
			t.Fatalf("HasUncommittedChanges() error = %v", err)
		}
		if dirty {
			t.Error("HasUncommittedChanges() = true, want false")
		}
	})
}

func TestMerge(t *testing.T) {
	t.Run("uses no-ff with message", func(t *testing.T) {
		mock := exec.NewMockExecutor(nil)
		mock.AddExactMatch("git", []string{"merge", "braid/feature", "--no-ff", "-m", "Merge branch 'braid/feature'"}, exec.MockResponse{})
		s := NewServiceWithExecutor(mock)

		if err := s.Merge(context.Background(), "/repo", "braid/feature"); err != nil {
			t.Errorf("Merge() error = %v", err)
		}
	})

	t.Run("failure is external", func(t *testing.T) {
		mock := exec.NewMockExecutor(nil)
		mock.AddPrefixMatch("git", []string{"merge"}, exec.MockResponse{
			Stdout: []byte("CONFLICT (content): Merge conflict in file.go\n"),
			Err:    errors.New("exit status 1"),
		})
		s := NewServiceWithExecutor(mock)

		err := s.Merge(context.Background(), "/repo", "braid/feature")
		if !braiderrors.Is(err, braiderrors.KindExternal) {
			t.Errorf("Merge() = %v, want KindExternal", err)
		}
	})
}

func TestAbortMerge_BestEffort(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"merge", "--abort"}, exec.MockResponse{
		Stderr: []byte("fatal: There is no merge to abort"),
		Err:    errors.New("exit status 128"),
	})
	s := NewServiceWithExecutor(mock)

	if err := s.AbortMerge(context.Background(), "/repo"); err != nil {
		t.Errorf("AbortMerge() error = %v, want nil even when nothing to abort", err)
	}
}

func TestMergeDryRun(t *testing.T) {
	mergeTreeOutput := `added in remote
  their  100644 abc123 file_a.go
changed in both
  base   100644 aaa111 pkg/conflict.go
  our    100644 bbb222 pkg/conflict.go
  their  100644 ccc333 pkg/conflict.go
changed in both
  base   100644 ddd444 pkg/conflict.go
  our    100644 eee555 pkg/conflict.go
  their  100644 fff666 pkg/conflict.go
changed in both
  base   100644 111aaa cmd/other.go
  our    100644 222bbb cmd/other.go
  their  100644 333ccc cmd/other.go
`

	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"merge-tree", "main", "braid/feature"}, exec.MockResponse{Stdout: []byte(mergeTreeOutput)})
	s := NewServiceWithExecutor(mock)

	conflicts, err := s.MergeDryRun(context.Background(), "/repo", "main", "braid/feature")
	if err != nil {
		t.Fatalf("MergeDryRun() error = %v", err)
	}

	// Duplicate "changed in both" stanzas for the same path collapse
	want := []string{"pkg/conflict.go", "cmd/other.go"}
	if len(conflicts) != len(want) {
		t.Fatalf("MergeDryRun() = %v, want %v", conflicts, want)
	}
	for i := range want {
		if conflicts[i] != want[i] {
			t.Errorf("conflicts[%d] = %q, want %q", i, conflicts[i], want[i])
		}
	}
}

func TestMergeDryRun_Clean(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"merge-tree"}, exec.MockResponse{Stdout: []byte("added in remote\n  their  100644 abc123 new.go\n")})
	s := NewServiceWithExecutor(mock)

	conflicts, err := s.MergeDryRun(context.Background(), "/repo", "main", "braid/feature")
	if err != nil {
		t.Fatalf("MergeDryRun() error = %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("MergeDryRun() = %v, want no conflicts", conflicts)
	}
}

func TestAddWorktree(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"worktree", "add", "-b", "braid/feature", "/tmp/wt", "HEAD"}, exec.MockResponse{})
	s := NewServiceWithExecutor(mock)

	if err := s.AddWorktree(context.Background(), "/repo", "braid/feature", "/tmp/wt", "HEAD"); err != nil {
		t.Errorf("AddWorktree() error = %v", err)
	}
}

func TestRemoveWorktree_Prunes(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"worktree", "remove", "/tmp/wt", "--force"}, exec.MockResponse{})
	mock.AddExactMatch("git", []string{"worktree", "prune"}, exec.MockResponse{})
	s := NewServiceWithExecutor(mock)

	if err := s.RemoveWorktree(context.Background(), "/repo", "/tmp/wt"); err != nil {
		t.Fatalf("RemoveWorktree() error = %v", err)
	}
	if got := mock.CallCount("git", "worktree", "prune"); got != 1 {
		t.Errorf("prune called %d times, want 1", got)
	}
}

func TestParseWorktreeList(t *testing.T) {
	output := `worktree /home/dev/project
HEAD abc1234567890
branch refs/heads/main

worktree /home/dev/.braid-worktrees/uuid-1
HEAD def9876543210
branch refs/heads/braid/feature

worktree /home/dev/.braid-worktrees/uuid-2
HEAD 1112223334445
detached
`

	worktrees := parseWorktreeList(output)
	if len(worktrees) != 3 {
		t.Fatalf("parseWorktreeList() = %d entries, want 3", len(worktrees))
	}

	if worktrees[0].Path != "/home/dev/project" || worktrees[0].Branch != "main" {
		t.Errorf("first worktree = %+v", worktrees[0])
	}
	if worktrees[1].Branch != "braid/feature" {
		t.Errorf("second worktree branch = %q, want %q", worktrees[1].Branch, "braid/feature")
	}
	if worktrees[2].Branch != "" {
		t.Errorf("detached worktree branch = %q, want empty", worktrees[2].Branch)
	}
	if worktrees[2].Head != "1112223334445" {
		t.Errorf("detached worktree head = %q", worktrees[2].Head)
	}
}

func TestParseWorktreeList_Empty(t *testing.T) {
	if got := parseWorktreeList(""); len(got) != 0 {
		t.Errorf("parseWorktreeList(empty) = %v, want none", got)
	}
}

func TestDeleteBranch(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"branch", "-d", "feature"}, exec.MockResponse{})
	mock.AddExactMatch("git", []string{"branch", "-D", "feature"}, exec.MockResponse{})
	s := NewServiceWithExecutor(mock)

	ctx := context.Background()
	if err := s.DeleteBranch(ctx, "/repo", "feature", false); err != nil {
		t.Errorf("DeleteBranch(force=false) error = %v", err)
	}
	if err := s.DeleteBranch(ctx, "/repo", "feature", true); err != nil {
		t.Errorf("DeleteBranch(force=true) error = %v", err)
	}
	if got := mock.CallCount("git", "branch", "-d"); got != 1 {
		t.Errorf("-d called %d times, want 1", got)
	}
	if got := mock.CallCount("git", "branch", "-D"); got != 1 {
		t.Errorf("-D called %d times, want 1", got)
	}
}

func TestFetchOrigin_NoRemote(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"remote", "get-url", "origin"}, exec.MockResponse{Err: errors.New("exit status 2")})
	s := NewServiceWithExecutor(mock)

	if err := s.FetchOrigin(context.Background(), "/repo"); err != nil {
		t.Errorf("FetchOrigin() error = %v, want nil for local-only repo", err)
	}
	if got := mock.CallCount("git", "fetch"); got != 0 {
		t.Errorf("fetch called %d times, want 0", got)
	}
}

func TestFetchOrigin_FailureIsNonFatal(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"remote", "get-url", "origin"}, exec.MockResponse{Stdout: []byte("git@example.com:org/repo.git\n")})
	mock.AddExactMatch("git", []string{"fetch", "origin"}, exec.MockResponse{
		Stderr: []byte("fatal: unable to access remote"),
		Err:    errors.New("exit status 128"),
	})
	s := NewServiceWithExecutor(mock)

	if err := s.FetchOrigin(context.Background(), "/repo"); err != nil {
		t.Errorf("FetchOrigin() error = %v, want nil when offline", err)
	}
}
