package exec

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMockExecutor_ExactMatch(t *testing.T) {
	mock := NewMockExecutor(map[string]MockResponse{
		"git status --porcelain": {Stdout: []byte(" M file.go\n")},
	})

	stdout, err := mock.Output(context.Background(), "/repo", "git", "status", "--porcelain")
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if string(stdout) != " M file.go\n" {
		t.Errorf("Output() = %q, want %q", stdout, " M file.go\n")
	}
}

func TestMockExecutor_PrefixMatch(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"worktree", "add"}, MockResponse{Stdout: []byte("ok")})

	stdout, _, err := mock.Run(context.Background(), "/repo", "git", "worktree", "add", "-b", "feature", "/tmp/wt")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(stdout) != "ok" {
		t.Errorf("Run() stdout = %q, want %q", stdout, "ok")
	}
}

func TestMockExecutor_ExactBeatsPrefix(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"branch"}, MockResponse{Stdout: []byte("prefix")})
	mock.AddExactMatch("git", []string{"branch", "-d", "feature"}, MockResponse{Stdout: []byte("exact")})

	stdout, err := mock.Output(context.Background(), "/repo", "git", "branch", "-d", "feature")
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if string(stdout) != "exact" {
		t.Errorf("Output() = %q, want exact match to win", stdout)
	}
}

func TestMockExecutor_Unmatched(t *testing.T) {
	mock := NewMockExecutor(nil)

	_, err := mock.Output(context.Background(), "/repo", "git", "fetch")
	if err == nil {
		t.Fatal("Output() should fail for unmatched commands")
	}
	if !strings.Contains(err.Error(), "no mock response") {
		t.Errorf("error = %v, want unmatched-command error", err)
	}
}

func TestMockExecutor_RecordsCalls(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddPrefixMatch("git", nil, MockResponse{})

	ctx := context.Background()
	mock.Output(ctx, "/a", "git", "status")
	mock.Output(ctx, "/b", "git", "checkout", "main")
	mock.Output(ctx, "/b", "git", "checkout", "feature")

	calls := mock.Calls()
	if len(calls) != 3 {
		t.Fatalf("Calls() = %d, want 3", len(calls))
	}
	if calls[0].Dir != "/a" || calls[0].Name != "git" || calls[0].Args[0] != "status" {
		t.Errorf("first call recorded incorrectly: %+v", calls[0])
	}

	if got := mock.CallCount("git", "checkout"); got != 2 {
		t.Errorf("CallCount(git checkout) = %d, want 2", got)
	}
	if got := mock.CallCount("git", "checkout", "main"); got != 1 {
		t.Errorf("CallCount(git checkout main) = %d, want 1", got)
	}
}

func TestMockExecutor_CombinedOutput(t *testing.T) {
	mock := NewMockExecutor(nil)
	wantErr := errors.New("exit status 1")
	mock.AddExactMatch("git", []string{"merge", "feature"}, MockResponse{
		Stdout: []byte("Auto-merging file.go\n"),
		Stderr: []byte("CONFLICT (content)\n"),
		Err:    wantErr,
	})

	combined, err := mock.CombinedOutput(context.Background(), "/repo", "git", "merge", "feature")
	if !errors.Is(err, wantErr) {
		t.Fatalf("CombinedOutput() err = %v, want %v", err, wantErr)
	}
	if !strings.Contains(string(combined), "Auto-merging") || !strings.Contains(string(combined), "CONFLICT") {
		t.Errorf("CombinedOutput() = %q, want stdout and stderr combined", combined)
	}
}
