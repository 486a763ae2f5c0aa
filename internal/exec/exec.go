// Package exec provides a command executor abstraction so packages that
// shell out (git, notifications) can be tested without spawning processes.
package exec

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandExecutor runs external commands. The real implementation spawns
// processes; tests swap in a MockExecutor.
type CommandExecutor interface {
	// Run executes a command and returns stdout and stderr separately.
	Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error)
	// Output executes a command and returns its stdout.
	Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
	// CombinedOutput executes a command and returns combined stdout and stderr.
	CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// RealExecutor runs commands using os/exec.
type RealExecutor struct{}

// NewRealExecutor returns an executor that spawns real processes.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

func (e *RealExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func (e *RealExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.Output()
}

func (e *RealExecutor) CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}
