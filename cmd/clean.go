package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/git"
	"github.com/braidhq/braid/internal/workspace"
)

var (
	cleanDryRun      bool
	cleanSkipConfirm bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove orphaned worktrees",
	Long: `Find worktrees in .braid-worktrees directories that no live session
owns and remove them along with their branches. Worktrees belonging to
archived sessions count as orphans once the session is gone from the
live registry.

Prompts for confirmation before removing anything unless the --yes flag
is used.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVarP(&cleanDryRun, "dry-run", "n", false, "List orphans without removing them")
	cleanCmd.Flags().BoolVarP(&cleanSkipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	return runCleanWithReader(cmd, os.Stdin)
}

// runCleanWithReader allows injecting a reader for testing
func runCleanWithReader(cmd *cobra.Command, input io.Reader) error {
	e, err := newEngine(nil)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	if err := e.coord.Start(ctx); err != nil {
		return err
	}
	defer e.coord.Stop()

	infos, _, err := e.coord.ListSessions(ctx)
	if err != nil {
		return err
	}
	live := make(map[string]bool)
	for _, info := range infos {
		if !info.Meta.Status.IsTerminal() {
			live[info.Meta.ID] = true
		}
	}

	manager := workspace.NewManager(git.NewService())
	repos := e.cfg.GetRepos()

	orphans, err := manager.FindOrphans(ctx, repos, live)
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		fmt.Println("No orphaned worktrees found.")
		return nil
	}

	fmt.Printf("This will remove %d orphaned worktree(s):\n", len(orphans))
	for _, orphan := range orphans {
		fmt.Printf("  %s\n", orphan.Path)
	}

	if cleanDryRun {
		return nil
	}

	if !cleanSkipConfirm {
		if !confirm(input, "Continue?") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	pruned, failures, err := manager.PruneOrphans(ctx, repos, live)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d worktree(s).\n", pruned)
	if len(failures) > 0 {
		fmt.Printf("%d item(s) could not be fully removed:\n", len(failures))
		for _, f := range failures {
			fmt.Printf("  %s: %v\n", f.Path, f.Err)
		}
	}
	return nil
}

// confirm prompts the user for y/n confirmation
func confirm(input io.Reader, prompt string) bool {
	reader := bufio.NewReader(input)
	fmt.Printf("%s [y/N]: ", prompt)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
