package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/coordinator"
	"github.com/braidhq/braid/internal/workspace"
)

var (
	newRepoPath     string
	newStrategy     string
	newExistingPath string
)

var newCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new session",
	Long: `Create a new session. With --repo, the session gets its own git
worktree on branch braid/<name>; work merges back when the session
completes. The first session created becomes foreground.`,
	Args: cobra.ExactArgs(1),
	RunE: runNew,
}

func init() {
	newCmd.Flags().StringVarP(&newRepoPath, "repo", "r", "", "Repository to create a workspace in")
	newCmd.Flags().StringVar(&newStrategy, "workspace", "", "Workspace strategy: create, use-existing, never, ask")
	newCmd.Flags().StringVar(&newExistingPath, "worktree", "", "Existing worktree path (with --workspace use-existing)")
	rootCmd.AddCommand(newCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
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

	meta, err := e.coord.CreateSession(ctx, coordinator.CreateRequest{
		Name:         args[0],
		RepoPath:     newRepoPath,
		Strategy:     workspace.Strategy(newStrategy),
		ExistingPath: newExistingPath,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created session %s (%s)\n", meta.Name, meta.ID)
	if meta.Workspace != nil {
		fmt.Printf("  workspace: %s\n", meta.Workspace.Path)
		fmt.Printf("  branch:    %s\n", meta.Workspace.Branch)
	}
	return nil
}
