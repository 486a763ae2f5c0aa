package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/coordinator"
	"github.com/braidhq/braid/internal/errors"
)

var (
	mergeCleanup bool
	mergeDryRun  bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge <name-or-id>",
	Short: "Merge a session's branch back and complete the session",
	Long: `Merge the session's workspace branch into its merge target and mark
the session completed. The repository is checked out back to whatever
branch it was on before the merge, whether the merge succeeds or fails.

Fails without touching the repository if the worktree has uncommitted
changes or the merge would conflict. With --cleanup the worktree and
branch are removed after a successful merge.`,
	Args: cobra.ExactArgs(1),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().BoolVar(&mergeCleanup, "cleanup", false, "Remove the worktree and branch after merging")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "Only report conflicts, do not merge")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
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

	id, err := resolveSession(ctx, e, args[0])
	if err != nil {
		return err
	}

	if mergeDryRun {
		binding, ok := e.coord.Binding(id)
		if !ok {
			return fmt.Errorf("session %s has no workspace", args[0])
		}
		conflicts, err := e.coord.DetectConflicts(ctx, binding)
		if err != nil {
			return err
		}
		if len(conflicts) == 0 {
			fmt.Println("Merge would apply cleanly.")
			return nil
		}
		fmt.Printf("Merge would conflict in %d file(s):\n", len(conflicts))
		for _, path := range conflicts {
			fmt.Printf("  %s\n", path)
		}
		return nil
	}

	err = e.coord.Terminate(ctx, id, coordinator.TerminateCompleteAndMerge, mergeCleanup)
	if err != nil {
		if errors.Is(err, errors.KindConflict) || errors.Is(err, errors.KindPrecondition) {
			return fmt.Errorf("%v\n\nResolve the problem and run merge again; the repository was left on its original branch", err)
		}
		return err
	}

	fmt.Printf("Merged and completed %s\n", args[0])
	return nil
}
