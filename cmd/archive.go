package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/coordinator"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <name-or-id>",
	Short: "Terminate a session, keeping its workspace",
	Long: `Terminate a session without merging. The session moves to the archive
and its workspace, if any, is left in place so the branch can be merged
or inspected later.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
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

	if err := e.coord.Terminate(ctx, id, coordinator.TerminateArchive, false); err != nil {
		return err
	}
	fmt.Printf("Archived %s\n", args[0])
	return nil
}
