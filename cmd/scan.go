package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/session"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Check the session store for corrupt metadata",
	Long: `Scan every metadata file in the session store and report files that
cannot be read, parsed, or validated. Valid sessions are counted but
not listed; corrupt ones are reported with their path and the reason.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	root, err := session.DefaultRoot()
	if err != nil {
		return err
	}
	store, err := session.NewStore(root)
	if err != nil {
		return err
	}

	sessions, corrupt, err := store.List()
	if err != nil {
		return err
	}

	fmt.Printf("%d session(s) OK.\n", len(sessions))
	if len(corrupt) == 0 {
		fmt.Println("No corrupt metadata found.")
		return nil
	}

	fmt.Printf("%d corrupt metadata file(s):\n", len(corrupt))
	for _, entry := range corrupt {
		fmt.Printf("  %s\n    %v\n", entry.Path, entry.Err)
	}
	return nil
}
