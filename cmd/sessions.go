package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/history"
)

var (
	sessionsAll    bool
	sessionsSearch string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions",
	Long: `List sessions, most recently active first. The foreground session is
marked with an asterisk. Corrupt metadata files are reported but never
hide the remaining sessions. With --all, archived sessions from the
history database are included.`,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().BoolVarP(&sessionsAll, "all", "a", false, "Include archived sessions from history")
	sessionsCmd.Flags().StringVar(&sessionsSearch, "search", "", "Filter archived sessions by name or first message")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
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

	infos, corrupt, err := e.coord.ListSessions(ctx)
	if err != nil {
		return err
	}

	if len(infos) == 0 {
		fmt.Println("No sessions.")
	}
	for _, info := range infos {
		marker := " "
		if info.Foreground {
			marker = "*"
		}
		fmt.Printf("%s %-20s %-11s %3d msgs  last active %s\n",
			marker, info.Meta.Name, info.Meta.Status, info.Meta.MessageCount,
			info.Meta.LastActive.Local().Format("2006-01-02 15:04"))
	}

	for _, entry := range corrupt {
		fmt.Printf("! %s: corrupt metadata (%v)\n", entry.ID, entry.Err)
	}

	if sessionsAll || sessionsSearch != "" {
		archived, err := listArchived(e)
		if err != nil {
			return err
		}
		if len(archived) > 0 {
			fmt.Println("\nArchived:")
			for _, a := range archived {
				fmt.Printf("  %-20s %-11s %3d msgs  last active %s\n",
					a.Name, a.Status, a.MessageCount, a.LastActive.Local().Format("2006-01-02 15:04"))
			}
		}
	}
	return nil
}

func listArchived(e *engine) ([]history.ArchivedSession, error) {
	if sessionsSearch != "" {
		return e.archive.SearchSessions(sessionsSearch, 0)
	}
	return e.archive.ListSessions(0)
}
