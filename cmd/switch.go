package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var switchCmd = &cobra.Command{
	Use:   "switch <name-or-id>",
	Short: "Make a session foreground",
	Long: `Make the given session foreground. The previous foreground session
keeps running in the background; its output stops streaming to the
terminal but nothing in flight is lost.`,
	Args: cobra.ExactArgs(1),
	RunE: runSwitch,
}

func init() {
	rootCmd.AddCommand(switchCmd)
}

func runSwitch(cmd *cobra.Command, args []string) error {
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

	if err := e.coord.SwitchTo(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Foreground is now %s\n", args[0])
	return nil
}

// resolveSession maps a name or ID to a session ID.
func resolveSession(ctx context.Context, e *engine, nameOrID string) (string, error) {
	if _, err := e.coord.Get(nameOrID); err == nil {
		return nameOrID, nil
	}
	infos, _, err := e.coord.ListSessions(ctx)
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.Meta.Name == nameOrID {
			return info.Meta.ID, nil
		}
	}
	return "", fmt.Errorf("no session named %q", nameOrID)
}
