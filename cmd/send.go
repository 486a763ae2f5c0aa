package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/worker"
)

var sendCmd = &cobra.Command{
	Use:   "send <name-or-id> <message...>",
	Short: "Send a message to a session and stream the response",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
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
	message := strings.Join(args[1:], " ")

	events := e.coord.Events(id)
	if err := e.coord.SubmitInput(ctx, id, message); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case worker.EventChunk:
				fmt.Print(ev.Text)
				os.Stdout.Sync()
			case worker.EventComplete:
				fmt.Println()
				return nil
			case worker.EventError:
				fmt.Println()
				return fmt.Errorf("stream failed: %w", ev.Err)
			}
		}
	}
}
