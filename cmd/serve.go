package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/coordinator"
	"github.com/braidhq/braid/internal/worker"
	"github.com/braidhq/braid/internal/workspace"
)

var serveRepo string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interactive session loop",
	Long: `Run the engine interactively. Plain lines are sent to the foreground
session and its response streams to the screen. Lines starting with /
are commands:

  /new <name> [repo]   create a session (and switch to it)
  /sessions            list sessions
  /switch <name-or-id> change the foreground session
  /close <name-or-id>  archive a session
  /quit                exit

Background sessions keep streaming while a foreground response is not
running; their completions arrive as notifications.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveRepo, "repo", "r", "", "Default repository for /new")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := newEngine(nil)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := e.coord.Start(ctx); err != nil {
		return err
	}
	defer e.coord.Stop()

	fmt.Println("braid ready. /new <name> to create a session, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := handleSlash(ctx, e, line); quit {
					return nil
				}
				continue
			}
			submitForeground(ctx, e, line)
		}
	}
}

func handleSlash(ctx context.Context, e *engine, line string) (quit bool) {
	fields := strings.Fields(line)
	command, rest := fields[0], fields[1:]

	switch command {
	case "/quit", "/exit":
		return true

	case "/new":
		if len(rest) == 0 {
			fmt.Println("usage: /new <name> [repo]")
			return false
		}
		repo := serveRepo
		if len(rest) > 1 {
			repo = rest[1]
		}
		meta, err := e.coord.CreateSession(ctx, coordinator.CreateRequest{
			Name:     rest[0],
			RepoPath: repo,
			Strategy: workspace.StrategyCreate,
		})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		if err := e.coord.SwitchTo(ctx, meta.ID); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("created %s (%s), now foreground\n", meta.Name, meta.ID)

	case "/sessions":
		infos, corrupt, err := e.coord.ListSessions(ctx)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		for _, info := range infos {
			marker := " "
			if info.Foreground {
				marker = "*"
			}
			fmt.Printf("%s %s  %s  %s\n", marker, info.Meta.Name, info.Meta.Status, info.Meta.ID)
		}
		for _, entry := range corrupt {
			fmt.Printf("! %s: corrupt metadata\n", entry.ID)
		}

	case "/switch":
		if len(rest) == 0 {
			fmt.Println("usage: /switch <name-or-id>")
			return false
		}
		id, err := resolveSession(ctx, e, rest[0])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		if err := e.coord.SwitchTo(ctx, id); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("switched to %s\n", rest[0])

	case "/close":
		if len(rest) == 0 {
			fmt.Println("usage: /close <name-or-id>")
			return false
		}
		id, err := resolveSession(ctx, e, rest[0])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		if err := e.coord.Terminate(ctx, id, coordinator.TerminateArchive, false); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("archived %s\n", rest[0])

	default:
		fmt.Printf("unknown command %s\n", command)
	}
	return false
}

// submitForeground sends a line to the foreground session and streams the
// response until it completes, fails, or is interrupted by new foreground
// input elsewhere.
func submitForeground(ctx context.Context, e *engine, text string) {
	fg := e.coord.Foreground()
	if fg == "" {
		fmt.Println("no session: /new <name> first")
		return
	}

	if err := e.coord.SubmitInput(ctx, fg, text); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	events := e.coord.Events(fg)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case worker.EventChunk:
				fmt.Print(ev.Text)
			case worker.EventToolUse:
				fmt.Printf("\n[tool: %s]\n", ev.ToolName)
			case worker.EventComplete:
				fmt.Println()
				return
			case worker.EventError:
				fmt.Printf("\nerror: %v\n", ev.Err)
				return
			case worker.EventInterrupted:
				// Another session took the foreground mid-stream; this one
				// resumes silently in the background.
				fmt.Println()
				return
			}
		}
	}
}
