package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/config"
	"github.com/braidhq/braid/internal/coordinator"
	"github.com/braidhq/braid/internal/git"
	"github.com/braidhq/braid/internal/session"
	"github.com/braidhq/braid/internal/stream"
	"github.com/braidhq/braid/internal/worker"
	"github.com/braidhq/braid/internal/workspace"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through a scripted two-session run",
	Long: `Run a self-contained walkthrough with canned responses: two sessions
are created, a slow background stream is preempted by foreground input,
and the interrupted response resumes from where it stopped. Nothing
touches your real sessions, config, or repositories.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	dir, err := os.MkdirTemp("", "braid-demo-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	store, err := session.NewStore(filepath.Join(dir, "sessions"))
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(filepath.Join(dir, "config.json"))
	if err != nil {
		return err
	}

	streamer := stream.NewScriptedStreamer()
	streamer.SetFallback(stream.Script{ChunkDelay: 60 * time.Millisecond})

	coord := coordinator.New(store, workspace.NewManager(git.NewService()), streamer, cfg, nil)

	ctx := cmd.Context()
	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Stop()

	fmt.Println("== creating two sessions ==")
	refactor, err := coord.CreateSession(ctx, coordinator.CreateRequest{Name: "refactor"})
	if err != nil {
		return err
	}
	review, err := coord.CreateSession(ctx, coordinator.CreateRequest{Name: "review"})
	if err != nil {
		return err
	}
	fmt.Printf("foreground: %s\n\n", refactor.Name)

	fmt.Println("== background work starts in 'review' ==")
	if err := coord.SubmitInput(ctx, review.ID, "summarize the open review comments across the diff"); err != nil {
		return err
	}
	reviewEvents := coord.Events(review.ID)
	time.Sleep(150 * time.Millisecond)

	fmt.Println("== foreground input preempts it ==")
	if err := coord.SubmitInput(ctx, refactor.ID, "rename the helper"); err != nil {
		return err
	}
	drainDemo(ctx, coord.Events(refactor.ID), refactor.Name)

	fmt.Println("\n== 'review' resumes where it left off ==")
	drainDemo(ctx, reviewEvents, review.Name)

	fmt.Println("\nDone. Both responses completed; the interrupted one kept its partial text.")
	return nil
}

// drainDemo prints a session's events until its response completes.
func drainDemo(ctx context.Context, events <-chan worker.Event, name string) {
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
				fmt.Printf("[%s] %s\n", name, ev.Text)
			case worker.EventInterrupted:
				fmt.Printf("[%s] (interrupted, partial saved)\n", name)
			case worker.EventComplete:
				fmt.Printf("[%s] complete: %q\n", name, ev.Text)
				return
			case worker.EventError:
				fmt.Printf("[%s] error: %v\n", name, ev.Err)
				return
			}
		}
	}
}
