// Package cmd implements the braid CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/config"
	"github.com/braidhq/braid/internal/coordinator"
	"github.com/braidhq/braid/internal/git"
	"github.com/braidhq/braid/internal/history"
	"github.com/braidhq/braid/internal/logger"
	"github.com/braidhq/braid/internal/session"
	"github.com/braidhq/braid/internal/stream"
	"github.com/braidhq/braid/internal/workspace"
)

var (
	debugMode             bool
	quietMode             bool
	version, commit, date string
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "braid",
	Short: "Coordination engine for multiple concurrent assistant sessions",
	Long: `Braid coordinates multiple concurrent assistant sessions from one
terminal. One session holds the foreground and streams to the screen;
the rest keep working in the background. Each session can run in its own
git worktree and merge its branch back when it completes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Reduce logging to info level only")
}

func initConfig() {
	// Pick up a local .env before reading any env vars
	_ = godotenv.Load()

	if quietMode {
		logger.SetDebug(false)
	} else if debugMode {
		logger.SetDebug(true)
	}
}

// Execute runs the root command
func Execute() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("braid %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("braid %s\n", version)
}

// engine bundles everything a command needs.
type engine struct {
	cfg     *config.Config
	store   *session.Store
	coord   *coordinator.Coordinator
	archive *history.Store
}

// newEngine builds the coordinator from config. The streamer may be nil,
// in which case the configured model endpoint is used.
func newEngine(streamer stream.Streamer) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	root, err := session.DefaultRoot()
	if err != nil {
		return nil, err
	}
	store, err := session.NewStore(root)
	if err != nil {
		return nil, err
	}

	if streamer == nil {
		model := cfg.GetModel()
		apiKey := ""
		if model.APIKeyEnv != "" {
			apiKey = os.Getenv(model.APIKeyEnv)
		}
		if apiKey == "" {
			apiKey = os.Getenv("BRAID_API_KEY")
		}
		streamer = stream.NewOpenAIStreamer(stream.OpenAIConfig{
			BaseURL: model.BaseURL,
			APIKey:  apiKey,
			Model:   model.Model,
		})
	}

	dbPath, err := cfg.GetHistoryDBPath()
	if err != nil {
		return nil, err
	}
	archive, err := history.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening history db: %w", err)
	}

	wsManager := workspace.NewManager(git.NewService())
	coord := coordinator.New(store, wsManager, streamer, cfg, archive)

	return &engine{cfg: cfg, store: store, coord: coord, archive: archive}, nil
}

// close releases engine resources.
func (e *engine) close() {
	if e.archive != nil {
		e.archive.Close()
	}
	logger.Close()
}
