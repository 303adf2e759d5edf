// Package cli provides the dlenginectl command-line interface: a thin
// operator/demo surface over an in-process Engine, used the way a real
// caller (a scheduler, a desktop app's download manager) would drive it.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mirajabi/dlengine/internal/checkpoint"
	"github.com/mirajabi/dlengine/internal/logging"
	"github.com/mirajabi/dlengine/internal/model"
	"github.com/mirajabi/dlengine/internal/session"
	"github.com/mirajabi/dlengine/internal/storage"
	"github.com/mirajabi/dlengine/internal/transport"
)

var (
	stateDir string
	logger   *logging.Logger
)

// NewRootCmd builds the dlenginectl root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dlenginectl",
		Short: "Operate a resumable chunked download engine",
		Long: `dlenginectl drives the download engine's enqueue/pause/resume/stop
lifecycle from the command line. Paused state and the engine config are
persisted under --state-dir so downloads can be resumed from a later
invocation, including after this process exits; stop deletes a handle's
persisted state.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
		},
	}

	home, _ := os.UserHomeDir()
	defaultState := filepath.Join(home, ".dlengine")
	if home == "" {
		defaultState = filepath.Join(os.TempDir(), "dlengine")
	}
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", defaultState, "directory for persisted checkpoints and config")

	rootCmd.AddCommand(newEnqueueCmd())
	rootCmd.AddCommand(newPauseCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newPreviewCmd())

	return rootCmd
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// buildEngine wires a fresh Engine against stateDir's checkpoint store and a
// transport client built with default (no-proxy) options. Every subcommand
// gets its own Engine: dlenginectl is a one-shot CLI, not a daemon, so the
// only state that survives between invocations is what's on disk. Config is
// loaded from the store if a prior invocation saved one, otherwise defaults
// are saved for next time; listeners are always process-local and never
// come from the persisted copy.
func buildEngine(listeners ...model.Listener) (*session.Engine, error) {
	client, err := transport.NewClient(transport.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}

	resolver := storage.NewResolver()
	store := checkpoint.NewStore(stateDir)
	cfg := store.LoadConfig()
	if cfg == nil {
		defaults := model.NewConfig()
		cfg = &defaults
		store.SaveConfig(*cfg)
	}
	cfg.Listeners = listeners

	adapter := transport.NewAdapter(client)
	return session.NewEngine(*cfg, resolver, store, adapter), nil
}
