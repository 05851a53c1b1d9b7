// Package cli implements the rulehost command line: it wires configuration,
// the repository and asset backends, and the bundled rule packs into a host
// service and exposes dispatch, validation and commit commands, either
// one-shot or through the HTTP server.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts hostOptions

	cmd := &cobra.Command{
		Use:          "rulehost",
		Short:        "Run business rules and validators against domain objects",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override CARERULES_LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.storage, "storage", "", "override CARERULES_STORAGE_DRIVER (memory, sqlite, postgres, badger, redis)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "read CARERULES_* settings from a dotenv file; the process environment wins")
	cmd.PersistentFlags().StringVar(&opts.assetRoot, "asset-root", "", "serve assets from this directory (overrides CARERULES_ASSET_*)")

	cmd.AddCommand(
		dispatchCmd(&opts),
		validateCmd(&opts),
		insertCmd(&opts),
		updateCmd(&opts),
		getCmd(&opts),
		rulesCmd(&opts),
		assetsCmd(&opts),
		serveCmd(&opts),
	)
	return cmd
}
