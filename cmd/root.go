// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arcadehq/listing-harvester/internal/app"
	"github.com/arcadehq/listing-harvester/internal/config"
)

var (
	cfgFile string
	devMode bool
)

// appKeyType keys the App container in the command context.
type appKeyType struct{}

var appKey appKeyType

// newApp is the application factory. It is a variable so tests can swap
// in a stub factory.
var newApp = app.NewApp

// activeApp tracks the container built by the pre-run hook so Execute can
// still close it when a command fails; Cobra skips the post-run hooks on
// error.
var activeApp *app.App

// newRootCmd creates and configures the root command. Configuration is
// loaded and the application container built in PersistentPreRunE, so
// every subcommand starts with ready services in its context.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "A resilient multi-source game listing harvester.",
		Long: `harvester collects browser game listings from a configured set of
sites and feeds, fetching through rotating egress identities with
per-source isolation so one blocked or broken site never takes down
the whole run.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if devMode {
				cfg.Logging.Development = true
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			activeApp = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/harvester, $HOME/.harvester)")
	cmd.PersistentFlags().BoolVar(&devMode, "dev", false, "force development logging regardless of config")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newProxiesCmd())
	cmd.AddCommand(newSourcesCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// resolveApp pulls the injected App out of the command context.
func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so an in-flight run persists what it has before exiting; any
// command error yields a non-zero exit code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if activeApp != nil {
		activeApp.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}
