package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcadehq/listing-harvester/internal/identity"
	"github.com/arcadehq/listing-harvester/internal/identity/refresh"
	"github.com/arcadehq/listing-harvester/internal/logging"
)

func newProxiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxies",
		Short: "Manages the proxy pool",
	}
	cmd.AddCommand(newProxiesRefreshCmd())
	return cmd
}

// newProxiesRefreshCmd creates the 'proxies refresh' subcommand, which
// rebuilds the proxy file from the configured public provider lists.
func newProxiesRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Probes public proxy lists and saves the working entries",
		Long: `Downloads the configured proxy provider lists, probes each candidate
against the probe URL, and rewrites the proxy file with the entries
that answered. The next collect run picks the new file up.`,
		RunE: runProxiesRefresh,
	}
}

func runProxiesRefresh(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := a.Cfg

	providers := make([]refresh.Provider, 0, len(cfg.Refresh.Providers))
	for _, p := range cfg.Refresh.Providers {
		providers = append(providers, refresh.Provider{URL: p.URL, Scheme: p.Scheme})
	}

	r := refresh.New(refresh.Options{
		Providers:     providers,
		ProbeURL:      cfg.Refresh.ProbeURL,
		ProbeTimeout:  cfg.Refresh.ProbeTimeout,
		Concurrency:   cfg.Refresh.Concurrency,
		MaxCandidates: cfg.Refresh.MaxCandidates,
		KeepLimit:     cfg.Refresh.KeepLimit,
	}, logging.Named(a.Logger, "refresh"))

	working, err := r.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("refresh proxies: %w", err)
	}

	if err := identity.SaveProxyFile(cfg.Identity.ProxiesFile, working, a.Clock.Now()); err != nil {
		return fmt.Errorf("save proxies: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d working proxies to %s\n", len(working), cfg.Identity.ProxiesFile)
	return nil
}
