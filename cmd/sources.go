package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arcadehq/listing-harvester/internal/config"
)

// newSourcesCmd creates the 'sources' subcommand, which prints the
// configured sources in merge order without fetching anything.
func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Lists the configured sources in merge order",
		RunE:  runSources,
	}
}

func runSources(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := a.Cfg.Sources

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tSTRATEGY\tENABLED\tURL")
	for _, name := range orderedNames(cfg) {
		site := cfg.Sites[name]
		strategy := site.Strategy
		if strategy == "" {
			strategy = "plain"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", name, site.Kind, strategy, site.Enabled, site.URL)
	}
	return w.Flush()
}

// orderedNames lists sites in configured merge order, then any sites not
// named there sorted by name.
func orderedNames(cfg config.SourcesConfig) []string {
	names := make([]string, 0, len(cfg.Sites))
	seen := make(map[string]bool, len(cfg.Sites))
	for _, name := range cfg.Order {
		if _, ok := cfg.Sites[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range cfg.Sites {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
