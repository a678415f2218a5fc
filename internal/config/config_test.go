package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
run:
  max_concurrency: 5
  per_source_timeout: 120s
fetch:
  timeout: 12s
  delay_min: 100ms
  delay_max: 400ms
  block_indicators: ["captcha", "robot check"]
identity:
  proxies_file: /tmp/proxies.txt
  tor_enabled: true
rendered:
  enabled: true
  max_parallel: 1
sources:
  order: ["pixelplay"]
  sites:
    pixelplay:
      url: https://pixelplay.example/games
      kind: listing
      strategy: plain
      enabled: true
      max_games: 25
      selectors:
        item: div.game-card
        name: h3
        link: a
output:
  results_path: out/games.json
  summary_csv: out/games_summary.csv
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Development {
		t.Fatal("expected development logging to be disabled")
	}
	if cfg.Run.MaxConcurrency != 5 || cfg.Run.PerSourceTimeout != 120*time.Second {
		t.Fatalf("expected run overrides to apply: %+v", cfg.Run)
	}
	if cfg.Fetch.Timeout != 12*time.Second || cfg.Fetch.DelayMax != 400*time.Millisecond {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if len(cfg.Fetch.BlockIndicators) != 2 || cfg.Fetch.BlockIndicators[1] != "robot check" {
		t.Fatalf("expected block indicators override: %v", cfg.Fetch.BlockIndicators)
	}
	if !cfg.Identity.TorEnabled || cfg.Identity.ProxiesFile != "/tmp/proxies.txt" {
		t.Fatalf("expected identity overrides to apply: %+v", cfg.Identity)
	}
	site, ok := cfg.Sources.Sites["pixelplay"]
	if !ok || site.URL != "https://pixelplay.example/games" || site.MaxGames != 25 {
		t.Fatalf("expected site block to load: %+v", cfg.Sources.Sites)
	}
	if site.Selectors.Item != "div.game-card" || site.Selectors.Name != "h3" {
		t.Fatalf("expected selectors to load: %+v", site.Selectors)
	}
	if cfg.Output.ResultsPath != "out/games.json" || cfg.Output.SummaryCSV != "out/games_summary.csv" {
		t.Fatalf("expected output overrides to apply: %+v", cfg.Output)
	}
	// Untouched keys keep their defaults.
	if cfg.Fetch.RequestsPerMinute != 60 {
		t.Fatalf("expected default requests_per_minute, got %d", cfg.Fetch.RequestsPerMinute)
	}
	if cfg.Publisher.Provider != "noop" {
		t.Fatalf("expected default publisher provider, got %q", cfg.Publisher.Provider)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	// The package directory has no config.yaml, so this exercises the
	// missing-file path where defaults apply.
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Run.MaxConcurrency != 3 {
		t.Fatalf("expected default concurrency 3, got %d", cfg.Run.MaxConcurrency)
	}
	if cfg.Fetch.DelayMin != time.Second || cfg.Fetch.DelayMax != 3*time.Second {
		t.Fatalf("expected default delay range 1s..3s, got %v..%v", cfg.Fetch.DelayMin, cfg.Fetch.DelayMax)
	}
	if len(cfg.Fetch.BlockIndicators) != 3 {
		t.Fatalf("expected three default block indicators, got %v", cfg.Fetch.BlockIndicators)
	}
	if cfg.Sources.MaxGamesDefault != 200 {
		t.Fatalf("expected default per-source cap 200, got %d", cfg.Sources.MaxGamesDefault)
	}
	if cfg.Archive.ResultsPrefix != "results" {
		t.Fatalf("expected default results prefix, got %q", cfg.Archive.ResultsPrefix)
	}
	if cfg.Refresh.ProbeURL == "" || cfg.Refresh.ProbeTimeout != 5*time.Second {
		t.Fatalf("expected refresh defaults, got %+v", cfg.Refresh)
	}
	if len(cfg.Refresh.Providers) != 5 || cfg.Refresh.Providers[0].Scheme != "http" {
		t.Fatalf("expected default proxy providers, got %+v", cfg.Refresh.Providers)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Run:   RunConfig{MaxConcurrency: 3, PerSourceTimeout: time.Minute},
		Fetch: FetchConfig{Timeout: 30 * time.Second, DelayMin: time.Second, DelayMax: 3 * time.Second, RequestsPerMinute: 60, MaxBodyBytes: 1024},
		Archive: ArchiveConfig{
			Provider: "local",
		},
		Catalog:   CatalogConfig{Provider: "noop"},
		Stats:     StatsConfig{Provider: "memory"},
		Publisher: PublisherConfig{Provider: "noop"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Run.MaxConcurrency = 0
				return c
			}(),
			want: "run.max_concurrency",
		},
		{
			name: "inverted delay range",
			cfg: func() Config {
				c := base
				c.Fetch.DelayMin = 5 * time.Second
				c.Fetch.DelayMax = time.Second
				return c
			}(),
			want: "fetch.delay_min",
		},
		{
			name: "rendered enabled without parallelism",
			cfg: func() Config {
				c := base
				c.Rendered.Enabled = true
				c.Rendered.MaxParallel = 0
				return c
			}(),
			want: "rendered.max_parallel",
		},
		{
			name: "gcs archive without bucket",
			cfg: func() Config {
				c := base
				c.Archive.Enabled = true
				c.Archive.Provider = "gcs"
				return c
			}(),
			want: "archive.bucket",
		},
		{
			name: "postgres catalog without dsn",
			cfg: func() Config {
				c := base
				c.Catalog.Provider = "postgres"
				return c
			}(),
			want: "catalog.dsn",
		},
		{
			name: "unknown publisher",
			cfg: func() Config {
				c := base
				c.Publisher.Provider = "kafka"
				return c
			}(),
			want: "publisher.provider",
		},
		{
			name: "enabled site without url",
			cfg: func() Config {
				c := base
				c.Sources.Sites = map[string]SiteConfig{
					"broken": {Enabled: true, Kind: "listing"},
				}
				return c
			}(),
			want: "sources.sites.broken.url",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
