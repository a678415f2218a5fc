// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Run       RunConfig       `mapstructure:"run"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Rendered  RenderedConfig  `mapstructure:"rendered"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Output    OutputConfig    `mapstructure:"output"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Status    StatusConfig    `mapstructure:"status"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// RunConfig governs the orchestrator's worker pool.
type RunConfig struct {
	MaxConcurrency   int           `mapstructure:"max_concurrency"`
	PerSourceTimeout time.Duration `mapstructure:"per_source_timeout"`
}

// FetchConfig controls the fetch engine shared by every strategy.
type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	DelayMin          time.Duration `mapstructure:"delay_min"`
	DelayMax          time.Duration `mapstructure:"delay_max"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	BlockIndicators   []string      `mapstructure:"block_indicators"`
}

// IdentityConfig describes the egress identity pool.
type IdentityConfig struct {
	ProxiesFile   string   `mapstructure:"proxies_file"`
	ExtraAgents   []string `mapstructure:"extra_agents"`
	DynamicAgents bool     `mapstructure:"dynamic_agents"`
	TorEnabled    bool     `mapstructure:"tor_enabled"`
	TorAddress    string   `mapstructure:"tor_address"`
}

// RenderedConfig configures the scripted-browser strategy.
type RenderedConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxParallel int           `mapstructure:"max_parallel"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// SourcesConfig holds the ordered source registry. Order fixes the merge
// order; every listed name must have a matching site block.
// MaxGamesDefault caps sites that set no max_games of their own; a
// negative per-site value lifts the cap entirely.
type SourcesConfig struct {
	Order           []string              `mapstructure:"order"`
	Sites           map[string]SiteConfig `mapstructure:"sites"`
	MaxGamesDefault int                   `mapstructure:"max_games_default"`
}

// SiteConfig describes one extraction source.
type SiteConfig struct {
	URL       string         `mapstructure:"url"`
	Kind      string         `mapstructure:"kind"`
	Strategy  string         `mapstructure:"strategy"`
	Enabled   bool           `mapstructure:"enabled"`
	MaxGames  int            `mapstructure:"max_games"`
	Pages     []string       `mapstructure:"pages"`
	Selectors SelectorConfig `mapstructure:"selectors"`
	Feed      FeedConfig     `mapstructure:"feed"`
	Category  string         `mapstructure:"category"`
}

// SelectorConfig maps listing-page CSS selectors onto record fields.
type SelectorConfig struct {
	Item        string `mapstructure:"item"`
	Name        string `mapstructure:"name"`
	Link        string `mapstructure:"link"`
	LinkAttr    string `mapstructure:"link_attr"`
	Thumbnail   string `mapstructure:"thumbnail"`
	ThumbAttr   string `mapstructure:"thumb_attr"`
	Embed       string `mapstructure:"embed"`
	EmbedAttr   string `mapstructure:"embed_attr"`
	Description string `mapstructure:"description"`
}

// FeedConfig maps JSON feed fields onto record fields.
type FeedConfig struct {
	ItemsKey    string `mapstructure:"items_key"`
	NameKey     string `mapstructure:"name_key"`
	URLKey      string `mapstructure:"url_key"`
	EmbedKey    string `mapstructure:"embed_key"`
	ThumbKey    string `mapstructure:"thumb_key"`
	DescKey     string `mapstructure:"desc_key"`
	CategoryKey string `mapstructure:"category_key"`
	BaseURL     string `mapstructure:"base_url"`
}

// OutputConfig controls local result files.
type OutputConfig struct {
	ResultsPath string `mapstructure:"results_path"`
	SummaryCSV  string `mapstructure:"summary_csv"`
}

// ArchiveConfig controls raw page archiving and results upload.
type ArchiveConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Provider      string `mapstructure:"provider"`
	BaseDir       string `mapstructure:"base_dir"`
	Bucket        string `mapstructure:"bucket"`
	Prefix        string `mapstructure:"prefix"`
	UploadResults bool   `mapstructure:"upload_results"`
	ResultsPrefix string `mapstructure:"results_prefix"`
}

// CatalogConfig controls persistence of the final deduplicated records.
type CatalogConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// StatsConfig selects the run-statistics repository backing the status API.
type StatsConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// PublisherConfig selects the run-summary publisher.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// StatusConfig enables the optional read-only status server. A non-empty
// APIKey gates every route behind an X-API-Key check.
type StatusConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

// RefreshConfig drives the proxy-list refresh batch job.
type RefreshConfig struct {
	Providers     []ProxyProviderConfig `mapstructure:"providers"`
	ProbeURL      string                `mapstructure:"probe_url"`
	ProbeTimeout  time.Duration         `mapstructure:"probe_timeout"`
	Concurrency   int                   `mapstructure:"concurrency"`
	MaxCandidates int                   `mapstructure:"max_candidates"`
	KeepLimit     int                   `mapstructure:"keep_limit"`
}

// ProxyProviderConfig names one upstream proxy list and the scheme its
// entries speak.
type ProxyProviderConfig struct {
	URL    string `mapstructure:"url"`
	Scheme string `mapstructure:"scheme"`
}

// Load builds a Config from disk/environment. When path is empty the usual
// search locations are tried and a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/harvester/")
		v.AddConfigPath("$HOME/.harvester")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)

	v.SetDefault("run.max_concurrency", 3)
	v.SetDefault("run.per_source_timeout", "600s")

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.delay_min", "1s")
	v.SetDefault("fetch.delay_max", "3s")
	v.SetDefault("fetch.requests_per_minute", 60)
	v.SetDefault("fetch.max_body_bytes", 5*1024*1024)
	v.SetDefault("fetch.block_indicators", []string{"captcha", "cloudflare", "access denied"})

	v.SetDefault("identity.proxies_file", "data/proxies.txt")
	v.SetDefault("identity.dynamic_agents", false)
	v.SetDefault("identity.tor_enabled", false)
	v.SetDefault("identity.tor_address", "socks5://127.0.0.1:9050")

	v.SetDefault("rendered.enabled", false)
	v.SetDefault("rendered.max_parallel", 2)
	v.SetDefault("rendered.settle_delay", "2s")

	v.SetDefault("sources.max_games_default", 200)

	v.SetDefault("output.results_path", "data/games.json")
	v.SetDefault("output.summary_csv", "data/games_summary.csv")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.provider", "local")
	v.SetDefault("archive.base_dir", "data/archive")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.upload_results", false)
	v.SetDefault("archive.results_prefix", "results")

	v.SetDefault("catalog.provider", "noop")
	v.SetDefault("catalog.table", "games")

	v.SetDefault("stats.provider", "memory")

	v.SetDefault("publisher.provider", "noop")
	v.SetDefault("publisher.topic", "harvest-runs")

	v.SetDefault("status.addr", "")

	v.SetDefault("refresh.providers", []map[string]any{
		{"url": "https://api.proxyscrape.com/v2/?request=getproxies&protocol=http&timeout=10000&country=all&ssl=all&anonymity=all", "scheme": "http"},
		{"url": "https://www.proxy-list.download/api/v1/get?type=http", "scheme": "http"},
		{"url": "https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt", "scheme": "http"},
		{"url": "https://api.proxyscrape.com/v2/?request=getproxies&protocol=socks5&timeout=10000&country=all", "scheme": "socks5"},
		{"url": "https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/socks5.txt", "scheme": "socks5"},
	})
	v.SetDefault("refresh.probe_url", "http://httpbin.org/ip")
	v.SetDefault("refresh.probe_timeout", "5s")
	v.SetDefault("refresh.concurrency", 20)
	v.SetDefault("refresh.max_candidates", 100)
	v.SetDefault("refresh.keep_limit", 50)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Run.MaxConcurrency <= 0 {
		return fmt.Errorf("run.max_concurrency must be > 0")
	}
	if c.Run.PerSourceTimeout <= 0 {
		return fmt.Errorf("run.per_source_timeout must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.DelayMin < 0 || c.Fetch.DelayMax < c.Fetch.DelayMin {
		return fmt.Errorf("fetch.delay_min/delay_max must satisfy 0 <= min <= max")
	}
	if c.Fetch.RequestsPerMinute <= 0 {
		return fmt.Errorf("fetch.requests_per_minute must be > 0")
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0")
	}
	if c.Rendered.Enabled && c.Rendered.MaxParallel <= 0 {
		return fmt.Errorf("rendered.max_parallel must be > 0 when rendering is enabled")
	}
	switch c.Archive.Provider {
	case "local", "gcs", "memory":
	default:
		return fmt.Errorf("archive.provider must be one of local, gcs, memory")
	}
	if c.Archive.Enabled && c.Archive.Provider == "gcs" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set when archive.provider is gcs")
	}
	switch c.Catalog.Provider {
	case "noop", "postgres":
	default:
		return fmt.Errorf("catalog.provider must be one of noop, postgres")
	}
	if c.Catalog.Provider == "postgres" && c.Catalog.DSN == "" {
		return fmt.Errorf("catalog.dsn must be set when catalog.provider is postgres")
	}
	switch c.Stats.Provider {
	case "memory", "postgres":
	default:
		return fmt.Errorf("stats.provider must be one of memory, postgres")
	}
	if c.Stats.Provider == "postgres" && c.Stats.DSN == "" {
		return fmt.Errorf("stats.dsn must be set when stats.provider is postgres")
	}
	switch c.Publisher.Provider {
	case "noop", "memory", "pubsub":
	default:
		return fmt.Errorf("publisher.provider must be one of noop, memory, pubsub")
	}
	if c.Publisher.Provider == "pubsub" && (c.Publisher.ProjectID == "" || c.Publisher.Topic == "") {
		return fmt.Errorf("publisher.project_id and publisher.topic must be set when publisher.provider is pubsub")
	}
	for name, site := range c.Sources.Sites {
		if !site.Enabled {
			continue
		}
		if site.URL == "" {
			return fmt.Errorf("sources.sites.%s.url must be set", name)
		}
		switch site.Kind {
		case "listing", "feed":
		default:
			return fmt.Errorf("sources.sites.%s.kind must be listing or feed", name)
		}
	}
	return nil
}
