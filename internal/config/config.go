// Package config loads and validates discovery configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Run       RunConfig       `mapstructure:"run"`
	Guard     GuardConfig     `mapstructure:"guard"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
	Output    OutputConfig    `mapstructure:"output"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sources   SourcesConfig   `mapstructure:"sources"`
}

// ServerConfig controls the HTTP server exposed by the serve command.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RunConfig governs orchestrator behavior. IntervalMinutes drives the serve
// command's polling loop; zero disables it.
type RunConfig struct {
	SourceTimeoutSeconds int `mapstructure:"source_timeout_seconds"`
	IntervalMinutes      int `mapstructure:"interval_minutes"`
}

// GuardConfig tunes per-source retries and circuit breaking.
type GuardConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	BreakerThreshold int `mapstructure:"breaker_threshold"`
}

// ResolverConfig tunes identity resolution.
type ResolverConfig struct {
	SimilarityCutoff float64 `mapstructure:"similarity_cutoff"`
}

// NormalizeConfig points at the lookup tables.
type NormalizeConfig struct {
	TablePaths []string `mapstructure:"table_paths"`
}

// OutputConfig selects the default record sink. Path understands file paths
// and the pubsub:// scheme; the --output flag overrides it.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// DBConfig controls access to the state database. An empty DSN selects the
// in-memory store.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig holds the topic used when output points at pubsub://.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SourcesConfig holds per-source settings. Enabled lists the sources a run
// covers; the --sources flag narrows it further.
type SourcesConfig struct {
	Enabled      []string         `mapstructure:"enabled"`
	StartupIndia SourceHTTPConfig `mapstructure:"startupindia"`
	MCA          SourceHTTPConfig `mapstructure:"mca"`
	YC           SourceHTTPConfig `mapstructure:"yc"`
	Tracxn       TracxnConfig     `mapstructure:"tracxn"`
	Inc42        EndpointsConfig  `mapstructure:"inc42"`
	CityDir      CityDirConfig    `mapstructure:"citydir"`
	AngelList    AngelListConfig  `mapstructure:"angellist"`
	LinkedIn     LinkedInConfig   `mapstructure:"linkedin"`
}

// SourceHTTPConfig is the common shape for JSON API sources.
type SourceHTTPConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	PageSize       int     `mapstructure:"page_size"`
	MaxPages       int     `mapstructure:"max_pages"`
	MaxDays        int     `mapstructure:"max_days"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
}

// TracxnConfig adds the bearer token and feed list.
type TracxnConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	Token          string   `mapstructure:"token"`
	Feeds          []string `mapstructure:"feeds"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	RPS            float64  `mapstructure:"rps"`
	Burst          int      `mapstructure:"burst"`
}

// EndpointsConfig is the shape for scraped listing sources.
type EndpointsConfig struct {
	Endpoints      []string `mapstructure:"endpoints"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	RPS            float64  `mapstructure:"rps"`
	Burst          int      `mapstructure:"burst"`
}

// CityDirConfig maps cities to their directory sites.
type CityDirConfig struct {
	Cities         map[string][]string `mapstructure:"cities"`
	TimeoutSeconds int                 `mapstructure:"timeout_seconds"`
	RPS            float64             `mapstructure:"rps"`
	Burst          int                 `mapstructure:"burst"`
}

// AngelListConfig points at the Wellfound GraphQL search.
type AngelListConfig struct {
	GraphQLURL     string   `mapstructure:"graphql_url"`
	Location       string   `mapstructure:"location"`
	Stages         []string `mapstructure:"stages"`
	PageSize       int      `mapstructure:"page_size"`
	MaxPages       int      `mapstructure:"max_pages"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	RPS            float64  `mapstructure:"rps"`
	Burst          int      `mapstructure:"burst"`
}

// LinkedInConfig adds the voyager search session cookies and keyword list.
// The cookies come from SCOUT_SOURCES_LINKEDIN_LI_AT and
// SCOUT_SOURCES_LINKEDIN_JSESSIONID in deployments.
type LinkedInConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	Keywords       []string `mapstructure:"keywords"`
	LiAt           string   `mapstructure:"li_at"`
	JSessionID     string   `mapstructure:"jsessionid"`
	PageSize       int      `mapstructure:"page_size"`
	MaxPages       int      `mapstructure:"max_pages"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	RPS            float64  `mapstructure:"rps"`
	Burst          int      `mapstructure:"burst"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("run.source_timeout_seconds", 600)
	v.SetDefault("run.interval_minutes", 360)
	v.SetDefault("guard.max_attempts", 3)
	v.SetDefault("guard.backoff_initial_ms", 250)
	v.SetDefault("guard.backoff_max_ms", 5000)
	v.SetDefault("guard.breaker_threshold", 5)
	v.SetDefault("resolver.similarity_cutoff", 0.90)
	v.SetDefault("normalize.table_paths", []string{"configs/locations.yaml", "configs/industries.yaml"})
	v.SetDefault("output.path", "data/entities.ndjson")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("sources.enabled", []string{
		"startupindia", "mca", "yc", "tracxn", "inc42", "citydir",
		"angellist", "linkedin",
	})

	v.SetDefault("sources.startupindia.base_url", "https://api.startupindia.gov.in/gateway/startup/search")
	v.SetDefault("sources.startupindia.page_size", 20)
	v.SetDefault("sources.startupindia.max_pages", 25)
	v.SetDefault("sources.startupindia.timeout_seconds", 15)
	v.SetDefault("sources.startupindia.rps", 0.5)
	v.SetDefault("sources.startupindia.burst", 1)

	v.SetDefault("sources.mca.base_url", "https://www.mca.gov.in/mcafoportal/companySearch.do")
	v.SetDefault("sources.mca.max_days", 30)
	v.SetDefault("sources.mca.timeout_seconds", 20)
	v.SetDefault("sources.mca.rps", 0.2)
	v.SetDefault("sources.mca.burst", 1)

	v.SetDefault("sources.yc.base_url", "https://api.ycombinator.com/v0.1/companies")
	v.SetDefault("sources.yc.page_size", 50)
	v.SetDefault("sources.yc.max_pages", 10)
	v.SetDefault("sources.yc.timeout_seconds", 15)
	v.SetDefault("sources.yc.rps", 1)
	v.SetDefault("sources.yc.burst", 2)

	v.SetDefault("sources.tracxn.base_url", "https://api.tracxn.com/v2/discover")
	v.SetDefault("sources.tracxn.feeds", []string{"emerging-startups", "recent-funding"})
	v.SetDefault("sources.tracxn.timeout_seconds", 15)
	v.SetDefault("sources.tracxn.rps", 0.5)
	v.SetDefault("sources.tracxn.burst", 1)

	v.SetDefault("sources.inc42.endpoints", []string{
		"https://inc42.com/startups/",
		"https://inc42.com/buzz/",
	})
	v.SetDefault("sources.inc42.timeout_seconds", 15)
	v.SetDefault("sources.inc42.rps", 0.33)
	v.SetDefault("sources.inc42.burst", 1)

	v.SetDefault("sources.citydir.timeout_seconds", 15)
	v.SetDefault("sources.citydir.rps", 0.33)
	v.SetDefault("sources.citydir.burst", 1)

	v.SetDefault("sources.angellist.graphql_url", "https://wellfound.com/graphql")
	v.SetDefault("sources.angellist.location", "india")
	v.SetDefault("sources.angellist.stages", []string{"seed", "series_a", "series_b", "early_stage"})
	v.SetDefault("sources.angellist.page_size", 20)
	v.SetDefault("sources.angellist.max_pages", 15)
	v.SetDefault("sources.angellist.timeout_seconds", 15)
	v.SetDefault("sources.angellist.rps", 0.5)
	v.SetDefault("sources.angellist.burst", 1)

	v.SetDefault("sources.linkedin.base_url", "https://www.linkedin.com/voyager/api/search/blended")
	v.SetDefault("sources.linkedin.keywords", []string{
		"startup india", "fintech india", "saas india", "ai startup india",
	})
	v.SetDefault("sources.linkedin.page_size", 20)
	v.SetDefault("sources.linkedin.max_pages", 5)
	v.SetDefault("sources.linkedin.timeout_seconds", 15)
	v.SetDefault("sources.linkedin.rps", 0.2)
	v.SetDefault("sources.linkedin.burst", 1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Guard.MaxAttempts <= 0 {
		return fmt.Errorf("guard.max_attempts must be > 0")
	}
	if c.Resolver.SimilarityCutoff <= 0 || c.Resolver.SimilarityCutoff > 1 {
		return fmt.Errorf("resolver.similarity_cutoff must be in (0, 1]")
	}
	if len(c.Sources.Enabled) == 0 {
		return fmt.Errorf("sources.enabled must list at least one source")
	}
	if strings.HasPrefix(c.Output.Path, "pubsub://") && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set for pubsub output")
	}
	return nil
}

// SourceTimeout converts the run timeout config to a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Run.SourceTimeoutSeconds) * time.Second
}

// PollInterval converts the serve polling interval to a duration; zero means
// polling is disabled.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Run.IntervalMinutes) * time.Minute
}

// HTTPTimeout converts a per-source timeout to a duration, falling back to a
// sane floor when unset.
func HTTPTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = 15
	}
	return time.Duration(seconds) * time.Second
}
