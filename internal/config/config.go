// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
// Credentials (provider API keys, crawl-service token) are read from the
// process environment, never from the config file.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Runs      RunsConfig      `mapstructure:"runs"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Guard     GuardConfig     `mapstructure:"guard"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// RunsConfig governs defaults applied to submitted runs and the worker pool.
type RunsConfig struct {
	DefaultSector     string `mapstructure:"default_sector"`
	DefaultMaxResults int    `mapstructure:"default_max_results"`
	TimeBudgetSeconds int    `mapstructure:"time_budget_seconds"`
	Concurrency       int    `mapstructure:"concurrency"`
	QueueDepth        int    `mapstructure:"queue_depth"`
}

// CrawlConfig configures the external crawl-service client.
type CrawlConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	ActorID             string `mapstructure:"actor_id"`
	Token               string `mapstructure:"-"`
	Language            string `mapstructure:"language"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
}

// ProvidersConfig configures the query-generation provider chain, in
// priority order. Missing API keys skip that provider.
type ProvidersConfig struct {
	Order          []string `mapstructure:"order"`
	OpenAIBaseURL  string   `mapstructure:"openai_base_url"`
	OpenAIModel    string   `mapstructure:"openai_model"`
	OpenAIKey      string   `mapstructure:"-"`
	GeminiBaseURL  string   `mapstructure:"gemini_base_url"`
	GeminiModel    string   `mapstructure:"gemini_model"`
	GeminiKey      string   `mapstructure:"-"`
	GroqBaseURL    string   `mapstructure:"groq_base_url"`
	GroqModel      string   `mapstructure:"groq_model"`
	GroqKey        string   `mapstructure:"-"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// GuardConfig controls the pre-run credit guard.
type GuardConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	MinCreditsUSD float64 `mapstructure:"min_credits_usd"`
}

// SinkConfig selects the output sink backend.
type SinkConfig struct {
	Provider string `mapstructure:"provider"` // memory | postgres
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// BlobConfig selects the raw-snapshot blob store backend.
type BlobConfig struct {
	Provider  string `mapstructure:"provider"` // memory | local | gcs
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PublisherConfig selects the run-completion event publisher.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"` // memory | pubsub
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCOUT")
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

	// Secrets come from the raw environment only.
	cfg.Crawl.Token = v.GetString("apify_token")
	cfg.Providers.OpenAIKey = v.GetString("openai_api_key")
	cfg.Providers.GeminiKey = v.GetString("gemini_api_key")
	cfg.Providers.GroqKey = v.GetString("groq_api_key")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("runs.default_sector", "Healthcare")
	v.SetDefault("runs.default_max_results", 10)
	v.SetDefault("runs.time_budget_seconds", 300)
	v.SetDefault("runs.concurrency", 2)
	v.SetDefault("runs.queue_depth", 64)
	v.SetDefault("crawl.base_url", "https://api.apify.com")
	v.SetDefault("crawl.actor_id", "compass~crawler-google-places")
	v.SetDefault("crawl.language", "en")
	v.SetDefault("crawl.poll_interval_seconds", 5)
	v.SetDefault("crawl.timeout_seconds", 30)
	v.SetDefault("providers.order", []string{"openai", "groq", "gemini"})
	v.SetDefault("providers.openai_model", "gpt-4o-mini")
	v.SetDefault("providers.gemini_base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("providers.gemini_model", "gemini-1.5-flash")
	v.SetDefault("providers.groq_base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("providers.groq_model", "llama-3.1-8b-instant")
	v.SetDefault("providers.timeout_seconds", 30)
	v.SetDefault("guard.enabled", true)
	v.SetDefault("guard.min_credits_usd", 0.5)
	v.SetDefault("sink.provider", "memory")
	v.SetDefault("sink.max_conns", 4)
	v.SetDefault("blob.provider", "memory")
	v.SetDefault("blob.prefix", "snapshots")
	v.SetDefault("publisher.provider", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Runs.DefaultMaxResults < 1 {
		return fmt.Errorf("runs.default_max_results must be >= 1")
	}
	if c.Runs.TimeBudgetSeconds <= 0 {
		return fmt.Errorf("runs.time_budget_seconds must be > 0")
	}
	if c.Runs.Concurrency <= 0 {
		return fmt.Errorf("runs.concurrency must be > 0")
	}
	if c.Crawl.PollIntervalSeconds <= 0 {
		return fmt.Errorf("crawl.poll_interval_seconds must be > 0")
	}
	if c.Crawl.Token == "" {
		return fmt.Errorf("LEADSCOUT_APIFY_TOKEN must be set")
	}
	if c.Sink.Provider == "postgres" && c.Sink.DSN == "" {
		return fmt.Errorf("sink.dsn must be set when sink.provider is postgres")
	}
	if c.Blob.Provider == "gcs" && c.Blob.GCSBucket == "" {
		return fmt.Errorf("blob.gcs_bucket must be set when blob.provider is gcs")
	}
	if c.Blob.Provider == "local" && c.Blob.BaseDir == "" {
		return fmt.Errorf("blob.base_dir must be set when blob.provider is local")
	}
	if c.Publisher.Provider == "pubsub" && (c.Publisher.ProjectID == "" || c.Publisher.TopicName == "") {
		return fmt.Errorf("publisher.project_id and publisher.topic_name must be set when publisher.provider is pubsub")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// TimeBudget converts the configured run budget into a duration.
func (c Config) TimeBudget() time.Duration {
	return time.Duration(c.Runs.TimeBudgetSeconds) * time.Second
}

// PollInterval converts the configured poll cadence into a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Crawl.PollIntervalSeconds) * time.Second
}
