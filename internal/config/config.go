package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Bookmaker BookmakerConfig `mapstructure:"bookmaker"`
	Taxonomy  TaxonomyConfig  `mapstructure:"taxonomy"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Delta     DeltaConfig     `mapstructure:"delta"`
	Arb       ArbConfig       `mapstructure:"arb"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DataConfig locates the raw/normalized/computed tree
type DataConfig struct {
	Root string `mapstructure:"root"`
}

// BookmakerConfig selects the competition, line and bookmaker the 365Scores
// normalizer keeps
type BookmakerConfig struct {
	Competition   string `mapstructure:"competition"`
	LineType      string `mapstructure:"line_type"`
	BookmakerID   int    `mapstructure:"bookmaker_id"`
	BookmakerName string `mapstructure:"bookmaker_name"`
	League        string `mapstructure:"league"`
}

// RuleConfig is one ordered taxonomy rule
type RuleConfig struct {
	Tag      string   `mapstructure:"tag"`
	Keywords []string `mapstructure:"keywords"`
}

// TaxonomyConfig holds the classifier rule table; an empty list uses the
// built-in table. Order is significant.
type TaxonomyConfig struct {
	Rules      []RuleConfig `mapstructure:"rules"`
	Vocabulary []string     `mapstructure:"vocabulary"`
}

// SignalConfig holds the Signal Engine heuristics
type SignalConfig struct {
	ResolutionKeyword string  `mapstructure:"resolution_keyword"`
	MaxSpread         float64 `mapstructure:"max_spread"`
	NeutralTightness  float64 `mapstructure:"neutral_tightness"`
	TopInstances      int     `mapstructure:"top_instances"`
}

// DeltaConfig holds the Delta Engine thresholds
type DeltaConfig struct {
	EdgeConviction     float64 `mapstructure:"edge_conviction"`
	IncludeNewEntities bool    `mapstructure:"include_new_entities"`
}

// ArbConfig holds the Arb Scorer category
type ArbConfig struct {
	Taxonomy string `mapstructure:"taxonomy"`
}

// HARRule matches captured requests by host and path substring
type HARRule struct {
	Host string `mapstructure:"host"`
	Path string `mapstructure:"path"`
}

// CaptureConfig holds the raw capture adapters' settings
type CaptureConfig struct {
	KalshiURL     string            `mapstructure:"kalshi_url"`
	KalshiParams  map[string]string `mapstructure:"kalshi_params"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	MaxRetries    int               `mapstructure:"max_retries"`
	RatePerSecond float64           `mapstructure:"rate_per_second"`
	MaxPages      int               `mapstructure:"max_pages"`

	GammaURL   string `mapstructure:"gamma_url"`
	ClobURL    string `mapstructure:"clob_url"`
	GammaLimit int    `mapstructure:"gamma_limit"`
	BookTokens int    `mapstructure:"book_tokens"`

	BooksRule     HARRule `mapstructure:"books_rule"`
	BookmakerRule HARRule `mapstructure:"bookmaker_rule"`
	GammaRule     HARRule `mapstructure:"gamma_rule"`
	SportID       int     `mapstructure:"sport_id"`

	WSURL        string        `mapstructure:"ws_url"`
	WSChannel    string        `mapstructure:"ws_channel"`
	AssetIDs     []string      `mapstructure:"asset_ids"`
	TopAssets    int           `mapstructure:"top_assets"`
	WSDuration   time.Duration `mapstructure:"ws_duration"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken   string        `mapstructure:"bot_token"`
	ChatID     string        `mapstructure:"chat_id"`
	Enabled    bool          `mapstructure:"enabled"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// StorageConfig holds the run ledger configuration
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// MetricsConfig holds Prometheus textfile export configuration
type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TextfilePath string `mapstructure:"textfile_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. An empty
// path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// POLYEDGE_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("POLYEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("data.root", "./data")

	v.SetDefault("bookmaker.competition", "Premier League")
	v.SetDefault("bookmaker.line_type", "Full Time Result")
	v.SetDefault("bookmaker.bookmaker_id", 103)
	v.SetDefault("bookmaker.bookmaker_name", "BetMGM")
	v.SetDefault("bookmaker.league", "EPL")

	v.SetDefault("taxonomy.vocabulary", []string{"first", "last", "both", "score", "goal", "half", "minute", "extra time", "penalty"})

	v.SetDefault("signal.resolution_keyword", " winner?")
	v.SetDefault("signal.max_spread", 0.20)
	v.SetDefault("signal.neutral_tightness", 0.5)
	v.SetDefault("signal.top_instances", 3)

	v.SetDefault("delta.edge_conviction", 0.1)
	v.SetDefault("delta.include_new_entities", false)

	v.SetDefault("arb.taxonomy", "TOTAL_GOALS")

	v.SetDefault("capture.kalshi_url", "https://api.elections.kalshi.com/trade-api/v2/events")
	v.SetDefault("capture.kalshi_params", map[string]string{"limit": "100", "with_nested_markets": "true"})
	v.SetDefault("capture.timeout", "30s")
	v.SetDefault("capture.max_retries", 3)
	v.SetDefault("capture.rate_per_second", 2.0)
	v.SetDefault("capture.max_pages", 10)
	v.SetDefault("capture.gamma_url", "https://gamma-api.polymarket.com")
	v.SetDefault("capture.clob_url", "https://clob.polymarket.com")
	v.SetDefault("capture.gamma_limit", 100)
	v.SetDefault("capture.book_tokens", 200)
	v.SetDefault("capture.books_rule.host", "clob.polymarket.com")
	v.SetDefault("capture.books_rule.path", "/books")
	v.SetDefault("capture.bookmaker_rule.host", "365scores.com")
	v.SetDefault("capture.bookmaker_rule.path", "/web/games/allscores")
	v.SetDefault("capture.gamma_rule.host", "gamma-api.polymarket.com")
	v.SetDefault("capture.gamma_rule.path", "/events/pagination")
	v.SetDefault("capture.sport_id", 1)
	v.SetDefault("capture.ws_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("capture.ws_channel", "market")
	v.SetDefault("capture.top_assets", 5)
	v.SetDefault("capture.ws_duration", "30s")
	v.SetDefault("capture.ping_interval", "15s")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.cooldown", "6h")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay", "1s")

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", "./data/polyedge.db")
	v.SetDefault("storage.max_runs", 10000)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile_path", "./data/polyedge.prom")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Data.Root == "" {
		return fmt.Errorf("data.root is required")
	}

	if c.Bookmaker.Competition == "" {
		return fmt.Errorf("bookmaker.competition is required")
	}
	if c.Bookmaker.LineType == "" {
		return fmt.Errorf("bookmaker.line_type is required")
	}
	if c.Bookmaker.BookmakerID < 1 {
		return fmt.Errorf("bookmaker.bookmaker_id must be positive")
	}
	if c.Bookmaker.League == "" {
		return fmt.Errorf("bookmaker.league is required")
	}

	seen := make(map[string]bool)
	for i, r := range c.Taxonomy.Rules {
		if r.Tag == "" {
			return fmt.Errorf("taxonomy.rules[%d].tag is required", i)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("taxonomy.rules[%d].keywords must not be empty", i)
		}
		if seen[r.Tag] {
			return fmt.Errorf("taxonomy.rules[%d].tag %q is duplicated", i, r.Tag)
		}
		seen[r.Tag] = true
	}

	if c.Signal.ResolutionKeyword == "" {
		return fmt.Errorf("signal.resolution_keyword is required")
	}
	if c.Signal.MaxSpread <= 0 || c.Signal.MaxSpread > 1 {
		return fmt.Errorf("signal.max_spread must be in (0, 1]")
	}
	if c.Signal.NeutralTightness < 0 || c.Signal.NeutralTightness > 1 {
		return fmt.Errorf("signal.neutral_tightness must be between 0.0 and 1.0")
	}
	if c.Signal.TopInstances < 1 {
		return fmt.Errorf("signal.top_instances must be at least 1")
	}

	if c.Delta.EdgeConviction < 0 || c.Delta.EdgeConviction > 0.5 {
		return fmt.Errorf("delta.edge_conviction must be between 0.0 and 0.5")
	}

	if c.Arb.Taxonomy == "" {
		return fmt.Errorf("arb.taxonomy is required")
	}

	if c.Capture.Timeout < time.Second {
		return fmt.Errorf("capture.timeout must be at least 1 second")
	}
	if c.Capture.MaxRetries < 1 {
		return fmt.Errorf("capture.max_retries must be at least 1")
	}
	if c.Capture.RatePerSecond <= 0 {
		return fmt.Errorf("capture.rate_per_second must be positive")
	}
	if c.Capture.MaxPages < 1 {
		return fmt.Errorf("capture.max_pages must be at least 1")
	}
	if c.Capture.GammaLimit < 1 {
		return fmt.Errorf("capture.gamma_limit must be at least 1")
	}
	if c.Capture.WSDuration < time.Second {
		return fmt.Errorf("capture.ws_duration must be at least 1 second")
	}
	if c.Capture.PingInterval < 0 {
		return fmt.Errorf("capture.ping_interval must not be negative")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if !c.Storage.Enabled {
			return fmt.Errorf("storage.enabled is required when telegram is enabled")
		}
	}
	if c.Telegram.Cooldown < 0 {
		return fmt.Errorf("telegram.cooldown must not be negative")
	}

	if c.Storage.Enabled && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required when storage is enabled")
	}
	if c.Storage.MaxRuns < 1 {
		return fmt.Errorf("storage.max_runs must be at least 1")
	}
	if c.Metrics.Enabled && c.Metrics.TextfilePath == "" {
		return fmt.Errorf("metrics.textfile_path is required when metrics is enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
