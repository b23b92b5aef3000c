// Package config loads and validates rankwatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"
	// Embedded zone data keeps clock.location valid on minimal images.
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Backend names accepted by the storage, cache, and archive sections.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Detail   DetailConfig   `mapstructure:"detail"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Cache    CacheConfig    `mapstructure:"cache"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	History  HistoryConfig  `mapstructure:"history"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Clock    ClockConfig    `mapstructure:"clock"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// CrawlConfig governs one ranking crawl.
type CrawlConfig struct {
	MaxPages       int           `mapstructure:"max_pages"`
	PageDelay      time.Duration `mapstructure:"page_delay"`
	Variance       int           `mapstructure:"variance"`
	Deadline       time.Duration `mapstructure:"deadline"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
	PrimaryRegion  string        `mapstructure:"primary_region"`
	DerivedRegions int           `mapstructure:"derived_regions"`
	SearchBase     string        `mapstructure:"search_base"`
	Topic          string        `mapstructure:"topic"`
}

// HeadlessConfig configures the Chrome page fetcher.
type HeadlessConfig struct {
	MaxParallel          int           `mapstructure:"max_parallel"`
	UserAgent            string        `mapstructure:"user_agent"`
	ExecPath             string        `mapstructure:"exec_path"`
	Headless             bool          `mapstructure:"headless"`
	DOMTimeout           time.Duration `mapstructure:"dom_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	HardTimeout          time.Duration `mapstructure:"hard_timeout"`
	SelectorWait         time.Duration `mapstructure:"selector_wait"`
	CaptureTimeout       time.Duration `mapstructure:"capture_timeout"`
	ContentSelector      string        `mapstructure:"content_selector"`
	BlockedResourceTypes []string      `mapstructure:"blocked_resource_types"`
	BlockedURLSubstrings []string      `mapstructure:"blocked_url_substrings"`
	BlockedHosts         []string      `mapstructure:"blocked_hosts"`
	CookieDomain         string        `mapstructure:"cookie_domain"`
	CookieNames          []string      `mapstructure:"cookie_names"`
	NavigationQPS        float64       `mapstructure:"navigation_qps"`
}

// DetailConfig configures product detail lookups.
type DetailConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
	RPS                float64       `mapstructure:"rps"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
	HeadlessFallback   bool          `mapstructure:"headless_fallback"`
}

// StorageConfig selects the snapshot store.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	TablePrefix     string        `mapstructure:"table_prefix"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// ArchiveConfig selects where raw search pages are kept.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// CacheConfig selects the same-day result cache.
type CacheConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// PubSubConfig holds metadata for snapshot notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
}

// HistoryConfig sizes the in-process recent crawl buffer.
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ClockConfig names the location calendar days are counted in.
type ClockConfig struct {
	Location string `mapstructure:"location"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RANKWATCH")
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
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("crawl.max_pages", 3)
	v.SetDefault("crawl.page_delay", "500ms")
	v.SetDefault("crawl.variance", 5)
	v.SetDefault("crawl.deadline", "60s")
	v.SetDefault("crawl.persist_timeout", "10s")
	v.SetDefault("crawl.primary_region", "msk")
	v.SetDefault("crawl.derived_regions", 3)
	v.SetDefault("crawl.search_base", "https://www.wildberries.ru/catalog/0/search.aspx")
	v.SetDefault("crawl.topic", "rank-snapshots")

	v.SetDefault("headless.max_parallel", 4)
	v.SetDefault("headless.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.headless", true)
	v.SetDefault("headless.dom_timeout", "20s")
	v.SetDefault("headless.idle_timeout", "15s")
	v.SetDefault("headless.hard_timeout", "10s")
	v.SetDefault("headless.selector_wait", "5s")
	v.SetDefault("headless.capture_timeout", "5s")
	v.SetDefault("headless.content_selector", ".product-card, .not-found-search, .catalog-page__empty")
	v.SetDefault("headless.blocked_resource_types", []string{"Stylesheet", "Font", "Media"})
	v.SetDefault("headless.blocked_url_substrings", []string{"google", "analytics"})
	v.SetDefault("headless.blocked_hosts", []string{})
	v.SetDefault("headless.cookie_domain", ".wildberries.ru")
	v.SetDefault("headless.cookie_names", []string{"wbx-ssid", "region_id"})
	v.SetDefault("headless.navigation_qps", 2.0)

	v.SetDefault("detail.base_url", "https://www.wildberries.ru")
	v.SetDefault("detail.timeout", "30s")
	v.SetDefault("detail.probe_timeout", "10s")
	v.SetDefault("detail.rps", 2.0)
	v.SetDefault("detail.promotion_threshold", 2048)
	v.SetDefault("detail.headless_fallback", true)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table_prefix", "rank")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.ensure_schema", true)

	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.prefix", "search-pages")
	v.SetDefault("archive.local_dir", "data/archive")
	v.SetDefault("archive.gcs_bucket", "")

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")

	v.SetDefault("history.capacity", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("clock.location", "Europe/Moscow")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.Crawl.validate(); err != nil {
		return err
	}
	if c.Headless.MaxParallel < 0 {
		return fmt.Errorf("headless.max_parallel must be >= 0")
	}
	if c.Headless.NavigationQPS < 0 {
		return fmt.Errorf("headless.navigation_qps must be >= 0")
	}
	if c.Detail.Timeout <= 0 {
		return fmt.Errorf("detail.timeout must be > 0")
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be > 0")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when storage.backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, postgres; got %q", c.Storage.Backend)
	}

	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.backend is local")
		}
	case BackendGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, memory, local, gcs; got %q", c.Archive.Backend)
	}

	switch c.Cache.Backend {
	case BackendNone, BackendMemory:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr must be set when cache.backend is redis")
		}
	default:
		return fmt.Errorf("cache.backend must be one of none, memory, redis; got %q", c.Cache.Backend)
	}

	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	if c.PubSub.Enabled && c.Crawl.Topic == "" {
		return fmt.Errorf("crawl.topic must be set when pubsub is enabled")
	}
	if _, err := time.LoadLocation(c.Clock.Location); err != nil {
		return fmt.Errorf("clock.location %q: %w", c.Clock.Location, err)
	}
	return nil
}

func (c CrawlConfig) validate() error {
	switch {
	case c.MaxPages <= 0:
		return fmt.Errorf("crawl.max_pages must be > 0")
	case c.PageDelay < 0:
		return fmt.Errorf("crawl.page_delay must be >= 0")
	case c.Variance < 0:
		return fmt.Errorf("crawl.variance must be >= 0")
	case c.Deadline <= 0:
		return fmt.Errorf("crawl.deadline must be > 0")
	case c.DerivedRegions < 0:
		return fmt.Errorf("crawl.derived_regions must be >= 0")
	}
	return nil
}
