package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Sync     SyncConfig     `yaml:"sync"`
	Layout   LayoutConfig   `yaml:"layout"`
	Site     SiteConfig     `yaml:"site"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	LogDir     string `yaml:"log_dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// UpstreamConfig holds the player directory API client configuration
type UpstreamConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// CacheConfig holds query cache freshness windows
type CacheConfig struct {
	StaleTime          time.Duration `yaml:"stale_time"`
	DirectoryStaleTime time.Duration `yaml:"directory_stale_time"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	KeyTTL       time.Duration `yaml:"key_ttl"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration for the invalidation bus
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"group_id"`
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// SyncConfig holds directory synchronization worker configuration
type SyncConfig struct {
	Interval         time.Duration `yaml:"interval"`
	Enabled          bool          `yaml:"enabled"`
	PrefetchProfiles bool          `yaml:"prefetch_profiles"`
}

// ItemBounds bounds the number of cards shown per page for one breakpoint
type ItemBounds struct {
	MinItems int `yaml:"min_items"`
	MaxItems int `yaml:"max_items"`
}

// LayoutConfig holds per-breakpoint page size bounds
type LayoutConfig struct {
	Desktop ItemBounds `yaml:"desktop"`
	Tablet  ItemBounds `yaml:"tablet"`
	Mobile  ItemBounds `yaml:"mobile"`
}

// SiteConfig holds public site settings used for SEO and the sitemap
type SiteConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 14
	}

	// Upstream defaults
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://api.chess.com/pub"
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 10 * time.Second
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = "grandmasters-wiki/1.0"
	}
	if c.Upstream.RatePerSecond == 0 {
		c.Upstream.RatePerSecond = 5
	}
	if c.Upstream.Burst == 0 {
		c.Upstream.Burst = 5
	}
	if c.Upstream.RetryAttempts == 0 {
		c.Upstream.RetryAttempts = 1
	}
	if c.Upstream.RetryDelay == 0 {
		c.Upstream.RetryDelay = 500 * time.Millisecond
	}

	// Cache defaults
	if c.Cache.StaleTime == 0 {
		c.Cache.StaleTime = 5 * time.Minute
	}
	if c.Cache.DirectoryStaleTime == 0 {
		c.Cache.DirectoryStaleTime = 1 * time.Hour
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.KeyTTL == 0 {
		c.Redis.KeyTTL = 24 * time.Hour
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 10
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "grandmasters-cache-invalidation"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "grandmasters-wiki"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// Sync defaults
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 6 * time.Hour
	}

	// Layout defaults
	applyBounds(&c.Layout.Desktop, 3, 42)
	applyBounds(&c.Layout.Tablet, 2, 28)
	applyBounds(&c.Layout.Mobile, 1, 20)

	// Site defaults
	if c.Site.URL == "" {
		c.Site.URL = "https://chess-grandmasters-wiki.com"
	}
	if c.Site.Name == "" {
		c.Site.Name = "Chess Grandmasters Wiki"
	}
}

func applyBounds(b *ItemBounds, minItems, maxItems int) {
	if b.MinItems <= 0 {
		b.MinItems = minItems
	}
	if b.MaxItems <= 0 {
		b.MaxItems = maxItems
	}
	if b.MaxItems < b.MinItems {
		b.MaxItems = b.MinItems
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Sync.Enabled = true
	return cfg
}
