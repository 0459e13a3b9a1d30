// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // scan.timezone must resolve on hosts without zoneinfo

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Geocode  GeocodeConfig  `mapstructure:"geocode"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DatabaseConfig controls the record store. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ScanConfig drives the periodic cycle.
type ScanConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
	Keywords   string        `mapstructure:"keywords"`
	State      string        `mapstructure:"state"`
	// Timezone decides where the calendar day starts for liveness reconciliation.
	Timezone   string        `mapstructure:"timezone"`
	AlertSlack time.Duration `mapstructure:"alert_slack"`
}

// SourcesConfig holds per-connector settings.
type SourcesConfig struct {
	SAMGov            SAMGovConfig   `mapstructure:"sam_gov"`
	CharlestonPermits PermitsConfig  `mapstructure:"charleston_permits"`
	SCBO              SCBOConfig     `mapstructure:"scbo"`
	CharlestonBids    CityBidsConfig `mapstructure:"charleston_bids"`
}

// SAMGovConfig configures the federal opportunities connector.
type SAMGovConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	APIKey   string   `mapstructure:"api_key"`
	BaseURL  string   `mapstructure:"base_url"`
	NAICS    []string `mapstructure:"naics"`
	DaysBack int      `mapstructure:"days_back"`
	Limit    int      `mapstructure:"limit"`
}

// PermitsConfig configures the ArcGIS permit connector.
type PermitsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	RecordCount int    `mapstructure:"record_count"`
}

// SCBOConfig configures the state bid bulletin connector.
type SCBOConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BaseURL  string `mapstructure:"base_url"`
	DaysBack int    `mapstructure:"days_back"`
}

// CityBidsConfig configures the city bid page connector.
type CityBidsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// HTTPConfig configures the outbound collector shared by every connector.
type HTTPConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	// HostRPS caps requests per second to any one upstream host; zero disables it.
	HostRPS       float64       `mapstructure:"host_rps"`
	HostBurst     int           `mapstructure:"host_burst"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

// GeocodeConfig configures the location resolver.
type GeocodeConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	Country     string        `mapstructure:"country"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	RedisURL    string        `mapstructure:"redis_url"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
}

// SMTPConfig configures email delivery.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// TwilioConfig configures SMS delivery.
type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	BaseURL    string `mapstructure:"base_url"`
}

// StorageConfig selects the raw-payload archive backend: none, memory, local or gcs.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for cycle event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITESCAN")
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
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("scan.interval", "6h")
	v.SetDefault("scan.run_on_start", false)
	v.SetDefault("scan.keywords", "")
	v.SetDefault("scan.state", "SC")
	v.SetDefault("scan.timezone", "America/New_York")
	v.SetDefault("scan.alert_slack", "1h")
	v.SetDefault("sources.sam_gov.enabled", true)
	v.SetDefault("sources.sam_gov.api_key", "")
	v.SetDefault("sources.sam_gov.days_back", 30)
	v.SetDefault("sources.sam_gov.limit", 50)
	v.SetDefault("sources.charleston_permits.enabled", true)
	v.SetDefault("sources.charleston_permits.record_count", 200)
	v.SetDefault("sources.scbo.enabled", true)
	v.SetDefault("sources.scbo.days_back", 3)
	v.SetDefault("sources.charleston_bids.enabled", true)
	v.SetDefault("http.user_agent", "SiteScan/1.0 (construction opportunity monitor)")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.host_rps", 2.0)
	v.SetDefault("http.host_burst", 2)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.country", "us")
	v.SetDefault("geocode.min_interval", "1.1s")
	v.SetDefault("geocode.redis_url", "")
	v.SetDefault("geocode.redis_ttl", "720h")
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from", "")
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.prefix", "raw")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Scan.Interval <= 0 {
		return errors.New("scan.interval must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case "", "none", "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return errors.New("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Geocode.Enabled && c.Geocode.MinInterval < 0 {
		return errors.New("geocode.min_interval must not be negative")
	}
	return nil
}

// Location resolves Scan.Timezone; empty means UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Scan.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Scan.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scan.timezone: %w", err)
	}
	return loc, nil
}
