// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config captures all scraper configuration knobs loaded via Viper.
type Config struct {
	Archive  ArchiveConfig  `mapstructure:"archive"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Output   OutputConfig   `mapstructure:"output"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ArchiveConfig locates the archive and bounds the scrape.
type ArchiveConfig struct {
	URL             string        `mapstructure:"url"`
	BaseURL         string        `mapstructure:"base_url"`
	EntryLinkText   string        `mapstructure:"entry_link_text"`
	DetailsLinkText string        `mapstructure:"details_link_text"`
	XMLLinkText     string        `mapstructure:"xml_link_text"`
	IndexWait       time.Duration `mapstructure:"index_wait"`
	PageWait        time.Duration `mapstructure:"page_wait"`
	// MaxPapers of 0 walks every entry.
	MaxPapers  int `mapstructure:"max_papers"`
	MaxDetails int `mapstructure:"max_details"`
}

// HTTPConfig configures the plain HTTP session.
type HTTPConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// HeadlessConfig configures the browser session.
type HeadlessConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout"`
	ExecPath      string        `mapstructure:"exec_path"`
	DisableImages bool          `mapstructure:"disable_images"`
}

// OutputConfig selects where and how documents are written.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	// PrefixRunID stores each run's documents under its run id.
	PrefixRunID bool   `mapstructure:"prefix_run_id"`
	JSONName    string `mapstructure:"json_name"`
	CSVName     string `mapstructure:"csv_name"`
	CSV         bool   `mapstructure:"csv"`
	Summary     bool   `mapstructure:"summary"`
}

// DBConfig controls the optional Postgres sink.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	TablePrefix  string `mapstructure:"table_prefix"`
	CreateTables bool   `mapstructure:"create_tables"`
	MaxConns     int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig enables the Prometheus listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KMT")
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
	v.SetDefault("archive.url", "https://kmt.vander-lingen.nl/archive")
	v.SetDefault("archive.base_url", "https://kmt.vander-lingen.nl")
	v.SetDefault("archive.entry_link_text", "reaction data")
	v.SetDefault("archive.details_link_text", "Details")
	v.SetDefault("archive.xml_link_text", "XML")
	v.SetDefault("archive.index_wait", "5s")
	v.SetDefault("archive.page_wait", "3s")
	v.SetDefault("archive.max_papers", 1)
	v.SetDefault("archive.max_details", 200)
	v.SetDefault("http.timeout", "5s")
	v.SetDefault("http.user_agent", "kmt-crawler/0.1")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.nav_timeout", "45s")
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.disable_images", true)
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.prefix", "")
	v.SetDefault("output.prefix_run_id", false)
	v.SetDefault("output.json_name", "kmt_output.json")
	v.SetDefault("output.csv_name", "kmt_output.csv")
	v.SetDefault("output.csv", true)
	v.SetDefault("output.summary", true)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table_prefix", "")
	v.SetDefault("db.create_tables", false)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := absoluteURL("archive.url", c.Archive.URL); err != nil {
		return err
	}
	if err := absoluteURL("archive.base_url", c.Archive.BaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Archive.EntryLinkText) == "" {
		return fmt.Errorf("archive.entry_link_text must be set")
	}
	if strings.TrimSpace(c.Archive.DetailsLinkText) == "" {
		return fmt.Errorf("archive.details_link_text must be set")
	}
	if c.Archive.IndexWait <= 0 || c.Archive.PageWait <= 0 {
		return fmt.Errorf("archive.index_wait and archive.page_wait must be > 0")
	}
	if c.Archive.MaxPapers < 0 {
		return fmt.Errorf("archive.max_papers must be >= 0")
	}
	if c.Archive.MaxDetails <= 0 {
		return fmt.Errorf("archive.max_details must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Output.GCSBucket == "" && strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir or output.gcs_bucket must be set")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func absoluteURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute url, got %q", key, raw)
	}
	return nil
}
