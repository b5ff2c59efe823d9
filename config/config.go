package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/viper"
)

// Config holds all configuration for the dealwatch pipeline.
type Config struct {
	General  GeneralConfig  `mapstructure:"general"`
	Server   ServerConfig   `mapstructure:"server"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Registry RegistryConfig `mapstructure:"registry"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// Verbose reports whether per-request logging should be enabled.
func (g GeneralConfig) Verbose() bool {
	return g.Debug || strings.EqualFold(g.LogLevel, "debug")
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// TransferConfig controls the chunked-transfer endpoint.
type TransferConfig struct {
	AckEvery        int           `mapstructure:"ack_every"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
	HandleParsed    bool          `mapstructure:"handle_parsed"`
}

// RegistryConfig locates the product registry and its retention policy.
type RegistryConfig struct {
	Path       string          `mapstructure:"path"`
	HistoryCap int             `mapstructure:"history_cap"`
	Retention  RetentionConfig `mapstructure:"retention"`
}

// RetentionConfig bounds registry growth. Disabled by default: records
// persist indefinitely unless a sweep is configured.
type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Schedule string        `mapstructure:"schedule"` // cron expression
}

func (r RetentionConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.MaxAge <= 0 {
		return fmt.Errorf("registry.retention.max_age must be > 0 when retention is enabled")
	}
	if strings.TrimSpace(r.Schedule) != "" {
		if _, err := cronexpr.Parse(r.Schedule); err != nil {
			return fmt.Errorf("registry.retention.schedule: %w", err)
		}
	}
	return nil
}

// IngestConfig controls the polling ingest loop.
type IngestConfig struct {
	WatchDir      string        `mapstructure:"watch_dir"`
	QuarantineDir string        `mapstructure:"quarantine_dir"`
	SummaryPath   string        `mapstructure:"summary_path"`
	Interval      time.Duration `mapstructure:"interval"`
}

// StorageConfig contains file layout and optional Redis settings.
type StorageConfig struct {
	DataDir    string      `mapstructure:"data_dir"`
	InboxDir   string      `mapstructure:"inbox_dir"`
	ProductDir string      `mapstructure:"product_dir"`
	Redis      RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings. Redis is optional; when
// disabled the transfer dedup set is process-local.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required when redis is enabled")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when redis is enabled")
	}
	return nil
}

// Addr joins host and port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Normalize derives file locations that were left unset from data_dir.
func (c *Config) Normalize() {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Storage.InboxDir == "" {
		c.Storage.InboxDir = filepath.Join(c.Storage.DataDir, "inbox")
	}
	if c.Storage.ProductDir == "" {
		c.Storage.ProductDir = filepath.Join(c.Storage.DataDir, "produkt")
	}
	if c.Registry.Path == "" {
		c.Registry.Path = filepath.Join(c.Storage.DataDir, "product_list.json")
	}
	if c.Ingest.WatchDir == "" {
		c.Ingest.WatchDir = c.Storage.ProductDir
	}
	if c.Ingest.QuarantineDir == "" {
		c.Ingest.QuarantineDir = filepath.Join(c.Storage.DataDir, "bad")
	}
	if c.Ingest.SummaryPath == "" {
		c.Ingest.SummaryPath = filepath.Join(c.Storage.DataDir, "out", "summary.jsonl")
	}
}

// LoadConfig loads config from file, with DEALWATCH_* environment overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10090")
	viper.SetDefault("transfer.ack_every", 10)
	viper.SetDefault("transfer.session_ttl", "30m")
	viper.SetDefault("transfer.janitor_interval", "1m")
	viper.SetDefault("transfer.handle_parsed", false)
	viper.SetDefault("registry.history_cap", 5)
	viper.SetDefault("registry.retention.enabled", false)
	viper.SetDefault("registry.retention.schedule", "0 3 * * *")
	viper.SetDefault("ingest.interval", "5s")
	viper.SetDefault("storage.redis.enabled", false)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DEALWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional when no explicit path was given
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Normalize()

	if err := config.Registry.Retention.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	return &config
}
