// Package config loads application configuration from file and
// environment, and owns global logger initialization.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/trendwatch/internal/collector"
	"github.com/sells-group/trendwatch/internal/resilience"
	"github.com/sells-group/trendwatch/internal/store"
	"github.com/sells-group/trendwatch/pkg/trends"
)

// Config holds the full application configuration.
type Config struct {
	Entities EntitiesConfig `yaml:"entities" mapstructure:"entities"`
	Query    QueryConfig    `yaml:"query" mapstructure:"query"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Ledger   LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// EntitiesConfig points at the tracked-entities file.
type EntitiesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// QueryConfig holds the interest-over-time query parameters.
type QueryConfig struct {
	Geo      string `yaml:"geo" mapstructure:"geo"`
	Lang     string `yaml:"lang" mapstructure:"lang"`
	TZOffset int    `yaml:"tz_offset" mapstructure:"tz_offset"`
	Category int    `yaml:"category" mapstructure:"category"`
	Property string `yaml:"property" mapstructure:"property"`
}

// FetchConfig configures retry, pacing and cooldown behavior.
type FetchConfig struct {
	MaxRetries               int    `yaml:"max_retries" mapstructure:"max_retries"`
	BaseSleepSecs            int    `yaml:"base_sleep_secs" mapstructure:"base_sleep_secs"`
	MaxBackoffSecs           int    `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	JitterMaxSecs            int    `yaml:"jitter_max_secs" mapstructure:"jitter_max_secs"`
	NetworkPenaltySecs       int    `yaml:"network_penalty_secs" mapstructure:"network_penalty_secs"`
	PauseBetweenCallsSecs    int    `yaml:"pause_between_calls_secs" mapstructure:"pause_between_calls_secs"`
	PauseBetweenEntitiesSecs int    `yaml:"pause_between_entities_secs" mapstructure:"pause_between_entities_secs"`
	InitialDelaySecs         int    `yaml:"initial_delay_secs" mapstructure:"initial_delay_secs"`
	CooldownSecs             int    `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	CooldownThreshold        int    `yaml:"cooldown_threshold" mapstructure:"cooldown_threshold"`
	UserAgent                string `yaml:"user_agent" mapstructure:"user_agent"`
}

// DataConfig configures dataset persistence.
type DataConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Stem     string `yaml:"stem" mapstructure:"stem"`
	DaysBack int    `yaml:"days_back" mapstructure:"days_back"`
}

// LedgerConfig configures the run-ledger backend.
type LedgerConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	Path        string            `yaml:"path" mapstructure:"path"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRENDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("entities.file", "entities.yaml")
	v.SetDefault("query.geo", "CL")
	v.SetDefault("query.lang", "es-CL")
	v.SetDefault("query.tz_offset", 360)
	v.SetDefault("fetch.max_retries", 5)
	v.SetDefault("fetch.base_sleep_secs", 30)
	v.SetDefault("fetch.max_backoff_secs", 600)
	v.SetDefault("fetch.jitter_max_secs", 10)
	v.SetDefault("fetch.network_penalty_secs", 30)
	v.SetDefault("fetch.pause_between_calls_secs", 20)
	v.SetDefault("fetch.pause_between_entities_secs", 60)
	v.SetDefault("fetch.initial_delay_secs", 30)
	v.SetDefault("fetch.cooldown_secs", 3600)
	v.SetDefault("fetch.cooldown_threshold", 3)
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.stem", "interest_daily")
	v.SetDefault("data.days_back", 90)
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.path", "trendwatch.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// QueryParams converts the query section to the trends client form.
func (c *Config) QueryParams() trends.QueryParams {
	return trends.QueryParams{
		Geo:      c.Query.Geo,
		Lang:     c.Query.Lang,
		TZOffset: c.Query.TZOffset,
		Category: c.Query.Category,
		Property: c.Query.Property,
	}
}

// Policy converts the fetch section to a collector policy.
func (c *Config) Policy() collector.Policy {
	f := c.Fetch
	return collector.Policy{
		MaxRetries:           f.MaxRetries,
		PauseBetweenCalls:    secs(f.PauseBetweenCallsSecs),
		PauseBetweenEntities: secs(f.PauseBetweenEntitiesSecs),
		InitialDelay:         secs(f.InitialDelaySecs),
		CooldownThreshold:    f.CooldownThreshold,
		Cooldown:             secs(f.CooldownSecs),
		Backoff: resilience.NewBackoffPolicy(
			secs(f.BaseSleepSecs),
			secs(f.MaxBackoffSecs),
			secs(f.JitterMaxSecs),
			secs(f.NetworkPenaltySecs),
			uint64(time.Now().UnixNano()),
		),
	}
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
