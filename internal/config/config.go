package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Bonus      BonusConfig      `yaml:"bonus" mapstructure:"bonus"`
	Automation AutomationConfig `yaml:"automation" mapstructure:"automation"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BonusConfig configures bonus evaluation behavior.
type BonusConfig struct {
	DefaultCurrency string  `yaml:"default_currency" mapstructure:"default_currency"`
	WorkerFanout    int     `yaml:"worker_fanout" mapstructure:"worker_fanout"`
	BackfillRate    float64 `yaml:"backfill_rate" mapstructure:"backfill_rate"`
}

// AutomationConfig configures the scheduled evaluation loop.
type AutomationConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Schedule  string        `yaml:"schedule" mapstructure:"schedule"`
	Lookback  time.Duration `yaml:"lookback" mapstructure:"lookback"`
	Companies []string      `yaml:"companies" mapstructure:"companies"`
}

// ServerConfig configures the admin API server.
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
	v.SetEnvPrefix("AGENCY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. database_url defaults to empty so the env binding is
	// visible to Unmarshal.
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("bonus.default_currency", "USD")
	v.SetDefault("bonus.worker_fanout", 8)
	v.SetDefault("bonus.backfill_rate", 20.0)
	v.SetDefault("automation.enabled", false)
	v.SetDefault("automation.schedule", "0 15 * * * *")
	v.SetDefault("automation.lookback", 24*time.Hour)
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
