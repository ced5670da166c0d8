package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Commit    CommitConfig    `yaml:"commit" mapstructure:"commit"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// LedgerConfig configures the inventory ledger backend.
type LedgerConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig sizes the Postgres connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// ReconcileConfig tunes report interpretation.
type ReconcileConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	// KeywordsFile points at a YAML file overriding the column keyword lists.
	KeywordsFile string `yaml:"keywords_file" mapstructure:"keywords_file"`
	Sheet        string `yaml:"sheet" mapstructure:"sheet"`
}

// CommitConfig configures the deduction batch.
type CommitConfig struct {
	Note         string  `yaml:"note" mapstructure:"note"`
	MaxPerSecond float64 `yaml:"max_per_second" mapstructure:"max_per_second"`
}

// FetchConfig configures remote report downloads.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the settings a command mode depends on. Modes are
// "reconcile" (reports and commits) and "serve" (HTTP API). All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "reconcile", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Ledger.Driver {
	case "sqlite", "postgres":
		if c.Ledger.DatabaseURL == "" {
			errs = append(errs, "ledger.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("ledger.driver must be sqlite or postgres, got %q", c.Ledger.Driver))
	}
	if c.Reconcile.FuzzyThreshold <= 0 || c.Reconcile.FuzzyThreshold > 1 {
		errs = append(errs, "reconcile.fuzzy_threshold must be in (0, 1]")
	}
	if c.Commit.MaxPerSecond < 0 {
		errs = append(errs, "commit.max_per_second must be >= 0")
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, "fetch.max_retries must be >= 0")
	}
	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIELDSTOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.database_url", "fieldstock.db")
	v.SetDefault("ledger.pool.max_conns", 10)
	v.SetDefault("ledger.pool.min_conns", 2)
	v.SetDefault("reconcile.fuzzy_threshold", 0.6)
	v.SetDefault("reconcile.keywords_file", "")
	v.SetDefault("reconcile.sheet", "")
	v.SetDefault("commit.note", "bulk consumption reconciliation")
	v.SetDefault("commit.max_per_second", 0)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "fieldstock/1.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
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
