package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Resolver  ResolverConfig  `yaml:"resolver" mapstructure:"resolver"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// SQLitePath is used when Driver is "sqlite".
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`

	// Track endpoint limits. RateLimit is requests per second per client IP;
	// MaxBodyBytes bounds the pixel payload.
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst    int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	MaxBodyBytes int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`

	// CORSOrigins lists allowed origins for the track endpoint. The pixel
	// runs on customer sites, so the default is wide open.
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ResolverConfig sizes the async identify resolution queue.
type ResolverConfig struct {
	QueueSize   int    `yaml:"queue_size" mapstructure:"queue_size"`
	Workers     int    `yaml:"workers" mapstructure:"workers"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMS   int    `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	Mode        string `yaml:"mode" mapstructure:"mode"` // "async" or "sync"
}

// ReconcileConfig configures the batch reconciliation sweep.
type ReconcileConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
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
	v.AddConfigPath("/etc/trackd")

	// Environment
	v.SetEnvPrefix("TRACKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "trackd.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 25.0)
	v.SetDefault("server.rate_burst", 50)
	v.SetDefault("server.max_body_bytes", 64*1024)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("resolver.queue_size", 1024)
	v.SetDefault("resolver.workers", 4)
	v.SetDefault("resolver.max_attempts", 3)
	v.SetDefault("resolver.backoff_ms", 500)
	v.SetDefault("resolver.mode", "async")
	v.SetDefault("reconcile.workers", 4)
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
