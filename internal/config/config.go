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
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`
	Pool      PoolConfig      `yaml:"pool" mapstructure:"pool"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import"`
	Golden    GoldenConfig    `yaml:"golden" mapstructure:"golden"`
	Entities  EntitiesConfig  `yaml:"entities" mapstructure:"entities"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DirectoryConfig configures the directory database, which maps each project
// to its DePara database and its homologation database.
type DirectoryConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Database is the logical name of the directory database itself.
	Database string `yaml:"database" mapstructure:"database"`
	// DataDir holds per-database sqlite files when driver is "sqlite".
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// PoolConfig holds connection pool tuning shared by all resolved databases.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// ImportConfig configures spreadsheet imports.
type ImportConfig struct {
	BatchCommitRows int `yaml:"batch_commit_rows" mapstructure:"batch_commit_rows"`
	MaxRowErrors    int `yaml:"max_row_errors" mapstructure:"max_row_errors"`
}

// GoldenConfig configures homologation database access.
type GoldenConfig struct {
	CacheTTLSecs     int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	LookupsPerSecond float64 `yaml:"lookups_per_second" mapstructure:"lookups_per_second"`
	LookupBurst      int     `yaml:"lookup_burst" mapstructure:"lookup_burst"`
	SyncWorkers      int     `yaml:"sync_workers" mapstructure:"sync_workers"`
}

// EntitiesConfig points at an optional YAML overlay of entity descriptors.
type EntitiesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	SessionTTLHours int      `yaml:"session_ttl_hours" mapstructure:"session_ttl_hours"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("DEPARA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("directory.driver", "postgres")
	v.SetDefault("directory.database", "projetos")
	v.SetDefault("directory.data_dir", "./data")
	v.SetDefault("pool.max_conns", 10)
	v.SetDefault("pool.min_conns", 2)
	v.SetDefault("import.batch_commit_rows", 100)
	v.SetDefault("import.max_row_errors", 10)
	v.SetDefault("golden.cache_ttl_secs", 60)
	v.SetDefault("golden.lookups_per_second", 20)
	v.SetDefault("golden.lookup_burst", 10)
	v.SetDefault("golden.sync_workers", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.session_ttl_hours", 8)
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
