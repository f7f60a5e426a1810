package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the provisioning service.
type Config struct {
	Listen   string
	LogLevel string
	LogFmt   string

	Database DatabaseConfig
	Redis    RedisConfig
	Store    StoreConfig
	Jobs     JobConfig
	Export   ExportConfig
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL renders the config as a pgx connection URL.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisConfig configures the row store connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StoreConfig configures worksheet row storage.
type StoreConfig struct {
	// Backend selects the row store implementation: "redis" or "postgres".
	Backend string
	// TTL bounds how long parsed rows remain retrievable after upload.
	TTL time.Duration
}

// JobConfig configures the job queue timers.
type JobConfig struct {
	// QueuedTTL is how long a job may wait before it is swept as stale.
	QueuedTTL time.Duration
	// RunningTimeout bounds a single job execution.
	RunningTimeout time.Duration
	// ResultTTL controls finished-job retention.
	ResultTTL time.Duration
	// FailureTTL controls failed-job retention.
	FailureTTL time.Duration
}

// ExportConfig configures export workbook generation.
type ExportConfig struct {
	Directory string
}

// Load reads config.yaml from configPath (if present) and applies
// environment overrides with the UCPROV_ prefix. Missing values fall back
// to the documented defaults.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("UCPROV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("log.level", cfg.LogLevel)
	v.SetDefault("log.format", cfg.LogFmt)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.ttl", cfg.Store.TTL)
	v.SetDefault("jobs.queued_ttl", cfg.Jobs.QueuedTTL)
	v.SetDefault("jobs.running_timeout", cfg.Jobs.RunningTimeout)
	v.SetDefault("jobs.result_ttl", cfg.Jobs.ResultTTL)
	v.SetDefault("jobs.failure_ttl", cfg.Jobs.FailureTTL)
	v.SetDefault("export.directory", cfg.Export.Directory)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.Listen = v.GetString("listen")
	cfg.LogLevel = v.GetString("log.level")
	cfg.LogFmt = v.GetString("log.format")
	cfg.Database.Host = v.GetString("database.host")
	cfg.Database.Port = v.GetInt("database.port")
	cfg.Database.User = v.GetString("database.user")
	cfg.Database.Password = v.GetString("database.password")
	cfg.Database.DBName = v.GetString("database.dbname")
	cfg.Database.SSLMode = v.GetString("database.sslmode")
	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")
	cfg.Store.Backend = v.GetString("store.backend")
	cfg.Store.TTL = v.GetDuration("store.ttl")
	cfg.Jobs.QueuedTTL = v.GetDuration("jobs.queued_ttl")
	cfg.Jobs.RunningTimeout = v.GetDuration("jobs.running_timeout")
	cfg.Jobs.ResultTTL = v.GetDuration("jobs.result_ttl")
	cfg.Jobs.FailureTTL = v.GetDuration("jobs.failure_ttl")
	cfg.Export.Directory = v.GetString("export.directory")

	return cfg, nil
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		Listen:   ":8080",
		LogLevel: "info",
		LogFmt:   "text",
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "ucprov",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Store: StoreConfig{
			Backend: "redis",
			TTL:     4 * time.Hour,
		},
		Jobs: JobConfig{
			QueuedTTL:      30 * time.Minute,
			RunningTimeout: 10 * time.Minute,
			ResultTTL:      time.Hour,
			FailureTTL:     24 * time.Hour,
		},
		Export: ExportConfig{
			Directory: "./exports",
		},
	}
}
