package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type RedisConfig struct {
	Addr              string
	Password          string
	DB                int
	DashboardCacheTTL time.Duration
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type WorkflowConfig struct {
	StrictTransitions bool
	Timezone          string
}

type Config struct {
	Environment string
	MigrateOnly bool
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Redis       RedisConfig
	AMQP        AMQPConfig
	Workflow    WorkflowConfig
}

// Flags returns the command-line flag set understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("as-service", pflag.ContinueOnError)
	fs.String("config", "", "path to an env-style config file")
	fs.Bool("migrate", false, "run database migrations and exit")
	fs.Int("http-port", 0, "HTTP listen port (overrides HTTP_PORT)")
	return fs
}

// Load reads configuration from app.env, the environment and the given flags.
// fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")

	v.AutomaticEnv()

	if fs != nil {
		_ = v.BindPFlag("CONFIG_FILE", fs.Lookup("config"))
		_ = v.BindPFlag("MIGRATE_ONLY", fs.Lookup("migrate"))
		if f := fs.Lookup("http-port"); f != nil && f.Changed {
			_ = v.BindPFlag("HTTP_PORT", f)
		}
	}

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		_ = v.ReadInConfig()
	}

	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DASHBOARD_CACHE_TTL", 30*time.Second)
	v.SetDefault("AMQP_EXCHANGE", "as.events")
	v.SetDefault("TIMEZONE", "Asia/Seoul")

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		MigrateOnly: v.GetBool("MIGRATE_ONLY"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Redis: RedisConfig{
			Addr:              v.GetString("REDIS_ADDR"),
			Password:          v.GetString("REDIS_PASSWORD"),
			DB:                v.GetInt("REDIS_DB"),
			DashboardCacheTTL: v.GetDuration("DASHBOARD_CACHE_TTL"),
		},
		AMQP: AMQPConfig{
			URL:      v.GetString("AMQP_URL"),
			Exchange: v.GetString("AMQP_EXCHANGE"),
		},
		Workflow: WorkflowConfig{
			StrictTransitions: v.GetBool("STRICT_TRANSITIONS"),
			Timezone:          v.GetString("TIMEZONE"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location resolves the workflow timezone used for "today".
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Workflow.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT %d is out of range", cfg.HTTP.Port)
	}
	if _, err := time.LoadLocation(cfg.Workflow.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", cfg.Workflow.Timezone, err)
	}
	return nil
}
