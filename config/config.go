/*
Package config loads application settings through viper.

PURPOSE:
  One typed Config shared by the HTTP server, the scheduler and the CLI.
  Values come from defaults, an optional YAML file, COLLECTIONS_* env vars
  and bound cobra flags, in increasing precedence.

KEYS:
  server.port                     8080
  server.allowed_origins          [http://localhost:5173]
  database.path                   collections.db (":memory:" allowed)
  auth.jwt_secret                 ""
  auth.allow_actor_header         true
  assignment.simple_batch_size    300
  assignment.roster_cutoff_hour   10
  scheduler.enabled               false
  scheduler.interval              1h
  scheduler.scopes                []

ENV:
  server.port -> COLLECTIONS_SERVER_PORT
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "COLLECTIONS"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Assignment AssignmentConfig `mapstructure:"assignment"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	JWTSecret        string `mapstructure:"jwt_secret"`
	AllowActorHeader bool   `mapstructure:"allow_actor_header"`
}

type AssignmentConfig struct {
	SimpleBatchSize  int `mapstructure:"simple_batch_size"`
	RosterCutoffHour int `mapstructure:"roster_cutoff_hour"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Scopes   []string      `mapstructure:"scopes"`
}

// SetDefaults registers every key so env vars resolve through Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("database.path", "collections.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.allow_actor_header", true)
	v.SetDefault("assignment.simple_batch_size", 300)
	v.SetDefault("assignment.roster_cutoff_hour", 10)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("scheduler.scopes", []string{})
}

// New returns a viper instance with defaults and env binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional file at path into v and returns the validated config.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// Comma-separated env values arrive as a single element.
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)
	cfg.Scheduler.Scopes = splitList(cfg.Scheduler.Scopes)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures values are usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config.server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("config.database.path is required")
	}
	if c.Assignment.SimpleBatchSize <= 0 {
		return fmt.Errorf("config.assignment.simple_batch_size must be positive, got %d", c.Assignment.SimpleBatchSize)
	}
	if c.Assignment.RosterCutoffHour < 0 || c.Assignment.RosterCutoffHour > 23 {
		return fmt.Errorf("config.assignment.roster_cutoff_hour must be between 0 and 23, got %d", c.Assignment.RosterCutoffHour)
	}
	if c.Scheduler.Enabled {
		if c.Scheduler.Interval <= 0 {
			return fmt.Errorf("config.scheduler.interval must be positive")
		}
		if len(c.Scheduler.Scopes) == 0 {
			return fmt.Errorf("config.scheduler.scopes is required when the scheduler is enabled")
		}
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
