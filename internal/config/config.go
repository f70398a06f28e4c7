package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rendis/stepflow/pkg/schema"
)

// EnvPrefix prefixes every environment override, e.g. STEPFLOW_DB_DRIVER.
const EnvPrefix = "STEPFLOW"

// Config holds all stepflow configuration.
// Priority: env vars > config file > defaults.
type Config struct {
	DB        DBConfig        `mapstructure:"db"`
	Log       LogConfig       `mapstructure:"log"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EngineConfig struct {
	MaxSteps int `mapstructure:"max_steps"`
}

type WebhookConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxResponseBody int64         `mapstructure:"max_response_body"`
}

// AgentConfig selects the agent dispatch channel. An empty GatewayURL
// keeps the simulated dispatcher.
type AgentConfig struct {
	GatewayURL string        `mapstructure:"gateway_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// BreakerThreshold consecutive gateway failures open the breaker for
	// BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

// RedisConfig enables the Redis event hub when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// MetricsConfig selects where driver metrics are exported. "none" keeps
// the instruments unexported; "stdout" writes them periodically to stderr.
type MetricsConfig struct {
	Exporter string        `mapstructure:"exporter"`
	Interval time.Duration `mapstructure:"interval"`
}

// Dir is the per-user stepflow directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stepflow"
	}
	return filepath.Join(home, ".stepflow")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", "libsql")
	v.SetDefault("db.path", filepath.Join(Dir(), "stepflow.db"))
	v.SetDefault("db.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("engine.max_steps", 10000)
	v.SetDefault("webhook.timeout", 30*time.Second)
	v.SetDefault("webhook.max_response_body", int64(10<<20))
	v.SetDefault("agent.gateway_url", "")
	v.SetDefault("agent.timeout", 60*time.Second)
	v.SetDefault("agent.breaker_threshold", 5)
	v.SetDefault("agent.breaker_cooldown", 30*time.Second)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", 60*time.Second)
	v.SetDefault("scheduler.max_concurrent", 8)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "stepflow:events")
	v.SetDefault("metrics.exporter", "none")
	v.SetDefault("metrics.interval", 60*time.Second)
}

// Load reads configuration. An empty path searches ./stepflow.yaml and
// ~/.stepflow/stepflow.yaml, and a missing file is not an error there;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stepflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "libsql":
		if c.DB.Path == "" {
			return schema.NewError(schema.ErrCodeValidation, "db.path is required for the libsql driver")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return schema.NewError(schema.ErrCodeValidation, "db.dsn is required for the postgres driver")
		}
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown db.driver %q: must be libsql or postgres", c.DB.Driver)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid log.level %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid log.format %q: must be text or json", c.Log.Format)
	}
	if c.Engine.MaxSteps <= 0 {
		return schema.NewError(schema.ErrCodeValidation, "engine.max_steps must be positive")
	}
	if c.Webhook.Timeout <= 0 || c.Agent.Timeout <= 0 {
		return schema.NewError(schema.ErrCodeValidation, "webhook.timeout and agent.timeout must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return schema.NewError(schema.ErrCodeValidation, "scheduler.interval must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.MaxConcurrent <= 0 {
		return schema.NewError(schema.ErrCodeValidation, "scheduler.max_concurrent must be positive")
	}
	if c.Agent.BreakerThreshold < 0 {
		return schema.NewError(schema.ErrCodeValidation, "agent.breaker_threshold must not be negative")
	}
	if c.Agent.BreakerThreshold > 0 && c.Agent.BreakerCooldown <= 0 {
		return schema.NewError(schema.ErrCodeValidation, "agent.breaker_cooldown must be positive")
	}
	switch c.Metrics.Exporter {
	case "none":
	case "stdout":
		if c.Metrics.Interval <= 0 {
			return schema.NewError(schema.ErrCodeValidation, "metrics.interval must be positive")
		}
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown metrics.exporter %q: must be none or stdout", c.Metrics.Exporter)
	}
	return nil
}
