// Package config loads the screener binary's configuration from defaults, an
// optional YAML file, and SCREENER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/screener-client/pkg/client"
	"github.com/Sternrassler/screener-client/pkg/logging"
	"github.com/Sternrassler/screener-client/pkg/pagination"
	"github.com/Sternrassler/screener-client/pkg/ratelimit"
	"github.com/Sternrassler/screener-client/pkg/screener"
)

// EnvPrefix prefixes every environment override, e.g.
// SCREENER_CLIENT_ENDPOINT or SCREENER_PAGINATION_MAX_PAGES.
const EnvPrefix = "SCREENER"

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

type ClientConfig struct {
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent"` // empty rotates the default pool
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
}

type PaginationConfig struct {
	Target      int           `mapstructure:"target" yaml:"target"`
	PageTimeout time.Duration `mapstructure:"page_timeout" yaml:"page_timeout"`
	MaxPages    int           `mapstructure:"max_pages" yaml:"max_pages"`
	MaxDuration time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
}

// BudgetConfig enables the shared request budget when RedisURL is set.
type BudgetConfig struct {
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url"`
	Key      string        `mapstructure:"key" yaml:"key"`
	Limit    int           `mapstructure:"limit" yaml:"limit"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxTarget       int           `mapstructure:"max_target" yaml:"max_target"`
}

// Config is the complete binary configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Client     ClientConfig     `mapstructure:"client" yaml:"client"`
	Retry      RetryConfig      `mapstructure:"retry" yaml:"retry"`
	Pagination PaginationConfig `mapstructure:"pagination" yaml:"pagination"`
	Budget     BudgetConfig     `mapstructure:"budget" yaml:"budget"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
}

func setDefaults(v *viper.Viper) {
	cc := client.DefaultConfig()
	pc := pagination.DefaultConfig()
	bc := ratelimit.DefaultConfig()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("client.endpoint", cc.Endpoint)
	v.SetDefault("client.timeout", cc.Timeout)
	v.SetDefault("client.user_agent", "")
	v.SetDefault("client.max_body_bytes", cc.MaxBodyBytes)

	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.initial_backoff", time.Second)
	v.SetDefault("retry.max_backoff", 30*time.Second)
	v.SetDefault("retry.backoff_multiplier", 2.0)

	v.SetDefault("pagination.target", pagination.DefaultTarget)
	v.SetDefault("pagination.page_timeout", pc.PageTimeout)
	v.SetDefault("pagination.max_pages", 0)
	v.SetDefault("pagination.max_duration", time.Duration(0))

	v.SetDefault("budget.redis_url", "")
	v.SetDefault("budget.key", bc.Key)
	v.SetDefault("budget.limit", bc.Limit)
	v.SetDefault("budget.window", bc.Window)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_target", 5000)
}

// Load reads configuration. path may be empty, a YAML file, or a directory
// searched for config.yaml; a missing config.yaml in the search paths is not
// an error, a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		v.SetConfigFile(path)
	case path != "":
		v.AddConfigPath(path)
	default:
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that the library would otherwise silently default.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Client.Endpoint == "" {
		return fmt.Errorf("client.endpoint is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1 (got %d)", c.Retry.MaxAttempts)
	}
	if c.Pagination.MaxPages < 0 {
		return fmt.Errorf("pagination.max_pages must not be negative (got %d)", c.Pagination.MaxPages)
	}
	if c.Budget.RedisURL != "" && c.Budget.Limit <= 0 {
		return fmt.Errorf("budget.limit must be positive (got %d)", c.Budget.Limit)
	}
	if c.Server.MaxTarget <= 0 {
		return fmt.Errorf("server.max_target must be positive (got %d)", c.Server.MaxTarget)
	}
	return nil
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level, _ = logging.ParseLevel(c.Log.Level)
	lc.Pretty = c.Log.Pretty
	return lc
}

// Screener returns the library configuration. The budget tracker is wired
// separately since it needs a live Redis client.
func (c *Config) Screener() screener.Config {
	sc := screener.DefaultConfig()

	sc.Client.Endpoint = c.Client.Endpoint
	sc.Client.Timeout = c.Client.Timeout
	sc.Client.MaxBodyBytes = c.Client.MaxBodyBytes
	if c.Client.UserAgent != "" {
		sc.Client.UserAgents = client.FixedUserAgent(c.Client.UserAgent)
	}
	sc.Client.Retry = client.RetryPolicy{
		MaxAttempts:       c.Retry.MaxAttempts,
		InitialBackoff:    c.Retry.InitialBackoff,
		MaxBackoff:        c.Retry.MaxBackoff,
		BackoffMultiplier: c.Retry.BackoffMultiplier,
	}

	sc.Pagination = pagination.Config{
		PageTimeout: c.Pagination.PageTimeout,
		MaxPages:    c.Pagination.MaxPages,
		MaxDuration: c.Pagination.MaxDuration,
	}
	return sc
}

// RateLimit returns the budget tracker configuration.
func (c *Config) RateLimit() ratelimit.Config {
	return ratelimit.Config{
		Key:    c.Budget.Key,
		Limit:  c.Budget.Limit,
		Window: c.Budget.Window,
	}
}
