// Package config loads the volleyd service configuration from file,
// environment, and defaults via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/volley/pkg/client"
)

// The global, read-only config variable.
var (
	cfg  *Config
	once sync.Once
)

// Config holds the volleyd service configuration.
type Config struct {
	ListenAddress string       `mapstructure:"listen_address"`
	LogLevel      string       `mapstructure:"log_level"`
	Engine        EngineConfig `mapstructure:"engine"`
	Redis         RedisConfig  `mapstructure:"redis"`
	Warmup        WarmupConfig `mapstructure:"warmup"`
}

// EngineConfig holds the request engine knobs exposed to operators.
type EngineConfig struct {
	MaxConnsPerHost   int           `mapstructure:"max_conns_per_host"`
	MaxConns          int           `mapstructure:"max_conns"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	AcquireTimeout    time.Duration `mapstructure:"acquire_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	Concurrency       int           `mapstructure:"concurrency"`
	EnableCompression bool          `mapstructure:"enable_compression"`
	UserAgent         string        `mapstructure:"user_agent"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig selects the optional response cache backend.
// An empty Addr leaves caching off.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

// WarmupConfig lists targets to pre-warm at startup.
type WarmupConfig struct {
	Targets     []string `mapstructure:"targets"`
	Connections int      `mapstructure:"connections"`
}

// LoadConfig reads the config file (optional), applies environment
// overrides (VOLLEYD_ prefix), and initializes the global cfg variable.
// It ensures that the configuration is set only once.
func LoadConfig(configFile string) (*Config, error) {
	var err error
	once.Do(func() {
		cfg, err = load(configFile)
	})

	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.New("configuration was not set")
	}
	return cfg, nil
}

// GetConfig returns the loaded configuration.
// It panics if the configuration has not been set.
func GetConfig() *Config {
	if cfg == nil {
		panic("Config has not been set! Call LoadConfig first.")
	}
	return cfg
}

func load(configFile string) (*Config, error) {
	v := viper.New()

	// engine defaults mirror the library defaults, so a bare volleyd
	// behaves like a bare client.New(client.DefaultConfig())
	engineDefaults := client.DefaultConfig()
	v.SetDefault("listen_address", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("engine.max_conns_per_host", engineDefaults.MaxConnsPerHost)
	v.SetDefault("engine.max_conns", engineDefaults.MaxConns)
	v.SetDefault("engine.idle_timeout", engineDefaults.IdleTimeout)
	v.SetDefault("engine.acquire_timeout", engineDefaults.AcquireTimeout)
	v.SetDefault("engine.request_timeout", engineDefaults.RequestTimeout)
	v.SetDefault("engine.concurrency", engineDefaults.Concurrency)
	v.SetDefault("engine.enable_compression", engineDefaults.EnableCompression)
	v.SetDefault("engine.user_agent", engineDefaults.UserAgent)
	v.SetDefault("engine.cache_ttl", engineDefaults.CacheTTL)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("warmup.targets", []string{})
	v.SetDefault("warmup.connections", client.DefaultWarmupConns)

	v.SetEnvPrefix("VOLLEYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var configuration Config
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validation
	if configuration.ListenAddress == "" {
		return nil, errors.New("listen_address is required")
	}
	if configuration.Warmup.Connections < 0 {
		return nil, fmt.Errorf("warmup.connections must not be negative, got %d", configuration.Warmup.Connections)
	}

	return &configuration, nil
}

// ClientConfig maps the engine section onto a client configuration.
// The Redis client is attached by the caller, which owns its lifecycle.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		MaxConnsPerHost:   c.Engine.MaxConnsPerHost,
		MaxConns:          c.Engine.MaxConns,
		IdleTimeout:       c.Engine.IdleTimeout,
		AcquireTimeout:    c.Engine.AcquireTimeout,
		RequestTimeout:    c.Engine.RequestTimeout,
		Concurrency:       c.Engine.Concurrency,
		EnableCompression: c.Engine.EnableCompression,
		UserAgent:         c.Engine.UserAgent,
		CacheTTL:          c.Engine.CacheTTL,
	}
}
