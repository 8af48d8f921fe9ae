// Package config holds the application configuration, loaded once at startup
// from a YAML file and TABWIRE_* environment variables. Everything protocol
// logic needs (the shared secret, ports, timeouts) is passed into
// constructors explicitly; there are no ambient lookups below this layer.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root of the application configuration.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Bus    BusConfig    `mapstructure:"bus" yaml:"bus"`
	Agent  AgentConfig  `mapstructure:"agent" yaml:"agent"`
	Tools  ToolsConfig  `mapstructure:"tools" yaml:"tools"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BusConfig configures the authenticated command/response bus shared by
// both peers. Secret must be provisioned identically on both sides before
// first connection; Ports are the candidate endpoints the front-end listens
// on and the agent dials.
type BusConfig struct {
	Secret        string        `mapstructure:"secret" yaml:"secret"`
	Host          string        `mapstructure:"host" yaml:"host"`
	Ports         []int         `mapstructure:"ports" yaml:"ports"`
	CallTimeout   time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
}

// AgentConfig configures the browser agent.
type AgentConfig struct {
	Headless         bool          `mapstructure:"headless" yaml:"headless"`
	HistoryPath      string        `mapstructure:"history_path" yaml:"history_path"`
	ContentMaxChars  int           `mapstructure:"content_max_chars" yaml:"content_max_chars"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// ToolsConfig configures the local HTTP surface the tool-dispatch layer
// calls on the front-end process.
type ToolsConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// SetDefaults registers the default value for every key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "tabwire")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Bus --
	v.SetDefault("bus.host", "127.0.0.1")
	// Two candidate ports by default so one blocked port cannot take the
	// bus down; each runs an independent transport state machine.
	v.SetDefault("bus.ports", []int{8089, 8090})
	v.SetDefault("bus.call_timeout", "30s")
	v.SetDefault("bus.retry_interval", "2s")

	// -- Agent --
	v.SetDefault("agent.headless", true)
	v.SetDefault("agent.history_path", "tabwire-history.db")
	v.SetDefault("agent.content_max_chars", 50000)
	v.SetDefault("agent.operation_timeout", "25s")

	// -- Tools --
	v.SetDefault("tools.listen_addr", "127.0.0.1:8091")
}

// Load binds environment variables, unmarshals, and validates the full
// configuration from the given viper instance.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("TABWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The secret is sensitive; make sure the env var binds even when the
	// key never appears in a config file.
	v.BindEnv("bus.secret", "TABWIRE_BUS_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields and sane values.
func (c *Config) Validate() error {
	if c.Bus.Secret == "" {
		return fmt.Errorf("bus.secret is required; set it in the config file or via TABWIRE_BUS_SECRET")
	}
	if len(c.Bus.Ports) == 0 {
		return fmt.Errorf("bus.ports must name at least one port")
	}
	for _, port := range c.Bus.Ports {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("bus.ports contains invalid port %d", port)
		}
	}
	if c.Bus.CallTimeout <= 0 {
		return fmt.Errorf("bus.call_timeout must be a positive duration")
	}
	if c.Bus.RetryInterval <= 0 {
		return fmt.Errorf("bus.retry_interval must be a positive duration")
	}
	if c.Agent.ContentMaxChars <= 0 {
		return fmt.Errorf("agent.content_max_chars must be a positive integer")
	}
	return nil
}

// EndpointAddrs returns the host:port pairs the front-end binds.
func (c *BusConfig) EndpointAddrs() []string {
	addrs := make([]string, 0, len(c.Ports))
	for _, port := range c.Ports {
		addrs = append(addrs, fmt.Sprintf("%s:%d", c.Host, port))
	}
	return addrs
}

// EndpointURLs returns the ws:// URLs the agent dials.
func (c *BusConfig) EndpointURLs() []string {
	urls := make([]string, 0, len(c.Ports))
	for _, port := range c.Ports {
		urls = append(urls, fmt.Sprintf("ws://%s:%d", c.Host, port))
	}
	return urls
}
