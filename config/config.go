// Package config loads the demo host binaries' (cmd/workflowhost,
// cmd/workflowctl) configuration from a YAML file plus environment
// overrides. The engine, store, and router packages themselves never read
// files or environment variables; only this package and the binaries that
// call it do.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StoreConfig selects and configures the WorkflowState backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // "memory" | "file" | "sqlite" | "mysql"
	DataDir string `mapstructure:"dataDir"`
	DSN     string `mapstructure:"dsn"`
}

// RouterConfig configures the message router's retry queue.
type RouterConfig struct {
	QueueBackend string `mapstructure:"queueBackend"` // "file" | "redis"
	RedisAddr    string `mapstructure:"redisAddr"`
}

// SurfaceConfig is one adapter's outbound transport base URL.
type SurfaceConfig struct {
	BaseURL string `mapstructure:"baseUrl"`
}

// Config is the fully resolved configuration for a host binary.
type Config struct {
	ListenAddr string `mapstructure:"listenAddr"`

	DefaultToolTimeout time.Duration `mapstructure:"defaultToolTimeout"`
	MaxAutoAdvanceHops int           `mapstructure:"maxAutoAdvanceHops"`

	MetricsEnabled bool   `mapstructure:"metricsEnabled"`
	MetricsAddr    string `mapstructure:"metricsAddr"`

	OtelEnabled     bool   `mapstructure:"otelEnabled"`
	OtelEndpoint    string `mapstructure:"otelEndpoint"`
	OtelServiceName string `mapstructure:"otelServiceName"`

	DefinitionsDir string `mapstructure:"definitionsDir"`

	Store    StoreConfig              `mapstructure:"store"`
	Router   RouterConfig             `mapstructure:"router"`
	Surfaces map[string]SurfaceConfig `mapstructure:"surfaces"`
}

// Load reads configPath (if non-empty and present) as YAML, layers
// WORKFLOWHOST_-prefixed environment variables on top, and returns the
// resolved Config. A missing configPath is not an error — defaults plus
// env vars alone are a valid configuration for local/demo runs.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listenAddr", ":8080")
	v.SetDefault("defaultToolTimeout", 10*time.Second)
	v.SetDefault("maxAutoAdvanceHops", 50)
	v.SetDefault("metricsEnabled", true)
	v.SetDefault("metricsAddr", ":9090")
	v.SetDefault("otelEnabled", false)
	v.SetDefault("otelServiceName", "workflowhost")
	v.SetDefault("definitionsDir", "")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.dataDir", "./data")
	v.SetDefault("router.queueBackend", "file")

	v.SetEnvPrefix("WORKFLOWHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the host cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "file", "sqlite", "mysql":
	default:
		return fmt.Errorf("config: unknown store.backend %q", c.Store.Backend)
	}
	if (c.Store.Backend == "sqlite" || c.Store.Backend == "mysql") && c.Store.DSN == "" {
		return fmt.Errorf("config: store.dsn is required for backend %q", c.Store.Backend)
	}
	switch c.Router.QueueBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("config: unknown router.queueBackend %q", c.Router.QueueBackend)
	}
	if c.Router.QueueBackend == "redis" && c.Router.RedisAddr == "" {
		return fmt.Errorf("config: router.redisAddr is required when queueBackend is \"redis\"")
	}
	return nil
}
