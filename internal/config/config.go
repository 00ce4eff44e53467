// Copyright 2025 James Ross
// Package config loads the trust kernel's own bootstrap configuration:
// where the audit log lives, where plugins and their storage live, and
// where the layered policy documents are found on disk. It does not parse
// policy documents themselves -- those are an external interchange format
// handled by internal/policy.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Audit struct {
	Enabled      bool   `mapstructure:"enabled"`
	LogPath      string `mapstructure:"log_path"`
	MaxEntries   int    `mapstructure:"max_entries"`
	RotateSizeMB int    `mapstructure:"rotate_size_mb"`
	MaxBackups   int    `mapstructure:"max_backups"`
	Compress     bool   `mapstructure:"compress"`
}

type ResourceDefaults struct {
	MaxMemoryMB    int           `mapstructure:"max_memory_mb"`
	MaxExecutionMs int           `mapstructure:"max_execution_ms"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type Plugins struct {
	PluginDir        string           `mapstructure:"plugin_dir"`
	StorageDir       string           `mapstructure:"storage_dir"`
	MaxPlugins       int              `mapstructure:"max_plugins"`
	DefaultResources ResourceDefaults `mapstructure:"default_resources"`
}

type Policy struct {
	OrganizationPath string `mapstructure:"organization_path"`
	TeamPath         string `mapstructure:"team_path"`
	UserPath         string `mapstructure:"user_path"`
}

type Observability struct {
	LogLevel    string `mapstructure:"log_level"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

type Config struct {
	Audit         Audit         `mapstructure:"audit"`
	Plugins       Plugins       `mapstructure:"plugins"`
	Policy        Policy        `mapstructure:"policy"`
	Observability Observability `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Audit: Audit{
			Enabled:      true,
			LogPath:      "./data/audit.jsonl",
			MaxEntries:   10000,
			RotateSizeMB: 50,
			MaxBackups:   5,
			Compress:     true,
		},
		Plugins: Plugins{
			PluginDir:  "./plugins",
			StorageDir: "./data/plugin-storage",
			MaxPlugins: 50,
			DefaultResources: ResourceDefaults{
				MaxMemoryMB:    64,
				MaxExecutionMs: 5000,
				Timeout:        30 * time.Second,
			},
		},
		Policy: Policy{
			OrganizationPath: "/etc/incontrol/policy.json",
			TeamPath:         "/etc/incontrol/team-policy.json",
			UserPath:         "~/.config/incontrol/user-policy.json",
		},
		Observability: Observability{
			LogLevel:    "info",
			MetricsPort: 9091,
		},
	}
}

// Load reads kernel bootstrap configuration from a YAML file with
// KERNEL_-prefixed environment overrides layered on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("KERNEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("audit.enabled", def.Audit.Enabled)
	v.SetDefault("audit.log_path", def.Audit.LogPath)
	v.SetDefault("audit.max_entries", def.Audit.MaxEntries)
	v.SetDefault("audit.rotate_size_mb", def.Audit.RotateSizeMB)
	v.SetDefault("audit.max_backups", def.Audit.MaxBackups)
	v.SetDefault("audit.compress", def.Audit.Compress)

	v.SetDefault("plugins.plugin_dir", def.Plugins.PluginDir)
	v.SetDefault("plugins.storage_dir", def.Plugins.StorageDir)
	v.SetDefault("plugins.max_plugins", def.Plugins.MaxPlugins)
	v.SetDefault("plugins.default_resources.max_memory_mb", def.Plugins.DefaultResources.MaxMemoryMB)
	v.SetDefault("plugins.default_resources.max_execution_ms", def.Plugins.DefaultResources.MaxExecutionMs)
	v.SetDefault("plugins.default_resources.timeout", def.Plugins.DefaultResources.Timeout)

	v.SetDefault("policy.organization_path", def.Policy.OrganizationPath)
	v.SetDefault("policy.team_path", def.Policy.TeamPath)
	v.SetDefault("policy.user_path", def.Policy.UserPath)

	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Audit.MaxEntries < 1 {
		return fmt.Errorf("audit.max_entries must be >= 1")
	}
	if cfg.Plugins.MaxPlugins < 1 {
		return fmt.Errorf("plugins.max_plugins must be >= 1")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
