// Package config handles configuration loading and management for Orchid.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Orchid.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Watch     WatchConfig     `mapstructure:"watch"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// Model is the Claude model for the Claude-backed worker.
	Model string `mapstructure:"model"`
	// Enabled switches the development agent from the simulated
	// executor to the Claude-backed one.
	Enabled bool `mapstructure:"enabled"`
	// UseAWSBedrock routes API calls through AWS Bedrock.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region (e.g., "us-west-2").
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile"`
}

// AgentsConfig holds per-agent runtime settings.
type AgentsConfig struct {
	PM  AgentConfig `mapstructure:"pm"`
	Dev AgentConfig `mapstructure:"dev"`
}

// AgentConfig holds settings for a single agent runtime.
type AgentConfig struct {
	// Name is the routing address of the agent.
	Name string `mapstructure:"name"`
	// MaxConcurrent is the ceiling on tasks in_progress at once.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// MailboxSize is the envelope channel capacity.
	MailboxSize int `mapstructure:"mailbox_size"`
}

// JournalConfig holds event journal settings.
type JournalConfig struct {
	// Enabled toggles journaling to SQLite.
	Enabled bool `mapstructure:"enabled"`
	// Path overrides the default journal location.
	Path string `mapstructure:"path"`
	// RetainFor controls how long old runs are kept.
	RetainFor time.Duration `mapstructure:"retain_for"`
}

// WatchConfig holds settings for the watch command.
type WatchConfig struct {
	// Dir is the directory watched for requirement files.
	Dir string `mapstructure:"dir"`
	// SettleDelay is how long to wait after a write before reading
	// the file, so partially written files are not picked up.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.orchid.yaml in current directory or parent)
// 3. User config (~/.config/orchid/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.enabled", cfg.Anthropic.Enabled)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("agents.pm.name", cfg.Agents.PM.Name)
	v.Set("agents.pm.max_concurrent", cfg.Agents.PM.MaxConcurrent)
	v.Set("agents.pm.mailbox_size", cfg.Agents.PM.MailboxSize)
	v.Set("agents.dev.name", cfg.Agents.Dev.Name)
	v.Set("agents.dev.max_concurrent", cfg.Agents.Dev.MaxConcurrent)
	v.Set("agents.dev.mailbox_size", cfg.Agents.Dev.MailboxSize)
	v.Set("journal.enabled", cfg.Journal.Enabled)
	v.Set("journal.path", cfg.Journal.Path)
	v.Set("journal.retain_for", cfg.Journal.RetainFor.String())
	v.Set("watch.dir", cfg.Watch.Dir)
	v.Set("watch.settle_delay", cfg.Watch.SettleDelay.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.enabled", false)
	v.SetDefault("anthropic.use_aws_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("agents.pm.name", "pm")
	v.SetDefault("agents.pm.max_concurrent", 5)
	v.SetDefault("agents.pm.mailbox_size", 64)
	v.SetDefault("agents.dev.name", "dev_team")
	v.SetDefault("agents.dev.max_concurrent", 3)
	v.SetDefault("agents.dev.mailbox_size", 64)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")
	v.SetDefault("journal.retain_for", "720h")

	v.SetDefault("watch.dir", "requirements")
	v.SetDefault("watch.settle_delay", "250ms")
}

// getUserConfigDir returns the XDG config directory for Orchid.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "orchid")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "orchid")
	}
	return filepath.Join(home, ".config", "orchid")
}

// findProjectConfig searches for .orchid.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".orchid.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{},
		Agents: AgentsConfig{
			PM:  AgentConfig{Name: "pm", MaxConcurrent: 5, MailboxSize: 64},
			Dev: AgentConfig{Name: "dev_team", MaxConcurrent: 3, MailboxSize: 64},
		},
		Journal: JournalConfig{
			Enabled:   true,
			RetainFor: 720 * time.Hour,
		},
		Watch: WatchConfig{
			Dir:         "requirements",
			SettleDelay: 250 * time.Millisecond,
		},
	}
}
