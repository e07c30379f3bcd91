package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"menubot/internal/cron"
)

// Config holds all application configuration
type Config struct {
	ConfigPath   string          `mapstructure:"-"`
	LogLevel     string          `mapstructure:"log_level"`
	StoragePath  string          `mapstructure:"storage_path"`
	Telegram     TelegramConfig  `mapstructure:"telegram"`
	Roles        RolesConfig     `mapstructure:"roles"`
	Menu         MenuConfig      `mapstructure:"menu"`
	Stock        StockConfig     `mapstructure:"stock"`
	Send         SendConfig      `mapstructure:"send"`
	Features     map[string]bool `mapstructure:"features"`
	AutoReact    AutoReactConfig `mapstructure:"autoreact"`
	IgnoredChats []string        `mapstructure:"ignored_chats"`
	Backup       BackupConfig    `mapstructure:"backup"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// RolesConfig lists privileged identifiers. Suffixes after @ and device
// markers are ignored when matching.
type RolesConfig struct {
	Owner  string   `mapstructure:"owner"`
	Admins []string `mapstructure:"admins"`
}

// MenuConfig controls command parsing and sessions
type MenuConfig struct {
	Prefix        string        `mapstructure:"prefix"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BareSelectors bool          `mapstructure:"bare_selectors"`
	RateLimit     int           `mapstructure:"rate_limit"` // Commands per user per minute
	Catalog       string        `mapstructure:"catalog"`    // Optional YAML menu file; empty = built-in
}

// StockConfig controls the reaction threshold tracker
type StockConfig struct {
	TriggerPhrase string `mapstructure:"trigger_phrase"`
	Threshold     int    `mapstructure:"threshold"`
	AlertChat     string `mapstructure:"alert_chat"` // Empty = owner
	AckEmoji      string `mapstructure:"ack_emoji"`
}

// SendConfig is the jitter window for replies
type SendConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
	Timeout  time.Duration `mapstructure:"timeout"` // Per transport call
}

// AutoReactConfig lists chats where every message gets the ack emoji
type AutoReactConfig struct {
	Chats []string `mapstructure:"chats"`
}

// BackupConfig controls periodic store snapshots
type BackupConfig struct {
	Schedule string `mapstructure:"schedule"` // Cron expression with seconds; empty disables
	Dir      string `mapstructure:"dir"`
	Keep     int    `mapstructure:"keep"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("storage_path", "~/.menubot/menubot.db")
	v.SetDefault("telegram.token", "")
	v.SetDefault("roles.owner", "")
	v.SetDefault("roles.admins", []string{})
	v.SetDefault("menu.prefix", ".")
	v.SetDefault("menu.timeout", "5m")
	v.SetDefault("menu.bare_selectors", true)
	v.SetDefault("menu.rate_limit", 20)
	v.SetDefault("menu.catalog", "")
	v.SetDefault("stock.trigger_phrase", "new stock count")
	v.SetDefault("stock.threshold", 10)
	v.SetDefault("stock.alert_chat", "")
	v.SetDefault("stock.ack_emoji", "👍")
	v.SetDefault("send.min_delay", "1s")
	v.SetDefault("send.max_delay", "3s")
	v.SetDefault("send.timeout", "30s")
	v.SetDefault("autoreact.chats", []string{})
	v.SetDefault("ignored_chats", []string{"status@broadcast"})
	v.SetDefault("backup.schedule", "0 0 */6 * * *")
	v.SetDefault("backup.dir", "~/.menubot/backups")
	v.SetDefault("backup.keep", 28)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	// Environment variable prefix
	v.SetEnvPrefix("MENUBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultPath returns ~/.menubot/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".menubot", "config.yaml"), nil
}

// Load reads configuration from $MENUBOT_CONFIG, or ~/.menubot, and the
// environment
func Load() (*Config, error) {
	if path := os.Getenv("MENUBOT_CONFIG"); path != "" {
		return LoadFrom(expandPath(path))
	}

	v := newViper()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configFile := filepath.Join(homeDir, ".menubot", "config")

	// Check if config exists
	if _, err := os.Stat(configFile + ".yaml"); err == nil {
		v.SetConfigFile(configFile + ".yaml")
	} else if _, err := os.Stat(configFile + ".yml"); err == nil {
		v.SetConfigFile(configFile + ".yml")
	} else if _, err := os.Stat(configFile + ".json"); err == nil {
		v.SetConfigFile(configFile + ".json")
	}

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v, v.ConfigFileUsed())
}

// LoadFrom reads configuration from a specific file path
func LoadFrom(configPath string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return decode(v, configPath)
}

func decode(v *viper.Viper, path string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.StoragePath = expandPath(cfg.StoragePath)
	cfg.Backup.Dir = expandPath(cfg.Backup.Dir)
	cfg.Menu.Catalog = expandPath(cfg.Menu.Catalog)
	cfg.Roles.Admins = splitList(cfg.Roles.Admins)
	cfg.AutoReact.Chats = splitList(cfg.AutoReact.Chats)
	cfg.IgnoredChats = splitList(cfg.IgnoredChats)
	cfg.ConfigPath = path
	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn or error)", c.LogLevel)
	}

	if c.StoragePath == "" {
		return fmt.Errorf("storage_path is required")
	}

	if c.Menu.Prefix == "" || strings.ContainsAny(c.Menu.Prefix, " \t\n") {
		return fmt.Errorf("menu.prefix must be a non-empty string without spaces")
	}
	if c.Menu.Timeout <= 0 {
		return fmt.Errorf("menu.timeout must be positive")
	}
	if c.Menu.RateLimit < 0 {
		return fmt.Errorf("menu.rate_limit must not be negative")
	}

	if strings.TrimSpace(c.Stock.TriggerPhrase) == "" {
		return fmt.Errorf("stock.trigger_phrase is required")
	}
	if c.Stock.Threshold <= 0 {
		return fmt.Errorf("stock.threshold must be positive")
	}

	if c.Send.MinDelay < 0 {
		return fmt.Errorf("send.min_delay must not be negative")
	}
	if c.Send.MaxDelay < c.Send.MinDelay {
		return fmt.Errorf("send.max_delay (%s) is below send.min_delay (%s)", c.Send.MaxDelay, c.Send.MinDelay)
	}
	if c.Send.Timeout <= 0 {
		return fmt.Errorf("send.timeout must be positive")
	}

	if c.Backup.Schedule != "" {
		if err := cron.ValidateExpression(c.Backup.Schedule); err != nil {
			return fmt.Errorf("backup.schedule: %w", err)
		}
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup.dir is required when backup.schedule is set")
		}
	}

	return nil
}

// FlagDefaults maps the features section onto the known flag names. Viper
// lowercases keys, so matching is case-insensitive; unknown keys are dropped.
func (c *Config) FlagDefaults(known []string) map[string]bool {
	out := make(map[string]bool)
	for key, enabled := range c.Features {
		for _, name := range known {
			if strings.EqualFold(key, name) {
				out[name] = enabled
			}
		}
	}
	return out
}

// Save writes the current configuration to file
func (c *Config) Save() error {
	if c.ConfigPath == "" {
		return fmt.Errorf("config path not set")
	}

	v := viper.New()
	v.SetConfigFile(c.ConfigPath)

	v.Set("log_level", c.LogLevel)
	v.Set("storage_path", c.StoragePath)
	v.Set("telegram.token", c.Telegram.Token)
	v.Set("roles.owner", c.Roles.Owner)
	v.Set("roles.admins", c.Roles.Admins)
	v.Set("menu.prefix", c.Menu.Prefix)
	v.Set("menu.timeout", c.Menu.Timeout.String())
	v.Set("menu.bare_selectors", c.Menu.BareSelectors)
	v.Set("menu.rate_limit", c.Menu.RateLimit)
	v.Set("menu.catalog", c.Menu.Catalog)
	v.Set("stock.trigger_phrase", c.Stock.TriggerPhrase)
	v.Set("stock.threshold", c.Stock.Threshold)
	v.Set("stock.alert_chat", c.Stock.AlertChat)
	v.Set("stock.ack_emoji", c.Stock.AckEmoji)
	v.Set("send.min_delay", c.Send.MinDelay.String())
	v.Set("send.max_delay", c.Send.MaxDelay.String())
	v.Set("send.timeout", c.Send.Timeout.String())
	v.Set("features", c.Features)
	v.Set("autoreact.chats", c.AutoReact.Chats)
	v.Set("ignored_chats", c.IgnoredChats)
	v.Set("backup.schedule", c.Backup.Schedule)
	v.Set("backup.dir", c.Backup.Dir)
	v.Set("backup.keep", c.Backup.Keep)

	return v.WriteConfig()
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(items []string) []string {
	var out []string
	for _, it := range items {
		for _, part := range strings.Split(it, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
