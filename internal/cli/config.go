package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"menubot/internal/config"
	"menubot/internal/features"
)

// defaultConfigYAML is written by "config init".
const defaultConfigYAML = `# menubot configuration
# Every key can also be set with a MENUBOT_ environment variable,
# e.g. MENUBOT_TELEGRAM_TOKEN or MENUBOT_ROLES_OWNER.

telegram:
  token: ""  # From @BotFather; not needed for "menubot console"

roles:
  owner: ""   # Your user id
  admins: []  # Additional admin ids

menu:
  prefix: "."
  timeout: 5m          # Idle time before a session returns to the main menu
  bare_selectors: true # Accept "3" or "help" without the prefix
  rate_limit: 20       # Commands per user per minute, 0 disables
  # catalog: ""        # Optional YAML menu file

stock:
  trigger_phrase: "new stock count"
  threshold: 10
  alert_chat: ""  # Empty sends alerts to the owner
  ack_emoji: "👍"

send:
  min_delay: 1s
  max_delay: 3s
  timeout: 30s  # Per delivery attempt

features:
  masterSwitch: true
  stockCount: true
  creativeHub: true
  gamesArena: true
  utilityCenter: true
  analyticsPanel: true
  funZone: true

autoreact:
  chats: []

ignored_chats:
  - status@broadcast

backup:
  schedule: "0 0 */6 * * *"  # Seconds field first; empty disables
  dir: "~/.menubot/backups"
  keep: 28

storage_path: "~/.menubot/menubot.db"
log_level: "info"  # debug, info, warn, error
`

func newConfigCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `Initialize and manage menubot configuration.`,
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand(cfg))
	cmd.AddCommand(newConfigSetCommand(cfg))

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}

			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(defaultConfigYAML), 0600); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✅ Created config at %s\n", path)
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintln(out, "1. Set yourself as owner: menubot config set roles.owner <your id>")
			fmt.Fprintln(out, "2. Try it locally: menubot console --as <your id>")
			fmt.Fprintln(out, "3. Get a bot token from @BotFather: menubot config set telegram.token <token>")
			fmt.Fprintln(out, "4. Start the bot: menubot start")
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Where to write the file (default ~/.menubot/config.yaml)")
	return cmd
}

func newConfigShowCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config file: %s\n", orNone(cfg.ConfigPath))
			fmt.Fprintf(out, "\nTelegram:\n")
			fmt.Fprintf(out, "  Token: %s\n", maskToken(cfg.Telegram.Token))
			fmt.Fprintf(out, "\nRoles:\n")
			fmt.Fprintf(out, "  Owner: %s\n", orNone(cfg.Roles.Owner))
			fmt.Fprintf(out, "  Admins: %s\n", orNone(strings.Join(cfg.Roles.Admins, ", ")))
			fmt.Fprintf(out, "\nMenu:\n")
			fmt.Fprintf(out, "  Prefix: %s\n", cfg.Menu.Prefix)
			fmt.Fprintf(out, "  Timeout: %s\n", cfg.Menu.Timeout)
			fmt.Fprintf(out, "  Bare selectors: %t\n", cfg.Menu.BareSelectors)
			fmt.Fprintf(out, "  Rate limit: %d/min\n", cfg.Menu.RateLimit)
			if cfg.Menu.Catalog != "" {
				fmt.Fprintf(out, "  Catalog: %s\n", cfg.Menu.Catalog)
			}
			fmt.Fprintf(out, "\nStock:\n")
			fmt.Fprintf(out, "  Trigger: %q\n", cfg.Stock.TriggerPhrase)
			fmt.Fprintf(out, "  Threshold: %d\n", cfg.Stock.Threshold)
			fmt.Fprintf(out, "  Alert chat: %s\n", orNone(cfg.Stock.AlertChat))
			fmt.Fprintf(out, "\nSend delay: %s - %s (timeout %s)\n", cfg.Send.MinDelay, cfg.Send.MaxDelay, cfg.Send.Timeout)
			fmt.Fprintf(out, "\nStorage:\n")
			fmt.Fprintf(out, "  Path: %s\n", cfg.StoragePath)
			fmt.Fprintf(out, "  Backups: %s\n", orNone(cfg.Backup.Schedule))
		},
	}
}

func newConfigSetCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("refusing to save: %w", err)
			}
			if cfg.ConfigPath == "" {
				path, err := config.DefaultPath()
				if err != nil {
					return err
				}
				if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
					return fmt.Errorf("failed to create config directory: %w", err)
				}
				cfg.ConfigPath = path
			}
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Set %s\n", key)
			return nil
		},
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	var err error
	switch key {
	case "telegram.token":
		cfg.Telegram.Token = value
	case "roles.owner":
		cfg.Roles.Owner = value
	case "roles.admins":
		cfg.Roles.Admins = splitCSV(value)
	case "menu.prefix":
		cfg.Menu.Prefix = value
	case "menu.timeout":
		cfg.Menu.Timeout, err = time.ParseDuration(value)
	case "menu.bare_selectors":
		cfg.Menu.BareSelectors, err = strconv.ParseBool(value)
	case "menu.rate_limit":
		cfg.Menu.RateLimit, err = strconv.Atoi(value)
	case "menu.catalog":
		cfg.Menu.Catalog = value
	case "stock.trigger_phrase":
		cfg.Stock.TriggerPhrase = value
	case "stock.threshold":
		cfg.Stock.Threshold, err = strconv.Atoi(value)
	case "stock.alert_chat":
		cfg.Stock.AlertChat = value
	case "stock.ack_emoji":
		cfg.Stock.AckEmoji = value
	case "send.min_delay":
		cfg.Send.MinDelay, err = time.ParseDuration(value)
	case "send.max_delay":
		cfg.Send.MaxDelay, err = time.ParseDuration(value)
	case "send.timeout":
		cfg.Send.Timeout, err = time.ParseDuration(value)
	case "autoreact.chats":
		cfg.AutoReact.Chats = splitCSV(value)
	case "ignored_chats":
		cfg.IgnoredChats = splitCSV(value)
	case "backup.schedule":
		cfg.Backup.Schedule = value
	case "backup.dir":
		cfg.Backup.Dir = value
	case "backup.keep":
		cfg.Backup.Keep, err = strconv.Atoi(value)
	case "storage_path":
		cfg.StoragePath = value
	case "log_level":
		cfg.LogLevel = value
	default:
		name, ok := strings.CutPrefix(key, "features.")
		if !ok || !knownFlag(name) {
			return fmt.Errorf("unknown config key: %s", key)
		}
		var enabled bool
		if enabled, err = strconv.ParseBool(value); err == nil {
			if cfg.Features == nil {
				cfg.Features = make(map[string]bool)
			}
			for k := range cfg.Features {
				if strings.EqualFold(k, name) {
					delete(cfg.Features, k)
				}
			}
			cfg.Features[name] = enabled
		}
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func knownFlag(name string) bool {
	_, ok := features.Defaults[name]
	return ok
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func maskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
