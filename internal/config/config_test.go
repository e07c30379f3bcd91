package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(writeConfig(t, "log_level: info\n"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Menu.Prefix != "." {
		t.Errorf("prefix = %q", cfg.Menu.Prefix)
	}
	if cfg.Menu.Timeout != 5*time.Minute {
		t.Errorf("timeout = %s", cfg.Menu.Timeout)
	}
	if !cfg.Menu.BareSelectors {
		t.Error("bare selectors should default on")
	}
	if cfg.Stock.TriggerPhrase != "new stock count" || cfg.Stock.Threshold != 10 {
		t.Errorf("stock = %+v", cfg.Stock)
	}
	if cfg.Send.MinDelay != time.Second || cfg.Send.MaxDelay != 3*time.Second || cfg.Send.Timeout != 30*time.Second {
		t.Errorf("send = %+v", cfg.Send)
	}
	if len(cfg.IgnoredChats) != 1 || cfg.IgnoredChats[0] != "status@broadcast" {
		t.Errorf("ignored = %v", cfg.IgnoredChats)
	}
	if strings.HasPrefix(cfg.StoragePath, "~") {
		t.Errorf("storage path not expanded: %s", cfg.StoragePath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `roles:
  owner: "15550001111@c.us"
  admins: ["a1", "a2"]
menu:
  prefix: "!"
  timeout: 90s
  bare_selectors: false
stock:
  alert_chat: "alerts"
features:
  stockCount: false
  gamesEnabled: true
  bogus: true
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.ConfigPath != path {
		t.Errorf("ConfigPath = %q", cfg.ConfigPath)
	}
	if cfg.Roles.Owner != "15550001111@c.us" || len(cfg.Roles.Admins) != 2 {
		t.Errorf("roles = %+v", cfg.Roles)
	}
	if cfg.Menu.Prefix != "!" || cfg.Menu.Timeout != 90*time.Second || cfg.Menu.BareSelectors {
		t.Errorf("menu = %+v", cfg.Menu)
	}
	if cfg.Stock.AlertChat != "alerts" {
		t.Errorf("alert chat = %q", cfg.Stock.AlertChat)
	}

	flags := cfg.FlagDefaults([]string{"masterSwitch", "stockCount", "gamesEnabled"})
	if len(flags) != 2 {
		t.Fatalf("flags = %v", flags)
	}
	if flags["stockCount"] || !flags["gamesEnabled"] {
		t.Errorf("flags = %v", flags)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MENUBOT_MENU_PREFIX", "#")
	t.Setenv("MENUBOT_ROLES_OWNER", "env-owner")

	cfg, err := LoadFrom(writeConfig(t, "menu:\n  prefix: \".\"\n"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Menu.Prefix != "#" {
		t.Errorf("prefix = %q, env should win", cfg.Menu.Prefix)
	}
	if cfg.Roles.Owner != "env-owner" {
		t.Errorf("owner = %q", cfg.Roles.Owner)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadFrom(writeConfig(t, "log_level: info\n"))
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"empty storage", func(c *Config) { c.StoragePath = "" }},
		{"empty prefix", func(c *Config) { c.Menu.Prefix = "" }},
		{"prefix with space", func(c *Config) { c.Menu.Prefix = ". " }},
		{"zero timeout", func(c *Config) { c.Menu.Timeout = 0 }},
		{"negative rate limit", func(c *Config) { c.Menu.RateLimit = -1 }},
		{"blank phrase", func(c *Config) { c.Stock.TriggerPhrase = "  " }},
		{"zero threshold", func(c *Config) { c.Stock.Threshold = 0 }},
		{"negative min delay", func(c *Config) { c.Send.MinDelay = -time.Second }},
		{"max below min", func(c *Config) { c.Send.MaxDelay = 0 }},
		{"zero send timeout", func(c *Config) { c.Send.Timeout = 0 }},
		{"bad backup schedule", func(c *Config) { c.Backup.Schedule = "every day" }},
		{"backup without dir", func(c *Config) { c.Backup.Dir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}

	t.Run("backup disabled", func(t *testing.T) {
		cfg := base()
		cfg.Backup.Schedule = ""
		cfg.Backup.Dir = ""
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	cfg.Roles.Owner = "owner-1"
	cfg.Menu.Timeout = 2 * time.Minute
	cfg.Features = map[string]bool{"stockCount": false}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Roles.Owner != "owner-1" || again.Menu.Timeout != 2*time.Minute {
		t.Errorf("reloaded = %+v", again)
	}
	if flags := again.FlagDefaults([]string{"stockCount"}); flags["stockCount"] {
		t.Errorf("flag lost: %v", flags)
	}
	if _, ok := again.FlagDefaults([]string{"stockCount"})["stockCount"]; !ok {
		t.Error("stockCount should be present after save")
	}
}

func TestSaveWithoutPath(t *testing.T) {
	if err := (&Config{}).Save(); err == nil {
		t.Error("expected an error without a config path")
	}
}

func TestLoadHonorsConfigEnv(t *testing.T) {
	path := writeConfig(t, "menu:\n  prefix: \"?\"\n")
	t.Setenv("MENUBOT_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConfigPath != path || cfg.Menu.Prefix != "?" {
		t.Errorf("cfg = %q %q", cfg.ConfigPath, cfg.Menu.Prefix)
	}
}
