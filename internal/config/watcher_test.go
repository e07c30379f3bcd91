package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type changeRecorder struct {
	mu    sync.Mutex
	calls int
	last  *Config
}

func (r *changeRecorder) onChange(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = cfg
}

func (r *changeRecorder) snapshot() (int, *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, r.last
}

func TestConfigWatcher(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	initialContent := `telegram:
  token: "test-token-123"
roles:
  owner: "1001"
storage_path: "/tmp/test.db"
log_level: "info"
`
	if err := os.WriteFile(configPath, []byte(initialContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	rec := &changeRecorder{}
	watcher, err := NewConfigWatcher(configPath, rec.onChange)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)

	updatedContent := `telegram:
  token: "test-token-456"
roles:
  owner: "1001"
  admins: ["2002", "3003"]
storage_path: "/tmp/test2.db"
log_level: "debug"
`
	if err := os.WriteFile(configPath, []byte(updatedContent), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	time.Sleep(1 * time.Second)

	calls, last := rec.snapshot()
	if calls == 0 {
		t.Fatal("onChange was not called after config file update")
	}
	if last.Telegram.Token != "test-token-456" {
		t.Errorf("Expected token 'test-token-456', got '%s'", last.Telegram.Token)
	}
	if len(last.Roles.Admins) != 2 {
		t.Errorf("Expected 2 admins, got %v", last.Roles.Admins)
	}
	if last.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", last.LogLevel)
	}
}

func TestConfigWatcherManualReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `menu:
  prefix: "!"
storage_path: "/tmp/manual.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	rec := &changeRecorder{}
	watcher, err := NewConfigWatcher(configPath, rec.onChange)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if err := watcher.TriggerReload(); err != nil {
		t.Fatalf("Manual reload failed: %v", err)
	}

	calls, last := rec.snapshot()
	if calls == 0 {
		t.Fatal("onChange was not called after manual reload")
	}
	if last.Menu.Prefix != "!" {
		t.Errorf("prefix = %q", last.Menu.Prefix)
	}
}

func TestConfigWatcherInvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	validContent := `storage_path: "/tmp/valid.db"
`
	if err := os.WriteFile(configPath, []byte(validContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	rec := &changeRecorder{}
	watcher, err := NewConfigWatcher(configPath, rec.onChange)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)

	invalidContent := `storage_path: "/tmp/valid.db"
stock:
  threshold: 0
`
	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	time.Sleep(1 * time.Second)

	if calls, _ := rec.snapshot(); calls > 0 {
		t.Error("onChange should not be called for invalid config")
	}
	if err := watcher.TriggerReload(); err == nil {
		t.Error("TriggerReload should report the validation error")
	}
}

func TestConfigWatcherStopTwice(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(configPath, []byte("log_level: info\n"), 0644)

	watcher, err := NewConfigWatcher(configPath, nil)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	watcher.Stop()
	watcher.Stop()
}
