package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"menubot/internal/logger"
)

// DefaultDebounce collapses the burst of events editors produce on save.
const DefaultDebounce = 500 * time.Millisecond

var log = logger.Named("config")

// ConfigWatcher watches the configuration file and hands every valid
// revision to onChange.
type ConfigWatcher struct {
	configPath string
	watcher    *fsnotify.Watcher
	onChange   func(*Config)
	stopCh     chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
	debounce   *time.Timer
	delay      time.Duration
}

// NewConfigWatcher creates a new configuration watcher
func NewConfigWatcher(configPath string, onChange func(*Config)) (*ConfigWatcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors often replace the file on save, so watch the directory.
	configDir := filepath.Dir(configPath)
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", configDir, err)
	}

	cw := &ConfigWatcher{
		configPath: configPath,
		watcher:    watcher,
		onChange:   onChange,
		stopCh:     make(chan struct{}),
		delay:      DefaultDebounce,
	}

	go cw.watch()

	log.Infof("👀 watching %s", configPath)
	return cw, nil
}

func (cw *ConfigWatcher) watch() {
	configBase := filepath.Base(cw.configPath)
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != cw.configPath && filepath.Base(event.Name) != configBase {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				log.Debugf("config file changed: %s (op: %s)", event.Name, event.Op)
				cw.debounceReload()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("watcher error: %v", err)

		case <-cw.stopCh:
			return
		}
	}
}

func (cw *ConfigWatcher) debounceReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounce != nil {
		cw.debounce.Stop()
	}
	cw.debounce = time.AfterFunc(cw.delay, func() {
		if err := cw.TriggerReload(); err != nil {
			log.Errorf("%v", err)
		}
	})
}

// TriggerReload reads, validates and applies the config file now. An invalid
// file leaves the running configuration untouched.
func (cw *ConfigWatcher) TriggerReload() error {
	cfg, err := LoadFrom(cw.configPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	log.Infof("🔄 configuration reloaded")
	if cw.onChange != nil {
		cw.onChange(cfg)
	}
	return nil
}

// Stop stops the watcher and cleans up resources
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() {
		cw.mu.Lock()
		if cw.debounce != nil {
			cw.debounce.Stop()
		}
		cw.mu.Unlock()

		close(cw.stopCh)
		cw.watcher.Close()
		log.Debugf("watcher stopped")
	})
}
