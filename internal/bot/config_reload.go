package bot

// ConfigWatcher is the hot-reload hook behind the reload command.
type ConfigWatcher interface {
	TriggerReload() error
	Stop()
}
