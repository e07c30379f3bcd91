package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"menubot/internal/bot"
	"menubot/internal/config"
	"menubot/internal/cron"
	"menubot/internal/features"
	"menubot/internal/logger"
	"menubot/internal/menu"
	"menubot/internal/outbound"
	"menubot/internal/roles"
	"menubot/internal/session"
	"menubot/internal/storage"
	"menubot/internal/tracker"
)

// Version is stamped at build time.
var Version = "0.1.0"

var log = logger.Named("app")

// App orchestrates all components
type App struct {
	config *config.Config
	store  storage.Store

	roles      *roles.Resolver
	catalog    *menu.Catalog
	flags      *features.Flags
	sessions   *session.Manager
	tracker    *tracker.Tracker
	dispatcher *bot.Dispatcher
	scheduler  *cron.Scheduler
	watcher    *config.ConfigWatcher
	outbound   *outbound.Scheduler
}

// New creates a new application instance
func New(cfg *config.Config, store storage.Store) *App {
	return &App{
		config: cfg,
		store:  store,
	}
}

// Init builds the menu engine and loads persisted state. It is safe to call
// more than once.
func (a *App) Init(ctx context.Context) error {
	if a.dispatcher != nil {
		return nil
	}
	cfg := a.config
	logger.SetLevel(cfg.LogLevel)

	catalog := menu.Default()
	if cfg.Menu.Catalog != "" {
		data, err := os.ReadFile(cfg.Menu.Catalog)
		if err != nil {
			return fmt.Errorf("failed to read menu catalog: %w", err)
		}
		if catalog, err = menu.Parse(data); err != nil {
			return fmt.Errorf("failed to parse menu catalog %s: %w", cfg.Menu.Catalog, err)
		}
		log.Infof("📋 menu catalog loaded from %s", cfg.Menu.Catalog)
	}
	a.catalog = catalog

	a.roles = roles.NewResolver(cfg.Roles.Owner, cfg.Roles.Admins)
	if a.roles.Owner() == "" {
		log.Warnf("⚠️ no owner configured, owner-only options stay hidden")
	}

	a.flags = features.New(a.store, cfg.FlagDefaults(flagNames()))
	if err := a.flags.Load(ctx); err != nil {
		return fmt.Errorf("failed to load feature flags: %w", err)
	}

	a.sessions = session.NewManager(a.store, catalog, session.WithTimeout(cfg.Menu.Timeout))
	if err := a.sessions.Load(ctx); err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	a.tracker = tracker.New(a.store,
		tracker.WithTriggerPhrase(cfg.Stock.TriggerPhrase),
		tracker.WithThreshold(cfg.Stock.Threshold),
	)
	if err := a.tracker.Load(ctx); err != nil {
		return fmt.Errorf("failed to load reaction counters: %w", err)
	}
	log.Infof("💾 restored %d sessions and %d counters", a.sessions.Count(), len(a.tracker.List()))

	a.dispatcher = bot.New(bot.Config{
		Prefix:         cfg.Menu.Prefix,
		BareSelectors:  cfg.Menu.BareSelectors,
		AckEmoji:       cfg.Stock.AckEmoji,
		AlertChat:      cfg.Stock.AlertChat,
		MinDelay:       cfg.Send.MinDelay,
		MaxDelay:       cfg.Send.MaxDelay,
		AutoReactChats: cfg.AutoReact.Chats,
		IgnoredChats:   cfg.IgnoredChats,
		RateLimit:      cfg.Menu.RateLimit,
		Version:        Version,
	}, bot.Deps{
		Roles:    a.roles,
		Catalog:  catalog,
		Sessions: a.sessions,
		Flags:    a.flags,
		Tracker:  a.tracker,
	})
	return nil
}

// Start runs the bot on Telegram until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}

	tg, err := bot.NewTelegram(a.config.Telegram.Token)
	if err != nil {
		return err
	}

	a.startBackground(ctx, tg)
	defer a.Stop()

	log.Infof("🤖 menubot %s started", Version)
	return tg.Run(ctx, a.dispatcher, a.outbound)
}

// RunConsole drives the bot from in/out instead of Telegram. fast disables
// the send jitter.
func (a *App) RunConsole(ctx context.Context, in io.Reader, out io.Writer, chatID, userID string, fast bool) error {
	if err := a.Init(ctx); err != nil {
		return err
	}

	console := bot.NewConsole(in, out, chatID, userID)
	var opts []outbound.Option
	if fast {
		opts = append(opts, outbound.WithJitter(func(_, _ time.Duration) time.Duration { return 0 }))
	}
	a.startBackground(ctx, console, opts...)
	defer a.Stop()

	return console.Run(ctx, a.dispatcher, a.outbound)
}

func (a *App) startBackground(ctx context.Context, transport outbound.Transport, opts ...outbound.Option) {
	opts = append([]outbound.Option{outbound.WithSendTimeout(a.config.Send.Timeout)}, opts...)
	a.outbound = outbound.NewScheduler(transport, opts...)

	if a.config.Backup.Schedule != "" {
		a.scheduler = cron.NewScheduler()
		job := cron.BackupJob(a.store, a.config.Backup.Dir, a.config.Backup.Keep)
		if err := a.scheduler.AddJob(cron.BackupJobName, a.config.Backup.Schedule, job); err != nil {
			log.Warnf("⚠️ backup disabled: %v", err)
		} else if err := a.scheduler.Start(ctx); err != nil {
			log.Warnf("⚠️ failed to start cron scheduler: %v", err)
		}
	}

	if a.config.ConfigPath != "" {
		w, err := config.NewConfigWatcher(a.config.ConfigPath, a.applyConfig)
		if err != nil {
			log.Warnf("⚠️ config hot reload disabled: %v", err)
		} else {
			a.watcher = w
			a.dispatcher.SetConfigWatcher(w)
		}
	}
}

// applyConfig takes the settings that can change without a restart.
func (a *App) applyConfig(cfg *config.Config) {
	logger.SetLevel(cfg.LogLevel)
	a.roles.Update(cfg.Roles.Owner, cfg.Roles.Admins)
	log.Infof("👥 roles updated: owner=%s admins=%d", a.roles.Owner(), a.roles.AdminCount())
}

// Stop gracefully shuts down all components. When scheduled backups are on,
// a last snapshot is taken after the scheduler stops.
func (a *App) Stop() error {
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
		a.finalBackup()
	}
	if a.outbound != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.outbound.Close(ctx); err != nil {
			log.Warnf("outbound queue not drained: %v", err)
		}
		a.outbound = nil
	}
	return nil
}

func (a *App) finalBackup() {
	if a.config.Backup.Dir == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	job := cron.BackupJob(a.store, a.config.Backup.Dir, a.config.Backup.Keep)
	if err := job(ctx); err != nil {
		log.Warnf("⚠️ shutdown backup failed: %v", err)
	}
}

// Tracker exposes the reaction counters for reporting commands.
func (a *App) Tracker() *tracker.Tracker { return a.tracker }

// Flags exposes the feature flags for reporting commands.
func (a *App) Flags() *features.Flags { return a.flags }

// Sessions exposes the session manager for reporting commands.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Store returns the backing store.
func (a *App) Store() storage.Store { return a.store }

func flagNames() []string {
	names := make([]string, 0, len(features.Defaults))
	for name := range features.Defaults {
		names = append(names, name)
	}
	return names
}
