package features

import (
	"context"
	"sort"
	"sync"

	"menubot/internal/errorx"
	"menubot/internal/logger"
	"menubot/internal/storage"
)

// Well-known flag names.
const (
	MasterSwitch   = "masterSwitch"
	StockCount     = "stockCount"
	CreativeHub    = "creativeHub"
	GamesArena     = "gamesArena"
	UtilityCenter  = "utilityCenter"
	AnalyticsPanel = "analyticsPanel"
	FunZone        = "funZone"
)

// Defaults are the built-in flag values before config and store overrides.
var Defaults = map[string]bool{
	StockCount:     true,
	CreativeHub:    true,
	GamesArena:     true,
	UtilityCenter:  true,
	AnalyticsPanel: true,
	FunZone:        true,
	MasterSwitch:   true,
}

var log = logger.Named("features")

type record struct {
	Enabled bool `json:"enabled"`
}

// Flag is a name/value pair for display.
type Flag struct {
	Name    string
	Enabled bool
}

// Flags is the feature-flag table. A flag is effectively enabled only while
// the master switch is on.
type Flags struct {
	store storage.Store

	mu     sync.RWMutex
	values map[string]bool
}

// New creates a flag set seeded with Defaults overlaid by defaults.
func New(store storage.Store, defaults map[string]bool) *Flags {
	values := make(map[string]bool, len(Defaults)+len(defaults))
	for k, v := range Defaults {
		values[k] = v
	}
	for k, v := range defaults {
		values[k] = v
	}
	return &Flags{store: store, values: values}
}

// Load overlays persisted values on top of the defaults.
func (f *Flags) Load(ctx context.Context) error {
	stored, err := storage.ListJSON[record](ctx, f.store, storage.TableFeatureFlags, func(key string, err error) {
		log.Warnf("skipping undecodable flag %q: %v", key, err)
	})
	if err != nil {
		return errorx.E(errorx.PersistenceFailure, "features.load", err)
	}

	f.mu.Lock()
	for name, rec := range stored {
		f.values[name] = rec.Enabled
	}
	f.mu.Unlock()

	log.Debugf("loaded %d persisted flags", len(stored))
	return nil
}

// Enabled reports whether name is effectively enabled. Unknown flags are off.
func (f *Flags) Enabled(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.values[MasterSwitch] {
		return false
	}
	return f.values[name]
}

// Raw returns the flag's own value, ignoring the master switch.
func (f *Flags) Raw(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[name]
}

// Set stores a flag value. The in-memory value changes even when the write
// fails; the returned error is then a PersistenceFailure.
func (f *Flags) Set(ctx context.Context, name string, enabled bool) error {
	f.mu.Lock()
	f.values[name] = enabled
	f.mu.Unlock()

	return f.persist(ctx, name, enabled)
}

// Toggle flips a flag and returns its new value.
func (f *Flags) Toggle(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	enabled := !f.values[name]
	f.values[name] = enabled
	f.mu.Unlock()

	return enabled, f.persist(ctx, name, enabled)
}

// List returns all flags sorted by name with the master switch last.
func (f *Flags) List() []Flag {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Flag, 0, len(f.values))
	for name, v := range f.values {
		out = append(out, Flag{Name: name, Enabled: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Name == MasterSwitch) != (out[j].Name == MasterSwitch) {
			return out[j].Name == MasterSwitch
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (f *Flags) persist(ctx context.Context, name string, enabled bool) error {
	if err := storage.PutJSON(ctx, f.store, storage.TableFeatureFlags, name, record{Enabled: enabled}); err != nil {
		return errorx.E(errorx.PersistenceFailure, "features.set", err)
	}
	return nil
}
