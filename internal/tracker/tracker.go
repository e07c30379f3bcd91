// Package tracker counts reactions on messages that carried the trigger
// phrase and signals once when a message reaches the threshold.
package tracker

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"menubot/internal/errorx"
	"menubot/internal/keylock"
	"menubot/internal/logger"
	"menubot/internal/sanitize"
	"menubot/internal/storage"
)

const (
	// DefaultTriggerPhrase starts tracking when found in a message.
	DefaultTriggerPhrase = "new stock count"
	// DefaultThreshold is the reaction count that fires the alert.
	DefaultThreshold = 10

	snippetRunes = 50
)

var log = logger.Named("tracker")

// Counter is the durable record for one tracked message.
type Counter struct {
	MessageKey       string    `json:"messageKey"`
	ID               string    `json:"id"`
	Count            int       `json:"count"`
	ThresholdCrossed bool      `json:"thresholdCrossed"`
	Snippet          string    `json:"snippet"`
	CreatedAt        time.Time `json:"createdAt"`
}

// MessageKey builds the composite identity of a message.
func MessageKey(chatID, messageID string) string {
	return chatID + "_" + messageID
}

// Snippet shortens text to a one-line preview.
func Snippet(text string) string {
	text = sanitize.OneLine(text)
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	return string([]rune(text)[:snippetRunes]) + "..."
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTriggerPhrase overrides DefaultTriggerPhrase. Empty values are ignored.
func WithTriggerPhrase(phrase string) Option {
	return func(t *Tracker) {
		if p := strings.TrimSpace(phrase); p != "" {
			t.phrase = strings.ToLower(p)
		}
	}
}

// WithThreshold overrides DefaultThreshold. Non-positive values are ignored.
func WithThreshold(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.threshold = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDFunc replaces the SC-nnnn reference generator.
func WithIDFunc(fn func() string) Option {
	return func(t *Tracker) { t.newID = fn }
}

// Tracker holds the reaction counters. Updates of one message are serialized.
type Tracker struct {
	store     storage.Store
	phrase    string
	threshold int
	now       func() time.Time
	newID     func() string
	locks     *keylock.Locker

	mu       sync.RWMutex
	counters map[string]Counter
}

// New creates an empty tracker. Call Load to restore persisted counters.
func New(store storage.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:     store,
		phrase:    DefaultTriggerPhrase,
		threshold: DefaultThreshold,
		now:       time.Now,
		newID:     func() string { return fmt.Sprintf("SC-%04d", 1000+rand.Intn(9000)) },
		locks:     keylock.New(),
		counters:  make(map[string]Counter),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Threshold returns the configured threshold.
func (t *Tracker) Threshold() int { return t.threshold }

// Matches reports whether text contains the trigger phrase, ignoring case.
func (t *Tracker) Matches(text string) bool {
	return text != "" && strings.Contains(strings.ToLower(text), t.phrase)
}

// Load rebuilds the in-memory table from the store.
func (t *Tracker) Load(ctx context.Context) error {
	stored, err := storage.ListJSON[Counter](ctx, t.store, storage.TableReactionCounters, func(key string, err error) {
		log.Warnf("skipping undecodable counter %q: %v", key, err)
	})
	if err != nil {
		return errorx.E(errorx.PersistenceFailure, "tracker.load", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for key, c := range stored {
		if c.Count < 0 {
			c.Count = 0
		}
		c.MessageKey = key
		t.counters[key] = c
	}
	log.Debugf("restored %d counters", len(stored))
	return nil
}

// OnTriggerPhraseDetected starts tracking messageKey when rawText carries the
// trigger phrase. Repeated detections on the same message create the record
// once; isNew is true only for the first. Text without the phrase is a no-op.
func (t *Tracker) OnTriggerPhraseDetected(ctx context.Context, messageKey, rawText string) (isNew bool, rec Counter, err error) {
	if !t.Matches(rawText) {
		return false, Counter{}, nil
	}

	unlock := t.locks.Lock(messageKey)
	defer unlock()

	if existing, ok := t.get(messageKey); ok {
		return false, existing, nil
	}

	rec = Counter{
		MessageKey: messageKey,
		ID:         t.newID(),
		Snippet:    Snippet(rawText),
		CreatedAt:  t.now(),
	}
	err = t.save(ctx, "tracker.create", rec)
	log.Infof("tracking %s (%s): %q", messageKey, rec.ID, rec.Snippet)
	return true, rec, err
}

// OnReactionDelta applies one reaction add or removal. It returns true
// exactly once per message: when the count becomes equal to the threshold.
// A count that jumps past the threshold never fires. Unknown or already
// crossed messages are ignored.
func (t *Tracker) OnReactionDelta(ctx context.Context, messageKey string, added bool) (crossedNow bool, rec Counter, err error) {
	unlock := t.locks.Lock(messageKey)
	defer unlock()

	rec, ok := t.get(messageKey)
	if !ok || rec.ThresholdCrossed {
		return false, rec, nil
	}

	if added {
		rec.Count++
	} else if rec.Count > 0 {
		rec.Count--
	}
	err = t.save(ctx, "tracker.delta", rec)

	if rec.Count == t.threshold {
		rec.ThresholdCrossed = true
		if serr := t.save(ctx, "tracker.crossed", rec); serr != nil {
			err = serr
		}
		log.Infof("%s (%s) reached %d reactions", messageKey, rec.ID, rec.Count)
		return true, rec, err
	}
	return false, rec, err
}

// Get returns the counter for messageKey.
func (t *Tracker) Get(messageKey string) (Counter, bool) {
	return t.get(messageKey)
}

// List returns every counter, newest first.
func (t *Tracker) List() []Counter {
	t.mu.RLock()
	out := make([]Counter, 0, len(t.counters))
	for _, c := range t.counters {
		out = append(out, c)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].MessageKey < out[j].MessageKey
	})
	return out
}

func (t *Tracker) get(key string) (Counter, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.counters[key]
	return c, ok
}

func (t *Tracker) save(ctx context.Context, op string, c Counter) error {
	t.mu.Lock()
	t.counters[c.MessageKey] = c
	t.mu.Unlock()

	if err := storage.PutJSON(ctx, t.store, storage.TableReactionCounters, c.MessageKey, c); err != nil {
		perr := errorx.E(errorx.PersistenceFailure, op, fmt.Errorf("counter %s: %w", c.MessageKey, err))
		errorx.Report(perr, "counter write-through failed")
		return perr
	}
	return nil
}
