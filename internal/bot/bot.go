package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"menubot/internal/errorx"
	"menubot/internal/features"
	"menubot/internal/logger"
	"menubot/internal/menu"
	"menubot/internal/outbound"
	"menubot/internal/roles"
	"menubot/internal/session"
	"menubot/internal/tracker"
)

var log = logger.Named("bot")

// StatusBroadcast is the status channel every chat protocol of this kind
// delivers to bots. It is always ignored.
const StatusBroadcast = "status@broadcast"

// Delay windows for the replies that are not menu output.
const (
	noticeMinDelay = 500 * time.Millisecond
	noticeMaxDelay = time.Second
	alertMinDelay  = 2 * time.Second
	alertMaxDelay  = 4 * time.Second
)

// MessageEvent is an inbound text message.
type MessageEvent struct {
	SenderID   string
	ChatID     string
	MessageID  string
	Text       string
	IsFromSelf bool
}

// ReactionEvent is a reaction added to or removed from a message. An empty
// Reaction means removal.
type ReactionEvent struct {
	ChatID    string
	MessageID string
	ReactorID string
	Reaction  string
}

// Config holds the dispatcher settings.
type Config struct {
	Prefix         string
	BareSelectors  bool
	AckEmoji       string
	AlertChat      string
	MinDelay       time.Duration
	MaxDelay       time.Duration
	AutoReactChats []string
	IgnoredChats   []string
	RateLimit      int
	Version        string
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Prefix:        ".",
		BareSelectors: true,
		AckEmoji:      "👍",
		MinDelay:      time.Second,
		MaxDelay:      3 * time.Second,
		IgnoredChats:  []string{StatusBroadcast},
		RateLimit:     20,
		Version:       "dev",
	}
}

// Deps are the components the dispatcher drives.
type Deps struct {
	Roles     *roles.Resolver
	Catalog   *menu.Catalog
	Sessions  *session.Manager
	Flags     *features.Flags
	Tracker   *tracker.Tracker
	Responder Responder
	Reloader  ConfigWatcher
}

// Dispatcher turns inbound events into outbound intents. It never fails:
// errors are logged and the user gets a menu back.
type Dispatcher struct {
	cfg       Config
	roles     *roles.Resolver
	catalog   *menu.Catalog
	sessions  *session.Manager
	flags     *features.Flags
	tracker   *tracker.Tracker
	responder Responder
	reloader  ConfigWatcher
	limiter   *RateLimiter
	usage     *UsageTracker
	autoReact map[string]bool
	ignored   map[string]bool
	startedAt time.Time
	now       func() time.Time
}

// New creates a dispatcher.
func New(cfg Config, deps Deps) *Dispatcher {
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.AckEmoji == "" {
		cfg.AckEmoji = def.AckEmoji
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if deps.Responder == nil {
		deps.Responder = NewPersonaResponder()
	}

	d := &Dispatcher{
		cfg:       cfg,
		roles:     deps.Roles,
		catalog:   deps.Catalog,
		sessions:  deps.Sessions,
		flags:     deps.Flags,
		tracker:   deps.Tracker,
		responder: deps.Responder,
		reloader:  deps.Reloader,
		limiter:   NewRateLimiter(cfg.RateLimit, time.Minute),
		usage:     NewUsageTracker(),
		autoReact: toSet(cfg.AutoReactChats),
		ignored:   toSet(append([]string{StatusBroadcast}, cfg.IgnoredChats...)),
		now:       time.Now,
	}
	d.startedAt = d.now()
	return d
}

// SetConfigWatcher wires the reload command to a config watcher.
func (d *Dispatcher) SetConfigWatcher(w ConfigWatcher) {
	d.reloader = w
}

// Usage exposes per-user activity counters.
func (d *Dispatcher) Usage() *UsageTracker { return d.usage }

// HandleMessage processes one inbound message.
func (d *Dispatcher) HandleMessage(ctx context.Context, ev MessageEvent) []outbound.Intent {
	if ev.IsFromSelf || d.ignored[ev.ChatID] {
		return nil
	}

	r := &reply{d: d, chatID: ev.ChatID}
	err := errorx.HandleWithRecovery(func() error {
		d.handleMessage(ctx, ev, r)
		return nil
	})
	if err != nil {
		d.recoverMenu(ctx, ev, r)
	}
	return r.intents
}

// HandleReaction processes one reaction change. Only tracked messages matter.
func (d *Dispatcher) HandleReaction(ctx context.Context, ev ReactionEvent) []outbound.Intent {
	if d.ignored[ev.ChatID] {
		return nil
	}

	r := &reply{d: d, chatID: ev.ChatID}
	errorx.HandleWithRecovery(func() error {
		key := tracker.MessageKey(ev.ChatID, ev.MessageID)
		crossed, rec, err := d.tracker.OnReactionDelta(ctx, key, ev.Reaction != "")
		if err != nil {
			log.Warnf("reaction on %s: %v", key, err)
		}
		if crossed {
			r.sendTo(d.alertTarget(ev.ChatID), d.confirmedAlert(rec), alertMinDelay, alertMaxDelay)
		}
		return nil
	})
	return r.intents
}

func (d *Dispatcher) handleMessage(ctx context.Context, ev MessageEvent, r *reply) {
	text := strings.TrimSpace(ev.Text)
	cmd, args, isCommand := d.parse(text)
	d.usage.Record(ev.SenderID, isCommand, d.now())

	reacted := false
	if d.autoReact[ev.ChatID] {
		r.react(ev.MessageID, d.cfg.AckEmoji)
		reacted = true
	}
	d.detectTrigger(ctx, ev, r, reacted)

	prior, known := d.sessions.Peek(ev.SenderID)
	if !d.menuTraffic(text, isCommand, prior, known) {
		return
	}

	role := d.roles.Resolve(ev.SenderID)
	viewer := menu.Viewer{Role: role, Flags: d.flags}

	reset, err := d.sessions.CheckAndApplyTimeout(ctx, ev.SenderID)
	if err != nil {
		log.Warnf("timeout check for %s: %v", ev.SenderID, err)
	}
	s, err := d.sessions.GetOrCreate(ctx, ev.SenderID)
	if err != nil {
		log.Warnf("session for %s: %v", ev.SenderID, err)
	}

	in := &request{ev: ev, role: role, viewer: viewer, session: s, args: args}
	body := &reply{d: d, chatID: ev.ChatID}

	var handled bool
	switch {
	case isCommand:
		if !d.limiter.Allow(ev.SenderID) {
			log.Debugf("rate limited %s", ev.SenderID)
			return
		}
		handled = d.runCommand(ctx, cmd, in, body)
	case s.TransientMode == session.TransientChat && d.catalog.CheckAccess(s.CurrentNode, viewer) == nil:
		handled = d.transient(ctx, in, body)
	case d.cfg.BareSelectors:
		handled = d.bareToken(ctx, text, in, body)
	}
	if !handled {
		return
	}

	if reset && d.navigated(prior) {
		r.notice("⏰ Session timed out. Returning to main menu.")
	}
	r.intents = append(r.intents, body.intents...)

	if _, err := d.sessions.Touch(ctx, ev.SenderID); err != nil {
		log.Warnf("touch %s: %v", ev.SenderID, err)
	}
}

// menuTraffic reports whether a message may touch the user's session. Plain
// chat never creates one, so only commands, chat mode and single bare tokens
// qualify.
func (d *Dispatcher) menuTraffic(text string, isCommand bool, s session.Session, known bool) bool {
	switch {
	case isCommand:
		return true
	case known && s.TransientMode == session.TransientChat:
		return true
	default:
		return d.cfg.BareSelectors && len(strings.Fields(text)) == 1
	}
}

// navigated reports whether s was anywhere a timeout could take it away from.
func (d *Dispatcher) navigated(s session.Session) bool {
	return s.CurrentNode != d.catalog.Root() || len(s.Breadcrumb) > 0 || s.TransientMode != ""
}

// currentNode is where selectors resolve for in: the session's node, or root
// when the viewer may no longer open it.
func (d *Dispatcher) currentNode(in *request) string {
	if d.catalog.CheckAccess(in.session.CurrentNode, in.viewer) != nil {
		return d.catalog.Root()
	}
	return in.session.CurrentNode
}

// detectTrigger acknowledges trigger messages and alerts the owner on the
// first sighting. Tracking pauses while the stockCount flag is off.
func (d *Dispatcher) detectTrigger(ctx context.Context, ev MessageEvent, r *reply, reacted bool) {
	if !d.flags.Enabled(features.StockCount) || !d.tracker.Matches(ev.Text) {
		return
	}
	if !reacted {
		r.react(ev.MessageID, d.cfg.AckEmoji)
	}

	key := tracker.MessageKey(ev.ChatID, ev.MessageID)
	isNew, rec, err := d.tracker.OnTriggerPhraseDetected(ctx, key, ev.Text)
	if err != nil {
		log.Warnf("tracking %s: %v", key, err)
	}
	if isNew {
		r.sendTo(d.alertTarget(ev.ChatID), d.detectedAlert(ev, rec), noticeMinDelay, noticeMaxDelay)
	}
}

// parse splits a prefixed command into its lower-cased name and arguments.
func (d *Dispatcher) parse(text string) (cmd string, args []string, ok bool) {
	if !strings.HasPrefix(text, d.cfg.Prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, d.cfg.Prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// recoverMenu runs after a panic and re-renders whatever menu is reachable.
func (d *Dispatcher) recoverMenu(ctx context.Context, ev MessageEvent, r *reply) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("fallback render failed: %v", rec)
		}
	}()

	viewer := menu.Viewer{Role: d.roles.Resolve(ev.SenderID), Flags: d.flags}
	node := d.catalog.Root()
	if s, err := d.sessions.GetOrCreate(ctx, ev.SenderID); err == nil && d.catalog.CheckAccess(s.CurrentNode, viewer) == nil {
		node = s.CurrentNode
	}
	r.text(d.catalog.Render(node, viewer, d.cfg.Prefix))
}

func (d *Dispatcher) alertTarget(source string) string {
	if d.cfg.AlertChat != "" {
		return d.cfg.AlertChat
	}
	if owner := d.roles.Owner(); owner != "" {
		return owner
	}
	return source
}

func (d *Dispatcher) detectedAlert(ev MessageEvent, rec tracker.Counter) string {
	return fmt.Sprintf("🚨 STOCK SIGNAL DETECTED\n\n🆔 %s\n💬 Chat: %s\n👤 From: %s\n📝 %q\n\n👍 Waiting for %d confirmations.",
		rec.ID, ev.ChatID, roles.Normalize(ev.SenderID), rec.Snippet, d.tracker.Threshold())
}

func (d *Dispatcher) confirmedAlert(rec tracker.Counter) string {
	return fmt.Sprintf("✅ STOCK CONFIRMED\n\n🆔 %s\nNumber of stock counters reached: %d\n📝 %q",
		rec.ID, rec.Count, rec.Snippet)
}

// request is one message after role and session resolution.
type request struct {
	ev      MessageEvent
	role    roles.Role
	viewer  menu.Viewer
	session session.Session
	args    []string
}

// reply collects the intents produced for one event.
type reply struct {
	d       *Dispatcher
	chatID  string
	intents []outbound.Intent
}

func (r *reply) text(body string) {
	r.sendTo(r.chatID, body, r.d.cfg.MinDelay, r.d.cfg.MaxDelay)
}

func (r *reply) notice(body string) {
	r.sendTo(r.chatID, body, noticeMinDelay, noticeMaxDelay)
}

func (r *reply) sendTo(chatID, body string, min, max time.Duration) {
	r.intents = append(r.intents, outbound.Text(chatID, body, min, max))
}

func (r *reply) react(messageID, emoji string) {
	r.intents = append(r.intents, outbound.Reaction(r.chatID, messageID, emoji))
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			set[it] = true
		}
	}
	return set
}
