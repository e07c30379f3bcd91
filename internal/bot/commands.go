package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"menubot/internal/errorx"
	"menubot/internal/features"
	"menubot/internal/menu"
	"menubot/internal/roles"
)

// runCommand handles a prefixed command. Anything that is not a universal
// command is treated as a selector on the current node. It reports whether
// the user gets a reply.
func (d *Dispatcher) runCommand(ctx context.Context, cmd string, in *request, out *reply) bool {
	switch cmd {
	case "menu", "home":
		return d.navigate(ctx, d.catalog.Root(), in, out)

	case "back":
		s, err := d.sessions.NavigateBack(ctx, in.ev.SenderID, in.viewer)
		if err != nil {
			log.Warnf("back for %s: %v", in.ev.SenderID, err)
		}
		out.text(d.catalog.Render(s.CurrentNode, in.viewer, d.cfg.Prefix))
		return true

	case "help":
		out.text(d.helpText())
		return true

	case "admin":
		if !in.role.Meets(roles.Admin) {
			log.Infof("admin denied for %s", roles.Normalize(in.ev.SenderID))
			return false
		}
		return d.navigate(ctx, "admin", in, out)

	case "debug":
		if !in.role.Meets(roles.Admin) {
			return false
		}
		out.text(d.debugText(in))
		return true

	case "hi", "hello":
		out.sendTo(in.ev.ChatID, fmt.Sprintf("👋 Hello! I'm an advanced chat bot.\n\nType %smenu to explore my features!", d.cfg.Prefix), time.Second, 2*time.Second)
		return true

	case "stock":
		return d.stockCommand(ctx, in, out)

	case "reload":
		return d.reloadCommand(in, out)
	}

	return d.selectPrefixed(ctx, cmd, in, out)
}

// selectPrefixed resolves a prefixed token against the current node and
// re-renders the menu when it does not resolve.
func (d *Dispatcher) selectPrefixed(ctx context.Context, token string, in *request, out *reply) bool {
	ch, ok := d.catalog.ResolveChoice(d.currentNode(in), token, in.viewer)
	if !ok {
		d.unknownSelector(token, in, out)
		return true
	}
	return d.choose(ctx, ch, in, out)
}

// bareToken handles text without the prefix. Numbers are selectors; a single
// word is a selector only when it resolves. Everything else is chat.
func (d *Dispatcher) bareToken(ctx context.Context, text string, in *request, out *reply) bool {
	fields := strings.Fields(text)
	if len(fields) != 1 {
		return false
	}
	token := fields[0]

	ch, ok := d.catalog.ResolveChoice(d.currentNode(in), token, in.viewer)
	if ok {
		return d.choose(ctx, ch, in, out)
	}
	if isNumber(token) {
		d.unknownSelector(token, in, out)
		return true
	}
	return false
}

func (d *Dispatcher) unknownSelector(token string, in *request, out *reply) {
	node := d.currentNode(in)
	err := errorx.E(errorx.UnknownSelector, "bot.select", fmt.Errorf("%q at %s", token, node))
	log.Debugf("%v", err)
	out.text(d.catalog.Render(node, in.viewer, d.cfg.Prefix))
}

// choose follows a resolved choice.
func (d *Dispatcher) choose(ctx context.Context, ch menu.Choice, in *request, out *reply) bool {
	if ch.IsNavigation() {
		return d.navigate(ctx, ch.Target, in, out)
	}
	return d.runAction(ctx, ch, in, out)
}

// navigate moves the user and renders the new node. Denials are silent.
func (d *Dispatcher) navigate(ctx context.Context, target string, in *request, out *reply) bool {
	s, err := d.sessions.NavigateTo(ctx, in.ev.SenderID, target, in.viewer)
	if errors.Is(err, errorx.ErrCapabilityDenied) {
		log.Debugf("%s may not open %s", roles.Normalize(in.ev.SenderID), target)
		return false
	}
	if err != nil && errorx.KindOf(err) != errorx.PersistenceFailure {
		log.Warnf("navigate %s -> %s: %v", in.ev.SenderID, target, err)
	}
	out.text(d.catalog.Render(s.CurrentNode, in.viewer, d.cfg.Prefix))
	return true
}

// stockCommand switches trigger tracking: stock on|off. Owner only.
func (d *Dispatcher) stockCommand(ctx context.Context, in *request, out *reply) bool {
	if !in.role.Meets(roles.Owner) {
		return false
	}

	if len(in.args) == 0 {
		out.text(stockStatus(d.flags.Raw(features.StockCount)))
		return true
	}

	var enabled bool
	switch strings.ToLower(in.args[0]) {
	case "on", "enable":
		enabled = true
	case "off", "disable":
		enabled = false
	default:
		out.text(fmt.Sprintf("Usage: %sstock on|off", d.cfg.Prefix))
		return true
	}

	if err := d.flags.Set(ctx, features.StockCount, enabled); err != nil {
		log.Warnf("stock toggle: %v", err)
	}
	out.text(stockStatus(enabled))
	return true
}

// reloadCommand re-reads the configuration file. Admin only.
func (d *Dispatcher) reloadCommand(in *request, out *reply) bool {
	if !in.role.Meets(roles.Admin) {
		return false
	}
	if d.reloader == nil {
		out.text("⚠️ Config hot-reload is not enabled.")
		return true
	}
	if err := d.reloader.TriggerReload(); err != nil {
		log.Warnf("config reload failed: %v", err)
		out.text(fmt.Sprintf("❌ Failed to reload config: %v", err))
		return true
	}
	out.text("✅ Configuration reloaded successfully!")
	return true
}

func (d *Dispatcher) helpText() string {
	p := d.cfg.Prefix
	return fmt.Sprintf(`❓ HELP - Available Commands:

🔹 %[1]smenu / %[1]shome → Main menu
🔹 %[1]sback → Previous menu
🔹 %[1]shelp → This help message
🔹 %[1]sadmin → Admin panel (admins only)

📱 Navigate using numbers [1], [2], etc.
⏰ Menus auto-reset after %[2]s
🎮 Have fun exploring!`, p, humanDuration(d.sessions.Timeout()))
}

func (d *Dispatcher) debugText(in *request) string {
	chatType := "DM"
	if in.ev.ChatID != in.ev.SenderID {
		chatType = "Group"
	}
	return fmt.Sprintf(`🔍 DEBUG INFO:
📞 Your number: %s
👑 Owner status: %s
🛡️ Admin status: %s
💬 Chat type: %s
🆔 Your ID: %s
📍 Menu: %s (%d deep, %s)
🚦 Cooldown: %s
⏱️ Uptime: %s`,
		roles.Normalize(in.ev.SenderID),
		check(in.role == roles.Owner),
		check(in.role.Meets(roles.Admin)),
		chatType,
		in.ev.SenderID,
		in.session.CurrentNode, len(in.session.Breadcrumb), d.nodeRole(in.session.CurrentNode),
		cooldown(d.limiter.RemainingCooldown(in.ev.SenderID)),
		d.now().Sub(d.startedAt).Round(time.Second))
}

// nodeRole names the lowest role that may open key.
func (d *Dispatcher) nodeRole(key string) roles.Role {
	if n, ok := d.catalog.Node(key); ok {
		return n.RequiredRole()
	}
	return roles.Guest
}

func cooldown(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.Round(time.Second).String()
}

func stockStatus(enabled bool) string {
	if enabled {
		return "📊 STOCK COUNT: ✅ ENABLED"
	}
	return "📊 STOCK COUNT: ❌ DISABLED"
}

func check(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	}
	return d.String()
}
