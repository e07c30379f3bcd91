package bot

import (
	"context"
	"fmt"
	"strings"

	"menubot/internal/features"
	"menubot/internal/menu"
	"menubot/internal/roles"
	"menubot/internal/session"
)

const comingSoon = "🚧 Feature coming soon!\n\nThis section is under development."

// Terminal actions with behavior. Other actions reply with the choice's
// static text or the coming-soon notice.
const (
	actionUsers       = "admin.users"
	actionFeatures    = "admin.features"
	actionGames       = "admin.games"
	actionStockToggle = "admin.stock_toggle"
	actionKillSwitch  = "admin.kill_switch"
	actionChat        = "chat.start"
	actionMyStats     = "stats.me"
	actionCommands    = "help.commands"
)

func (d *Dispatcher) runAction(ctx context.Context, ch menu.Choice, in *request, out *reply) bool {
	if strings.HasPrefix(ch.Action, "admin.") && !in.role.Meets(roles.Admin) {
		return false
	}

	switch ch.Action {
	case actionUsers:
		out.text(fmt.Sprintf("👥 USER MANAGEMENT\n\n📊 Active Users: %d\n🧭 Menu Sessions: %d\n👑 Admins: %d\n\n🔧 Management options coming soon!",
			d.usage.ActiveUsers(), d.sessions.Count(), d.roles.AdminCount()))

	case actionFeatures:
		var sb strings.Builder
		for _, f := range d.flags.List() {
			fmt.Fprintf(&sb, "%s %s\n", check(f.Enabled), f.Name)
		}
		out.text(fmt.Sprintf("⚙️ FEATURE TOGGLES\n\n%s\n🔧 Toggle controls coming soon!", strings.TrimRight(sb.String(), "\n")))

	case actionGames:
		out.text("🎮 GAME MANAGEMENT\n\n🏆 Leaderboards\n🎯 Active Games\n⚙️ Settings\n\n🔧 Full game controls coming soon!")

	case actionStockToggle:
		if in.role != roles.Owner {
			return false
		}
		enabled, err := d.flags.Toggle(ctx, features.StockCount)
		if err != nil {
			log.Warnf("stock toggle: %v", err)
		}
		out.text(stockStatus(enabled))

	case actionKillSwitch:
		online, err := d.flags.Toggle(ctx, features.MasterSwitch)
		if err != nil {
			log.Warnf("kill switch: %v", err)
		}
		state := "❌ OFFLINE"
		if online {
			state = "✅ ONLINE"
		}
		log.Infof("master switch %s by %s", state, roles.Normalize(in.ev.SenderID))
		out.text("🔴 MASTER SWITCH: " + state)

	case actionChat:
		if _, err := d.sessions.SetTransientMode(ctx, in.ev.SenderID, session.TransientChat); err != nil {
			log.Warnf("chat mode for %s: %v", in.ev.SenderID, err)
		}
		out.text(fmt.Sprintf("🤖 Fake ChatGPT Mode Activated!\n\nI'll respond to your messages in AI assistant style. Ask me anything!\n\nSend %sback to leave.", d.cfg.Prefix))

	case actionMyStats:
		out.text(d.myStats(in))

	case actionCommands:
		out.text(d.helpText())

	default:
		if ch.Text != "" {
			out.text(ch.Text)
		} else {
			out.text(comingSoon)
		}
	}
	return true
}

func (d *Dispatcher) myStats(in *request) string {
	u, _ := d.usage.Get(in.ev.SenderID)
	return fmt.Sprintf("📱 MY STATS\n\n💬 Messages: %d\n⌨️ Commands: %d\n🔑 Role: %s\n📍 Menu: %s",
		u.Messages, u.Commands, in.role, in.session.CurrentNode)
}

// transient routes free text to the responder while chat mode is on.
func (d *Dispatcher) transient(ctx context.Context, in *request, out *reply) bool {
	answer, err := d.responder.Respond(ctx, in.ev.SenderID, in.ev.Text)
	if err != nil {
		log.Warnf("responder: %v", err)
		out.text(fmt.Sprintf("⚠️ Something went wrong. Please try again or type %smenu", d.cfg.Prefix))
		return true
	}
	if answer == "" {
		return false
	}
	out.text(answer)
	return true
}
