package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/telebot.v4"

	"menubot/internal/errorx"
	"menubot/internal/outbound"
)

// Sink accepts the intents produced by the dispatcher.
type Sink interface {
	Schedule(intents ...outbound.Intent) error
}

// Telegram connects the dispatcher to the Telegram Bot API. It is also the
// outbound transport.
type Telegram struct {
	api *telebot.Bot

	dispatcher *Dispatcher
	sink       Sink
	ctx        context.Context
}

// NewTelegram logs in with token. Reaction updates are requested explicitly
// because Telegram does not send them by default.
func NewTelegram(token string) (*Telegram, error) {
	t := &Telegram{}

	poller := telebot.NewMiddlewarePoller(&telebot.LongPoller{
		Timeout:        10 * time.Second,
		AllowedUpdates: []string{"message", "message_reaction"},
	}, t.filter)

	api, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: poller,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	t.api = api
	return t, nil
}

// Username returns the bot's handle.
func (t *Telegram) Username() string {
	if t.api.Me == nil {
		return ""
	}
	return t.api.Me.Username
}

// Run feeds updates to d and hands the resulting intents to sink until ctx
// is done.
func (t *Telegram) Run(ctx context.Context, d *Dispatcher, sink Sink) error {
	t.dispatcher = d
	t.sink = sink
	t.ctx = ctx

	t.api.Handle(telebot.OnText, func(c telebot.Context) error {
		msg := c.Message()
		if msg == nil || msg.Sender == nil || msg.Chat == nil {
			return nil
		}
		t.submit(d.HandleMessage(ctx, MessageEvent{
			SenderID:   strconv.FormatInt(msg.Sender.ID, 10),
			ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
			MessageID:  strconv.Itoa(msg.ID),
			Text:       msg.Text,
			IsFromSelf: t.api.Me != nil && msg.Sender.ID == t.api.Me.ID,
		}))
		return nil
	})

	go t.api.Start()
	log.Infof("telegram connected as @%s", t.Username())

	<-ctx.Done()
	t.api.Stop()
	return nil
}

// filter intercepts reaction updates, which telebot has no handler for, and
// lets everything else through.
func (t *Telegram) filter(u *telebot.Update) bool {
	r := u.MessageReaction
	if r == nil {
		return true
	}
	if t.dispatcher == nil || r.Chat == nil {
		return false
	}

	ev := ReactionEvent{
		ChatID:    strconv.FormatInt(r.Chat.ID, 10),
		MessageID: strconv.Itoa(r.MessageID),
	}
	if r.User != nil {
		ev.ReactorID = strconv.FormatInt(r.User.ID, 10)
	}
	// Telegram reports the full before/after sets of one user.
	if len(r.NewReaction) > len(r.OldReaction) {
		ev.Reaction = r.NewReaction[len(r.NewReaction)-1].Emoji
		if ev.Reaction == "" {
			ev.Reaction = "custom"
		}
	} else if len(r.NewReaction) == len(r.OldReaction) {
		return false
	}

	t.submit(t.dispatcher.HandleReaction(t.ctx, ev))
	return false
}

func (t *Telegram) submit(intents []outbound.Intent) {
	if len(intents) == 0 {
		return
	}
	if err := t.sink.Schedule(intents...); err != nil {
		log.Warnf("dropping %d intents: %v", len(intents), err)
	}
}

// SendText implements outbound.Transport.
func (t *Telegram) SendText(_ context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return errorx.E(errorx.TransportFailure, "telegram.send", fmt.Errorf("bad chat id %q", chatID))
	}
	if _, err := t.api.Send(&telebot.Chat{ID: id}, text); err != nil {
		return errorx.E(errorx.TransportFailure, "telegram.send", err)
	}
	return nil
}

// SendReaction implements outbound.Transport.
func (t *Telegram) SendReaction(_ context.Context, chatID, messageID, emoji string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return errorx.E(errorx.TransportFailure, "telegram.react", fmt.Errorf("bad chat id %q", chatID))
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return errorx.E(errorx.TransportFailure, "telegram.react", fmt.Errorf("bad message id %q", messageID))
	}

	params := map[string]interface{}{
		"chat_id":    id,
		"message_id": msgID,
		"reaction":   []map[string]string{{"type": "emoji", "emoji": emoji}},
	}
	if _, err := t.api.Raw("setMessageReaction", params); err != nil {
		return errorx.E(errorx.TransportFailure, "telegram.react", err)
	}
	return nil
}
