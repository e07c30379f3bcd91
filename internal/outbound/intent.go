// Package outbound delivers the replies produced by the dispatcher. Sends are
// delayed by a random jitter and kept in scheduling order per chat.
package outbound

import (
	"context"
	"time"
)

// Transport is the messaging provider the scheduler delivers to.
type Transport interface {
	SendText(ctx context.Context, chatID, text string) error
	SendReaction(ctx context.Context, chatID, messageID, emoji string) error
}

// Intent is something the dispatcher wants sent. It is one of SendText or
// SendReaction.
type Intent interface {
	Chat() string
	window() (time.Duration, time.Duration)
	deliver(ctx context.Context, t Transport) error
}

// SendText posts text to a chat after a delay drawn from [MinDelay, MaxDelay].
type SendText struct {
	ChatID   string
	Text     string
	MinDelay time.Duration
	MaxDelay time.Duration
}

func (s SendText) Chat() string { return s.ChatID }

func (s SendText) window() (time.Duration, time.Duration) { return s.MinDelay, s.MaxDelay }

func (s SendText) deliver(ctx context.Context, t Transport) error {
	return t.SendText(ctx, s.ChatID, s.Text)
}

// SendReaction puts an emoji reaction on a message. It is not delayed.
type SendReaction struct {
	ChatID    string
	MessageID string
	Emoji     string
}

func (s SendReaction) Chat() string { return s.ChatID }

func (s SendReaction) window() (time.Duration, time.Duration) { return 0, 0 }

func (s SendReaction) deliver(ctx context.Context, t Transport) error {
	return t.SendReaction(ctx, s.ChatID, s.MessageID, s.Emoji)
}

// Text is a shorthand for a SendText with the given jitter window.
func Text(chatID, text string, minDelay, maxDelay time.Duration) SendText {
	return SendText{ChatID: chatID, Text: text, MinDelay: minDelay, MaxDelay: maxDelay}
}

// Reaction is a shorthand for a SendReaction.
func Reaction(chatID, messageID, emoji string) SendReaction {
	return SendReaction{ChatID: chatID, MessageID: messageID, Emoji: emoji}
}
