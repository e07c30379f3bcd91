package bot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"menubot/internal/outbound"
)

// Console drives the dispatcher from a line-oriented stream. Every line is a
// message from one user in one chat, except:
//
//	/react <id> [emoji]   add a reaction to message <id>
//	/unreact <id>         remove a reaction from message <id>
//	/as <user>            switch the sending user
//	/quit                 stop
type Console struct {
	in     io.Reader
	out    io.Writer
	chatID string
	userID string

	mu     sync.Mutex
	nextID int
}

// NewConsole creates a console chatting as userID in chatID.
func NewConsole(in io.Reader, out io.Writer, chatID, userID string) *Console {
	return &Console{in: in, out: out, chatID: chatID, userID: userID}
}

// Run reads lines until EOF, /quit or ctx ends.
func (c *Console) Run(ctx context.Context, d *Dispatcher, sink Sink) error {
	scanner := bufio.NewScanner(c.in)
	c.prompt()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit", "/exit":
			return nil
		case "/as":
			if len(fields) > 1 {
				c.userID = fields[1]
				c.printf("now chatting as %s\n", c.userID)
			}
		case "/react", "/unreact":
			if len(fields) < 2 {
				c.printf("usage: %s <message id> [emoji]\n", fields[0])
				break
			}
			ev := ReactionEvent{ChatID: c.chatID, MessageID: fields[1], ReactorID: c.userID}
			if fields[0] == "/react" {
				ev.Reaction = "👍"
				if len(fields) > 2 {
					ev.Reaction = fields[2]
				}
			}
			c.submit(sink, d.HandleReaction(ctx, ev))
		default:
			id := c.newMessageID()
			c.printf("(message %s)\n", id)
			c.submit(sink, d.HandleMessage(ctx, MessageEvent{
				SenderID:  c.userID,
				ChatID:    c.chatID,
				MessageID: id,
				Text:      line,
			}))
		}
		c.prompt()
	}
	return scanner.Err()
}

func (c *Console) submit(sink Sink, intents []outbound.Intent) {
	if len(intents) == 0 {
		return
	}
	if err := sink.Schedule(intents...); err != nil {
		c.printf("⚠️ %v\n", err)
	}
}

// SendText implements outbound.Transport.
func (c *Console) SendText(_ context.Context, chatID, text string) error {
	c.printf("\n[%s] %s\n", chatID, text)
	return nil
}

// SendReaction implements outbound.Transport.
func (c *Console) SendReaction(_ context.Context, chatID, messageID, emoji string) error {
	c.printf("\n[%s] %s on message %s\n", chatID, emoji, messageID)
	return nil
}

func (c *Console) newMessageID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return strconv.Itoa(c.nextID)
}

func (c *Console) prompt() {
	c.printf("%s> ", c.userID)
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
