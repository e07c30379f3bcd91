package bot

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

// Responder answers free text while a session is in chat mode.
type Responder interface {
	Respond(ctx context.Context, userID, text string) (string, error)
}

// PersonaResponder imitates an AI assistant with canned templates. The same
// question always gets the same template.
type PersonaResponder struct {
	templates []string
}

// NewPersonaResponder creates the default chat-mode responder.
func NewPersonaResponder() *PersonaResponder {
	return &PersonaResponder{templates: []string{
		"🤖 Great question! When it comes to %q, the key is to break it into smaller steps and tackle them one at a time.",
		"🤖 As an AI assistant, I'd say %q depends on context. Could you tell me a bit more?",
		"🤖 Interesting! Many people ask about %q. The short answer: it's complicated, but worth exploring.",
		"🤖 Let me think about %q... I'd start with the basics and build up from there.",
		"🤖 Thanks for asking about %q! Here's a tip: stay curious and keep experimenting.",
	}}
}

// Respond picks a template for text.
func (p *PersonaResponder) Respond(_ context.Context, _ string, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(text)))
	tpl := p.templates[int(h.Sum32()%uint32(len(p.templates)))]
	return fmt.Sprintf(tpl, text), nil
}
