package bot

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"menubot/internal/outbound"
)

type sinkFunc func(intents ...outbound.Intent) error

func (f sinkFunc) Schedule(intents ...outbound.Intent) error { return f(intents...) }

func TestConsoleFeedsDispatcher(t *testing.T) {
	f := newFixture(t, nil)

	input := strings.Join([]string{
		"new stock count: 7",
		"/react 1",
		"/as owner",
		".debug",
		"/quit",
		".menu",
	}, "\n")
	var out bytes.Buffer
	console := NewConsole(strings.NewReader(input), &out, "room", "g1")

	var got []outbound.Intent
	sink := sinkFunc(func(intents ...outbound.Intent) error {
		got = append(got, intents...)
		for _, in := range intents {
			if st, ok := in.(outbound.SendText); ok {
				console.SendText(context.Background(), st.ChatID, st.Text)
			}
		}
		return nil
	})

	if err := console.Run(context.Background(), f.d, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec, ok := f.tracker.Get("room_1")
	if !ok || rec.Count != 1 {
		t.Errorf("counter after /react = %+v, %v", rec, ok)
	}
	if !strings.Contains(out.String(), "DEBUG INFO") {
		t.Errorf("owner debug output missing:\n%s", out.String())
	}
	if strings.Contains(out.String(), "MAIN MENU") {
		t.Error("lines after /quit must not be processed")
	}
	if len(reactions(got)) != 1 {
		t.Errorf("reactions = %+v", reactions(got))
	}
}

func TestPersonaResponderIsStable(t *testing.T) {
	p := NewPersonaResponder()
	a, _ := p.Respond(context.Background(), "u1", "How do I cook rice?")
	b, _ := p.Respond(context.Background(), "u2", "how do i cook rice?")
	if a == "" || !strings.Contains(a, "How do I cook rice?") {
		t.Errorf("reply = %q", a)
	}
	if strings.ReplaceAll(strings.ToLower(a), "how do i cook rice?", "") != strings.ReplaceAll(strings.ToLower(b), "how do i cook rice?", "") {
		t.Errorf("same question should use the same template:\n%q\n%q", a, b)
	}
	if empty, _ := p.Respond(context.Background(), "u1", "   "); empty != "" {
		t.Errorf("blank input = %q", empty)
	}
}
