package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestActionMatches(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		ev     *tcell.EventKey
		want   bool
	}{
		{"rune", Action{Key: tcell.KeyRune, Rune: 'j'}, tcell.NewEventKey(tcell.KeyRune, 'j', tcell.ModNone), true},
		{"other rune", Action{Key: tcell.KeyRune, Rune: 'j'}, tcell.NewEventKey(tcell.KeyRune, 'k', tcell.ModNone), false},
		{"special key", Action{Key: tcell.KeyPgUp}, tcell.NewEventKey(tcell.KeyPgUp, 0, tcell.ModNone), true},
		{"modifier required", Action{Key: tcell.KeyUp, Mod: tcell.ModShift}, tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone), false},
		{"modifier present", Action{Key: tcell.KeyUp, Mod: tcell.ModShift}, tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModShift), true},
		{"modifier ignored", Action{Key: tcell.KeyUp}, tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModShift), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.action.Matches(tt.ev); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleEventPrefersScope(t *testing.T) {
	r := NewRegistry()
	var got []string
	r.Add(ScopeGlobal, &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = append(got, "quit") }})
	r.Add(ScopeGlobal, &Action{Key: tcell.KeyRune, Rune: 'v', Handler: func() { got = append(got, "global v") }})
	r.Add(ScopeMessages, &Action{Key: tcell.KeyRune, Rune: 'v', Handler: func() { got = append(got, "select") }})

	r.HandleEvent(ScopeMessages, tcell.NewEventKey(tcell.KeyRune, 'v', tcell.ModNone))
	r.HandleEvent(ScopeMessages, tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone))
	r.HandleEvent(ScopeGlobal, tcell.NewEventKey(tcell.KeyRune, 'v', tcell.ModNone))
	if r.HandleEvent(ScopeMessages, tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Error("HandleEvent(x) = true, want false")
	}

	want := []string{"select", "quit", "global v"}
	if len(got) != len(want) {
		t.Fatalf("handled %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("handled[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHandleEventRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var extended bool
	r.Add(ScopeSelection, &Action{Key: tcell.KeyDown, Mod: tcell.ModShift, Handler: func() { extended = true }})
	r.Add(ScopeSelection, &Action{Key: tcell.KeyDown, Handler: func() { extended = false }})

	r.HandleEvent(ScopeSelection, tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModShift))
	if !extended {
		t.Error("shift+down should hit the modified binding")
	}
	r.HandleEvent(ScopeSelection, tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone))
	if extended {
		t.Error("plain down should hit the plain binding")
	}
}

func TestHints(t *testing.T) {
	r := NewRegistry()
	r.Add(ScopeGlobal, &Action{Label: "?", Description: "help", Visible: true, Handler: func() {}})
	r.Add(ScopeMessages, &Action{Label: "j/k", Description: "scroll", Visible: true, Handler: func() {}})
	r.Add(ScopeMessages, &Action{Label: "j/k", Description: "scroll", Visible: true, Handler: func() {}})
	r.Add(ScopeMessages, &Action{Label: "x", Description: "hidden", Handler: func() {}})

	hints := r.Hints(ScopeMessages)
	if len(hints) != 2 {
		t.Fatalf("got %d hints, want 2: %+v", len(hints), hints)
	}
	if hints[0].Key != "j/k" || hints[1].Key != "?" {
		t.Errorf("hints = %+v, want scope first then global", hints)
	}
}
