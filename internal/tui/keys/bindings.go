package keys

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/sigtui/internal/tui/ui"
)

// Scopes a binding can belong to. Global bindings apply when the focused
// scope has no match.
const (
	ScopeGlobal        = "global"
	ScopeConversations = "conversations"
	ScopeMessages      = "messages"
	ScopeSelection     = "selection"
	ScopeInput         = "input"
)

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Mod         tcell.ModMask // required modifiers; zero ignores them
	Label       string        // key as shown in hints, e.g. "j/k"
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Mod != 0 && ev.Modifiers()&a.Mod != a.Mod {
		return false
	}
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings organized by scope. Bindings are matched in
// registration order, so a modified key must be added before its plain form.
type Registry struct {
	scopes map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Action)}
}

// Add registers a keybinding in scope.
func (r *Registry) Add(scope string, action *Action) {
	r.scopes[scope] = append(r.scopes[scope], action)
}

// Actions returns the bindings of scope in registration order.
func (r *Registry) Actions(scope string) []*Action {
	return r.scopes[scope]
}

// Hints returns visible keybindings for scope followed by global ones.
func (r *Registry) Hints(scope string) []ui.MenuHint {
	var hints []ui.MenuHint
	seen := make(map[string]bool)
	for _, s := range lookupOrder(scope) {
		for _, a := range r.scopes[s] {
			if !a.Visible || seen[a.Label] {
				continue
			}
			seen[a.Label] = true
			hints = append(hints, ui.MenuHint{Key: a.Label, Description: a.Description})
		}
	}
	return hints
}

// HandleEvent dispatches a key event to the first matching action in scope,
// then in the global scope. Returns true if a handler matched.
func (r *Registry) HandleEvent(scope string, ev *tcell.EventKey) bool {
	for _, s := range lookupOrder(scope) {
		for _, a := range r.scopes[s] {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
	}
	return false
}

func lookupOrder(scope string) []string {
	if scope == ScopeGlobal {
		return []string{ScopeGlobal}
	}
	return []string{scope, ScopeGlobal}
}
