package views

import (
	"fmt"

	"github.com/matheus3301/sigtui/internal/engine"
	"github.com/matheus3301/sigtui/internal/store"
	"github.com/matheus3301/sigtui/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays detailed information about a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders conversation details.
func (ci *ConversationInfo) Update(v *engine.ConversationView) {
	ci.Clear()
	if v == nil {
		ci.SetTitle(" Conversation Details ")
		return
	}
	c := v.Conversation

	fg := ui.ColorTag(ci.theme.FgColor)
	ct := ui.ColorTag(ci.theme.CounterColor)

	kind := "Direct"
	if c.Kind == store.KindGroup {
		kind = "Group"
	}
	lastActive := engine.FormatTimestamp(c.LastMessageTimestamp)
	if lastActive == "" {
		lastActive = "-"
	}
	row := func(label, value string) {
		_, _ = fmt.Fprintf(ci, " [%s::b]%-14s[-:-:-] [%s]%s[-]\n", fg, label+":", ct, tview.Escape(value))
	}

	_, _ = fmt.Fprintln(ci)
	row("Name", sanitizeForTerminal(c.DisplayName()))
	row("Identifier", c.Identifier())
	row("Type", kind)
	row("Unread", fmt.Sprint(c.UnreadCount))
	row("Last active", lastActive)
	row("Loaded", fmt.Sprintf("%d messages", len(v.Messages())))
	row("Last message", Preview(v))

	ci.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(c.DisplayName()))))
}
