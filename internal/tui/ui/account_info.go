package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// AccountData holds account information for display.
type AccountData struct {
	Account       string
	Status        string
	Conversations int64
	Messages      int64
	Uptime        time.Duration
}

// AccountInfo renders account metadata in the info view.
type AccountInfo struct {
	*tview.TextView
	theme *Theme
}

// NewAccountInfo creates a new account info panel.
func NewAccountInfo(theme *Theme) *AccountInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &AccountInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the account info.
func (ai *AccountInfo) Update(data *AccountData) {
	ai.Clear()
	if data == nil {
		return
	}

	fg := ColorTag(ai.theme.FgColor)
	ct := ColorTag(ai.theme.CounterColor)

	_, _ = fmt.Fprintf(ai,
		"[%s::b]Account:[-:-:-]       [%s]%s[-]\n"+
			"[%s::b]Status:[-:-:-]        [%s]%s[-]\n"+
			"[%s::b]Conversations:[-:-:-] [%s]%d[-]\n"+
			"[%s::b]Messages:[-:-:-]      [%s]%d[-]\n"+
			"[%s::b]Uptime:[-:-:-]        [%s]%s[-]",
		fg, ct, data.Account,
		fg, ct, data.Status,
		fg, ct, data.Conversations,
		fg, ct, data.Messages,
		fg, ct, FormatDuration(data.Uptime),
	)
}

// FormatDuration renders d as hours and minutes.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
