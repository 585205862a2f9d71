package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
}

// Menu displays the key hints of the focused pane on one line.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders menu hints.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	keyColor := ColorTag(m.theme.MenuKeyColor)
	fg := ColorTag(m.theme.FgColor)
	for _, h := range hints {
		_, _ = fmt.Fprintf(m, " [%s::b]<%s>[-:-:-][%s]%s[-]", keyColor, tview.Escape(h.Key), fg, h.Description)
	}
}
