package views

import (
	"fmt"

	"github.com/matheus3301/sigtui/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpSection is one titled block of key hints.
type HelpSection struct {
	Title string
	Hints []ui.MenuHint
}

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	return &HelpView{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the sections, one hint per line.
func (hv *HelpView) Update(sections []HelpSection) {
	hv.Clear()
	kc := ui.ColorTag(hv.theme.MenuKeyColor)
	for _, s := range sections {
		_, _ = fmt.Fprintf(hv, "\n  [::b]%s[-:-:-]\n\n", s.Title)
		for _, h := range s.Hints {
			_, _ = fmt.Fprintf(hv, "  [%s]%-14s[-:-:-] %s\n", kc, tview.Escape(h.Key), h.Description)
		}
	}
	hv.ScrollToBeginning()
}
