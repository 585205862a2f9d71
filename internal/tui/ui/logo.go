package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

const logoArt = ` ┏━┓╻┏━╸╺┳╸╻ ╻╻
 ┗━┓┃┃╺┓ ┃ ┃ ┃┃
 ┗━┛╹┗━┛ ╹ ┗━┛╹`

// Logo displays a compact logo above the link and help views.
type Logo struct {
	*tview.TextView
	theme *Theme
}

// NewLogo creates a new logo component.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBackgroundColor(theme.BgColor)

	l := &Logo{
		TextView: tv,
		theme:    theme,
	}
	_, _ = fmt.Fprintf(l, "[%s::b]%s[-:-:-]\n[%s]Signal in the terminal[-:-:-]",
		ColorTag(theme.TitleColor), logoArt, ColorTag(theme.FgColor))
	return l
}

// LogoHeight is the number of rows the logo needs.
const LogoHeight = 4
