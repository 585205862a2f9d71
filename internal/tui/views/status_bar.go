package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/sigtui/internal/status"
	"github.com/matheus3301/sigtui/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar is the one-line strip under the panes: account, connection
// state, input mode, scroll position and the current flash.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	flash   *ui.FlashModel
	account string
	state   status.State
	mode    string
	scroll  int
	now     func() time.Time
}

// NewStatusBar creates a new status bar reading flashes from flash.
func NewStatusBar(theme *ui.Theme, flash *ui.FlashModel) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{
		TextView: tv,
		theme:    theme,
		flash:    flash,
		state:    status.Starting,
		scroll:   -1,
		now:      time.Now,
	}
}

// SetAccount sets the account shown on the left.
func (sb *StatusBar) SetAccount(account string) { sb.account = account }

// SetState sets the connection state.
func (sb *StatusBar) SetState(s status.State) { sb.state = s }

// SetMode sets the input mode label, e.g. NORMAL or VISUAL.
func (sb *StatusBar) SetMode(mode string) { sb.mode = mode }

// SetScroll sets the scroll percentage; negative hides it.
func (sb *StatusBar) SetScroll(percent int) { sb.scroll = percent }

// Refresh re-renders the bar. Call it after any setter and on the clock tick.
func (sb *StatusBar) Refresh() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.Text())
}

// Text returns the rendered line with color tags.
func (sb *StatusBar) Text() string {
	stateColor := ui.ColorTag(sb.theme.FlashInfoColor)
	switch sb.state {
	case status.Disconnected:
		stateColor = ui.ColorTag(sb.theme.FlashWarnColor)
	case status.Error:
		stateColor = ui.ColorTag(sb.theme.FlashErrColor)
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-]", tview.Escape(sb.account), stateColor, sb.state.Label())
	if sb.mode != "" {
		line += " | " + sb.mode
	}
	if sb.scroll >= 0 {
		line += fmt.Sprintf(" | %d%%", sb.scroll)
	}
	line += " | " + sb.now().Format("15:04")
	if sb.flash != nil {
		if msg := sb.flash.Current(); msg != nil {
			line += fmt.Sprintf(" | [%s]%s[-]", msg.Level.Color(sb.theme), tview.Escape(sanitizeForTerminal(msg.Text)))
		}
	}
	return line
}
