package views

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/matheus3301/sigtui/internal/tui/ui"
	"github.com/rivo/tview"
)

// LinkView shows the device link QR code.
type LinkView struct {
	*tview.Flex
	body  *tview.TextView
	theme *ui.Theme
}

// NewLinkView creates a new link view.
func NewLinkView(theme *ui.Theme) *LinkView {
	body := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	body.SetBackgroundColor(theme.BgColor)
	body.SetTextColor(theme.FgColor)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.NewLogo(theme), ui.LogoHeight, 0, false).
		AddItem(body, 0, 1, false)
	flex.SetBorder(true)
	flex.SetBorderColor(theme.BorderColor)
	flex.SetBackgroundColor(theme.BgColor)
	flex.SetTitle(" Link Device ")
	flex.SetTitleColor(theme.TitleColor)

	return &LinkView{Flex: flex, body: body, theme: theme}
}

// ShowQR renders the device link URI as a scannable block.
func (lv *LinkView) ShowQR(uri string) {
	lv.body.Clear()
	_, _ = fmt.Fprintf(lv.body,
		"\nOn your phone open Signal > Settings > Linked devices and scan:\n\n%s\n[::d]Waiting for the phone to confirm... (q to cancel)",
		renderQR(uri))
}

// ShowMessage displays a status message.
func (lv *LinkView) ShowMessage(msg string) {
	lv.body.Clear()
	_, _ = fmt.Fprintf(lv.body, "\n\n%s", tview.Escape(msg))
}

// Text returns what the view currently shows, without color tags.
func (lv *LinkView) Text() string {
	return lv.body.GetText(true)
}

// renderQR draws a QR code with half-block characters, two modules per cell.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "(QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
