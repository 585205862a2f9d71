package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/sigtui/internal/engine"
	"github.com/matheus3301/sigtui/internal/images"
	"github.com/matheus3301/sigtui/internal/tui/ui"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/tview"
)

// Timeline draws the selected conversation. It holds no message state; every
// draw asks the layout callback for a frame sized to the inner rect.
type Timeline struct {
	*tview.Box
	theme    *ui.Theme
	layout   func(width, height int) engine.Frame
	image    func(path string) (images.Entry, bool)
	onScroll func(lines int)
	onFrame  func(f engine.Frame)
	onSelect func(index int, extend bool)
	title    string
	last     engine.Frame
	dragging bool
}

// NewTimeline creates the message pane.
func NewTimeline(theme *ui.Theme) *Timeline {
	box := tview.NewBox()
	box.SetBorder(true)
	box.SetBorderColor(theme.BorderColor)
	box.SetBackgroundColor(theme.BgColor)
	box.SetTitleColor(theme.TitleColor)
	box.SetTitle(" Messages ")
	return &Timeline{Box: box, theme: theme}
}

// SetLayoutFunc sets the frame source.
func (t *Timeline) SetLayoutFunc(fn func(width, height int) engine.Frame) {
	t.layout = fn
}

// SetImageFunc sets the image cache lookup.
func (t *Timeline) SetImageFunc(fn func(path string) (images.Entry, bool)) {
	t.image = fn
}

// SetOnScroll sets the mouse wheel callback; positive lines scroll to older messages.
func (t *Timeline) SetOnScroll(fn func(lines int)) {
	t.onScroll = fn
}

// SetOnFrame sets a callback run with every frame drawn.
func (t *Timeline) SetOnFrame(fn func(f engine.Frame)) {
	t.onFrame = fn
}

// SetOnSelect sets the callback for clicks on a message. extend is set while
// the left button is dragged.
func (t *Timeline) SetOnSelect(fn func(index int, extend bool)) {
	t.onSelect = fn
}

// SetConversation sets the title shown above the messages.
func (t *Timeline) SetConversation(name string) {
	t.title = name
}

// LastFrame returns the frame of the most recent draw.
func (t *Timeline) LastFrame() engine.Frame {
	return t.last
}

// Draw implements tview.Primitive.
func (t *Timeline) Draw(screen tcell.Screen) {
	x, y, width, height := t.GetInnerRect()
	var f engine.Frame
	if t.layout != nil && width > 0 && height > 0 {
		f = t.layout(width, height)
	}
	t.last = f
	if t.onFrame != nil {
		t.onFrame(f)
	}
	t.updateTitle(f)
	t.Box.DrawForSubclass(screen, t)

	if len(f.Items) == 0 {
		if t.title == "" {
			drawText(screen, x+1, y, width-1, "Select a conversation", tcell.StyleDefault.Foreground(t.theme.MutedColor).Background(t.theme.BgColor))
		}
		return
	}
	for _, item := range f.Items {
		style := tcell.StyleDefault.Background(t.theme.BgColor).Foreground(t.theme.IncomingColor)
		if item.Message.IsOutgoing {
			style = style.Foreground(t.theme.OutgoingColor)
		}
		if item.Selected {
			style = style.Background(t.theme.SelectionBg)
			for row := range item.Lines {
				fill(screen, x, y+item.Y+row, width, style)
			}
		}
		for row, line := range item.Lines {
			ly := y + item.Y + row
			switch line.Kind {
			case engine.LineText:
				drawText(screen, x, ly, width, line.Text, style)
			case engine.LineAttachment:
				drawText(screen, x, ly, width, line.Text, style.Foreground(t.theme.AttachmentColor))
			case engine.LineImage:
				t.drawImageRow(screen, x, ly, width, line, style)
			}
		}
	}
}

func (t *Timeline) updateTitle(f engine.Frame) {
	if t.title == "" {
		t.SetTitle(" Messages ")
		return
	}
	title := " " + tview.Escape(sanitizeForTerminal(t.title))
	if f.TotalHeight > f.Height {
		title += fmt.Sprintf(" %d%%", f.ScrollPercent)
	}
	if f.Selection != nil {
		title += fmt.Sprintf(" [%d selected]", f.Selection.End-f.Selection.Start+1)
	}
	t.SetTitle(title + " ")
}

// drawImageRow paints one cell row of an image. Each cell shows two pixels:
// the upper half block takes the top pixel as foreground and the bottom
// pixel as background.
func (t *Timeline) drawImageRow(screen tcell.Screen, x, y, width int, line engine.Line, style tcell.Style) {
	const indent = 2
	var entry images.Entry
	var ok bool
	if t.image != nil {
		entry, ok = t.image(line.Image)
	}
	muted := style.Foreground(t.theme.MutedColor)
	switch {
	case !ok:
		if line.Row == 0 {
			drawText(screen, x+indent, y, width-indent, "[image]", muted)
		}
		return
	case entry.State == images.Loading:
		if line.Row == 0 {
			drawText(screen, x+indent, y, width-indent, "[loading image…]", muted)
		}
		return
	case entry.State == images.Failed || entry.Raster == nil:
		if line.Row == 0 {
			drawText(screen, x+indent, y, width-indent, "[image unavailable]", muted)
		}
		return
	}
	top, bottom := 2*line.Row, 2*line.Row+1
	b := entry.Raster.Bounds()
	for cx := 0; cx < entry.Width && cx < width-indent; cx++ {
		px := b.Min.X + cx
		if px >= b.Max.X || b.Min.Y+top >= b.Max.Y {
			break
		}
		fg := rgb(entry, px, b.Min.Y+top)
		bg := t.theme.BgColor
		if b.Min.Y+bottom < b.Max.Y {
			bg = rgb(entry, px, b.Min.Y+bottom)
		}
		screen.SetContent(x+indent+cx, y, '▀', nil, tcell.StyleDefault.Foreground(fg).Background(bg))
	}
}

func rgb(e images.Entry, x, y int) tcell.Color {
	c := e.Raster.RGBAAt(x, y)
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

// MouseHandler scrolls on the wheel. A left press selects the message under
// the pointer and dragging extends the selection.
func (t *Timeline) MouseHandler() func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (consumed bool, capture tview.Primitive) {
	return t.WrapMouseHandler(func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (bool, tview.Primitive) {
		_, y := event.Position()
		if t.dragging {
			switch action {
			case tview.MouseMove:
				if event.Buttons()&tcell.Button1 != 0 {
					t.pick(y, true)
				}
				return true, t
			case tview.MouseLeftUp:
				t.dragging = false
				return true, nil
			}
		}
		if !t.InRect(event.Position()) {
			return false, nil
		}
		switch action {
		case tview.MouseScrollUp:
			if t.onScroll != nil {
				t.onScroll(1)
			}
			return true, nil
		case tview.MouseScrollDown:
			if t.onScroll != nil {
				t.onScroll(-1)
			}
			return true, nil
		case tview.MouseLeftDown:
			setFocus(t)
			t.dragging = t.pick(y, false)
			if t.dragging {
				return true, t
			}
			return true, nil
		case tview.MouseLeftClick:
			setFocus(t)
			return true, nil
		}
		return false, nil
	})
}

// pick maps screen row y to a message through the last frame.
func (t *Timeline) pick(y int, extend bool) bool {
	_, top, _, _ := t.GetInnerRect()
	idx, ok := t.last.IndexAt(y - top)
	if !ok || t.onSelect == nil {
		return false
	}
	t.onSelect(idx, extend)
	return true
}

// drawText prints s from x, clipped to width cells. Zero-width runes are
// skipped so every rune occupies the cells runewidth reports.
func drawText(screen tcell.Screen, x, y, width int, s string, style tcell.Style) {
	col := 0
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if col+w > width {
			return
		}
		screen.SetContent(x+col, y, r, nil, style)
		col += w
	}
}

func fill(screen tcell.Screen, x, y, width int, style tcell.Style) {
	for i := 0; i < width; i++ {
		screen.SetContent(x+i, y, ' ', nil, style)
	}
}
