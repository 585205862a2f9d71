package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/sigtui/internal/images"
	"github.com/matheus3301/sigtui/internal/store"
	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"
)

// scrollStep is how many lines one wheel or j/k step moves.
const scrollStep = 3

// LineKind tells the renderer how to paint a Line.
type LineKind int

const (
	LineText LineKind = iota
	LineAttachment
	LineImage
)

// Line is one screen row of a message. Text lines already fit the width.
// Image lines carry the attachment path and which cell row of the image
// they show.
type Line struct {
	Kind  LineKind
	Text  string
	Image string
	Row   int
}

// Item is a message placed on screen. Lines holds only the rows that are
// visible; Skip counts rows cut off above the viewport.
type Item struct {
	Index    int
	Message  *store.Message
	Y        int
	Skip     int
	Height   int
	Lines    []Line
	Selected bool
}

// Frame is everything the renderer needs for one draw of the timeline.
type Frame struct {
	Items         []Item
	Width         int
	Height        int
	TotalHeight   int
	ScrollOffset  int
	ScrollPercent int
	VisibleRange  *Range
	Selection     *Range
	// Requested lists image paths first queued for decoding by this frame.
	Requested []string
}

// IndexAt returns the message index drawn on viewport row y. Rows below the
// last message map to the newest one on screen, rows above the first to the
// oldest.
func (f Frame) IndexAt(y int) (int, bool) {
	if len(f.Items) == 0 {
		return 0, false
	}
	if y < 0 {
		return f.Items[0].Index, true
	}
	for _, it := range f.Items {
		if y >= it.Y && y < it.Y+len(it.Lines) {
			return it.Index, true
		}
	}
	return f.Items[len(f.Items)-1].Index, true
}

// Layout resolves the selected view's scroll offset into a frame for a
// viewport of width x height cells.
func (e *Engine) Layout(width, height int) Frame {
	e.width, e.height = width, height
	f := Frame{Width: width, Height: height, ScrollPercent: 100}
	v := e.Selected()
	if v == nil || !v.loaded || width <= 0 || height <= 0 {
		return f
	}

	lines := make([][]Line, len(v.messages))
	total := 0
	for i := range v.messages {
		lines[i] = e.messageLines(&v.messages[i], width)
		total += len(lines[i])
	}
	f.TotalHeight = total
	v.ScrollOffset = clampOffset(v.ScrollOffset, total, height)
	f.ScrollOffset = v.ScrollOffset
	if maxScroll := total - height; maxScroll > 0 {
		f.ScrollPercent = 100 - v.ScrollOffset*100/maxScroll
	}

	targetBottom := total - v.ScrollOffset
	targetTop := max(0, targetBottom-height)

	start, skip, running := -1, 0, 0
	for i, l := range lines {
		if running+len(l) > targetTop {
			start = i
			skip = targetTop - running
			break
		}
		running += len(l)
	}
	if start < 0 {
		v.VisibleRange = nil
		return f
	}

	var sel *Range
	if v.Selection != nil {
		lo, hi := v.Selection.Bounds()
		sel = &Range{Start: lo, End: hi}
		f.Selection = sel
	}

	y, end := 0, start
	var paths []string
	for i := start; i < len(v.messages) && y < height; i++ {
		s := 0
		if i == start {
			s = skip
		}
		n := min(len(lines[i])-s, height-y)
		f.Items = append(f.Items, Item{
			Index:    i,
			Message:  &v.messages[i],
			Y:        y,
			Skip:     s,
			Height:   len(lines[i]),
			Lines:    lines[i][s : s+n],
			Selected: sel != nil && i >= sel.Start && i <= sel.End,
		})
		paths = append(paths, store.ImagePaths(v.messages[i].Content)...)
		y += n
		end = i
	}
	v.VisibleRange = &Range{Start: start, End: end}
	f.VisibleRange = &Range{Start: start, End: end}
	f.Requested = e.requestImages(paths)
	return f
}

func clampOffset(offset, total, viewport int) int {
	return max(0, min(offset, max(0, total-viewport)))
}

// clamp re-applies the offset bounds using the last laid out viewport.
// Until a viewport is known nothing is on screen and the offset stays at
// the bottom.
func (e *Engine) clamp(v *ConversationView) {
	if e.width <= 0 || e.height <= 0 || !v.loaded {
		v.ScrollOffset = 0
		return
	}
	v.ScrollOffset = clampOffset(v.ScrollOffset, e.totalHeight(v), e.height)
}

func (e *Engine) totalHeight(v *ConversationView) int {
	total := 0
	for i := range v.messages {
		total += e.messageHeight(&v.messages[i])
	}
	return total
}

func (e *Engine) messageHeight(m *store.Message) int {
	return len(e.messageLines(m, e.width))
}

// ScrollLines moves the viewport by delta lines; positive is toward older
// messages. Scrolling up also pages in the next older batch when there is
// one, before the top is reached.
func (e *Engine) ScrollLines(delta int) {
	v := e.Selected()
	if v == nil {
		return
	}
	v.ScrollOffset = max(0, v.ScrollOffset+delta)
	if delta > 0 && v.HasMore {
		e.loadOlder(v)
	}
	e.clamp(v)
}

// ScrollUp moves one step toward older messages.
func (e *Engine) ScrollUp() { e.ScrollLines(scrollStep) }

// ScrollDown moves one step toward newer messages.
func (e *Engine) ScrollDown() { e.ScrollLines(-scrollStep) }

// ScrollToTop pages in one more batch and jumps to the oldest loaded line.
func (e *Engine) ScrollToTop() {
	v := e.Selected()
	if v == nil {
		return
	}
	if v.HasMore {
		e.loadOlder(v)
	}
	v.ScrollOffset = e.totalHeight(v)
	e.clamp(v)
}

// ScrollToBottom jumps to the newest message.
func (e *Engine) ScrollToBottom() {
	if v := e.Selected(); v != nil {
		v.ScrollOffset = 0
	}
}

func (e *Engine) loadOlder(v *ConversationView) {
	paths, err := v.LoadOlder(e.store)
	if err != nil {
		e.logger.Warn("load older failed", zap.String("conversation", v.ID()), zap.Error(err))
		return
	}
	e.requestImages(paths)
}

// followCursor scrolls so the selection cursor's lines are on screen.
func (e *Engine) followCursor(v *ConversationView) {
	if v.Selection == nil || e.width <= 0 || e.height <= 0 {
		return
	}
	total, top, bottom := 0, 0, 0
	for i := range v.messages {
		h := e.messageHeight(&v.messages[i])
		if i == v.Selection.Cursor {
			top, bottom = total, total+h
		}
		total += h
	}
	targetBottom := total - v.ScrollOffset
	targetTop := targetBottom - e.height
	if bottom > targetBottom {
		v.ScrollOffset = total - bottom
	}
	if top < targetTop {
		v.ScrollOffset = total - (top + e.height)
	}
	v.ScrollOffset = clampOffset(v.ScrollOffset, total, e.height)
}

// messageLines renders a message into rows of at most width cells.
func (e *Engine) messageLines(m *store.Message, width int) []Line {
	if width <= 0 {
		width = 1
	}
	prefix := Prefix(m)
	switch c := m.Content.(type) {
	case store.Attachments:
		if len(c.Items) == 0 {
			return []Line{{Kind: LineText, Text: runewidth.Truncate(prefix, width, "")}}
		}
		indent := strings.Repeat(" ", runewidth.StringWidth(prefix))
		var out []Line
		for i, a := range c.Items {
			lead := indent
			if i == 0 {
				lead = prefix
			}
			header := lead + "📎 " + a.DisplayName() + sizeLabel(a.Size)
			if i == len(c.Items)-1 {
				header += decorations(m)
			}
			out = append(out, Line{Kind: LineAttachment, Text: runewidth.Truncate(header, width, "…")})
			if !a.IsImage() {
				continue
			}
			h := images.PlaceholderHeight
			if e.images != nil {
				h = e.images.Height(a.LocalPath)
			}
			for r := 0; r < h; r++ {
				out = append(out, Line{Kind: LineImage, Image: a.LocalPath, Row: r})
			}
		}
		return out
	case store.Text:
		return wrapLines(prefix, c.Body+decorations(m), width)
	case store.Sticker:
		return wrapLines(prefix, "[Sticker]"+decorations(m), width)
	case store.RemoteDeleted:
		return wrapLines(prefix, "[Message deleted]", width)
	}
	return wrapLines(prefix, "", width)
}

// Prefix is the "[time] sender: " label leading a message's first line.
func Prefix(m *store.Message) string {
	sender := "Unknown"
	switch {
	case m.IsOutgoing:
		sender = "You"
	case m.SenderName != "":
		sender = m.SenderName
	}
	return "[" + FormatTimestamp(m.Timestamp) + "] " + sender + ": "
}

// FormatTimestamp renders ms as a clock time for today and a date otherwise.
// Both forms are five cells wide.
func FormatTimestamp(ms int64) string {
	if ms == 0 {
		return "--:--"
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// decorations appends edit, reaction and delivery markers.
func decorations(m *store.Message) string {
	var b strings.Builder
	if m.IsEdited {
		b.WriteString(" (edited)")
	}
	if len(m.Reactions) > 0 {
		b.WriteString(" ")
		for _, r := range m.Reactions {
			b.WriteString(r.Emoji)
		}
	}
	if m.IsOutgoing {
		switch m.Delivery {
		case store.DeliverySent:
			b.WriteString(" ✓")
		case store.DeliveryDelivered:
			b.WriteString(" ✓✓")
		case store.DeliveryRead, store.DeliveryViewed:
			b.WriteString(" ✓✓ read")
		}
	}
	return b.String()
}

func sizeLabel(n int64) string {
	switch {
	case n <= 0:
		return ""
	case n < 1024:
		return fmt.Sprintf(" (%d B)", n)
	case n < 1024*1024:
		return fmt.Sprintf(" (%.1f KB)", float64(n)/1024)
	}
	return fmt.Sprintf(" (%.1f MB)", float64(n)/(1024*1024))
}

// wrapLines hard-wraps prefix+text at width cells. Embedded newlines start a
// new row; only the first row carries the prefix. For text of single-width
// runes this yields ceil((len(prefix)+len(text))/width) rows per paragraph.
func wrapLines(prefix, text string, width int) []Line {
	var out []Line
	for i, para := range strings.Split(text, "\n") {
		if i == 0 {
			para = prefix + para
		}
		for _, row := range wrapCells(para, width) {
			out = append(out, Line{Kind: LineText, Text: row})
		}
	}
	return out
}

func wrapCells(s string, width int) []string {
	if s == "" {
		return []string{""}
	}
	var rows []string
	var b strings.Builder
	cur := 0
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if cur+w > width && cur > 0 {
			rows = append(rows, b.String())
			b.Reset()
			cur = 0
		}
		b.WriteRune(r)
		cur += w
	}
	return append(rows, b.String())
}

// maxImageWidthFor is the preview width to request for a viewport.
func maxImageWidthFor(viewport, limit int) int {
	if viewport <= 0 {
		return limit
	}
	return min(viewport, limit, images.MaxWidth)
}
