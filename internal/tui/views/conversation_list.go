package views

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/sigtui/internal/engine"
	"github.com/matheus3301/sigtui/internal/images"
	"github.com/matheus3301/sigtui/internal/store"
	"github.com/matheus3301/sigtui/internal/tui/ui"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/tview"
)

const nameWidth = 18

// ConversationList is the conversation column. Rows follow the engine's
// order; a filter hides rows whose name and preview do not match. With an
// avatar source each row starts with the conversation's picture, or its
// initial while there is none.
type ConversationList struct {
	*tview.Table
	theme    *ui.Theme
	convs    []*engine.ConversationView
	visible  []string
	rows     []*engine.ConversationView
	filter   string
	updating bool
	onSelect func(id string)
	avatar   func(v *engine.ConversationView) (images.Entry, bool)
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	cl := &ConversationList{
		Table: table,
		theme: theme,
	}
	table.SetSelectionChangedFunc(func(row, _ int) {
		if cl.updating || cl.onSelect == nil || row < 0 || row >= len(cl.visible) {
			return
		}
		cl.onSelect(cl.visible[row])
	})
	return cl
}

// SetOnSelect sets the callback fired when the cursor lands on a conversation.
func (cl *ConversationList) SetOnSelect(fn func(id string)) {
	cl.onSelect = fn
}

// SetAvatarFunc sets the picture lookup and turns the avatar column on.
func (cl *ConversationList) SetAvatarFunc(fn func(v *engine.ConversationView) (images.Entry, bool)) {
	cl.avatar = fn
	cl.render(cl.SelectedID())
}

// Update re-renders the list and puts the cursor on selectedID when visible.
func (cl *ConversationList) Update(convs []*engine.ConversationView, selectedID string) {
	cl.convs = convs
	cl.render(selectedID)
}

// SetFilter sets the active filter text and re-renders. It returns the
// conversation the cursor ended on, which differs from selectedID when the
// filter hid it.
func (cl *ConversationList) SetFilter(filter, selectedID string) string {
	cl.filter = filter
	cl.render(selectedID)
	return cl.SelectedID()
}

// Filter returns the active filter text.
func (cl *ConversationList) Filter() string {
	return cl.filter
}

// Visible returns the ids of the rows currently shown.
func (cl *ConversationList) Visible() []string {
	return cl.visible
}

// SelectedID returns the id under the cursor, or "".
func (cl *ConversationList) SelectedID() string {
	row, _ := cl.GetSelection()
	if row < 0 || row >= len(cl.visible) {
		return ""
	}
	return cl.visible[row]
}

func (cl *ConversationList) render(selectedID string) {
	cl.updating = true
	defer func() { cl.updating = false }()

	cl.Clear()
	cl.visible = cl.visible[:0]
	cl.rows = cl.rows[:0]
	cursor := 0
	col := 0
	if cl.avatar != nil {
		col = 1
	}
	for _, v := range cl.convs {
		if !matchesFilter(v, cl.filter) {
			continue
		}
		row := len(cl.visible)
		if v.ID() == selectedID {
			cursor = row
		}
		cl.visible = append(cl.visible, v.ID())
		cl.rows = append(cl.rows, v)

		name := sanitizeForTerminal(v.Conversation.DisplayName())
		color := cl.theme.FgColor
		if n := v.Conversation.UnreadCount; n > 0 {
			name = fmt.Sprintf("(%d) %s", n, name)
			color = cl.theme.UnreadColor
		}
		if v.Conversation.Kind == store.KindGroup {
			name = "# " + name
		}
		if cl.avatar != nil {
			cl.SetCell(row, 0, cl.initialCell(v))
		}
		cl.SetCell(row, col, tview.NewTableCell(" "+tview.Escape(name)).
			SetMaxWidth(nameWidth).
			SetTextColor(color))
		cl.SetCell(row, col+1, tview.NewTableCell(tview.Escape(Preview(v))).
			SetExpansion(1).
			SetTextColor(cl.theme.MutedColor))
		cl.SetCell(row, col+2, tview.NewTableCell(engine.FormatTimestamp(v.Conversation.LastMessageTimestamp)+" ").
			SetTextColor(cl.theme.MutedColor).
			SetAlign(tview.AlignRight))
	}
	if len(cl.visible) > 0 {
		cl.Select(cursor, 0)
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) /%s ", len(cl.visible), len(cl.convs), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// initialCell is the avatar placeholder: the first letter of the name on a
// colour telling direct threads from groups.
func (cl *ConversationList) initialCell(v *engine.ConversationView) *tview.TableCell {
	initial := '?'
	if name := sanitizeForTerminal(v.Conversation.DisplayName()); name != "" {
		r, _ := utf8.DecodeRuneInString(name)
		initial = unicode.ToUpper(r)
	}
	text := string(initial)
	if runewidth.RuneWidth(initial) < images.AvatarWidth {
		text += " "
	}
	bg := cl.theme.AvatarDirectBg
	if v.Conversation.Kind == store.KindGroup {
		bg = cl.theme.AvatarGroupBg
	}
	return tview.NewTableCell(tview.Escape(text)).
		SetTextColor(cl.theme.TableHeaderFg).
		SetBackgroundColor(bg)
}

// Draw draws the table, then paints loaded pictures over the placeholders
// of the rows on screen.
func (cl *ConversationList) Draw(screen tcell.Screen) {
	cl.Table.Draw(screen)
	if cl.avatar == nil {
		return
	}
	_, _, _, height := cl.GetInnerRect()
	offset, _ := cl.GetOffset()
	for row := offset; row < len(cl.rows) && row < offset+height; row++ {
		entry, ok := cl.avatar(cl.rows[row])
		if !ok || entry.State != images.Loaded || entry.Raster == nil {
			continue
		}
		x, y, width := cl.GetCell(row, 0).GetLastPosition()
		b := entry.Raster.Bounds()
		for cx := 0; cx < entry.Width && cx < width && b.Min.X+cx < b.Max.X; cx++ {
			px := b.Min.X + cx
			fg := rgb(entry, px, b.Min.Y)
			bg := cl.theme.BgColor
			if b.Min.Y+1 < b.Max.Y {
				bg = rgb(entry, px, b.Min.Y+1)
			}
			screen.SetContent(x+cx, y, '▀', nil, tcell.StyleDefault.Foreground(fg).Background(bg))
		}
	}
}

// Preview returns the one-line summary of a conversation's newest message.
func Preview(v *engine.ConversationView) string {
	if v.LastMessage == nil {
		return ""
	}
	text := store.PlainText(v.LastMessage.Content)
	if v.LastMessage.IsOutgoing {
		text = "You: " + text
	}
	return sanitizeForTerminal(text)
}

// matchesFilter compares case-insensitively on runes against the display
// name and the preview.
func matchesFilter(v *engine.ConversationView, filter string) bool {
	if filter == "" {
		return true
	}
	needle := strings.ToLower(filter)
	return strings.Contains(strings.ToLower(v.Conversation.DisplayName()), needle) ||
		strings.Contains(strings.ToLower(Preview(v)), needle)
}
