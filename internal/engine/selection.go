package engine

import (
	"strings"

	"github.com/matheus3301/sigtui/internal/store"
)

// Selection is an anchor/cursor pair over loaded message indices.
type Selection struct {
	Anchor int
	Cursor int
}

// Bounds returns the inclusive range covered by the selection.
func (s Selection) Bounds() (int, int) {
	return min(s.Anchor, s.Cursor), max(s.Anchor, s.Cursor)
}

// Contains reports whether index i is selected.
func (s Selection) Contains(i int) bool {
	lo, hi := s.Bounds()
	return i >= lo && i <= hi
}

// RemoteDelete names the messages to delete for everyone and where.
type RemoteDelete struct {
	ConversationID string
	Recipient      string
	GroupID        string
	Timestamps     []int64
}

// EnterSelection starts a single-message selection at the centre of the
// visible range, or at the newest message before the first layout.
func (v *ConversationView) EnterSelection() bool {
	if !v.loaded || len(v.messages) == 0 {
		return false
	}
	idx := len(v.messages) - 1
	if r := v.VisibleRange; r != nil {
		idx = (r.Start + r.End) / 2
	}
	idx = clampIndex(idx, len(v.messages))
	v.Selection = &Selection{Anchor: idx, Cursor: idx}
	return true
}

// ExitSelection clears the selection.
func (v *ConversationView) ExitSelection() {
	v.Selection = nil
}

// MoveSelection moves the cursor by dir (negative is older). Without extend
// the anchor follows the cursor.
func (v *ConversationView) MoveSelection(dir int, extend bool) {
	if v.Selection == nil || len(v.messages) == 0 {
		return
	}
	v.Selection.Cursor = clampIndex(v.Selection.Cursor+dir, len(v.messages))
	if !extend {
		v.Selection.Anchor = v.Selection.Cursor
	}
}

// SelectAt puts the cursor on message i. With extend and a selection already
// open the anchor stays; otherwise a single-message selection starts at i.
func (v *ConversationView) SelectAt(i int, extend bool) bool {
	if !v.loaded || len(v.messages) == 0 {
		return false
	}
	i = clampIndex(i, len(v.messages))
	if extend && v.Selection != nil {
		v.Selection.Cursor = i
		return true
	}
	v.Selection = &Selection{Anchor: i, Cursor: i}
	return true
}

// ShrinkSelection steps the cursor one index toward the anchor.
func (v *ConversationView) ShrinkSelection() {
	s := v.Selection
	if s == nil {
		return
	}
	switch {
	case s.Cursor > s.Anchor:
		s.Cursor--
	case s.Cursor < s.Anchor:
		s.Cursor++
	}
}

func (v *ConversationView) selected() []store.Message {
	if v.Selection == nil || len(v.messages) == 0 {
		return nil
	}
	lo, hi := v.Selection.Bounds()
	return v.messages[lo : hi+1]
}

// SelectedText joins the plain text of the selected messages, one per line.
func (v *ConversationView) SelectedText() string {
	msgs := v.selected()
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, store.PlainText(m.Content))
	}
	return strings.Join(parts, "\n")
}

// SelectedOutgoingTimestamps returns the timestamps of selected messages the
// local account sent.
func (v *ConversationView) SelectedOutgoingTimestamps() []int64 {
	var ts []int64
	for _, m := range v.selected() {
		if m.IsOutgoing {
			ts = append(ts, m.Timestamp)
		}
	}
	return ts
}

// SelectedAttachmentPaths returns the local paths of selected attachments.
func (v *ConversationView) SelectedAttachmentPaths() []string {
	var paths []string
	for _, m := range v.selected() {
		a, ok := m.Content.(store.Attachments)
		if !ok {
			continue
		}
		for _, item := range a.Items {
			if item.LocalPath != "" {
				paths = append(paths, item.LocalPath)
			}
		}
	}
	return paths
}

// DeleteSelection removes the selected messages from memory, clears the
// selection and returns the removed ids.
func (v *ConversationView) DeleteSelection() []string {
	if v.Selection == nil || len(v.messages) == 0 {
		return nil
	}
	lo, hi := v.Selection.Bounds()
	ids := make([]string, 0, hi-lo+1)
	for _, m := range v.messages[lo : hi+1] {
		ids = append(ids, m.ID)
	}
	v.messages = append(v.messages[:lo], v.messages[hi+1:]...)
	v.Selection = nil
	v.VisibleRange = nil
	v.refreshPreview()
	return ids
}

// RemoteDeleteSelection deletes the selection locally like DeleteSelection
// and pairs the removed outgoing timestamps with the conversation's address.
// The request is nil when nothing outgoing was selected.
func (v *ConversationView) RemoteDeleteSelection() ([]string, *RemoteDelete) {
	ts := v.SelectedOutgoingTimestamps()
	ids := v.DeleteSelection()
	if len(ts) == 0 {
		return ids, nil
	}
	req := &RemoteDelete{ConversationID: v.ID(), Timestamps: ts}
	if v.Conversation.Kind == store.KindGroup {
		req.GroupID = v.Conversation.GroupID
	} else {
		req.Recipient = v.Conversation.Identifier()
	}
	return ids, req
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
