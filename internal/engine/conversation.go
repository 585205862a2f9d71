package engine

import (
	"fmt"

	"github.com/matheus3301/sigtui/internal/store"
)

// PageSize is how many messages one pagination step fetches.
const PageSize = 100

// Range is an inclusive index range into a view's loaded messages.
type Range struct {
	Start, End int
}

// ConversationView is the in-memory window over one conversation. Messages
// stay unloaded until the conversation is first selected.
type ConversationView struct {
	Conversation store.Conversation

	messages []store.Message
	loaded   bool

	HasMore      bool
	ScrollOffset int
	Selection    *Selection
	VisibleRange *Range

	// LastMessage is the list preview, known even while messages are unloaded.
	LastMessage *store.Message
}

func newView(c store.Conversation) *ConversationView {
	return &ConversationView{Conversation: c}
}

// ID returns the conversation id.
func (v *ConversationView) ID() string { return v.Conversation.ID }

// Loaded reports whether the first page has been fetched.
func (v *ConversationView) Loaded() bool { return v.loaded }

// Messages returns the loaded messages in ascending timestamp order.
func (v *ConversationView) Messages() []store.Message { return v.messages }

// LoadInitial fetches the newest page if the view is still unloaded and
// reports whether anything changed.
func (v *ConversationView) LoadInitial(st Store) (bool, error) {
	if v.loaded {
		return false, nil
	}
	msgs, err := st.ListMessages(v.ID(), PageSize, 0)
	if err != nil {
		return false, fmt.Errorf("load conversation %s: %w", v.ID(), err)
	}
	v.messages = msgs
	v.loaded = true
	v.HasMore = len(msgs) == PageSize
	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		v.LastMessage = &last
	}
	return true, nil
}

// LoadOlder prepends the page before the oldest loaded message and returns
// the image paths it introduced. The scroll offset is measured from the
// bottom and is left alone.
func (v *ConversationView) LoadOlder(st Store) ([]string, error) {
	if !v.HasMore || len(v.messages) == 0 {
		return nil, nil
	}
	page, err := st.ListMessages(v.ID(), PageSize, v.messages[0].Timestamp)
	if err != nil {
		return nil, fmt.Errorf("load older %s: %w", v.ID(), err)
	}
	v.HasMore = len(page) == PageSize

	seen := make(map[signalID]struct{}, len(v.messages))
	for _, m := range v.messages {
		seen[signalID{m.SenderID, m.Timestamp}] = struct{}{}
	}
	oldest := v.messages[0].Timestamp
	fresh := make([]store.Message, 0, len(page))
	var paths []string
	for _, m := range page {
		id := signalID{m.SenderID, m.Timestamp}
		if _, dup := seen[id]; dup || m.Timestamp >= oldest {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, m)
		paths = append(paths, store.ImagePaths(m.Content)...)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	v.messages = append(fresh, v.messages...)
	shift := len(fresh)
	if v.Selection != nil {
		v.Selection.Anchor += shift
		v.Selection.Cursor += shift
	}
	if v.VisibleRange != nil {
		v.VisibleRange.Start += shift
		v.VisibleRange.End += shift
	}
	return paths, nil
}

type signalID struct {
	sender string
	ts     int64
}

// find returns the index of the first loaded message with the given signal
// id. With own set, the account's outgoing messages also match on a blank
// sender.
func (v *ConversationView) find(sender string, ts int64, own bool) int {
	for i := range v.messages {
		m := &v.messages[i]
		if m.SameSignalID(sender, ts) || (own && m.SameOwnSignalID(sender, ts)) {
			return i
		}
	}
	return -1
}

func (v *ConversationView) indexOf(id string) int {
	for i := range v.messages {
		if v.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// insert places m after every loaded message with a timestamp not greater
// than its own and returns the index used. Selection indices shift with it.
func (v *ConversationView) insert(m store.Message) int {
	i := len(v.messages)
	for i > 0 && v.messages[i-1].Timestamp > m.Timestamp {
		i--
	}
	v.messages = append(v.messages, store.Message{})
	copy(v.messages[i+1:], v.messages[i:])
	v.messages[i] = m

	if v.Selection != nil {
		if v.Selection.Anchor >= i {
			v.Selection.Anchor++
		}
		if v.Selection.Cursor >= i {
			v.Selection.Cursor++
		}
	}
	v.VisibleRange = nil
	return i
}

// notePreview raises the watermark and replaces the preview when m is newer.
func (v *ConversationView) notePreview(m store.Message) {
	if m.Timestamp > v.Conversation.LastMessageTimestamp {
		v.Conversation.LastMessageTimestamp = m.Timestamp
	}
	if v.LastMessage == nil || m.Timestamp >= v.LastMessage.Timestamp {
		preview := m
		v.LastMessage = &preview
	}
}

// refreshPreview recomputes the preview from the loaded tail after removals
// or in-place edits.
func (v *ConversationView) refreshPreview() {
	if !v.loaded {
		return
	}
	if n := len(v.messages); n > 0 {
		last := v.messages[n-1]
		v.LastMessage = &last
		return
	}
	v.LastMessage = nil
}

// unreadIncoming returns the timestamps of loaded incoming messages not yet read.
func (v *ConversationView) unreadIncoming() []int64 {
	var ts []int64
	for _, m := range v.messages {
		if !m.IsOutgoing && !m.IsRead {
			ts = append(ts, m.Timestamp)
		}
	}
	return ts
}
