package engine

import (
	"errors"
	"sort"

	"github.com/matheus3301/sigtui/internal/images"
	"github.com/matheus3301/sigtui/internal/store"
)

// memStore is an in-memory Store with the same paging and signal-id rules
// as the sqlite store.
type memStore struct {
	convs      []*store.Conversation
	msgs       []store.Message
	reactions  map[string][]store.Reaction
	delivery   map[string]store.DeliveryState
	olderCalls int
	failSaves  bool
	nextID     int
}

func newMemStore() *memStore {
	return &memStore{
		reactions: make(map[string][]store.Reaction),
		delivery:  make(map[string]store.DeliveryState),
	}
}

var errSave = errors.New("disk full")

func (s *memStore) conv(id string) *store.Conversation {
	for _, c := range s.convs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *memStore) ListConversations() ([]store.Conversation, error) {
	out := make([]store.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageTimestamp > out[j].LastMessageTimestamp
	})
	return out, nil
}

func (s *memStore) ListMessages(conversationID string, limit int, before int64) ([]store.Message, error) {
	if before > 0 {
		s.olderCalls++
	}
	var page []store.Message
	for _, m := range s.msgs {
		if m.ConversationID != conversationID || (before > 0 && m.Timestamp >= before) {
			continue
		}
		page = append(page, m)
	}
	sort.SliceStable(page, func(i, j int) bool { return page[i].Timestamp < page[j].Timestamp })
	if len(page) > limit {
		page = page[len(page)-limit:]
	}
	return page, nil
}

func (s *memStore) SaveMessage(m *store.Message) error {
	if s.failSaves {
		return errSave
	}
	for i := range s.msgs {
		if s.msgs[i].ID == m.ID {
			s.msgs[i] = *m
			return nil
		}
	}
	s.msgs = append(s.msgs, *m)
	if c := s.conv(m.ConversationID); c != nil {
		c.LastMessageTimestamp = max(c.LastMessageTimestamp, m.Timestamp)
		if !m.IsRead && !m.IsOutgoing {
			c.UnreadCount++
		}
	}
	return nil
}

func (s *memStore) DeleteMessage(id string) error {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memStore) bySignalID(sender string, ts int64) *store.Message {
	for i := range s.msgs {
		if s.msgs[i].SameSignalID(sender, ts) {
			return &s.msgs[i]
		}
	}
	return nil
}

func (s *memStore) ownBySignalID(sender string, ts int64) *store.Message {
	for i := range s.msgs {
		if s.msgs[i].SameOwnSignalID(sender, ts) {
			return &s.msgs[i]
		}
	}
	return nil
}

func edit(m *store.Message, c store.Content) {
	if m != nil {
		m.Content = c
		m.IsEdited = true
	}
}

func (s *memStore) UpdateMessageContent(senderID string, ts int64, c store.Content) error {
	edit(s.bySignalID(senderID, ts), c)
	return nil
}

func (s *memStore) UpdateOwnMessageContent(senderID string, ts int64, c store.Content) error {
	edit(s.ownBySignalID(senderID, ts), c)
	return nil
}

func (s *memStore) MarkMessagesRead(conversationID string, upTo int64) error {
	for i := range s.msgs {
		if s.msgs[i].ConversationID == conversationID && s.msgs[i].Timestamp <= upTo {
			s.msgs[i].IsRead = true
		}
	}
	if c := s.conv(conversationID); c != nil {
		c.UnreadCount = 0
	}
	return nil
}

func (s *memStore) newID(prefix string) string {
	s.nextID++
	return prefix + string(rune('a'+s.nextID%26)) + string(rune('a'+s.nextID/26))
}

func (s *memStore) GetOrCreateDirectConversation(peerUUID, number, name string) (*store.Conversation, error) {
	for _, c := range s.convs {
		if c.Kind == store.KindDirect && ((peerUUID != "" && c.RecipientUUID == peerUUID) || (number != "" && c.RecipientNumber == number)) {
			cp := *c
			return &cp, nil
		}
	}
	if peerUUID == "" && number == "" {
		return nil, errors.New("no identity")
	}
	c := &store.Conversation{ID: s.newID("d-"), Kind: store.KindDirect, RecipientUUID: peerUUID, RecipientNumber: number, RecipientName: name}
	s.convs = append(s.convs, c)
	cp := *c
	return &cp, nil
}

func (s *memStore) GetOrCreateGroupConversation(groupID, name string) (*store.Conversation, error) {
	for _, c := range s.convs {
		if c.Kind == store.KindGroup && c.GroupID == groupID {
			cp := *c
			return &cp, nil
		}
	}
	c := &store.Conversation{ID: s.newID("g-"), Kind: store.KindGroup, GroupID: groupID, GroupName: name}
	s.convs = append(s.convs, c)
	cp := *c
	return &cp, nil
}

func (s *memStore) GetMessageBySignalID(senderID string, ts int64) (*store.Message, error) {
	return copyOf(s.bySignalID(senderID, ts)), nil
}

func (s *memStore) GetOwnMessageBySignalID(senderID string, ts int64) (*store.Message, error) {
	return copyOf(s.ownBySignalID(senderID, ts)), nil
}

func copyOf(m *store.Message) *store.Message {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

func (s *memStore) MarkMessageDeleted(senderID string, ts int64) error {
	if m := s.bySignalID(senderID, ts); m != nil {
		m.Content = store.RemoteDeleted{}
		m.IsDeleted = true
	}
	return nil
}

func (s *memStore) UpdateMessageTimestamp(id string, ts int64) error {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs[i].Timestamp = ts
			s.msgs[i].ServerTimestamp = ts
		}
	}
	return nil
}

func (s *memStore) MarkSignalIDRead(senderID string, ts int64) (string, error) {
	if m := s.bySignalID(senderID, ts); m != nil {
		m.IsRead = true
		return m.ConversationID, nil
	}
	return "", nil
}

func (s *memStore) SaveReaction(r *store.Reaction) error {
	s.reactions[r.MessageID] = append(s.reactions[r.MessageID], *r)
	return nil
}

func (s *memStore) RemoveReaction(messageID, senderUUID string) error {
	delete(s.reactions, messageID)
	return nil
}

func (s *memStore) SaveDeliveryStatus(messageID, recipient string, state store.DeliveryState, ts int64) error {
	if state.Rank() > s.delivery[messageID].Rank() {
		s.delivery[messageID] = state
	}
	return nil
}

func (s *memStore) RenameDirect(peerUUID, number, name string) (bool, error) {
	for _, c := range s.convs {
		if c.Kind == store.KindDirect && c.RecipientUUID == peerUUID && c.RecipientName != name {
			c.RecipientName = name
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) RenameGroup(groupID, name string) (bool, error) {
	for _, c := range s.convs {
		if c.Kind == store.KindGroup && c.GroupID == groupID && c.GroupName != name {
			c.GroupName = name
			return true, nil
		}
	}
	return false, nil
}

// stored returns the persisted messages of a conversation.
func (s *memStore) stored(convID string) []store.Message {
	var out []store.Message
	for _, m := range s.msgs {
		if m.ConversationID == convID {
			out = append(out, m)
		}
	}
	return out
}

// fakeImages is an Images whose entries are set directly by tests.
type fakeImages struct {
	entries   map[string]images.Entry
	requested []string
	pending   map[string]images.Entry
}

func newFakeImages() *fakeImages {
	return &fakeImages{
		entries: make(map[string]images.Entry),
		pending: make(map[string]images.Entry),
	}
}

func (f *fakeImages) Request(path string, maxWidth int) bool {
	if _, ok := f.entries[path]; ok {
		return false
	}
	f.entries[path] = images.Entry{State: images.Loading}
	f.requested = append(f.requested, path)
	return true
}

func (f *fakeImages) Poll() int {
	n := len(f.pending)
	for p, e := range f.pending {
		f.entries[p] = e
	}
	f.pending = make(map[string]images.Entry)
	return n
}

func (f *fakeImages) Get(path string) (images.Entry, bool) {
	e, ok := f.entries[path]
	return e, ok
}

func (f *fakeImages) Height(path string) int {
	if e, ok := f.entries[path]; ok && e.State == images.Loaded {
		return e.Height
	}
	return images.PlaceholderHeight
}
