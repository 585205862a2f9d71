package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/sigtui/internal/images"
	"github.com/matheus3301/sigtui/internal/store"
	"go.uber.org/zap"
)

// Store is the persistence the engine reads through and writes behind.
// *store.DB implements it.
type Store interface {
	ListConversations() ([]store.Conversation, error)
	ListMessages(conversationID string, limit int, before int64) ([]store.Message, error)
	SaveMessage(m *store.Message) error
	DeleteMessage(id string) error
	UpdateMessageContent(senderID string, ts int64, c store.Content) error
	UpdateOwnMessageContent(senderID string, ts int64, c store.Content) error
	MarkMessagesRead(conversationID string, upTo int64) error
	GetOrCreateDirectConversation(peerUUID, number, name string) (*store.Conversation, error)
	GetOrCreateGroupConversation(groupID, name string) (*store.Conversation, error)
	GetMessageBySignalID(senderID string, ts int64) (*store.Message, error)
	GetOwnMessageBySignalID(senderID string, ts int64) (*store.Message, error)

	MarkMessageDeleted(senderID string, ts int64) error
	UpdateMessageTimestamp(id string, ts int64) error
	MarkSignalIDRead(senderID string, ts int64) (string, error)
	SaveReaction(r *store.Reaction) error
	RemoveReaction(messageID, senderUUID string) error
	SaveDeliveryStatus(messageID, recipient string, state store.DeliveryState, ts int64) error
	RenameDirect(peerUUID, number, name string) (bool, error)
	RenameGroup(groupID, name string) (bool, error)
}

// Images is the image cache the layout reads heights from.
// *images.Pipeline implements it.
type Images interface {
	Request(path string, maxWidth int) bool
	Poll() int
	Get(path string) (images.Entry, bool)
	Height(path string) int
}

// ReceiptRequest asks the backend to send read receipts.
type ReceiptRequest struct {
	ConversationID string
	Recipient      string
	Timestamps     []int64
}

// OutgoingMessage asks the backend to deliver a message composed locally.
type OutgoingMessage struct {
	MessageID      string
	ConversationID string
	Recipient      string
	GroupID        string
	Body           string
	Attachments    []string
}

// ReactionRequest asks the backend to set the user's reaction on a message.
// An empty Emoji withdraws it.
type ReactionRequest struct {
	ConversationID string
	Recipient      string
	GroupID        string
	Emoji          string
	TargetAuthor   string
	TargetTs       int64
}

// Contact and Group carry directory names used to label conversations.
type Contact struct {
	UUID   string
	Number string
	Name   string
}

type Group struct {
	ID   string
	Name string
}

// Engine owns every conversation view and the image cache. It is not safe
// for concurrent use; callers drive it from a single goroutine.
type Engine struct {
	store  Store
	images Images
	logger *zap.Logger

	selfUUID      string
	selfNumber    string
	maxImageWidth int

	views    []*ConversationView
	byID     map[string]*ConversationView
	selected string

	width, height int
}

// New creates an engine. img may be nil to disable image previews.
func New(st Store, img Images, logger *zap.Logger) *Engine {
	return &Engine{
		store:         st,
		images:        img,
		logger:        logger.Named("engine"),
		maxImageWidth: images.MaxWidth,
		byID:          make(map[string]*ConversationView),
	}
}

// SetSelf records the local account identity used to classify messages.
func (e *Engine) SetSelf(uuid, number string) {
	e.selfUUID = uuid
	e.selfNumber = number
}

// SetMaxImageWidth caps image previews in cells.
func (e *Engine) SetMaxImageWidth(w int) {
	if w > 0 {
		e.maxImageWidth = w
	}
}

func (e *Engine) isSelf(sender string) bool {
	return sender != "" && (sender == e.selfUUID || sender == e.selfNumber)
}

// Reload rebuilds the conversation list from the store. Views that already
// exist keep their loaded messages and scroll state.
func (e *Engine) Reload() error {
	convs, err := e.store.ListConversations()
	if err != nil {
		return err
	}
	views := make([]*ConversationView, 0, len(convs))
	byID := make(map[string]*ConversationView, len(convs))
	for _, c := range convs {
		v, ok := e.byID[c.ID]
		if ok {
			watermark := max(v.Conversation.LastMessageTimestamp, c.LastMessageTimestamp)
			v.Conversation = c
			v.Conversation.LastMessageTimestamp = watermark
		} else {
			v = newView(c)
		}
		if v.LastMessage == nil && c.LastMessageTimestamp > 0 {
			if last, err := e.store.ListMessages(c.ID, 1, 0); err == nil && len(last) == 1 {
				v.LastMessage = &last[0]
			}
		}
		views = append(views, v)
		byID[c.ID] = v
	}
	e.views = views
	e.byID = byID
	if _, ok := e.byID[e.selected]; !ok {
		e.selected = ""
	}
	e.sortViews()
	return nil
}

// sortViews orders conversations by watermark, newest first, with never
// messaged conversations last. Selection is tracked by id so it survives.
func (e *Engine) sortViews() {
	sort.SliceStable(e.views, func(i, j int) bool {
		a, b := e.views[i].Conversation.LastMessageTimestamp, e.views[j].Conversation.LastMessageTimestamp
		if (a == 0) != (b == 0) {
			return b == 0
		}
		return a > b
	})
}

// Conversations returns the views in list order.
func (e *Engine) Conversations() []*ConversationView {
	return e.views
}

// View returns the view of a conversation id.
func (e *Engine) View(id string) *ConversationView {
	return e.byID[id]
}

// Selected returns the selected view, or nil.
func (e *Engine) Selected() *ConversationView {
	return e.byID[e.selected]
}

// SelectedIndex returns the list position of the selected view, or -1.
func (e *Engine) SelectedIndex() int {
	for i, v := range e.views {
		if v.ID() == e.selected {
			return i
		}
	}
	return -1
}

// Select makes id the selected conversation and pages in its newest
// messages if needed. Image previews of a freshly loaded page are requested.
func (e *Engine) Select(id string) error {
	v := e.byID[id]
	if v == nil {
		return nil
	}
	e.selected = id
	changed, err := v.LoadInitial(e.store)
	if err != nil {
		return err
	}
	if changed {
		var paths []string
		for _, m := range v.messages {
			paths = append(paths, store.ImagePaths(m.Content)...)
		}
		e.requestImages(paths)
	}
	return nil
}

// MarkSelectedRead marks the selected conversation read. For direct
// conversations it returns the receipt to send for newly read messages.
func (e *Engine) MarkSelectedRead() *ReceiptRequest {
	v := e.Selected()
	if v == nil || !v.loaded {
		return nil
	}
	unread := v.unreadIncoming()
	if len(unread) == 0 && v.Conversation.UnreadCount == 0 {
		return nil
	}
	var upTo int64
	if n := len(v.messages); n > 0 {
		upTo = v.messages[n-1].Timestamp
	}
	if err := e.store.MarkMessagesRead(v.ID(), upTo); err != nil {
		e.logger.Warn("mark read failed", zap.String("conversation", v.ID()), zap.Error(err))
	}
	for i := range v.messages {
		if !v.messages[i].IsOutgoing {
			v.messages[i].IsRead = true
		}
	}
	v.Conversation.UnreadCount = 0

	if len(unread) == 0 || v.Conversation.Kind != store.KindDirect {
		return nil
	}
	return &ReceiptRequest{
		ConversationID: v.ID(),
		Recipient:      v.Conversation.Identifier(),
		Timestamps:     unread,
	}
}

// ComposeOutgoing appends an optimistic outgoing message to the selected
// conversation and returns what the backend must send. Attachments replace
// the text body in the local copy.
func (e *Engine) ComposeOutgoing(text string, attachments []store.Attachment) *OutgoingMessage {
	v := e.Selected()
	if v == nil || (text == "" && len(attachments) == 0) {
		return nil
	}
	now := time.Now().UnixMilli()
	var content store.Content = store.Text{Body: text}
	var paths []string
	if len(attachments) > 0 {
		content = store.Attachments{Items: attachments}
		for _, a := range attachments {
			paths = append(paths, a.LocalPath)
		}
	}
	m := store.Message{
		ID:             uuid.NewString(),
		ConversationID: v.ID(),
		SenderID:       e.selfUUID,
		Timestamp:      now,
		ReceivedAt:     now,
		Content:        content,
		IsOutgoing:     true,
		IsRead:         true,
	}
	if err := e.store.SaveMessage(&m); err != nil {
		e.logger.Warn("persist outgoing failed", zap.String("id", m.ID), zap.Error(err))
	}
	e.append(v, m)
	v.ScrollOffset = 0
	e.clamp(v)

	out := &OutgoingMessage{
		MessageID:      m.ID,
		ConversationID: v.ID(),
		Body:           text,
		Attachments:    paths,
	}
	if v.Conversation.Kind == store.KindGroup {
		out.GroupID = v.Conversation.GroupID
	} else {
		out.Recipient = v.Conversation.Identifier()
	}
	return out
}

// ConfirmSent rewrites an optimistic message's timestamp to the one the
// server used, so later echoes and edits of it dedupe.
func (e *Engine) ConfirmSent(messageID string, serverTs int64) {
	if serverTs <= 0 {
		return
	}
	if err := e.store.UpdateMessageTimestamp(messageID, serverTs); err != nil {
		e.logger.Warn("confirm sent failed", zap.String("id", messageID), zap.Error(err))
	}
	for _, v := range e.views {
		i := v.indexOf(messageID)
		if i < 0 {
			continue
		}
		if v.messages[i].Delivery.Rank() < store.DeliverySent.Rank() {
			v.messages[i].Delivery = store.DeliverySent
		}
		m := v.messages[i]
		if m.Timestamp == serverTs {
			return
		}
		m.Timestamp = serverTs
		m.ServerTimestamp = serverTs
		sel := v.Selection
		v.messages = append(v.messages[:i], v.messages[i+1:]...)
		v.Selection = nil
		v.insert(m)
		v.Selection = sel
		v.notePreview(m)
		e.sortViews()
		return
	}
}

// SyncDirectory applies contact and group names to existing conversations
// and reloads the list when any changed.
func (e *Engine) SyncDirectory(contacts []Contact, groups []Group) (bool, error) {
	changed := false
	for _, c := range contacts {
		ok, err := e.store.RenameDirect(c.UUID, c.Number, c.Name)
		if err != nil {
			return changed, err
		}
		changed = changed || ok
	}
	for _, g := range groups {
		ok, err := e.store.RenameGroup(g.ID, g.Name)
		if err != nil {
			return changed, err
		}
		changed = changed || ok
	}
	if !changed {
		return false, nil
	}
	return true, e.Reload()
}

// Tick installs finished image decodes and reports whether a redraw is due.
func (e *Engine) Tick() bool {
	if e.images == nil {
		return false
	}
	return e.images.Poll() > 0
}

// Image returns the cache entry of an attachment path.
func (e *Engine) Image(path string) (images.Entry, bool) {
	if e.images == nil {
		return images.Entry{}, false
	}
	return e.images.Get(path)
}

func (e *Engine) requestImages(paths []string) []string {
	if e.images == nil {
		return nil
	}
	maxW := maxImageWidthFor(e.width, e.maxImageWidth)
	var queued []string
	for _, p := range paths {
		if e.images.Request(p, maxW) {
			queued = append(queued, p)
		}
	}
	return queued
}

// EnterSelection starts selection mode in the selected conversation.
func (e *Engine) EnterSelection() bool {
	v := e.Selected()
	if v == nil {
		return false
	}
	return v.EnterSelection()
}

// ExitSelection leaves selection mode.
func (e *Engine) ExitSelection() {
	if v := e.Selected(); v != nil {
		v.ExitSelection()
	}
}

// MoveSelection moves the cursor and scrolls so it stays on screen.
func (e *Engine) MoveSelection(dir int, extend bool) {
	v := e.Selected()
	if v == nil || v.Selection == nil {
		return
	}
	v.MoveSelection(dir, extend)
	e.followCursor(v)
}

// SelectAt selects message i of the selected conversation, extending an
// open selection when extend is set.
func (e *Engine) SelectAt(i int, extend bool) bool {
	v := e.Selected()
	if v == nil {
		return false
	}
	return v.SelectAt(i, extend)
}

// ShrinkSelection steps the cursor toward the anchor.
func (e *Engine) ShrinkSelection() {
	v := e.Selected()
	if v == nil || v.Selection == nil {
		return
	}
	v.ShrinkSelection()
	e.followCursor(v)
}

// DeleteSelection removes the selected messages locally and from the store.
func (e *Engine) DeleteSelection() int {
	v := e.Selected()
	if v == nil {
		return 0
	}
	ids := v.DeleteSelection()
	e.deleteStored(ids)
	e.clamp(v)
	return len(ids)
}

// RemoteDeleteSelection removes the selection locally and returns the
// remote deletion to send, if any selected message was outgoing.
func (e *Engine) RemoteDeleteSelection() *RemoteDelete {
	v := e.Selected()
	if v == nil {
		return nil
	}
	ids, req := v.RemoteDeleteSelection()
	e.deleteStored(ids)
	e.clamp(v)
	return req
}

// React sets the user's reaction on the message under the selection cursor,
// or on the newest message when nothing is selected, and ends the selection.
// It returns nil when there is no message to react to.
func (e *Engine) React(emoji string) *ReactionRequest {
	v := e.Selected()
	if v == nil || len(v.messages) == 0 {
		return nil
	}
	idx := len(v.messages) - 1
	if v.Selection != nil {
		idx = clampIndex(v.Selection.Cursor, len(v.messages))
	}
	m := &v.messages[idx]
	self := e.selfUUID
	if self == "" {
		self = e.selfNumber
	}
	author := m.SenderID
	if m.IsOutgoing {
		author = self
	}
	if m.IsDeleted || author == "" || self == "" {
		return nil
	}

	now := time.Now().UnixMilli()
	if emoji == "" {
		if err := e.store.RemoveReaction(m.ID, self); err != nil {
			e.logger.Warn("remove reaction failed", zap.Error(err))
		}
	} else {
		r := &store.Reaction{MessageID: m.ID, SenderUUID: self, Emoji: emoji, Timestamp: now}
		if err := e.store.SaveReaction(r); err != nil {
			e.logger.Warn("save reaction failed", zap.Error(err))
		}
	}
	setReaction(m, self, emoji, now)
	v.ExitSelection()
	e.clamp(v)

	req := &ReactionRequest{ConversationID: v.ID(), Emoji: emoji, TargetAuthor: author, TargetTs: m.Timestamp}
	if v.Conversation.Kind == store.KindGroup {
		req.GroupID = v.Conversation.GroupID
	} else {
		req.Recipient = v.Conversation.Identifier()
	}
	return req
}

func (e *Engine) deleteStored(ids []string) {
	for _, id := range ids {
		if err := e.store.DeleteMessage(id); err != nil {
			e.logger.Warn("delete message failed", zap.String("id", id), zap.Error(err))
		}
	}
}
