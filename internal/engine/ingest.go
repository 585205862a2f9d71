package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/sigtui/internal/signal"
	"github.com/matheus3301/sigtui/internal/store"
	"go.uber.org/zap"
)

// HandleEnvelope reconciles one inbound envelope into the store and the
// loaded views. Unattributable or empty events are dropped. It reports
// whether anything the UI shows may have changed.
func (e *Engine) HandleEnvelope(env *signal.Envelope) bool {
	if env == nil || env.SourceUUID == "" {
		return false
	}
	switch {
	case env.EditMessage != nil:
		return e.applyEdit(env.SourceUUID, env.EditMessage, e.isSelf(env.SourceUUID))
	case env.DataMessage != nil:
		dm := env.DataMessage
		switch {
		case dm.RemoteDelete != nil:
			return e.applyRemoteDelete(env.SourceUUID, dm.RemoteDelete.Timestamp)
		case dm.Reaction != nil:
			return e.applyReaction(env, dm.Reaction)
		}
		return e.ingestData(env, dm)
	case env.SyncMessage != nil:
		changed := false
		if sent := env.SyncMessage.SentMessage; sent != nil {
			if sent.EditMessage != nil {
				changed = e.applyEdit(env.SourceUUID, sent.EditMessage, true)
			} else {
				changed = e.ingestSent(env, sent)
			}
		}
		if len(env.SyncMessage.ReadMessages) > 0 {
			changed = e.applyReadSync(env.SyncMessage.ReadMessages) || changed
		}
		return changed
	case env.ReceiptMessage != nil:
		return e.applyReceipt(env, env.ReceiptMessage)
	}
	return false
}

func (e *Engine) ingestData(env *signal.Envelope, dm *signal.DataMessage) bool {
	content, ok := contentOf(dm.Message, dm.Attachments, dm.Sticker)
	if !ok {
		return false
	}
	sender := env.SourceUUID
	ts := dm.Timestamp
	if ts == 0 {
		ts = env.Timestamp
	}
	if e.seen(sender, ts, e.isSelf(sender)) {
		return false
	}

	var conv *store.Conversation
	var err error
	if dm.GroupInfo != nil && dm.GroupInfo.GroupID != "" {
		conv, err = e.store.GetOrCreateGroupConversation(dm.GroupInfo.GroupID, "")
	} else {
		conv, err = e.store.GetOrCreateDirectConversation(sender, env.Number(), env.SourceName)
	}
	if err != nil {
		e.logger.Warn("resolve conversation failed", zap.String("sender", sender), zap.Error(err))
		return false
	}

	outgoing := e.isSelf(sender)
	m := store.Message{
		ID:              uuid.NewString(),
		ConversationID:  conv.ID,
		SenderID:        sender,
		SenderName:      env.SourceName,
		Timestamp:       ts,
		ServerTimestamp: env.ServerReceivedTimestamp,
		ReceivedAt:      time.Now().UnixMilli(),
		Content:         content,
		IsOutgoing:      outgoing,
		IsRead:          outgoing,
	}
	if q := dm.Quote; q != nil {
		author := q.AuthorUUID
		if author == "" {
			author = q.Author
		}
		m.Quote = &store.Quote{ID: q.ID, AuthorUUID: author, Text: q.Text}
	}
	e.ingest(conv, m)
	return true
}

func (e *Engine) ingestSent(env *signal.Envelope, sent *signal.SentMessage) bool {
	content, ok := contentOf(sent.Message, sent.Attachments, sent.Sticker)
	if !ok {
		return false
	}
	sender := env.SourceUUID
	ts := sent.Timestamp
	if ts == 0 {
		ts = env.Timestamp
	}
	if e.seen(sender, ts, true) {
		return false
	}

	var conv *store.Conversation
	var err error
	switch {
	case sent.GroupInfo != nil && sent.GroupInfo.GroupID != "":
		conv, err = e.store.GetOrCreateGroupConversation(sent.GroupInfo.GroupID, "")
	case sent.DestinationUUID != "":
		conv, err = e.store.GetOrCreateDirectConversation(sent.DestinationUUID, destinationNumber(sent), "")
	case sent.Destination != "":
		if strings.HasPrefix(sent.Destination, "+") {
			conv, err = e.store.GetOrCreateDirectConversation("", sent.Destination, "")
		} else {
			conv, err = e.store.GetOrCreateDirectConversation(sent.Destination, "", "")
		}
	default:
		return false
	}
	if err != nil {
		e.logger.Warn("resolve conversation failed", zap.Int64("ts", ts), zap.Error(err))
		return false
	}

	now := time.Now().UnixMilli()
	e.ingest(conv, store.Message{
		ID:              uuid.NewString(),
		ConversationID:  conv.ID,
		SenderID:        sender,
		Timestamp:       ts,
		ServerTimestamp: env.ServerReceivedTimestamp,
		ReceivedAt:      now,
		Content:         content,
		IsOutgoing:      true,
		IsRead:          true,
	})
	return true
}

func destinationNumber(sent *signal.SentMessage) string {
	if sent.DestinationNumber != "" {
		return sent.DestinationNumber
	}
	if strings.HasPrefix(sent.Destination, "+") {
		return sent.Destination
	}
	return ""
}

// contentOf classifies an inbound payload. Attachments win over stickers and
// text. An empty payload reports false.
func contentOf(text string, atts []signal.Attachment, sticker *signal.Sticker) (store.Content, bool) {
	switch {
	case len(atts) > 0:
		items := make([]store.Attachment, 0, len(atts))
		for _, a := range atts {
			items = append(items, store.Attachment{
				ID:          a.ID,
				ContentType: a.ContentType,
				Filename:    a.Filename,
				Size:        a.Size,
				LocalPath:   a.ID,
			})
		}
		return store.Attachments{Items: items}, true
	case sticker != nil:
		return store.Sticker{PackID: sticker.PackID, StickerID: sticker.StickerID}, true
	case text != "":
		return store.Text{Body: text}, true
	}
	return nil, false
}

// seen reports whether a message with this signal id is already stored or
// loaded. own widens the match to the account's blank-sender messages.
func (e *Engine) seen(sender string, ts int64, own bool) bool {
	existing, err := e.lookup(sender, ts, own)
	if err != nil {
		e.logger.Warn("dedup lookup failed", zap.String("sender", sender), zap.Int64("ts", ts), zap.Error(err))
	}
	if existing != nil {
		return true
	}
	for _, v := range e.views {
		if v.loaded && v.find(sender, ts, own) >= 0 {
			return true
		}
	}
	return false
}

// ingest persists m best-effort and appends it to its conversation's view.
// An unknown conversation reloads the list.
func (e *Engine) ingest(conv *store.Conversation, m store.Message) {
	if err := e.store.SaveMessage(&m); err != nil {
		e.logger.Warn("persist message failed", zap.String("id", m.ID), zap.Error(err))
	}

	v := e.byID[conv.ID]
	counted := false
	if v == nil {
		if err := e.Reload(); err != nil {
			e.logger.Warn("reload conversations failed", zap.Error(err))
		}
		v = e.byID[conv.ID]
		counted = v != nil
		if v == nil {
			v = newView(*conv)
			e.views = append(e.views, v)
			e.byID[conv.ID] = v
		}
	}
	e.append(v, m)
	if !counted && !m.IsOutgoing && !m.IsRead && v.ID() != e.selected {
		v.Conversation.UnreadCount++
	}
}

// append adds m to a loaded view, keeping the viewport anchored when the
// user has scrolled up, and always updates the preview and list order.
func (e *Engine) append(v *ConversationView, m store.Message) {
	if v.loaded {
		i := v.insert(m)
		if v.ScrollOffset > 0 && i == len(v.messages)-1 && e.width > 0 {
			v.ScrollOffset += e.messageHeight(&v.messages[i])
		}
		e.requestImages(store.ImagePaths(m.Content))
		e.clamp(v)
	}
	v.notePreview(m)
	e.sortViews()
}

// applyEdit rewrites the edited message. own edits come from the local
// account and may target messages stored with a blank sender.
func (e *Engine) applyEdit(sender string, em *signal.EditMessage, own bool) bool {
	dm := em.DataMessage
	if dm == nil || dm.Message == "" {
		return false
	}
	content := store.Text{Body: dm.Message}
	persist := e.store.UpdateMessageContent
	if own {
		persist = e.store.UpdateOwnMessageContent
	}
	if err := persist(sender, em.TargetSentTimestamp, content); err != nil {
		e.logger.Warn("persist edit failed", zap.String("sender", sender), zap.Error(err))
	}
	for _, v := range e.views {
		if !v.loaded {
			continue
		}
		i := v.find(sender, em.TargetSentTimestamp, own)
		if i < 0 {
			continue
		}
		v.messages[i].Content = content
		v.messages[i].IsEdited = true
		if i == len(v.messages)-1 {
			v.refreshPreview()
		}
		e.clamp(v)
		return true
	}
	return false
}

func (e *Engine) applyRemoteDelete(sender string, ts int64) bool {
	if err := e.store.MarkMessageDeleted(sender, ts); err != nil {
		e.logger.Warn("persist remote delete failed", zap.String("sender", sender), zap.Error(err))
	}
	for _, v := range e.views {
		if !v.loaded {
			continue
		}
		i := v.find(sender, ts, false)
		if i < 0 {
			continue
		}
		v.messages[i].Content = store.RemoteDeleted{}
		v.messages[i].IsDeleted = true
		if i == len(v.messages)-1 {
			v.refreshPreview()
		}
		e.clamp(v)
		return true
	}
	return false
}

func (e *Engine) lookup(sender string, ts int64, own bool) (*store.Message, error) {
	m, err := e.store.GetMessageBySignalID(sender, ts)
	if m != nil || err != nil || !own {
		return m, err
	}
	return e.store.GetOwnMessageBySignalID(sender, ts)
}

// locate finds a message by signal id in the store, then in loaded views.
func (e *Engine) locate(sender string, ts int64, own bool) (string, bool) {
	m, err := e.lookup(sender, ts, own)
	if err != nil {
		e.logger.Warn("message lookup failed", zap.Error(err))
	}
	if m != nil {
		return m.ID, m.IsOutgoing
	}
	for _, v := range e.views {
		if i := v.find(sender, ts, own); i >= 0 {
			return v.messages[i].ID, v.messages[i].IsOutgoing
		}
	}
	return "", false
}

// loadedMessage returns a pointer into the view holding message id.
func (e *Engine) loadedMessage(id string) (*ConversationView, *store.Message) {
	for _, v := range e.views {
		if i := v.indexOf(id); i >= 0 {
			return v, &v.messages[i]
		}
	}
	return nil, nil
}

func (e *Engine) applyReaction(env *signal.Envelope, r *signal.Reaction) bool {
	target := r.TargetAuthorUUID
	if target == "" {
		target = r.TargetAuthor
	}
	id, _ := e.locate(target, r.TargetSentTimestamp, e.isSelf(target))
	if id == "" {
		return false
	}
	sender := env.SourceUUID

	if r.IsRemove {
		if err := e.store.RemoveReaction(id, sender); err != nil {
			e.logger.Warn("remove reaction failed", zap.Error(err))
		}
	} else {
		reaction := &store.Reaction{MessageID: id, SenderUUID: sender, Emoji: r.Emoji, Timestamp: env.Timestamp}
		if err := e.store.SaveReaction(reaction); err != nil {
			e.logger.Warn("save reaction failed", zap.Error(err))
		}
	}

	v, m := e.loadedMessage(id)
	if m == nil {
		return false
	}
	emoji := r.Emoji
	if r.IsRemove {
		emoji = ""
	}
	setReaction(m, sender, emoji, env.Timestamp)
	e.clamp(v)
	return true
}

// setReaction replaces sender's reaction on m; an empty emoji removes it.
func setReaction(m *store.Message, sender, emoji string, ts int64) {
	kept := m.Reactions[:0]
	for _, existing := range m.Reactions {
		if existing.SenderUUID != sender {
			kept = append(kept, existing)
		}
	}
	m.Reactions = kept
	if emoji != "" {
		m.Reactions = append(m.Reactions, store.Reaction{MessageID: m.ID, SenderUUID: sender, Emoji: emoji, Timestamp: ts})
	}
}

func deliveryState(kind string) store.DeliveryState {
	switch kind {
	case "delivery":
		return store.DeliveryDelivered
	case "read":
		return store.DeliveryRead
	case "viewed":
		return store.DeliveryViewed
	}
	return store.DeliveryNone
}

func (e *Engine) applyReceipt(env *signal.Envelope, r *signal.ReceiptMessage) bool {
	state := deliveryState(r.Kind())
	if state == store.DeliveryNone {
		return false
	}
	when := r.When
	if when == 0 {
		when = env.Timestamp
	}
	changed := false
	for _, ts := range r.Timestamps {
		id, outgoing := e.locate(e.selfUUID, ts, true)
		if id == "" || !outgoing {
			continue
		}
		if err := e.store.SaveDeliveryStatus(id, env.SourceUUID, state, when); err != nil {
			e.logger.Warn("save delivery status failed", zap.Error(err))
		}
		if _, m := e.loadedMessage(id); m != nil && state.Rank() > m.Delivery.Rank() {
			m.Delivery = state
			changed = true
		}
	}
	return changed
}

func (e *Engine) applyReadSync(reads []signal.ReadMessage) bool {
	changed := false
	for _, r := range reads {
		sender := r.SenderUUID
		if sender == "" {
			sender = r.Sender
		}
		convID, err := e.store.MarkSignalIDRead(sender, r.Timestamp)
		if err != nil {
			e.logger.Warn("mark read failed", zap.Error(err))
		}
		for _, v := range e.views {
			if !v.loaded {
				continue
			}
			i := v.find(sender, r.Timestamp, false)
			if i < 0 || v.messages[i].IsOutgoing || v.messages[i].IsRead {
				continue
			}
			v.messages[i].IsRead = true
			convID = ""
			if v.Conversation.UnreadCount > 0 {
				v.Conversation.UnreadCount--
			}
			changed = true
			break
		}
		if v := e.byID[convID]; v != nil && !v.loaded && v.Conversation.UnreadCount > 0 {
			v.Conversation.UnreadCount--
			changed = true
		}
	}
	return changed
}
