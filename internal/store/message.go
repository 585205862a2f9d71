package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

const messageColumns = `id, conversation_id, sender_uuid, sender_name, timestamp, server_timestamp,
	received_at, content_type, content_data, quote_json, is_outgoing, is_read, is_deleted, is_edited`

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var contentType, contentData, quoteJSON string
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Timestamp, &m.ServerTimestamp,
		&m.ReceivedAt, &contentType, &contentData, &quoteJSON, &m.IsOutgoing, &m.IsRead, &m.IsDeleted, &m.IsEdited); err != nil {
		return nil, err
	}
	content, err := decodeContent(contentType, contentData)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", m.ID, err)
	}
	m.Content = content
	if quoteJSON != "" {
		var q Quote
		if err := json.Unmarshal([]byte(quoteJSON), &q); err == nil {
			m.Quote = &q
		}
	}
	return &m, nil
}

// SaveMessage inserts or updates a message (idempotent on id) and raises the
// owning conversation's watermark to the message timestamp.
func (db *DB) SaveMessage(m *Message) error {
	contentType, contentData, err := encodeContent(m.Content)
	if err != nil {
		return err
	}
	var quoteJSON string
	if m.Quote != nil {
		data, err := json.Marshal(m.Quote)
		if err != nil {
			return fmt.Errorf("encode quote: %w", err)
		}
		quoteJSON = string(data)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sender_uuid = excluded.sender_uuid,
			sender_name = excluded.sender_name,
			timestamp = excluded.timestamp,
			server_timestamp = excluded.server_timestamp,
			content_type = excluded.content_type,
			content_data = excluded.content_data,
			quote_json = excluded.quote_json,
			is_read = excluded.is_read,
			is_deleted = excluded.is_deleted,
			is_edited = excluded.is_edited`,
		m.ID, m.ConversationID, m.SenderID, m.SenderName, m.Timestamp, m.ServerTimestamp,
		m.ReceivedAt, contentType, contentData, quoteJSON, m.IsOutgoing, m.IsRead, m.IsDeleted, m.IsEdited); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE conversations SET
			last_message_timestamp = MAX(last_message_timestamp, ?),
			unread_count = (SELECT COUNT(*) FROM messages
				WHERE conversation_id = ? AND is_read = 0 AND is_outgoing = 0)
		WHERE id = ?`, m.Timestamp, m.ConversationID, m.ConversationID); err != nil {
		return fmt.Errorf("bump conversation: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns up to limit messages of a conversation in ascending
// timestamp order. With before > 0 only messages strictly older than before
// are returned; otherwise the newest page is returned.
func (db *DB) ListMessages(conversationID string, limit int, before int64) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ?`
	args := []any{conversationID}
	if before > 0 {
		query += ` AND timestamp < ?`
		args = append(args, before)
	}
	query += ` ORDER BY timestamp DESC, received_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if err := db.attachExtras(msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// attachExtras fills reactions and delivery state for a page of messages.
func (db *DB) attachExtras(msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	index := make(map[string]int, len(msgs))
	args := make([]any, 0, len(msgs))
	for i, m := range msgs {
		index[m.ID] = i
		args = append(args, m.ID)
	}
	in := strings.TrimSuffix(strings.Repeat("?,", len(msgs)), ",")

	rows, err := db.Query(`
		SELECT id, message_id, sender_uuid, emoji, timestamp FROM reactions
		WHERE message_id IN (`+in+`) ORDER BY timestamp`, args...)
	if err != nil {
		return fmt.Errorf("list reactions: %w", err)
	}
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.ID, &r.MessageID, &r.SenderUUID, &r.Emoji, &r.Timestamp); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan reaction: %w", err)
		}
		i := index[r.MessageID]
		msgs[i].Reactions = append(msgs[i].Reactions, r)
	}
	_ = rows.Close()

	rows, err = db.Query(`
		SELECT message_id, status FROM delivery_status
		WHERE message_id IN (`+in+`)`, args...)
	if err != nil {
		return fmt.Errorf("list delivery status: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id, st string
		if err := rows.Scan(&id, &st); err != nil {
			return fmt.Errorf("scan delivery status: %w", err)
		}
		i := index[id]
		if s := DeliveryState(st); s.Rank() > msgs[i].Delivery.Rank() {
			msgs[i].Delivery = s
		}
	}
	return rows.Err()
}

// GetMessageBySignalID looks a message up by its protocol identity,
// the sender uuid and the sent timestamp.
func (db *DB) GetMessageBySignalID(senderID string, ts int64) (*Message, error) {
	return db.getBySignalID(false, senderID, ts)
}

// GetOwnMessageBySignalID looks up one of the local account's outgoing
// messages. A blank sender on either side matches, since messages composed
// before the account uuid was known are stored without one.
func (db *DB) GetOwnMessageBySignalID(senderID string, ts int64) (*Message, error) {
	return db.getBySignalID(true, senderID, ts)
}

// signalIDMatch returns the WHERE clause, without the timestamp, that
// identifies a message by sender.
func signalIDMatch(own bool, senderID string) (string, []any) {
	if own {
		return `is_outgoing = 1 AND (sender_uuid = ? OR sender_uuid = '' OR ? = '')`, []any{senderID, senderID}
	}
	return `sender_uuid = ?`, []any{senderID}
}

func (db *DB) getBySignalID(own bool, senderID string, ts int64) (*Message, error) {
	match, matchArgs := signalIDMatch(own, senderID)
	args := append([]any{ts}, matchArgs...)
	m, err := scanMessage(db.QueryRow(`
		SELECT `+messageColumns+` FROM messages
		WHERE timestamp = ? AND `+match+`
		ORDER BY received_at LIMIT 1`, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message by signal id: %w", err)
	}
	return m, nil
}

// DeleteMessage removes a message from the local cache only.
func (db *DB) DeleteMessage(id string) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// UpdateMessageContent replaces the content of the message identified by
// sender and timestamp and flags it as edited.
func (db *DB) UpdateMessageContent(senderID string, ts int64, c Content) error {
	return db.updateContent(false, senderID, ts, c)
}

// UpdateOwnMessageContent is UpdateMessageContent for the local account's
// outgoing messages, matched as in GetOwnMessageBySignalID. Only the first
// match changes.
func (db *DB) UpdateOwnMessageContent(senderID string, ts int64, c Content) error {
	return db.updateContent(true, senderID, ts, c)
}

func (db *DB) updateContent(own bool, senderID string, ts int64, c Content) error {
	contentType, contentData, err := encodeContent(c)
	if err != nil {
		return err
	}
	match, matchArgs := signalIDMatch(own, senderID)
	args := append([]any{contentType, contentData, ts}, matchArgs...)
	_, err = db.Exec(`
		UPDATE messages SET content_type = ?, content_data = ?, is_edited = 1
		WHERE id = (SELECT id FROM messages
			WHERE timestamp = ? AND `+match+`
			ORDER BY received_at LIMIT 1)`, args...)
	if err != nil {
		return fmt.Errorf("update message content: %w", err)
	}
	return nil
}

// MarkMessageDeleted replaces a message's content with a remote-deletion
// tombstone.
func (db *DB) MarkMessageDeleted(senderID string, ts int64) error {
	_, err := db.Exec(`
		UPDATE messages SET is_deleted = 1, content_type = ?, content_data = ''
		WHERE sender_uuid = ? AND timestamp = ?`, contentDeleted, senderID, ts)
	if err != nil {
		return fmt.Errorf("mark message deleted: %w", err)
	}
	return nil
}

// UpdateMessageTimestamp rewrites an optimistic message's timestamp to the one
// the server assigned, keeping the conversation watermark in step.
func (db *DB) UpdateMessageTimestamp(id string, ts int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE messages SET timestamp = ?, server_timestamp = ? WHERE id = ?`, ts, ts, id); err != nil {
		return fmt.Errorf("update message timestamp: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE conversations SET last_message_timestamp = MAX(last_message_timestamp, ?)
		WHERE id = (SELECT conversation_id FROM messages WHERE id = ?)`, ts, id); err != nil {
		return fmt.Errorf("bump conversation: %w", err)
	}
	return tx.Commit()
}

// MarkMessagesRead flags incoming messages up to and including upTo as read
// and recomputes the conversation's unread counter.
func (db *DB) MarkMessagesRead(conversationID string, upTo int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND timestamp <= ? AND is_read = 0`, conversationID, upTo); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE conversations SET unread_count = (SELECT COUNT(*) FROM messages
			WHERE conversation_id = ? AND is_read = 0 AND is_outgoing = 0)
		WHERE id = ?`, conversationID, conversationID); err != nil {
		return fmt.Errorf("recount unread: %w", err)
	}
	return tx.Commit()
}

// MarkSignalIDRead flags a single incoming message read, as reported by
// another device of the same account. It returns the conversation touched.
func (db *DB) MarkSignalIDRead(senderID string, ts int64) (string, error) {
	var convID string
	err := db.QueryRow(`SELECT conversation_id FROM messages WHERE sender_uuid = ? AND timestamp = ?`, senderID, ts).Scan(&convID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find read message: %w", err)
	}
	if _, err := db.Exec(`UPDATE messages SET is_read = 1 WHERE sender_uuid = ? AND timestamp = ?`, senderID, ts); err != nil {
		return "", fmt.Errorf("mark read: %w", err)
	}
	if _, err := db.Exec(`
		UPDATE conversations SET unread_count = (SELECT COUNT(*) FROM messages
			WHERE conversation_id = ? AND is_read = 0 AND is_outgoing = 0)
		WHERE id = ?`, convID, convID); err != nil {
		return "", fmt.Errorf("recount unread: %w", err)
	}
	return convID, nil
}
