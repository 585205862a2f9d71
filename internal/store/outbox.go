package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueueOutbox adds a backend operation to the outbox.
func (db *DB) QueueOutbox(e *OutboxEntry) error {
	attachments, err := json.Marshal(e.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	timestamps, err := json.Marshal(e.Timestamps)
	if err != nil {
		return fmt.Errorf("encode timestamps: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO outbox (client_msg_id, kind, conversation_id, recipient, group_id, body,
			attachments, timestamps, target_author, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'queued', ?, ?)`,
		e.ClientMsgID, string(e.Kind), e.ConversationID, e.Recipient, e.GroupID, e.Body,
		string(attachments), string(timestamps), e.TargetAuthor, now, now)
	if err != nil {
		return fmt.Errorf("queue outbox: %w", err)
	}
	return nil
}

// MarkOutboxSending updates an outbox entry to 'sending' status.
func (db *DB) MarkOutboxSending(clientMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sending', updated_at = ? WHERE client_msg_id = ?`, now, clientMsgID)
	return err
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server timestamp.
func (db *DB) MarkOutboxSent(clientMsgID string, serverTs int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_ts = ?, updated_at = ? WHERE client_msg_id = ?`, serverTs, now, clientMsgID)
	return err
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE client_msg_id = ?`, errMsg, now, clientMsgID)
	return err
}

// ResetStaleOutbox requeues entries left in 'sending' by a previous run.
func (db *DB) ResetStaleOutbox() (int64, error) {
	res, err := db.Exec(`UPDATE outbox SET status = 'queued' WHERE status = 'sending'`)
	if err != nil {
		return 0, fmt.Errorf("reset outbox: %w", err)
	}
	return res.RowsAffected()
}

// PendingOutbox returns outbox entries that are still queued, oldest first.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_msg_id, kind, conversation_id, recipient, group_id, body,
			attachments, timestamps, target_author, status, error_message, server_ts
		FROM outbox WHERE status = 'queued' ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var kind, attachments, timestamps string
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &kind, &e.ConversationID, &e.Recipient, &e.GroupID, &e.Body,
			&attachments, &timestamps, &e.TargetAuthor, &e.Status, &e.ErrorMessage, &e.ServerTs); err != nil {
			return nil, err
		}
		e.Kind = OutboxKind(kind)
		if attachments != "" {
			if err := json.Unmarshal([]byte(attachments), &e.Attachments); err != nil {
				return nil, fmt.Errorf("decode outbox attachments: %w", err)
			}
		}
		if timestamps != "" {
			if err := json.Unmarshal([]byte(timestamps), &e.Timestamps); err != nil {
				return nil, fmt.Errorf("decode outbox timestamps: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
