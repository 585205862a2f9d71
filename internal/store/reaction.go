package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// SaveReaction records a sender's reaction on a message, replacing any
// earlier reaction from the same sender.
func (db *DB) SaveReaction(r *Reaction) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := db.Exec(`
		INSERT INTO reactions (id, message_id, sender_uuid, emoji, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(message_id, sender_uuid) DO UPDATE SET
			emoji = excluded.emoji,
			timestamp = excluded.timestamp`,
		r.ID, r.MessageID, r.SenderUUID, r.Emoji, r.Timestamp)
	if err != nil {
		return fmt.Errorf("save reaction: %w", err)
	}
	return nil
}

// RemoveReaction deletes a sender's reaction on a message.
func (db *DB) RemoveReaction(messageID, senderUUID string) error {
	if _, err := db.Exec(`DELETE FROM reactions WHERE message_id = ? AND sender_uuid = ?`, messageID, senderUUID); err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

// SaveDeliveryStatus records a receipt for an outgoing message. A receipt
// never downgrades the state already stored for the same recipient.
func (db *DB) SaveDeliveryStatus(messageID, recipient string, state DeliveryState, ts int64) error {
	var current string
	err := db.QueryRow(`SELECT status FROM delivery_status WHERE message_id = ? AND recipient_uuid = ?`,
		messageID, recipient).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("get delivery status: %w", err)
	}
	if err == nil && DeliveryState(current).Rank() >= state.Rank() {
		return nil
	}
	_, err = db.Exec(`
		INSERT INTO delivery_status (message_id, recipient_uuid, status, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, recipient_uuid) DO UPDATE SET
			status = excluded.status,
			timestamp = excluded.timestamp`,
		messageID, recipient, string(state), ts)
	if err != nil {
		return fmt.Errorf("save delivery status: %w", err)
	}
	return nil
}
