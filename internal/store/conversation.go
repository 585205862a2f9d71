package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const conversationColumns = `id, kind, recipient_uuid, recipient_number, recipient_name,
	group_id, group_name, last_message_timestamp, unread_count, is_archived, is_muted`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var kind string
	if err := row.Scan(&c.ID, &kind, &c.RecipientUUID, &c.RecipientNumber, &c.RecipientName,
		&c.GroupID, &c.GroupName, &c.LastMessageTimestamp, &c.UnreadCount, &c.IsArchived, &c.IsMuted); err != nil {
		return nil, err
	}
	c.Kind = ConversationKind(kind)
	return &c, nil
}

// ListConversations returns all conversations, most recently active first.
// Conversations that never saw a message sort last.
func (db *DB) ListConversations() ([]Conversation, error) {
	rows, err := db.Query(`
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE is_archived = 0
		ORDER BY CASE WHEN last_message_timestamp = 0 THEN 1 ELSE 0 END,
			last_message_timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation by id.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	c, err := scanConversation(db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// GetOrCreateDirectConversation finds the direct conversation for a peer by
// uuid, then by number, creating it when neither matches. Known empty fields
// are filled in from the arguments.
func (db *DB) GetOrCreateDirectConversation(peerUUID, number, name string) (*Conversation, error) {
	var c *Conversation
	var err error
	if peerUUID != "" {
		c, err = scanConversation(db.QueryRow(`SELECT `+conversationColumns+`
			FROM conversations WHERE kind = 'direct' AND recipient_uuid = ?`, peerUUID))
	}
	if c == nil && number != "" {
		c, err = scanConversation(db.QueryRow(`SELECT `+conversationColumns+`
			FROM conversations WHERE kind = 'direct' AND recipient_number = ?`, number))
	}
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}

	if c != nil && err == nil {
		changed := false
		if c.RecipientUUID == "" && peerUUID != "" {
			c.RecipientUUID, changed = peerUUID, true
		}
		if c.RecipientNumber == "" && number != "" {
			c.RecipientNumber, changed = number, true
		}
		if c.RecipientName == "" && name != "" {
			c.RecipientName, changed = name, true
		}
		if changed {
			if _, err := db.Exec(`
				UPDATE conversations SET recipient_uuid = ?, recipient_number = ?, recipient_name = ?
				WHERE id = ?`, c.RecipientUUID, c.RecipientNumber, c.RecipientName, c.ID); err != nil {
				return nil, fmt.Errorf("update direct conversation: %w", err)
			}
		}
		return c, nil
	}

	if peerUUID == "" && number == "" {
		return nil, fmt.Errorf("create direct conversation: no peer identity")
	}
	c = &Conversation{
		ID:              uuid.NewString(),
		Kind:            KindDirect,
		RecipientUUID:   peerUUID,
		RecipientNumber: number,
		RecipientName:   name,
	}
	if err := db.insertConversation(c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetOrCreateGroupConversation finds or creates the conversation for a group.
func (db *DB) GetOrCreateGroupConversation(groupID, name string) (*Conversation, error) {
	if groupID == "" {
		return nil, fmt.Errorf("create group conversation: empty group id")
	}
	c, err := scanConversation(db.QueryRow(`SELECT `+conversationColumns+`
		FROM conversations WHERE kind = 'group' AND group_id = ?`, groupID))
	if err == nil {
		if c.GroupName == "" && name != "" {
			c.GroupName = name
			if _, err := db.Exec(`UPDATE conversations SET group_name = ? WHERE id = ?`, name, c.ID); err != nil {
				return nil, fmt.Errorf("update group conversation: %w", err)
			}
		}
		return c, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("find group conversation: %w", err)
	}

	c = &Conversation{
		ID:        uuid.NewString(),
		Kind:      KindGroup,
		GroupID:   groupID,
		GroupName: name,
	}
	if err := db.insertConversation(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (db *DB) insertConversation(c *Conversation) error {
	_, err := db.Exec(`
		INSERT INTO conversations (id, kind, recipient_uuid, recipient_number, recipient_name,
			group_id, group_name, last_message_timestamp, unread_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Kind), c.RecipientUUID, c.RecipientNumber, c.RecipientName,
		c.GroupID, c.GroupName, c.LastMessageTimestamp, c.UnreadCount, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// RenameDirect sets the display name of the direct conversation with a peer.
// It returns whether a row changed.
func (db *DB) RenameDirect(peerUUID, number, name string) (bool, error) {
	if name == "" || (peerUUID == "" && number == "") {
		return false, nil
	}
	res, err := db.Exec(`
		UPDATE conversations SET recipient_name = ?
		WHERE kind = 'direct' AND recipient_name != ?
			AND ((? != '' AND recipient_uuid = ?) OR (? != '' AND recipient_number = ?))`,
		name, name, peerUUID, peerUUID, number, number)
	if err != nil {
		return false, fmt.Errorf("rename direct conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RenameGroup sets the display name of a group conversation.
// It returns whether a row changed.
func (db *DB) RenameGroup(groupID, name string) (bool, error) {
	if name == "" || groupID == "" {
		return false, nil
	}
	res, err := db.Exec(`
		UPDATE conversations SET group_name = ?
		WHERE kind = 'group' AND group_id = ? AND group_name != ?`, name, groupID, name)
	if err != nil {
		return false, fmt.Errorf("rename group conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
