package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func directConv(t *testing.T, db *DB, peer string) *Conversation {
	t.Helper()
	c, err := db.GetOrCreateDirectConversation(peer, "", "")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func textMsg(id, convID, sender string, ts int64, body string) *Message {
	return &Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       sender,
		Timestamp:      ts,
		ReceivedAt:     ts,
		Content:        Text{Body: body},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already migrated once.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 3 {
		t.Errorf("version = %d, want 3 (init + edits + outbox reactions)", result.Version)
	}

	version, dirty, err := db.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 3 || dirty {
		t.Errorf("SchemaVersion() = %d, %v; want 3, false", version, dirty)
	}
}

func TestMigrateSchemaHasRequiredColumns(t *testing.T) {
	db := testDB(t)

	requiredOps := []struct {
		desc  string
		query string
		args  []any
	}{
		{"insert conversation", "INSERT INTO conversations (id, kind, recipient_uuid) VALUES (?, ?, ?)", []any{"c1", "direct", "alice"}},
		{"insert message with edit flag", "INSERT INTO messages (id, conversation_id, sender_uuid, timestamp, content_type, content_data, is_edited) VALUES (?, ?, ?, ?, ?, ?, ?)", []any{"m1", "c1", "alice", 1000, "text", "hi", 1}},
		{"insert reaction", "INSERT INTO reactions (id, message_id, sender_uuid, emoji, timestamp) VALUES (?, ?, ?, ?, ?)", []any{"r1", "m1", "bob", "👍", 1001}},
		{"insert delivery status", "INSERT INTO delivery_status (message_id, recipient_uuid, status, timestamp) VALUES (?, ?, ?, ?)", []any{"m1", "bob", "delivered", 1002}},
		{"queue outbox", "INSERT INTO outbox (client_msg_id, kind, recipient, body) VALUES (?, ?, ?, ?)", []any{"cid", "message", "alice", "text"}},
	}

	for _, op := range requiredOps {
		t.Run(op.desc, func(t *testing.T) {
			if _, err := db.Exec(op.query, op.args...); err != nil {
				t.Fatalf("%s failed: %v", op.desc, err)
			}
		})
	}
}

func TestConversationDisplayName(t *testing.T) {
	tests := []struct {
		name string
		conv Conversation
		want string
	}{
		{"direct with name", Conversation{Kind: KindDirect, RecipientName: "Alice", RecipientNumber: "+1"}, "Alice"},
		{"direct number fallback", Conversation{Kind: KindDirect, RecipientNumber: "+15550001", RecipientUUID: "u"}, "+15550001"},
		{"direct uuid fallback", Conversation{Kind: KindDirect, RecipientUUID: "u-1"}, "u-1"},
		{"direct unknown", Conversation{Kind: KindDirect}, "Unknown"},
		{"group named", Conversation{Kind: KindGroup, GroupName: "Climbing", GroupID: "g"}, "Climbing"},
		{"group unnamed", Conversation{Kind: KindGroup, GroupID: "g"}, "Unknown Group"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conv.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetOrCreateDirectConversation(t *testing.T) {
	db := testDB(t)

	c1, err := db.GetOrCreateDirectConversation("alice-uuid", "", "")
	if err != nil {
		t.Fatal(err)
	}
	// Second lookup by uuid fills in the missing number and name.
	c2, err := db.GetOrCreateDirectConversation("alice-uuid", "+15550001", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if c1.ID != c2.ID {
		t.Fatalf("ids differ: %s vs %s", c1.ID, c2.ID)
	}
	// Lookup by number alone finds the same row.
	c3, err := db.GetOrCreateDirectConversation("", "+15550001", "")
	if err != nil {
		t.Fatal(err)
	}
	if c3.ID != c1.ID {
		t.Errorf("number lookup id = %s, want %s", c3.ID, c1.ID)
	}
	if c3.RecipientName != "Alice" {
		t.Errorf("name = %q, want Alice", c3.RecipientName)
	}

	if _, err := db.GetOrCreateDirectConversation("", "", ""); err == nil {
		t.Error("expected error for conversation without identity")
	}
}

func TestGetOrCreateGroupConversation(t *testing.T) {
	db := testDB(t)

	g1, err := db.GetOrCreateGroupConversation("group-1", "")
	if err != nil {
		t.Fatal(err)
	}
	g2, err := db.GetOrCreateGroupConversation("group-1", "Climbing")
	if err != nil {
		t.Fatal(err)
	}
	if g1.ID != g2.ID {
		t.Fatalf("ids differ: %s vs %s", g1.ID, g2.ID)
	}
	if g2.DisplayName() != "Climbing" {
		t.Errorf("DisplayName() = %q, want Climbing", g2.DisplayName())
	}
	if g2.Identifier() != "group-1" {
		t.Errorf("Identifier() = %q, want group-1", g2.Identifier())
	}
}

func TestListConversationsOrdersByWatermark(t *testing.T) {
	db := testDB(t)

	a := directConv(t, db, "alice")
	b := directConv(t, db, "bob")
	_ = directConv(t, db, "carol") // never messaged, sorts last

	if err := db.SaveMessage(textMsg("m1", a.ID, "alice", 1000, "old")); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMessage(textMsg("m2", b.ID, "bob", 2000, "new")); err != nil {
		t.Fatal(err)
	}

	convs, err := db.ListConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 3 {
		t.Fatalf("got %d conversations, want 3", len(convs))
	}
	order := []string{convs[0].RecipientUUID, convs[1].RecipientUUID, convs[2].RecipientUUID}
	want := []string{"bob", "alice", "carol"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if convs[0].LastMessageTimestamp != 2000 {
		t.Errorf("watermark = %d, want 2000", convs[0].LastMessageTimestamp)
	}
	if convs[0].UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", convs[0].UnreadCount)
	}
}

func TestSaveMessageIdempotentAndWatermarkMonotonic(t *testing.T) {
	db := testDB(t)
	c := directConv(t, db, "alice")

	msg := textMsg("m1", c.ID, "alice", 5000, "hello")
	if err := db.SaveMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg.Content = Text{Body: "hello updated"}
	if err := db.SaveMessage(msg); err != nil {
		t.Fatal(err)
	}
	// An older message must not lower the watermark.
	if err := db.SaveMessage(textMsg("m0", c.ID, "alice", 1000, "older")); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(c.ID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if body := PlainText(msgs[1].Content); body != "hello updated" {
		t.Errorf("body = %q, want hello updated", body)
	}

	got, err := db.GetConversation(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessageTimestamp != 5000 {
		t.Errorf("watermark = %d, want 5000", got.LastMessageTimestamp)
	}
}

func TestListMessagesPagination(t *testing.T) {
	db := testDB(t)
	c := directConv(t, db, "alice")

	for i := int64(1); i <= 5; i++ {
		if err := db.SaveMessage(textMsg("m"+string(rune('0'+i)), c.ID, "alice", i*1000, "x")); err != nil {
			t.Fatal(err)
		}
	}

	newest, err := db.ListMessages(c.ID, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(newest) != 2 || newest[0].Timestamp != 4000 || newest[1].Timestamp != 5000 {
		t.Fatalf("newest page = %v, want ascending [4000 5000]", timestamps(newest))
	}

	older, err := db.ListMessages(c.ID, 2, newest[0].Timestamp)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 2 || older[0].Timestamp != 2000 || older[1].Timestamp != 3000 {
		t.Fatalf("older page = %v, want [2000 3000]", timestamps(older))
	}

	oldest, err := db.ListMessages(c.ID, 2, older[0].Timestamp)
	if err != nil {
		t.Fatal(err)
	}
	if len(oldest) != 1 || oldest[0].Timestamp != 1000 {
		t.Fatalf("oldest page = %v, want [1000]", timestamps(oldest))
	}
}

func timestamps(msgs []Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Timestamp
	}
	return out
}

func TestContentRoundTripsThroughStore(t *testing.T) {
	db := testDB(t)
	c := directConv(t, db, "alice")

	contents := map[string]Content{
		"text":       Text{Body: "plain"},
		"attachment": Attachments{Items: []Attachment{{ID: "a1", ContentType: "image/png", Filename: "cat.png", Size: 42, LocalPath: "a1"}}},
		"sticker":    Sticker{PackID: "pack", StickerID: 7},
		"deleted":    RemoteDeleted{},
	}
	ts := int64(1000)
	for id, content := range contents {
		m := textMsg(id, c.ID, "alice", ts, "")
		m.Content = content
		if err := db.SaveMessage(m); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
		ts++
	}

	msgs, err := db.ListMessages(c.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range msgs {
		want := contents[m.ID]
		switch w := want.(type) {
		case Attachments:
			got, ok := m.Content.(Attachments)
			if !ok || len(got.Items) != 1 || got.Items[0] != w.Items[0] {
				t.Errorf("%s content = %#v, want %#v", m.ID, m.Content, want)
			}
		default:
			if m.Content != want {
				t.Errorf("%s content = %#v, want %#v", m.ID, m.Content, want)
			}
		}
	}
}

func TestGetMessageBySignalID(t *testing.T) {
	db := testDB(t)
	c := directConv(t, db, "alice")

	if err := db.SaveMessage(textMsg("m1", c.ID, "alice", 1000, "hi")); err != nil {
		t.Fatal(err)
	}
	own := textMsg("m2", c.ID, "", 2000, "mine")
	own.IsOutgoing = true
	if err := db.SaveMessage(own); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		own    bool
		sender string
		ts     int64
		wantID string
	}{
		{"exact match", false, "alice", 1000, "m1"},
		{"wrong sender", false, "bob", 1000, ""},
		{"wrong timestamp", false, "alice", 1001, ""},
		{"blank stored sender is not another sender's id", false, "bob", 2000, ""},
		{"blank sender matches blank stored sender", false, "", 2000, "m2"},
		{"own lookup matches blank stored sender", true, "self-uuid", 2000, "m2"},
		{"own lookup skips incoming messages", true, "", 1000, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := db.GetMessageBySignalID
			if tt.own {
				lookup = db.GetOwnMessageBySignalID
			}
			m, err := lookup(tt.sender, tt.ts)
			if err != nil {
				t.Fatal(err)
			}
			got := ""
			if m != nil {
				got = m.ID
			}
			if got != tt.wantID {
				t.Errorf("lookup(%q, %d, own=%v) = %q, want %q", tt.sender, tt.ts, tt.own, got, tt.wantID)
			}
		})
	}
}

func TestEditsDoNotCrossSenders(t *testing.T) {
	db := testDB(t)
	c := directConv(t, db, "bob")

	own := textMsg("m1", c.ID, "", 7000, "mine")
	own.IsOutgoing = true
	if err := db.SaveMessage(own); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateMessageContent("bob", 7000, Text{Body: "hijacked"}); err != nil {
		t.Fatal(err)
	}
	m, err := db.GetMessageBySignalID("", 7000)
	if err != nil {
		t.Fatal(err)
	}
	if m.Content != (Text{Body: "mine"}) || m.IsEdited {
		t.Fatalf("after bob's edit got %+v, want untouched", m)
	}

	if err := db.UpdateOwnMessageContent("self-uuid", 7000, Text{Body: "fixed"}); err != nil {
		t.Fatal(err)
	}
	m, err = db.GetMessageBySignalID("", 7000)
	if err != nil {
		t.Fatal(err)
	}
	if m.Content != (Text{Body: "fixed"}) || !m.IsEdited {
		t.Errorf("after own edit got %+v, want fixed and edited", m)
	}
}

func TestUpdateMessageContentFlagsEdit(t *testing.T) {
	db := testDB(t)
	c := directConv(t, db, "alice")

	if err := db.SaveMessage(textMsg("m1", c.ID, "alice", 1000, "hi")); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateMessageContent("alice", 1000, Text{Body: "hi there"}); err != nil {
		t.Fatal(err)
	}

	m, err := db.GetMessageBySignalID("alice", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("message missing after edit")
	}
	if !m.IsEdited {
		t.Error("is_edited = false, want true")
	}
	if PlainText(m.Content) != "hi there" {
		t.Errorf("body = %q, want hi there", PlainText(m.Content))
	}
	if m.ID != "m1" || m.Timestamp != 1000 {
		t.Errorf("identity changed: id=%s ts=%d", m.ID, m.Timestamp)
	}
}

func TestMarkMessagesReadRecountsUnread(t *testing.T) {
	db := testDB(t)
	c := directConv(t, db, "alice")

	for i, ts := range []int64{1000, 2000, 3000} {
		if err := db.SaveMessage(textMsg(string(rune('a'+i)), c.ID, "alice", ts, "x")); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.MarkMessagesRead(c.ID, 2000); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetConversation(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", got.UnreadCount)
	}
}

func TestDeleteAndTombstone(t *testing.T) {
	db := testDB(t)
	c := directConv(t, db, "alice")

	if err := db.SaveMessage(textMsg("m1", c.ID, "alice", 1000, "one")); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMessage(textMsg("m2", c.ID, "alice", 2000, "two")); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteMessage("m1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkMessageDeleted("alice", 2000); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(c.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if _, ok := msgs[0].Content.(RemoteDeleted); !ok || !msgs[0].IsDeleted {
		t.Errorf("content = %#v deleted=%v, want tombstone", msgs[0].Content, msgs[0].IsDeleted)
	}
}

func TestUpdateMessageTimestamp(t *testing.T) {
	db := testDB(t)
	c := directConv(t, db, "alice")

	own := textMsg("m1", c.ID, "", 1000, "optimistic")
	own.IsOutgoing = true
	if err := db.SaveMessage(own); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateMessageTimestamp("m1", 1500); err != nil {
		t.Fatal(err)
	}
	m, err := db.GetMessageBySignalID("", 1500)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.ID != "m1" || m.ServerTimestamp != 1500 {
		t.Fatalf("got %+v, want m1 at 1500", m)
	}
	got, err := db.GetConversation(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessageTimestamp != 1500 {
		t.Errorf("watermark = %d, want 1500", got.LastMessageTimestamp)
	}
}

func TestReactionsAndDeliveryAttachToMessages(t *testing.T) {
	db := testDB(t)
	c := directConv(t, db, "alice")

	own := textMsg("m1", c.ID, "me", 1000, "hello")
	own.IsOutgoing = true
	if err := db.SaveMessage(own); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveReaction(&Reaction{MessageID: "m1", SenderUUID: "alice", Emoji: "👍", Timestamp: 1100}); err != nil {
		t.Fatal(err)
	}
	// Same sender reacting again replaces the emoji.
	if err := db.SaveReaction(&Reaction{MessageID: "m1", SenderUUID: "alice", Emoji: "❤️", Timestamp: 1200}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveDeliveryStatus("m1", "alice", DeliveryRead, 1300); err != nil {
		t.Fatal(err)
	}
	// A late delivery receipt does not downgrade read.
	if err := db.SaveDeliveryStatus("m1", "alice", DeliveryDelivered, 1400); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(c.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if len(msgs[0].Reactions) != 1 || msgs[0].Reactions[0].Emoji != "❤️" {
		t.Errorf("reactions = %+v, want single ❤️", msgs[0].Reactions)
	}
	if msgs[0].Delivery != DeliveryRead {
		t.Errorf("delivery = %q, want read", msgs[0].Delivery)
	}

	if err := db.RemoveReaction("m1", "alice"); err != nil {
		t.Fatal(err)
	}
	msgs, err = db.ListMessages(c.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs[0].Reactions) != 0 {
		t.Errorf("reactions = %+v, want none after removal", msgs[0].Reactions)
	}
}

func TestRenameConversations(t *testing.T) {
	db := testDB(t)
	_ = directConv(t, db, "alice")
	if _, err := db.GetOrCreateGroupConversation("g1", ""); err != nil {
		t.Fatal(err)
	}

	changed, err := db.RenameDirect("alice", "", "Alice")
	if err != nil || !changed {
		t.Fatalf("RenameDirect = %v, %v; want true, nil", changed, err)
	}
	changed, err = db.RenameDirect("alice", "", "Alice")
	if err != nil || changed {
		t.Errorf("repeat RenameDirect = %v, %v; want false, nil", changed, err)
	}
	changed, err = db.RenameGroup("g1", "Climbing")
	if err != nil || !changed {
		t.Fatalf("RenameGroup = %v, %v; want true, nil", changed, err)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)

	entry := &OutboxEntry{
		ClientMsgID: "c1",
		Kind:        OutboxMessage,
		Recipient:   "alice",
		Body:        "hello",
		Attachments: []string{"/tmp/cat.png"},
	}
	if err := db.QueueOutbox(entry); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox(&OutboxEntry{ClientMsgID: "c2", Kind: OutboxRemoteDelete, GroupID: "g1", Timestamps: []int64{1, 2}}); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	if pending[0].Kind != OutboxMessage || len(pending[0].Attachments) != 1 {
		t.Errorf("first entry = %+v", pending[0])
	}
	if pending[1].Kind != OutboxRemoteDelete || len(pending[1].Timestamps) != 2 {
		t.Errorf("second entry = %+v", pending[1])
	}

	if err := db.MarkOutboxSending("c1"); err != nil {
		t.Fatal(err)
	}
	if n, err := db.ResetStaleOutbox(); err != nil || n != 1 {
		t.Errorf("ResetStaleOutbox() = %d, %v; want 1, nil", n, err)
	}
	if err := db.MarkOutboxSent("c1", 1234); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxFailed("c2", "boom"); err != nil {
		t.Fatal(err)
	}
	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0", len(pending))
	}
}

func TestOutboxReactionEntry(t *testing.T) {
	db := testDB(t)

	err := db.QueueOutbox(&OutboxEntry{
		ClientMsgID:  "r1",
		Kind:         OutboxReaction,
		Recipient:    "u-bob",
		Body:         "👍",
		Timestamps:   []int64{1700000000000},
		TargetAuthor: "u-bob",
	})
	if err != nil {
		t.Fatal(err)
	}
	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	got := pending[0]
	if got.Kind != OutboxReaction || got.Body != "👍" || got.TargetAuthor != "u-bob" {
		t.Errorf("reaction entry = %+v", got)
	}
	if len(got.Timestamps) != 1 || got.Timestamps[0] != 1700000000000 {
		t.Errorf("Timestamps = %v, want [1700000000000]", got.Timestamps)
	}
}
