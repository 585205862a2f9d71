package store

// ConversationKind distinguishes one-to-one threads from group threads.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// Conversation represents a direct peer or group thread.
type Conversation struct {
	ID                   string
	Kind                 ConversationKind
	RecipientUUID        string
	RecipientNumber      string
	RecipientName        string
	GroupID              string
	GroupName            string
	LastMessageTimestamp int64
	UnreadCount          int
	IsArchived           bool
	IsMuted              bool
}

// DisplayName returns the best human-readable name for the conversation.
func (c *Conversation) DisplayName() string {
	if c.Kind == KindGroup {
		if c.GroupName != "" {
			return c.GroupName
		}
		return "Unknown Group"
	}
	switch {
	case c.RecipientName != "":
		return c.RecipientName
	case c.RecipientNumber != "":
		return c.RecipientNumber
	case c.RecipientUUID != "":
		return c.RecipientUUID
	}
	return "Unknown"
}

// Identifier returns the address the backend expects for this conversation:
// the peer uuid (or number) for direct threads, the group id for groups.
func (c *Conversation) Identifier() string {
	if c.Kind == KindGroup {
		return c.GroupID
	}
	if c.RecipientUUID != "" {
		return c.RecipientUUID
	}
	return c.RecipientNumber
}

// Quote references the message a reply was written against.
type Quote struct {
	ID         int64  `json:"id"`
	AuthorUUID string `json:"author_uuid,omitempty"`
	Text       string `json:"text,omitempty"`
}

// Message represents a cached message.
type Message struct {
	ID              string
	ConversationID  string
	SenderID        string
	SenderName      string
	Timestamp       int64
	ServerTimestamp int64
	ReceivedAt      int64
	Content         Content
	Quote           *Quote
	IsOutgoing      bool
	IsRead          bool
	IsDeleted       bool
	IsEdited        bool

	// Populated by ListMessages; not written by SaveMessage.
	Reactions []Reaction
	Delivery  DeliveryState
}

// SameSignalID reports whether m is the message identified by sender and ts.
func (m *Message) SameSignalID(sender string, ts int64) bool {
	return m.Timestamp == ts && m.SenderID == sender
}

// SameOwnSignalID is SameSignalID for the local account's outgoing
// messages: a blank sender on either side matches.
func (m *Message) SameOwnSignalID(sender string, ts int64) bool {
	if m.Timestamp != ts || !m.IsOutgoing {
		return false
	}
	return m.SenderID == sender || m.SenderID == "" || sender == ""
}

// Reaction is an emoji reaction left on a message.
type Reaction struct {
	ID         string
	MessageID  string
	SenderUUID string
	Emoji      string
	Timestamp  int64
}

// DeliveryState is the best receipt seen for an outgoing message.
type DeliveryState string

const (
	DeliveryNone      DeliveryState = ""
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryRead      DeliveryState = "read"
	DeliveryViewed    DeliveryState = "viewed"
)

// Rank orders delivery states; a receipt never lowers it.
func (d DeliveryState) Rank() int {
	switch d {
	case DeliverySent:
		return 1
	case DeliveryDelivered:
		return 2
	case DeliveryRead:
		return 3
	case DeliveryViewed:
		return 4
	}
	return 0
}

// OutboxKind identifies what a queued outbox entry asks the backend to do.
type OutboxKind string

const (
	OutboxMessage      OutboxKind = "message"
	OutboxRemoteDelete OutboxKind = "remote_delete"
	OutboxReceipt      OutboxKind = "receipt"
	OutboxReaction     OutboxKind = "reaction"
)

// OutboxEntry represents a pending backend operation. A reaction carries the
// emoji in Body (empty to withdraw it) and the target in TargetAuthor and
// Timestamps[0].
type OutboxEntry struct {
	ID             int64
	ClientMsgID    string
	Kind           OutboxKind
	ConversationID string
	Recipient      string
	GroupID        string
	Body           string
	Attachments    []string
	Timestamps     []int64
	TargetAuthor   string
	Status         string // queued, sending, sent, failed
	ErrorMessage   string
	ServerTs       int64
}
