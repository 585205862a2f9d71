package signal

import "strings"

// Account is one registered account as reported by listAccounts.
type Account struct {
	Number   string `json:"number"`
	UUID     string `json:"uuid,omitempty"`
	DeviceID int    `json:"deviceId,omitempty"`
}

// Contact is an entry of listContacts.
type Contact struct {
	Number      string `json:"number,omitempty"`
	UUID        string `json:"uuid,omitempty"`
	Name        string `json:"name,omitempty"`
	ProfileName string `json:"profileName,omitempty"`
	Blocked     bool   `json:"blocked,omitempty"`
}

// DisplayName prefers the profile name, then the contact name, then the number.
func (c Contact) DisplayName() string {
	switch {
	case c.ProfileName != "":
		return c.ProfileName
	case c.Name != "":
		return c.Name
	}
	return c.Number
}

// Group is an entry of listGroups.
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	Members   []string `json:"members,omitempty"`
	IsMember  bool     `json:"isMember,omitempty"`
	IsBlocked bool     `json:"isBlocked,omitempty"`
}

// incoming is the params object of a "receive" notification.
type incoming struct {
	Envelope *Envelope `json:"envelope"`
	Account  string    `json:"account,omitempty"`
}

// Envelope is one inbound unit from signal-cli.
type Envelope struct {
	Source                  string          `json:"source,omitempty"`
	SourceNumber            string          `json:"sourceNumber,omitempty"`
	SourceUUID              string          `json:"sourceUuid,omitempty"`
	SourceName              string          `json:"sourceName,omitempty"`
	SourceDevice            int             `json:"sourceDevice,omitempty"`
	Timestamp               int64           `json:"timestamp,omitempty"`
	ServerReceivedTimestamp int64           `json:"serverReceivedTimestamp,omitempty"`
	DataMessage             *DataMessage    `json:"dataMessage,omitempty"`
	SyncMessage             *SyncMessage    `json:"syncMessage,omitempty"`
	ReceiptMessage          *ReceiptMessage `json:"receiptMessage,omitempty"`
	TypingMessage           *TypingMessage  `json:"typingMessage,omitempty"`
	EditMessage             *EditMessage    `json:"editMessage,omitempty"`
}

// Number returns the sender's phone number, whichever field carried it.
func (e *Envelope) Number() string {
	if e.SourceNumber != "" {
		return e.SourceNumber
	}
	if strings.HasPrefix(e.Source, "+") {
		return e.Source
	}
	return ""
}

type DataMessage struct {
	Timestamp        int64         `json:"timestamp,omitempty"`
	Message          string        `json:"message,omitempty"`
	ExpiresInSeconds int           `json:"expiresInSeconds,omitempty"`
	GroupInfo        *GroupInfo    `json:"groupInfo,omitempty"`
	Attachments      []Attachment  `json:"attachments,omitempty"`
	Quote            *Quote        `json:"quote,omitempty"`
	Reaction         *Reaction     `json:"reaction,omitempty"`
	RemoteDelete     *RemoteDelete `json:"remoteDelete,omitempty"`
	Sticker          *Sticker      `json:"sticker,omitempty"`
}

type GroupInfo struct {
	GroupID string `json:"groupId"`
	Type    string `json:"type,omitempty"`
}

type Attachment struct {
	ContentType string `json:"contentType,omitempty"`
	Filename    string `json:"filename,omitempty"`
	ID          string `json:"id,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

type Quote struct {
	ID         int64  `json:"id,omitempty"`
	Author     string `json:"author,omitempty"`
	AuthorUUID string `json:"authorUuid,omitempty"`
	Text       string `json:"text,omitempty"`
}

type Reaction struct {
	Emoji               string `json:"emoji"`
	TargetAuthor        string `json:"targetAuthor,omitempty"`
	TargetAuthorUUID    string `json:"targetAuthorUuid,omitempty"`
	TargetSentTimestamp int64  `json:"targetSentTimestamp,omitempty"`
	IsRemove            bool   `json:"isRemove,omitempty"`
}

type RemoteDelete struct {
	Timestamp int64 `json:"timestamp"`
}

type Sticker struct {
	PackID    string `json:"packId"`
	StickerID int    `json:"stickerId"`
}

// EditMessage replaces the body of an earlier message.
type EditMessage struct {
	TargetSentTimestamp int64        `json:"targetSentTimestamp"`
	DataMessage         *DataMessage `json:"dataMessage,omitempty"`
}

type SyncMessage struct {
	SentMessage  *SentMessage  `json:"sentMessage,omitempty"`
	ReadMessages []ReadMessage `json:"readMessages,omitempty"`
}

// SentMessage is the echo of a message sent from another device of the account.
type SentMessage struct {
	Destination       string       `json:"destination,omitempty"`
	DestinationNumber string       `json:"destinationNumber,omitempty"`
	DestinationUUID   string       `json:"destinationUuid,omitempty"`
	Timestamp         int64        `json:"timestamp,omitempty"`
	Message           string       `json:"message,omitempty"`
	GroupInfo         *GroupInfo   `json:"groupInfo,omitempty"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	Sticker           *Sticker     `json:"sticker,omitempty"`
	EditMessage       *EditMessage `json:"editMessage,omitempty"`
}

type ReadMessage struct {
	Sender     string `json:"sender,omitempty"`
	SenderUUID string `json:"senderUuid,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// ReceiptMessage acknowledges outgoing messages. Older signal-cli versions
// set Type; newer ones set the Is* flags.
type ReceiptMessage struct {
	Type       string  `json:"type,omitempty"`
	When       int64   `json:"when,omitempty"`
	IsDelivery bool    `json:"isDelivery,omitempty"`
	IsRead     bool    `json:"isRead,omitempty"`
	IsViewed   bool    `json:"isViewed,omitempty"`
	Timestamps []int64 `json:"timestamps,omitempty"`
}

// Kind normalizes the receipt to "delivery", "read" or "viewed".
func (r *ReceiptMessage) Kind() string {
	switch {
	case r.IsViewed || strings.EqualFold(r.Type, "VIEWED"):
		return "viewed"
	case r.IsRead || strings.EqualFold(r.Type, "READ"):
		return "read"
	case r.IsDelivery || strings.EqualFold(r.Type, "DELIVERY"):
		return "delivery"
	}
	return ""
}

type TypingMessage struct {
	Action    string `json:"action,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	GroupID   string `json:"groupId,omitempty"`
}

// SendResult is returned by send. Timestamp is the protocol timestamp the
// message was sent with.
type SendResult struct {
	Timestamp int64              `json:"timestamp"`
	Results   []SendResultDetail `json:"results,omitempty"`
}

type SendResultDetail struct {
	RecipientAddress struct {
		UUID   string `json:"uuid,omitempty"`
		Number string `json:"number,omitempty"`
	} `json:"recipientAddress"`
	Type string `json:"type,omitempty"`
}

// LinkURI is returned by startLink.
type LinkURI struct {
	DeviceLinkURI string `json:"deviceLinkUri"`
}
