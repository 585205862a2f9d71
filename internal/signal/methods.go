package signal

import (
	"context"
	"time"
)

// linkTimeout bounds finishLink, which blocks until the phone scans the code.
const linkTimeout = 5 * time.Minute

// Target addresses a direct recipient or a group.
type Target struct {
	Recipient string
	GroupID   string
}

func (t Target) params(p map[string]any) map[string]any {
	if t.GroupID != "" {
		p["groupId"] = t.GroupID
	} else {
		p["recipient"] = []string{t.Recipient}
	}
	return p
}

// Send delivers a message to a direct recipient (uuid or E.164 number).
func (c *Client) Send(ctx context.Context, recipient, text string, attachments []string) (SendResult, error) {
	return c.send(ctx, Target{Recipient: recipient}, text, attachments)
}

// SendGroup delivers a message to a group.
func (c *Client) SendGroup(ctx context.Context, groupID, text string, attachments []string) (SendResult, error) {
	return c.send(ctx, Target{GroupID: groupID}, text, attachments)
}

func (c *Client) send(ctx context.Context, t Target, text string, attachments []string) (SendResult, error) {
	p := t.params(map[string]any{"message": text})
	if len(attachments) > 0 {
		p["attachments"] = attachments
	}
	var res SendResult
	err := c.call(ctx, "send", p, &res)
	return res, err
}

// RemoteDelete deletes one of the account's own messages for everyone.
func (c *Client) RemoteDelete(ctx context.Context, t Target, ts int64) error {
	return c.call(ctx, "remoteDelete", t.params(map[string]any{"targetTimestamp": ts}), nil)
}

// SendReadReceipt tells a sender their messages were read.
func (c *Client) SendReadReceipt(ctx context.Context, recipient string, timestamps []int64) error {
	return c.call(ctx, "sendReceipt", map[string]any{
		"recipient":       recipient,
		"targetTimestamp": timestamps,
		"type":            "read",
	}, nil)
}

// SendReaction adds or, with remove set, withdraws an emoji reaction.
func (c *Client) SendReaction(ctx context.Context, t Target, emoji, targetAuthor string, targetTs int64, remove bool) error {
	p := t.params(map[string]any{
		"emoji":           emoji,
		"targetAuthor":    targetAuthor,
		"targetTimestamp": targetTs,
	})
	if remove {
		p["remove"] = true
	}
	return c.call(ctx, "sendReaction", p, nil)
}

func (c *Client) ListContacts(ctx context.Context) ([]Contact, error) {
	var out []Contact
	err := c.call(ctx, "listContacts", nil, &out)
	return out, err
}

func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var out []Group
	err := c.call(ctx, "listGroups", nil, &out)
	return out, err
}

// ListAccounts returns the accounts registered with signal-cli.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	err := c.call(ctx, "listAccounts", nil, &out)
	return out, err
}

// StartLink begins linking this client as a secondary device and returns
// the sgnl:// URI to show as a QR code.
func (c *Client) StartLink(ctx context.Context) (string, error) {
	var out LinkURI
	if err := c.call(ctx, "startLink", nil, &out); err != nil {
		return "", err
	}
	return out.DeviceLinkURI, nil
}

// FinishLink waits for the phone to accept uri and returns the linked account.
func (c *Client) FinishLink(ctx context.Context, uri, deviceName string) (Account, error) {
	var out Account
	err := c.callTimeout(ctx, linkTimeout, "finishLink", map[string]any{
		"deviceLinkUri": uri,
		"deviceName":    deviceName,
	}, &out)
	return out, err
}
