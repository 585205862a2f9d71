package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content is the payload of a message. The set of implementations is closed:
// Text, Attachments, Sticker and RemoteDeleted.
type Content interface {
	isContent()
}

// Text is a plain text body.
type Text struct {
	Body string
}

// Attachments is a list of files sent together.
type Attachments struct {
	Items []Attachment
}

// Attachment describes one file of an attachment message.
type Attachment struct {
	ID          string `json:"id,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Size        int64  `json:"size,omitempty"`
	LocalPath   string `json:"local_path,omitempty"`
}

// IsImage reports whether the attachment can be previewed inline.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/") && a.LocalPath != ""
}

// DisplayName returns the filename, falling back to the attachment id.
func (a Attachment) DisplayName() string {
	switch {
	case a.Filename != "":
		return a.Filename
	case a.ID != "":
		return a.ID
	}
	return "file"
}

// Sticker references a sticker in a sticker pack.
type Sticker struct {
	PackID    string `json:"pack_id"`
	StickerID int    `json:"sticker_id"`
}

// RemoteDeleted marks a message its sender deleted for everyone.
type RemoteDeleted struct{}

func (Text) isContent()          {}
func (Attachments) isContent()   {}
func (Sticker) isContent()       {}
func (RemoteDeleted) isContent() {}

const (
	contentText       = "text"
	contentAttachment = "attachment"
	contentSticker    = "sticker"
	contentDeleted    = "deleted"
)

// PlainText returns the text a user would copy out of a message.
func PlainText(c Content) string {
	switch v := c.(type) {
	case Text:
		return v.Body
	case Attachments:
		names := make([]string, 0, len(v.Items))
		for _, a := range v.Items {
			names = append(names, a.DisplayName())
		}
		return strings.Join(names, ", ")
	case Sticker:
		return "[Sticker]"
	case RemoteDeleted:
		return "[Message deleted]"
	}
	return ""
}

// ImagePaths returns the local paths of previewable image attachments.
func ImagePaths(c Content) []string {
	a, ok := c.(Attachments)
	if !ok {
		return nil
	}
	var paths []string
	for _, item := range a.Items {
		if item.IsImage() {
			paths = append(paths, item.LocalPath)
		}
	}
	return paths
}

// encodeContent splits content into the content_type/content_data columns.
func encodeContent(c Content) (string, string, error) {
	switch v := c.(type) {
	case Text:
		return contentText, v.Body, nil
	case Attachments:
		data, err := json.Marshal(v.Items)
		if err != nil {
			return "", "", fmt.Errorf("encode attachments: %w", err)
		}
		return contentAttachment, string(data), nil
	case Sticker:
		data, err := json.Marshal(v)
		if err != nil {
			return "", "", fmt.Errorf("encode sticker: %w", err)
		}
		return contentSticker, string(data), nil
	case RemoteDeleted:
		return contentDeleted, "", nil
	case nil:
		return "", "", fmt.Errorf("encode content: nil content")
	}
	return "", "", fmt.Errorf("encode content: unknown type %T", c)
}

// decodeContent is the inverse of encodeContent. Unknown types decode as text.
func decodeContent(contentType, data string) (Content, error) {
	switch contentType {
	case contentAttachment:
		var items []Attachment
		if err := json.Unmarshal([]byte(data), &items); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
		return Attachments{Items: items}, nil
	case contentSticker:
		var s Sticker
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("decode sticker: %w", err)
		}
		return s, nil
	case contentDeleted:
		return RemoteDeleted{}, nil
	}
	return Text{Body: data}, nil
}
