package views

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/sigtui/internal/store"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages. Files staged with
// :attach go out with the next send.
type Composer struct {
	*tview.InputField
	staged []store.Attachment
	onSend func(text string, attachments []store.Attachment)
}

// NewComposer creates a new message composer.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			c.Submit()
		}
	})

	return c
}

// SetOnSend sets the callback when a message is sent.
func (c *Composer) SetOnSend(fn func(text string, attachments []store.Attachment)) {
	c.onSend = fn
}

// Submit hands the text and staged files to the send callback and clears
// both. Nothing happens when there is neither text nor a staged file.
func (c *Composer) Submit() {
	text := c.GetText()
	if (text == "" && len(c.staged) == 0) || c.onSend == nil {
		return
	}
	atts := c.staged
	c.onSend(text, atts)
	c.SetText("")
	c.ClearStaged()
}

// Stage adds a local file to the next message.
func (c *Composer) Stage(path string) (store.Attachment, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return store.Attachment{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return store.Attachment{}, err
	}
	if info.IsDir() {
		return store.Attachment{}, fmt.Errorf("%s is a directory", path)
	}
	mt, err := mimetype.DetectFile(abs)
	if err != nil {
		return store.Attachment{}, fmt.Errorf("detect type of %s: %w", path, err)
	}
	att := store.Attachment{
		ContentType: mt.String(),
		Filename:    filepath.Base(abs),
		Size:        info.Size(),
		LocalPath:   abs,
	}
	c.staged = append(c.staged, att)
	c.updateLabel()
	return att, nil
}

// Staged returns the files waiting for the next send.
func (c *Composer) Staged() []store.Attachment {
	return c.staged
}

// ClearStaged drops all staged files.
func (c *Composer) ClearStaged() {
	c.staged = nil
	c.updateLabel()
}

func (c *Composer) updateLabel() {
	if len(c.staged) == 0 {
		c.SetLabel(" > ")
		return
	}
	c.SetLabel(fmt.Sprintf(" [+%d] > ", len(c.staged)))
}
