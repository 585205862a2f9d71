package tui

import (
	"fmt"
	"strings"

	"github.com/matheus3301/sigtui/internal/tui/ui"
	"go.uber.org/zap"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

var commandHints = []ui.MenuHint{
	{Key: ":attach [path]", Description: "Stage a file for the next message, or browse for files"},
	{Key: ":detach", Description: "Drop staged files"},
	{Key: ":react <emoji>", Description: "React to the selected or newest message"},
	{Key: ":unreact", Description: "Withdraw your reaction"},
	{Key: ":info", Description: "Conversation and account details"},
	{Key: ":reload", Description: "Reload conversations from disk"},
	{Key: ":help", Description: "Show this help"},
	{Key: ":quit", Description: "Quit"},
}

func (a *App) executeCommand(cmd Command) {
	switch cmd.Name {
	case "":
	case "quit", "q":
		a.Stop()
	case "help", "h":
		a.showHelp()
	case "info":
		a.showInfo()
	case "reload":
		if err := a.engine.Reload(); err != nil {
			a.logger.Error("reload failed", zap.Error(err))
			a.flash.Err(fmt.Errorf("reload: %w", err))
			return
		}
		a.refreshList()
		a.flash.Info(fmt.Sprintf("%d conversations", len(a.engine.Conversations())))
	case "attach":
		if cmd.Args == "" {
			a.showFiles()
			return
		}
		att, err := a.composer.Stage(cmd.Args)
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.flash.Info(fmt.Sprintf("attached %s (%s), %d staged", att.Filename, att.ContentType, len(a.composer.Staged())))
		a.focus(a.composer)
	case "detach":
		a.composer.ClearStaged()
		a.flash.Info("attachments cleared")
	case "react":
		if cmd.Args == "" {
			a.flash.Warn("usage: :react <emoji>")
			return
		}
		a.react(cmd.Args)
	case "unreact":
		a.react("")
	default:
		a.flash.Warn("unknown command: " + cmd.Name)
	}
}
