package tui

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/matheus3301/sigtui/internal/app"
	"github.com/matheus3301/sigtui/internal/bus"
	"github.com/matheus3301/sigtui/internal/engine"
	"github.com/matheus3301/sigtui/internal/images"
	"github.com/matheus3301/sigtui/internal/outbox"
	"github.com/matheus3301/sigtui/internal/signal"
	"github.com/matheus3301/sigtui/internal/status"
	"github.com/matheus3301/sigtui/internal/store"
	"github.com/matheus3301/sigtui/internal/tui/keys"
	"github.com/matheus3301/sigtui/internal/tui/ui"
	"github.com/matheus3301/sigtui/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageMain  = "main"
	pageHelp  = "help"
	pageInfo  = "info"
	pageFiles = "files"

	promptHeight = 3
	pageSteps    = 10
)

// Outbox queues backend operations. *outbox.Sender implements it.
type Outbox interface {
	Enqueue(e *store.OutboxEntry) error
}

// Counter reports store totals for the info page. *store.DB implements it.
type Counter interface {
	Counts() (conversations, messages int64, err error)
}

// Deps is what the terminal UI drives.
type Deps struct {
	Account string
	Engine  *engine.Engine
	Outbox  Outbox
	Bus     *bus.Bus
	Machine *status.Machine
	Images  *images.Pipeline // nil when previews are off
	Avatars *images.Avatars  // nil when avatars are off
	Store   Counter
	Logger  *zap.Logger

	// Clipboard receives yanked text; defaults to the system clipboard.
	Clipboard func(text string) error
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	root     *tview.Flex
	pages    *ui.Pages
	theme    *ui.Theme
	flash    *ui.FlashModel
	registry *keys.Registry
	engine   *engine.Engine
	deps     Deps
	logger   *zap.Logger

	list        *views.ConversationList
	timeline    *views.Timeline
	composer    *views.Composer
	prompt      *ui.Prompt
	statusBar   *views.StatusBar
	menu        *ui.Menu
	help        *views.HelpView
	info        *views.ConversationInfo
	accountInfo *ui.AccountInfo
	files       *views.FileBrowser

	promptOpen bool
	// promptFrom regains focus when the prompt closes.
	promptFrom tview.Primitive
	dropped    uint64
	inbox      inbox
	started    time.Time
	ctx        context.Context
	cancel     context.CancelFunc
}

// inbox holds bus events until the UI goroutine takes them. At most one
// drain is queued on the application at a time, so feeders never wait on
// tview's update queue.
type inbox struct {
	mu        sync.Mutex
	events    []bus.Event
	scheduled bool
}

// New creates the TUI application. Nothing runs until Run.
func New(d Deps) *App {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clipboard == nil {
		d.Clipboard = clipboard.WriteAll
	}
	theme := ui.DefaultTheme()
	flash := ui.NewFlashModel()
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:         tview.NewApplication(),
		pages:       ui.NewPages(),
		theme:       theme,
		flash:       flash,
		registry:    keys.NewRegistry(),
		engine:      d.Engine,
		deps:        d,
		logger:      d.Logger.Named("tui"),
		list:        views.NewConversationList(theme),
		timeline:    views.NewTimeline(theme),
		composer:    views.NewComposer(),
		prompt:      ui.NewPrompt(theme),
		statusBar:   views.NewStatusBar(theme, flash),
		menu:        ui.NewMenu(theme),
		help:        views.NewHelpView(theme),
		info:        views.NewConversationInfo(theme),
		accountInfo: ui.NewAccountInfo(theme),
		files:       views.NewFileBrowser(theme),
		started:     time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}

	if d.Avatars != nil {
		a.list.SetAvatarFunc(a.avatar)
	}
	a.statusBar.SetAccount(d.Account)
	if d.Machine != nil {
		a.statusBar.SetState(d.Machine.Current())
	}
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	a.refreshList()
	if ids := a.list.Visible(); len(ids) > 0 {
		a.selectConversation(ids[0])
	}
	a.focus(a.list)

	// Subscribe before the backend starts; events collect in the inbox
	// until Run. Envelopes and outbox results must not be lost.
	if d.Bus != nil {
		d.Bus.ForwardReliable(ctx, "signal", 256, a.deliver)
		d.Bus.ForwardReliable(ctx, "outbox", 64, a.deliver)
		d.Bus.Forward(ctx, "session", 16, a.deliver)
		d.Bus.Forward(ctx, "directory", 4, a.deliver)
	}
	return a
}

// avatar returns the picture of a direct conversation's peer.
func (a *App) avatar(v *engine.ConversationView) (images.Entry, bool) {
	c := v.Conversation
	if c.Kind == store.KindGroup {
		return images.Entry{}, false
	}
	return a.deps.Avatars.Get(c.RecipientNumber, c.RecipientUUID)
}

func (a *App) deliver(ev bus.Event) {
	a.inbox.mu.Lock()
	a.inbox.events = append(a.inbox.events, ev)
	schedule := !a.inbox.scheduled
	a.inbox.scheduled = true
	a.inbox.mu.Unlock()
	if schedule {
		a.app.QueueUpdateDraw(a.drainInbox)
	}
}

// drainInbox handles every collected event in arrival order.
func (a *App) drainInbox() {
	a.inbox.mu.Lock()
	events := a.inbox.events
	a.inbox.events = nil
	a.inbox.scheduled = false
	a.inbox.mu.Unlock()
	for _, ev := range events {
		a.handleEvent(ev)
	}
}

func (a *App) setupBindings() {
	r := a.registry
	ch := func(scope string, c rune, label, desc string, visible bool, fn func()) {
		r.Add(scope, &keys.Action{Key: tcell.KeyRune, Rune: c, Label: label, Description: desc, Visible: visible, Handler: fn})
	}
	key := func(scope string, k tcell.Key, mod tcell.ModMask, label, desc string, visible bool, fn func()) {
		r.Add(scope, &keys.Action{Key: k, Mod: mod, Label: label, Description: desc, Visible: visible, Handler: fn})
	}
	e := a.engine

	ch(keys.ScopeGlobal, '?', "?", "Help", true, a.showHelp)
	ch(keys.ScopeGlobal, ':', ":", "Command", true, func() { a.openPrompt(ui.PromptCommand, "") })
	key(keys.ScopeGlobal, tcell.KeyTab, 0, "Tab", "Next pane", true, a.cycleFocus)
	ch(keys.ScopeGlobal, 'q', "q", "Quit", true, a.Stop)
	key(keys.ScopeGlobal, tcell.KeyCtrlC, 0, "Ctrl-C", "Quit", false, a.Stop)

	ch(keys.ScopeConversations, 'j', "j/k", "Move", true, func() { a.moveConversation(1) })
	ch(keys.ScopeConversations, 'k', "j/k", "Move", false, func() { a.moveConversation(-1) })
	key(keys.ScopeConversations, tcell.KeyDown, 0, "j/k", "Move", false, func() { a.moveConversation(1) })
	key(keys.ScopeConversations, tcell.KeyUp, 0, "j/k", "Move", false, func() { a.moveConversation(-1) })
	ch(keys.ScopeConversations, '/', "/", "Filter", true, func() { a.openPrompt(ui.PromptFilter, a.list.Filter()) })
	key(keys.ScopeConversations, tcell.KeyEnter, 0, "Enter", "Open", true, func() { a.focus(a.timeline) })
	ch(keys.ScopeConversations, 'i', "i", "Write", true, func() { a.focus(a.composer) })
	ch(keys.ScopeConversations, 'a', "a", "Attach", true, a.showFiles)

	ch(keys.ScopeMessages, 'j', "j/k", "Scroll", true, e.ScrollDown)
	ch(keys.ScopeMessages, 'k', "j/k", "Scroll", false, e.ScrollUp)
	key(keys.ScopeMessages, tcell.KeyDown, 0, "j/k", "Scroll", false, e.ScrollDown)
	key(keys.ScopeMessages, tcell.KeyUp, 0, "j/k", "Scroll", false, e.ScrollUp)
	key(keys.ScopeMessages, tcell.KeyPgUp, 0, "PgUp/PgDn", "Page", true, func() { repeat(pageSteps, e.ScrollUp) })
	key(keys.ScopeMessages, tcell.KeyPgDn, 0, "PgUp/PgDn", "Page", false, func() { repeat(pageSteps, e.ScrollDown) })
	key(keys.ScopeMessages, tcell.KeyHome, 0, "Home/End", "Oldest/newest", true, e.ScrollToTop)
	key(keys.ScopeMessages, tcell.KeyEnd, 0, "Home/End", "Oldest/newest", false, e.ScrollToBottom)
	ch(keys.ScopeMessages, 'v', "v", "Select", true, a.enterSelection)
	ch(keys.ScopeMessages, 'r', "r", "React to newest", true, func() { a.openPrompt(ui.PromptCommand, "react ") })
	ch(keys.ScopeMessages, 'i', "i", "Write", true, func() { a.focus(a.composer) })
	ch(keys.ScopeMessages, 'a', "a", "Attach", true, a.showFiles)
	key(keys.ScopeMessages, tcell.KeyEnter, 0, "i", "Write", false, func() { a.focus(a.composer) })
	key(keys.ScopeMessages, tcell.KeyEscape, 0, "Esc", "Back", true, func() { a.focus(a.list) })

	// Shifted arrows must precede the plain ones.
	key(keys.ScopeSelection, tcell.KeyDown, tcell.ModShift, "J/K", "Extend", false, func() { e.MoveSelection(1, true) })
	key(keys.ScopeSelection, tcell.KeyUp, tcell.ModShift, "J/K", "Extend", false, func() { e.MoveSelection(-1, true) })
	ch(keys.ScopeSelection, 'j', "j/k", "Move", true, func() { e.MoveSelection(1, false) })
	ch(keys.ScopeSelection, 'k', "j/k", "Move", false, func() { e.MoveSelection(-1, false) })
	key(keys.ScopeSelection, tcell.KeyDown, 0, "j/k", "Move", false, func() { e.MoveSelection(1, false) })
	key(keys.ScopeSelection, tcell.KeyUp, 0, "j/k", "Move", false, func() { e.MoveSelection(-1, false) })
	ch(keys.ScopeSelection, 'J', "J/K", "Extend", true, func() { e.MoveSelection(1, true) })
	ch(keys.ScopeSelection, 'K', "J/K", "Extend", false, func() { e.MoveSelection(-1, true) })
	ch(keys.ScopeSelection, '-', "-", "Shrink", true, e.ShrinkSelection)
	ch(keys.ScopeSelection, 'y', "y", "Copy", true, a.yankSelection)
	ch(keys.ScopeSelection, 'd', "d", "Delete", true, a.deleteSelection)
	ch(keys.ScopeSelection, 'D', "D", "Delete for everyone", true, a.remoteDeleteSelection)
	ch(keys.ScopeSelection, 'r', "r", "React", true, func() { a.openPrompt(ui.PromptCommand, "react ") })
	key(keys.ScopeSelection, tcell.KeyEscape, 0, "Esc", "Cancel", true, e.ExitSelection)

	key(keys.ScopeInput, tcell.KeyEscape, 0, "Esc", "Back", true, func() { a.focus(a.timeline) })
	key(keys.ScopeInput, tcell.KeyTab, 0, "Tab", "Next pane", true, a.cycleFocus)
	key(keys.ScopeInput, tcell.KeyCtrlC, 0, "Ctrl-C", "Quit", false, a.Stop)
}

func (a *App) setupCallbacks() {
	a.list.SetOnSelect(a.selectConversation)

	a.timeline.SetLayoutFunc(a.engine.Layout)
	a.timeline.SetImageFunc(a.engine.Image)
	a.timeline.SetOnScroll(func(lines int) {
		if lines > 0 {
			a.engine.ScrollUp()
		} else {
			a.engine.ScrollDown()
		}
	})
	a.timeline.SetOnSelect(func(index int, extend bool) {
		a.engine.SelectAt(index, extend)
		a.refreshChrome()
	})
	a.timeline.SetOnFrame(func(f engine.Frame) {
		scroll := -1
		if f.TotalHeight > f.Height {
			scroll = f.ScrollPercent
		}
		a.statusBar.SetScroll(scroll)
		a.statusBar.Refresh()
	})

	a.composer.SetOnSend(a.send)
	a.files.SetOnDone(a.attachFiles)
	a.files.SetOnError(a.flash.Err)

	a.prompt.SetOnChange(func(_ ui.PromptMode, text string) {
		a.applyFilter(text)
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		if mode == ui.PromptCommand {
			a.executeCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(func(mode ui.PromptMode) {
		if mode == ui.PromptFilter {
			a.applyFilter("")
		}
		a.closePrompt()
	})

	for _, p := range []interface {
		SetFocusFunc(func()) *tview.Box
	}{a.list, a.timeline, a.composer, a.prompt} {
		p.SetFocusFunc(a.onFocusChange)
	}
}

func (a *App) setupLayout() {
	chat := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.timeline, 0, 1, false).
		AddItem(a.composer, 1, 0, false)
	main := tview.NewFlex().
		AddItem(a.list, 0, 1, true).
		AddItem(chat, 0, 2, false)

	account := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.accountInfo, 0, 1, false)
	account.SetBorder(true)
	account.SetBorderColor(a.theme.BorderColor)
	account.SetBackgroundColor(a.theme.BgColor)
	account.SetTitle(" Account ")
	account.SetTitleColor(a.theme.TitleColor)
	info := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.info, 0, 1, false).
		AddItem(account, 7, 0, false)

	help := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.NewLogo(a.theme), ui.LogoHeight, 0, false).
		AddItem(a.help, 0, 1, true)

	a.pages.AddPage(pageMain, main, true, true)
	a.pages.AddPage(pageHelp, help, true, false)
	a.pages.AddPage(pageInfo, info, true, false)
	a.pages.AddPage(pageFiles, a.files, true, false)
	a.pages.Reset(pageMain)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.statusBar, 1, 0, false).
		AddItem(a.menu, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.EnableMouse(true)
	a.app.SetInputCapture(a.handleKey)
}

// handleKey routes a key to the bindings of the focused pane. Keys no
// binding claims fall through to the focused widget.
func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	if a.promptOpen {
		return ev
	}
	if a.pages.Current() == pageFiles {
		switch ev.Key() {
		case tcell.KeyEscape:
			a.closeFiles()
			return nil
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		}
		return ev
	}
	if a.pages.Current() != pageMain {
		if ev.Key() == tcell.KeyEscape || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
			a.pages.Pop()
			a.focus(a.list)
			return nil
		}
		if ev.Key() == tcell.KeyCtrlC {
			a.Stop()
			return nil
		}
		return ev
	}

	scope := a.scope()
	handled := false
	if scope == keys.ScopeInput {
		for _, act := range a.registry.Actions(keys.ScopeInput) {
			if act.Matches(ev) {
				act.Handler()
				handled = true
				break
			}
		}
	} else {
		handled = a.registry.HandleEvent(scope, ev)
	}
	if !handled {
		return ev
	}
	a.refreshChrome()
	return nil
}

func (a *App) scope() string {
	switch a.app.GetFocus() {
	case a.timeline:
		if v := a.engine.Selected(); v != nil && v.Selection != nil {
			return keys.ScopeSelection
		}
		return keys.ScopeMessages
	case a.composer, a.composer.InputField, a.prompt, a.prompt.InputField:
		return keys.ScopeInput
	}
	return keys.ScopeConversations
}

func (a *App) focus(p tview.Primitive) {
	a.app.SetFocus(p)
	a.onFocusChange()
}

func (a *App) cycleFocus() {
	switch a.scope() {
	case keys.ScopeConversations:
		a.focus(a.timeline)
	case keys.ScopeMessages, keys.ScopeSelection:
		a.focus(a.composer)
	default:
		a.focus(a.list)
	}
}

func (a *App) onFocusChange() {
	scope := a.scope()
	a.list.SetBorderColor(a.borderFor(scope == keys.ScopeConversations))
	a.timeline.SetBorderColor(a.borderFor(scope == keys.ScopeMessages || scope == keys.ScopeSelection))
	a.refreshChrome()
}

func (a *App) borderFor(focused bool) tcell.Color {
	if focused {
		return a.theme.BorderFocusColor
	}
	return a.theme.BorderColor
}

// refreshChrome updates the menu hints and status bar for the current scope.
func (a *App) refreshChrome() {
	scope := a.scope()
	a.menu.Update(a.registry.Hints(scope))
	mode := "NORMAL"
	switch {
	case a.promptOpen && a.prompt.Mode() == ui.PromptFilter:
		mode = "FILTER"
	case a.promptOpen:
		mode = "COMMAND"
	case scope == keys.ScopeSelection:
		mode = "VISUAL"
	case scope == keys.ScopeInput:
		mode = "INSERT"
	}
	a.statusBar.SetMode(mode)
	a.statusBar.Refresh()
}

func (a *App) refreshList() {
	id := ""
	if v := a.engine.Selected(); v != nil {
		id = v.ID()
	}
	a.list.Update(a.engine.Conversations(), id)
}

func repeat(n int, fn func()) {
	for i := 0; i < n; i++ {
		fn()
	}
}

func (a *App) moveConversation(delta int) {
	ids := a.list.Visible()
	if len(ids) == 0 {
		return
	}
	row, _ := a.list.GetSelection()
	row = min(max(row+delta, 0), len(ids)-1)
	a.list.Select(row, 0)
}

func (a *App) selectConversation(id string) {
	if err := a.engine.Select(id); err != nil {
		a.logger.Error("load conversation failed", zap.String("conversation", id), zap.Error(err))
		a.flash.Err(fmt.Errorf("load conversation: %w", err))
	}
	v := a.engine.Selected()
	if v == nil {
		a.timeline.SetConversation("")
		return
	}
	a.timeline.SetConversation(v.Conversation.DisplayName())
	a.markRead()
	a.refreshList()
	if a.pages.Current() == pageInfo {
		a.info.Update(v)
	}
}

func (a *App) markRead() {
	r := a.engine.MarkSelectedRead()
	if r == nil {
		return
	}
	a.enqueue(&store.OutboxEntry{
		ClientMsgID:    uuid.NewString(),
		Kind:           store.OutboxReceipt,
		ConversationID: r.ConversationID,
		Recipient:      r.Recipient,
		Timestamps:     r.Timestamps,
	})
}

func (a *App) applyFilter(text string) {
	sel := ""
	if v := a.engine.Selected(); v != nil {
		sel = v.ID()
	}
	if id := a.list.SetFilter(text, sel); id != "" && id != sel {
		a.selectConversation(id)
	}
}

func (a *App) send(text string, atts []store.Attachment) {
	out := a.engine.ComposeOutgoing(text, atts)
	if out == nil {
		a.flash.Warn("no conversation selected")
		return
	}
	a.enqueue(&store.OutboxEntry{
		ClientMsgID:    out.MessageID,
		Kind:           store.OutboxMessage,
		ConversationID: out.ConversationID,
		Recipient:      out.Recipient,
		GroupID:        out.GroupID,
		Body:           out.Body,
		Attachments:    out.Attachments,
	})
	a.refreshList()
}

func (a *App) enqueue(e *store.OutboxEntry) {
	if a.deps.Outbox == nil {
		return
	}
	if err := a.deps.Outbox.Enqueue(e); err != nil {
		a.logger.Error("enqueue failed", zap.String("kind", string(e.Kind)), zap.Error(err))
		a.flash.Err(fmt.Errorf("queue %s: %w", kindLabel(e.Kind), err))
	}
}

func (a *App) enterSelection() {
	if !a.engine.EnterSelection() {
		a.flash.Warn("no messages to select")
	}
}

func (a *App) yankSelection() {
	v := a.engine.Selected()
	if v == nil || v.Selection == nil {
		return
	}
	lo, hi := v.Selection.Bounds()
	if err := a.deps.Clipboard(v.SelectedText()); err != nil {
		a.flash.Err(fmt.Errorf("copy: %w", err))
	} else {
		a.flash.Info(fmt.Sprintf("copied %d message(s)", hi-lo+1))
	}
	a.engine.ExitSelection()
}

func (a *App) deleteSelection() {
	n := a.engine.DeleteSelection()
	a.engine.ExitSelection()
	a.flash.Info(fmt.Sprintf("deleted %d message(s)", n))
	a.refreshList()
}

func (a *App) remoteDeleteSelection() {
	rd := a.engine.RemoteDeleteSelection()
	a.engine.ExitSelection()
	a.refreshList()
	if rd == nil {
		a.flash.Warn("only your own messages can be deleted for everyone")
		return
	}
	a.enqueue(&store.OutboxEntry{
		ClientMsgID:    uuid.NewString(),
		Kind:           store.OutboxRemoteDelete,
		ConversationID: rd.ConversationID,
		Recipient:      rd.Recipient,
		GroupID:        rd.GroupID,
		Timestamps:     rd.Timestamps,
	})
}

// react sets or, with an empty emoji, withdraws the user's reaction on the
// cursor message, or the newest message outside selection mode.
func (a *App) react(emoji string) {
	req := a.engine.React(emoji)
	if req == nil {
		a.flash.Warn("nothing to react to")
		return
	}
	a.enqueue(&store.OutboxEntry{
		ClientMsgID:    uuid.NewString(),
		Kind:           store.OutboxReaction,
		ConversationID: req.ConversationID,
		Recipient:      req.Recipient,
		GroupID:        req.GroupID,
		Body:           req.Emoji,
		Timestamps:     []int64{req.TargetTs},
		TargetAuthor:   req.TargetAuthor,
	})
}

func (a *App) openPrompt(mode ui.PromptMode, text string) {
	switch f := a.app.GetFocus(); f {
	case a.timeline, a.composer, a.composer.InputField:
		a.promptFrom = f
	default:
		a.promptFrom = a.list
	}
	a.prompt.Activate(mode, text)
	a.promptOpen = true
	a.root.ResizeItem(a.prompt, promptHeight, 0)
	a.app.SetFocus(a.prompt)
	a.refreshChrome()
}

func (a *App) closePrompt() {
	a.promptOpen = false
	a.prompt.SetText("")
	a.root.ResizeItem(a.prompt, 0, 0)
	if a.promptFrom == nil || a.pages.Current() != pageMain {
		a.promptFrom = a.list
	}
	a.focus(a.promptFrom)
}

func (a *App) showHelp() {
	sections := []views.HelpSection{
		{Title: "Conversations", Hints: a.registry.Hints(keys.ScopeConversations)},
		{Title: "Messages", Hints: a.registry.Hints(keys.ScopeMessages)},
		{Title: "Selection", Hints: a.registry.Hints(keys.ScopeSelection)},
		{Title: "Composer", Hints: a.registry.Hints(keys.ScopeInput)},
		{Title: "Commands", Hints: commandHints},
	}
	a.help.Update(sections)
	a.pages.Push(pageHelp)
	a.app.SetFocus(a.help)
	a.menu.Update([]ui.MenuHint{{Key: "Esc", Description: "Back"}})
}

var fileHints = []ui.MenuHint{
	{Key: "Space", Description: "Mark"},
	{Key: "Enter", Description: "Open/attach"},
	{Key: "Bksp", Description: "Up"},
	{Key: ".", Description: "Hidden files"},
	{Key: "Esc", Description: "Cancel"},
}

// showFiles opens the attachment picker where it was last left, or in the
// home directory.
func (a *App) showFiles() {
	dir := a.files.Dir()
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = home
	}
	if err := a.files.Open(dir); err != nil {
		a.flash.Err(err)
		return
	}
	a.pages.Push(pageFiles)
	a.app.SetFocus(a.files)
	a.menu.Update(fileHints)
}

func (a *App) closeFiles() {
	a.files.Reset()
	a.pages.Pop()
	a.focus(a.composer)
}

// attachFiles stages the picked files on the composer.
func (a *App) attachFiles(paths []string) {
	n := 0
	for _, p := range paths {
		if _, err := a.composer.Stage(p); err != nil {
			a.logger.Warn("stage attachment failed", zap.String("path", p), zap.Error(err))
			a.flash.Err(err)
			continue
		}
		n++
	}
	a.closeFiles()
	if n > 0 {
		a.flash.Info(fmt.Sprintf("attached %d file(s), %d staged", n, len(a.composer.Staged())))
	}
}

func (a *App) showInfo() {
	a.info.Update(a.engine.Selected())
	a.updateAccountInfo()
	a.pages.Push(pageInfo)
	a.app.SetFocus(a.info)
	a.menu.Update([]ui.MenuHint{{Key: "Esc", Description: "Back"}})
}

func (a *App) updateAccountInfo() {
	data := &ui.AccountData{Account: a.deps.Account, Uptime: time.Since(a.started)}
	if a.deps.Machine != nil {
		data.Status = a.deps.Machine.Current().Label()
	}
	if a.deps.Store != nil {
		convs, msgs, err := a.deps.Store.Counts()
		if err != nil {
			a.logger.Warn("count store rows failed", zap.Error(err))
		}
		data.Conversations, data.Messages = convs, msgs
	}
	a.accountInfo.Update(data)
}

// handleEvent applies a bus event. It must run on the UI goroutine.
func (a *App) handleEvent(ev bus.Event) {
	switch ev.Kind {
	case signal.EventEnvelope:
		env, ok := ev.Payload.(*signal.Envelope)
		if !ok || !a.engine.HandleEnvelope(env) {
			return
		}
		a.markRead()
		a.refreshList()
	case signal.EventDisconnected:
		if err, ok := ev.Payload.(error); ok && err != nil {
			a.flash.Err(fmt.Errorf("signal-cli exited: %w", err))
		} else {
			a.flash.Warn("signal-cli exited")
		}
	case outbox.EventSent:
		res, ok := ev.Payload.(outbox.Result)
		if ok && res.Kind == store.OutboxMessage {
			a.engine.ConfirmSent(res.ClientMsgID, res.ServerTs)
		}
	case outbox.EventFailed:
		if res, ok := ev.Payload.(outbox.Result); ok {
			a.flash.Err(fmt.Errorf("%s failed: %w", kindLabel(res.Kind), res.Err))
		}
	case status.EventChanged:
		if change, ok := ev.Payload.(status.StatusChange); ok {
			a.statusBar.SetState(change.To)
			a.statusBar.Refresh()
		}
	case app.EventDirectory:
		dir, ok := ev.Payload.(app.Directory)
		if !ok {
			return
		}
		changed, err := a.engine.SyncDirectory(dir.Contacts, dir.Groups)
		if err != nil {
			a.flash.Err(fmt.Errorf("directory sync: %w", err))
		}
		if a.deps.Avatars != nil {
			a.deps.Avatars.Forget()
			a.refreshList()
		}
		if changed {
			a.refreshList()
			if v := a.engine.Selected(); v != nil {
				a.timeline.SetConversation(v.Conversation.DisplayName())
			}
		}
	}
}

func kindLabel(k store.OutboxKind) string {
	switch k {
	case store.OutboxRemoteDelete:
		return "delete for everyone"
	case store.OutboxReceipt:
		return "read receipt"
	case store.OutboxReaction:
		return "reaction"
	}
	return "send"
}

// Run starts the image and clock feeders and blocks until the UI exits.
func (a *App) Run() error {
	defer a.cancel()

	switch {
	case a.deps.Images != nil:
		go a.watchImages(a.deps.Images.Ready())
	case a.deps.Avatars != nil:
		go a.watchImages(a.deps.Avatars.Ready())
	}
	go a.tick()

	a.refreshChrome()
	return a.app.Run()
}

func (a *App) watchImages(ready <-chan struct{}) {
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ready:
			a.app.QueueUpdateDraw(a.pollImages)
		}
	}
}

// pollImages installs finished decodes for both previews and avatars.
func (a *App) pollImages() {
	a.engine.Tick()
	if a.deps.Avatars != nil && a.deps.Images == nil {
		a.deps.Avatars.Poll()
	}
}

func (a *App) tick() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.checkDropped()
				a.statusBar.Refresh()
				if a.pages.Current() == pageInfo {
					a.updateAccountInfo()
				}
			})
		}
	}
}

// checkDropped warns once per burst of bus events the UI was too slow to take.
func (a *App) checkDropped() {
	if a.deps.Bus == nil {
		return
	}
	n := a.deps.Bus.Dropped()
	if n <= a.dropped {
		return
	}
	a.logger.Warn("bus events dropped", zap.Uint64("total", n))
	a.flash.Warn(fmt.Sprintf("missed %d live updates", n-a.dropped))
	a.dropped = n
}

// Stop shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
