package views

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/sigtui/internal/tui/ui"
	"github.com/rivo/tview"
)

// FileEntry is one row of the file browser.
type FileEntry struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
}

// ListDir returns the entries of dir, directories first, each group sorted by
// name without regard to case. Dot files are left out unless hidden is set.
func ListDir(dir string, hidden bool) ([]FileEntry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]FileEntry, 0, len(des))
	for _, de := range des {
		if !hidden && strings.HasPrefix(de.Name(), ".") {
			continue
		}
		e := FileEntry{Name: de.Name(), Path: filepath.Join(dir, de.Name())}
		info, err := os.Stat(e.Path)
		if err != nil {
			continue
		}
		e.IsDir = info.IsDir()
		if !e.IsDir {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// FileBrowser picks files to attach. Space marks files, in any directory;
// Enter opens a directory, or finishes with the marked files, or with the
// file under the cursor when nothing is marked.
type FileBrowser struct {
	*tview.Table
	theme   *ui.Theme
	dir     string
	hidden  bool
	entries []FileEntry
	marked  []string
	onDone  func(paths []string)
	onError func(err error)
}

// NewFileBrowser creates the attachment picker.
func NewFileBrowser(theme *ui.Theme) *FileBrowser {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderFocusColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	fb := &FileBrowser{Table: table, theme: theme}
	table.SetSelectedFunc(func(row, _ int) {
		fb.activate(row)
	})
	table.SetInputCapture(fb.handleKey)
	return fb
}

// SetOnDone sets the callback receiving the chosen files.
func (fb *FileBrowser) SetOnDone(fn func(paths []string)) {
	fb.onDone = fn
}

// SetOnError sets the callback for directories that cannot be read.
func (fb *FileBrowser) SetOnError(fn func(err error)) {
	fb.onError = fn
}

// Open lists dir and puts the cursor on its first entry. Marks are kept.
func (fb *FileBrowser) Open(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	entries, err := ListDir(abs, fb.hidden)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	if parent := filepath.Dir(abs); parent != abs {
		entries = append([]FileEntry{{Name: "..", Path: parent, IsDir: true}}, entries...)
	}
	fb.dir = abs
	fb.entries = entries
	fb.render()
	fb.Select(0, 0)
	fb.ScrollToBeginning()
	return nil
}

// Dir returns the directory being shown.
func (fb *FileBrowser) Dir() string {
	return fb.dir
}

// Entries returns the rows being shown, ".." first when there is a parent.
func (fb *FileBrowser) Entries() []FileEntry {
	return fb.entries
}

// Marked returns the marked files in the order they were marked.
func (fb *FileBrowser) Marked() []string {
	return fb.marked
}

// Reset drops every mark.
func (fb *FileBrowser) Reset() {
	fb.marked = nil
	fb.render()
}

// ToggleMark marks or unmarks the file under the cursor and moves down.
// Directories cannot be marked.
func (fb *FileBrowser) ToggleMark() {
	row, _ := fb.GetSelection()
	if row < 0 || row >= len(fb.entries) || fb.entries[row].IsDir {
		return
	}
	path := fb.entries[row].Path
	if i := fb.markIndex(path); i >= 0 {
		fb.marked = append(fb.marked[:i], fb.marked[i+1:]...)
	} else {
		fb.marked = append(fb.marked, path)
	}
	fb.render()
	fb.Select(min(row+1, len(fb.entries)-1), 0)
}

// Parent opens the directory above the current one.
func (fb *FileBrowser) Parent() {
	parent := filepath.Dir(fb.dir)
	if parent == fb.dir {
		return
	}
	fb.open(parent)
}

// ToggleHidden shows or hides dot files.
func (fb *FileBrowser) ToggleHidden() {
	fb.hidden = !fb.hidden
	fb.open(fb.dir)
}

func (fb *FileBrowser) open(dir string) {
	if err := fb.Open(dir); err != nil && fb.onError != nil {
		fb.onError(err)
	}
}

func (fb *FileBrowser) activate(row int) {
	if row < 0 || row >= len(fb.entries) {
		return
	}
	e := fb.entries[row]
	if e.IsDir {
		fb.open(e.Path)
		return
	}
	paths := fb.marked
	if len(paths) == 0 {
		paths = []string{e.Path}
	}
	if fb.onDone != nil {
		fb.onDone(paths)
	}
}

func (fb *FileBrowser) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	switch ev.Key() {
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		fb.Parent()
		return nil
	case tcell.KeyRune:
		switch ev.Rune() {
		case ' ':
			fb.ToggleMark()
			return nil
		case 'h', '-':
			fb.Parent()
			return nil
		case '.':
			fb.ToggleHidden()
			return nil
		}
	}
	return ev
}

func (fb *FileBrowser) markIndex(path string) int {
	for i, p := range fb.marked {
		if p == path {
			return i
		}
	}
	return -1
}

func (fb *FileBrowser) render() {
	fb.Clear()
	for row, e := range fb.entries {
		mark := " "
		name := sanitizeForTerminal(e.Name)
		color := fb.theme.FgColor
		switch {
		case e.IsDir:
			name += "/"
			color = fb.theme.BorderColor
		case fb.markIndex(e.Path) >= 0:
			mark = "*"
			color = fb.theme.UnreadColor
		}
		fb.SetCell(row, 0, tview.NewTableCell(" "+mark).SetTextColor(fb.theme.UnreadColor))
		fb.SetCell(row, 1, tview.NewTableCell(tview.Escape(name)).
			SetExpansion(1).
			SetTextColor(color))
		size := ""
		if !e.IsDir {
			size = FormatSize(e.Size)
		}
		fb.SetCell(row, 2, tview.NewTableCell(size+" ").
			SetTextColor(fb.theme.MutedColor).
			SetAlign(tview.AlignRight))
	}
	if len(fb.entries) == 0 {
		fb.SetCell(0, 1, tview.NewTableCell("(empty directory)").
			SetTextColor(fb.theme.MutedColor).
			SetSelectable(false))
	}

	title := " " + tview.Escape(sanitizeForTerminal(fb.dir)) + " "
	if n := len(fb.marked); n > 0 {
		title += fmt.Sprintf("[%d marked] ", n)
	}
	fb.SetTitle(title)
}

// FormatSize renders a byte count with a binary unit suffix.
func FormatSize(n int64) string {
	const k = 1024
	switch {
	case n < k:
		return fmt.Sprintf("%dB", n)
	case n < k*k:
		return fmt.Sprintf("%.1fK", float64(n)/k)
	case n < k*k*k:
		return fmt.Sprintf("%.1fM", float64(n)/(k*k))
	}
	return fmt.Sprintf("%.1fG", float64(n)/(k*k*k))
}
