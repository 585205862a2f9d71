package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/sigtui/internal/signal"
	"github.com/matheus3301/sigtui/internal/tui/ui"
	"github.com/matheus3301/sigtui/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

// ErrLinkCancelled is returned when the user leaves the link view.
var ErrLinkCancelled = errors.New("device linking cancelled")

// Linker links this machine as a secondary device. *signal.Client implements it.
type Linker interface {
	StartLink(ctx context.Context) (string, error)
	FinishLink(ctx context.Context, uri, deviceName string) (signal.Account, error)
}

// Link shows the device link QR code until the phone accepts it and returns
// the linked number.
func Link(ctx context.Context, linker Linker, deviceName string, logger *zap.Logger) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	logger = logger.Named("link")

	theme := ui.DefaultTheme()
	view := views.NewLinkView(theme)
	view.ShowMessage("Requesting a link code from signal-cli...")
	tapp := tview.NewApplication().SetRoot(view, true)

	var (
		number  string
		linkErr = ErrLinkCancelled
	)
	tapp.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
			cancel()
			tapp.Stop()
			return nil
		}
		return ev
	})

	go func() {
		acct, err := runLink(ctx, linker, deviceName, func(uri string) {
			tapp.QueueUpdateDraw(func() { view.ShowQR(uri) })
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("link failed", zap.Error(err))
			tapp.QueueUpdateDraw(func() {
				view.ShowMessage(fmt.Sprintf("Linking failed: %v\n\nPress q to exit.", err))
			})
			return
		}
		logger.Info("device linked", zap.String("account", acct.Number))
		tapp.QueueUpdateDraw(func() {
			number, linkErr = acct.Number, nil
			tapp.Stop()
		})
	}()

	if err := tapp.Run(); err != nil {
		return "", err
	}
	return number, linkErr
}

// runLink drives startLink and finishLink, handing the URI to show between them.
func runLink(ctx context.Context, linker Linker, deviceName string, show func(uri string)) (signal.Account, error) {
	uri, err := linker.StartLink(ctx)
	if err != nil {
		return signal.Account{}, fmt.Errorf("start link: %w", err)
	}
	show(uri)
	acct, err := linker.FinishLink(ctx, uri, deviceName)
	if err != nil {
		return signal.Account{}, fmt.Errorf("finish link: %w", err)
	}
	if acct.Number == "" {
		return signal.Account{}, errors.New("finish link: signal-cli returned no number")
	}
	return acct, nil
}
