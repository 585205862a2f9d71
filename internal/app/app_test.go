package app

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/matheus3301/sigtui/internal/bus"
	"github.com/matheus3301/sigtui/internal/config"
	"github.com/matheus3301/sigtui/internal/signal"
	"github.com/matheus3301/sigtui/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// fakeSignalCLI answers every JSON-RPC request with one contact.
const fakeSignalCLI = `#!/bin/sh
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed 's/.*"id":"\([^"]*\)".*/\1/')
  printf '{"jsonrpc":"2.0","id":"%s","result":[{"number":"+15550001","uuid":"u1","name":"Alice"}]}\n' "$id"
done
`

func testParams(t *testing.T) Params {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()
	cfg.SignalCLIConfig = t.TempDir()
	cfg.AttachmentsDir = t.TempDir()
	return Params{Account: "+15550000", Config: cfg, Logger: zap.NewNop()}
}

func TestModuleGraph(t *testing.T) {
	p := testParams(t)
	if err := fx.ValidateApp(Module(p), fx.Invoke(func(Runtime) {})); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake signal-cli is a shell script")
	}
	p := testParams(t)
	script := filepath.Join(t.TempDir(), "signal-cli")
	if err := os.WriteFile(script, []byte(fakeSignalCLI), 0700); err != nil {
		t.Fatal(err)
	}
	p.Config.SignalCLI = script

	var rt Runtime
	var dirCh <-chan bus.Event
	fxApp := fx.New(
		Module(p),
		fx.NopLogger,
		fx.Invoke(func(r Runtime) {
			rt = r
			dirCh, _ = r.Bus.Subscribe(EventDirectory, 1)
		}),
	)
	if err := fxApp.Err(); err != nil {
		t.Fatalf("fx.New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fxApp.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := rt.Machine.Current(); got != status.Ready {
		t.Errorf("state after start = %s, want %s", got, status.Ready)
	}

	select {
	case evt := <-dirCh:
		dir, ok := evt.Payload.(Directory)
		if !ok {
			t.Fatalf("payload type = %T, want Directory", evt.Payload)
		}
		if len(dir.Contacts) != 1 || dir.Contacts[0].Name != "Alice" {
			t.Errorf("contacts = %+v, want [Alice]", dir.Contacts)
		}
		if len(dir.Groups) != 0 {
			t.Errorf("groups = %+v, want none", dir.Groups)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for directory")
	}

	if err := fxApp.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := rt.Machine.Current(); got != status.Disconnected {
		t.Errorf("state after stop = %s, want %s", got, status.Disconnected)
	}
}

func TestLifecycleFailsWithoutBinary(t *testing.T) {
	p := testParams(t)
	p.Config.SignalCLI = filepath.Join(t.TempDir(), "missing")

	var machine *status.Machine
	fxApp := fx.New(Module(p), fx.NopLogger, fx.Populate(&machine))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fxApp.Start(ctx); err == nil {
		_ = fxApp.Stop(ctx)
		t.Fatal("Start() succeeded without a signal-cli binary")
	}
	if got := machine.Current(); got != status.Error {
		t.Errorf("state = %s, want %s", got, status.Error)
	}
}

func TestDirectoryFrom(t *testing.T) {
	contacts := []signal.Contact{
		{Number: "+15550001", UUID: "u1", Name: "Alice"},
		{Number: "+15550002", UUID: "u2", ProfileName: "Bobby", Name: "Bob"},
		{Number: "+15550003"},
		{Name: "Nobody"},
	}
	groups := []signal.Group{
		{ID: "g1", Name: "Climbing"},
		{ID: "g2"},
	}
	dir := directoryFrom(contacts, groups)

	wantContacts := []string{"Alice", "Bobby"}
	if len(dir.Contacts) != len(wantContacts) {
		t.Fatalf("got %d contacts, want %d: %+v", len(dir.Contacts), len(wantContacts), dir.Contacts)
	}
	for i, want := range wantContacts {
		if dir.Contacts[i].Name != want {
			t.Errorf("contact[%d] = %q, want %q", i, dir.Contacts[i].Name, want)
		}
	}
	if len(dir.Groups) != 1 || dir.Groups[0].ID != "g1" {
		t.Errorf("groups = %+v, want [g1]", dir.Groups)
	}
}
