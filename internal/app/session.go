package app

import (
	"context"

	"github.com/matheus3301/sigtui/internal/bus"
	"github.com/matheus3301/sigtui/internal/engine"
	"github.com/matheus3301/sigtui/internal/signal"
	"github.com/matheus3301/sigtui/internal/status"
	"go.uber.org/zap"
)

// EventDirectory carries a Directory fetched after connecting.
const EventDirectory = "directory.synced"

// Directory is the contact and group listing used to name conversations.
type Directory struct {
	Contacts []engine.Contact
	Groups   []engine.Group
}

// Session drives the signal-cli connection through the status machine.
type Session struct {
	client  *signal.Client
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSession creates a session for client.
func NewSession(client *signal.Client, m *status.Machine, b *bus.Bus, logger *zap.Logger) *Session {
	return &Session{
		client:  client,
		machine: m,
		bus:     b,
		logger:  logger.Named("session"),
	}
}

// Start spawns signal-cli and, once it runs, fetches the directory in the
// background. It returns when the process has started.
func (s *Session) Start(ctx context.Context) error {
	_ = s.machine.Transition(status.Connecting)
	if err := s.client.Connect(ctx); err != nil {
		s.logger.Error("connect failed", zap.Error(err))
		_ = s.machine.Transition(status.Error)
		return err
	}
	_ = s.machine.Transition(status.Ready)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.syncDirectory(runCtx)
		<-s.client.Done()
		_ = s.machine.Transition(status.Disconnected)
	}()
	return nil
}

// Stop closes signal-cli and waits for the disconnect to be recorded.
func (s *Session) Stop() {
	if err := s.client.Close(); err != nil {
		s.logger.Warn("close signal-cli", zap.Error(err))
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Session) syncDirectory(ctx context.Context) {
	contacts, err := s.client.ListContacts(ctx)
	if err != nil {
		s.logger.Warn("list contacts failed", zap.Error(err))
		return
	}
	groups, err := s.client.ListGroups(ctx)
	if err != nil {
		s.logger.Warn("list groups failed", zap.Error(err))
		return
	}
	dir := directoryFrom(contacts, groups)
	s.logger.Info("directory fetched",
		zap.Int("contacts", len(dir.Contacts)),
		zap.Int("groups", len(dir.Groups)),
	)
	s.bus.Emit(EventDirectory, dir)
}

// directoryFrom keeps the entries that can name a conversation.
func directoryFrom(contacts []signal.Contact, groups []signal.Group) Directory {
	var dir Directory
	for _, c := range contacts {
		name := c.DisplayName()
		if (c.UUID == "" && c.Number == "") || name == "" || name == c.Number {
			continue
		}
		dir.Contacts = append(dir.Contacts, engine.Contact{UUID: c.UUID, Number: c.Number, Name: name})
	}
	for _, g := range groups {
		if g.ID == "" || g.Name == "" {
			continue
		}
		dir.Groups = append(dir.Groups, engine.Group{ID: g.ID, Name: g.Name})
	}
	return dir
}
