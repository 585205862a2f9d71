package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/sigtui/internal/bus"
	"github.com/matheus3301/sigtui/internal/signal"
	"github.com/matheus3301/sigtui/internal/store"
	"go.uber.org/zap"
)

// Bus event kinds published after each attempt. The payload is a Result.
const (
	EventSent   = "outbox.sent"
	EventFailed = "outbox.failed"
)

// Backend is the part of the signal client the outbox drives.
type Backend interface {
	Send(ctx context.Context, recipient, text string, attachments []string) (signal.SendResult, error)
	SendGroup(ctx context.Context, groupID, text string, attachments []string) (signal.SendResult, error)
	RemoteDelete(ctx context.Context, t signal.Target, ts int64) error
	SendReadReceipt(ctx context.Context, recipient string, timestamps []int64) error
	SendReaction(ctx context.Context, t signal.Target, emoji, targetAuthor string, targetTs int64, remove bool) error
}

// Result reports the outcome of one outbox entry.
type Result struct {
	ClientMsgID    string
	Kind           store.OutboxKind
	ConversationID string
	// ServerTs is the timestamp signal-cli sent a message with.
	ServerTs int64
	Err      error
}

var (
	errEmptyTarget    = errors.New("entry has neither recipient nor group")
	errReactionTarget = errors.New("reaction has no target message")
)

// Sender drains the outbox through the backend. Failed entries are not retried.
type Sender struct {
	db      *store.DB
	backend Backend
	bus     *bus.Bus
	logger  *zap.Logger
	kick    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, backend Backend, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:      db,
		backend: backend,
		bus:     b,
		logger:  logger.Named("outbox"),
		kick:    make(chan struct{}, 1),
	}
}

// Start requeues entries a previous run left in flight and begins polling.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.ResetStaleOutbox(); err != nil {
		s.logger.Warn("failed to reset stale outbox entries", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("requeued stale outbox entries", zap.Int64("count", n))
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for the current batch to finish.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Enqueue persists an entry and wakes the loop without waiting for the ticker.
func (s *Sender) Enqueue(e *store.OutboxEntry) error {
	if err := s.db.QueueOutbox(e); err != nil {
		return err
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
	return nil
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-s.kick:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		res := Result{ClientMsgID: entry.ClientMsgID, Kind: entry.Kind, ConversationID: entry.ConversationID}
		res.ServerTs, res.Err = s.deliver(ctx, entry)
		if res.Err != nil {
			s.logger.Error("outbox entry failed", zap.Error(res.Err),
				zap.String("client_msg_id", entry.ClientMsgID), zap.String("kind", string(entry.Kind)))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, res.Err.Error())
			s.bus.Emit(EventFailed, res)
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, res.ServerTs); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		if entry.Kind == store.OutboxMessage {
			target := entry.Recipient
			if target == "" {
				target = entry.GroupID
			}
			if err := s.db.SaveDeliveryStatus(entry.ClientMsgID, target, store.DeliverySent, res.ServerTs); err != nil {
				s.logger.Warn("failed to record sent status", zap.Error(err))
			}
		}
		s.logger.Info("outbox entry sent",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("kind", string(entry.Kind)),
			zap.Int64("server_ts", res.ServerTs),
		)
		s.bus.Emit(EventSent, res)
	}
}

func (s *Sender) deliver(ctx context.Context, e store.OutboxEntry) (int64, error) {
	if e.Recipient == "" && e.GroupID == "" {
		return 0, errEmptyTarget
	}
	switch e.Kind {
	case store.OutboxMessage:
		var res signal.SendResult
		var err error
		if e.GroupID != "" {
			res, err = s.backend.SendGroup(ctx, e.GroupID, e.Body, e.Attachments)
		} else {
			res, err = s.backend.Send(ctx, e.Recipient, e.Body, e.Attachments)
		}
		return res.Timestamp, err
	case store.OutboxRemoteDelete:
		t := signal.Target{Recipient: e.Recipient, GroupID: e.GroupID}
		for _, ts := range e.Timestamps {
			if err := s.backend.RemoteDelete(ctx, t, ts); err != nil {
				return 0, err
			}
		}
		return 0, nil
	case store.OutboxReceipt:
		return 0, s.backend.SendReadReceipt(ctx, e.Recipient, e.Timestamps)
	case store.OutboxReaction:
		if len(e.Timestamps) == 0 || e.TargetAuthor == "" {
			return 0, errReactionTarget
		}
		t := signal.Target{Recipient: e.Recipient, GroupID: e.GroupID}
		return 0, s.backend.SendReaction(ctx, t, e.Body, e.TargetAuthor, e.Timestamps[0], e.Body == "")
	}
	return 0, fmt.Errorf("unknown outbox kind %q", e.Kind)
}
