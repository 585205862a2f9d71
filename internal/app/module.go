package app

import (
	"context"

	"github.com/matheus3301/sigtui/internal/bus"
	"github.com/matheus3301/sigtui/internal/config"
	"github.com/matheus3301/sigtui/internal/engine"
	"github.com/matheus3301/sigtui/internal/images"
	"github.com/matheus3301/sigtui/internal/lock"
	"github.com/matheus3301/sigtui/internal/logging"
	"github.com/matheus3301/sigtui/internal/outbox"
	"github.com/matheus3301/sigtui/internal/profile"
	"github.com/matheus3301/sigtui/internal/signal"
	"github.com/matheus3301/sigtui/internal/status"
	"github.com/matheus3301/sigtui/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params holds the resolved account and configuration passed to the fx module.
type Params struct {
	Account string
	Config  *config.Config
	Logger  *zap.Logger // optional override for testing; nil = log file under the profile
}

// Runtime is everything the terminal UI drives once the module has started.
type Runtime struct {
	fx.In

	Params  Params
	Logger  *zap.Logger
	Bus     *bus.Bus
	Machine *status.Machine
	Store   *store.DB
	Engine  *engine.Engine
	Sender  *outbox.Sender
	Client  *signal.Client
	Images  *images.Pipeline
	Avatars *images.Avatars
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("sigtui",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideClient,
			providePipeline,
			provideAvatars,
			provideEngine,
			provideSender,
			NewSession,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(profile.LogPath(p.Account), p.Account, p.Config.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Account); err != nil {
		return nil, err
	}
	logger.Info("acquiring account lock", zap.String("account", p.Account))
	l, err := lock.Acquire(profile.Dir(p.Account))
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by a second process.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Account)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideClient(p Params, b *bus.Bus, logger *zap.Logger) *signal.Client {
	return signal.NewClient(signal.Options{
		Binary:    p.Config.SignalCLI,
		ConfigDir: p.Config.SignalCLIConfig,
		Account:   p.Account,
	}, b, logger)
}

func providePipeline(p Params, logger *zap.Logger) *images.Pipeline {
	return images.New(p.Config.AttachmentsDir, logger)
}

func provideAvatars(p Params, pipe *images.Pipeline) *images.Avatars {
	return images.NewAvatars(profile.SignalCLIAvatarDir(p.Config.SignalCLIConfig), pipe)
}

func provideEngine(p Params, db *store.DB, pipe *images.Pipeline, logger *zap.Logger) (*engine.Engine, error) {
	var img engine.Images
	if p.Config.ImagePreviews {
		img = pipe
	}
	e := engine.New(db, img, logger)
	e.SetSelf(profile.AccountUUID(profile.SignalCLIDataDir(p.Config.SignalCLIConfig), p.Account), p.Account)
	e.SetMaxImageWidth(p.Config.MaxImageWidth)
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

func provideSender(db *store.DB, client *signal.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, client, b, logger)
}

// registerLifecycle appends one hook per stage so a failed start only
// unwinds the stages that already ran.
func registerLifecycle(lc fx.Lifecycle, p Params, lk *lock.Lock, db *store.DB, pipe *images.Pipeline, sender *outbox.Sender, sess *Session, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("sigtui stopped")
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if p.Config.ImagePreviews || p.Config.Avatars {
				go pipe.Run(ctx)
			}
			sender.Start(ctx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			sender.Stop()
			cancel()
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: sess.Start,
		OnStop: func(_ context.Context) error {
			sess.Stop()
			return nil
		},
	})
}

// FxLogger routes fx's own lifecycle events to zap.
func FxLogger(logger *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
}
