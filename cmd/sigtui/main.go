package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/sigtui/internal/app"
	"github.com/matheus3301/sigtui/internal/bus"
	"github.com/matheus3301/sigtui/internal/config"
	"github.com/matheus3301/sigtui/internal/images"
	"github.com/matheus3301/sigtui/internal/logging"
	"github.com/matheus3301/sigtui/internal/profile"
	"github.com/matheus3301/sigtui/internal/signal"
	"github.com/matheus3301/sigtui/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const startTimeout = 30 * time.Second

func main() {
	var (
		accountFlag string
		configPath  string
	)
	rootCmd := &cobra.Command{
		Use:          "sigtui",
		Short:        "A terminal client for Signal, backed by signal-cli",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), accountFlag, configPath)
		},
	}
	rootCmd.Flags().StringVarP(&accountFlag, "account", "a", "", "E.164 number to use (overrides config)")
	rootCmd.Flags().StringVar(&configPath, "config", profile.ConfigPath(), "path to config.toml")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, accountFlag, configPath string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	account, err := profile.Resolve(accountFlag, cfg)
	if errors.Is(err, profile.ErrNoAccount) {
		account, err = link(ctx, cfg, configPath)
	}
	if err != nil {
		return err
	}

	var rt app.Runtime
	fxApp := fx.New(
		app.Module(app.Params{Account: account, Config: cfg}),
		fx.WithLogger(app.FxLogger),
		fx.Invoke(func(r app.Runtime) { rt = r }),
	)
	if err := fxApp.Err(); err != nil {
		return err
	}

	var pipe *images.Pipeline
	if cfg.ImagePreviews {
		pipe = rt.Images
	}
	var avatars *images.Avatars
	if cfg.Avatars {
		avatars = rt.Avatars
	}
	// Built before Start so the session's first status and directory events reach it.
	ui := tui.New(tui.Deps{
		Account: account,
		Engine:  rt.Engine,
		Outbox:  rt.Sender,
		Bus:     rt.Bus,
		Machine: rt.Machine,
		Images:  pipe,
		Avatars: avatars,
		Store:   rt.Store,
		Logger:  rt.Logger,
	})

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		ui.Stop()
		return err
	}

	runErr := ui.Run()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), startTimeout)
	defer stopCancel()
	return errors.Join(runErr, fxApp.Stop(stopCtx))
}

// link runs signal-cli without an account and walks the user through
// linking this machine as a secondary device. The linked number becomes the
// configured default when none was set.
func link(ctx context.Context, cfg *config.Config, configPath string) (string, error) {
	logger, err := logging.New(profile.LinkLogPath(), "", cfg.LogLevel)
	if err != nil {
		return "", err
	}
	defer func() { _ = logger.Sync() }()

	client := signal.NewClient(signal.Options{
		Binary:    cfg.SignalCLI,
		ConfigDir: cfg.SignalCLIConfig,
	}, bus.New(), logger)
	if err := client.Connect(ctx); err != nil {
		return "", err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("close signal-cli", zap.Error(err))
		}
	}()

	number, err := tui.Link(ctx, client, cfg.DeviceName, logger)
	if err != nil {
		return "", err
	}
	if cfg.Account == "" {
		cfg.Account = number
		if err := config.Save(configPath, cfg); err != nil {
			logger.Warn("could not save linked account", zap.String("path", configPath), zap.Error(err))
		}
	}
	return number, nil
}
