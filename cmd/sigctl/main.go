package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/matheus3301/sigtui/internal/bus"
	"github.com/matheus3301/sigtui/internal/config"
	"github.com/matheus3301/sigtui/internal/engine"
	"github.com/matheus3301/sigtui/internal/logging"
	"github.com/matheus3301/sigtui/internal/profile"
	"github.com/matheus3301/sigtui/internal/signal"
	"github.com/matheus3301/sigtui/internal/store"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type globals struct {
	account    string
	configPath string
	json       bool
}

func main() {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:          "sigctl",
		Short:        "Inspect the sigtui message cache and link devices",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&g.account, "account", "a", "", "E.164 number to use (overrides config)")
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", profile.ConfigPath(), "path to config.toml")
	rootCmd.PersistentFlags().BoolVar(&g.json, "json", false, "output in JSON format")

	rootCmd.AddCommand(conversationsCmd(g), messagesCmd(g), accountsCmd(g), linkCmd(g))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the resolved account's cache. The TUI may hold the
// account lock; reads are safe under sqlite's WAL.
func openStore(g *globals) (*store.DB, error) {
	cfg, err := config.LoadOrDefault(g.configPath)
	if err != nil {
		return nil, err
	}
	account, err := profile.Resolve(g.account, cfg)
	if err != nil {
		return nil, err
	}
	path := profile.DBPath(account)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no cache for %s: %w", account, err)
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type conversationOut struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	Unread     int    `json:"unread"`
	LastActive int64  `json:"last_active"`
}

func conversationsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"convs"},
		Short:   "List cached conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(g)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			convs, err := db.ListConversations()
			if err != nil {
				return err
			}
			out := make([]conversationOut, 0, len(convs))
			for i := range convs {
				c := &convs[i]
				out = append(out, conversationOut{
					ID:         c.ID,
					Kind:       string(c.Kind),
					Name:       c.DisplayName(),
					Identifier: c.Identifier(),
					Unread:     c.UnreadCount,
					LastActive: c.LastMessageTimestamp,
				})
			}
			if g.json {
				return outputJSON(out)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tKIND\tUNREAD\tLAST ACTIVE")
			for _, c := range out {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Name, c.Kind, c.Unread, engine.FormatTimestamp(c.LastActive))
			}
			return w.Flush()
		},
	}
}

type messageOut struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
	Outgoing  bool   `json:"outgoing"`
	Text      string `json:"text"`
}

func messagesCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "Print the newest cached messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			db, err := openStore(g)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			conv, err := db.GetConversation(args[0])
			if err != nil {
				return err
			}
			if conv == nil {
				return fmt.Errorf("unknown conversation %q", args[0])
			}
			msgs, err := db.ListMessages(args[0], limit, 0)
			if err != nil {
				return err
			}
			out := make([]messageOut, 0, len(msgs))
			for i := range msgs {
				m := &msgs[i]
				sender := m.SenderName
				if m.IsOutgoing {
					sender = "me"
				} else if sender == "" {
					sender = m.SenderID
				}
				out = append(out, messageOut{
					ID:        m.ID,
					Sender:    sender,
					Timestamp: m.Timestamp,
					Outgoing:  m.IsOutgoing,
					Text:      store.PlainText(m.Content),
				})
			}
			if g.json {
				return outputJSON(out)
			}
			for _, m := range out {
				fmt.Printf("%s %s: %s\n", engine.FormatTimestamp(m.Timestamp), m.Sender, m.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of messages to print")
	return cmd
}

// startBackend runs signal-cli without an account for one-shot calls.
func startBackend(ctx context.Context, cfg *config.Config) (*signal.Client, *zap.Logger, error) {
	logger, err := logging.New(profile.LinkLogPath(), "", cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger = logging.WithConsole(logger, "warn")
	client := signal.NewClient(signal.Options{
		Binary:    cfg.SignalCLI,
		ConfigDir: cfg.SignalCLIConfig,
	}, bus.New(), logger)
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return client, logger, nil
}

func stopBackend(client *signal.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("close signal-cli", zap.Error(err))
	}
	_ = logger.Sync()
}

func accountsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts registered with signal-cli",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(g.configPath)
			if err != nil {
				return err
			}
			client, logger, err := startBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer stopBackend(client, logger)

			accounts, err := client.ListAccounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("list accounts: %w", err)
			}
			if g.json {
				return outputJSON(accounts)
			}
			for _, a := range accounts {
				marker := " "
				if a.Number == cfg.Account {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, a.Number)
			}
			return nil
		},
	}
}

func linkCmd(g *globals) *cobra.Command {
	var deviceName string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link this machine as a secondary device, printing the QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(g.configPath)
			if err != nil {
				return err
			}
			if deviceName == "" {
				deviceName = cfg.DeviceName
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			client, logger, err := startBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer stopBackend(client, logger)

			uri, err := client.StartLink(ctx)
			if err != nil {
				return fmt.Errorf("start link: %w", err)
			}
			qr, err := qrcode.New(uri, qrcode.Low)
			if err != nil {
				return fmt.Errorf("encode link uri: %w", err)
			}
			fmt.Print(qr.ToSmallString(false))
			fmt.Println("Scan with Signal on your phone: Settings > Linked devices > Link new device.")
			fmt.Println(uri)

			acct, err := client.FinishLink(ctx, uri, deviceName)
			if err != nil {
				return fmt.Errorf("finish link: %w", err)
			}
			if g.json {
				return outputJSON(acct)
			}
			fmt.Printf("Linked %s\n", acct.Number)
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceName, "name", "", "device name shown on the phone (default from config)")
	return cmd
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
