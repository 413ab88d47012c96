package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/westrik/parley/internal/api"
	"github.com/westrik/parley/internal/config"
	"github.com/westrik/parley/internal/db"
	"github.com/westrik/parley/internal/idle"
	"github.com/westrik/parley/internal/notify"
	"github.com/westrik/parley/internal/notify/discord"
	"github.com/westrik/parley/internal/notify/slack"
	"github.com/westrik/parley/internal/session"
	"github.com/westrik/parley/internal/snapshot"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the session API server",
		Long: `Starts the HTTP API for one conversation session: segment ingestion,
text sends, idle timer control and a server-sent-events state stream.
Snapshots are persisted to the configured storage backend and swept on
the retention schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, sessionID, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "default", "session identifier")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath, sessionID string, port int) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg.Storage.Backend, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("connect to %s storage: %w", cfg.Storage.Backend, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Storage ready (%s)\n", cfg.Storage.Backend)

	store, err := snapshot.NewGormStore(gormDB)
	if err != nil {
		return err
	}

	notifiers, err := buildNotifiers(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, n := range notifiers {
			n.Close()
		}
	}()

	eng, err := session.New(session.Opts{
		SessionID: sessionID,
		Snapshots: store,
		Notifiers: notifiers,
		IdleConfig: idle.Config{
			DurationSeconds:         cfg.Idle.DurationSeconds,
			WarningThresholdSeconds: cfg.Idle.WarningThresholdSeconds,
			Enabled:                 cfg.Idle.Enabled,
		},
	})
	if err != nil {
		return err
	}
	defer eng.Close()
	fmt.Fprintf(out, "Session %q restored: %d messages\n", sessionID, len(eng.Messages()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	sweeper := snapshot.NewSweeper(store, cfg.Retention.Schedule,
		time.Duration(cfg.Retention.MaxAgeDays)*24*time.Hour)
	go sweeper.Run(ctx)

	if port == 0 {
		port = cfg.HTTP.Port
	}
	return api.Start(ctx, api.StartOpts{
		Engine: eng,
		Port:   port,
		Out:    out,
	})
}

// loadConfigOrDefault falls back to built-in defaults when the config file
// does not exist, so `parley serve` works out of the box.
func loadConfigOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildNotifiers(cfg *config.Config) ([]notify.Adapter, error) {
	var adapters []notify.Adapter

	if cfg.Notify.Slack.BotToken != "" {
		a, err := slack.New(slack.AdapterOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if cfg.Notify.Discord.BotToken != "" {
		a, err := discord.New(discord.AdapterOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	return adapters, nil
}
