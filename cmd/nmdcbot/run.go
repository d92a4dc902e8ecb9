package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/applegrew/jdcbot-sub001/pkg/bot"
	"github.com/applegrew/jdcbot-sub001/pkg/config"
	"github.com/applegrew/jdcbot-sub001/pkg/logger"
	"github.com/applegrew/jdcbot-sub001/pkg/metrics"
	"github.com/applegrew/jdcbot-sub001/pkg/responses"
	"github.com/applegrew/jdcbot-sub001/pkg/status"
	"github.com/applegrew/jdcbot-sub001/pkg/watcher"
)

func runCmd(opts *globalOptions) *cobra.Command {
	var statusAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted",
		Long: `Connect to the hub and run the chat bot.

The bot reconnects when the hub drops it, answers chat from the
responses database, greets joining users and posts announcements.
When bot.responses_file is set it is imported at start and again
whenever it changes.

Examples:
  nmdcbot run
  nmdcbot run --status 127.0.0.1:9411`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if statusAddr != "" {
				cfg.Status.Enabled = true
				cfg.Status.ListenAddr = statusAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runBot(ctx, cfg, newLogger(cfg))
		},
	}

	cmd.Flags().StringVar(&statusAddr, "status", "", "enable the status server on this address")

	return cmd
}

// runBot wires the store, the responses file watcher, metrics, the status
// server and the bot, and runs them until ctx is cancelled.
func runBot(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close responses database", "error", err)
		}
	}()

	if cfg.Bot.ResponsesFile != "" {
		n, err := store.Import(cfg.Bot.ResponsesFile)
		if err != nil {
			return fmt.Errorf("failed to import responses: %w", err)
		}
		log.Info("responses imported", "file", cfg.Bot.ResponsesFile, "count", n)
	}

	m := metrics.New()

	b, err := bot.New(bot.Config{
		Session:           cfg.SessionConfig(),
		Greeting:          cfg.Bot.Greeting,
		Announce:          cfg.Bot.Announce,
		AnnounceInterval:  cfg.Bot.AnnounceInterval,
		ReconnectDelay:    cfg.Bot.ReconnectDelay,
		MaxReconnectDelay: cfg.Bot.MaxReconnectDelay,
		MaxReconnects:     cfg.Bot.MaxReconnects,
		Responses:         store,
		Metrics:           m,
	}, log.With("component", "bot"))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Bot.ResponsesFile != "" {
		w, err := watcher.New(watcher.Config{}, log.With("component", "watcher"))
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Error("failed to close watcher", "error", err)
			}
		}()

		if err := w.Start(ctx, []string{cfg.Bot.ResponsesFile}); err != nil {
			return fmt.Errorf("failed to watch responses file: %w", err)
		}
		g.Go(func() error {
			reloadResponses(ctx, w, store, log)
			return nil
		})
	}

	g.Go(func() error {
		return b.Run(ctx)
	})

	if cfg.Status.Enabled {
		srv := status.New(status.Config{ListenAddr: cfg.Status.ListenAddr}, b, m.Handler(), log.With("component", "status"))
		g.Go(func() error {
			return srv.Serve(ctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reloadResponses imports the responses file after every change until ctx
// is done or the watcher gives up.
func reloadResponses(ctx context.Context, w watcher.Watcher, store responses.Store, log logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if ev.Op == watcher.OpRemove || ev.Op == watcher.OpRename {
				continue
			}
			n, err := store.Import(ev.Path)
			if err != nil {
				log.Warn("responses reload failed", "file", ev.Path, "error", err)
				continue
			}
			log.Info("responses reloaded", "file", ev.Path, "count", n)

		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			if errors.Is(err, watcher.ErrCircuitBreakerOpen) {
				log.Error("responses file watcher stopped", "error", err)
				return
			}
			log.Warn("responses file watcher error", "error", err)
		}
	}
}
