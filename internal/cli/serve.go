package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/semyonkozlov/teave-eventmanager/internal/broker"
	"github.com/semyonkozlov/teave-eventmanager/internal/clock"
	"github.com/semyonkozlov/teave-eventmanager/internal/config"
	"github.com/semyonkozlov/teave-eventmanager/internal/executor"
	"github.com/semyonkozlov/teave-eventmanager/internal/manager"
	"github.com/semyonkozlov/teave-eventmanager/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
}

// NewServeCommand creates the serve command: opens the store, starts the
// broker publisher, recovers every previously-managed event and blocks
// until interrupted.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event manager process",
		Long: `Run the event manager process.

Opens the SQLite document store, connects to the MQTT broker (if
configured), recovers every previously-managed event from the store, and
blocks, running timers and dispatching scheduled transitions until
interrupted.

Example:
  eventmanager serve --config ./config.yaml
  eventmanager serve --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	log := newLogger(opts.RootOptions)

	cfg, err := loadConfig(opts.RootOptions, log)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	clk := clock.System{}
	exec := executor.New(log)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	pub := broker.New(broker.Config{
		BrokerURL:   cfg.Broker.URL,
		ClientID:    cfg.Broker.ClientID,
		TopicPrefix: cfg.Broker.TopicPrefix,
	}, log)
	if cfg.Broker.URL != "" {
		if err := pub.Start(ctx); err != nil {
			return fmt.Errorf("start broker: %w", err)
		}
		defer func() {
			if stopErr := pub.Stop(context.Background()); stopErr != nil {
				log.Error("error stopping broker", "error", stopErr)
			}
		}()
	} else {
		log.Warn("no broker URL configured, publishing is disabled")
	}

	storeListener := store.NewListener(st, exec, log)
	brokerListener := broker.NewListener(pub, exec, log)

	m := manager.New(exec, clk, log, cfg.Poll.EventPollDeltas(), storeListener, brokerListener)

	if err := m.Recover(ctx, st.FetchAll); err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fmt.Fprintln(cmd.OutOrStdout(), "Event manager running. Press Ctrl-C to stop.")

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	log.Info("event manager stopped gracefully")
	return nil
}

// newLogger builds the process-wide slog.Logger from --verbose.
func newLogger(opts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = config.LevelTrace
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	})
	return slog.New(handler)
}

// loadConfig locates and parses config.yaml, falling back to built-in
// defaults (and a warning) when no config file is found.
func loadConfig(opts *RootOptions, log *slog.Logger) (*config.Config, error) {
	path, err := config.FindConfig(opts.ConfigPath)
	if err != nil {
		log.Warn("no config file found, using defaults", "error", err)
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Info("loaded config", "path", path)
	return cfg, nil
}
