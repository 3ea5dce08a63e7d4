package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/semyonkozlov/teave-eventmanager/internal/broker"
	"github.com/semyonkozlov/teave-eventmanager/internal/clock"
	"github.com/semyonkozlov/teave-eventmanager/internal/executor"
	"github.com/semyonkozlov/teave-eventmanager/internal/manager"
	"github.com/semyonkozlov/teave-eventmanager/internal/rpc"
	"github.com/semyonkozlov/teave-eventmanager/internal/store"
)

// TasksOptions holds flags for the tasks command.
type TasksOptions struct {
	*RootOptions
}

// NewTasksCommand creates the tasks command: a one-shot diagnostic that
// recovers the store's managed events into an in-process manager (no
// broker connection, no blocking) and prints the resulting scheduled
// task snapshot, the same data the "tasks" RPC operation exposes to a
// running process.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TasksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tasks [group-id]",
		Short: "Print scheduled tasks after recovering the store",
		Long: `Recover every managed event from the store and print the timers the
manager would arm for it, without starting the broker or blocking.

An optional group id (e.g. an event id suffixed "_sm") restricts the
output to that event's scheduler group.

Example:
  eventmanager tasks
  eventmanager tasks ev1_sm --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID := ""
			if len(args) == 1 {
				groupID = args[0]
			}
			return runTasks(opts, groupID, cmd)
		},
	}

	return cmd
}

func runTasks(opts *TasksOptions, groupID string, cmd *cobra.Command) error {
	log := newLogger(opts.RootOptions)

	cfg, err := loadConfig(opts.RootOptions, log)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	exec := executor.New(log)
	pub := broker.New(broker.Config{TopicPrefix: cfg.Broker.TopicPrefix}, log)
	m := manager.New(exec, clock.System{}, log, cfg.Poll.EventPollDeltas(),
		store.NewListener(st, exec, log),
		broker.NewListener(pub, exec, log),
	)

	ctx := context.Background()
	if err := m.Recover(ctx, st.FetchAll); err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	surface := rpc.New(m, exec, log)
	tasks := surface.Tasks(ctx, groupID)

	if opts.Format == "json" {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(tasks)
	}

	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no scheduled tasks")
		return nil
	}
	for _, t := range tasks {
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-20s %s\n", t.GroupID, t.Name, t.At.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
