package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/semyonkozlov/teave-eventmanager/internal/event"
	"github.com/semyonkozlov/teave-eventmanager/internal/executor"
	"github.com/semyonkozlov/teave-eventmanager/internal/flow"
	"github.com/semyonkozlov/teave-eventmanager/internal/teaveerr"
)

func pubGroup(id string) string { return id + "_pub" }

// Listener adapts a Publisher into a flow.AfterTransition observer: it
// publishes the event's current snapshot after every transition,
// including internal self-transitions, so every state a subscriber cares
// about is observable. Publishes for one event are serialized through a
// dedicated executor group; ordering across different events is not
// guaranteed.
type Listener struct {
	pub  *Publisher
	exec *executor.Executor
	log  *slog.Logger

	seq atomic.Int64
}

// NewListener returns a Listener backed by pub, scheduling publishes
// through exec.
func NewListener(pub *Publisher, exec *executor.Executor, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{pub: pub, exec: exec, log: log}
}

// AfterTransition schedules a publish of e's current snapshot. A publish
// that fails with a transport error is retried once before the failure
// is logged.
func (l *Listener) AfterTransition(e *event.Event, trigger flow.Trigger, from, to event.State) {
	n := l.seq.Add(1)
	snapshot := e.Clone()
	name := fmt.Sprintf("%s_%d", to, n)

	l.exec.Schedule(context.Background(), pubGroup(e.ID), name, 0, func(ctx context.Context) {
		err := l.pub.Publish(ctx, snapshot)
		if teaveerr.IsTransportError(err) {
			err = l.pub.Publish(ctx, snapshot)
		}
		if err != nil {
			l.log.Error("broker publish failed", "id", e.ID, "err", err)
		}
	})
}
