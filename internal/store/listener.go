package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/semyonkozlov/teave-eventmanager/internal/event"
	"github.com/semyonkozlov/teave-eventmanager/internal/executor"
	"github.com/semyonkozlov/teave-eventmanager/internal/flow"
)

func dbGroup(id string) string { return id + "_db" }

// Listener adapts a Store into a flow.AfterTransition/flow.OnEnter
// observer: it upserts the current snapshot after every non-final
// transition and deletes the document once an event reaches its final
// state. Writes are serialized per event through a dedicated executor
// group so store ordering matches transition order even though the
// underlying driver call runs asynchronously.
type Listener struct {
	store *Store
	exec  *executor.Executor
	log   *slog.Logger

	updateID atomic.Int64
}

// NewListener returns a Listener backed by store, scheduling its writes
// through exec.
func NewListener(store *Store, exec *executor.Executor, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{store: store, exec: exec, log: log}
}

// AfterTransition schedules an upsert of e's current snapshot, unless to
// is a final state (the OnEnter hook below handles those by deleting
// instead).
func (l *Listener) AfterTransition(e *event.Event, trigger flow.Trigger, from, to event.State) {
	if to.Final() {
		return
	}

	id := l.updateID.Add(1)
	snapshot := e.Clone()
	name := fmt.Sprintf("update_%d", id)

	l.exec.Schedule(context.Background(), dbGroup(e.ID), name, 0, func(ctx context.Context) {
		if err := l.store.Upsert(ctx, snapshot); err != nil {
			l.log.Error("store upsert failed", "id", e.ID, "err", err)
		}
	})
}

// OnEnter schedules a delete once e enters a final state.
func (l *Listener) OnEnter(e *event.Event, state event.State) {
	if !state.Final() {
		return
	}

	id := e.ID
	l.exec.Schedule(context.Background(), dbGroup(id), "drop", 0, func(ctx context.Context) {
		if err := l.store.Delete(ctx, id); err != nil {
			l.log.Error("store delete failed", "id", id, "err", err)
		}
	})
}
