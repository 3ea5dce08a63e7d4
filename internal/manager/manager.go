// Package manager owns every currently-managed event's flow, schedules
// the timers that drive its lifecycle forward, and fans out transitions
// to listeners (store, broker, logging).
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/semyonkozlov/teave-eventmanager/internal/clock"
	"github.com/semyonkozlov/teave-eventmanager/internal/event"
	"github.com/semyonkozlov/teave-eventmanager/internal/executor"
	"github.com/semyonkozlov/teave-eventmanager/internal/flow"
	"github.com/semyonkozlov/teave-eventmanager/internal/recurrence"
	"github.com/semyonkozlov/teave-eventmanager/internal/teaveerr"
)

// smGroup is the executor task-group name reserved for an event's own
// lifecycle timers, distinct from the per-event store/publish groups
// other listeners use.
func smGroup(id string) string { return id + "_sm" }

// Manager owns the set of currently-managed events and drives each one's
// flow.Machine forward on a timer.
type Manager struct {
	exec       *executor.Executor
	clock      clock.Clock
	log        *slog.Logger
	pollDeltas event.PollDeltas

	listeners []any

	mu     sync.Mutex
	events map[string]*event.Event
}

// New returns a Manager. pollDeltas overrides the built-in start/stop
// poll deltas for every event that doesn't carry its own explicit poll
// anchors. listeners are attached to every event's flow.Machine, in
// addition to the Manager's own scheduling listener and a transitions
// logger.
func New(exec *executor.Executor, clk clock.Clock, log *slog.Logger, pollDeltas event.PollDeltas, listeners ...any) *Manager {
	return &Manager{
		exec:       exec,
		clock:      clk,
		log:        log,
		pollDeltas: pollDeltas,
		listeners:  listeners,
		events:     make(map[string]*event.Event),
	}
}

// ListEvents returns every currently-managed event.
func (m *Manager) ListEvents() []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*event.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	return out
}

// GetEvent looks up a managed event by id.
func (m *Manager) GetEvent(id string) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return nil, &teaveerr.UnknownTeavent{TeaventID: id}
	}
	return e, nil
}

// recurringExceptions returns every managed event pointing at seriesID as
// its RecurringEventID, the set of dates the recurrence engine must
// treat as already split out of the series.
func (m *Manager) recurringExceptions(seriesID string) []recurrence.Exception {
	var out []recurrence.Exception
	for _, e := range m.events {
		if e.RecurringEventID == seriesID {
			out = append(out, recurrence.Exception{Start: e.Start})
		}
	}
	return out
}

// ManageTeavent starts managing e: if e.ID is new, it is installed and
// advanced with an init trigger (arming the correct timer for its
// current state). A second attempt to manage an id already installed
// fails with *teaveerr.TeaventIsManaged; at most one Flow per id exists
// at any moment.
func (m *Manager) ManageTeavent(ctx context.Context, e *event.Event) (*event.Event, error) {
	m.mu.Lock()
	if _, ok := m.events[e.ID]; ok {
		m.mu.Unlock()
		return nil, &teaveerr.TeaventIsManaged{TeaventID: e.ID}
	}
	m.mu.Unlock()

	if e.State.Final() {
		return nil, &teaveerr.TeaventIsInFinalState{TeaventID: e.ID, State: string(e.State)}
	}

	m.mu.Lock()
	m.events[e.ID] = e
	m.mu.Unlock()

	mach := m.machine(ctx)
	exceptions := m.recurringExceptions(e.ID)
	now := m.clock.Now(e.TZ())
	if err := mach.Fire(flow.TriggerInit, e, flow.Options{Exceptions: exceptions, Now: now}); err != nil {
		m.mu.Lock()
		delete(m.events, e.ID)
		m.mu.Unlock()
		return nil, err
	}

	m.log.Info("now managing teavent", "id", e.ID, "state", e.State)
	m.scheduleForState(ctx, e)
	return e, nil
}

// machine builds a fresh flow.Machine for e, wired with the Manager's own
// scheduling listener (AfterTransition below) ahead of any caller-supplied
// listeners, plus a transitions logger.
func (m *Manager) machine(ctx context.Context) *flow.Machine {
	listeners := append([]any{
		flow.AfterTransitionFunc(func(e *event.Event, trigger flow.Trigger, from, to event.State) {
			m.log.Info(fmt.Sprintf("%s: %s -(%s)-> %s", e.ID, from, trigger, to))
			if to != from {
				m.scheduleForState(ctx, e)
			}
		}),
	}, m.listeners...)
	return flow.NewMachine(listeners...)
}

// HandleUserAction dispatches a user-initiated trigger against a managed
// event's flow. force bypasses the guards that restrict purely
// user-initiated flow (e.g. confirming before the poll has opened), as an
// admin-only override; it is never implied by the trigger itself.
func (m *Manager) HandleUserAction(ctx context.Context, teaventID string, trigger flow.Trigger, userID string, force bool) (*event.Event, error) {
	e, err := m.GetEvent(teaventID)
	if err != nil {
		return nil, err
	}

	mach := m.machine(ctx)
	if err := mach.Fire(trigger, e, flow.Options{UserID: userID, Force: force}); err != nil {
		return nil, err
	}

	if e.State.Final() {
		m.drop(e.ID)
	}
	return e, nil
}

// Drop removes a finalized event from management. It returns a
// *teaveerr.GuardFailure if the event is not in a final state.
func (m *Manager) Drop(teaventID string) error {
	e, err := m.GetEvent(teaventID)
	if err != nil {
		return err
	}
	if !e.State.Final() {
		return &teaveerr.GuardFailure{TeaventID: teaventID, Event: "drop", Reason: "not in a final state"}
	}
	m.drop(teaventID)
	return nil
}

func (m *Manager) drop(teaventID string) {
	m.mu.Lock()
	delete(m.events, teaventID)
	m.mu.Unlock()
	m.exec.Cancel(smGroup(teaventID))
}

// scheduleForState arms the timer appropriate to e's current state,
// replacing whatever timer was previously armed for it.
func (m *Manager) scheduleForState(ctx context.Context, e *event.Event) {
	m.exec.Cancel(smGroup(e.ID))

	switch e.State {
	case event.StateCreated:
		m.schedule(ctx, e, flow.TriggerStartPoll, e.StartPollAt(m.pollDeltas))
	case event.StatePollOpen:
		m.schedule(ctx, e, flow.TriggerStopPoll, e.StopPollAt(m.pollDeltas))
	case event.StatePlanned:
		m.schedule(ctx, e, flow.TriggerStart, e.Start)
	case event.StateStarted:
		m.schedule(ctx, e, flow.TriggerEnd, e.End)
	case event.StateCancelled, event.StateEnded:
		m.recreateOrFinalize(ctx, e)
	}
}

// schedule arms trigger to fire against e at at, replacing the event's
// previously-scheduled lifecycle timer. A past-due at runs immediately.
func (m *Manager) schedule(ctx context.Context, e *event.Event, trigger flow.Trigger, at time.Time) {
	delay := at.Sub(m.clock.Now(e.TZ()))
	m.exec.Schedule(ctx, smGroup(e.ID), string(trigger), delay, func(ctx context.Context) {
		mach := m.machine(ctx)
		if err := mach.Fire(trigger, e, flow.Options{}); err != nil {
			m.log.Error("scheduled transition failed", "id", e.ID, "trigger", trigger, "err", err)
			return
		}
		if e.State.Final() {
			m.drop(e.ID)
		}
	})
}

// recreateOrFinalize mirrors the on-enter effect for cancelled/ended:
// recurring events roll forward to their next occurrence; one-shot
// events finalize and drop out of management.
func (m *Manager) recreateOrFinalize(ctx context.Context, e *event.Event) {
	mach := m.machine(ctx)

	if e.IsRecurring() {
		exceptions := m.recurringExceptions(e.ID)
		if err := mach.Fire(flow.TriggerRecreate, e, flow.Options{Exceptions: exceptions}); err != nil {
			m.log.Error("recreate failed", "id", e.ID, "err", err)
		}
		return
	}

	if err := mach.Fire(flow.TriggerFinalize, e, flow.Options{}); err != nil {
		m.log.Error("finalize failed", "id", e.ID, "err", err)
		return
	}
	m.drop(e.ID)
}

// Recover re-manages every event fetch returns, advancing each with an
// init trigger so a process restarted after downtime re-arms timers and
// self-heals on anything already past due.
func (m *Manager) Recover(ctx context.Context, fetch func(ctx context.Context) ([]*event.Event, error)) error {
	events, err := fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch events for recovery: %w", err)
	}

	for _, e := range events {
		if e.State.Final() {
			continue
		}

		m.mu.Lock()
		m.events[e.ID] = e
		m.mu.Unlock()

		mach := m.machine(ctx)
		exceptions := m.recurringExceptions(e.ID)
		now := m.clock.Now(e.TZ())
		if err := mach.Fire(flow.TriggerInit, e, flow.Options{Exceptions: exceptions, Now: now}); err != nil {
			m.log.Error("recovery init failed", "id", e.ID, "err", err)
			continue
		}
		m.scheduleForState(ctx, e)
	}

	m.log.Info("recovery complete", "count", len(events))
	return nil
}
