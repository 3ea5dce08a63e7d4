// Package flow implements the per-event lifecycle state machine: states,
// guarded transitions, and on-enter/on-exit effects on the owning Event.
// Observers attach by capability (AfterTransition, OnEnter) rather than
// by inheriting from a base type.
package flow

import (
	"fmt"
	"time"

	"github.com/semyonkozlov/teave-eventmanager/internal/event"
	"github.com/semyonkozlov/teave-eventmanager/internal/recurrence"
	"github.com/semyonkozlov/teave-eventmanager/internal/teaveerr"
)

// Trigger names the user- or timer-initiated action driving a transition.
type Trigger string

const (
	TriggerStartPoll Trigger = "start_poll"
	TriggerConfirm   Trigger = "confirm"
	TriggerReject    Trigger = "reject"
	TriggerStopPoll  Trigger = "stop_poll"
	TriggerStart     Trigger = "start_"
	TriggerIAmLate   Trigger = "i_am_late"
	TriggerEnd       Trigger = "end"
	TriggerCancel    Trigger = "cancel"
	TriggerRecreate  Trigger = "recreate"
	TriggerFinalize  Trigger = "finalize"
	TriggerInit      Trigger = "init"
)

// AfterTransition is implemented by observers that want to react once a
// transition has committed: the state has already changed on Event.
type AfterTransition interface {
	AfterTransition(e *event.Event, trigger Trigger, from, to event.State)
}

// OnEnter is implemented by observers that want to react to entering a
// specific state, regardless of which trigger produced it.
type OnEnter interface {
	OnEnter(e *event.Event, state event.State)
}

// AfterTransitionFunc adapts a plain function to AfterTransition.
type AfterTransitionFunc func(e *event.Event, trigger Trigger, from, to event.State)

func (f AfterTransitionFunc) AfterTransition(e *event.Event, trigger Trigger, from, to event.State) {
	f(e, trigger, from, to)
}

// OnEnterFunc adapts a plain function to OnEnter.
type OnEnterFunc func(e *event.Event, state event.State)

func (f OnEnterFunc) OnEnter(e *event.Event, state event.State) { f(e, state) }

// Options carries the trigger arguments a caller supplies: which user
// confirmed/rejected, and whether guards should be bypassed.
type Options struct {
	UserID string
	Force  bool
	// Exceptions is the set of already-managed instances that exclude
	// dates from this series, consulted by recreate/init when the event
	// is recurring.
	Exceptions []recurrence.Exception
	// Now anchors init's catch-up check for recurring events: init only
	// rolls Start/End forward while the currently-seated occurrence is
	// not strictly after Now, so re-seating an already-future occurrence
	// (the common recovery case) leaves timings untouched.
	Now time.Time
}

// Machine binds an Event to the transition table and its observers. It
// holds no state of its own beyond the observers: Event.State is the
// single source of truth, so a Machine can be rebuilt freely around a
// recovered Event.
type Machine struct {
	listeners []any
}

// NewMachine returns a Machine with the given observers attached. Each
// observer may implement AfterTransition, OnEnter, both, or neither.
func NewMachine(listeners ...any) *Machine {
	return &Machine{listeners: listeners}
}

// transition describes one edge of the table: the set of states it fires
// from, the state it lands in (or "" for an internal self-transition that
// keeps the current state), and the guard/effect pair run around it.
type transition struct {
	from  []event.State
	to    event.State // empty means "stay in the current state"
	guard func(e *event.Event, opts Options) error
	// effect mutates e in place. Run after the guard passes and, for a
	// state change, after State has already been updated to `to`.
	effect func(e *event.Event, opts Options) error
}

func (m *Machine) table() map[Trigger]transition {
	return map[Trigger]transition{
		TriggerStartPoll: {
			from: []event.State{event.StateCreated},
			to:   event.StatePollOpen,
		},
		TriggerConfirm: {
			from: []event.State{event.StateCreated, event.StatePollOpen, event.StatePlanned},
			guard: func(e *event.Event, opts Options) error {
				if e.State == event.StateCreated && !opts.Force {
					return &teaveerr.GuardFailure{TeaventID: e.ID, Event: string(TriggerConfirm), Reason: "poll not open yet"}
				}
				if !guardNotConfirmedBefore(e, opts.UserID) {
					return &teaveerr.GuardFailure{TeaventID: e.ID, Event: string(TriggerConfirm), Reason: "already confirmed"}
				}
				return nil
			},
			effect: func(e *event.Event, opts Options) error {
				e.ParticipantIDs = append(e.ParticipantIDs, opts.UserID)
				return nil
			},
		},
		TriggerReject: {
			from: []event.State{event.StateCreated, event.StatePollOpen, event.StatePlanned},
			guard: func(e *event.Event, opts Options) error {
				if e.State == event.StatePlanned && !e.HasReserve() && !opts.Force {
					return &teaveerr.GuardFailure{TeaventID: e.ID, Event: string(TriggerReject), Reason: "no reserve to backfill"}
				}
				if !guardConfirmedBefore(e, opts.UserID) {
					return &teaveerr.GuardFailure{TeaventID: e.ID, Event: string(TriggerReject), Reason: "not confirmed"}
				}
				return nil
			},
			effect: func(e *event.Event, opts Options) error {
				e.ParticipantIDs = removeFirst(e.ParticipantIDs, opts.UserID)
				return nil
			},
		},
		TriggerStopPoll: {
			from: []event.State{event.StatePollOpen},
			to:   "", // resolved dynamically in fire(): planned or cancelled
		},
		TriggerStart: {
			from: []event.State{event.StatePlanned},
			to:   event.StateStarted,
		},
		TriggerIAmLate: {
			from: []event.State{event.StateStarted},
			guard: func(e *event.Event, opts Options) error {
				if opts.Force {
					return nil
				}
				if !guardConfirmedBefore(e, opts.UserID) {
					return &teaveerr.GuardFailure{TeaventID: e.ID, Event: string(TriggerIAmLate), Reason: "not confirmed"}
				}
				return nil
			},
			effect: func(e *event.Event, opts Options) error {
				if !contains(e.Latees, opts.UserID) {
					e.Latees = append(e.Latees, opts.UserID)
				}
				return nil
			},
		},
		TriggerEnd: {
			from: []event.State{event.StateStarted},
			to:   event.StateEnded,
		},
		TriggerCancel: {
			from: []event.State{event.StateCreated, event.StatePollOpen, event.StatePlanned},
			to:   event.StateCancelled,
		},
		TriggerRecreate: {
			from: []event.State{event.StateCreated, event.StateCancelled, event.StateEnded},
			to:   event.StateCreated,
			guard: func(e *event.Event, opts Options) error {
				if !e.IsRecurring() {
					return &teaveerr.GuardFailure{TeaventID: e.ID, Event: string(TriggerRecreate), Reason: "not recurring"}
				}
				return nil
			},
			effect: func(e *event.Event, opts Options) error {
				if err := advance(e, opts.Exceptions); err != nil {
					return err
				}
				e.ParticipantIDs = nil
				e.Latees = nil
				e.EffectiveMax = 0
				return nil
			},
		},
		TriggerFinalize: {
			from: []event.State{event.StateCancelled, event.StateEnded},
			to:   event.StateFinalized,
		},
		TriggerInit: {
			from: []event.State{event.StateCreated, event.StatePollOpen, event.StatePlanned, event.StateStarted, event.StateCancelled, event.StateEnded, event.StateFinalized},
			to:   "",
			guard: func(e *event.Event, opts Options) error {
				if e.State.Final() {
					return &teaveerr.TeaventIsInFinalState{TeaventID: e.ID, State: string(e.State)}
				}
				return nil
			},
			effect: func(e *event.Event, opts Options) error {
				if !e.IsRecurring() {
					return nil
				}
				if e.State == event.StateCancelled || e.State == event.StateEnded {
					// recreate's own advance (anchored on e.End) handles
					// seating the next occurrence; catching up here too
					// against wall-clock now would skip past it.
					return nil
				}
				return catchUp(e, opts.Exceptions, opts.Now)
			},
		},
	}
}

// catchUp re-seats a recurring event whose currently-stored occurrence has
// already started relative to now: it re-derives Start/End directly from
// the rule set anchored at now, which lands on the correct occurrence
// regardless of how many cycles were missed. An event already seated on a
// future occurrence is left untouched, so init is a no-op on the common
// recovery path (restart before the occurrence it's scheduled for began).
func catchUp(e *event.Event, exceptions []recurrence.Exception, now time.Time) error {
	if e.Start.After(now) {
		return nil
	}
	next, ok, err := recurrence.NextAfter(e, exceptions, now)
	if err != nil {
		return err
	}
	if !ok {
		return &teaveerr.TeaventFromThePast{TeaventID: e.ID, Start: e.Start.String()}
	}
	recurrence.ShiftTo(e, next)
	return nil
}

// advance rolls e's timings forward to its series' next occurrence after
// e.End (the moment the just-finished occurrence is done with), given the
// already-known exception instances.
func advance(e *event.Event, exceptions []recurrence.Exception) error {
	next, ok, err := recurrence.NextAfter(e, exceptions, e.End)
	if err != nil {
		return err
	}
	if !ok {
		return &teaveerr.TeaventFromThePast{TeaventID: e.ID, Start: e.Start.String()}
	}
	recurrence.ShiftTo(e, next)
	return nil
}

// Fire attempts trigger against e, running its guard, applying its
// effect, updating e.State, and notifying listeners. It returns a
// *teaveerr.GuardFailure if trigger does not apply from e's current
// state or if no transition with that name exists. A rejecting guard
// returns its own error: a *teaveerr.GuardFailure, or, for init on a
// finalized event, a *teaveerr.TeaventIsInFinalState.
func (m *Machine) Fire(trigger Trigger, e *event.Event, opts Options) error {
	t, ok := m.table()[trigger]
	if !ok {
		return &teaveerr.GuardFailure{TeaventID: e.ID, Event: string(trigger), Reason: "no such trigger"}
	}

	from := e.State
	if !stateIn(from, t.from) {
		return &teaveerr.GuardFailure{TeaventID: e.ID, Event: string(trigger), Reason: fmt.Sprintf("not valid from state %q", from)}
	}

	if t.guard != nil {
		if err := t.guard(e, opts); err != nil {
			return err
		}
	}

	to := t.to
	if trigger == TriggerStopPoll {
		if e.Ready() {
			to = event.StatePlanned
		} else {
			to = event.StateCancelled
		}
	}
	if to == "" {
		to = from
	}

	if trigger == TriggerStopPoll {
		e.EffectiveMax = e.NumParticipants()
	}

	e.State = to

	if t.effect != nil {
		if err := t.effect(e, opts); err != nil {
			return err
		}
	}

	for _, l := range m.listeners {
		if oe, ok := l.(OnEnter); ok && to != from {
			oe.OnEnter(e, to)
		}
		if at, ok := l.(AfterTransition); ok {
			at.AfterTransition(e, trigger, from, to)
		}
	}

	return nil
}

func guardNotConfirmedBefore(e *event.Event, userID string) bool {
	return !e.ConfirmedBy(userID)
}

func guardConfirmedBefore(e *event.Event, userID string) bool {
	return e.ConfirmedBy(userID)
}

func stateIn(s event.State, states []event.State) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}

func contains(ss []string, s string) bool {
	for _, candidate := range ss {
		if candidate == s {
			return true
		}
	}
	return false
}

func removeFirst(ss []string, s string) []string {
	for i, candidate := range ss {
		if candidate == s {
			return append(ss[:i], ss[i+1:]...)
		}
	}
	return ss
}
