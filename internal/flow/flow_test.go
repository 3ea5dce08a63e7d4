package flow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semyonkozlov/teave-eventmanager/internal/event"
	"github.com/semyonkozlov/teave-eventmanager/internal/flow"
	"github.com/semyonkozlov/teave-eventmanager/internal/teaveerr"
)

func newEvent(max, min int) *event.Event {
	start := time.Date(2024, 7, 31, 21, 0, 0, 0, time.UTC)
	return &event.Event{
		ID:     "ev1",
		Start:  start,
		End:    start.Add(time.Hour),
		Config: event.Config{Max: max, Min: min},
		State:  event.StateCreated,
	}
}

// S1: a poll that reaches quorum transitions to planned on stop_poll.
func TestStartPollConfirmReachesPlanned(t *testing.T) {
	e := newEvent(5, 2)
	m := flow.NewMachine()

	require.NoError(t, m.Fire(flow.TriggerStartPoll, e, flow.Options{}))
	assert.Equal(t, event.StatePollOpen, e.State)

	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1"}))
	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u2"}))

	require.NoError(t, m.Fire(flow.TriggerStopPoll, e, flow.Options{}))
	assert.Equal(t, event.StatePlanned, e.State)
	assert.Equal(t, 2, e.EffectiveMax)
}

// S2: a poll that never reaches quorum is cancelled on stop_poll.
func TestStopPollWithoutQuorumCancels(t *testing.T) {
	e := newEvent(5, 3)
	m := flow.NewMachine()

	require.NoError(t, m.Fire(flow.TriggerStartPoll, e, flow.Options{}))
	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1"}))
	require.NoError(t, m.Fire(flow.TriggerStopPoll, e, flow.Options{}))

	assert.Equal(t, event.StateCancelled, e.State)
}

func TestConfirmRejectsDuplicate(t *testing.T) {
	e := newEvent(5, 1)
	m := flow.NewMachine()
	require.NoError(t, m.Fire(flow.TriggerStartPoll, e, flow.Options{}))
	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1"}))

	err := m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1"})
	require.Error(t, err)
	assert.True(t, teaveerr.IsGuardFailure(err))
}

func TestConfirmFromCreatedRequiresForce(t *testing.T) {
	e := newEvent(5, 1)
	m := flow.NewMachine()

	err := m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1"})
	require.Error(t, err)
	assert.True(t, teaveerr.IsGuardFailure(err))

	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1", Force: true}))
	assert.Equal(t, []string{"u1"}, e.ParticipantIDs)
}

// force only bypasses the created-state restriction on confirm; it never
// lets the same user confirm twice.
func TestConfirmForceStillRejectsDuplicate(t *testing.T) {
	e := newEvent(5, 1)
	m := flow.NewMachine()
	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1", Force: true}))

	err := m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1", Force: true})
	require.Error(t, err)
	assert.True(t, teaveerr.IsGuardFailure(err))
	assert.Equal(t, []string{"u1"}, e.ParticipantIDs)
}

// force only bypasses the reserve check on reject from planned; it never
// lets a user who never confirmed "reject".
func TestRejectForceStillRequiresConfirmedBefore(t *testing.T) {
	e := newEvent(5, 1)
	m := flow.NewMachine()

	err := m.Fire(flow.TriggerReject, e, flow.Options{UserID: "u1", Force: true})
	require.Error(t, err)
	assert.True(t, teaveerr.IsGuardFailure(err))
}

// S3: once planned, rejecting without a reserve to backfill fails unless forced.
func TestRejectFromPlannedRequiresReserve(t *testing.T) {
	e := newEvent(2, 1)
	m := flow.NewMachine()
	require.NoError(t, m.Fire(flow.TriggerStartPoll, e, flow.Options{}))
	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1"}))
	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u2"}))
	require.NoError(t, m.Fire(flow.TriggerStopPoll, e, flow.Options{}))
	require.Equal(t, event.StatePlanned, e.State)

	err := m.Fire(flow.TriggerReject, e, flow.Options{UserID: "u1"})
	require.Error(t, err)
	assert.True(t, teaveerr.IsGuardFailure(err))

	require.NoError(t, m.Fire(flow.TriggerReject, e, flow.Options{UserID: "u1", Force: true}))
	assert.Equal(t, []string{"u2"}, e.ParticipantIDs)
}

func TestRejectFromPlannedWithReserveSucceeds(t *testing.T) {
	e := newEvent(1, 1)
	m := flow.NewMachine()
	require.NoError(t, m.Fire(flow.TriggerStartPoll, e, flow.Options{}))
	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1"}))
	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u2"}))
	require.NoError(t, m.Fire(flow.TriggerStopPoll, e, flow.Options{}))
	require.True(t, e.HasReserve())

	require.NoError(t, m.Fire(flow.TriggerReject, e, flow.Options{UserID: "u1"}))
	assert.Equal(t, []string{"u2"}, e.ParticipantIDs)
}

// S4: started events track latecomers without re-confirming participation.
func TestStartThenIAmLate(t *testing.T) {
	e := newEvent(5, 1)
	m := flow.NewMachine()
	require.NoError(t, m.Fire(flow.TriggerStartPoll, e, flow.Options{}))
	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1"}))
	require.NoError(t, m.Fire(flow.TriggerStopPoll, e, flow.Options{}))
	require.NoError(t, m.Fire(flow.TriggerStart, e, flow.Options{}))
	assert.Equal(t, event.StateStarted, e.State)

	err := m.Fire(flow.TriggerIAmLate, e, flow.Options{UserID: "u2"})
	require.Error(t, err)
	assert.True(t, teaveerr.IsGuardFailure(err))

	require.NoError(t, m.Fire(flow.TriggerIAmLate, e, flow.Options{UserID: "u1"}))
	assert.Equal(t, []string{"u1"}, e.Latees)

	// Reporting late twice does not duplicate the entry.
	require.NoError(t, m.Fire(flow.TriggerIAmLate, e, flow.Options{UserID: "u1"}))
	assert.Equal(t, []string{"u1"}, e.Latees)
}

// S5: ending a recurring event and recreating it rolls the series
// forward and clears participation for the new instance.
func TestEndThenRecreateAdvancesRecurringSeries(t *testing.T) {
	anchor := time.Date(2024, 7, 29, 21, 0, 0, 0, time.UTC) // Monday
	e := &event.Event{
		ID:                "series-1",
		OriginalStartTime: anchor,
		Start:             time.Date(2024, 7, 31, 21, 0, 0, 0, time.UTC), // Wednesday
		End:               time.Date(2024, 7, 31, 22, 0, 0, 0, time.UTC),
		RRule:             []string{"FREQ=WEEKLY;BYDAY=MO,WE,FR"},
		Config:            event.Config{Max: 5, Min: 1},
		State:             event.StateCreated,
	}
	m := flow.NewMachine()

	require.NoError(t, m.Fire(flow.TriggerStartPoll, e, flow.Options{}))
	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1"}))
	require.NoError(t, m.Fire(flow.TriggerStopPoll, e, flow.Options{}))
	require.NoError(t, m.Fire(flow.TriggerStart, e, flow.Options{}))
	require.NoError(t, m.Fire(flow.TriggerEnd, e, flow.Options{}))
	assert.Equal(t, event.StateEnded, e.State)

	require.NoError(t, m.Fire(flow.TriggerRecreate, e, flow.Options{}))
	assert.Equal(t, event.StateCreated, e.State)
	assert.Empty(t, e.ParticipantIDs)
	assert.Empty(t, e.Latees)
	assert.Equal(t, 0, e.EffectiveMax)
	assert.Equal(t, time.Date(2024, 8, 2, 21, 0, 0, 0, time.UTC), e.Start) // next Friday
}

func TestRecreateRejectsNonRecurring(t *testing.T) {
	e := newEvent(5, 1)
	e.State = event.StateEnded
	m := flow.NewMachine()

	err := m.Fire(flow.TriggerRecreate, e, flow.Options{})
	require.Error(t, err)
	assert.True(t, teaveerr.IsGuardFailure(err))
}

// S6: cancel and finalize terminate a non-recurring event for good.
func TestCancelThenFinalize(t *testing.T) {
	e := newEvent(5, 1)
	m := flow.NewMachine()
	require.NoError(t, m.Fire(flow.TriggerCancel, e, flow.Options{}))
	assert.Equal(t, event.StateCancelled, e.State)

	require.NoError(t, m.Fire(flow.TriggerFinalize, e, flow.Options{}))
	assert.Equal(t, event.StateFinalized, e.State)

	err := m.Fire(flow.TriggerInit, e, flow.Options{})
	require.Error(t, err)
	var finalErr *teaveerr.TeaventIsInFinalState
	assert.ErrorAs(t, err, &finalErr)
}

func TestInitOnNonRecurringDoesNotMutateTimings(t *testing.T) {
	e := newEvent(5, 1)
	originalStart := e.Start
	m := flow.NewMachine()

	require.NoError(t, m.Fire(flow.TriggerInit, e, flow.Options{}))
	assert.Equal(t, event.StateCreated, e.State)
	assert.True(t, e.Start.Equal(originalStart))
}

func TestInitOnRecurringAdvancesTimings(t *testing.T) {
	anchor := time.Date(2024, 7, 29, 21, 0, 0, 0, time.UTC)
	e := &event.Event{
		ID:                "series-2",
		OriginalStartTime: anchor,
		Start:             anchor,
		End:               anchor.Add(time.Hour),
		RRule:             []string{"FREQ=WEEKLY;BYDAY=MO,WE,FR"},
		Config:            event.Config{Max: 5, Min: 1},
		State:             event.StateCreated,
	}
	m := flow.NewMachine()

	// now is Tuesday: the seated Monday occurrence is stale, so init
	// catches it up to the next occurrence (Wednesday).
	now := time.Date(2024, 7, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.Fire(flow.TriggerInit, e, flow.Options{Now: now}))
	assert.Equal(t, time.Date(2024, 7, 31, 21, 0, 0, 0, time.UTC), e.Start) // Wednesday
}

func TestInitOnRecurringLeavesFutureOccurrenceUntouched(t *testing.T) {
	anchor := time.Date(2024, 7, 29, 21, 0, 0, 0, time.UTC)
	e := &event.Event{
		ID:                "series-3",
		OriginalStartTime: anchor,
		Start:             time.Date(2024, 7, 31, 21, 0, 0, 0, time.UTC), // already rolled to Wednesday
		End:               time.Date(2024, 7, 31, 22, 0, 0, 0, time.UTC),
		RRule:             []string{"FREQ=WEEKLY;BYDAY=MO,WE,FR"},
		Config:            event.Config{Max: 5, Min: 1},
		State:             event.StateCreated,
	}
	m := flow.NewMachine()

	// A restart before Wednesday's occurrence begins must not skip it.
	now := time.Date(2024, 7, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.Fire(flow.TriggerInit, e, flow.Options{Now: now}))
	assert.Equal(t, time.Date(2024, 7, 31, 21, 0, 0, 0, time.UTC), e.Start)
}

func TestInitOnRecurringCatchesUpMultipleMissedOccurrences(t *testing.T) {
	anchor := time.Date(2024, 7, 29, 21, 0, 0, 0, time.UTC)
	e := &event.Event{
		ID:                "series-4",
		OriginalStartTime: anchor,
		Start:             anchor, // Monday
		End:               anchor.Add(time.Hour),
		RRule:             []string{"FREQ=WEEKLY;BYDAY=MO,WE,FR"},
		Config:            event.Config{Max: 5, Min: 1},
		State:             event.StateCreated,
	}
	m := flow.NewMachine()

	// now is the following Monday at noon: two occurrences (We, Fr) have
	// already passed while the process was down, and that Monday's own
	// occurrence (21:00) hasn't started yet.
	now := time.Date(2024, 8, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.Fire(flow.TriggerInit, e, flow.Options{Now: now}))
	assert.Equal(t, time.Date(2024, 8, 5, 21, 0, 0, 0, time.UTC), e.Start) // following Monday
}

type recordingListener struct {
	transitions []string
	entered     []event.State
}

func (r *recordingListener) AfterTransition(e *event.Event, trigger flow.Trigger, from, to event.State) {
	r.transitions = append(r.transitions, string(trigger))
}

func (r *recordingListener) OnEnter(e *event.Event, state event.State) {
	r.entered = append(r.entered, state)
}

func TestListenersAreNotifiedOnEveryTransition(t *testing.T) {
	e := newEvent(5, 1)
	rec := &recordingListener{}
	m := flow.NewMachine(rec)

	require.NoError(t, m.Fire(flow.TriggerStartPoll, e, flow.Options{}))
	require.NoError(t, m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1"}))

	assert.Equal(t, []string{"start_poll", "confirm"}, rec.transitions)
	assert.Equal(t, []event.State{event.StatePollOpen}, rec.entered) // confirm is a self-transition, no OnEnter
}
