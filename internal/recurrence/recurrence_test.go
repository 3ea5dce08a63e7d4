package recurrence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semyonkozlov/teave-eventmanager/internal/event"
	"github.com/semyonkozlov/teave-eventmanager/internal/recurrence"
)

var msk = time.FixedZone("MSK", 4*60*60)

func weeklyMoWeFr() *event.Event {
	anchor := time.Date(2024, 7, 29, 21, 0, 0, 0, msk) // Monday
	start := time.Date(2024, 7, 31, 21, 0, 0, 0, msk)  // Wednesday
	return &event.Event{
		ID:                "series-1",
		OriginalStartTime: anchor,
		Start:             start,
		End:               start.Add(time.Hour),
		RRule:             []string{"FREQ=WEEKLY;BYDAY=MO,WE,FR"},
	}
}

func TestNextAfterReturnsNextOccurrence(t *testing.T) {
	e := weeklyMoWeFr()
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, msk) // Thursday

	next, ok, err := recurrence.NextAfter(e, nil, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 8, 2, 21, 0, 0, 0, msk), next.In(msk)) // Friday
}

func TestNextAfterStrictlyAfterNow(t *testing.T) {
	e := weeklyMoWeFr()
	now := e.Start // Wednesday, the exact occurrence instant

	next, ok, err := recurrence.NextAfter(e, nil, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 8, 2, 21, 0, 0, 0, msk), next.In(msk))
}

func TestNextAfterFoldsInExceptions(t *testing.T) {
	e := weeklyMoWeFr()
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, msk)

	// The next Friday occurrence (Aug 2) has been split out as an
	// exception instance; the series should skip straight to Monday.
	exceptions := []recurrence.Exception{
		{Start: time.Date(2024, 8, 2, 21, 0, 0, 0, msk)},
	}

	next, ok, err := recurrence.NextAfter(e, exceptions, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 8, 5, 21, 0, 0, 0, msk), next.In(msk)) // Monday
}

func TestNextAfterNonRecurring(t *testing.T) {
	e := weeklyMoWeFr()
	e.RRule = nil

	_, ok, err := recurrence.NextAfter(e, nil, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsLastRecurrenceWithCount(t *testing.T) {
	anchor := time.Date(2024, 7, 29, 21, 0, 0, 0, msk)
	e := &event.Event{
		OriginalStartTime: anchor,
		Start:             anchor,
		End:               anchor.Add(time.Hour),
		RRule:             []string{"FREQ=WEEKLY;COUNT=2"},
	}

	last, err := recurrence.IsLastRecurrence(e, nil, anchor)
	require.NoError(t, err)
	assert.False(t, last) // one more occurrence (week 2) remains

	secondOccurrence := anchor.AddDate(0, 0, 7)
	last, err = recurrence.IsLastRecurrence(e, nil, secondOccurrence)
	require.NoError(t, err)
	assert.True(t, last)
}

func TestShiftToPreservesDuration(t *testing.T) {
	e := weeklyMoWeFr()
	duration := e.Duration()
	next, _, err := recurrence.NextAfter(e, nil, e.Start)
	require.NoError(t, err)

	recurrence.ShiftTo(e, next)

	assert.Equal(t, duration, e.Duration())
	assert.True(t, e.Start.Equal(next))
}
