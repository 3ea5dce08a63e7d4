// Package recurrence computes the next occurrence of a repeating series in
// the presence of one-off exception instances.
package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/semyonkozlov/teave-eventmanager/internal/event"
)

// Exception is the minimal view of a one-off instance needed to exclude
// its date from the series: its own start time, used to derive the
// EXDATE at the series' time-of-day.
type Exception struct {
	Start time.Time
}

// buildSet constructs an rrule.Set anchored at anchor (the series'
// OriginalStartTime, falling back to Start), one rrule.RRule per RRULE
// string, with each exception folded in as an EXDATE combining the
// exception's own date with the series' time-of-day, in the series'
// timezone.
func buildSet(rules []string, anchor time.Time, exceptions []Exception) (*rrule.Set, error) {
	set := rrule.Set{}

	for _, r := range rules {
		ropt, err := rrule.StrToROption(r)
		if err != nil {
			return nil, fmt.Errorf("parse rrule %q: %w", r, err)
		}
		ropt.Dtstart = anchor

		rule, err := rrule.NewRRule(*ropt)
		if err != nil {
			return nil, fmt.Errorf("build rrule %q: %w", r, err)
		}
		set.RRule(rule)
	}

	loc := anchor.Location()
	for _, exc := range exceptions {
		exdate := time.Date(
			exc.Start.Year(), exc.Start.Month(), exc.Start.Day(),
			anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(),
			loc,
		)
		set.ExDate(exdate)
	}

	return &set, nil
}

// anchorOf returns the instant the recurrence rule set is anchored at:
// OriginalStartTime if set, otherwise Start.
func anchorOf(e *event.Event) time.Time {
	if !e.OriginalStartTime.IsZero() {
		return e.OriginalStartTime
	}
	return e.Start
}

// NextAfter returns the first occurrence of e's series strictly after
// now, given the series' currently-known exception instances. ok is
// false if the rule set is exhausted or e is not recurring.
func NextAfter(e *event.Event, exceptions []Exception, now time.Time) (at time.Time, ok bool, err error) {
	if !e.IsRecurring() {
		return time.Time{}, false, nil
	}

	set, err := buildSet(e.RRule, anchorOf(e), exceptions)
	if err != nil {
		return time.Time{}, false, err
	}

	next := set.After(now, false)
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	return next, true, nil
}

// IsLastRecurrence reports whether NextAfter would find no further
// occurrence.
func IsLastRecurrence(e *event.Event, exceptions []Exception, now time.Time) (bool, error) {
	_, ok, err := NextAfter(e, exceptions, now)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// ShiftTo replaces e's date with next's date while preserving e's
// time-of-day and duration.
func ShiftTo(e *event.Event, next time.Time) {
	e.ShiftTo(next)
}
