// Package event defines the Teavent record: identity and mutable
// lifecycle attributes, derived participant/timing values, and the
// calendar-description config block.
package event

import (
	"slices"
	"time"
)

// Event is a single occurrence of a recurring group activity together
// with its participation state. Identity attributes are set once, at
// ingestion; lifecycle attributes are mutated by the flow package as the
// event progresses through its states.
type Event struct {
	// Identity, immutable after ingestion.
	ID                string    `json:"id"`
	CalID             string    `json:"cal_id"`
	Summary           string    `json:"summary"`
	Description       string    `json:"description"`
	Location          string    `json:"location"`
	CommunicationIDs  []string  `json:"communication_ids"`
	RRule             []string  `json:"rrule,omitempty"`
	RecurringEventID  string    `json:"recurring_event_id,omitempty"`
	OriginalStartTime time.Time `json:"original_start_time"`
	Config            Config    `json:"config"`

	// Lifecycle, mutated by flow transitions.
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	ParticipantIDs []string  `json:"participant_ids"`
	Latees         []string  `json:"latees"`
	State          State     `json:"state"`
	EffectiveMax   int       `json:"effective_max"`
}

// NumParticipants returns len(ParticipantIDs).
func (e *Event) NumParticipants() int {
	return len(e.ParticipantIDs)
}

// Ready reports whether enough participants have confirmed to hold the
// event, per Config.Min.
func (e *Event) Ready() bool {
	return e.NumParticipants() >= e.Config.Min
}

// IsRecurring reports whether the event carries an RRULE.
func (e *Event) IsRecurring() bool {
	return len(e.RRule) > 0
}

// ConfirmedBy reports whether userID is a current participant.
func (e *Event) ConfirmedBy(userID string) bool {
	return slices.Contains(e.ParticipantIDs, userID)
}

// EffectiveParticipantIDs returns the first Config.Max participants: the
// ones seated, as opposed to reserve.
func (e *Event) EffectiveParticipantIDs() []string {
	if len(e.ParticipantIDs) <= e.Config.Max {
		return e.ParticipantIDs
	}
	return e.ParticipantIDs[:e.Config.Max]
}

// ReserveParticipantIDs returns the participants beyond Config.Max,
// queued but not confirmed active.
func (e *Event) ReserveParticipantIDs() []string {
	if len(e.ParticipantIDs) <= e.Config.Max {
		return nil
	}
	return e.ParticipantIDs[e.Config.Max:]
}

// HasReserve reports whether any participant is currently in reserve.
func (e *Event) HasReserve() bool {
	return len(e.ReserveParticipantIDs()) > 0
}

// TZ returns the event's timezone, taken from Start.
func (e *Event) TZ() *time.Location {
	return e.Start.Location()
}

// Duration returns End - Start.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// StartPollAt returns the instant the registration poll should open:
// Config.StartPollAt if set, otherwise Start - deltas.Start, falling
// back further to DefaultStartPollDelta if deltas.Start is zero.
func (e *Event) StartPollAt(deltas PollDeltas) time.Time {
	if e.Config.StartPollAt != nil {
		return e.adjust(*e.Config.StartPollAt)
	}
	delta := deltas.Start
	if delta == 0 {
		delta = DefaultStartPollDelta
	}
	return e.Start.Add(-delta)
}

// StopPollAt returns the instant the registration poll should close:
// Config.StopPollAt if set, otherwise Start - deltas.Stop, falling back
// further to DefaultStopPollDelta if deltas.Stop is zero.
func (e *Event) StopPollAt(deltas PollDeltas) time.Time {
	if e.Config.StopPollAt != nil {
		return e.adjust(*e.Config.StopPollAt)
	}
	delta := deltas.Stop
	if delta == 0 {
		delta = DefaultStopPollDelta
	}
	return e.Start.Add(-delta)
}

// adjust resolves a PollAnchor to an absolute instant, composing a
// wall-clock time-of-day with the event's own date in the event's
// timezone.
func (e *Event) adjust(anchor PollAnchor) time.Time {
	if !anchor.WallClock {
		return anchor.Absolute
	}
	return time.Date(
		e.Start.Year(), e.Start.Month(), e.Start.Day(),
		anchor.Hour, anchor.Minute, anchor.Second, 0,
		e.Start.Location(),
	)
}

// ShiftTo replaces the event's date while preserving its time-of-day and
// duration.
func (e *Event) ShiftTo(newDate time.Time) {
	duration := e.Duration()
	loc := e.Start.Location()
	e.Start = time.Date(
		newDate.Year(), newDate.Month(), newDate.Day(),
		e.Start.Hour(), e.Start.Minute(), e.Start.Second(), e.Start.Nanosecond(),
		loc,
	)
	e.End = e.Start.Add(duration)
}

// Clone returns an independent deep copy of the event, used to publish
// an outbound snapshot that is insulated from subsequent mutation.
func (e *Event) Clone() *Event {
	clone := *e
	clone.CommunicationIDs = slices.Clone(e.CommunicationIDs)
	clone.RRule = slices.Clone(e.RRule)
	clone.ParticipantIDs = slices.Clone(e.ParticipantIDs)
	clone.Latees = slices.Clone(e.Latees)
	return &clone
}
