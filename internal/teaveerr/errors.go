// Package teaveerr defines the error taxonomy shared across the event
// manager. Each kind is a concrete type with an Is*Error predicate
// (errors.As-based) so callers can match without string comparison and
// so logs carry full context.
package teaveerr

import (
	"errors"
	"fmt"
)

// EventDescriptionParsingError wraps a failure to parse the structured
// config block out of a calendar event's description. Fatal to the
// affected event, non-fatal to the system.
type EventDescriptionParsingError struct {
	EventID string
	Err     error
}

func (e *EventDescriptionParsingError) Error() string {
	return fmt.Sprintf("event %s: parsing description config: %v", e.EventID, e.Err)
}

func (e *EventDescriptionParsingError) Unwrap() error { return e.Err }

// IsEventDescriptionParsingError reports whether err is an
// EventDescriptionParsingError.
func IsEventDescriptionParsingError(err error) bool {
	var e *EventDescriptionParsingError
	return errors.As(err, &e)
}

// UnknownTeavent is returned when an id has no corresponding managed Flow.
type UnknownTeavent struct {
	TeaventID string
}

func (e *UnknownTeavent) Error() string {
	return fmt.Sprintf("unknown teavent id: %s", e.TeaventID)
}

// IsUnknownTeavent reports whether err is an UnknownTeavent.
func IsUnknownTeavent(err error) bool {
	var e *UnknownTeavent
	return errors.As(err, &e)
}

// TeaventIsManaged is returned when a second manage attempt is made for an
// id that already has a Flow installed.
type TeaventIsManaged struct {
	TeaventID string
}

func (e *TeaventIsManaged) Error() string {
	return fmt.Sprintf("teavent %s is already managed", e.TeaventID)
}

// IsTeaventIsManaged reports whether err is a TeaventIsManaged.
func IsTeaventIsManaged(err error) bool {
	var e *TeaventIsManaged
	return errors.As(err, &e)
}

// TeaventIsInFinalState is returned when an event arrives (or a mutation
// is attempted) already in its terminal state.
type TeaventIsInFinalState struct {
	TeaventID string
	State     string
}

func (e *TeaventIsInFinalState) Error() string {
	return fmt.Sprintf("teavent %s is in final state %q", e.TeaventID, e.State)
}

// IsTeaventIsInFinalState reports whether err is a TeaventIsInFinalState.
func IsTeaventIsInFinalState(err error) bool {
	var e *TeaventIsInFinalState
	return errors.As(err, &e)
}

// TeaventFromThePast is returned when a recurring event's next occurrence
// cannot be advanced past now (the recurrence rule set is exhausted, or
// the rule set is malformed relative to the series' own history).
type TeaventFromThePast struct {
	TeaventID string
	Start     string
}

func (e *TeaventFromThePast) Error() string {
	return fmt.Sprintf("teavent %s is from the past: %s", e.TeaventID, e.Start)
}

// IsTeaventFromThePast reports whether err is a TeaventFromThePast.
func IsTeaventFromThePast(err error) bool {
	var e *TeaventFromThePast
	return errors.As(err, &e)
}

// GuardFailure is returned when a flow transition's guard rejects the
// requested event (already confirmed, not confirmed, no reserve, not
// recurring, etc).
type GuardFailure struct {
	TeaventID string
	Event     string
	Reason    string
}

func (e *GuardFailure) Error() string {
	return fmt.Sprintf("teavent %s: guard failed for %q: %s", e.TeaventID, e.Event, e.Reason)
}

// IsGuardFailure reports whether err is a GuardFailure.
func IsGuardFailure(err error) bool {
	var e *GuardFailure
	return errors.As(err, &e)
}

// TransportError wraps a broker/store I/O failure. Logged and retried
// once by the caller's policy; never fatal to the process.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is a TransportError.
func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}
