package event

import (
	"strings"
	"time"

	"github.com/semyonkozlov/teave-eventmanager/internal/teaveerr"
)

// calIDSuffix is appended to the organizer email's local part to derive
// CalID.
const calIDSuffix = "@teave"

// CalendarItem is the external calendar-ingestion adapter's payload.
type CalendarItem struct {
	ID                string
	OrganizerEmail    string
	Summary           string
	Description       string
	Location          string
	Start             time.Time
	End               time.Time
	Recurrence        []string
	RecurringEventID  string
	OriginalStartTime time.Time
}

// ParseCalendarItem builds an Event from a calendar payload: it
// NBSP-normalizes the description, derives CalID from the organizer
// email's local part, and parses the config block out of the
// description.
func ParseCalendarItem(item CalendarItem, communicationIDs []string) (Event, error) {
	description := strings.ReplaceAll(item.Description, " ", " ")

	cfg, err := ConfigFromDescription(description)
	if err != nil {
		return Event{}, &teaveerr.EventDescriptionParsingError{EventID: item.ID, Err: err}
	}

	originalStart := item.OriginalStartTime
	if originalStart.IsZero() {
		originalStart = item.Start
	}

	return Event{
		ID:                item.ID,
		CalID:             calID(item.OrganizerEmail),
		Summary:           item.Summary,
		Description:       description,
		Location:          item.Location,
		CommunicationIDs:  communicationIDs,
		RRule:             item.Recurrence,
		RecurringEventID:  item.RecurringEventID,
		OriginalStartTime: originalStart,
		Config:            cfg,
		Start:             item.Start,
		End:               item.End,
		ParticipantIDs:    nil,
		Latees:            nil,
		State:             StateCreated,
	}, nil
}

// calID derives the calendar identity from the organizer's email local
// part, e.g. "alice@gmail.com" -> "alice@teave".
func calID(organizerEmail string) string {
	local, _, found := strings.Cut(organizerEmail, "@")
	if !found {
		local = organizerEmail
	}
	return local + calIDSuffix
}
