package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "TOUR_STARTED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Tour lifecycle event codes, published whenever the tour-in-progress flag
// of a user changes.
const (
	TypeTourStarted   = "TOUR_STARTED"
	TypeTourCompleted = "TOUR_COMPLETED"
	TypeTourAbandoned = "TOUR_ABANDONED"
)

// IsTourEvent reports whether code is one of the tour lifecycle codes.
func IsTourEvent(code string) bool {
	switch code {
	case TypeTourStarted, TypeTourCompleted, TypeTourAbandoned:
		return true
	}
	return false
}
