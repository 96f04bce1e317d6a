package domain

// EventKind labels a change event on the session feed.
type EventKind string

const (
	EventSessionUpdated    EventKind = "sessionUpdated"
	EventParticipantJoined EventKind = "participantJoined"
	EventParticipantLeft   EventKind = "participantLeft"
	EventResponseRecorded  EventKind = "responseRecorded"
	// EventRoster carries the full participant list. Emitted by the polling
	// reconciler so subscribers converge even if row events were lost.
	EventRoster EventKind = "roster"
)

// Event is a single change notification for one session. Exactly one of the
// payload fields is set, depending on Kind.
type Event struct {
	Kind          EventKind     `json:"kind"`
	Session       *GameSession  `json:"session,omitempty"`
	Participant   *Participant  `json:"participant,omitempty"`
	ParticipantID string        `json:"participantId,omitempty"`
	Response      *Response     `json:"response,omitempty"`
	Roster        []Participant `json:"roster,omitempty"`
}
