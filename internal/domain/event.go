package domain

import "fmt"

// EventKind names both an outbound message type and the room topic it is published on.
type EventKind string

const (
	EventMembership     EventKind = "membership"
	EventUserLeft       EventKind = "userLeft"
	EventReady          EventKind = "ready"
	EventAllReady       EventKind = "allReady"
	EventCourseStarted  EventKind = "courseStarted"
	EventSignal         EventKind = "signal"
	EventIceCandidate   EventKind = "iceCandidate"
	EventHeartbeat      EventKind = "heartbeat"
	EventRoundStart     EventKind = "roundStart"
	EventRoundEnd       EventKind = "roundEnd"
	EventCourseComplete EventKind = "courseComplete"

	// sent to a single connection only
	EventError      EventKind = "error"
	EventIceRestart EventKind = "iceRestart"
	EventPong       EventKind = "pong"
	EventWhoAmI     EventKind = "whoami"
	EventJoined     EventKind = "joined"
	EventLeft       EventKind = "left"
	// the connection was replaced by a newer one of the same user
	EventDuplicateConnection EventKind = "duplicateConnection"
)

// Topic is a room-scoped broadcast address, one per event kind.
type Topic struct {
	Room RoomID
	Kind EventKind
}

func (t Topic) String() string {
	return fmt.Sprintf("/topic/room/%s/%s", t.Room, t.Kind)
}
