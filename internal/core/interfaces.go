package core

import (
	"context"
	"time"

	"github.com/dkeye/yogasync/internal/domain"
)

// Message is one outbound broadcast. From, when set, is excluded from fan-out.
type Message struct {
	Topic   domain.Topic
	From    domain.ConnID
	Payload any
}

// Publisher is the outbound broadcast channel.
type Publisher interface {
	Publish(msg Message) error
	// SendTo addresses a single connection (errors, renegotiation, replies).
	SendTo(conn domain.ConnID, kind domain.EventKind, payload any) error
}

// RoomStore is the durable room record owned outside this service.
// GetRoomParticipantCount returns domain.ErrRoomNotFound for unknown rooms.
type RoomStore interface {
	GetRoomParticipantCount(ctx context.Context, id domain.RoomID) (int, error)
	SetRoomParticipantCount(ctx context.Context, id domain.RoomID, n int) error
	SetRoomState(ctx context.Context, id domain.RoomID, state domain.RoomState) error
}

type MilestoneKind string

const (
	MilestoneCourseStarted   MilestoneKind = "course_started"
	MilestoneCourseCompleted MilestoneKind = "course_completed"
)

// Milestone is handed to the gamification hook. Nothing reads a result back.
type Milestone struct {
	Kind   MilestoneKind `json:"kind"`
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
	Rounds int           `json:"rounds"`
	At     time.Time     `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, m Milestone) error
}

// Dispatcher runs best-effort side effects without blocking the caller.
type Dispatcher interface {
	Go(name string, fn func(ctx context.Context) error)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
