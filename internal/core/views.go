package core

import "github.com/dkeye/yogasync/internal/domain"

// RoomView is a read-only copy of a room for APIs (no locks, no maps shared).
type RoomView struct {
	ID               domain.RoomID   `json:"roomId"`
	ParticipantCount int             `json:"participantCount"`
	Users            []domain.UserID `json:"users"`
	ReadyCount       int             `json:"readyCount"`
	Started          bool            `json:"started"`
	CurrentRound     int             `json:"currentRound"`
	TotalRounds      int             `json:"totalRounds"`
}

type JoinOutcome struct {
	ParticipantCount int
}

type LeaveOutcome struct {
	UserID           domain.UserID
	ParticipantCount int
	ReadyCount       int
	Empty            bool
	// CourseStarted is set when the departure left only ready users behind.
	CourseStarted bool
	Round         int
}

type ReadyOutcome struct {
	ReadyCount int
	UserCount  int
	// CourseStarted is set only on the call that flipped the barrier.
	CourseStarted bool
	Round         int
	TotalRounds   int
}

type TickOutcome struct {
	Expired     bool
	Ended       int
	Started     int
	TotalRounds int
	Completed   bool
	// Users present when the course completed.
	Users []domain.UserID
}
