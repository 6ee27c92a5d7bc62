package domain

import (
	"errors"
	"time"
)

type RoomID string

// RoomState mirrors the state column of the durable room record.
type RoomState int

const (
	RoomStateClosed RoomState = iota
	RoomStateOpen
	RoomStatePlaying
)

func (s RoomState) String() string {
	switch s {
	case RoomStateClosed:
		return "closed"
	case RoomStateOpen:
		return "open"
	case RoomStatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

var ErrInvalidPlan = errors.New("course plan needs positive rounds and duration")

// CoursePlan is the shape of a shared course: how many rounds and how long each lasts.
type CoursePlan struct {
	TotalRounds   int           `json:"totalRounds"`
	RoundDuration time.Duration `json:"roundDuration"`
}

func (p CoursePlan) Validate() error {
	if p.TotalRounds <= 0 || p.RoundDuration <= 0 {
		return ErrInvalidPlan
	}
	return nil
}
