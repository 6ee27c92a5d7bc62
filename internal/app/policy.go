package app

import "github.com/dkeye/yogasync/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, conn domain.ConnID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room domain.RoomID, conn domain.ConnID) BackpressureAction {
	return KickMember
}

// DropPolicy only loses the frame. Useful when a client is known to catch up.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(room domain.RoomID, conn domain.ConnID) BackpressureAction {
	return DropFrame
}
