package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/yogasync/internal/app"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

type EventType int

const (
	EventConnect EventType = iota
	EventSubscribe
	EventUnsubscribe
	EventDisconnect
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventSubscribe:
		return "subscribe"
	case EventUnsubscribe:
		return "unsubscribe"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is a transport lifecycle event. Identity is only read on connect,
// RoomID only on subscribe.
type Event struct {
	Type     EventType
	ConnID   domain.ConnID
	Identity domain.Identity
	RoomID   domain.RoomID
}

// Coordinator turns lifecycle events into Session and Room transitions.
type Coordinator struct {
	Effects
	Sessions *app.Registry
	Rooms    *app.RoomManager
	Monitor  *app.Monitor
	// AutoCreate admits joins to rooms the durable store does not know.
	AutoCreate bool
}

// Handle is the single entry point for lifecycle events. Returned errors are
// rejections meant for the originating connection only.
func (c *Coordinator) Handle(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventConnect:
		c.connect(ev.ConnID, ev.Identity)
		return nil
	case EventSubscribe:
		return c.join(ctx, ev.ConnID, ev.RoomID)
	case EventUnsubscribe, EventDisconnect:
		return c.leave(ev.ConnID, ev.Type)
	default:
		return fmt.Errorf("%w: event %d", domain.ErrUnknownAction, ev.Type)
	}
}

func (c *Coordinator) connect(conn domain.ConnID, id domain.Identity) {
	c.Sessions.Put(conn, domain.Session{ConnID: conn, Identity: id})
	c.Monitor.Register(conn, id.UserID)
	log.Info().Str("module", "orch").Str("sid", string(conn)).Str("user", string(id.UserID)).Msg("connected")
}
