package orch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/yogasync/internal/app"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Relay actions.
const (
	ActionReady        = "ready"
	ActionSignal       = "signal"
	ActionIceCandidate = "iceCandidate"
	ActionHeartbeat    = "heartbeat"
	ActionPing         = "ping"
	ActionWhoAmI       = "whoami"
	ActionIceState     = "iceState"
)

// Envelope is one inbound action. RoomID is optional; when present it must
// match the session's room.
type Envelope struct {
	ConnID  domain.ConnID
	Action  string
	Payload json.RawMessage
	RoomID  domain.RoomID
}

// Relay translates inbound actions into room broadcasts. It keeps no state
// of its own.
type Relay struct {
	Effects
	Sessions *app.Registry
	Rooms    *app.RoomManager
	Monitor  *app.Monitor
}

func (r *Relay) Handle(ctx context.Context, env Envelope) error {
	sess, ok := r.Sessions.Get(env.ConnID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.Monitor.Touch(env.ConnID)

	switch env.Action {
	case ActionPing:
		return r.Pub.SendTo(env.ConnID, domain.EventPong, PongPayload{Timestamp: r.now().UnixMilli()})
	case ActionWhoAmI:
		return r.Pub.SendTo(env.ConnID, domain.EventWhoAmI, WhoAmIPayload{Identity: sess.Identity, ConnID: sess.ConnID, RoomID: sess.RoomID})
	case ActionIceState:
		return r.iceState(env)
	case ActionReady, ActionSignal, ActionIceCandidate, ActionHeartbeat:
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, env.Action)
	}

	if !sess.Joined() {
		return domain.ErrNoRoomContext
	}
	if env.RoomID != "" && env.RoomID != sess.RoomID {
		return fmt.Errorf("%s targets %s, session is in %s: %w", env.Action, env.RoomID, sess.RoomID, domain.ErrRoomMismatch)
	}

	switch env.Action {
	case ActionReady:
		return r.ready(sess, env.Payload)
	case ActionHeartbeat:
		r.Monitor.Update(sess.ConnID, sess.RoomID, sess.Identity.UserID)
		return r.forward(sess, domain.EventHeartbeat, env.Payload)
	case ActionSignal:
		return r.forward(sess, domain.EventSignal, env.Payload)
	default:
		return r.forward(sess, domain.EventIceCandidate, env.Payload)
	}
}

func (r *Relay) ready(sess domain.Session, raw json.RawMessage) error {
	var req readyRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrBadPayload, err)
		}
	}
	isReady := req.IsReady == nil || *req.IsReady

	room, ok := r.Rooms.Get(sess.RoomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	out, err := room.SetReady(sess.Identity.UserID, isReady, r.now())
	if err != nil {
		return fmt.Errorf("ready in %s: %w", sess.RoomID, err)
	}
	log.Info().Str("module", "orch.relay").Str("sid", string(sess.ConnID)).Str("room", string(sess.RoomID)).
		Bool("ready", isReady).Int("ready_count", out.ReadyCount).Int("users", out.UserCount).Msg("readiness changed")

	if out.CourseStarted {
		r.AnnounceStart(room)
		return nil
	}
	return r.Publish(sess.RoomID, domain.EventReady, "", ReadyPayload{
		Identity:   sess.Identity,
		RoomID:     sess.RoomID,
		IsReady:    isReady,
		ReadyCount: out.ReadyCount,
		UserCount:  out.UserCount,
	})
}

// forward rebroadcasts an opaque payload to everyone else in the room.
func (r *Relay) forward(sess domain.Session, kind domain.EventKind, raw json.RawMessage) error {
	return r.Publish(sess.RoomID, kind, sess.ConnID, RelayPayload{
		Identity: sess.Identity,
		RoomID:   sess.RoomID,
		Payload:  raw,
	})
}

// iceState handles a client-reported ICE connection state. A failed
// connection is asked to renegotiate; other states only refresh liveness.
func (r *Relay) iceState(env Envelope) error {
	var req iceStateRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadPayload, err)
	}
	state := webrtc.NewICEConnectionState(req.State)
	if state == webrtc.ICEConnectionStateUnknown {
		return fmt.Errorf("%w: ice state %q", domain.ErrBadPayload, req.State)
	}
	if state == webrtc.ICEConnectionStateFailed {
		return r.Monitor.HandleFailure(env.ConnID, state.String())
	}
	return nil
}
