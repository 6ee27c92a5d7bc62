package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/yogasync/internal/app"
	"github.com/dkeye/yogasync/internal/core"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrUnknownConn = errors.New("unknown connection")

// outFrame is what every client receives.
type outFrame struct {
	Type    domain.EventKind `json:"type"`
	Topic   string           `json:"topic,omitempty"`
	Payload any              `json:"payload,omitempty"`
}

// Hub implements core.Publisher over live WebSocket connections. Room
// membership is read from the session registry, so a broadcast reaches
// exactly the connections whose session is in that room.
type Hub struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]core.SignalConnection

	sessions *app.Registry
	policy   app.Policy
}

func NewHub(sessions *app.Registry, policy app.Policy) *Hub {
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	return &Hub{
		conns:    make(map[domain.ConnID]core.SignalConnection),
		sessions: sessions,
		policy:   policy,
	}
}

func (h *Hub) Register(conn domain.ConnID, sc core.SignalConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = sc
}

func (h *Hub) Unregister(conn domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) Publish(msg core.Message) error {
	frame, err := encode(msg.Topic.Kind, msg.Topic.String(), msg.Payload)
	if err != nil {
		return err
	}
	for _, s := range h.sessions.MembersOfRoom(msg.Topic.Room) {
		if s.ConnID == msg.From {
			continue
		}
		h.deliver(msg.Topic.Room, s.ConnID, frame)
	}
	return nil
}

func (h *Hub) SendTo(conn domain.ConnID, kind domain.EventKind, payload any) error {
	frame, err := encode(kind, "/user/queue/"+string(kind), payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	_, ok := h.conns[conn]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send %s to %s: %w", kind, conn, ErrUnknownConn)
	}
	room := domain.RoomID("")
	if s, ok := h.sessions.Get(conn); ok {
		room = s.RoomID
	}
	h.deliver(room, conn, frame)
	return nil
}

// Evict sends one last frame to conn and closes it once the frame is out.
// The normal disconnect path then tears the session down.
func (h *Hub) Evict(conn domain.ConnID, kind domain.EventKind, payload any) error {
	frame, err := encode(kind, "/user/queue/"+string(kind), payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	sc, ok := h.conns[conn]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("evict %s: %w", conn, ErrUnknownConn)
	}
	if err := sc.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "signal.hub").Str("sid", string(conn)).Msg("evict notice skipped")
	}
	if f, ok := sc.(interface{ CloseAfterFlush() }); ok {
		f.CloseAfterFlush()
	} else {
		sc.Close()
	}
	return nil
}

func (h *Hub) deliver(room domain.RoomID, conn domain.ConnID, frame core.Frame) {
	h.mu.RLock()
	sc, ok := h.conns[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}
	err := sc.TrySend(frame)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrBackpressure) {
		log.Debug().Err(err).Str("module", "signal.hub").Str("sid", string(conn)).Msg("send skipped")
		return
	}
	switch h.policy.OnBackPressure(room, conn) {
	case app.KickMember:
		log.Warn().Str("module", "signal.hub").Str("sid", string(conn)).Str("room", string(room)).Msg("slow consumer kicked")
		sc.Close()
	case app.MarkSlow, app.DropFrame, app.NoAction:
		log.Debug().Str("module", "signal.hub").Str("sid", string(conn)).Msg("frame dropped")
	}
}

func encode(kind domain.EventKind, topic string, payload any) (core.Frame, error) {
	b, err := json.Marshal(outFrame{Type: kind, Topic: topic, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return b, nil
}
