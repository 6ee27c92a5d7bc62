package app

import (
	"sync"
	"time"

	"github.com/dkeye/yogasync/internal/core"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

// ConnectionInfo is the liveness record of one connection. It is independent
// of room membership and refreshed on every inbound message.
type ConnectionInfo struct {
	ConnID       domain.ConnID `json:"connId"`
	RoomID       domain.RoomID `json:"roomId,omitempty"`
	UserID       domain.UserID `json:"userId"`
	LastActivity time.Time     `json:"lastActivity"`
}

// IceRestart is the payload of a renegotiation request.
type IceRestart struct {
	Reason     string   `json:"reason"`
	ICEServers []string `json:"iceServers,omitempty"`
}

// Monitor tracks ConnectionInfo and asks failing clients to renegotiate.
type Monitor struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]ConnectionInfo

	pub        core.Publisher
	clock      core.Clock
	iceServers []string
}

func NewMonitor(pub core.Publisher, clock core.Clock, iceServers []string) *Monitor {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Monitor{
		conns:      make(map[domain.ConnID]ConnectionInfo),
		pub:        pub,
		clock:      clock,
		iceServers: iceServers,
	}
}

// Register creates the record for a fresh connection.
func (m *Monitor) Register(conn domain.ConnID, user domain.UserID) {
	m.Update(conn, "", user)
}

// Update refreshes or creates the record.
func (m *Monitor) Update(conn domain.ConnID, room domain.RoomID, user domain.UserID) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn] = ConnectionInfo{ConnID: conn, RoomID: room, UserID: user, LastActivity: now}
}

// Touch refreshes the activity timestamp only. Unknown connections are ignored
// so a late frame cannot resurrect a record after disconnect.
func (m *Monitor) Touch(conn domain.ConnID) bool {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.conns[conn]
	if !ok {
		return false
	}
	info.LastActivity = now
	m.conns[conn] = info
	return true
}

func (m *Monitor) Remove(conn domain.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, conn)
}

func (m *Monitor) Get(conn domain.ConnID) (ConnectionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.conns[conn]
	return info, ok
}

func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Idle lists connections without activity for at least olderThan.
func (m *Monitor) Idle(olderThan time.Duration, now time.Time) []ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ConnectionInfo, 0)
	for _, info := range m.conns {
		if now.Sub(info.LastActivity) >= olderThan {
			out = append(out, info)
		}
	}
	return out
}

// Sweep asks every in-room connection that has been silent for at least
// olderThan to renegotiate, and restarts its idle clock so the request is
// repeated at most once per olderThan. It returns how many were asked.
func (m *Monitor) Sweep(olderThan time.Duration, now time.Time) int {
	asked := 0
	for _, info := range m.Idle(olderThan, now) {
		if info.RoomID == "" {
			continue
		}
		m.mu.Lock()
		cur, ok := m.conns[info.ConnID]
		if ok {
			cur.LastActivity = now
			m.conns[info.ConnID] = cur
		}
		m.mu.Unlock()
		if !ok {
			continue
		}
		if err := m.HandleFailure(info.ConnID, "idle"); err != nil {
			log.Warn().Err(err).Str("module", "app.liveness").Str("sid", string(info.ConnID)).Msg("idle restart not delivered")
			continue
		}
		asked++
	}
	return asked
}

// HandleFailure asks one connection to restart its signaling exchange.
// Room state is not touched.
func (m *Monitor) HandleFailure(conn domain.ConnID, reason string) error {
	info, ok := m.Get(conn)
	if !ok {
		return nil
	}
	log.Warn().Str("module", "app.liveness").Str("sid", string(conn)).Str("room", string(info.RoomID)).Str("reason", reason).Msg("requesting ice restart")
	return m.pub.SendTo(conn, domain.EventIceRestart, IceRestart{Reason: reason, ICEServers: m.iceServers})
}
