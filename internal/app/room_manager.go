package app

import (
	"sort"
	"sync"

	"github.com/dkeye/yogasync/internal/core"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManager is the room registry. Its lock only guards the map; each room
// serializes its own state, so different rooms never contend beyond a lookup.
// Lock order is always manager -> room.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room
	plan  domain.CoursePlan
}

// NewRoomManager creates a registry whose rooms default to plan.
func NewRoomManager(plan domain.CoursePlan) *RoomManager {
	return &RoomManager{
		rooms: make(map[domain.RoomID]*core.Room),
		plan:  plan,
	}
}

// Get is getOrNone.
func (m *RoomManager) Get(id domain.RoomID) (*core.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// GetOrCreate is createIfAbsent with the registry's default plan.
func (m *RoomManager) GetOrCreate(id domain.RoomID) *core.Room {
	return m.CreateIfAbsent(id, m.plan)
}

// CreateIfAbsent returns the existing room or creates one with plan.
// An invalid plan falls back to the registry default.
func (m *RoomManager) CreateIfAbsent(id domain.RoomID, plan domain.CoursePlan) *core.Room {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[id]; ok {
		return room
	}
	if plan.Validate() != nil {
		plan = m.plan
	}
	room = core.NewRoom(id, plan)
	m.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Int("rounds", plan.TotalRounds).Msg("room created")
	return room
}

// Remove drops the room unconditionally; the dropped room refuses new members.
func (m *RoomManager) Remove(id domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[id]; ok {
		room.Dispose()
		delete(m.rooms, id)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room removed")
	}
}

// RemoveIfEmpty drops room only if it is still the registered instance for
// its id and nobody is in it at the moment of the check. Joins racing with
// the removal see ErrRoomDisposed and retry on a fresh room.
func (m *RoomManager) RemoveIfEmpty(room *core.Room) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := room.ID()
	if cur, ok := m.rooms[id]; !ok || cur != room {
		return false
	}
	if !room.DisposeIfEmpty() {
		return false
	}
	delete(m.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("empty room removed")
	return true
}

// Snapshot returns the live rooms so callers can iterate without the lock.
func (m *RoomManager) Snapshot() []*core.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}

func (m *RoomManager) List() []core.RoomView {
	rooms := m.Snapshot()
	out := make([]core.RoomView, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *RoomManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
