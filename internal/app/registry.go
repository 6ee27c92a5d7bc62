package app

import (
	"sync"

	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry is the session registry: connection id -> Session.
// Plain key-value semantics; callers keep sessions and rooms consistent.
// byRoom indexes joined sessions so fan-out cost follows room size.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnID]domain.Session
	byRoom   map[domain.RoomID]map[domain.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ConnID]domain.Session),
		byRoom:   make(map[domain.RoomID]map[domain.ConnID]struct{}),
	}
}

func (r *Registry) Put(conn domain.ConnID, s domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ConnID = conn
	if old, ok := r.sessions[conn]; ok {
		r.unindexLocked(conn, old.RoomID)
	}
	r.sessions[conn] = s
	r.indexLocked(conn, s.RoomID)
	log.Info().Str("module", "app.registry").Str("sid", string(conn)).Str("user", string(s.Identity.UserID)).Msg("bound session")
}

// Get returns a copy of the session. ok is false for unknown connections,
// which is not an error: messages can arrive before or after the session exists.
func (r *Registry) Get(conn domain.ConnID) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[conn]
	return s, ok
}

// Remove deletes the session and returns what was stored.
func (r *Registry) Remove(conn domain.ConnID) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conn]
	if ok {
		delete(r.sessions, conn)
		r.unindexLocked(conn, s.RoomID)
		log.Info().Str("module", "app.registry").Str("sid", string(conn)).Msg("unbind session")
	}
	return s, ok
}

// SetRoom updates the room of an existing session. It returns false when the
// session is gone.
func (r *Registry) SetRoom(conn domain.ConnID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conn]
	if !ok {
		return false
	}
	r.unindexLocked(conn, s.RoomID)
	s.RoomID = room
	r.sessions[conn] = s
	r.indexLocked(conn, room)
	log.Info().Str("module", "app.registry").Str("sid", string(conn)).Str("room", string(room)).Msg("updated room")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ConnsOfUser lists the connections bound to user, in no particular order.
func (r *Registry) ConnsOfUser(user domain.UserID) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ConnID, 0)
	for conn, s := range r.sessions {
		if s.Identity.UserID == user {
			out = append(out, conn)
		}
	}
	return out
}

// MembersOfRoom lists the sessions currently bound to room.
func (r *Registry) MembersOfRoom(room domain.RoomID) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byRoom[room]
	out := make([]domain.Session, 0, len(conns))
	for conn := range conns {
		out = append(out, r.sessions[conn])
	}
	return out
}

func (r *Registry) indexLocked(conn domain.ConnID, room domain.RoomID) {
	if room == "" {
		return
	}
	conns, ok := r.byRoom[room]
	if !ok {
		conns = make(map[domain.ConnID]struct{})
		r.byRoom[room] = conns
	}
	conns[conn] = struct{}{}
}

func (r *Registry) unindexLocked(conn domain.ConnID, room domain.RoomID) {
	conns, ok := r.byRoom[room]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(r.byRoom, room)
	}
}
