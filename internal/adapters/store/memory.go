// Package store holds the durable room record implementations.
package store

import (
	"context"
	"sync"

	"github.com/dkeye/yogasync/internal/domain"
)

type record struct {
	count int
	state domain.RoomState
}

// MemoryStore keeps room records in process. Writes upsert, so rooms created
// on join become known afterwards.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]record
}

func NewMemoryStore(seed ...domain.RoomID) *MemoryStore {
	s := &MemoryStore{rooms: make(map[domain.RoomID]record)}
	for _, id := range seed {
		s.rooms[id] = record{state: domain.RoomStateOpen}
	}
	return s
}

func (s *MemoryStore) GetRoomParticipantCount(ctx context.Context, id domain.RoomID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[id]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	return rec.count, nil
}

func (s *MemoryStore) SetRoomParticipantCount(ctx context.Context, id domain.RoomID, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.rooms[id]
	rec.count = n
	s.rooms[id] = rec
	return nil
}

func (s *MemoryStore) SetRoomState(ctx context.Context, id domain.RoomID, state domain.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.rooms[id]
	rec.state = state
	s.rooms[id] = rec
	return nil
}

// RoomState is used by tests and the health endpoint.
func (s *MemoryStore) RoomState(id domain.RoomID) (domain.RoomState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[id]
	return rec.state, ok
}
