// Package apptest holds in-memory fakes of the core collaborators for tests.
package apptest

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/yogasync/internal/core"
	"github.com/dkeye/yogasync/internal/domain"
)

// Direct is one message addressed to a single connection.
type Direct struct {
	Conn    domain.ConnID
	Kind    domain.EventKind
	Payload any
}

type Publisher struct {
	mu       sync.Mutex
	messages []core.Message
	directs  []Direct
	Err      error
}

func (p *Publisher) Publish(msg core.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.Err
}

func (p *Publisher) SendTo(conn domain.ConnID, kind domain.EventKind, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.directs = append(p.directs, Direct{Conn: conn, Kind: kind, Payload: payload})
	return p.Err
}

func (p *Publisher) Messages() []core.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Message(nil), p.messages...)
}

func (p *Publisher) Directs() []Direct {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Direct(nil), p.directs...)
}

// Kinds lists published event kinds in order.
func (p *Publisher) Kinds() []domain.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventKind, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.Topic.Kind)
	}
	return out
}

// Last returns the most recent message of kind.
func (p *Publisher) Last(kind domain.EventKind) (core.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].Topic.Kind == kind {
			return p.messages[i], true
		}
	}
	return core.Message{}, false
}

func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
	p.directs = nil
}

// Store is a map-backed durable room store. Err, when set, fails every write.
type Store struct {
	mu     sync.Mutex
	counts map[domain.RoomID]int
	states map[domain.RoomID]domain.RoomState
	Err    error
	Writes int
}

func NewStore(rooms ...domain.RoomID) *Store {
	s := &Store{
		counts: make(map[domain.RoomID]int),
		states: make(map[domain.RoomID]domain.RoomState),
	}
	for _, id := range rooms {
		s.counts[id] = 0
		s.states[id] = domain.RoomStateOpen
	}
	return s
}

func (s *Store) GetRoomParticipantCount(ctx context.Context, id domain.RoomID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.counts[id]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	return n, nil
}

func (s *Store) SetRoomParticipantCount(ctx context.Context, id domain.RoomID, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Writes++
	if s.Err != nil {
		return s.Err
	}
	s.counts[id] = n
	return nil
}

func (s *Store) SetRoomState(ctx context.Context, id domain.RoomID, state domain.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Writes++
	if s.Err != nil {
		return s.Err
	}
	s.states[id] = state
	return nil
}

func (s *Store) Count(id domain.RoomID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[id]
}

func (s *Store) State(id domain.RoomID) domain.RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[id]
}

type Notifier struct {
	mu         sync.Mutex
	milestones []core.Milestone
	Err        error
}

func (n *Notifier) Notify(ctx context.Context, m core.Milestone) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.milestones = append(n.milestones, m)
	return n.Err
}

func (n *Notifier) Milestones() []core.Milestone {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Milestone(nil), n.milestones...)
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
