package core

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

// Room is the in-memory coordination state of one active group session.
// Every method takes the room's own mutex, so join, leave, ready toggles and
// round advances on the same room never interleave. Rooms never touch
// transport resources.
type Room struct {
	id   domain.RoomID
	plan domain.CoursePlan

	mu           sync.Mutex
	participants map[domain.ConnID]domain.UserID
	ready        map[domain.UserID]struct{}

	started       bool
	currentRound  int
	totalRounds   int
	roundStart    time.Time
	roundDuration time.Duration

	disposed bool
}

// NewRoom creates an empty room. plan is what StartCourse uses when the
// barrier fires on its own.
func NewRoom(id domain.RoomID, plan domain.CoursePlan) *Room {
	return &Room{
		id:           id,
		plan:         plan,
		participants: make(map[domain.ConnID]domain.UserID),
		ready:        make(map[domain.UserID]struct{}),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) Plan() domain.CoursePlan { return r.plan }

// AddParticipant is idempotent: an existing connection is overwritten.
func (r *Room) AddParticipant(conn domain.ConnID, user domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return domain.ErrRoomDisposed
	}
	r.participants[conn] = user
	return nil
}

// RemoveParticipant drops the connection and the user's ready entry.
// The ready entry survives while the same user still has another connection here.
func (r *Room) RemoveParticipant(conn domain.ConnID, user domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(conn, user)
}

func (r *Room) HasParticipant(conn domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[conn]
	return ok
}

func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// AddReady marks user ready. Users that are not participants are refused so
// the ready-set stays a subset of the participants.
func (r *Room) AddReady(user domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasUserLocked(user) {
		return false
	}
	r.ready[user] = struct{}{}
	return true
}

func (r *Room) RemoveReady(user domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ready, user)
}

func (r *Room) IsReady(user domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ready[user]
	return ok
}

func (r *Room) IsBarrierSatisfied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.barrierLocked()
}

func (r *Room) StartCourse(totalRounds int, roundDuration time.Duration, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.barrierLocked() {
		return domain.ErrNotReady
	}
	return r.startLocked(domain.CoursePlan{TotalRounds: totalRounds, RoundDuration: roundDuration}, now)
}

func (r *Room) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *Room) CurrentRound() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentRound
}

// IsRoundExpired reports whether the running round has used up its duration.
func (r *Room) IsRoundExpired(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expiredLocked(now)
}

func (r *Room) HasMoreRounds() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentRound < r.totalRounds
}

// AdvanceRound moves to the next round. It returns false and changes nothing
// when the course is not running or the final round is already playing.
func (r *Room) AdvanceRound(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.advanceLocked(now)
}

// ResetCourse stops the course and forgets every ready mark.
func (r *Room) ResetCourse() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

// Join adds a new participant. Unlike AddParticipant it refuses a connection
// that is already present.
func (r *Room) Join(conn domain.ConnID, user domain.UserID) (JoinOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return JoinOutcome{}, domain.ErrRoomDisposed
	}
	if _, ok := r.participants[conn]; ok {
		return JoinOutcome{ParticipantCount: len(r.participants)}, domain.ErrAlreadyJoined
	}
	r.participants[conn] = user
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(conn)).Str("user", string(user)).Msg("participant added")
	return JoinOutcome{ParticipantCount: len(r.participants)}, nil
}

// Leave removes conn and re-evaluates the barrier for whoever is left.
// ok is false when conn was not a participant.
func (r *Room) Leave(conn domain.ConnID, now time.Time) (out LeaveOutcome, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.participants[conn]
	if !ok {
		return LeaveOutcome{ParticipantCount: len(r.participants), Empty: len(r.participants) == 0}, false
	}
	r.removeLocked(conn, user)

	out = LeaveOutcome{
		UserID:           user,
		ParticipantCount: len(r.participants),
		Empty:            len(r.participants) == 0,
	}
	if out.Empty {
		r.resetLocked()
	} else if !r.started && r.barrierLocked() {
		if err := r.startLocked(r.plan, now); err == nil {
			out.CourseStarted = true
		}
	}
	out.ReadyCount = len(r.ready)
	out.Round = r.currentRound
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(conn)).Int("remaining", out.ParticipantCount).Msg("participant removed")
	return out, true
}

// SetReady toggles user's readiness and re-evaluates the barrier in the same
// critical section. The course starts only on the toggle that satisfies it.
func (r *Room) SetReady(user domain.UserID, ready bool, now time.Time) (ReadyOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return ReadyOutcome{}, domain.ErrRoomDisposed
	}
	if !r.hasUserLocked(user) {
		return ReadyOutcome{}, domain.ErrSessionNotFound
	}
	if ready {
		r.ready[user] = struct{}{}
	} else {
		delete(r.ready, user)
	}

	out := ReadyOutcome{}
	if !r.started && r.barrierLocked() {
		if err := r.startLocked(r.plan, now); err != nil {
			return ReadyOutcome{}, err
		}
		out.CourseStarted = true
	}
	out.ReadyCount = len(r.ready)
	out.UserCount = r.userCountLocked()
	out.Round = r.currentRound
	out.TotalRounds = r.totalRounds
	return out, nil
}

// Tick is the scheduler's step: when the running round has expired it either
// advances or completes the course.
func (r *Room) Tick(now time.Time) TickOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.expiredLocked(now) {
		return TickOutcome{}
	}
	out := TickOutcome{Expired: true, Ended: r.currentRound, TotalRounds: r.totalRounds}
	if r.advanceLocked(now) {
		out.Started = r.currentRound
		return out
	}
	out.Completed = true
	out.Users = r.usersLocked()
	r.resetLocked()
	return out
}

func (r *Room) Snapshot() RoomView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomView{
		ID:               r.id,
		ParticipantCount: len(r.participants),
		Users:            r.usersLocked(),
		ReadyCount:       len(r.ready),
		Started:          r.started,
		CurrentRound:     r.currentRound,
		TotalRounds:      r.totalRounds,
	}
}

// Users returns the distinct user ids present, sorted.
func (r *Room) Users() []domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usersLocked()
}

// DisposeIfEmpty is called by the registry, under the registry lock, right
// before the room is dropped. A disposed room refuses new members.
func (r *Room) DisposeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.participants) > 0 {
		return false
	}
	r.disposed = true
	r.resetLocked()
	return true
}

// Dispose retires the room whatever its membership.
func (r *Room) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed = true
	r.resetLocked()
}

func (r *Room) removeLocked(conn domain.ConnID, user domain.UserID) {
	delete(r.participants, conn)
	if !r.hasUserLocked(user) {
		delete(r.ready, user)
	}
}

func (r *Room) hasUserLocked(user domain.UserID) bool {
	for _, u := range r.participants {
		if u == user {
			return true
		}
	}
	return false
}

func (r *Room) userCountLocked() int {
	seen := make(map[domain.UserID]struct{}, len(r.participants))
	for _, u := range r.participants {
		seen[u] = struct{}{}
	}
	return len(seen)
}

func (r *Room) usersLocked() []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(r.participants))
	out := make([]domain.UserID, 0, len(r.participants))
	for _, u := range r.participants {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Room) barrierLocked() bool {
	return len(r.participants) > 0 && len(r.ready) == r.userCountLocked()
}

func (r *Room) startLocked(plan domain.CoursePlan, now time.Time) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	r.started = true
	r.totalRounds = plan.TotalRounds
	r.roundDuration = plan.RoundDuration
	r.currentRound = 1
	r.roundStart = now
	return nil
}

func (r *Room) expiredLocked(now time.Time) bool {
	if !r.started {
		return false
	}
	return now.Sub(r.roundStart) >= r.roundDuration
}

func (r *Room) advanceLocked(now time.Time) bool {
	if !r.started || r.currentRound >= r.totalRounds {
		return false
	}
	r.currentRound++
	r.roundStart = now
	return true
}

func (r *Room) resetLocked() {
	r.started = false
	r.currentRound = 0
	r.roundStart = time.Time{}
	clear(r.ready)
}
