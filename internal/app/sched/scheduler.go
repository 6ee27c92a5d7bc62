// Package sched drives course rounds on a fixed interval, independent of
// message arrival.
package sched

import (
	"context"
	"time"

	"github.com/dkeye/yogasync/internal/app"
	"github.com/dkeye/yogasync/internal/app/orch"
	"github.com/dkeye/yogasync/internal/core"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoundPayload struct {
	RoomID      domain.RoomID `json:"roomId"`
	Round       int           `json:"round"`
	TotalRounds int           `json:"totalRounds"`
}

type CourseCompletePayload struct {
	RoomID      domain.RoomID   `json:"roomId"`
	TotalRounds int             `json:"totalRounds"`
	Users       []domain.UserID `json:"users"`
}

type Scheduler struct {
	orch.Effects
	Rooms    *app.RoomManager
	Interval time.Duration
	// Monitor, when set with a positive IdleAfter, is swept on every tick.
	Monitor   *app.Monitor
	IdleAfter time.Duration
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Info().Str("module", "sched").Dur("interval", s.Interval).Msg("round scheduler started")
	for {
		select {
		case <-ticker.C:
			s.Tick(s.clockNow())
		case <-ctx.Done():
			log.Info().Str("module", "sched").Msg("round scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) clockNow() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

// Tick advances every started room whose round has expired, then sweeps idle
// connections. Each room is stepped under its own lock, so rooms never wait
// on each other.
func (s *Scheduler) Tick(now time.Time) {
	for _, room := range s.Rooms.Snapshot() {
		s.step(room, now)
	}
	if s.Monitor != nil && s.IdleAfter > 0 {
		if n := s.Monitor.Sweep(s.IdleAfter, now); n > 0 {
			log.Info().Str("module", "sched").Int("connections", n).Msg("idle connections asked to restart ice")
		}
	}
}

func (s *Scheduler) step(room *core.Room, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "sched").Str("room", string(room.ID())).Interface("panic", r).Msg("room step panicked")
		}
	}()

	out := room.Tick(now)
	if !out.Expired {
		return
	}
	id := room.ID()
	total := out.TotalRounds

	_ = s.Publish(id, domain.EventRoundEnd, "", RoundPayload{RoomID: id, Round: out.Ended, TotalRounds: total})
	if !out.Completed {
		_ = s.Publish(id, domain.EventRoundStart, "", RoundPayload{RoomID: id, Round: out.Started, TotalRounds: total})
		log.Debug().Str("module", "sched").Str("room", string(id)).Int("round", out.Started).Msg("round advanced")
		return
	}

	_ = s.Publish(id, domain.EventCourseComplete, "", CourseCompletePayload{RoomID: id, TotalRounds: out.Ended, Users: out.Users})
	s.SyncState(id, domain.RoomStateOpen)
	s.Milestone(core.MilestoneCourseCompleted, id, out.Users, out.Ended)
	log.Info().Str("module", "sched").Str("room", string(id)).Int("rounds", out.Ended).Msg("course complete")
}
