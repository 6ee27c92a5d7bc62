package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/yogasync/internal/core"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

// Effects bundles the outbound collaborators shared by the coordinator, the
// relay and the scheduler. Broadcast failures are logged; durable-store and
// gamification calls go through Dispatch and never block the caller.
type Effects struct {
	Pub      core.Publisher
	Store    core.RoomStore
	Notifier core.Notifier
	Dispatch core.Dispatcher
	Clock    core.Clock
}

func (fx *Effects) now() time.Time {
	if fx.Clock == nil {
		return time.Now()
	}
	return fx.Clock.Now()
}

// Publish sends one room broadcast. from is excluded from fan-out when set.
func (fx *Effects) Publish(room domain.RoomID, kind domain.EventKind, from domain.ConnID, payload any) error {
	err := fx.Pub.Publish(core.Message{Topic: domain.Topic{Room: room, Kind: kind}, From: from, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room)).Str("kind", string(kind)).Msg("broadcast failed")
		return fmt.Errorf("broadcast %s: %w", kind, err)
	}
	return nil
}

// SyncCount writes the in-memory participant count to the durable record.
// count is read when the task runs, not when it is queued, so syncs that run
// out of order still write the live value. A room is marked closed only if
// it is still empty after the count was written.
func (fx *Effects) SyncCount(room domain.RoomID, count func() int) {
	if fx.Store == nil {
		return
	}
	fx.Dispatch.Go("store.count", func(ctx context.Context) error {
		n := count()
		if err := fx.Store.SetRoomParticipantCount(ctx, room, n); err != nil {
			return fmt.Errorf("set participant count of %s: %w", room, err)
		}
		if n == 0 && count() == 0 {
			if err := fx.Store.SetRoomState(ctx, room, domain.RoomStateClosed); err != nil {
				return fmt.Errorf("close room %s: %w", room, err)
			}
		}
		return nil
	})
}

func (fx *Effects) SyncState(room domain.RoomID, state domain.RoomState) {
	if fx.Store == nil {
		return
	}
	fx.Dispatch.Go("store.state", func(ctx context.Context) error {
		if err := fx.Store.SetRoomState(ctx, room, state); err != nil {
			return fmt.Errorf("set state %s of %s: %w", state, room, err)
		}
		return nil
	})
}

// Milestone fires the gamification hook once per user.
func (fx *Effects) Milestone(kind core.MilestoneKind, room domain.RoomID, users []domain.UserID, rounds int) {
	if fx.Notifier == nil {
		return
	}
	at := fx.now()
	for _, u := range users {
		m := core.Milestone{Kind: kind, RoomID: room, UserID: u, Rounds: rounds, At: at}
		fx.Dispatch.Go("notify."+string(kind), func(ctx context.Context) error {
			return fx.Notifier.Notify(ctx, m)
		})
	}
}

// AnnounceStart broadcasts allReady then courseStarted and mirrors the start.
func (fx *Effects) AnnounceStart(room *core.Room) {
	view := room.Snapshot()
	_ = fx.Publish(view.ID, domain.EventAllReady, "", AllReadyPayload{RoomID: view.ID, ReadyCount: view.ReadyCount})
	_ = fx.Publish(view.ID, domain.EventCourseStarted, "", CourseStartedPayload{
		RoomID:        view.ID,
		Round:         view.CurrentRound,
		TotalRounds:   view.TotalRounds,
		RoundDuration: room.Plan().RoundDuration.Milliseconds(),
	})
	fx.SyncState(view.ID, domain.RoomStatePlaying)
	fx.Milestone(core.MilestoneCourseStarted, view.ID, view.Users, view.TotalRounds)
	log.Info().Str("module", "orch").Str("room", string(view.ID)).Int("rounds", view.TotalRounds).Msg("course started")
}
