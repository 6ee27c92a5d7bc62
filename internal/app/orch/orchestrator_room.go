package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/yogasync/internal/core"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

// joinAttempts bounds retries when a join races with disposal of an empty room.
const joinAttempts = 3

func (c *Coordinator) join(ctx context.Context, conn domain.ConnID, roomID domain.RoomID) error {
	if roomID == "" {
		return fmt.Errorf("%w: missing roomId", domain.ErrBadPayload)
	}
	sess, ok := c.Sessions.Get(conn)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if sess.Joined() {
		return fmt.Errorf("join %s while in %s: %w", roomID, sess.RoomID, domain.ErrAlreadyJoined)
	}
	if err := c.checkRoomExists(ctx, roomID); err != nil {
		return err
	}

	user := sess.Identity.UserID
	var (
		room *core.Room
		out  core.JoinOutcome
		err  error
	)
	for i := 0; i < joinAttempts; i++ {
		room = c.Rooms.GetOrCreate(roomID)
		out, err = room.Join(conn, user)
		if !errors.Is(err, domain.ErrRoomDisposed) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("join %s: %w", roomID, err)
	}

	if !c.Sessions.SetRoom(conn, roomID) {
		// disconnected while joining
		c.undoJoin(room, conn)
		return domain.ErrSessionNotFound
	}
	c.Monitor.Update(conn, roomID, user)

	_ = c.Publish(roomID, domain.EventMembership, "", MembershipPayload{
		Identity:         sess.Identity,
		RoomID:           roomID,
		ParticipantCount: out.ParticipantCount,
		Users:            room.Users(),
	})
	if err := c.Pub.SendTo(conn, domain.EventJoined, room.Snapshot()); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(conn)).Msg("join ack not delivered")
	}
	c.SyncCount(roomID, c.liveCount(roomID))

	log.Info().Str("module", "orch").Str("sid", string(conn)).Str("room", string(roomID)).Int("participants", out.ParticipantCount).Msg("joined room")
	return nil
}

// checkRoomExists accepts rooms that are live in memory or known to the
// durable store. Store outages are logged and fall back to AutoCreate.
func (c *Coordinator) checkRoomExists(ctx context.Context, roomID domain.RoomID) error {
	if _, ok := c.Rooms.Get(roomID); ok {
		return nil
	}
	if c.Store != nil {
		_, err := c.Store.GetRoomParticipantCount(ctx, roomID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrRoomNotFound):
		default:
			log.Error().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("room lookup failed")
		}
	}
	if c.AutoCreate {
		return nil
	}
	return fmt.Errorf("join %s: %w", roomID, domain.ErrRoomNotFound)
}

// liveCount reports the participant count of whichever room instance is
// registered under roomID at call time. A removed room counts as empty.
func (c *Coordinator) liveCount(roomID domain.RoomID) func() int {
	return func() int {
		if room, ok := c.Rooms.Get(roomID); ok {
			return room.ParticipantCount()
		}
		return 0
	}
}

func (c *Coordinator) undoJoin(room *core.Room, conn domain.ConnID) {
	out, ok := room.Leave(conn, c.now())
	if ok && out.Empty {
		c.Rooms.RemoveIfEmpty(room)
	}
}

// leave tears a connection down. Room update, broadcast, counter
// reconciliation and session removal are attempted independently: one failing
// never stops the others. An unknown connection is a no-op.
func (c *Coordinator) leave(conn domain.ConnID, reason EventType) error {
	sess, ok := c.Sessions.Get(conn)
	if !ok {
		c.Monitor.Remove(conn)
		return nil
	}

	var errs []error
	if sess.Joined() {
		var (
			out  core.LeaveOutcome
			room *core.Room
		)
		errs = append(errs, isolate("room update", func() error {
			var err error
			room, out, err = c.leaveRoom(conn, sess.RoomID)
			return err
		}))
		errs = append(errs, isolate("broadcast", func() error {
			return c.Publish(sess.RoomID, domain.EventUserLeft, "", UserLeftPayload{
				Identity:         sess.Identity,
				RoomID:           sess.RoomID,
				ParticipantCount: out.ParticipantCount,
				ReadyCount:       out.ReadyCount,
			})
		}))
		errs = append(errs, isolate("counter reconciliation", func() error {
			c.SyncCount(sess.RoomID, c.liveCount(sess.RoomID))
			return nil
		}))
		if out.CourseStarted && room != nil {
			errs = append(errs, isolate("course start", func() error {
				c.AnnounceStart(room)
				return nil
			}))
		}
	}
	errs = append(errs, isolate("session removal", func() error {
		c.Sessions.Remove(conn)
		c.Monitor.Remove(conn)
		return nil
	}))

	log.Info().Str("module", "orch").Str("sid", string(conn)).Str("room", string(sess.RoomID)).Str("reason", reason.String()).Msg("left")
	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(conn)).Msg("leave completed with failures")
	}
	// teardown failures are never the client's fault
	return nil
}

func (c *Coordinator) leaveRoom(conn domain.ConnID, roomID domain.RoomID) (*core.Room, core.LeaveOutcome, error) {
	room, ok := c.Rooms.Get(roomID)
	if !ok {
		return nil, core.LeaveOutcome{Empty: true}, fmt.Errorf("leave %s: %w", roomID, domain.ErrRoomNotFound)
	}
	out, ok := room.Leave(conn, c.now())
	if !ok {
		return room, out, fmt.Errorf("leave %s: %w", roomID, domain.ErrSessionNotFound)
	}
	if out.Empty {
		c.Rooms.RemoveIfEmpty(room)
	}
	return room, out, nil
}

// isolate runs one teardown step, turning a panic into an error.
func isolate(step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", step, r)
		}
	}()
	if err = fn(); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}
