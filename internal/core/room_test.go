package core_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/yogasync/internal/core"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newRoom(rounds int) *core.Room {
	return core.NewRoom("R1", domain.CoursePlan{TotalRounds: rounds, RoundDuration: 30 * time.Second})
}

func TestRoom_JoinIsNotDuplicated(t *testing.T) {
	t.Parallel()
	room := newRoom(3)

	out, err := room.Join("c1", "U1")
	require.NoError(t, err)
	assert.Equal(t, 1, out.ParticipantCount)

	out, err = room.Join("c1", "U1")
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)
	assert.Equal(t, 1, out.ParticipantCount)
	assert.Equal(t, 1, room.ParticipantCount())
}

func TestRoom_AddParticipantIsIdempotent(t *testing.T) {
	t.Parallel()
	room := newRoom(3)

	require.NoError(t, room.AddParticipant("c1", "U1"))
	require.NoError(t, room.AddParticipant("c1", "U1"))
	assert.Equal(t, 1, room.ParticipantCount())
	assert.True(t, room.HasParticipant("c1"))
	assert.False(t, room.HasParticipant("c2"))
}

func TestRoom_ParticipantCountTracksJoinLeave(t *testing.T) {
	t.Parallel()
	room := newRoom(3)
	joined := map[domain.ConnID]bool{}

	steps := []struct {
		join bool
		conn domain.ConnID
	}{
		{true, "c1"}, {true, "c2"}, {false, "c1"}, {true, "c3"}, {false, "c9"}, {false, "c2"}, {true, "c1"}, {false, "c3"},
	}
	for _, s := range steps {
		if s.join {
			_, err := room.Join(s.conn, domain.UserID("U-"+string(s.conn)))
			require.NoError(t, err)
			joined[s.conn] = true
		} else {
			_, ok := room.Leave(s.conn, t0)
			assert.Equal(t, joined[s.conn], ok)
			delete(joined, s.conn)
		}
		assert.Equal(t, len(joined), room.ParticipantCount())
	}
}

func TestRoom_BarrierTwoUsers(t *testing.T) {
	t.Parallel()
	room := newRoom(3)
	_, _ = room.Join("cA", "A")
	_, _ = room.Join("cB", "B")

	out, err := room.SetReady("A", true, t0)
	require.NoError(t, err)
	assert.False(t, out.CourseStarted)
	assert.Equal(t, 1, out.ReadyCount)
	assert.Equal(t, 2, out.UserCount)
	assert.False(t, room.IsBarrierSatisfied())

	out, err = room.SetReady("B", true, t0)
	require.NoError(t, err)
	assert.True(t, out.CourseStarted)
	assert.True(t, room.IsBarrierSatisfied())
	assert.True(t, room.Started())
	assert.Equal(t, 1, room.CurrentRound())
}

func TestRoom_LeaveDropsReadyAndReevaluates(t *testing.T) {
	t.Parallel()
	room := newRoom(3)
	_, _ = room.Join("cA", "A")
	_, _ = room.Join("cB", "B")
	_, _ = room.Join("cC", "C")

	_, err := room.SetReady("A", true, t0)
	require.NoError(t, err)
	_, err = room.SetReady("B", true, t0)
	require.NoError(t, err)
	assert.False(t, room.Started())

	// A leaves: its ready mark must go, C still blocks the barrier.
	out, ok := room.Leave("cA", t0)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("A"), out.UserID)
	assert.False(t, room.IsReady("A"))
	assert.False(t, out.CourseStarted)
	assert.Equal(t, 1, out.ReadyCount)

	// C leaves without being ready: only ready B remains, so the barrier holds.
	out, ok = room.Leave("cC", t0)
	require.True(t, ok)
	assert.True(t, out.CourseStarted)
	assert.True(t, room.IsBarrierSatisfied())
	assert.True(t, room.Started())
}

func TestRoom_ReadyToggleIsLevelTriggered(t *testing.T) {
	t.Parallel()
	room := newRoom(3)
	_, _ = room.Join("cA", "A")
	_, _ = room.Join("cB", "B")

	for i := 0; i < 5; i++ {
		_, err := room.SetReady("A", true, t0)
		require.NoError(t, err)
		_, err = room.SetReady("A", false, t0)
		require.NoError(t, err)
	}
	assert.False(t, room.IsReady("A"))
	assert.False(t, room.Started())

	_, _ = room.SetReady("A", true, t0)
	out, _ := room.SetReady("B", true, t0)
	assert.True(t, out.CourseStarted)
}

func TestRoom_ReadyRequiresParticipant(t *testing.T) {
	t.Parallel()
	room := newRoom(3)

	_, err := room.SetReady("ghost", true, t0)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.False(t, room.AddReady("ghost"))
	assert.False(t, room.IsBarrierSatisfied(), "empty room never satisfies the barrier")
}

func TestRoom_ReadySurvivesSecondConnection(t *testing.T) {
	t.Parallel()
	room := newRoom(3)
	_, _ = room.Join("old", "A")
	_, _ = room.Join("new", "A")
	_, _ = room.Join("cB", "B")
	_, _ = room.SetReady("A", true, t0)

	room.RemoveParticipant("old", "A")
	assert.True(t, room.IsReady("A"), "A is still present through the new connection")

	room.RemoveParticipant("new", "A")
	assert.False(t, room.IsReady("A"))
}

func TestRoom_StartCourseRequiresBarrier(t *testing.T) {
	t.Parallel()
	room := newRoom(3)
	_, _ = room.Join("c1", "U1")

	assert.ErrorIs(t, room.StartCourse(2, time.Second, t0), domain.ErrNotReady)
	assert.True(t, room.AddReady("U1"))
	require.NoError(t, room.StartCourse(2, time.Second, t0))
	assert.True(t, room.Started())
	assert.True(t, room.HasMoreRounds())
}

func TestRoom_RoundsAreMonotonicAndBounded(t *testing.T) {
	t.Parallel()
	room := newRoom(3)
	_, _ = room.Join("c1", "U1")
	_, _ = room.SetReady("U1", true, t0)

	var seq []string
	now := t0
	for i := 0; i < 4; i++ {
		now = now.Add(30 * time.Second)
		out := room.Tick(now)
		switch {
		case !out.Expired:
			seq = append(seq, "noop")
		case out.Completed:
			seq = append(seq, fmt.Sprintf("end%d", out.Ended), "complete")
		default:
			seq = append(seq, fmt.Sprintf("end%d", out.Ended), fmt.Sprintf("start%d", out.Started))
		}
	}

	assert.Equal(t, []string{"end1", "start2", "end2", "start3", "end3", "complete", "noop"}, seq)
	assert.False(t, room.Started())
	assert.False(t, room.IsReady("U1"), "a finished course clears the ready-set")
}

func TestRoom_RoundNotExpiredEarly(t *testing.T) {
	t.Parallel()
	room := newRoom(2)
	_, _ = room.Join("c1", "U1")
	_, _ = room.SetReady("U1", true, t0)

	assert.False(t, room.IsRoundExpired(t0.Add(29*time.Second)))
	assert.Equal(t, core.TickOutcome{}, room.Tick(t0.Add(29*time.Second)))
	assert.True(t, room.IsRoundExpired(t0.Add(30*time.Second)))
}

func TestRoom_AdvanceRoundOnFinalRound(t *testing.T) {
	t.Parallel()
	room := newRoom(1)
	assert.False(t, room.AdvanceRound(t0), "not started")

	_, _ = room.Join("c1", "U1")
	_, _ = room.SetReady("U1", true, t0)
	assert.False(t, room.HasMoreRounds())
	assert.False(t, room.AdvanceRound(t0))
	assert.Equal(t, 1, room.CurrentRound())
}

func TestRoom_DisposedRefusesMembers(t *testing.T) {
	t.Parallel()
	room := newRoom(1)
	_, _ = room.Join("c1", "U1")
	assert.False(t, room.DisposeIfEmpty())

	_, _ = room.Leave("c1", t0)
	assert.True(t, room.DisposeIfEmpty())

	_, err := room.Join("c2", "U2")
	assert.ErrorIs(t, err, domain.ErrRoomDisposed)
	assert.ErrorIs(t, room.AddParticipant("c2", "U2"), domain.ErrRoomDisposed)
}

func TestRoom_ConcurrentReadyAndLeave(t *testing.T) {
	t.Parallel()
	const users = 50
	room := newRoom(3)
	for i := 0; i < users; i++ {
		_, err := room.Join(domain.ConnID(fmt.Sprintf("c%d", i)), domain.UserID(fmt.Sprintf("U%d", i)))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = room.SetReady(domain.UserID(fmt.Sprintf("U%d", i)), true, t0)
		}(i)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				room.Leave(domain.ConnID(fmt.Sprintf("c%d", i)), t0)
			}
		}(i)
	}
	wg.Wait()

	view := room.Snapshot()
	assert.Equal(t, users/2, view.ParticipantCount)
	assert.LessOrEqual(t, view.ReadyCount, len(view.Users), "ready-set stays a subset of participants")
	for i := 0; i < users; i += 2 {
		assert.False(t, room.IsReady(domain.UserID(fmt.Sprintf("U%d", i))))
	}
}
