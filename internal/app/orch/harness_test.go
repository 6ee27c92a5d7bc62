package orch_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/yogasync/internal/app"
	"github.com/dkeye/yogasync/internal/app/apptest"
	"github.com/dkeye/yogasync/internal/app/orch"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	pub      *apptest.Publisher
	store    *apptest.Store
	notifier *apptest.Notifier
	clock    *apptest.Clock
	sessions *app.Registry
	rooms    *app.RoomManager
	monitor  *app.Monitor
	coord    *orch.Coordinator
	relay    *orch.Relay
}

func newHarness(t *testing.T, rounds int, known ...domain.RoomID) *harness {
	t.Helper()
	h := &harness{
		pub:      &apptest.Publisher{},
		store:    apptest.NewStore(known...),
		notifier: &apptest.Notifier{},
		clock:    apptest.NewClock(t0),
		sessions: app.NewRegistry(),
		rooms:    app.NewRoomManager(domain.CoursePlan{TotalRounds: rounds, RoundDuration: 30 * time.Second}),
	}
	h.monitor = app.NewMonitor(h.pub, h.clock, []string{"stun:stun.example.org:3478"})
	fx := orch.Effects{
		Pub:      h.pub,
		Store:    h.store,
		Notifier: h.notifier,
		Dispatch: app.InlineDispatcher{},
		Clock:    h.clock,
	}
	h.coord = &orch.Coordinator{Effects: fx, Sessions: h.sessions, Rooms: h.rooms, Monitor: h.monitor}
	h.relay = &orch.Relay{Effects: fx, Sessions: h.sessions, Rooms: h.rooms, Monitor: h.monitor}
	return h
}

func (h *harness) connect(t *testing.T, conn domain.ConnID, user string) {
	t.Helper()
	require.NoError(t, h.coord.Handle(context.Background(), orch.Event{
		Type:     orch.EventConnect,
		ConnID:   conn,
		Identity: domain.Identity{UserID: domain.UserID(user), Nickname: "nick-" + user, Profile: user + ".png"},
	}))
}

func (h *harness) join(conn domain.ConnID, room domain.RoomID) error {
	return h.coord.Handle(context.Background(), orch.Event{Type: orch.EventSubscribe, ConnID: conn, RoomID: room})
}

func (h *harness) disconnect(conn domain.ConnID) error {
	return h.coord.Handle(context.Background(), orch.Event{Type: orch.EventDisconnect, ConnID: conn})
}

func (h *harness) act(conn domain.ConnID, action string, payload string) error {
	env := orch.Envelope{ConnID: conn, Action: action}
	if payload != "" {
		env.Payload = json.RawMessage(payload)
	}
	return h.relay.Handle(context.Background(), env)
}

// heldDispatcher queues side effects so a test can run them in any order,
// the way a multi-worker pool may.
type heldDispatcher struct {
	mu    sync.Mutex
	names []string
	tasks []func(ctx context.Context) error
}

func (d *heldDispatcher) Go(name string, fn func(ctx context.Context) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = append(d.names, name)
	d.tasks = append(d.tasks, fn)
}

func (d *heldDispatcher) run(t *testing.T, order ...int) {
	t.Helper()
	d.mu.Lock()
	tasks := d.tasks
	d.mu.Unlock()
	for _, i := range order {
		require.NoError(t, tasks[i](context.Background()), d.names[i])
	}
}
