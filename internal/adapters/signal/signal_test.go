package signal_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/yogasync/internal/adapters/signal"
	"github.com/dkeye/yogasync/internal/app"
	"github.com/dkeye/yogasync/internal/app/apptest"
	"github.com/dkeye/yogasync/internal/app/orch"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, opts ...func(*signal.SignalWSController)) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := app.NewRegistry()
	rooms := app.NewRoomManager(domain.CoursePlan{TotalRounds: 2, RoundDuration: time.Minute})
	hub := signal.NewHub(sessions, app.SimplePolicy{})
	monitor := app.NewMonitor(hub, nil, nil)
	fx := orch.Effects{Pub: hub, Store: apptest.NewStore("R1"), Dispatch: app.InlineDispatcher{}}

	ctl := &signal.SignalWSController{
		Coord:   &orch.Coordinator{Effects: fx, Sessions: sessions, Rooms: rooms, Monitor: monitor},
		Relay:   &orch.Relay{Effects: fx, Sessions: sessions, Rooms: rooms, Monitor: monitor},
		Hub:     hub,
		Limiter: signal.NewRoomRateLimiter(2, time.Minute),
	}
	for _, opt := range opts {
		opt(ctl)
	}

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if u := c.Query("u"); u != "" {
			signal.SetIdentity(c, domain.Identity{UserID: domain.UserID(u), Nickname: "nick-" + u})
		}
		ctl.HandleSignal(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?u=" + user
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var m map[string]any
		require.NoError(t, ws.ReadJSON(&m), "waiting for %s", typ)
		if m["type"] == typ {
			return m
		}
	}
}

func TestSignalWS_JoinRelayLeave(t *testing.T) {
	srv := newServer(t)
	a := dial(t, srv, "A")
	b := dial(t, srv, "B")

	require.NoError(t, a.WriteJSON(map[string]any{"type": "join", "roomId": "R1"}))
	joined := readUntil(t, a, "joined")
	assert.Equal(t, "/user/queue/joined", joined["topic"])

	require.NoError(t, b.WriteJSON(map[string]any{"type": "joinRoom", "payload": map[string]any{"roomId": "R1"}}))
	readUntil(t, b, "joined")
	membership := readUntil(t, a, "membership")
	payload := membership["payload"].(map[string]any)
	assert.Equal(t, float64(2), payload["participantCount"])
	assert.Equal(t, "B", payload["userId"])

	require.NoError(t, a.WriteJSON(map[string]any{"type": "signal", "payload": map[string]any{"type": "offer", "sdp": "v=0"}}))
	sig := readUntil(t, b, "signal")
	sp := sig["payload"].(map[string]any)
	assert.Equal(t, "A", sp["userId"])
	assert.Equal(t, "nick-A", sp["userNickName"])
	assert.Equal(t, map[string]any{"type": "offer", "sdp": "v=0"}, sp["payload"])

	require.NoError(t, b.Close())
	left := readUntil(t, a, "userLeft")
	assert.Equal(t, "B", left["payload"].(map[string]any)["userId"])
}

func TestSignalWS_RejectionsGoToSenderOnly(t *testing.T) {
	srv := newServer(t)
	a := dial(t, srv, "A")

	require.NoError(t, a.WriteJSON(map[string]any{"type": "stretch"}))
	e := readUntil(t, a, "error")
	assert.Equal(t, "unknown_action", e["error"])
	assert.Equal(t, "stretch", e["action"])

	require.NoError(t, a.WriteJSON(map[string]any{"type": "ready"}))
	assert.Equal(t, "no_room_context", readUntil(t, a, "error")["error"])

	require.NoError(t, a.WriteJSON(map[string]any{"type": "join", "roomId": "nowhere"}))
	assert.Equal(t, "room_not_found", readUntil(t, a, "error")["error"])

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "bad_payload", readUntil(t, a, "error")["error"])

	require.NoError(t, a.WriteJSON(map[string]any{"type": "join", "roomId": "nowhere"}))
	assert.Equal(t, "room_not_found", readUntil(t, a, "error")["error"])

	require.NoError(t, a.WriteJSON(map[string]any{"type": "join", "roomId": "nowhere"}))
	assert.Equal(t, "rate_limited", readUntil(t, a, "error")["error"], "third join attempt inside the window")
}

func TestSignalWS_PingAndLeave(t *testing.T) {
	srv := newServer(t)
	a := dial(t, srv, "A")

	require.NoError(t, a.WriteJSON(map[string]any{"type": "ping"}))
	pong := readUntil(t, a, "pong")
	assert.NotNil(t, pong["payload"].(map[string]any)["ts"])

	require.NoError(t, a.WriteJSON(map[string]any{"type": "join", "roomId": "R1"}))
	readUntil(t, a, "joined")
	require.NoError(t, a.WriteJSON(map[string]any{"type": "leave"}))
	readUntil(t, a, "left")

	require.NoError(t, a.WriteJSON(map[string]any{"type": "whoami"}))
	assert.Equal(t, "session_not_found", readUntil(t, a, "error")["error"], "a left session is terminal")
}

func TestSignalWS_RequiresIdentity(t *testing.T) {
	srv := newServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestSignalWS_NewerConnectionEvictsOlder(t *testing.T) {
	srv := newServer(t, func(ctl *signal.SignalWSController) { ctl.EvictDuplicates = true })
	old := dial(t, srv, "A")
	require.NoError(t, old.WriteJSON(map[string]any{"type": "join", "roomId": "R1"}))
	readUntil(t, old, "joined")
	watcher := dial(t, srv, "B")
	require.NoError(t, watcher.WriteJSON(map[string]any{"type": "join", "roomId": "R1"}))
	readUntil(t, watcher, "joined")

	fresh := dial(t, srv, "A")

	notice := readUntil(t, old, "duplicateConnection")
	assert.NotEmpty(t, notice["payload"].(map[string]any)["message"])
	_, _, err := old.ReadMessage()
	assert.Error(t, err, "the replaced socket is closed")

	left := readUntil(t, watcher, "userLeft")
	assert.Equal(t, "A", left["payload"].(map[string]any)["userId"])

	require.NoError(t, fresh.WriteJSON(map[string]any{"type": "ping"}))
	readUntil(t, fresh, "pong")
}

func TestSignalWS_DuplicatesAllowedByDefault(t *testing.T) {
	srv := newServer(t)
	first := dial(t, srv, "A")
	second := dial(t, srv, "A")

	require.NoError(t, second.WriteJSON(map[string]any{"type": "ping"}))
	readUntil(t, second, "pong")
	require.NoError(t, first.WriteJSON(map[string]any{"type": "ping"}))
	readUntil(t, first, "pong")
}
