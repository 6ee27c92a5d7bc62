package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/dkeye/yogasync/internal/adapters/signal"
	"github.com/dkeye/yogasync/internal/app"
	"github.com/dkeye/yogasync/internal/config"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T) (*app.RoomManager, stdhttp.Handler) {
	t.Helper()
	cfg := &config.Config{
		Mode:       "test",
		Secret:     "cookie-secret",
		ICEServers: []string{"stun:stun.l.google.com:19302"},
		Auth:       config.AuthConfig{JWTSecret: testSecret},
	}
	sessions := app.NewRegistry()
	rooms := app.NewRoomManager(domain.CoursePlan{TotalRounds: 3, RoundDuration: time.Minute})
	hub := signal.NewHub(sessions, app.SimplePolicy{})
	ctl := &signal.SignalWSController{Hub: hub}

	return rooms, SetupRouter(context.Background(), cfg, Deps{Signal: ctl, Rooms: rooms, Hub: hub})
}

func TestRouter_Healthz(t *testing.T) {
	rooms, r := testRouter(t)
	rooms.GetOrCreate("R1")

	w := serve(r, "/healthz", nil)
	require.Equal(t, stdhttp.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["rooms"])
	assert.Equal(t, float64(0), body["connections"])
}

func TestRouter_APIRequiresIdentity(t *testing.T) {
	_, r := testRouter(t)
	assert.Equal(t, stdhttp.StatusUnauthorized, serve(r, "/api/rooms", nil).Code)
	assert.Equal(t, stdhttp.StatusUnauthorized, serve(r, "/api/ws/signal", nil).Code)
}

func TestRouter_RoomsAndRTCConfig(t *testing.T) {
	rooms, r := testRouter(t)
	rooms.GetOrCreate("R2")
	rooms.GetOrCreate("R1")
	auth := stdhttp.Header{"Authorization": {"Bearer " + sign(t, []byte(testSecret), jwt.SigningMethodHS256, "U1", "Asha")}}

	w := serve(r, "/api/rooms", auth)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	var list struct {
		Rooms []struct {
			ID          string `json:"roomId"`
			TotalRounds int    `json:"totalRounds"`
		} `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Rooms, 2)
	assert.Equal(t, "R1", list.Rooms[0].ID)
	assert.Equal(t, 3, list.Rooms[0].TotalRounds)

	w = serve(r, "/api/rtc/config", auth)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stun:stun.l.google.com:19302")
}
