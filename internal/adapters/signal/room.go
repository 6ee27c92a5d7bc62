package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/yogasync/internal/app/orch"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, sid domain.ConnID, c *WsSignalConn, f inFrame) error {
	roomID := f.RoomID
	if roomID == "" && len(f.Payload) > 0 {
		var p struct {
			RoomID domain.RoomID `json:"roomId"`
		}
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrBadPayload, err)
		}
		roomID = p.RoomID
	}

	sess, ok := ctl.Coord.Sessions.Get(sid)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sess.Identity.UserID) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("user", string(sess.Identity.UserID)).Msg("join throttled")
		return domain.ErrRateLimited
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("join")
	return ctl.Coord.Handle(ctx, orch.Event{Type: orch.EventSubscribe, ConnID: sid, RoomID: roomID})
}

// handleLeave ends the session. The socket stays open until the client closes
// it, but further actions are rejected.
func (ctl *SignalWSController) handleLeave(ctx context.Context, sid domain.ConnID, c *WsSignalConn) error {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	if err := ctl.Coord.Handle(ctx, orch.Event{Type: orch.EventUnsubscribe, ConnID: sid}); err != nil {
		return err
	}
	ctl.sendJSON(c, outFrame{Type: domain.EventLeft})
	return nil
}
