package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/yogasync/internal/app/orch"
	"github.com/dkeye/yogasync/internal/domain"
	"github.com/rs/zerolog/log"
)

// inFrame is the inbound action envelope.
type inFrame struct {
	Type    string          `json:"type"`
	RoomID  domain.RoomID   `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Action  string `json:"action,omitempty"`
}

func (ctl *SignalWSController) handleFrame(ctx context.Context, sid domain.ConnID, c *WsSignalConn, data []byte) {
	var f inFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.sendError(c, "", fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}

	var err error
	switch f.Type {
	case "join", "joinRoom":
		err = ctl.handleJoin(ctx, sid, c, f)
	case "leave", "leaveRoom":
		err = ctl.handleLeave(ctx, sid, c)
	default:
		err = ctl.Relay.Handle(ctx, orch.Envelope{ConnID: sid, Action: f.Type, Payload: f.Payload, RoomID: f.RoomID})
	}
	if err != nil {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("type", f.Type).Str("code", domain.ErrorCode(err)).Msg("action rejected")
		ctl.sendError(c, f.Type, err)
	}
}

// sendError reports a rejection to the originating connection only.
func (ctl *SignalWSController) sendError(c *WsSignalConn, action string, err error) {
	ctl.sendJSON(c, errorFrame{
		Type:    string(domain.EventError),
		Error:   domain.ErrorCode(err),
		Message: err.Error(),
		Action:  action,
	})
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
