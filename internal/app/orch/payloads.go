package orch

import (
	"encoding/json"

	"github.com/dkeye/yogasync/internal/domain"
)

// Outbound payloads. Identity is embedded so the sender's
// userId/userNickName/userProfile sit at the top level of the message.

type MembershipPayload struct {
	domain.Identity
	RoomID           domain.RoomID   `json:"roomId"`
	ParticipantCount int             `json:"participantCount"`
	Users            []domain.UserID `json:"users"`
}

type UserLeftPayload struct {
	domain.Identity
	RoomID           domain.RoomID `json:"roomId"`
	ParticipantCount int           `json:"participantCount"`
	ReadyCount       int           `json:"readyCount"`
}

type ReadyPayload struct {
	domain.Identity
	RoomID     domain.RoomID `json:"roomId"`
	IsReady    bool          `json:"isReady"`
	ReadyCount int           `json:"readyCount"`
	UserCount  int           `json:"userCount"`
}

type AllReadyPayload struct {
	RoomID     domain.RoomID `json:"roomId"`
	ReadyCount int           `json:"readyCount"`
}

type CourseStartedPayload struct {
	RoomID        domain.RoomID `json:"roomId"`
	Round         int           `json:"round"`
	TotalRounds   int           `json:"totalRounds"`
	RoundDuration int64         `json:"roundDurationMs"`
}

// RelayPayload wraps an opaque client payload with the sender's identity.
type RelayPayload struct {
	domain.Identity
	RoomID  domain.RoomID   `json:"roomId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type PongPayload struct {
	Timestamp int64 `json:"ts"`
}

type WhoAmIPayload struct {
	domain.Identity
	ConnID domain.ConnID `json:"connId"`
	RoomID domain.RoomID `json:"roomId,omitempty"`
}

type readyRequest struct {
	IsReady *bool `json:"isReady"`
}

type iceStateRequest struct {
	State string `json:"state"`
}
