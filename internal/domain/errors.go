package domain

import "errors"

// not-found
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("session not found")
)

// state-conflict
var (
	ErrAlreadyJoined = errors.New("already joined")
	ErrNoRoomContext = errors.New("no room context")
	ErrRoomMismatch  = errors.New("room/session mismatch")
	ErrRoomDisposed  = errors.New("room disposed")
	ErrNotReady      = errors.New("ready barrier not satisfied")
)

// malformed / throttled
var (
	ErrUnknownAction = errors.New("unknown action")
	ErrBadPayload    = errors.New("bad payload")
	ErrRateLimited   = errors.New("rate limited")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrRoomNotFound, "room_not_found"},
	{ErrSessionNotFound, "session_not_found"},
	{ErrAlreadyJoined, "already_joined"},
	{ErrNoRoomContext, "no_room_context"},
	{ErrRoomMismatch, "room_mismatch"},
	{ErrRoomDisposed, "room_disposed"},
	{ErrNotReady, "not_ready"},
	{ErrUnknownAction, "unknown_action"},
	{ErrBadPayload, "bad_payload"},
	{ErrRateLimited, "rate_limited"},
}

// ErrorCode maps an error to the stable code sent back to the client.
func ErrorCode(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
