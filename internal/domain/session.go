package domain

// ConnID is the opaque transport handle of one live connection.
type ConnID string

// Session binds a connection to an identity and, once joined, to a room.
// Registries hand out copies; nobody keeps a pointer to the stored value.
type Session struct {
	ConnID   ConnID   `json:"connId"`
	Identity Identity `json:"identity"`
	RoomID   RoomID   `json:"roomId,omitempty"`
}

func (s Session) Joined() bool { return s.RoomID != "" }
