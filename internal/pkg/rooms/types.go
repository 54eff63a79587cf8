package rooms

import "time"

// Event is the canonical shape of a room-server webhook after normalization.
// All shape-guessing over the two historical payload conventions happens in
// Normalize; everything downstream only sees this struct.
type Event struct {
	Type          string // one of the models.RoomEvent* constants
	Ignored       bool   // recognized envelope, unknown event type
	RoomName      string
	RoomJID       string
	IsBreakout    bool
	ParentRoomJID string
	LobbyEnabled  bool
	Email         string
	DisplayName   string
	Role          string
	Affiliation   string
	Timestamp     time.Time // payload timestamp when present, else ingestion time
}

// RoomKey returns the identity used for meeting resolution. The JID is
// primary when present.
func (e Event) RoomKey() string {
	if e.RoomJID != "" {
		return e.RoomJID
	}
	return e.RoomName
}
