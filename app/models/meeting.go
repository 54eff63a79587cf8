package models

import "time"

const (
	MeetingStatusOngoing = "ongoing"
	MeetingStatusEnded   = "ended"
)

// Meeting mirrors the lifecycle of a conference room. Identity is the room
// name plus the room JID; the JID wins when both are present. At most one
// meeting per (room identity, breakout flag) may be ongoing at a time.
type Meeting struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	RoomName      string     `gorm:"type:varchar(255);not null;index:idx_meetings_room_name_breakout,priority:1" json:"room_name"`
	RoomJID       string     `gorm:"column:room_jid;type:varchar(255);index:idx_meetings_room_jid_breakout,priority:1" json:"room_jid"`
	IsBreakout    bool       `gorm:"default:false;index:idx_meetings_room_name_breakout,priority:2;index:idx_meetings_room_jid_breakout,priority:2" json:"is_breakout"`
	ParentRoomJID string     `gorm:"column:parent_room_jid;type:varchar(255);default:''" json:"parent_room_jid"`
	LobbyEnabled  bool       `gorm:"default:false" json:"lobby_enabled"`
	Status        string     `gorm:"type:varchar(16);not null;default:'ongoing';index" json:"status"`
	StartedAt     time.Time  `gorm:"type:timestamp;not null" json:"started_at"`
	EndedAt       *time.Time `gorm:"type:timestamp;default:null" json:"ended_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsOngoing reports whether the meeting has not been destroyed yet.
func (m *Meeting) IsOngoing() bool {
	return m.Status == MeetingStatusOngoing
}

// End transitions the meeting to its terminal state. Ended meetings are
// never reopened or deleted.
func (m *Meeting) End(at time.Time) {
	m.Status = MeetingStatusEnded
	m.EndedAt = &at
}
