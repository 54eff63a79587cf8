package models

import "time"

// Canonical room event types after normalization.
const (
	RoomEventRoomCreated        = "room_created"
	RoomEventRoomDestroyed      = "room_destroyed"
	RoomEventOccupantJoined     = "occupant_joined"
	RoomEventOccupantLeft       = "occupant_left"
	RoomEventRoleChanged        = "role_changed"
	RoomEventAffiliationChanged = "affiliation_changed"
	RoomEventHostAssigned       = "host_assigned"
	RoomEventHostLeft           = "host_left"
)

// MeetingEvent is an append-only log entry. Every state-affecting webhook
// produces exactly one row, whether or not it also mutated the meeting. The
// timestamp comes from the source payload when present, else ingestion time,
// so the log is causally attributed but not globally ordered.
type MeetingEvent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	MeetingID    uint      `gorm:"not null;index" json:"meeting_id"`
	EventType    string    `gorm:"type:varchar(64);not null;index" json:"event_type"`
	Timestamp    time.Time `gorm:"type:timestamp;not null;index" json:"timestamp"`
	MetadataJSON string    `gorm:"type:longtext" json:"metadata_json"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
