package rooms

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/hallway-app/hallway/app/models"
)

var (
	ErrMissingEventName    = errors.New("missing event name")
	ErrMissingRoomIdentity = errors.New("missing room_name and room_jid")
	ErrMissingEmail        = errors.New("missing email")
)

// rawEvent accepts both historical field-naming conventions for the same
// room-event family (event_name vs type, room_name vs room).
type rawEvent struct {
	EventName     string          `json:"event_name"`
	Type          string          `json:"type"`
	RoomName      string          `json:"room_name"`
	Room          string          `json:"room"`
	RoomJID       string          `json:"room_jid"`
	IsBreakout    bool            `json:"is_breakout"`
	ParentRoomJID string          `json:"parent_room_jid"`
	LobbyEnabled  bool            `json:"lobby_enabled"`
	Email         string          `json:"email"`
	Name          string          `json:"name"`
	DisplayName   string          `json:"display_name"`
	Role          string          `json:"role"`
	Affiliation   string          `json:"affiliation"`
	Timestamp     json.RawMessage `json:"timestamp"`
}

// Normalize parses a raw room-server payload and canonicalizes it. Unknown
// event types come back with Ignored set instead of an error; the ingress
// still acknowledges those deliveries.
func Normalize(raw []byte, receivedAt time.Time) (Event, error) {
	var r rawEvent
	if err := json.Unmarshal(raw, &r); err != nil {
		return Event{}, err
	}

	name := strings.TrimSpace(r.EventName)
	if name == "" {
		name = strings.TrimSpace(r.Type)
	}
	if name == "" {
		return Event{}, ErrMissingEventName
	}

	ev := Event{
		Type:          canonicalEventType(name),
		RoomName:      strings.TrimSpace(firstNonEmpty(r.RoomName, r.Room)),
		RoomJID:       strings.TrimSpace(r.RoomJID),
		IsBreakout:    r.IsBreakout,
		ParentRoomJID: strings.TrimSpace(r.ParentRoomJID),
		LobbyEnabled:  r.LobbyEnabled,
		Email:         strings.TrimSpace(strings.ToLower(r.Email)),
		DisplayName:   strings.TrimSpace(firstNonEmpty(r.DisplayName, r.Name)),
		Role:          strings.TrimSpace(r.Role),
		Affiliation:   strings.TrimSpace(r.Affiliation),
		Timestamp:     parseTimestamp(r.Timestamp, receivedAt),
	}

	if ev.Type == "" {
		ev.Ignored = true
		return ev, nil
	}

	if ev.RoomName == "" && ev.RoomJID == "" {
		return Event{}, ErrMissingRoomIdentity
	}
	if (ev.Type == models.RoomEventHostAssigned || ev.Type == models.RoomEventHostLeft) && ev.Email == "" {
		return Event{}, ErrMissingEmail
	}

	return ev, nil
}

// canonicalEventType maps the historical event names onto the canonical set.
// Returns "" for unknown types.
func canonicalEventType(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "muc-")
	n = strings.ReplaceAll(n, "-", "_")

	switch n {
	case "room_created", "created":
		return models.RoomEventRoomCreated
	case "room_destroyed", "destroyed":
		return models.RoomEventRoomDestroyed
	case "occupant_joined", "joined":
		return models.RoomEventOccupantJoined
	case "occupant_left", "left":
		return models.RoomEventOccupantLeft
	case "role_changed":
		return models.RoomEventRoleChanged
	case "affiliation_changed":
		return models.RoomEventAffiliationChanged
	case "host_assigned":
		return models.RoomEventHostAssigned
	case "host_left":
		return models.RoomEventHostLeft
	default:
		return ""
	}
}

// parseTimestamp accepts an RFC3339 string or a unix timestamp in seconds or
// milliseconds. Anything unparsable falls back to ingestion time.
func parseTimestamp(raw json.RawMessage, fallback time.Time) time.Time {
	if len(raw) == 0 {
		return fallback
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixToTime(n)
		}
		return fallback
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return unixToTime(n)
	}

	return fallback
}

func unixToTime(n int64) time.Time {
	// Heuristic: values past the year 33658 in seconds are milliseconds.
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
