package rooms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hallway-app/hallway/app/models"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Meeting{}, &models.MeetingEvent{}))

	return NewServiceFromDB(db), db
}

func meetingCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Meeting{}).Count(&count).Error)
	return count
}

func TestProcessEventIdempotentMeetingCreation(t *testing.T) {
	svc, db := newTestService(t)

	ev := Event{
		Type:      models.RoomEventRoomCreated,
		RoomName:  "standup",
		RoomJID:   "standup@conference.example.com",
		Timestamp: time.Now(),
	}

	// At-least-once delivery: three replays converge on one meeting.
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.ProcessEvent(ev))
	}

	assert.EqualValues(t, 1, meetingCount(t, db))

	// Every delivery still produces its own log entry.
	var events int64
	require.NoError(t, db.Model(&models.MeetingEvent{}).Count(&events).Error)
	assert.EqualValues(t, 3, events)
}

func TestProcessEventOccupantJoinedCreatesMeetingOnDemand(t *testing.T) {
	svc, db := newTestService(t)

	ev := Event{
		Type:        models.RoomEventOccupantJoined,
		RoomName:    "adhoc",
		DisplayName: "Visitor",
		Timestamp:   time.Now(),
	}
	require.NoError(t, svc.ProcessEvent(ev))

	var meeting models.Meeting
	require.NoError(t, db.Where("room_name = ?", "adhoc").First(&meeting).Error)
	assert.Equal(t, models.MeetingStatusOngoing, meeting.Status)

	var logged models.MeetingEvent
	require.NoError(t, db.Where("meeting_id = ?", meeting.ID).First(&logged).Error)
	assert.Contains(t, logged.MetadataJSON, "Visitor")
}

func TestProcessEventBackfillsRoomJID(t *testing.T) {
	svc, db := newTestService(t)

	require.NoError(t, svc.ProcessEvent(Event{
		Type:      models.RoomEventRoomCreated,
		RoomName:  "standup",
		Timestamp: time.Now(),
	}))
	require.NoError(t, svc.ProcessEvent(Event{
		Type:      models.RoomEventOccupantJoined,
		RoomName:  "standup",
		RoomJID:   "standup@conference.example.com",
		Timestamp: time.Now(),
	}))

	assert.EqualValues(t, 1, meetingCount(t, db))

	var meeting models.Meeting
	require.NoError(t, db.Where("room_name = ?", "standup").First(&meeting).Error)
	assert.Equal(t, "standup@conference.example.com", meeting.RoomJID)
}

func TestProcessEventBreakoutRoomsAreSeparate(t *testing.T) {
	svc, db := newTestService(t)

	now := time.Now()
	require.NoError(t, svc.ProcessEvent(Event{Type: models.RoomEventRoomCreated, RoomName: "standup", Timestamp: now}))
	require.NoError(t, svc.ProcessEvent(Event{
		Type:          models.RoomEventRoomCreated,
		RoomName:      "standup",
		IsBreakout:    true,
		ParentRoomJID: "standup@conference.example.com",
		Timestamp:     now,
	}))

	assert.EqualValues(t, 2, meetingCount(t, db))
}

func TestProcessEventRoomDestroyed(t *testing.T) {
	svc, db := newTestService(t)

	started := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	ended := started.Add(45 * time.Minute)

	require.NoError(t, svc.ProcessEvent(Event{Type: models.RoomEventRoomCreated, RoomName: "retro", Timestamp: started}))
	require.NoError(t, svc.ProcessEvent(Event{Type: models.RoomEventRoomDestroyed, RoomName: "retro", Timestamp: ended}))

	var meeting models.Meeting
	require.NoError(t, db.Where("room_name = ?", "retro").First(&meeting).Error)
	assert.Equal(t, models.MeetingStatusEnded, meeting.Status)
	require.NotNil(t, meeting.EndedAt)

	// A replayed destroy is terminal: no reopening, no duplicate meeting.
	require.NoError(t, svc.ProcessEvent(Event{Type: models.RoomEventRoomDestroyed, RoomName: "retro", Timestamp: ended}))
	assert.EqualValues(t, 1, meetingCount(t, db))

	require.NoError(t, db.Where("room_name = ?", "retro").First(&meeting).Error)
	assert.Equal(t, models.MeetingStatusEnded, meeting.Status)
}

func TestProcessEventDestroyForNeverSeenRoom(t *testing.T) {
	svc, db := newTestService(t)

	require.NoError(t, svc.ProcessEvent(Event{
		Type:      models.RoomEventRoomDestroyed,
		RoomName:  "ghost",
		Timestamp: time.Now(),
	}))

	var meeting models.Meeting
	require.NoError(t, db.Where("room_name = ?", "ghost").First(&meeting).Error)
	assert.Equal(t, models.MeetingStatusEnded, meeting.Status)
	require.NotNil(t, meeting.EndedAt)
}

func TestProcessEventHostSessionAccounting(t *testing.T) {
	svc, db := newTestService(t)

	user := models.User{Name: "Meeting Host", Email: "host@example.com"}
	require.NoError(t, db.Create(&user).Error)

	start := time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)

	require.NoError(t, svc.ProcessEvent(Event{
		Type: models.RoomEventHostAssigned, RoomName: "all-hands",
		Email: "host@example.com", Timestamp: start,
	}))

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.True(t, stored.IsActiveHost)
	require.NotNil(t, stored.HostSessionStartTime)

	require.NoError(t, svc.ProcessEvent(Event{
		Type: models.RoomEventHostLeft, RoomName: "all-hands",
		Email: "host@example.com", Timestamp: start.Add(30 * time.Minute),
	}))

	// Fresh scan: re-reading into the populated struct would keep the stale
	// non-nil start time when the column went back to NULL.
	var afterLeft models.User
	require.NoError(t, db.First(&afterLeft, user.ID).Error)
	assert.False(t, afterLeft.IsActiveHost)
	assert.Nil(t, afterLeft.HostSessionStartTime)
	assert.EqualValues(t, 30, afterLeft.TotalHostMinutes)

	// A second session accumulates on top of the first.
	require.NoError(t, svc.ProcessEvent(Event{
		Type: models.RoomEventHostAssigned, RoomName: "all-hands",
		Email: "host@example.com", Timestamp: start.Add(time.Hour),
	}))
	require.NoError(t, svc.ProcessEvent(Event{
		Type: models.RoomEventHostLeft, RoomName: "all-hands",
		Email: "host@example.com", Timestamp: start.Add(time.Hour + 45*time.Minute),
	}))

	var afterSecond models.User
	require.NoError(t, db.First(&afterSecond, user.ID).Error)
	assert.EqualValues(t, 75, afterSecond.TotalHostMinutes)
	assert.Nil(t, afterSecond.HostSessionStartTime)
}

func TestProcessEventHostLeftWithoutStart(t *testing.T) {
	svc, db := newTestService(t)

	user := models.User{Name: "Never Host", Email: "never@example.com"}
	require.NoError(t, db.Create(&user).Error)

	require.NoError(t, svc.ProcessEvent(Event{
		Type: models.RoomEventHostLeft, RoomName: "quiet",
		Email: "never@example.com", Timestamp: time.Now(),
	}))

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.False(t, stored.IsActiveHost)
	assert.EqualValues(t, 0, stored.TotalHostMinutes)
}

func TestProcessEventHostForUnknownEmail(t *testing.T) {
	svc, db := newTestService(t)

	require.NoError(t, svc.ProcessEvent(Event{
		Type: models.RoomEventHostAssigned, RoomName: "orphan",
		Email: "stranger@example.com", Timestamp: time.Now(),
	}))

	// Unknown host: the delivery is acknowledged with no state created.
	assert.EqualValues(t, 0, meetingCount(t, db))

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.EqualValues(t, 0, users)
}

func TestMeetingJIDColumnsMatchRawQueries(t *testing.T) {
	svc, db := newTestService(t)

	require.NoError(t, svc.ProcessEvent(Event{
		Type:          models.RoomEventRoomCreated,
		RoomName:      "standup",
		RoomJID:       "breakout1@breakout.example.com",
		IsBreakout:    true,
		ParentRoomJID: "standup@conference.example.com",
		Timestamp:     time.Now(),
	}))

	// The repository filters with raw column names; the struct mapping must
	// land on the same columns or JID lookups silently miss.
	var jid, parent string
	require.NoError(t, db.Raw("SELECT room_jid, parent_room_jid FROM meetings LIMIT 1").Row().Scan(&jid, &parent))
	assert.Equal(t, "breakout1@breakout.example.com", jid)
	assert.Equal(t, "standup@conference.example.com", parent)

	// And the JID-scoped lookup resolves the same meeting instead of creating
	// a duplicate.
	require.NoError(t, svc.ProcessEvent(Event{
		Type:       models.RoomEventOccupantJoined,
		RoomName:   "standup",
		RoomJID:    "breakout1@breakout.example.com",
		IsBreakout: true,
		Timestamp:  time.Now(),
	}))
	assert.EqualValues(t, 1, meetingCount(t, db))
}

func TestProcessEventIgnoredDoesNothing(t *testing.T) {
	svc, db := newTestService(t)

	require.NoError(t, svc.ProcessEvent(Event{Ignored: true, RoomName: "whatever"}))
	assert.EqualValues(t, 0, meetingCount(t, db))
}
