package rooms

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hallway-app/hallway/app/models"
)

// Service applies normalized room events to meetings and host sessions.
// Deliveries are at-least-once and unordered, so every mutation here has to
// converge under replay: meeting creation is find-or-create, destroy is
// terminal, and host sessions use last-assignment-wins semantics.
type Service struct {
	repo Repository
}

// NewService creates a rooms service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a rooms service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ProcessEvent reconciles one normalized event. Errors from the store bubble
// up so the queue can retry; resolution misses are logged and swallowed
// because the delivery was already acknowledged.
func (s *Service) ProcessEvent(ev Event) error {
	if ev.Ignored {
		return nil
	}

	switch ev.Type {
	case models.RoomEventRoomDestroyed:
		return s.processRoomDestroyed(ev)
	case models.RoomEventHostAssigned, models.RoomEventHostLeft:
		return s.processHostEvent(ev)
	default:
		meeting, err := s.resolveMeeting(ev)
		if err != nil {
			return err
		}
		return s.appendEvent(meeting, ev)
	}
}

// resolveMeeting finds the ongoing meeting for the event's room identity or
// creates one on demand. Replaying room_created for an identity that already
// has an ongoing meeting reuses that meeting instead of creating a duplicate.
func (s *Service) resolveMeeting(ev Event) (*models.Meeting, error) {
	meeting, err := s.repo.FindOngoingMeeting(ev.RoomJID, ev.RoomName, ev.IsBreakout)
	if err == nil {
		return s.refreshIdentity(meeting, ev)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	meeting = &models.Meeting{
		RoomName:      ev.RoomName,
		RoomJID:       ev.RoomJID,
		IsBreakout:    ev.IsBreakout,
		ParentRoomJID: ev.ParentRoomJID,
		LobbyEnabled:  ev.LobbyEnabled,
		Status:        models.MeetingStatusOngoing,
		StartedAt:     ev.Timestamp,
	}
	if err := s.repo.CreateMeeting(meeting); err != nil {
		return nil, err
	}
	log.Infof("[Rooms] Created meeting %d for room %s", meeting.ID, ev.RoomKey())
	return meeting, nil
}

// refreshIdentity backfills identity fields an earlier partial delivery may
// have missed (a first-seen occupant event can arrive without a JID).
func (s *Service) refreshIdentity(meeting *models.Meeting, ev Event) (*models.Meeting, error) {
	changed := false
	if meeting.RoomJID == "" && ev.RoomJID != "" {
		meeting.RoomJID = ev.RoomJID
		changed = true
	}
	if meeting.ParentRoomJID == "" && ev.ParentRoomJID != "" {
		meeting.ParentRoomJID = ev.ParentRoomJID
		changed = true
	}
	if ev.LobbyEnabled && !meeting.LobbyEnabled {
		meeting.LobbyEnabled = true
		changed = true
	}
	if changed {
		if err := s.repo.SaveMeeting(meeting); err != nil {
			return nil, err
		}
	}
	return meeting, nil
}

func (s *Service) processRoomDestroyed(ev Event) error {
	meeting, err := s.repo.FindOngoingMeeting(ev.RoomJID, ev.RoomName, ev.IsBreakout)
	if err == nil {
		meeting.End(ev.Timestamp)
		if err := s.repo.SaveMeeting(meeting); err != nil {
			return err
		}
		return s.appendEvent(meeting, ev)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// Destroy for an already-ended or never-seen room. Deliveries can arrive
	// after upstream state was cleaned up, so record defensively instead of
	// failing.
	meeting, err = s.repo.FindLatestMeeting(ev.RoomJID, ev.RoomName, ev.IsBreakout)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ended := ev.Timestamp
		meeting = &models.Meeting{
			RoomName:      ev.RoomName,
			RoomJID:       ev.RoomJID,
			IsBreakout:    ev.IsBreakout,
			ParentRoomJID: ev.ParentRoomJID,
			Status:        models.MeetingStatusEnded,
			StartedAt:     ev.Timestamp,
			EndedAt:       &ended,
		}
		if err := s.repo.CreateMeeting(meeting); err != nil {
			return err
		}
		log.Warnf("[Rooms] Destroy for never-seen room %s, created ended meeting %d", ev.RoomKey(), meeting.ID)
	} else if err != nil {
		return err
	}

	return s.appendEvent(meeting, ev)
}

// processHostEvent updates the user's host-session sub-state and appends the
// corresponding meeting event. The two writes are not transactionally linked;
// each failure path is logged on its own so one cannot silently corrupt the
// other.
func (s *Service) processHostEvent(ev Event) error {
	user, err := s.repo.GetUserByEmail(ev.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Rooms] %s for unknown email %s, skipping", ev.Type, ev.Email)
			return nil
		}
		return err
	}

	switch ev.Type {
	case models.RoomEventHostAssigned:
		user.StartHostSession(ev.Timestamp)
	case models.RoomEventHostLeft:
		minutes := user.EndHostSession(ev.Timestamp)
		log.Infof("[Rooms] Host session ended for user %d, credited %d minutes", user.ID, minutes)
	}

	if err := s.repo.SaveUser(user); err != nil {
		log.Errorf("[Rooms] Failed to save host session for user %d: %v", user.ID, err)
	}

	meeting, err := s.resolveMeeting(ev)
	if err != nil {
		log.Errorf("[Rooms] Failed to resolve meeting for %s in room %s: %v", ev.Type, ev.RoomKey(), err)
		return nil
	}
	if err := s.appendEvent(meeting, ev); err != nil {
		log.Errorf("[Rooms] Failed to append %s event for meeting %d: %v", ev.Type, meeting.ID, err)
	}
	return nil
}

// appendEvent writes the append-only log entry for a delivery. Every
// state-affecting webhook produces exactly one row.
func (s *Service) appendEvent(meeting *models.Meeting, ev Event) error {
	metadata := map[string]string{}
	if ev.Email != "" {
		metadata["email"] = ev.Email
	}
	if ev.DisplayName != "" {
		metadata["display_name"] = ev.DisplayName
	}
	if ev.Role != "" {
		metadata["role"] = ev.Role
	}
	if ev.Affiliation != "" {
		metadata["affiliation"] = ev.Affiliation
	}

	metadataJSON := ""
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			metadataJSON = string(b)
		}
	}

	return s.repo.AppendMeetingEvent(&models.MeetingEvent{
		MeetingID:    meeting.ID,
		EventType:    ev.Type,
		Timestamp:    ev.Timestamp,
		MetadataJSON: metadataJSON,
	})
}
