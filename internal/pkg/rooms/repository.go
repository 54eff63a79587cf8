package rooms

import (
	"gorm.io/gorm"

	"github.com/hallway-app/hallway/app/models"
)

// Repository provides DB operations used by the rooms service.
type Repository interface {
	FindOngoingMeeting(roomJID, roomName string, isBreakout bool) (*models.Meeting, error)
	FindLatestMeeting(roomJID, roomName string, isBreakout bool) (*models.Meeting, error)
	CreateMeeting(m *models.Meeting) error
	SaveMeeting(m *models.Meeting) error
	AppendMeetingEvent(ev *models.MeetingEvent) error
	GetUserByEmail(email string) (*models.User, error)
	SaveUser(u *models.User) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a rooms repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindOngoingMeeting(roomJID, roomName string, isBreakout bool) (*models.Meeting, error) {
	var m models.Meeting
	err := r.identityScope(roomJID, roomName, isBreakout).
		Where("status = ?", models.MeetingStatusOngoing).
		Order("id DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) FindLatestMeeting(roomJID, roomName string, isBreakout bool) (*models.Meeting, error) {
	var m models.Meeting
	err := r.identityScope(roomJID, roomName, isBreakout).
		Order("id DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// identityScope matches a meeting by room identity. The JID is primary when
// present; name matching is the fallback for payloads without a JID.
func (r *gormRepository) identityScope(roomJID, roomName string, isBreakout bool) *gorm.DB {
	q := r.db.Model(&models.Meeting{}).Where("is_breakout = ?", isBreakout)
	if roomJID != "" {
		return q.Where("room_jid = ?", roomJID)
	}
	return q.Where("room_name = ?", roomName)
}

func (r *gormRepository) CreateMeeting(m *models.Meeting) error {
	return r.db.Create(m).Error
}

func (r *gormRepository) SaveMeeting(m *models.Meeting) error {
	return r.db.Save(m).Error
}

func (r *gormRepository) AppendMeetingEvent(ev *models.MeetingEvent) error {
	return r.db.Create(ev).Error
}

func (r *gormRepository) GetUserByEmail(email string) (*models.User, error) {
	var u models.User
	err := r.db.Where("email = ?", email).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) SaveUser(u *models.User) error {
	return r.db.Save(u).Error
}
