package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_USER       = "user"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email    string `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password string `gorm:"type:text" json:"-"`
	Role     string `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Status   string `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`

	// Host-session accounting fed by room-server webhooks. The start time is
	// non-null iff IsActiveHost is true; TotalHostMinutes only ever grows.
	IsActiveHost         bool       `gorm:"default:false" json:"is_active_host"`
	HostSessionStartTime *time.Time `gorm:"type:timestamp;default:null" json:"host_session_start_time,omitempty"`
	TotalHostMinutes     uint       `gorm:"not null;default:0" json:"total_host_minutes"`

	LastLoginAt *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.Password)
}

// SetPassword hashes and sets a new password for the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Password = hashedPassword
	return nil
}

// StartHostSession marks the user as active host from the given time. A
// second assignment simply restarts the clock; overlapping sessions are not
// merged, the last assignment wins.
func (u *User) StartHostSession(at time.Time) {
	u.IsActiveHost = true
	u.HostSessionStartTime = &at
}

// EndHostSession closes an open host session at the given time and returns
// the whole minutes credited. A session that never had a recorded start
// contributes zero minutes.
func (u *User) EndHostSession(at time.Time) uint {
	minutes := uint(0)
	if u.HostSessionStartTime != nil {
		if d := at.Sub(*u.HostSessionStartTime); d > 0 {
			minutes = uint(d.Minutes())
		}
	}
	u.TotalHostMinutes += minutes
	u.IsActiveHost = false
	u.HostSessionStartTime = nil
	return minutes
}
