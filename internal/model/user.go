package model

import (
	"time"
)

// User is the persisted identity. ExternalID is the subject of the
// bearer token issued by the identity provider.
type User struct {
	ID           string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ExternalID   string `gorm:"uniqueIndex;not null;type:varchar(255)" json:"-"`
	Username     string `gorm:"uniqueIndex;not null;type:varchar(64)" json:"username"`
	Image        string `gorm:"type:text" json:"image"`
	PasswordHash string `gorm:"type:varchar(255)" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// UserProfile is the public view of a user embedded in other responses.
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Image    string `json:"image"`
}

func (u *User) Profile() UserProfile {
	if u == nil {
		return UserProfile{}
	}
	return UserProfile{ID: u.ID, Username: u.Username, Image: u.Image}
}
