package model

import "time"

// Invite grants membership of a server. A nil MaxUses or ExpiresAt means
// unlimited.
type Invite struct {
	ID        string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ServerID  string     `gorm:"index;not null;type:varchar(64)" json:"server_id"`
	CreatedBy string     `gorm:"not null;type:varchar(64)" json:"created_by"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	MaxUses   *int       `json:"max_uses,omitempty"`
	Uses      int        `gorm:"not null;default:0" json:"uses"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Invite) TableName() string {
	return "invites"
}

func (i *Invite) Exhausted() bool {
	return i.MaxUses != nil && i.Uses >= *i.MaxUses
}

func (i *Invite) ExpiredAt(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}
