package model

import "time"

type Server struct {
	ID               string  `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name             string  `gorm:"not null;type:varchar(100)" json:"name"`
	IconID           *string `gorm:"type:varchar(128)" json:"icon_id,omitempty"`
	OwnerID          string  `gorm:"index;not null;type:varchar(64)" json:"owner_id"`
	DefaultChannelID string  `gorm:"not null;type:varchar(64)" json:"default_channel_id"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Server) TableName() string {
	return "servers"
}

type Channel struct {
	ID       string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name     string `gorm:"not null;type:varchar(100)" json:"name"`
	ServerID string `gorm:"index;not null;type:varchar(64)" json:"server_id"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Channel) TableName() string {
	return "channels"
}

// ServerMember links a user to a server. AudioEnabled and VideoEnabled
// mirror the member's call toggles.
type ServerMember struct {
	ID           string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ServerID     string `gorm:"uniqueIndex:idx_server_member;not null;type:varchar(64)" json:"server_id"`
	UserID       string `gorm:"uniqueIndex:idx_server_member;index;not null;type:varchar(64)" json:"user_id"`
	AudioEnabled bool   `gorm:"not null;default:false" json:"audio_enabled"`
	VideoEnabled bool   `gorm:"not null;default:false" json:"video_enabled"`

	JoinedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"joined_at"`
}

func (ServerMember) TableName() string {
	return "server_members"
}
