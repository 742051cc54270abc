package model

import (
	"strings"
	"time"
)

// DirectMessage is a two-party conversation. PairKey is the sorted pair of
// participant ids so that each pair maps to exactly one conversation.
type DirectMessage struct {
	ID      string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	PairKey string `gorm:"uniqueIndex;not null;type:varchar(140)" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (DirectMessage) TableName() string {
	return "direct_messages"
}

type DirectMessageMember struct {
	ID              string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	DirectMessageID string `gorm:"uniqueIndex:idx_dm_member;not null;type:varchar(64)" json:"direct_message_id"`
	UserID          string `gorm:"uniqueIndex:idx_dm_member;index;not null;type:varchar(64)" json:"user_id"`
}

func (DirectMessageMember) TableName() string {
	return "direct_message_members"
}

func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// PairMembers splits a pair key back into its two user ids.
func PairMembers(key string) (string, string) {
	a, b, _ := strings.Cut(key, ":")
	return a, b
}
