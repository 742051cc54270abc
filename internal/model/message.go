package model

import (
	"time"
)

// Message is immutable once written. ID is a snowflake, so ordering by id
// is ordering by creation time.
type Message struct {
	ID               int64            `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	SenderID         string           `gorm:"index;not null;type:varchar(64)" json:"sender_id"`
	Content          string           `gorm:"type:text;not null" json:"content"`
	ConversationKind ConversationKind `gorm:"index:idx_message_conversation,priority:1;not null;type:varchar(16)" json:"conversation_kind"`
	ConversationID   string           `gorm:"index:idx_message_conversation,priority:2;not null;type:varchar(64)" json:"conversation_id"`
	AttachmentID     *string          `gorm:"type:varchar(128)" json:"attachment_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) Conversation() Conversation {
	return Conversation{Kind: m.ConversationKind, ID: m.ConversationID}
}

// MessageView is a message joined with its sender and a readable
// attachment URL.
type MessageView struct {
	Message
	Sender        UserProfile `json:"sender"`
	AttachmentURL string      `json:"attachment_url,omitempty"`
}
