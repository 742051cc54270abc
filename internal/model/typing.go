package model

// TypingIndicator marks a user as typing in a conversation until ExpiresAt
// (unix milliseconds). At most one row exists per user and conversation.
type TypingIndicator struct {
	ID               string           `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID           string           `gorm:"uniqueIndex:idx_typing_user_conversation,priority:1;not null;type:varchar(64)" json:"user_id"`
	ConversationKind ConversationKind `gorm:"not null;type:varchar(16)" json:"conversation_kind"`
	ConversationID   string           `gorm:"uniqueIndex:idx_typing_user_conversation,priority:2;index;not null;type:varchar(64)" json:"conversation_id"`
	ExpiresAt        int64            `gorm:"not null" json:"expires_at"`
}

func (TypingIndicator) TableName() string {
	return "typing_indicators"
}
