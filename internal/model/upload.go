package model

import "time"

// Upload records who requested an object-store upload slot. ID doubles as
// the object key. AttachedAt is set once a message or server icon refers to
// it; an attached upload cannot be reused or removed on its own.
type Upload struct {
	ID      string `gorm:"primaryKey;type:varchar(128)" json:"storage_id"`
	OwnerID string `gorm:"index;not null;type:varchar(64)" json:"owner_id"`

	AttachedAt *time.Time `json:"attached_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Upload) TableName() string {
	return "uploads"
}
