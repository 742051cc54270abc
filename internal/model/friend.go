package model

import "time"

type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
	FriendRejected FriendStatus = "rejected"
)

type Friend struct {
	ID          string       `gorm:"primaryKey;type:varchar(64)" json:"id"`
	RequesterID string       `gorm:"uniqueIndex:idx_friend_pair;not null;type:varchar(64)" json:"requester_id"`
	AddresseeID string       `gorm:"uniqueIndex:idx_friend_pair;index;not null;type:varchar(64)" json:"addressee_id"`
	Status      FriendStatus `gorm:"not null;type:varchar(16);default:pending" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Friend) TableName() string {
	return "friends"
}

// Other returns the participant that is not userID.
func (f *Friend) Other(userID string) string {
	if f.RequesterID == userID {
		return f.AddresseeID
	}
	return f.RequesterID
}
