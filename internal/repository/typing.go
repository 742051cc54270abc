package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/Guildhall/internal/model"
)

type ITypingRepository interface {
	// Upsert sets expires_at for (user, conversation), creating the row if needed.
	Upsert(ctx context.Context, indicator *model.TypingIndicator) error
	// Delete removes the user's indicator in the conversation. With a non-nil
	// stamp the row is only removed if its expires_at still equals *stamp.
	Delete(ctx context.Context, userID, conversationID string, stamp *int64) (bool, error)
	// ActiveUsernames lists users typing in the conversation whose indicator
	// expires after nowMs, excluding excludeUserID.
	ActiveUsernames(ctx context.Context, conversationID, excludeUserID string, nowMs int64) ([]string, error)
}

type TypingRepository struct {
	db *gorm.DB
}

func NewTypingRepository(db *gorm.DB) ITypingRepository {
	return &TypingRepository{db: db}
}

func (r *TypingRepository) Upsert(ctx context.Context, indicator *model.TypingIndicator) error {
	if indicator.ID == "" {
		indicator.ID = newID()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
	}).Create(indicator).Error
}

func (r *TypingRepository) Delete(ctx context.Context, userID, conversationID string, stamp *int64) (bool, error) {
	q := r.db.WithContext(ctx).Where("user_id = ? AND conversation_id = ?", userID, conversationID)
	if stamp != nil {
		q = q.Where("expires_at = ?", *stamp)
	}
	res := q.Delete(&model.TypingIndicator{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *TypingRepository) ActiveUsernames(ctx context.Context, conversationID, excludeUserID string, nowMs int64) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Table("typing_indicators t").
		Joins("JOIN users u ON u.id = t.user_id").
		Where("t.conversation_id = ? AND t.user_id <> ? AND t.expires_at > ?", conversationID, excludeUserID, nowMs).
		Order("u.username").
		Pluck("u.username", &names).Error
	return names, err
}
