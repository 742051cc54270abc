package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
)

type IDirectMessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.DirectMessage, error)
	FindByPair(ctx context.Context, userA, userB string) (*model.DirectMessage, error)
	// Create writes the conversation and both member rows. A concurrent
	// create of the same pair yields ErrDuplicate.
	Create(ctx context.Context, userA, userB string) (*model.DirectMessage, error)
	ListByUser(ctx context.Context, userID string) ([]*model.DirectMessage, error)
	IsParticipant(ctx context.Context, dmID, userID string) (bool, error)
}

type DirectMessageRepository struct {
	db *gorm.DB
}

func NewDirectMessageRepository(db *gorm.DB) IDirectMessageRepository {
	return &DirectMessageRepository{db: db}
}

func (r *DirectMessageRepository) FindByID(ctx context.Context, id string) (*model.DirectMessage, error) {
	var dm model.DirectMessage
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&dm).Error; err != nil {
		return nil, err
	}
	return &dm, nil
}

func (r *DirectMessageRepository) FindByPair(ctx context.Context, userA, userB string) (*model.DirectMessage, error) {
	var dm model.DirectMessage
	if err := r.db.WithContext(ctx).Where("pair_key = ?", model.PairKey(userA, userB)).First(&dm).Error; err != nil {
		return nil, err
	}
	return &dm, nil
}

func (r *DirectMessageRepository) Create(ctx context.Context, userA, userB string) (*model.DirectMessage, error) {
	dm := &model.DirectMessage{ID: newID(), PairKey: model.PairKey(userA, userB)}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(dm).Error; err != nil {
			return translate(err)
		}
		members := []*model.DirectMessageMember{
			{ID: newID(), DirectMessageID: dm.ID, UserID: userA},
			{ID: newID(), DirectMessageID: dm.ID, UserID: userB},
		}
		return translate(tx.Create(&members).Error)
	})
	if err != nil {
		return nil, err
	}
	return dm, nil
}

func (r *DirectMessageRepository) ListByUser(ctx context.Context, userID string) ([]*model.DirectMessage, error) {
	var dms []*model.DirectMessage
	err := r.db.WithContext(ctx).
		Table("direct_messages").
		Joins("JOIN direct_message_members m ON m.direct_message_id = direct_messages.id").
		Where("m.user_id = ?", userID).
		Order("direct_messages.created_at DESC").
		Find(&dms).Error
	return dms, err
}

func (r *DirectMessageRepository) IsParticipant(ctx context.Context, dmID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.DirectMessageMember{}).
		Where("direct_message_id = ? AND user_id = ?", dmID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
