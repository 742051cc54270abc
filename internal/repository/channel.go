package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/internal/model"
)

type IChannelRepository interface {
	Create(ctx context.Context, channel *model.Channel) error
	FindByID(ctx context.Context, id string) (*model.Channel, error)
	ListByServer(ctx context.Context, serverID string) ([]*model.Channel, error)
	// DeleteCascade removes the channel with its messages and typing
	// indicators, returning the attachment ids that were dropped.
	DeleteCascade(ctx context.Context, id string) ([]string, error)
}

type ChannelRepository struct {
	db *gorm.DB
}

func NewChannelRepository(db *gorm.DB) IChannelRepository {
	return &ChannelRepository{db: db}
}

func (r *ChannelRepository) Create(ctx context.Context, channel *model.Channel) error {
	if channel.ID == "" {
		channel.ID = newID()
	}
	return translate(r.db.WithContext(ctx).Create(channel).Error)
}

func (r *ChannelRepository) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	var channel model.Channel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&channel).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *ChannelRepository) ListByServer(ctx context.Context, serverID string) ([]*model.Channel, error) {
	var channels []*model.Channel
	err := r.db.WithContext(ctx).Where("server_id = ?", serverID).Order("created_at, id").Find(&channels).Error
	return channels, err
}

func (r *ChannelRepository) DeleteCascade(ctx context.Context, id string) ([]string, error) {
	var attachments []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&model.Channel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		var err error
		attachments, err = purgeConversations(tx, model.ConversationChannel, []string{id})
		if err != nil {
			return err
		}
		return deleteUploads(tx, attachments)
	})
	if err != nil {
		return nil, err
	}
	return attachments, nil
}
